package cmd

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/LingByte/EchoClass/pkg/classroom"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cast"
	"github.com/spf13/cobra"
)

var (
	flagHostID string
	flagReason string
)

var roomsCmd = &cobra.Command{
	Use:     "rooms",
	Aliases: []string{"room"},
	Short:   "Inspect and manage rooms on the relay",
}

var roomsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List open rooms",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		rooms, err := newAPIClient(flagServer).ListRooms(cmd.Context())
		if err != nil {
			return err
		}
		renderRooms(cmd.OutOrStdout(), rooms)
		return nil
	},
}

var roomsGetCmd = &cobra.Command{
	Use:   "get <room-id>",
	Short: "Show one room with its participants and edges",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		room, err := newAPIClient(flagServer).GetRoom(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		renderRoom(cmd.OutOrStdout(), room)
		return nil
	},
}

var roomsCreateCmd = &cobra.Command{
	Use:   "create <room-id>",
	Short: "Open a room hosted by the relay",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		room, err := newAPIClient(flagServer).CreateRoom(cmd.Context(), args[0], flagHostID)
		if err != nil {
			return err
		}
		renderRooms(cmd.OutOrStdout(), []classroom.RoomSnapshot{room})
		return nil
	},
}

var roomsCloseCmd = &cobra.Command{
	Use:   "close <room-id>",
	Short: "Close a room and disconnect its participants",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := newAPIClient(flagServer).CloseRoom(cmd.Context(), args[0], flagReason); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "room %s closed\n", args[0])
		return nil
	},
}

var roomsResumeCmd = &cobra.Command{
	Use:   "resume <room-id>",
	Short: "Resume local playback of the host mix",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := newAPIClient(flagServer).ResumePlayback(cmd.Context(), args[0]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "playback resumed in %s\n", args[0])
		return nil
	},
}

var roomsGainCmd = &cobra.Command{
	Use:   "gain <room-id> <source> <target> <gain>",
	Short: "Set the gain of one mix edge",
	Args:  cobra.ExactArgs(4),
	RunE: func(cmd *cobra.Command, args []string) error {
		gain, err := cast.ToFloat64E(args[3])
		if err != nil {
			return fmt.Errorf("invalid gain %q: %w", args[3], err)
		}
		ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
		defer cancel()
		if err := newAPIClient(flagServer).SetEdgeGain(ctx, args[0], args[1], args[2], gain); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s -> %s gain %s\n", args[1], args[2], strconv.FormatFloat(gain, 'f', -1, 64))
		return nil
	},
}

func init() {
	roomsCreateCmd.Flags().StringVar(&flagHostID, "host", "", "host id, generated when empty")
	roomsCloseCmd.Flags().StringVar(&flagReason, "reason", "", "reason sent to participants")
	roomsCmd.AddCommand(roomsListCmd, roomsGetCmd, roomsCreateCmd, roomsCloseCmd, roomsResumeCmd, roomsGainCmd)
}

func newTable(out io.Writer) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(out)
	t.SetStyle(table.StyleLight)
	return t
}

func renderRooms(out io.Writer, rooms []classroom.RoomSnapshot) {
	t := newTable(out)
	t.AppendHeader(table.Row{"Room", "Host", "State", "Participants", "Edges", "Playback", "Age"})
	for _, r := range rooms {
		t.AppendRow(table.Row{
			r.ID, r.HostID, r.State.String(), len(r.Participants), len(r.Edges),
			r.PlaybackActive, time.Since(r.CreatedAt).Round(time.Second),
		})
	}
	if len(rooms) == 0 {
		t.AppendRow(table.Row{"-", "-", "-", 0, 0, false, "-"})
	}
	t.Render()
}

func renderRoom(out io.Writer, room classroom.RoomSnapshot) {
	renderRooms(out, []classroom.RoomSnapshot{room})

	parts := newTable(out)
	parts.SetTitle("participants")
	parts.AppendHeader(table.Row{"ID", "State", "Generation", "Inbound", "Outbound", "Host audio"})
	for _, p := range room.Participants {
		parts.AppendRow(table.Row{p.ID, p.State.String(), p.Generation, p.InboundTracks, p.OutboundTracks, p.HostAttached})
	}
	parts.Render()

	edges := newTable(out)
	edges.SetTitle("edges")
	edges.AppendHeader(table.Row{"Source", "Target", "Track", "Gain"})
	for _, e := range room.Edges {
		edges.AppendRow(table.Row{e.Source, e.Target, e.TrackID, e.Gain})
	}
	edges.Render()
}

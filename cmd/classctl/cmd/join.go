package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/LingByte/EchoClass/pkg/constants"
	"github.com/LingByte/EchoClass/pkg/logger"
	"github.com/LingByte/EchoClass/pkg/webrtc/rtcmedia/session"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	flagCodec    string
	flagAudio    string
	flagRecord   string
	flagDuration time.Duration
	flagVerbose  bool
)

var joinCmd = &cobra.Command{
	Use:   "join <room-id>",
	Short: "Join a room as a student and report what was received",
	Long: `join connects to the relay's signaling socket and offers a microphone (a WAV
file, or silence). It stays in the room until interrupted or until the host
closes the room. The received mix can be written to a WAV.`,
	Args: cobra.ExactArgs(1),
	RunE: runJoin,
}

func init() {
	joinCmd.Flags().StringVar(&flagCodec, "codec", constants.CodecPCMU, "audio codec, must match the relay")
	joinCmd.Flags().StringVarP(&flagAudio, "audio", "a", "", "WAV streamed as the microphone")
	joinCmd.Flags().StringVarP(&flagRecord, "record", "o", "", "WAV file for the received mix")
	joinCmd.Flags().DurationVarP(&flagDuration, "duration", "d", 0, "leave after this long, 0 stays until interrupted")
	joinCmd.Flags().BoolVarP(&flagVerbose, "verbose", "v", false, "log signaling")
}

// signalingURL turns the relay's http base into its websocket endpoint.
func signalingURL(server string) (string, error) {
	u, err := url.Parse(server)
	if err != nil {
		return "", fmt.Errorf("invalid server url %q: %w", server, err)
	}
	switch u.Scheme {
	case "http", "":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/ws"
	return u.String(), nil
}

func runJoin(cmd *cobra.Command, args []string) error {
	wsURL, err := signalingURL(flagServer)
	if err != nil {
		return err
	}
	log := zap.NewNop()
	if flagVerbose {
		log = logger.NewConsole()
	}

	client, err := session.NewClient(session.Options{
		URL:        wsURL,
		RoomID:     args[0],
		Codec:      flagCodec,
		AudioFile:  flagAudio,
		RecordFile: flagRecord,
	}, log)
	if err != nil {
		return err
	}
	defer client.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if flagDuration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, flagDuration)
		defer cancel()
	}

	if err := client.Connect(ctx); err != nil {
		return err
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "joined %s via %s\n", args[0], wsURL)

	runErr := client.Run(ctx)
	_ = client.Leave()
	renderStats(cmd, args[0], client.Stats())

	switch {
	case errors.Is(runErr, session.ErrRoomClosed):
		fmt.Fprintln(cmd.ErrOrStderr(), "room closed by host")
		return nil
	case errors.Is(runErr, context.Canceled), errors.Is(runErr, context.DeadlineExceeded):
		return nil
	}
	return runErr
}

func renderStats(cmd *cobra.Command, roomID string, stats session.Stats) {
	t := newTable(cmd.OutOrStdout())
	t.SetTitle("room " + roomID)
	t.AppendHeader(table.Row{"Host packets", "Mix packets", "Remote candidates"})
	t.AppendRow(table.Row{stats.HostPackets, stats.MixPackets, stats.Candidates})
	t.Render()
}

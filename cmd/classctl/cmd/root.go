package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var flagServer string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "classctl",
	Short: "Operate an EchoClass relay and join its rooms",
	Long: `classctl manages rooms on an EchoClass relay over its REST api, and can join
a room as a student to check what the mix sounds like.`,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&flagServer, "server", "s", envOr("ECHOCLASS_SERVER", "http://localhost:7072"), "relay base url")
	rootCmd.AddCommand(roomsCmd, joinCmd)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version information set at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "liveserver",
		Short: "Live Components runtime server",
		Long: `liveserver hosts the Live Components runtime: a WebSocket
dispatcher that mounts server-held components, signs and validates
their state across reconnects, and fans room events and file uploads
out to connected clients.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(
		serveCmd(),
		versionCmd(),
		keysCmd(),
		sweepUploadsCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "\033[31mError:\033[0m %s\n", err)
		os.Exit(1)
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Printf("liveserver %s (%s) built %s\n", version, commit, date)
			return nil
		},
	}
}

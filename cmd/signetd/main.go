// Package main provides the entry point for signetd, the local-first
// personal-agent memory and perception daemon.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/signet-run/signet/pkg/version"
)

func main() {
	version.InitBinaryVersion()

	rootCmd := &cobra.Command{
		Use:   "signetd",
		Short: "Signet personal-agent daemon",
		Long: `Signet captures screen, file, terminal, comms, and voice activity,
refines it into durable memories, and exposes them over a loopback HTTP
API so any coding-assistant harness can recall context across sessions.

Commands:
  serve    Run the daemon: capture, refiner scheduler, memory store, API
  status   Query a running daemon's /api/status
  version  Show version information`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(newServeCommand())
	rootCmd.AddCommand(newStatusCommand())
	rootCmd.AddCommand(versionCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(_ *cobra.Command, _ []string) {
			fmt.Fprintf(os.Stdout, "signetd %s (commit: %s, built: %s)\n", version.Version, version.Commit, version.Date)
		},
	}
}

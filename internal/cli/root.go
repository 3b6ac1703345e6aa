// Package cli implements the taskd command-line interface using Cobra.
// "serve" runs the daemon; the other subcommands are clients of a running one.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var serverAddr string

var rootCmd = &cobra.Command{
	Use:   "taskd",
	Short: "taskd: track units of work and their results",
	Long: `taskd is a minimal task-tracking service.
Clients submit tasks, poll their status and report completion results.
Tasks live in memory for the lifetime of the server process.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverAddr, "addr", "", "taskd server URL (default from config)")
}

// Execute runs the root command. Called from main.go.
func Execute(version string) {
	rootCmd.Version = version

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// Package main is the entry point for the livegrid CLI.
//
// livegrid can be embedded as a library or run as a standalone binary with
// YAML configuration. This CLI provides the standalone binary.
//
// Usage:
//
//	livegrid serve -c livegrid.yaml    # Start the grid server
//	livegrid validate -c livegrid.yaml # Validate configuration
//	livegrid version                   # Show version info
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version information, set at build time via ldflags.
// Example: go build -ldflags "-X main.version=1.0.0"
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

var rootCmd = &cobra.Command{
	Use:   "livegrid",
	Short: "A live-updating record grid",
	Long: `livegrid keeps a small table of named records and refreshes it on a
fixed schedule, pushing every change batch to connected browsers over
Server-Sent Events or WebSocket.

Quick start:
  1. Create a config file (livegrid.yaml)
  2. Run: livegrid serve -c livegrid.yaml
  3. Open http://localhost:8080 in your browser

Example config:
  port: 8080
  refresh:
    interval: 5s
  records: [Opal, Ruby, Sapphire]`,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		// cobra already printed the error
		os.Exit(1)
	}
}

func main() {
	Execute()
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long:  `Print the version, commit hash, and build date of this livegrid binary.`,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("livegrid %s\n", version)
		fmt.Printf("  commit: %s\n", commit)
		fmt.Printf("  built:  %s\n", date)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}

// Package cli wires the herald subcommands.
package cli

import (
	"os"

	"github.com/spf13/cobra"
)

var (
	flagServer   string
	flagAdminKey string
	flagToken    string
)

var rootCmd = &cobra.Command{
	Use:   "herald",
	Short: "Governance control plane for autonomous agent fleets",
	Long:  "Tracks registered agents, distributes per-agent policy to sidecars, records audit events and telemetry, and derives integrity scores from attestation signals.",
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagServer, "server", "http://127.0.0.1:8420", "Control plane base URL")
	rootCmd.PersistentFlags().StringVar(&flagAdminKey, "admin-key", os.Getenv("HERALD_API_KEY"), "Admin key for management operations")
	rootCmd.PersistentFlags().StringVar(&flagToken, "token", "", "Agent bearer token")
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

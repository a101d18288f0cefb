package cli

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/fleetops/herald/internal/client"
	"github.com/fleetops/herald/internal/policy"
)

var (
	presetAgents []string
	presetPin    bool
)

func init() {
	rootCmd.AddCommand(presetCmd)
	presetCmd.AddCommand(presetListCmd)
	presetCmd.AddCommand(presetApplyCmd)
	presetApplyCmd.Flags().StringSliceVar(&presetAgents, "agent", nil, "Agent ids to target (default: all)")
	presetApplyCmd.Flags().BoolVar(&presetPin, "pin", false, "Pin expected claims from each agent's latest telemetry")
}

var presetCmd = &cobra.Command{
	Use:   "preset",
	Short: "Inspect and apply integrity presets",
}

var presetListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the built-in preset catalog",
	RunE: func(cmd *cobra.Command, args []string) error {
		for _, p := range policy.Presets() {
			marker := " "
			if p.Recommended {
				marker = "*"
			}
			fmt.Printf("%s %-10s %s\n", marker, p.Name, p.Description)
		}
		return nil
	},
}

var presetApplyCmd = &cobra.Command{
	Use:   "apply <preset>",
	Short: "Apply a preset across the fleet",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c := client.New(flagServer, client.WithAdminKey(flagAdminKey))
		result, err := c.ApplyPresetFleet(cmd.Context(), args[0], presetAgents, presetPin)
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "AGENT\tPOLICY VERSION")
		for _, a := range result.Agents {
			fmt.Fprintf(w, "%s\t%d\n", a.AgentID, a.PolicyVersion)
		}
		w.Flush()
		for _, id := range result.Missing {
			fmt.Fprintf(os.Stderr, "warning: unknown agent %q\n", id)
		}
		return nil
	},
}

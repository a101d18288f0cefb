package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fleetops/herald/internal/client"
)

func init() {
	rootCmd.AddCommand(policyCmd)
}

var policyCmd = &cobra.Command{
	Use:   "policy <agent-id>",
	Short: "Fetch an agent's policy using its bearer token",
	Long:  "Fetches the current policy the way a sidecar does: authenticated with the agent's own token (--token).",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c := client.New(flagServer, client.WithToken(flagToken))
		pol, err := c.GetPolicy(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		out, _ := json.MarshalIndent(pol, "", "  ")
		fmt.Println(string(out))
		return nil
	},
}

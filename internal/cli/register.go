package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fleetops/herald/internal/client"
	"github.com/fleetops/herald/internal/model"
	"github.com/fleetops/herald/internal/registry"
)

var (
	registerName     string
	registerTier     string
	registerAllowed  []string
	registerDenied   []string
	registerChannels []string
)

func init() {
	rootCmd.AddCommand(registerCmd)
	registerCmd.Flags().StringVar(&registerName, "name", "", "Display name (defaults to agent id)")
	registerCmd.Flags().StringVar(&registerTier, "tier", "L0", "Autonomy tier (L0..L3)")
	registerCmd.Flags().StringSliceVar(&registerAllowed, "allow", nil, "Allowed actions")
	registerCmd.Flags().StringSliceVar(&registerDenied, "deny", nil, "Denied actions")
	registerCmd.Flags().StringSliceVar(&registerChannels, "channel", nil, "Notification channels")

	rootCmd.AddCommand(deregisterCmd)
}

var registerCmd = &cobra.Command{
	Use:   "register <agent-id>",
	Short: "Register an agent and print its sidecar token",
	Long:  "Registers an agent with the control plane. Registration is idempotent: re-registering an existing agent id returns the original token.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c := client.New(flagServer, client.WithAdminKey(flagAdminKey))
		result, err := c.Register(cmd.Context(), registry.Registration{
			AgentID:        args[0],
			DisplayName:    registerName,
			Tier:           model.Tier(registerTier),
			AllowedActions: registerAllowed,
			DeniedActions:  registerDenied,
			Channels:       registerChannels,
		})
		if err != nil {
			return err
		}
		out, _ := json.MarshalIndent(result, "", "  ")
		fmt.Println(string(out))
		return nil
	},
}

var deregisterCmd = &cobra.Command{
	Use:   "deregister <agent-id>",
	Short: "Remove an agent and revoke its token",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c := client.New(flagServer, client.WithAdminKey(flagAdminKey))
		if err := c.Deregister(cmd.Context(), args[0]); err != nil {
			return err
		}
		fmt.Printf("deregistered %s\n", args[0])
		return nil
	},
}

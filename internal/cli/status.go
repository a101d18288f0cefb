package cli

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/fleetops/herald/internal/client"
)

func init() {
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(healthCmd)
	rootCmd.AddCommand(eventsCmd)
	eventsCmd.Flags().StringVar(&eventsAgent, "agent", "", "Filter by agent id")
	eventsCmd.Flags().StringVar(&eventsAction, "action", "", "Filter by action")
	eventsCmd.Flags().IntVar(&eventsLimit, "limit", 20, "Maximum events to show")
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show per-agent fleet status",
	RunE: func(cmd *cobra.Command, args []string) error {
		c := client.New(flagServer)
		rows, err := c.FleetStatus(cmd.Context())
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "AGENT\tSTATUS\tTIER\tINTEGRITY\tSCORE\tLAST HEARTBEAT")
		for _, row := range rows {
			hb := "never"
			if row.LastHeartbeatAt != nil {
				hb = row.LastHeartbeatAt.UTC().Format(time.RFC3339)
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%s\n",
				row.AgentID, row.Status, row.Tier, row.IntegrityStatus, row.IntegrityScore, hb)
		}
		return w.Flush()
	},
}

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Show aggregate fleet health counts",
	RunE: func(cmd *cobra.Command, args []string) error {
		c := client.New(flagServer)
		h, err := c.FleetHealth(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Printf("agents: %d total, %d active, %d degraded, %d inactive\n",
			h.Total, h.Active, h.Degraded, h.Inactive)
		fmt.Printf("integrity: %d normal, %d elevated, %d degraded, %d unknown\n",
			h.IntegrityNormal, h.IntegrityElevated, h.IntegrityDegraded, h.IntegrityUnknown)
		return nil
	},
}

var (
	eventsAgent  string
	eventsAction string
	eventsLimit  int
)

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Show recent audit events, most recent first",
	RunE: func(cmd *cobra.Command, args []string) error {
		c := client.New(flagServer)
		evs, err := c.QueryEvents(cmd.Context(), eventsAgent, eventsAction, eventsLimit)
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "TIME\tAGENT\tACTION\tTARGET\tRESULT")
		for _, ev := range evs {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
				ev.Timestamp.UTC().Format(time.RFC3339), ev.AgentID, ev.Action, ev.Target, ev.Result)
		}
		return w.Flush()
	},
}

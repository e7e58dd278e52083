package cmd

import (
	"fmt"
	"os"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
)

// auditCmd represents the audit command
var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Inspect the audit journal",
}

// auditTailCmd represents the audit tail command
var auditTailCmd = &cobra.Command{
	Use:   "tail",
	Short: "Show the most recent audit events",
	RunE:  runAuditTail,
}

var auditLimit int

func init() {
	rootCmd.AddCommand(auditCmd)
	auditCmd.AddCommand(auditTailCmd)

	auditTailCmd.Flags().IntVar(&auditLimit, "limit", 20, "maximum number of events to show")
}

type auditEvent struct {
	ID          string                 `json:"id"`
	Event       string                 `json:"event"`
	Severity    string                 `json:"severity"`
	Details     map[string]interface{} `json:"details,omitempty"`
	EmittedAtMs int64                  `json:"emitted_at_ms"`
}

type auditEventsResponse struct {
	Events []auditEvent `json:"events"`
	Count  int          `json:"count"`
}

func runAuditTail(cmd *cobra.Command, args []string) error {
	var result auditEventsResponse
	if err := getJSON(fmt.Sprintf("/audit/events?limit=%d", auditLimit), &result); err != nil {
		return err
	}

	if IsJSONOutput() {
		return printJSON(result)
	}

	if len(result.Events) == 0 {
		fmt.Println("No audit events")
		return nil
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.Header("Time", "Event", "Severity", "Entity", "Cycle")

	for _, ev := range result.Events {
		entity, _ := ev.Details["entity_id"].(string)
		cycle, _ := ev.Details["cycle_id"].(string)
		table.Append(
			formatMs(ev.EmittedAtMs),
			ev.Event,
			ev.Severity,
			entity,
			cycle,
		)
	}

	table.Render()
	return nil
}

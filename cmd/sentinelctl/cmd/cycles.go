package cmd

import (
	"fmt"
	"os"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
)

// cyclesCmd represents the cycles command
var cyclesCmd = &cobra.Command{
	Use:   "cycles",
	Short: "Inspect supervised cycles",
}

// cyclesListCmd represents the cycles list command
var cyclesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List live supervised cycles",
	RunE:  runCyclesList,
}

func init() {
	rootCmd.AddCommand(cyclesCmd)
	cyclesCmd.AddCommand(cyclesListCmd)
}

type cycleInfo struct {
	ID              string `json:"id"`
	EntityID        string `json:"entity_id"`
	Category        string `json:"category"`
	StartedAtMs     int64  `json:"started_at_ms"`
	LastHeartbeatMs int64  `json:"last_heartbeat_ms"`
}

type cyclesListResponse struct {
	Cycles []cycleInfo `json:"cycles"`
	Count  int         `json:"count"`
}

func runCyclesList(cmd *cobra.Command, args []string) error {
	var result cyclesListResponse
	if err := getJSON("/cycles", &result); err != nil {
		return err
	}

	if IsJSONOutput() {
		return printJSON(result)
	}

	if len(result.Cycles) == 0 {
		fmt.Println("No live cycles")
		return nil
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.Header("ID", "Entity", "Category", "Started", "Last Heartbeat")

	for _, c := range result.Cycles {
		table.Append(
			c.ID,
			c.EntityID,
			c.Category,
			formatMs(c.StartedAtMs),
			formatMs(c.LastHeartbeatMs),
		)
	}

	table.Render()
	fmt.Printf("\nTotal cycles: %d\n", result.Count)
	return nil
}

package cmd

import (
	"fmt"
	"os"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
)

// conditionsCmd represents the conditions command
var conditionsCmd = &cobra.Command{
	Use:   "conditions",
	Short: "List standing unsafe conditions",
	RunE:  runConditionsList,
}

func init() {
	rootCmd.AddCommand(conditionsCmd)
}

type conditionInfo struct {
	Code          string            `json:"code"`
	Message       string            `json:"message"`
	Metadata      map[string]string `json:"metadata,omitempty"`
	QuarantineID  string            `json:"quarantine_id,omitempty"`
	ActivatedAtMs int64             `json:"activated_at_ms"`
}

type conditionsListResponse struct {
	Conditions []conditionInfo `json:"conditions"`
	Count      int             `json:"count"`
}

func runConditionsList(cmd *cobra.Command, args []string) error {
	var result conditionsListResponse
	if err := getJSON("/conditions", &result); err != nil {
		return err
	}

	if IsJSONOutput() {
		return printJSON(result)
	}

	if len(result.Conditions) == 0 {
		fmt.Println("No unsafe conditions")
		return nil
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.Header("Code", "Entity", "Message", "Quarantine", "Activated")

	for _, c := range result.Conditions {
		quarantine := c.QuarantineID
		if quarantine == "" {
			quarantine = "-"
		}
		table.Append(
			c.Code,
			c.Metadata["entity_id"],
			c.Message,
			quarantine,
			formatMs(c.ActivatedAtMs),
		)
	}

	table.Render()
	fmt.Printf("\nTotal conditions: %d\n", result.Count)
	return nil
}

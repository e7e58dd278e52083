package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// statusCmd represents the status command
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show daemon health and state summary",
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

type healthResponse struct {
	Status            string `json:"status"`
	ActiveCycles      int    `json:"active_cycles"`
	ActiveQuarantines int    `json:"active_quarantines"`
}

func runStatus(cmd *cobra.Command, args []string) error {
	var result healthResponse
	if err := getJSON("/health", &result); err != nil {
		return err
	}

	if IsJSONOutput() {
		return printJSON(result)
	}

	fmt.Printf("Daemon:             %s\n", GetDaemonURL())
	fmt.Printf("Status:             %s\n", result.Status)
	fmt.Printf("Active cycles:      %d\n", result.ActiveCycles)
	fmt.Printf("Active quarantines: %d\n", result.ActiveQuarantines)
	return nil
}

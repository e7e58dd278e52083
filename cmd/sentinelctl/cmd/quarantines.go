package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
)

// quarantinesCmd represents the quarantines command
var quarantinesCmd = &cobra.Command{
	Use:   "quarantines",
	Short: "Manage quarantine records",
	Long:  `Commands for listing active quarantines and releasing them as an operator.`,
}

// quarantinesListCmd represents the quarantines list command
var quarantinesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List active quarantines",
	RunE:  runQuarantinesList,
}

// quarantinesReleaseCmd represents the quarantines release command
var quarantinesReleaseCmd = &cobra.Command{
	Use:   "release <quarantine-id>",
	Short: "Release a quarantine",
	Long:  `Release a quarantine record. Integrity-flagged quarantines require --integrity to acknowledge that the underlying integrity failure has been verified as resolved.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runQuarantinesRelease,
}

var (
	releaseActor     string
	releaseNote      string
	releaseIntegrity bool
)

func init() {
	rootCmd.AddCommand(quarantinesCmd)
	quarantinesCmd.AddCommand(quarantinesListCmd)
	quarantinesCmd.AddCommand(quarantinesReleaseCmd)

	quarantinesReleaseCmd.Flags().StringVar(&releaseActor, "actor", "", "operator identity recorded in the release (required)")
	quarantinesReleaseCmd.Flags().StringVar(&releaseNote, "note", "", "release note recorded on the quarantine")
	quarantinesReleaseCmd.Flags().BoolVar(&releaseIntegrity, "integrity", false, "assert the release targets an integrity failure")
	quarantinesReleaseCmd.MarkFlagRequired("actor")
}

type quarantineRecord struct {
	ID               string            `json:"id"`
	Kind             string            `json:"kind"`
	Reason           string            `json:"reason"`
	IntegrityFailure bool              `json:"integrity_failure"`
	AutoRecoverable  bool              `json:"auto_recoverable"`
	CooldownUntilMs  int64             `json:"cooldown_until_ms,omitempty"`
	Metadata         map[string]string `json:"metadata,omitempty"`
	RegisteredAtMs   int64             `json:"registered_at_ms"`
}

type quarantinesListResponse struct {
	Quarantines []quarantineRecord `json:"quarantines"`
	Count       int                `json:"count"`
}

func runQuarantinesList(cmd *cobra.Command, args []string) error {
	var result quarantinesListResponse
	if err := getJSON("/quarantines", &result); err != nil {
		return err
	}

	if IsJSONOutput() {
		return printJSON(result)
	}

	if len(result.Quarantines) == 0 {
		fmt.Println("No active quarantines")
		return nil
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.Header("ID", "Kind", "Entity", "Reason", "Integrity", "Auto-Recover", "Registered")

	for _, q := range result.Quarantines {
		integrity := "no"
		if q.IntegrityFailure {
			integrity = "YES"
		}
		autoRec := "no"
		if q.AutoRecoverable {
			autoRec = "yes"
		}
		table.Append(
			q.ID,
			q.Kind,
			q.Metadata["entity_id"],
			q.Reason,
			integrity,
			autoRec,
			formatMs(q.RegisteredAtMs),
		)
	}

	table.Render()
	fmt.Printf("\nTotal quarantines: %d\n", result.Count)
	return nil
}

func runQuarantinesRelease(cmd *cobra.Command, args []string) error {
	payload, err := json.Marshal(map[string]interface{}{
		"actor":          releaseActor,
		"release_note":   releaseNote,
		"integrity_only": releaseIntegrity,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/quarantines/%s/release", GetDaemonURL(), args[0])
	req, err := CreateAuthenticatedRequest("POST", url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to connect to daemon API: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("release denied (status %d): %s", resp.StatusCode, string(body))
	}

	if IsJSONOutput() {
		var out map[string]interface{}
		if err := decodeInto(body, &out); err != nil {
			return err
		}
		return printJSON(out)
	}

	fmt.Printf("Quarantine %s released by %s\n", args[0], releaseActor)
	return nil
}

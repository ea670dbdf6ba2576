package cli

import (
	"fmt"
	"net/http"

	"github.com/spf13/cobra"

	"ingestd/pkg/models"
)

var continuationsCmd = &cobra.Command{
	Use:   "continuations <job>",
	Short: "List a job's pending continuations",
	Args:  cobra.ExactArgs(1),
	RunE:  runContinuations,
}

var cancelCmd = &cobra.Command{
	Use:   "cancel <job>",
	Short: "Cancel a job's pending continuations",
	Long: `Cancel every pending continuation for a job. The job stays in its
current state; use "ingestctl run" to resume it manually.`,
	Args: cobra.ExactArgs(1),
	RunE: runCancel,
}

func init() {
	rootCmd.AddCommand(continuationsCmd)
	rootCmd.AddCommand(cancelCmd)
}

func runContinuations(cmd *cobra.Command, args []string) error {
	job := args[0]
	var resp struct {
		Job     string                `json:"job"`
		Pending []models.Continuation `json:"pending"`
	}
	if err := call(http.MethodGet, "/v1/jobs/"+job+"/continuations", &resp); err != nil {
		return fmt.Errorf("list continuations: %w", err)
	}
	if len(resp.Pending) == 0 {
		fmt.Printf("No pending continuations for %s\n", job)
		return nil
	}

	fmt.Printf("%-38s %-22s %s\n", "HANDLE", "FIRES AT", "CREATED")
	fmt.Println("----------------------------------------------------------------------------------")
	for _, c := range resp.Pending {
		fmt.Printf("%-38s %-22s %s\n", c.Handle, fmtTS(c.FireAtTS), fmtTS(c.CreatedTS))
	}
	return nil
}

func runCancel(cmd *cobra.Command, args []string) error {
	job := args[0]
	var resp struct {
		Job       string `json:"job"`
		Cancelled int    `json:"cancelled"`
	}
	if err := call(http.MethodDelete, "/v1/jobs/"+job+"/continuations", &resp); err != nil {
		return fmt.Errorf("cancel continuations: %w", err)
	}
	fmt.Printf("Cancelled %d continuation(s) for %s\n", resp.Cancelled, job)
	return nil
}

package cli

import (
	"fmt"
	"net/http"

	"github.com/spf13/cobra"

	"ingestd/pkg/models"
)

var statusCmd = &cobra.Command{
	Use:   "status [job]",
	Short: "Show job state",
	Long: `Show the persisted state of all jobs, or one job in detail.

Examples:
  ingestctl status           # one line per job
  ingestctl status reports   # full state for the reports job`,
	Args: cobra.MaximumNArgs(1),
	RunE: runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	if len(args) == 1 {
		return showJob(args[0])
	}
	return listJobs()
}

func listJobs() error {
	var resp struct {
		Jobs []models.JobState `json:"jobs"`
	}
	if err := call(http.MethodGet, "/v1/jobs", &resp); err != nil {
		return fmt.Errorf("list jobs: %w", err)
	}
	if len(resp.Jobs) == 0 {
		fmt.Println("No jobs configured")
		return nil
	}

	fmt.Printf("%-16s %-26s %-10s %-8s %s\n", "JOB", "STATUS", "PROCESSED", "CURSOR", "UPDATED")
	fmt.Println("--------------------------------------------------------------------------------")
	for _, st := range resp.Jobs {
		cursor := st.Cursor
		if cursor == "" {
			cursor = "-"
		}
		fmt.Printf("%-16s %-26s %-10d %-8s %s\n", st.Job, st.Status, st.ProcessedCount, cursor, fmtTS(st.UpdatedTS))
	}
	return nil
}

func showJob(job string) error {
	var st models.JobState
	if err := call(http.MethodGet, "/v1/jobs/"+job, &st); err != nil {
		return fmt.Errorf("job status: %w", err)
	}

	fmt.Printf("Job:        %s\n", st.Job)
	fmt.Printf("Status:     %s\n", st.Status)
	if st.Detail != "" {
		fmt.Printf("Detail:     %s\n", st.Detail)
	}
	fmt.Printf("Processed:  %d\n", st.ProcessedCount)
	if st.Cursor != "" {
		fmt.Printf("Cursor:     %s\n", st.Cursor)
	}
	if st.RunID != "" {
		fmt.Printf("Run ID:     %s\n", st.RunID)
	}
	fmt.Printf("Last run:   %s\n", fmtTS(st.LastRunTS))
	fmt.Printf("Updated:    %s\n", fmtTS(st.UpdatedTS))
	if st.LastError != nil {
		fmt.Printf("Last error: [%s] %s", st.LastError.Phase, st.LastError.Message)
		if st.LastError.ItemID != "" {
			fmt.Printf(" (item %s)", st.LastError.ItemID)
		}
		fmt.Printf(" at %s\n", fmtTS(st.LastError.TS))
	}
	return nil
}

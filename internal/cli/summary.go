package cli

import (
	"fmt"
	"net/http"
	"sort"

	"github.com/spf13/cobra"

	"ingestd/pkg/ledger"
	"ingestd/pkg/models"
)

var summaryCmd = &cobra.Command{
	Use:   "summary <job>",
	Short: "Show a job's ledger summary",
	Long: `Tally the job's processing ledger by outcome, with the age range of
recorded entries.`,
	Args: cobra.ExactArgs(1),
	RunE: runSummary,
}

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Trigger a retention sweep now",
	Long: `Ask the server to run one retention sweep immediately instead of
waiting for the next cron tick. Requires retention to be enabled in the
server config.`,
	Args: cobra.NoArgs,
	RunE: runSweep,
}

func init() {
	rootCmd.AddCommand(summaryCmd)
	rootCmd.AddCommand(sweepCmd)
}

func runSummary(cmd *cobra.Command, args []string) error {
	job := args[0]
	var sum ledger.Summary
	if err := call(http.MethodGet, "/v1/jobs/"+job+"/ledger/summary", &sum); err != nil {
		return fmt.Errorf("ledger summary: %w", err)
	}

	fmt.Printf("Job:     %s\n", sum.Job)
	fmt.Printf("Entries: %d\n", sum.Total)
	if sum.Total == 0 {
		return nil
	}

	outcomes := make([]string, 0, len(sum.ByOutcome))
	for o := range sum.ByOutcome {
		outcomes = append(outcomes, string(o))
	}
	sort.Strings(outcomes)
	for _, o := range outcomes {
		fmt.Printf("  %-14s %d\n", o, sum.ByOutcome[models.Outcome(o)])
	}
	fmt.Printf("Oldest:  %s\n", fmtTS(sum.OldestTS))
	fmt.Printf("Newest:  %s\n", fmtTS(sum.NewestTS))
	return nil
}

func runSweep(cmd *cobra.Command, args []string) error {
	if err := call(http.MethodPost, "/v1/retention/sweep", nil); err != nil {
		return fmt.Errorf("sweep: %w", err)
	}
	fmt.Println("Retention sweep completed")
	return nil
}

package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/raphaelgruber/urdufact-go/internal/models"
	"github.com/spf13/cobra"
)

var (
	runsTool    string
	runsDataset string
	runsLimit   int
)

var runsCmd = &cobra.Command{
	Use:   "runs [run-id]",
	Short: "List or inspect recorded runs",
	Long: `List the runs recorded in SurrealDB or inspect one run by ID.

Examples:
  urdufact runs                         # 20 most recent runs
  urdufact runs --tool translate_claims # filter by tool
  urdufact runs 7d1c...                 # details of one run`,
	Args: cobra.MaximumNArgs(1),
	RunE: runRuns,
}

func init() {
	runsCmd.Flags().StringVar(&runsTool, "tool", "", "filter by tool")
	runsCmd.Flags().StringVar(&runsDataset, "dataset", "", "filter by dataset")
	runsCmd.Flags().IntVarP(&runsLimit, "limit", "n", 20, "maximum number of runs")
}

func runRuns(cmd *cobra.Command, args []string) error {
	if dbClient == nil {
		return fmt.Errorf("run history needs surrealdb.url to be configured")
	}
	ctx := cmd.Context()

	if len(args) == 1 {
		return showRun(ctx, args[0])
	}
	return listRuns(ctx)
}

func listRuns(ctx context.Context) error {
	runs, err := dbClient.ListRuns(ctx, runsTool, runsDataset, runsLimit)
	if err != nil {
		return err
	}

	if len(runs) == 0 {
		fmt.Println("No runs found")
		return nil
	}

	fmt.Printf("%-36s %-18s %-16s %-10s %-10s %s\n", "ID", "TOOL", "DATASET", "STATUS", "PROGRESS", "STARTED")
	fmt.Println("----------------------------------------------------------------------------------------------------------")

	for _, r := range runs {
		progress := fmt.Sprintf("%d/%d", r.Processed+r.Skipped, r.Total)
		started := r.StartedAt.Local().Format("2006-01-02 15:04")
		fmt.Printf("%-36s %-18s %-16s %-10s %-10s %s\n", r.RunID, r.Tool, r.Dataset, r.Status, progress, started)
	}

	return nil
}

func showRun(ctx context.Context, id string) error {
	run, err := dbClient.GetRun(ctx, id)
	if err != nil {
		return err
	}
	printRun(run)
	return nil
}

func printRun(r *models.RunSummary) {
	fmt.Printf("Run: %s\n", r.RunID)
	fmt.Printf("  Tool: %s\n", r.Tool)
	fmt.Printf("  Dataset: %s\n", r.Dataset)
	if r.Model != "" {
		fmt.Printf("  Model: %s\n", r.Model)
	}
	fmt.Printf("  Status: %s\n", r.Status)
	fmt.Printf("  Items: %d (processed %d, skipped %d, failed %d)\n", r.Total, r.Processed, r.Skipped, r.Failed)
	if r.Resumed > 0 || r.Invalidated > 0 {
		fmt.Printf("  Resumed: %d (invalidated %d)\n", r.Resumed, r.Invalidated)
	}
	fmt.Printf("  Started: %s\n", r.StartedAt.Format(time.RFC3339))
	if r.CompletedAt != nil {
		fmt.Printf("  Completed: %s\n", r.CompletedAt.Format(time.RFC3339))
		fmt.Printf("  Duration: %s\n", r.Duration().Round(time.Second))
	}

	if r.Error != nil && *r.Error != "" {
		fmt.Printf("  Error: %s\n", *r.Error)
	}

	if len(r.FailedIDs) > 0 {
		fmt.Printf("\n  Failed ids (%d):\n", len(r.FailedIDs))
		for _, id := range r.FailedIDs {
			fmt.Printf("    - %s\n", id)
		}
	}
}

package cli

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/raphaelgruber/urdufact-go/internal/cost"
	"github.com/raphaelgruber/urdufact-go/internal/metrics"
	"github.com/raphaelgruber/urdufact-go/internal/models"
	"github.com/spf13/cobra"
)

var (
	usageTool    string
	usageDataset string
	usageModel   string
	usageSince   string
	usageFromDB  bool
)

var usageCmd = &cobra.Command{
	Use:   "usage",
	Short: "Show token usage and cost",
	Long: `Show token usage, search credits and cost.

By default the cost ledgers of one run directory are summed. With --db the
usage mirrored to SurrealDB is grouped per tool, dataset and model.

Examples:
  urdufact usage --tool translate_qa --dataset simpleqa --model gpt-4o
  urdufact usage --db
  urdufact usage --db --tool urdufactcheck --since 7d`,
	Args: cobra.NoArgs,
	RunE: runUsage,
}

func init() {
	usageCmd.Flags().StringVar(&usageTool, "tool", "", "tool name")
	usageCmd.Flags().StringVar(&usageDataset, "dataset", "", "dataset name")
	usageCmd.Flags().StringVar(&usageModel, "model", "", "model path segment (default: configured model)")
	usageCmd.Flags().StringVar(&usageSince, "since", "", "time period for --db (e.g. '24h', '7d', '30d')")
	usageCmd.Flags().BoolVar(&usageFromDB, "db", false, "read usage from SurrealDB")
}

func runUsage(cmd *cobra.Command, args []string) error {
	prices, err := loadPrices()
	if err != nil {
		return err
	}
	if usageFromDB {
		return usageFromStore(cmd, prices)
	}

	if usageTool == "" || usageDataset == "" {
		return fmt.Errorf("--tool and --dataset are required without --db")
	}
	model := usageModel
	if model == "" {
		model = cfg.LLM.Model
	}

	sum, err := cost.Summarize(cfg.Cost.Dir, usageTool, usageDataset, model, prices, logger)
	if err != nil {
		return err
	}
	printCostSummary(sum)
	return nil
}

func usageFromStore(cmd *cobra.Command, prices cost.PriceTable) error {
	if dbClient == nil {
		return fmt.Errorf("--db needs surrealdb.url to be configured")
	}

	var since *time.Time
	if usageSince != "" {
		d, err := parseSince(usageSince)
		if err != nil {
			return err
		}
		t := time.Now().Add(-d)
		since = &t
	}

	rows, err := dbClient.UsageSummary(cmd.Context(), usageTool, since)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		fmt.Println("No usage recorded")
		return nil
	}

	header := []string{"tool", "dataset", "model", "kind", "name", "calls", "prompt", "completion", "credits", "cost"}
	out := make([][]string, 0, len(rows))
	var total float64
	for _, r := range rows {
		sum := cost.Aggregate([]models.CostRecord{r.Record()}, prices, logger)
		c := sum.ModelCost + sum.SearchCost
		total += c
		out = append(out, []string{
			r.Pipeline, r.Dataset, r.Model, r.Kind, r.ToolName,
			strconv.FormatInt(r.Calls, 10),
			strconv.FormatInt(r.PromptTokens, 10),
			strconv.FormatInt(r.CompletionTokens, 10),
			strconv.FormatInt(r.Credits, 10),
			fmt.Sprintf("%.2f", c),
		})
	}
	fmt.Println(renderTable(header, out))
	fmt.Printf("Total cost: $%.2f\n", cost.Round2(total))
	return nil
}

// parseSince accepts Go durations and whole days such as "7d".
func parseSince(s string) (time.Duration, error) {
	if n, ok := strings.CutSuffix(s, "d"); ok {
		days, err := strconv.Atoi(n)
		if err != nil || days < 0 {
			return 0, fmt.Errorf("invalid duration: %s", s)
		}
		return time.Duration(days) * 24 * time.Hour, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid duration: %s", s)
	}
	return d, nil
}

func printCostSummary(s models.CostSummary) {
	fmt.Printf("Cost of %s/%s", s.Tool, s.Dataset)
	if s.Model != "" {
		fmt.Printf("/%s", s.Model)
	}
	fmt.Printf("\n═══════════════════════════════════════\n")
	fmt.Printf("Records:           %d", s.Records)
	if s.Skipped > 0 {
		fmt.Printf(" (%d unreadable lines skipped)", s.Skipped)
	}
	fmt.Println()
	fmt.Printf("Prompt tokens:     %d\n", s.PromptTokens)
	fmt.Printf("Completion tokens: %d\n", s.CompletionTokens)
	fmt.Printf("Search credits:    %d\n", s.Credits)
	fmt.Printf("Model cost:        $%.2f\n", s.ModelCost)
	fmt.Printf("Search cost:       $%.2f\n", s.SearchCost)
	fmt.Printf("Total cost:        $%.2f\n", s.TotalCost)
	if len(s.UnpricedTools) > 0 {
		fmt.Printf("Unpriced:          %v\n", s.UnpricedTools)
	}
}

// printRuntimeStats displays the in-process statistics of a run.
func printRuntimeStats(stats metrics.Snapshot) {
	fmt.Printf("\nRuntime Statistics\n")
	fmt.Printf("═══════════════════════════════════════════════\n")
	fmt.Printf("Uptime: %.1f seconds\n", stats.UptimeSeconds)

	for _, op := range []struct {
		name   string
		snap   *metrics.OperationSnapshot
		tokens bool
	}{
		{"LLM Generate", stats.LLMGenerate, true},
		{"Embeddings", stats.Embedding, false},
		{"Search", stats.Search, false},
		{"Transform", stats.Transform, false},
		{"Persist", stats.Persist, false},
		{"DB Query", stats.DBQuery, false},
	} {
		if op.snap == nil {
			continue
		}
		fmt.Printf("\n%s:\n", op.name)
		printOpStats(op.snap)
		if op.tokens {
			printTokenStats(op.snap)
		}
	}
}

// printOpStats displays timing statistics for an operation.
func printOpStats(op *metrics.OperationSnapshot) {
	fmt.Printf("  Calls: %d, Failed: %d, Total: %dms\n", op.Count, op.Failures, op.TotalTimeMs)
	fmt.Printf("  Time: avg %.1fms, min %dms, max %dms\n",
		op.AvgTimeMs, op.MinTimeMs, op.MaxTimeMs)
}

// printTokenStats displays token statistics if available.
func printTokenStats(op *metrics.OperationSnapshot) {
	tok := op.Tokens
	if tok == nil {
		return
	}
	fmt.Printf("  Tokens In:  %d total, avg %.0f, max %d\n", tok.Input, tok.AvgInput, tok.MaxInput)
	fmt.Printf("  Tokens Out: %d total, avg %.0f, max %d\n", tok.Output, tok.AvgOutput, tok.MaxOutput)
}

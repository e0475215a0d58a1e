package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/raphaelgruber/urdufact-go/internal/cost"
	"github.com/raphaelgruber/urdufact-go/internal/llm"
	"github.com/raphaelgruber/urdufact-go/internal/models"
	"github.com/raphaelgruber/urdufact-go/internal/resume"
	"github.com/raphaelgruber/urdufact-go/internal/service"
	"github.com/spf13/pflag"
	"golang.org/x/term"
)

// runFlags are the dataset flags shared by translate and evaluate.
type runFlags struct {
	input         string
	output        string
	dataset       string
	runID         string
	lenientResume bool
}

func (f *runFlags) register(c *pflag.FlagSet) {
	c.StringVarP(&f.input, "input", "i", "", "input dataset (JSON object, array or JSONL)")
	c.StringVarP(&f.output, "output", "o", "", "output file, also read to resume")
	c.StringVarP(&f.dataset, "dataset", "d", "", "dataset name used for cost paths")
	c.StringVar(&f.runID, "run-id", "", "run id (default: random uuid)")
	c.BoolVar(&f.lenientResume, "lenient-resume", false, "trust every id in the output without validating its fields")
}

func (f *runFlags) id() string {
	if f.runID == "" {
		f.runID = uuid.New().String()
	}
	return f.runID
}

func progressEnabled() bool {
	return showProgress && term.IsTerminal(int(os.Stdout.Fd()))
}

// newLedger opens the cost ledger of a run. Records are mirrored to
// SurrealDB when configured.
func newLedger(tool, dataset, model, runID string) *cost.Ledger {
	lc := cost.LedgerConfig{
		Root:           cfg.Cost.Dir,
		Tool:           tool,
		Dataset:        dataset,
		Model:          model,
		RunID:          runID,
		SaveModelCost:  cfg.Cost.SaveModelCost,
		SaveSearchCost: cfg.Cost.SaveSearchCost,
		Logger:         logger,
	}
	if cfg.Cost.MirrorToDB && dbClient != nil {
		lc.Sink = dbClient
	}
	return cost.NewLedger(lc)
}

// newDispatcher builds the configured chat model and a dispatcher with the
// given per-request timeout.
func newDispatcher(ctx context.Context, ledger *cost.Ledger, timeout time.Duration) (*llm.Dispatcher, error) {
	if err := cfg.ValidateLLM(); err != nil {
		return nil, err
	}
	model, err := llm.NewModelFromRegistry(ctx, llm.NewRegistry(), cfg.LLM,
		llm.WithUsageRecorder(ledger),
		llm.WithMetrics(collector),
		llm.WithLogger(logger),
	)
	if err != nil {
		return nil, fmt.Errorf("init model: %w", err)
	}
	return llm.NewDispatcher(model, llm.DispatcherConfig{
		Concurrency:       cfg.Processing.Concurrency,
		RequestsPerSecond: cfg.Processing.RequestsPerSecond,
		Timeout:           timeout,
		Tries:             cfg.Processing.RequestRetries,
		RetryDelay:        cfg.Processing.RequestRetryDelay,
		Logger:            logger,
	}), nil
}

func loadPrices() (cost.PriceTable, error) {
	if cfg.Cost.PriceFile == "" {
		return cost.DefaultPrices(), nil
	}
	return cost.LoadPrices(cfg.Cost.PriceFile)
}

// resumeValidator returns nil when resumed entries should not be checked.
func resumeValidator(lenient bool, build func() (resume.Validator, error)) (resume.Validator, error) {
	if lenient {
		return nil, nil
	}
	return build()
}

// runDataset drives t over the dataset described by rc and prints the summary.
// Item failures are reported but do not make the command fail.
func runDataset(ctx context.Context, rc service.RunConfig, t service.Transformer) error {
	processor := service.NewProcessor(service.ProcessorConfig{
		MaxAttempts: cfg.Processing.MaxAttempts,
		Delay:       cfg.Processing.RetryDelay,
		Logger:      logger,
		Metrics:     collector,
	})
	opts := []service.DriverOption{
		service.WithLogger(logger),
		service.WithMetrics(collector),
	}
	if dbClient != nil {
		opts = append(opts, service.WithRunStore(dbClient))
	}

	var (
		summary models.RunSummary
		err     error
	)
	if progressEnabled() {
		summary, err = runWithProgress(ctx, rc, processor, opts, t)
	} else {
		var d *service.Driver
		d, err = service.NewDriver(rc, processor, opts...)
		if err != nil {
			return err
		}
		summary, err = d.Run(ctx, t)
	}

	printRunSummary(summary)
	if verbose {
		printRuntimeStats(collector.Snapshot())
	}
	return err
}

func printRunSummary(s models.RunSummary) {
	if s.RunID == "" {
		return
	}
	fmt.Printf("Run %s (%s)\n", s.RunID, s.Status)
	fmt.Printf("  Tool:        %s\n", s.Tool)
	fmt.Printf("  Dataset:     %s\n", s.Dataset)
	if s.Model != "" {
		fmt.Printf("  Model:       %s\n", s.Model)
	}
	fmt.Printf("  Items:       %d\n", s.Total)
	fmt.Printf("  Processed:   %d\n", s.Processed)
	fmt.Printf("  Skipped:     %d\n", s.Skipped)
	if s.Invalidated > 0 {
		fmt.Printf("  Invalidated: %d\n", s.Invalidated)
	}
	if s.Failed > 0 {
		fmt.Printf("  Failed:      %d %v\n", s.Failed, s.FailedIDs)
	}
	if d := s.Duration(); d > 0 {
		fmt.Printf("  Duration:    %s\n", d.Round(time.Second))
	}
}

package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/raphaelgruber/urdufact-go/internal/config"
	"github.com/raphaelgruber/urdufact-go/internal/metrics"
	"github.com/raphaelgruber/urdufact-go/internal/models"
	"github.com/raphaelgruber/urdufact-go/internal/records"
	"github.com/raphaelgruber/urdufact-go/internal/resume"
)

// EventKind is the type of a driver progress event.
type EventKind string

const (
	EventStart     EventKind = "start"
	EventSkipped   EventKind = "skipped"
	EventProcessed EventKind = "processed"
	EventFailed    EventKind = "failed"
	EventDone      EventKind = "done"
)

// Event reports driver progress. Index is 1-based; it is 0 for start and done.
type Event struct {
	Kind  EventKind
	Index int
	Total int
	ID    string
	Err   error
}

// RunStore records run summaries. Implemented by db.Client.
type RunStore interface {
	SaveRun(ctx context.Context, run models.RunSummary) error
}

// RunConfig describes one dataset run.
type RunConfig struct {
	InputPath  string `validate:"required"`
	OutputPath string `validate:"required"`
	Tool       string `validate:"required"`
	Dataset    string `validate:"required"`
	Model      string
	RunID      string // generated when empty

	// Validator checks resumed entries. Nil trusts every resumed id.
	Validator resume.Validator `validate:"-"`
}

// Validate checks required fields.
func (c RunConfig) Validate() error {
	return config.ValidateStruct(c)
}

// Driver runs a transformer over every item of a dataset, skipping items
// already present in the output and persisting after each success.
type Driver struct {
	cfg       RunConfig
	processor *Processor
	logger    *slog.Logger
	metrics   *metrics.Collector
	runs      RunStore
	observer  func(Event)
	now       func() time.Time
}

// DriverOption configures a Driver.
type DriverOption func(*Driver)

// WithLogger sets the driver logger.
func WithLogger(l *slog.Logger) DriverOption {
	return func(d *Driver) { d.logger = l }
}

// WithMetrics records persist timings.
func WithMetrics(c *metrics.Collector) DriverOption {
	return func(d *Driver) { d.metrics = c }
}

// WithRunStore saves the run summary when the run ends.
func WithRunStore(s RunStore) DriverOption {
	return func(d *Driver) { d.runs = s }
}

// WithObserver receives progress events. It is called on the driver goroutine.
func WithObserver(fn func(Event)) DriverOption {
	return func(d *Driver) { d.observer = fn }
}

// NewDriver validates cfg and creates a driver.
func NewDriver(cfg RunConfig, p *Processor, opts ...DriverOption) (*Driver, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if p == nil {
		p = NewProcessor(ProcessorConfig{})
	}
	if cfg.RunID == "" {
		cfg.RunID = uuid.New().String()
	}
	d := &Driver{
		cfg:       cfg,
		processor: p,
		logger:    slog.Default(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	d.logger = d.logger.With("run_id", cfg.RunID, "tool", cfg.Tool, "dataset", cfg.Dataset)
	return d, nil
}

// RunID returns the id of this run.
func (d *Driver) RunID() string {
	return d.cfg.RunID
}

// Run processes the dataset. Item failures are counted in the summary and
// do not fail the run; input, resume and persistence errors do.
func (d *Driver) Run(ctx context.Context, t Transformer) (models.RunSummary, error) {
	summary := models.RunSummary{
		RunID:     d.cfg.RunID,
		Tool:      d.cfg.Tool,
		Dataset:   d.cfg.Dataset,
		Model:     d.cfg.Model,
		Status:    models.RunStatusRunning,
		StartedAt: d.now(),
	}

	err := d.run(ctx, t, &summary)
	d.finish(ctx, &summary, err)
	return summary, err
}

func (d *Driver) run(ctx context.Context, t Transformer, summary *models.RunSummary) error {
	input, err := records.Load(d.cfg.InputPath)
	if err != nil {
		return fmt.Errorf("load input: %w", err)
	}
	summary.Total = len(input)

	idx, err := resume.Build(d.cfg.OutputPath, d.cfg.Validator, d.logger)
	if err != nil {
		return fmt.Errorf("build resume index: %w", err)
	}
	summary.Resumed = idx.Len()
	summary.Invalidated = idx.Invalidated

	inputIDs := make(map[string]struct{}, len(input))
	for _, item := range input {
		inputIDs[item.ID] = struct{}{}
	}
	results := idx.Seed(inputIDs)
	seen := make(map[string]struct{}, len(input))

	d.logger.Info("run started", "items", len(input), "resumed", idx.Len(), "output", d.cfg.OutputPath)
	d.emit(Event{Kind: EventStart, Total: len(input)})

	for i, item := range input {
		pos := i + 1

		if idx.Contains(item.ID) {
			summary.Skipped++
			d.logger.Debug("skipping completed item", "id", item.ID)
			d.emit(Event{Kind: EventSkipped, Index: pos, Total: len(input), ID: item.ID})
			continue
		}
		if _, dup := seen[item.ID]; dup {
			summary.Skipped++
			d.logger.Warn("duplicate id in input, skipping", "id", item.ID, "index", pos)
			d.emit(Event{Kind: EventSkipped, Index: pos, Total: len(input), ID: item.ID})
			continue
		}
		seen[item.ID] = struct{}{}

		enriched, err := d.processor.Process(ctx, item, t)
		if err != nil {
			if errors.Is(err, ErrRetryExhausted) {
				summary.Failed++
				summary.FailedIDs = append(summary.FailedIDs, item.ID)
				d.logger.Error("item failed, left for a later run", "id", item.ID, "error", err)
				d.emit(Event{Kind: EventFailed, Index: pos, Total: len(input), ID: item.ID, Err: err})
				continue
			}
			return err
		}

		results = append(results, enriched)
		idx.Add(item.ID)

		start := time.Now()
		if err := records.Persist(d.cfg.OutputPath, results); err != nil {
			return fmt.Errorf("persist results: %w", err)
		}
		if d.metrics != nil {
			d.metrics.RecordTiming(metrics.OpPersist, time.Since(start))
		}

		summary.Processed++
		d.logger.Info("item processed", "id", item.ID, "index", pos, "total", len(input))
		d.emit(Event{Kind: EventProcessed, Index: pos, Total: len(input), ID: item.ID})
	}
	return nil
}

func (d *Driver) finish(ctx context.Context, summary *models.RunSummary, err error) {
	now := d.now()
	summary.CompletedAt = &now
	if err != nil {
		msg := err.Error()
		summary.Status = models.RunStatusFailed
		summary.Error = &msg
		d.logger.Error("run failed", "error", err)
	} else {
		summary.Status = models.RunStatusCompleted
		d.logger.Info("run completed",
			"total", summary.Total,
			"processed", summary.Processed,
			"skipped", summary.Skipped,
			"failed", summary.Failed,
			"duration", summary.Duration())
	}
	d.emit(Event{Kind: EventDone, Total: summary.Total, Err: err})

	if d.runs != nil {
		// Saved even when the run context was cancelled.
		saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()
		if err := d.runs.SaveRun(saveCtx, *summary); err != nil {
			d.logger.Warn("failed to save run summary", "error", err)
		}
	}
}

func (d *Driver) emit(e Event) {
	if d.observer != nil {
		d.observer(e)
	}
}

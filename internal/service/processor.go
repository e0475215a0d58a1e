// Package service runs transformers over datasets: per-item retry and the
// resumable batch loop around it.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/raphaelgruber/urdufact-go/internal/metrics"
	"github.com/raphaelgruber/urdufact-go/internal/models"
)

// DefaultMaxAttempts is the number of transformer calls made for one item.
const DefaultMaxAttempts = 5

// Transformer produces enrichment fields for one work item.
type Transformer interface {
	Transform(ctx context.Context, item models.WorkItem) (models.Enrichment, error)
}

// TransformerFunc adapts a function to Transformer.
type TransformerFunc func(ctx context.Context, item models.WorkItem) (models.Enrichment, error)

// Transform calls f.
func (f TransformerFunc) Transform(ctx context.Context, item models.WorkItem) (models.Enrichment, error) {
	return f(ctx, item)
}

// ProcessorConfig configures retry behavior.
type ProcessorConfig struct {
	MaxAttempts int           // <= 0 uses DefaultMaxAttempts
	Delay       time.Duration // pause between attempts
	Timeout     time.Duration // per attempt, 0 disables
	Logger      *slog.Logger
	Metrics     *metrics.Collector
}

// Processor runs a transformer for one item with bounded retry.
type Processor struct {
	maxAttempts int
	delay       time.Duration
	timeout     time.Duration
	logger      *slog.Logger
	metrics     *metrics.Collector
}

// NewProcessor creates a processor.
func NewProcessor(cfg ProcessorConfig) *Processor {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Processor{
		maxAttempts: cfg.MaxAttempts,
		delay:       cfg.Delay,
		timeout:     cfg.Timeout,
		logger:      cfg.Logger,
		metrics:     cfg.Metrics,
	}
}

// MaxAttempts returns the configured attempt bound.
func (p *Processor) MaxAttempts() int {
	return p.maxAttempts
}

// Process calls t until it succeeds or the attempts run out. On success the
// enrichment is merged into a copy of item. Cancelling ctx stops the loop
// and returns the context error.
func (p *Processor) Process(ctx context.Context, item models.WorkItem, t Transformer) (models.WorkItem, error) {
	var last *TransformerFailure

	for attempt := 1; attempt <= p.maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return models.WorkItem{}, err
		}

		start := time.Now()
		enrichment, err := p.attempt(ctx, item, t)
		if p.metrics != nil {
			p.metrics.Observe(metrics.OpTransform, time.Since(start), err)
		}
		if err == nil {
			merged, mergeErr := item.Merge(enrichment)
			if mergeErr == nil {
				if attempt > 1 {
					p.logger.Info("item succeeded after retry", "id", item.ID, "attempt", attempt)
				}
				return merged, nil
			}
			err = fmt.Errorf("merge enrichment: %w", mergeErr)
		}

		// The parent context ending is not a transformer failure.
		if ctxErr := ctx.Err(); ctxErr != nil {
			return models.WorkItem{}, ctxErr
		}

		last = &TransformerFailure{ID: item.ID, Attempt: attempt, Err: err}
		p.logger.Warn("transformer attempt failed",
			"id", item.ID,
			"attempt", attempt,
			"max_attempts", p.maxAttempts,
			"error", err)

		if attempt < p.maxAttempts && p.delay > 0 {
			select {
			case <-ctx.Done():
				return models.WorkItem{}, ctx.Err()
			case <-time.After(p.delay):
			}
		}
	}

	return models.WorkItem{}, &RetryExhaustedError{ID: item.ID, Attempts: p.maxAttempts, Last: last}
}

// attempt runs one transformer call under the per-attempt timeout. Panics in
// the transformer are turned into attempt failures.
func (p *Processor) attempt(ctx context.Context, item models.WorkItem, t Transformer) (e models.Enrichment, err error) {
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("transformer panic: %v", r)
		}
	}()

	e, err = t.Transform(ctx, item)
	if err == nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
		err = ctx.Err()
	}
	return e, err
}

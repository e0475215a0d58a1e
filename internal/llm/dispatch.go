package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/tmc/langchaingo/llms"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// Result is the outcome of one dispatched request.
type Result[T any] struct {
	Value T
	Err   error
}

// DispatcherConfig controls concurrent request dispatch.
type DispatcherConfig struct {
	Concurrency       int           // max in-flight requests, <= 0 means 8
	RequestsPerSecond float64       // 0 disables rate limiting
	Timeout           time.Duration // per request, 0 disables
	Tries             int           // attempts per request, <= 0 means 3
	RetryDelay        time.Duration
	Logger            *slog.Logger
}

// Dispatcher sends batches of chat requests concurrently and returns one
// Result per request in input order.
type Dispatcher struct {
	gen        Generator
	limit      int
	limiter    *rate.Limiter
	timeout    time.Duration
	tries      int
	retryDelay time.Duration
	logger     *slog.Logger
}

// NewDispatcher creates a dispatcher over gen.
func NewDispatcher(gen Generator, cfg DispatcherConfig) *Dispatcher {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 8
	}
	if cfg.Tries <= 0 {
		cfg.Tries = 3
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	limit := rate.Inf
	burst := cfg.Concurrency
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
		burst = 1
	}
	return &Dispatcher{
		gen:        gen,
		limit:      cfg.Concurrency,
		limiter:    rate.NewLimiter(limit, burst),
		timeout:    cfg.Timeout,
		tries:      cfg.Tries,
		retryDelay: cfg.RetryDelay,
		logger:     cfg.Logger,
	}
}

// Model returns the name of the underlying model.
func (d *Dispatcher) Model() string {
	return d.gen.Model()
}

// Dispatch sends every request and waits for all of them.
func (d *Dispatcher) Dispatch(ctx context.Context, reqs [][]llms.MessageContent) []Result[Completion] {
	out := make([]Result[Completion], len(reqs))
	d.each(len(reqs), func(i int) {
		c, err := d.do(ctx, reqs[i], nil)
		out[i] = Result[Completion]{Value: c, Err: err}
	})
	return out
}

// DispatchJSON sends every request and decodes each response into T.
// Responses that do not decode are retried like failed requests.
func DispatchJSON[T any](ctx context.Context, d *Dispatcher, reqs [][]llms.MessageContent) []Result[T] {
	out := make([]Result[T], len(reqs))
	d.each(len(reqs), func(i int) {
		var v T
		_, err := d.do(ctx, reqs[i], func(c Completion) error {
			parsed, err := ParseJSON[T](c.Text)
			if err != nil {
				return err
			}
			v = parsed
			return nil
		})
		out[i] = Result[T]{Value: v, Err: err}
	})
	return out
}

func (d *Dispatcher) each(n int, fn func(i int)) {
	var g errgroup.Group
	g.SetLimit(d.limit)
	for i := 0; i < n; i++ {
		g.Go(func() error {
			fn(i)
			return nil
		})
	}
	_ = g.Wait()
}

// do runs one request with its retries. check, when set, validates the
// completion; a check failure counts as a failed try.
func (d *Dispatcher) do(ctx context.Context, msgs []llms.MessageContent, check func(Completion) error) (Completion, error) {
	var lastErr error
	for try := 1; try <= d.tries; try++ {
		if err := d.limiter.Wait(ctx); err != nil {
			return Completion{}, err
		}

		c, err := d.once(ctx, msgs)
		if err == nil && check != nil {
			err = check(c)
		}
		if err == nil {
			return c, nil
		}
		if ctx.Err() != nil {
			return Completion{}, ctx.Err()
		}
		lastErr = err
		if errors.Is(err, ErrFatalAPI) {
			return Completion{}, err
		}

		d.logger.Warn("request failed", "model", d.gen.Model(), "try", try, "tries", d.tries, "error", err)
		if try < d.tries && d.retryDelay > 0 {
			select {
			case <-ctx.Done():
				return Completion{}, ctx.Err()
			case <-time.After(d.retryDelay):
			}
		}
	}
	return Completion{}, lastErr
}

func (d *Dispatcher) once(ctx context.Context, msgs []llms.MessageContent) (Completion, error) {
	if d.timeout <= 0 {
		return d.gen.Complete(ctx, msgs)
	}
	rctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	c, err := d.gen.Complete(rctx, msgs)
	if err != nil && ctx.Err() == nil && errors.Is(rctx.Err(), context.DeadlineExceeded) {
		return Completion{}, fmt.Errorf("%w after %s: %w", ErrTimeout, d.timeout, err)
	}
	return c, err
}

// Package metrics collects in-memory timing and token statistics for a run.
package metrics

import (
	"sync"
	"time"
)

// Operation names for the collector.
const (
	OpEmbedding   = "embedding"
	OpLLMGenerate = "llm_generate"
	OpSearch      = "search"
	OpTransform   = "transform"
	OpPersist     = "persist"
	OpDBQuery     = "db_query"
)

// opStats holds the raw counters of one operation.
type opStats struct {
	count    int64
	failures int64
	total    time.Duration
	min      time.Duration
	max      time.Duration

	tokenCalls int64
	input      int64
	output     int64
	maxInput   int64
	maxOutput  int64
}

func (s *opStats) observe(d time.Duration, failed bool) {
	if s.count == 0 || d < s.min {
		s.min = d
	}
	if d > s.max {
		s.max = d
	}
	s.count++
	s.total += d
	if failed {
		s.failures++
	}
}

// TokenStats summarizes the token usage of model calls.
type TokenStats struct {
	Input     int64
	Output    int64
	AvgInput  float64
	AvgOutput float64
	MaxInput  int64
	MaxOutput int64
}

// OperationSnapshot is the computed view of one operation.
type OperationSnapshot struct {
	Count       int64
	Failures    int64
	TotalTimeMs int64
	AvgTimeMs   float64
	MinTimeMs   int64
	MaxTimeMs   int64

	// Nil for operations without token usage.
	Tokens *TokenStats
}

// Snapshot represents the statistics of a run at a point in time.
type Snapshot struct {
	UptimeSeconds float64
	Embedding     *OperationSnapshot
	LLMGenerate   *OperationSnapshot
	Search        *OperationSnapshot
	Transform     *OperationSnapshot
	Persist       *OperationSnapshot
	DBQuery       *OperationSnapshot
}

// Collector aggregates in-memory runtime statistics.
// All methods are thread-safe.
type Collector struct {
	mu        sync.Mutex
	startTime time.Time
	ops       map[string]*opStats
}

// NewCollector creates a new metrics collector.
func NewCollector() *Collector {
	return &Collector{
		startTime: time.Now(),
		ops:       make(map[string]*opStats),
	}
}

// stats returns the counters of op, creating them. Caller must hold mu.
func (c *Collector) stats(op string) *opStats {
	s, ok := c.ops[op]
	if !ok {
		s = &opStats{}
		c.ops[op] = s
	}
	return s
}

// Observe records one call of op. A non-nil err counts as a failure.
func (c *Collector) Observe(op string, duration time.Duration, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stats(op).observe(duration, err != nil)
}

// RecordTiming records a successful call of op.
func (c *Collector) RecordTiming(op string, duration time.Duration) {
	c.Observe(op, duration, nil)
}

// RecordLLMUsage records a successful model call with its token usage.
func (c *Collector) RecordLLMUsage(op string, duration time.Duration, inputTokens, outputTokens int64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := c.stats(op)
	s.observe(duration, false)
	s.tokenCalls++
	s.input += inputTokens
	s.output += outputTokens
	s.maxInput = max(s.maxInput, inputTokens)
	s.maxOutput = max(s.maxOutput, outputTokens)
}

func (s *opStats) snapshot() *OperationSnapshot {
	if s == nil || s.count == 0 {
		return nil
	}
	snap := &OperationSnapshot{
		Count:       s.count,
		Failures:    s.failures,
		TotalTimeMs: s.total.Milliseconds(),
		AvgTimeMs:   float64(s.total.Milliseconds()) / float64(s.count),
		MinTimeMs:   s.min.Milliseconds(),
		MaxTimeMs:   s.max.Milliseconds(),
	}
	if s.tokenCalls > 0 {
		snap.Tokens = &TokenStats{
			Input:     s.input,
			Output:    s.output,
			AvgInput:  float64(s.input) / float64(s.tokenCalls),
			AvgOutput: float64(s.output) / float64(s.tokenCalls),
			MaxInput:  s.maxInput,
			MaxOutput: s.maxOutput,
		}
	}
	return snap
}

// Snapshot returns a point-in-time snapshot of the known operations.
func (c *Collector) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	return Snapshot{
		UptimeSeconds: time.Since(c.startTime).Seconds(),
		Embedding:     c.ops[OpEmbedding].snapshot(),
		LLMGenerate:   c.ops[OpLLMGenerate].snapshot(),
		Search:        c.ops[OpSearch].snapshot(),
		Transform:     c.ops[OpTransform].snapshot(),
		Persist:       c.ops[OpPersist].snapshot(),
		DBQuery:       c.ops[OpDBQuery].snapshot(),
	}
}

// Operations returns snapshots keyed by operation name, skipping empty ones.
func (c *Collector) Operations() map[string]OperationSnapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make(map[string]OperationSnapshot, len(c.ops))
	for name, s := range c.ops {
		if snap := s.snapshot(); snap != nil {
			out[name] = *snap
		}
	}
	return out
}

// Package cost records per-call usage to append-only ledgers and turns
// ledgers into monetary summaries.
package cost

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/raphaelgruber/urdufact-go/internal/models"
)

// Ledger file names.
const (
	ModelCostFile  = "model_cost.jsonl"
	SearchCostFile = "serper_cost.jsonl"
)

// Sink receives a copy of every recorded cost line.
type Sink interface {
	RecordCost(ctx context.Context, rec models.CostRecord, tool, dataset, model string) error
}

// LedgerConfig identifies the (tool, dataset, model) triple a run writes to.
type LedgerConfig struct {
	Root    string
	Tool    string
	Dataset string
	Model   string // optional path segment
	RunID   string

	SaveModelCost  bool
	SaveSearchCost bool

	Sink   Sink
	Logger *slog.Logger
}

// Ledger appends cost records for one run. Safe for concurrent use.
type Ledger struct {
	cfg    LedgerConfig
	dir    string
	mu     sync.Mutex
	logger *slog.Logger
	now    func() time.Time
}

// NewLedger creates a ledger. Nothing is touched on disk until the first record.
func NewLedger(cfg LedgerConfig) *Ledger {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Ledger{
		cfg:    cfg,
		dir:    Dir(cfg.Root, cfg.Tool, cfg.Dataset, cfg.Model),
		logger: logger,
		now:    time.Now,
	}
}

// Dir returns {root}/{tool}/{dataset}[/{model}].
func Dir(root, tool, dataset, model string) string {
	parts := []string{root, tool, dataset}
	if model != "" {
		parts = append(parts, model)
	}
	return filepath.Join(parts...)
}

// ModelPath returns the model-call ledger path.
func (l *Ledger) ModelPath() string {
	return filepath.Join(l.dir, ModelCostFile)
}

// SearchPath returns the search-call ledger path.
func (l *Ledger) SearchPath() string {
	return filepath.Join(l.dir, SearchCostFile)
}

// RecordModel appends a model-call record. Calls without token usage are ignored.
func (l *Ledger) RecordModel(ctx context.Context, tool string, usage models.Usage) error {
	if l == nil || !l.cfg.SaveModelCost || !usage.Billable() {
		return nil
	}
	total := usage.TotalTokens
	if total == 0 {
		total = usage.PromptTokens + usage.CompletionTokens
	}
	rec := models.CostRecord{
		Tool:             tool,
		PromptTokens:     usage.PromptTokens,
		CompletionTokens: usage.CompletionTokens,
		TotalTokens:      total,
		RunID:            l.cfg.RunID,
		Timestamp:        l.now().UTC(),
		Kind:             models.CostKindModel,
	}
	return l.append(ctx, l.ModelPath(), rec)
}

// RecordSearch appends a search-call record.
func (l *Ledger) RecordSearch(ctx context.Context, tool string, credits int64) error {
	if l == nil || !l.cfg.SaveSearchCost || credits <= 0 {
		return nil
	}
	rec := models.CostRecord{
		Tool:      tool,
		Credits:   credits,
		RunID:     l.cfg.RunID,
		Timestamp: l.now().UTC(),
		Kind:      models.CostKindSearch,
	}
	return l.append(ctx, l.SearchPath(), rec)
}

// append writes one line. The file is opened in append mode for every record
// and the line goes out in a single write.
func (l *Ledger) append(ctx context.Context, path string, rec models.CostRecord) error {
	line, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode cost record: %w", err)
	}
	line = append(line, '\n')

	l.mu.Lock()
	err = appendLine(path, line)
	l.mu.Unlock()
	if err != nil {
		return err
	}

	if l.cfg.Sink != nil {
		if err := l.cfg.Sink.RecordCost(ctx, rec, l.cfg.Tool, l.cfg.Dataset, l.cfg.Model); err != nil {
			l.logger.Warn("cost mirror failed", "tool", rec.Tool, "error", err)
		}
	}
	return nil
}

func appendLine(path string, line []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create ledger dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open ledger: %w", err)
	}
	if _, err := f.Write(line); err != nil {
		f.Close()
		return fmt.Errorf("write ledger: %w", err)
	}
	return f.Close()
}

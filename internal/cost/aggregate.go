package cost

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"sort"

	"github.com/raphaelgruber/urdufact-go/internal/models"
)

// ErrIncompleteRecord marks a line that parsed but is missing required fields.
var ErrIncompleteRecord = errors.New("incomplete cost record")

// AggregationParseError describes a ledger line that was skipped.
type AggregationParseError struct {
	Path string
	Line int
	Err  error
}

func (e *AggregationParseError) Error() string {
	return fmt.Sprintf("%s:%d: %v", e.Path, e.Line, e.Err)
}

func (e *AggregationParseError) Unwrap() error {
	return e.Err
}

// ReadRecords reads a ledger file. Lines that do not decode into a usable
// record are reported in the second return value and otherwise ignored.
// A missing file yields no records and no errors.
func ReadRecords(path string, kind models.CostKind) ([]models.CostRecord, []error, error) {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("open ledger: %w", err)
	}
	defer f.Close()

	var (
		recs    []models.CostRecord
		skipped []error
	)
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
	for n := 1; scanner.Scan(); n++ {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		rec, err := parseRecord(line, kind)
		if err != nil {
			skipped = append(skipped, &AggregationParseError{Path: path, Line: n, Err: err})
			continue
		}
		recs = append(recs, rec)
	}
	if err := scanner.Err(); err != nil {
		return recs, skipped, fmt.Errorf("read ledger: %w", err)
	}
	return recs, skipped, nil
}

func parseRecord(line []byte, kind models.CostKind) (models.CostRecord, error) {
	var rec models.CostRecord
	if err := json.Unmarshal(line, &rec); err != nil {
		return models.CostRecord{}, err
	}
	rec.Kind = kind

	switch kind {
	case models.CostKindSearch:
		if rec.Tool == "" {
			rec.Tool = SerperTool
		}
		if rec.Credits < 0 {
			return models.CostRecord{}, fmt.Errorf("%w: negative credits", ErrIncompleteRecord)
		}
	default:
		if rec.Tool == "" {
			return models.CostRecord{}, fmt.Errorf("%w: no tool name", ErrIncompleteRecord)
		}
		if rec.PromptTokens < 0 || rec.CompletionTokens < 0 {
			return models.CostRecord{}, fmt.Errorf("%w: negative token count", ErrIncompleteRecord)
		}
	}
	return rec, nil
}

// Aggregate sums records and prices them. Records whose tool has no price
// are left out of the summary with a warning.
func Aggregate(recs []models.CostRecord, prices PriceTable, logger *slog.Logger) models.CostSummary {
	if logger == nil {
		logger = slog.Default()
	}

	var (
		sum        models.CostSummary
		modelCost  float64
		searchCost float64
		unpriced   = map[string]struct{}{}
	)

	for _, rec := range recs {
		switch rec.Kind {
		case models.CostKindSearch:
			price, ok := prices.Search[rec.Tool]
			if !ok {
				unpriced[rec.Tool] = struct{}{}
				continue
			}
			sum.Credits += rec.Credits
			searchCost += price.SearchCost(rec.Credits)
		default:
			price, ok := prices.Models[rec.Tool]
			if !ok {
				unpriced[rec.Tool] = struct{}{}
				continue
			}
			sum.PromptTokens += rec.PromptTokens
			sum.CompletionTokens += rec.CompletionTokens
			sum.TotalTokens += rec.TotalTokens
			modelCost += price.ModelCost(rec.PromptTokens, rec.CompletionTokens)
		}
		sum.Records++
	}

	for tool := range unpriced {
		sum.UnpricedTools = append(sum.UnpricedTools, tool)
	}
	sort.Strings(sum.UnpricedTools)
	for _, tool := range sum.UnpricedTools {
		logger.Warn("no price for tool, excluded from cost", "tool", tool)
	}

	sum.ModelCost = Round2(modelCost)
	sum.SearchCost = Round2(searchCost)
	sum.TotalCost = Round2(sum.ModelCost + sum.SearchCost)
	return sum
}

// Summarize reads both ledgers of a (tool, dataset, model) triple and prices them.
func Summarize(root, tool, dataset, model string, prices PriceTable, logger *slog.Logger) (models.CostSummary, error) {
	if logger == nil {
		logger = slog.Default()
	}
	dir := Dir(root, tool, dataset, model)

	var all []models.CostRecord
	skipped := 0
	for _, src := range []struct {
		file string
		kind models.CostKind
	}{
		{ModelCostFile, models.CostKindModel},
		{SearchCostFile, models.CostKindSearch},
	} {
		path := filepath.Join(dir, src.file)
		recs, bad, err := ReadRecords(path, src.kind)
		if err != nil {
			return models.CostSummary{}, err
		}
		for _, e := range bad {
			logger.Warn("skipping malformed cost record", "error", e)
		}
		skipped += len(bad)
		if src.kind == models.CostKindModel && model != "" {
			warnModelMismatch(recs, model, path, logger)
		}
		all = append(all, recs...)
	}

	sum := Aggregate(all, prices, logger)
	sum.Tool = tool
	sum.Dataset = dataset
	sum.Model = model
	sum.Skipped = skipped
	return sum, nil
}

// warnModelMismatch logs the model names in a ledger that differ from the
// model of the directory it was found in.
func warnModelMismatch(recs []models.CostRecord, model, path string, logger *slog.Logger) {
	found := map[string]struct{}{}
	for _, r := range recs {
		if r.Tool != model {
			found[r.Tool] = struct{}{}
		}
	}
	if len(found) == 0 {
		return
	}
	names := make([]string, 0, len(found))
	for n := range found {
		names = append(names, n)
	}
	sort.Strings(names)
	logger.Warn("model name mismatch in cost ledger", "path", path, "expected", model, "found", names)
}

// Round2 rounds half away from zero to two decimal places.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}

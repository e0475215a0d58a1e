// Package report scores fact-checking results against their gold labels and
// prices the runs that produced them.
package report

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"time"

	"github.com/raphaelgruber/urdufact-go/internal/cost"
	"github.com/raphaelgruber/urdufact-go/internal/models"
	"github.com/raphaelgruber/urdufact-go/internal/records"
)

// ResultsFile is the evaluation output file name inside a run directory.
const ResultsFile = "results.json"

// Options selects what a report covers.
type Options struct {
	Root          string   // {root}/{tool}/{dataset}/{model}/results.json
	Tools         []string // empty means every tool directory
	LabelField    string   // default "label"
	ResponseField string   // default "response"
	Prices        cost.PriceTable
	Logger        *slog.Logger
}

// Entry is the report for one (tool, dataset, model) triple.
type Entry struct {
	Tool      string `json:"tool"`
	Dataset   string `json:"dataset"`
	Model     string `json:"model"`
	Evaluated int    `json:"evaluated"`
	Unlabeled int    `json:"unlabeled"`

	Classification *Classification    `json:"classification_report"`
	Cost           models.CostSummary `json:"cost"`
}

// Report is the full evaluation report.
type Report struct {
	GeneratedAt time.Time `json:"generated_at"`
	Entries     []Entry   `json:"entries"`
}

// Build walks the results root and scores every run directory.
func Build(opts Options) (*Report, error) {
	if opts.LabelField == "" {
		opts.LabelField = models.FieldLabel
	}
	if opts.ResponseField == "" {
		opts.ResponseField = models.FieldResponse
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Prices.Models == nil && opts.Prices.Search == nil {
		opts.Prices = cost.DefaultPrices()
	}

	tools := opts.Tools
	if len(tools) == 0 {
		var err error
		if tools, err = subdirs(opts.Root); err != nil {
			return nil, err
		}
	}

	r := &Report{GeneratedAt: time.Now().UTC()}
	for _, tool := range tools {
		datasets, err := subdirs(filepath.Join(opts.Root, tool))
		if err != nil {
			return nil, err
		}
		for _, dataset := range datasets {
			modelDirs, err := subdirs(filepath.Join(opts.Root, tool, dataset))
			if err != nil {
				return nil, err
			}
			for _, model := range modelDirs {
				e, err := buildEntry(opts, tool, dataset, model)
				if err != nil {
					return nil, err
				}
				r.Entries = append(r.Entries, e)
			}
		}
	}
	return r, nil
}

func buildEntry(opts Options, tool, dataset, model string) (Entry, error) {
	logger := opts.Logger.With("tool", tool, "dataset", dataset, "model", model)
	e := Entry{Tool: tool, Dataset: dataset, Model: model}

	path := filepath.Join(opts.Root, tool, dataset, model, ResultsFile)
	items, err := records.Load(path)
	switch {
	case errors.Is(err, os.ErrNotExist), errors.Is(err, records.ErrEmpty):
		logger.Warn("no results", "path", path)
	case err != nil:
		return Entry{}, fmt.Errorf("load results %s: %w", path, err)
	}

	var gold, pred []string
	for _, it := range items {
		g, gok := it.Bool(opts.LabelField)
		p, pok := it.Bool(opts.ResponseField)
		if !gok || !pok {
			e.Unlabeled++
			continue
		}
		gold = append(gold, strconv.FormatBool(g))
		pred = append(pred, strconv.FormatBool(p))
	}
	e.Evaluated = len(gold)
	if e.Unlabeled > 0 {
		logger.Warn("results without a boolean label or response", "count", e.Unlabeled)
	}

	if c, err := Classify(gold, pred); err != nil {
		logger.Warn("cannot compute classification report", "error", err)
	} else {
		e.Classification = c
	}

	sum, err := cost.Summarize(opts.Root, tool, dataset, model, opts.Prices, logger)
	if err != nil {
		return Entry{}, fmt.Errorf("summarize cost: %w", err)
	}
	e.Cost = sum
	return e, nil
}

// subdirs returns the sorted names of the directories in dir. A missing dir
// has none.
func subdirs(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read dir: %w", err)
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() {
			out = append(out, e.Name())
		}
	}
	slices.Sort(out)
	return out, nil
}

// WriteJSON writes the report with 4-space indentation.
func (r *Report) WriteJSON(path string) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "    ")
	if err := enc.Encode(r); err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	return os.WriteFile(path, buf.Bytes(), 0o644)
}

// CSVHeader is the column layout of WriteCSV.
var CSVHeader = []string{
	"tool", "dataset", "model", "evaluated", "accuracy",
	"precision", "recall", "f1_score",
	"model_cost", "serper_cost", "total_cost",
}

// Rows flattens the report to one row per entry with macro averages.
// Scores are blank for entries without a classification.
func (r *Report) Rows() [][]string {
	rows := make([][]string, 0, len(r.Entries))
	for _, e := range r.Entries {
		row := []string{e.Tool, e.Dataset, e.Model, strconv.Itoa(e.Evaluated), "", "", "", ""}
		if c := e.Classification; c != nil {
			row[4] = formatFloat(c.Accuracy)
			row[5] = formatFloat(c.MacroAvg.Precision)
			row[6] = formatFloat(c.MacroAvg.Recall)
			row[7] = formatFloat(c.MacroAvg.F1)
		}
		row = append(row, formatFloat(e.Cost.ModelCost), formatFloat(e.Cost.SearchCost), formatFloat(e.Cost.TotalCost))
		rows = append(rows, row)
	}
	return rows
}

// WriteCSV writes the flattened report.
func (r *Report) WriteCSV(path string) error {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(CSVHeader); err != nil {
		return err
	}
	if err := w.WriteAll(r.Rows()); err != nil {
		return fmt.Errorf("write csv: %w", err)
	}
	return os.WriteFile(path, buf.Bytes(), 0o644)
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}

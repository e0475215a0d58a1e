// Package resume rebuilds the set of completed item ids from a prior output.
package resume

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/raphaelgruber/urdufact-go/internal/models"
	"github.com/raphaelgruber/urdufact-go/internal/records"
)

// Validator decides whether a previously persisted item is complete.
type Validator interface {
	Validate(item models.WorkItem) error
}

// Index is the membership set of completed ids plus the resumed items.
type Index struct {
	ids     map[string]struct{}
	entries []entry

	// Invalidated counts resumed entries dropped by the validator.
	Invalidated int
	// Duplicates counts resumed entries dropped because their id was already seen.
	Duplicates int
}

type entry struct {
	item  models.WorkItem
	valid bool
}

// New returns an empty index.
func New() *Index {
	return &Index{ids: make(map[string]struct{})}
}

// Build loads the output at path. A missing or empty file yields an empty
// index. When v is non-nil, entries it rejects are left out so they are
// processed again.
func Build(path string, v Validator, logger *slog.Logger) (*Index, error) {
	if logger == nil {
		logger = slog.Default()
	}

	idx := New()

	items, err := records.Load(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		logger.Debug("no previous output", "path", path)
		return idx, nil
	case errors.Is(err, records.ErrEmpty):
		logger.Info("previous output is empty", "path", path)
		return idx, nil
	case err != nil:
		return nil, fmt.Errorf("load previous output: %w", err)
	}

	for _, item := range items {
		if idx.Contains(item.ID) {
			idx.Duplicates++
			logger.Warn("duplicate id in previous output, keeping first", "id", item.ID, "path", path)
			continue
		}
		if v != nil {
			if err := v.Validate(item); err != nil {
				idx.Invalidated++
				logger.Warn("resumed entry is incomplete, will reprocess", "id", item.ID, "error", err)
				idx.entries = append(idx.entries, entry{item: item})
				continue
			}
		}
		idx.Add(item.ID)
		idx.entries = append(idx.entries, entry{item: item, valid: true})
	}

	logger.Info("resume index built",
		"path", path,
		"completed", idx.Len(),
		"invalidated", idx.Invalidated,
		"duplicates", idx.Duplicates)
	return idx, nil
}

// Contains reports whether id was already completed.
func (i *Index) Contains(id string) bool {
	_, ok := i.ids[id]
	return ok
}

// Add marks id as completed.
func (i *Index) Add(id string) {
	i.ids[id] = struct{}{}
}

// Len returns the number of completed ids.
func (i *Index) Len() int {
	return len(i.ids)
}

// Items returns the resumed items in their original order.
func (i *Index) Items() []models.WorkItem {
	out := make([]models.WorkItem, 0, len(i.entries))
	for _, e := range i.entries {
		if e.valid {
			out = append(out, e.item)
		}
	}
	return out
}

// Seed returns the items a run starts its output with, in their original
// order: every completed item, plus rejected items whose id is not in the
// current input. Those cannot be reprocessed by this run and are kept as
// they were rather than lost on the next persist.
func (i *Index) Seed(inputIDs map[string]struct{}) []models.WorkItem {
	out := make([]models.WorkItem, 0, len(i.entries))
	for _, e := range i.entries {
		if !e.valid {
			if _, queued := inputIDs[e.item.ID]; queued || i.Contains(e.item.ID) {
				continue
			}
		}
		out = append(out, e.item)
	}
	return out
}

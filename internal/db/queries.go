package db

import (
	"context"
	"fmt"
	"time"

	"github.com/raphaelgruber/urdufact-go/internal/models"
)

// UsageRow is the summed usage of one model or search tool within a
// (pipeline, dataset, model) triple.
type UsageRow struct {
	Pipeline         string `json:"pipeline"`
	Dataset          string `json:"dataset"`
	Model            string `json:"model"`
	Kind             string `json:"kind"`
	ToolName         string `json:"tool_name"`
	Calls            int64  `json:"calls"`
	PromptTokens     int64  `json:"prompt_tokens"`
	CompletionTokens int64  `json:"completion_tokens"`
	TotalTokens      int64  `json:"total_tokens"`
	Credits          int64  `json:"credits_used"`
}

// Record converts a row into a cost record that prices like the calls it sums.
func (r UsageRow) Record() models.CostRecord {
	return models.CostRecord{
		Tool:             r.ToolName,
		PromptTokens:     r.PromptTokens,
		CompletionTokens: r.CompletionTokens,
		TotalTokens:      r.TotalTokens,
		Credits:          r.Credits,
		Kind:             models.CostKind(r.Kind),
	}
}

// RecordCost stores one cost ledger line for the given pipeline triple.
func (c *Client) RecordCost(ctx context.Context, rec models.CostRecord, pipeline, dataset, model string) error {
	kind := rec.Kind
	if kind == "" {
		kind = models.CostKindModel
	}
	ts := rec.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	var runID *string
	if rec.RunID != "" {
		runID = &rec.RunID
	}

	sql := `
		CREATE cost_record SET
			pipeline = $pipeline,
			dataset = $dataset,
			model = $model,
			kind = $kind,
			tool_name = $tool_name,
			prompt_tokens = $prompt_tokens,
			completion_tokens = $completion_tokens,
			total_tokens = $total_tokens,
			credits_used = $credits_used,
			run_id = $run_id,
			ts = $ts
	`
	vars := map[string]any{
		"pipeline":          pipeline,
		"dataset":           dataset,
		"model":             model,
		"kind":              string(kind),
		"tool_name":         rec.Tool,
		"prompt_tokens":     rec.PromptTokens,
		"completion_tokens": rec.CompletionTokens,
		"total_tokens":      rec.TotalTokens,
		"credits_used":      rec.Credits,
		"run_id":            runID,
		"ts":                ts,
	}
	err := retryOnConflict(ctx, func() error {
		_, err := query[any](ctx, c, sql, vars)
		return err
	})
	if err != nil {
		return fmt.Errorf("record cost: %w", err)
	}
	return nil
}

// UsageSummary sums cost records per triple and tool. A non-nil since limits
// the sum to records at or after that time; a non-empty pipeline filters by
// pipeline.
func (c *Client) UsageSummary(ctx context.Context, pipeline string, since *time.Time) ([]UsageRow, error) {
	where := "WHERE true"
	vars := map[string]any{}
	if pipeline != "" {
		where += " AND pipeline = $pipeline"
		vars["pipeline"] = pipeline
	}
	if since != nil {
		where += " AND ts >= $since"
		vars["since"] = *since
	}

	sql := fmt.Sprintf(`
		SELECT
			pipeline, dataset, model, kind, tool_name,
			count() AS calls,
			math::sum(prompt_tokens) AS prompt_tokens,
			math::sum(completion_tokens) AS completion_tokens,
			math::sum(total_tokens) AS total_tokens,
			math::sum(credits_used) AS credits_used
		FROM cost_record %s
		GROUP BY pipeline, dataset, model, kind, tool_name
		ORDER BY pipeline, dataset, model, kind, tool_name
	`, where)

	results, err := query[[]UsageRow](ctx, c, sql, vars)
	if err != nil {
		return nil, fmt.Errorf("usage summary: %w", err)
	}
	if results == nil || len(*results) == 0 {
		return []UsageRow{}, nil
	}
	return (*results)[0].Result, nil
}

// SaveRun creates or replaces the record of a run.
func (c *Client) SaveRun(ctx context.Context, run models.RunSummary) error {
	sql := `
		UPSERT type::record("run", $run_id) SET
			run_id = $run_id,
			tool = $tool,
			dataset = $dataset,
			model = $model,
			status = $status,
			error = $error,
			total = $total,
			processed = $processed,
			skipped = $skipped,
			failed = $failed,
			resumed = $resumed,
			invalidated = $invalidated,
			failed_ids = $failed_ids,
			started_at = $started_at,
			completed_at = $completed_at
	`
	var failedIDs *[]string
	if len(run.FailedIDs) > 0 {
		failedIDs = &run.FailedIDs
	}
	_, err := query[any](ctx, c, sql, map[string]any{
		"run_id":       run.RunID,
		"tool":         run.Tool,
		"dataset":      run.Dataset,
		"model":        run.Model,
		"status":       string(run.Status),
		"error":        run.Error,
		"total":        run.Total,
		"processed":    run.Processed,
		"skipped":      run.Skipped,
		"failed":       run.Failed,
		"resumed":      run.Resumed,
		"invalidated":  run.Invalidated,
		"failed_ids":   failedIDs,
		"started_at":   run.StartedAt,
		"completed_at": run.CompletedAt,
	})
	if err != nil {
		return fmt.Errorf("save run: %w", err)
	}
	return nil
}

// GetRun returns a run by id or ErrNotFound.
func (c *Client) GetRun(ctx context.Context, runID string) (*models.RunSummary, error) {
	sql := `SELECT * OMIT id FROM type::record("run", $run_id)`
	results, err := query[[]models.RunSummary](ctx, c, sql, map[string]any{"run_id": runID})
	if err != nil {
		return nil, fmt.Errorf("get run: %w", err)
	}
	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return nil, fmt.Errorf("run %s: %w", runID, ErrNotFound)
	}
	return &(*results)[0].Result[0], nil
}

// ListRuns returns the most recent runs first. Empty tool or dataset match
// everything; limit <= 0 means 20.
func (c *Client) ListRuns(ctx context.Context, tool, dataset string, limit int) ([]models.RunSummary, error) {
	if limit <= 0 {
		limit = 20
	}
	where := "WHERE true"
	vars := map[string]any{"limit": limit}
	if tool != "" {
		where += " AND tool = $tool"
		vars["tool"] = tool
	}
	if dataset != "" {
		where += " AND dataset = $dataset"
		vars["dataset"] = dataset
	}

	sql := fmt.Sprintf(`SELECT * OMIT id FROM run %s ORDER BY started_at DESC LIMIT $limit`, where)
	results, err := query[[]models.RunSummary](ctx, c, sql, vars)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	if results == nil || len(*results) == 0 {
		return []models.RunSummary{}, nil
	}
	return (*results)[0].Result, nil
}

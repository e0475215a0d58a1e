package models

import (
	"encoding/json"
	"time"
)

// CostKind distinguishes model-call records from search-call records.
type CostKind string

const (
	CostKindModel  CostKind = "model"
	CostKindSearch CostKind = "search"
)

// Usage is the token accounting of one model call.
type Usage struct {
	PromptTokens     int64
	CompletionTokens int64
	TotalTokens      int64
}

// Billable reports whether the call consumed any tokens.
func (u Usage) Billable() bool {
	return u.PromptTokens > 0 || u.CompletionTokens > 0 || u.TotalTokens > 0
}

// CostRecord is one line of a cost ledger. Model-call lines always carry
// the three token counts; search lines carry credits_used instead.
type CostRecord struct {
	Tool             string    `json:"tool_name"`
	PromptTokens     int64     `json:"prompt_tokens,omitempty"`
	CompletionTokens int64     `json:"completion_tokens,omitempty"`
	TotalTokens      int64     `json:"total_tokens,omitempty"`
	Credits          int64     `json:"credits_used,omitempty"`
	RunID            string    `json:"run_id,omitempty"`
	Timestamp        time.Time `json:"ts,omitzero"`

	// Set by readers from the ledger file the record came from.
	Kind CostKind `json:"-"`
}

type modelLine struct {
	Tool             string    `json:"tool_name"`
	PromptTokens     int64     `json:"prompt_tokens"`
	CompletionTokens int64     `json:"completion_tokens"`
	TotalTokens      int64     `json:"total_tokens"`
	RunID            string    `json:"run_id,omitempty"`
	Timestamp        time.Time `json:"ts,omitzero"`
}

type searchLine struct {
	Tool      string    `json:"tool_name"`
	Credits   int64     `json:"credits_used"`
	RunID     string    `json:"run_id,omitempty"`
	Timestamp time.Time `json:"ts,omitzero"`
}

// MarshalJSON writes the line shape of the record's kind. Records without a
// kind are written as model calls.
func (r CostRecord) MarshalJSON() ([]byte, error) {
	if r.Kind == CostKindSearch {
		return json.Marshal(searchLine{Tool: r.Tool, Credits: r.Credits, RunID: r.RunID, Timestamp: r.Timestamp})
	}
	return json.Marshal(modelLine{
		Tool:             r.Tool,
		PromptTokens:     r.PromptTokens,
		CompletionTokens: r.CompletionTokens,
		TotalTokens:      r.TotalTokens,
		RunID:            r.RunID,
		Timestamp:        r.Timestamp,
	})
}

// UnmarshalJSON also accepts the older "model" and "google_serper_credits" keys.
func (r *CostRecord) UnmarshalJSON(data []byte) error {
	type plain CostRecord
	var aux struct {
		plain
		Model        string `json:"model"`
		SerperCredit *int64 `json:"google_serper_credits"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	*r = CostRecord(aux.plain)
	if r.Tool == "" {
		r.Tool = aux.Model
	}
	if aux.SerperCredit != nil && r.Credits == 0 {
		r.Credits = *aux.SerperCredit
	}
	return nil
}

// CostSummary is the aggregated cost of one (tool, dataset, model) triple.
type CostSummary struct {
	Tool    string `json:"tool"`
	Dataset string `json:"dataset"`
	Model   string `json:"model,omitempty"`

	PromptTokens     int64 `json:"prompt_tokens"`
	CompletionTokens int64 `json:"completion_tokens"`
	TotalTokens      int64 `json:"total_tokens"`
	Credits          int64 `json:"credits_used"`

	ModelCost  float64 `json:"model_cost"`
	SearchCost float64 `json:"search_cost"`
	TotalCost  float64 `json:"total_cost"`

	Records       int      `json:"records"`
	Skipped       int      `json:"skipped"`
	UnpricedTools []string `json:"unpriced_tools,omitempty"`
}

package models

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorkItemUnmarshalKeepsOrderAndExtras(t *testing.T) {
	input := `{"problem":"p","id":7,"metadata":{"topic":"Art","urls":["a"]},"answer":"x"}`

	var item WorkItem
	require.NoError(t, json.Unmarshal([]byte(input), &item))

	assert.Equal(t, "7", item.ID)
	assert.Equal(t, []string{"problem", "id", "metadata", "answer"}, item.Keys())

	out, err := json.Marshal(item)
	require.NoError(t, err)
	assert.JSONEq(t, input, string(out))
	assert.Equal(t, `{"problem":"p","id":7,"metadata":{"topic":"Art","urls":["a"]},"answer":"x"}`, string(out))
}

func TestWorkItemID(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    string
		wantErr bool
	}{
		{"string id", `{"id":"abc"}`, "abc", false},
		{"numeric id", `{"id":12}`, "12", false},
		{"missing id", `{"question":"q"}`, "", true},
		{"empty id", `{"id":""}`, "", true},
		{"null id", `{"id":null}`, "", true},
		{"bool id", `{"id":true}`, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var item WorkItem
			err := json.Unmarshal([]byte(tt.in), &item)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrMissingID)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, item.ID)
		})
	}
}

func TestWorkItemMerge(t *testing.T) {
	var item WorkItem
	require.NoError(t, json.Unmarshal([]byte(`{"id":"1","question":"Who?","question_urdu":"old"}`), &item))

	merged, err := item.Merge(Enrichment{
		{Name: FieldQuestionUrdu, Value: "کون؟"},
		{Name: FieldAnswerUrdu, Value: "وہ"},
		{Name: FieldID, Value: "ignored"},
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"id", "question", "question_urdu", "answer_urdu"}, merged.Keys())
	assert.Equal(t, "کون؟", merged.Text(FieldQuestionUrdu))
	assert.Equal(t, "وہ", merged.Text(FieldAnswerUrdu))
	assert.Equal(t, "1", merged.ID)

	// original untouched
	assert.Equal(t, "old", item.Text(FieldQuestionUrdu))
	assert.False(t, item.Has(FieldAnswerUrdu))
}

func TestWorkItemMarshalDoesNotEscape(t *testing.T) {
	item, err := NewWorkItem("u1", Field{Name: FieldClaimUrdu, Value: "پاکستان <اور> & بھارت"})
	require.NoError(t, err)

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	require.NoError(t, enc.Encode(item))
	assert.Contains(t, buf.String(), "پاکستان <اور> & بھارت")
}

func TestWorkItemBool(t *testing.T) {
	item, err := NewWorkItem("1",
		Field{Name: "a", Value: true},
		Field{Name: "b", Value: "False"},
		Field{Name: "c", Value: "maybe"},
	)
	require.NoError(t, err)

	v, ok := item.Bool("a")
	assert.True(t, ok)
	assert.True(t, v)

	v, ok = item.Bool("b")
	assert.True(t, ok)
	assert.False(t, v)

	_, ok = item.Bool("c")
	assert.False(t, ok)

	_, ok = item.Bool("missing")
	assert.False(t, ok)
}

func TestWorkItemText(t *testing.T) {
	item, err := NewWorkItem("1",
		Field{Name: "s", Value: "text"},
		Field{Name: "n", Value: 42},
		Field{Name: "null", Value: nil},
	)
	require.NoError(t, err)

	assert.Equal(t, "text", item.Text("s"))
	assert.Equal(t, "42", item.Text("n"))
	assert.Equal(t, "", item.Text("null"))
	assert.Equal(t, "", item.Text("missing"))
}

func TestCostRecordMarshalShapes(t *testing.T) {
	ts := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	tests := []struct {
		name string
		rec  CostRecord
		want string
	}{
		{
			name: "model call keeps zero counts",
			rec:  CostRecord{Tool: "gpt-4o", PromptTokens: 12, TotalTokens: 12, RunID: "r1", Timestamp: ts, Kind: CostKindModel},
			want: `{"tool_name":"gpt-4o","prompt_tokens":12,"completion_tokens":0,"total_tokens":12,"run_id":"r1","ts":"2025-01-02T03:04:05Z"}`,
		},
		{
			name: "no kind is a model call",
			rec:  CostRecord{Tool: "gpt-4o"},
			want: `{"tool_name":"gpt-4o","prompt_tokens":0,"completion_tokens":0,"total_tokens":0}`,
		},
		{
			name: "search call",
			rec:  CostRecord{Tool: "google_serper", Credits: 2, Timestamp: ts, Kind: CostKindSearch},
			want: `{"tool_name":"google_serper","credits_used":2,"ts":"2025-01-02T03:04:05Z"}`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := json.Marshal(tt.rec)
			require.NoError(t, err)
			assert.JSONEq(t, tt.want, string(out))
		})
	}
}

func TestCostRecordLegacyKeys(t *testing.T) {
	var rec CostRecord
	require.NoError(t, json.Unmarshal([]byte(`{"model":"gpt-4o","prompt_tokens":10,"completion_tokens":5,"total_tokens":15}`), &rec))
	assert.Equal(t, "gpt-4o", rec.Tool)
	assert.Equal(t, int64(15), rec.TotalTokens)

	var search CostRecord
	require.NoError(t, json.Unmarshal([]byte(`{"google_serper_credits":2}`), &search))
	assert.Equal(t, int64(2), search.Credits)
}

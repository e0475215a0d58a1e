package report

import (
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name      string
		gold      []string
		pred      []string
		accuracy  float64
		macro     ClassMetrics
		trueClass ClassMetrics
	}{
		{
			name:      "perfect",
			gold:      []string{"true", "false", "true"},
			pred:      []string{"true", "false", "true"},
			accuracy:  1,
			macro:     ClassMetrics{Precision: 1, Recall: 1, F1: 1, Support: 3},
			trueClass: ClassMetrics{Precision: 1, Recall: 1, F1: 1, Support: 2},
		},
		{
			// true: tp=2 fp=1 fn=1, false: tp=0 fp=1 fn=1
			name:      "mixed",
			gold:      []string{"true", "true", "true", "false"},
			pred:      []string{"true", "true", "false", "true"},
			accuracy:  0.5,
			macro:     ClassMetrics{Precision: 0.33, Recall: 0.33, F1: 0.33, Support: 4},
			trueClass: ClassMetrics{Precision: 0.67, Recall: 0.67, F1: 0.67, Support: 3},
		},
		{
			// false never predicted: its precision is zero rather than undefined
			name:      "zero division",
			gold:      []string{"true", "false"},
			pred:      []string{"true", "true"},
			accuracy:  0.5,
			macro:     ClassMetrics{Precision: 0.25, Recall: 0.5, F1: 0.33, Support: 2},
			trueClass: ClassMetrics{Precision: 0.5, Recall: 1, F1: 0.67, Support: 1},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := Classify(tt.gold, tt.pred)
			require.NoError(t, err)
			assert.Equal(t, tt.accuracy, c.Accuracy)
			assert.Equal(t, tt.macro, c.MacroAvg)
			assert.Equal(t, tt.trueClass, c.Classes["true"])
		})
	}
}

func TestClassifyErrors(t *testing.T) {
	_, err := Classify(nil, nil)
	assert.ErrorIs(t, err, ErrNoSamples)

	_, err = Classify([]string{"true"}, nil)
	assert.Error(t, err)
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestBuildAndWrite(t *testing.T) {
	root := t.TempDir()
	run := filepath.Join(root, "evaluate_llm", "simpleqa", "gpt-4o")
	writeFile(t, filepath.Join(run, ResultsFile), `[
    {"id": 1, "label": "true", "response": true},
    {"id": 2, "label": "false", "response": true},
    {"id": 3, "label": "false", "response": false},
    {"id": 4, "label": "true", "response": false},
    {"id": 5, "label": "true"}
]`)
	writeFile(t, filepath.Join(run, "model_cost.jsonl"),
		`{"tool_name":"gpt-4o","prompt_tokens":1000000,"completion_tokens":1000000,"total_tokens":2000000}`+"\n"+
			`broken`+"\n")
	writeFile(t, filepath.Join(run, "serper_cost.jsonl"), `{"tool_name":"serper","credits_used":50000}`+"\n")

	// cost ledger but no results yet
	writeFile(t, filepath.Join(root, "evaluate_llm", "simpleqa", "gpt-4.1", "model_cost.jsonl"),
		`{"tool_name":"gpt-4.1","prompt_tokens":1000000,"completion_tokens":0,"total_tokens":1000000}`+"\n")

	r, err := Build(Options{Root: root})
	require.NoError(t, err)
	require.Len(t, r.Entries, 2)

	pending := r.Entries[0]
	assert.Equal(t, "gpt-4.1", pending.Model)
	assert.Nil(t, pending.Classification)
	assert.Equal(t, 2.0, pending.Cost.TotalCost)

	e := r.Entries[1]
	assert.Equal(t, "gpt-4o", e.Model)
	assert.Equal(t, 4, e.Evaluated)
	assert.Equal(t, 1, e.Unlabeled)
	require.NotNil(t, e.Classification)
	assert.Equal(t, 0.5, e.Classification.Accuracy)
	assert.Equal(t, 12.5, e.Cost.ModelCost)
	assert.Equal(t, 52.5, e.Cost.SearchCost)
	assert.Equal(t, 65.0, e.Cost.TotalCost)
	assert.Equal(t, 1, e.Cost.Skipped)

	jsonPath := filepath.Join(t.TempDir(), "evaluation_report.json")
	require.NoError(t, r.WriteJSON(jsonPath))
	data, err := os.ReadFile(jsonPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "\n    \"entries\": [")
	var decoded Report
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Len(t, decoded.Entries, 2)

	csvPath := filepath.Join(t.TempDir(), "evaluation_report.csv")
	require.NoError(t, r.WriteCSV(csvPath))
	f, err := os.Open(csvPath)
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, CSVHeader, rows[0])
	assert.Equal(t, []string{"evaluate_llm", "simpleqa", "gpt-4.1", "0", "", "", "", "", "2.00", "0.00", "2.00"}, rows[1])
	assert.Equal(t, []string{"evaluate_llm", "simpleqa", "gpt-4o", "4", "0.50", "0.50", "0.50", "0.50", "12.50", "52.50", "65.00"}, rows[2])
}

func TestBuildToolFilter(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "a", "d", "m", ResultsFile), `[{"id": 1, "label": "true", "response": true}]`)
	writeFile(t, filepath.Join(root, "b", "d", "m", ResultsFile), `[{"id": 1, "label": "true", "response": true}]`)

	r, err := Build(Options{Root: root, Tools: []string{"b", "missing"}})
	require.NoError(t, err)
	require.Len(t, r.Entries, 1)
	assert.Equal(t, "b", r.Entries[0].Tool)

	empty, err := Build(Options{Root: filepath.Join(root, "nowhere")})
	require.NoError(t, err)
	assert.Empty(t, empty.Entries)
}

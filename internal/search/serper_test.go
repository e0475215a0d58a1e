package search

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/raphaelgruber/urdufact-go/internal/config"
	"github.com/raphaelgruber/urdufact-go/internal/metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type creditLog struct {
	mu      sync.Mutex
	tools   []string
	credits []int64
}

func (c *creditLog) RecordSearch(_ context.Context, tool string, credits int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tools = append(c.tools, tool)
	c.credits = append(c.credits, credits)
	return nil
}

func TestClientSearch(t *testing.T) {
	var got serperRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "secret", r.Header.Get("X-API-KEY"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"searchParameters": {"q": "ignored"},
			"organic": [
				{"title": "لاہور", "link": "https://example.com/a", "snippet": "لاہور پنجاب کا دارالحکومت ہے", "position": 1},
				{"title": "B", "link": "https://example.com/b", "snippet": "second"}
			],
			"credits": 2
		}`))
	}))
	defer srv.Close()

	credits := &creditLog{}
	collector := metrics.NewCollector()
	c, err := NewClient(config.SearchConfig{SerperAPIKey: "secret", SerperURL: srv.URL, Results: 3, Country: "pk", Language: "ur"},
		WithCreditRecorder(credits), WithMetrics(collector))
	require.NoError(t, err)

	results, err := c.Search(context.Background(), "پنجاب کا دارالحکومت")
	require.NoError(t, err)

	assert.Equal(t, serperRequest{Q: "پنجاب کا دارالحکومت", GL: "pk", HL: "ur", Num: 3}, got)
	require.Len(t, results, 2)
	assert.Equal(t, "https://example.com/a", results[0].Link)
	assert.Equal(t, "لاہور پنجاب کا دارالحکومت ہے", results[0].Snippet)

	assert.Equal(t, []string{ToolName}, credits.tools)
	assert.Equal(t, []int64{2}, credits.credits)
	require.NotNil(t, collector.Snapshot().Search)
	assert.Equal(t, int64(1), collector.Snapshot().Search.Count)
}

func TestClientSearchDefaultsToOneCredit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"organic": []}`))
	}))
	defer srv.Close()

	credits := &creditLog{}
	c, err := NewClient(config.SearchConfig{SerperAPIKey: "k", SerperURL: srv.URL}, WithCreditRecorder(credits))
	require.NoError(t, err)

	results, err := c.Search(context.Background(), "q")
	require.NoError(t, err)
	assert.Empty(t, results)
	assert.Equal(t, []int64{1}, credits.credits)
}

func TestClientSearchErrors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		fatal  bool
	}{
		{"unauthorized", http.StatusUnauthorized, true},
		{"forbidden", http.StatusForbidden, true},
		{"server error", http.StatusInternalServerError, false},
		{"rate limited", http.StatusTooManyRequests, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				http.Error(w, "nope", tt.status)
			}))
			defer srv.Close()

			credits := &creditLog{}
			c, err := NewClient(config.SearchConfig{SerperAPIKey: "k", SerperURL: srv.URL}, WithCreditRecorder(credits))
			require.NoError(t, err)

			_, err = c.Search(context.Background(), "q")
			var apiErr *APIError
			require.ErrorAs(t, err, &apiErr)
			assert.Equal(t, tt.status, apiErr.StatusCode)
			assert.Equal(t, tt.fatal, apiErr.Fatal())
			assert.Contains(t, apiErr.Body, "nope")
			assert.Empty(t, credits.credits, "failed searches are not billed")
		})
	}
}

func TestNewClientRequiresKey(t *testing.T) {
	_, err := NewClient(config.SearchConfig{})
	assert.ErrorIs(t, err, ErrNoAPIKey)
}

package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/raphaelgruber/urdufact-go/internal/config"
	"github.com/raphaelgruber/urdufact-go/internal/metrics"
	"github.com/raphaelgruber/urdufact-go/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"
)

func TestIsFatalAPIError(t *testing.T) {
	tests := []struct {
		name  string
		err   error
		fatal bool
	}{
		{"nil error", nil, false},
		{"generic error", errors.New("connection reset"), false},
		{"credit balance", errors.New("insufficient credit balance"), true},
		{"rate limit is transient", errors.New("rate limit exceeded"), false},
		{"429 is transient", errors.New("429 Too Many Requests"), false},
		{"quota exceeded", errors.New("quota exceeded for model"), true},
		{"billing issue", errors.New("billing account inactive"), true},
		{"invalid api key", errors.New("invalid api key"), true},
		{"authentication failed", errors.New("authentication failed"), true},
		{"unauthorized", errors.New("unauthorized request"), true},
		{"401 status", errors.New("HTTP 401: not allowed"), true},
		{"403 status", errors.New("HTTP 403: forbidden"), true},
		{"wrapped error", fmt.Errorf("embed: %w", errors.New("credit balance too low")), true},
		{"404 not fatal", errors.New("HTTP 404: not found"), false},
		{"timeout not fatal", errors.New("context deadline exceeded"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := isFatalAPIError(tt.err)
			if got != tt.fatal {
				t.Errorf("isFatalAPIError(%v) = %v, want %v", tt.err, got, tt.fatal)
			}
		})
	}
}

func TestWrapFatalError(t *testing.T) {
	t.Run("wraps fatal error", func(t *testing.T) {
		err := errors.New("invalid api key provided")
		wrapped := wrapFatalError(err)
		if !errors.Is(wrapped, ErrFatalAPI) {
			t.Errorf("expected wrapped error to match ErrFatalAPI")
		}
	})

	t.Run("passes through non-fatal error", func(t *testing.T) {
		err := errors.New("network timeout")
		result := wrapFatalError(err)
		if errors.Is(result, ErrFatalAPI) {
			t.Errorf("non-fatal error should not be wrapped with ErrFatalAPI")
		}
		if result != err {
			t.Errorf("expected original error returned, got %v", result)
		}
	})

	t.Run("nil error", func(t *testing.T) {
		result := wrapFatalError(nil)
		if result != nil {
			t.Errorf("expected nil, got %v", result)
		}
	})
}

// fakeLLM is a langchaingo model returning canned responses.
type fakeLLM struct {
	mu    sync.Mutex
	calls int
	fn    func(call int, messages []llms.MessageContent) (*llms.ContentResponse, error)
}

func (f *fakeLLM) GenerateContent(_ context.Context, messages []llms.MessageContent, _ ...llms.CallOption) (*llms.ContentResponse, error) {
	f.mu.Lock()
	f.calls++
	call := f.calls
	f.mu.Unlock()
	return f.fn(call, messages)
}

func (f *fakeLLM) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, f, prompt, options...)
}

func textResponse(text string, info map[string]any) *llms.ContentResponse {
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: text, GenerationInfo: info}}}
}

type usageSink struct {
	mu    sync.Mutex
	tools []string
	usage []models.Usage
}

func (s *usageSink) RecordModel(_ context.Context, tool string, u models.Usage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tools = append(s.tools, tool)
	s.usage = append(s.usage, u)
	return nil
}

func TestModelCompleteRecordsUsage(t *testing.T) {
	base := &fakeLLM{fn: func(int, []llms.MessageContent) (*llms.ContentResponse, error) {
		return textResponse("سلام", map[string]any{"PromptTokens": 12, "CompletionTokens": 3, "TotalTokens": 15}), nil
	}}
	sink := &usageSink{}
	collector := metrics.NewCollector()
	m := Wrap(base, "gpt-4o", WithUsageRecorder(sink), WithMetrics(collector))

	out, err := m.GenerateWithSystem(context.Background(), "translate", "hello")
	require.NoError(t, err)
	assert.Equal(t, "سلام", out)

	require.Len(t, sink.usage, 1)
	assert.Equal(t, "gpt-4o", sink.tools[0])
	assert.Equal(t, models.Usage{PromptTokens: 12, CompletionTokens: 3, TotalTokens: 15}, sink.usage[0])

	snap := collector.Snapshot()
	require.NotNil(t, snap.LLMGenerate)
	require.NotNil(t, snap.LLMGenerate.Tokens)
	assert.Equal(t, int64(12), snap.LLMGenerate.Tokens.Input)
	assert.Equal(t, int64(0), snap.LLMGenerate.Failures)
}

func TestModelCompleteErrors(t *testing.T) {
	t.Run("no choices", func(t *testing.T) {
		m := Wrap(&fakeLLM{fn: func(int, []llms.MessageContent) (*llms.ContentResponse, error) {
			return &llms.ContentResponse{}, nil
		}}, "m")
		_, err := m.Generate(context.Background(), "x")
		assert.ErrorIs(t, err, ErrNoChoices)
	})

	t.Run("fatal provider error", func(t *testing.T) {
		sink := &usageSink{}
		m := Wrap(&fakeLLM{fn: func(int, []llms.MessageContent) (*llms.ContentResponse, error) {
			return nil, errors.New("HTTP 401: invalid api key")
		}}, "m", WithUsageRecorder(sink))
		_, err := m.Generate(context.Background(), "x")
		assert.ErrorIs(t, err, ErrFatalAPI)
		assert.Empty(t, sink.usage, "failed calls are not billed")
	})
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	assert.Equal(t, []config.Provider{
		config.ProviderAnthropic, config.ProviderBedrock, config.ProviderGemini,
		config.ProviderOllama, config.ProviderOpenAI,
	}, r.Providers())

	_, err := r.New(context.Background(), config.LLMConfig{Provider: "mistral", Model: "x"})
	var perr *UnsupportedProviderError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, config.Provider("mistral"), perr.Provider)
	assert.Contains(t, err.Error(), "openai")

	_, err = r.New(context.Background(), config.LLMConfig{Provider: config.ProviderOpenAI, Model: "gpt-4o"})
	assert.ErrorContains(t, err, "API key required")

	r.Register("fake", func(context.Context, config.LLMConfig) (llms.Model, error) {
		return &fakeLLM{fn: func(int, []llms.MessageContent) (*llms.ContentResponse, error) {
			return textResponse("ok", nil), nil
		}}, nil
	})
	m, err := NewModelFromRegistry(context.Background(), r, config.LLMConfig{Provider: "fake", Model: "fake-1", MaxTokens: 10})
	require.NoError(t, err)
	assert.Equal(t, "fake-1", m.Model())
	out, err := m.Generate(context.Background(), "hi")
	require.NoError(t, err)
	assert.Equal(t, "ok", out)
	assert.NoError(t, m.Close())
}

func TestUsageFromGenerationInfo(t *testing.T) {
	tests := []struct {
		name string
		info map[string]any
		want models.Usage
	}{
		{"openai", map[string]any{"PromptTokens": 10, "CompletionTokens": 5, "TotalTokens": 15}, models.Usage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15}},
		{"anthropic", map[string]any{"InputTokens": 7, "OutputTokens": 2}, models.Usage{PromptTokens: 7, CompletionTokens: 2, TotalTokens: 9}},
		{"bedrock", map[string]any{"input_tokens": int32(4), "output_tokens": int64(8)}, models.Usage{PromptTokens: 4, CompletionTokens: 8, TotalTokens: 12}},
		{"float", map[string]any{"prompt_tokens": 3.0, "completion_tokens": json.Number("1")}, models.Usage{PromptTokens: 3, CompletionTokens: 1, TotalTokens: 4}},
		{"nil", nil, models.Usage{}},
		{"wrong type", map[string]any{"PromptTokens": "many"}, models.Usage{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, UsageFromGenerationInfo(tt.info))
		})
	}
}

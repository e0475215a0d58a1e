// Package llm provides chat models, embeddings and concurrent request
// dispatch on top of langchaingo.
package llm

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/raphaelgruber/urdufact-go/internal/config"
	"github.com/raphaelgruber/urdufact-go/internal/metrics"
	"github.com/raphaelgruber/urdufact-go/internal/models"
	"github.com/tmc/langchaingo/llms"
)

// Completion is the text of the first choice and the call's token usage.
type Completion struct {
	Text  string
	Usage models.Usage
}

// Generator produces a completion for a list of messages.
type Generator interface {
	Complete(ctx context.Context, messages []llms.MessageContent) (Completion, error)
	Model() string
}

// UsageRecorder receives the token usage of every successful call.
// Implemented by cost.Ledger.
type UsageRecorder interface {
	RecordModel(ctx context.Context, tool string, usage models.Usage) error
}

// Model wraps a langchaingo model with call options, usage recording and metrics.
type Model struct {
	llm       llms.Model
	modelName string
	callOpts  []llms.CallOption
	usage     UsageRecorder
	metrics   *metrics.Collector
	logger    *slog.Logger
}

// ModelOption configures a Model.
type ModelOption func(*Model)

// WithUsageRecorder records token usage of every call.
func WithUsageRecorder(r UsageRecorder) ModelOption {
	return func(m *Model) { m.usage = r }
}

// WithMetrics records call timings and token counts.
func WithMetrics(c *metrics.Collector) ModelOption {
	return func(m *Model) { m.metrics = c }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) ModelOption {
	return func(m *Model) { m.logger = l }
}

// WithCallOptions appends langchaingo call options to every request.
func WithCallOptions(opts ...llms.CallOption) ModelOption {
	return func(m *Model) { m.callOpts = append(m.callOpts, opts...) }
}

// NewModel creates a chat model through the default registry.
func NewModel(ctx context.Context, cfg config.LLMConfig, opts ...ModelOption) (*Model, error) {
	return NewModelFromRegistry(ctx, NewRegistry(), cfg, opts...)
}

// NewModelFromRegistry creates a chat model through r.
func NewModelFromRegistry(ctx context.Context, r *Registry, cfg config.LLMConfig, opts ...ModelOption) (*Model, error) {
	base, err := r.New(ctx, cfg)
	if err != nil {
		return nil, err
	}
	callOpts := []llms.CallOption{
		llms.WithTemperature(cfg.Temperature),
	}
	if cfg.TopP > 0 {
		callOpts = append(callOpts, llms.WithTopP(cfg.TopP))
	}
	if cfg.MaxTokens > 0 {
		callOpts = append(callOpts, llms.WithMaxTokens(cfg.MaxTokens))
	}
	return Wrap(base, cfg.Model, append([]ModelOption{WithCallOptions(callOpts...)}, opts...)...), nil
}

// Wrap turns an existing langchaingo model into a Model.
func Wrap(base llms.Model, name string, opts ...ModelOption) *Model {
	m := &Model{
		llm:       base,
		modelName: name,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Complete sends messages and returns the first choice. Usage is recorded
// for every call that returned a response.
func (m *Model) Complete(ctx context.Context, messages []llms.MessageContent) (Completion, error) {
	start := time.Now()
	resp, err := m.llm.GenerateContent(ctx, messages, m.callOpts...)
	duration := time.Since(start)
	if err != nil {
		if m.metrics != nil {
			m.metrics.Observe(metrics.OpLLMGenerate, duration, err)
		}
		m.logger.Debug("model call failed", "model", m.modelName, "duration_ms", duration.Milliseconds(), "error", err)
		return Completion{}, fmt.Errorf("generate: %w", wrapFatalError(err))
	}
	if len(resp.Choices) == 0 {
		return Completion{}, ErrNoChoices
	}

	choice := resp.Choices[0]
	usage := UsageFromGenerationInfo(choice.GenerationInfo)

	if m.metrics != nil {
		m.metrics.RecordLLMUsage(metrics.OpLLMGenerate, duration, usage.PromptTokens, usage.CompletionTokens)
	}
	if m.usage != nil {
		if err := m.usage.RecordModel(ctx, m.modelName, usage); err != nil {
			m.logger.Warn("failed to record model usage", "model", m.modelName, "error", err)
		}
	}

	m.logger.Debug("model call complete",
		"model", m.modelName,
		"duration_ms", duration.Milliseconds(),
		"prompt_tokens", usage.PromptTokens,
		"completion_tokens", usage.CompletionTokens)

	return Completion{Text: choice.Content, Usage: usage}, nil
}

// Generate generates text based on a prompt.
func (m *Model) Generate(ctx context.Context, prompt string) (string, error) {
	c, err := m.Complete(ctx, []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeHuman, prompt),
	})
	return c.Text, err
}

// GenerateWithSystem generates text with a system prompt.
func (m *Model) GenerateWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	c, err := m.Complete(ctx, []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, systemPrompt),
		llms.TextParts(llms.ChatMessageTypeHuman, userPrompt),
	})
	return c.Text, err
}

// Model returns the LLM model name.
func (m *Model) Model() string {
	return m.modelName
}

// Close releases provider resources when the provider holds any.
func (m *Model) Close() error {
	if c, ok := m.llm.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

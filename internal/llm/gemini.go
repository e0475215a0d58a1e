package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"github.com/raphaelgruber/urdufact-go/internal/config"
	"github.com/tmc/langchaingo/llms"
	"google.golang.org/api/option"
)

// geminiModel adapts the Gemini SDK to llms.Model so it can sit in the
// registry beside the langchaingo providers.
type geminiModel struct {
	client *genai.Client
	model  string
}

func newGemini(ctx context.Context, cfg config.LLMConfig) (llms.Model, error) {
	if cfg.GeminiAPIKey == "" {
		return nil, errors.New("Gemini API key required")
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(cfg.GeminiAPIKey))
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	return &geminiModel{client: client, model: cfg.Model}, nil
}

// GenerateContent sends system messages as the system instruction and every
// other text part as user content.
func (g *geminiModel) GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	var opts llms.CallOptions
	for _, o := range options {
		o(&opts)
	}

	m := g.client.GenerativeModel(g.model)
	m.SetTemperature(float32(opts.Temperature))
	if opts.TopP > 0 {
		m.SetTopP(float32(opts.TopP))
	}
	if opts.MaxTokens > 0 {
		m.SetMaxOutputTokens(int32(opts.MaxTokens))
	}
	if opts.JSONMode {
		m.ResponseMIMEType = "application/json"
	}

	var system, parts []genai.Part
	for _, msg := range messages {
		for _, p := range msg.Parts {
			text, ok := p.(llms.TextContent)
			if !ok {
				continue
			}
			if msg.Role == llms.ChatMessageTypeSystem {
				system = append(system, genai.Text(text.Text))
			} else {
				parts = append(parts, genai.Text(text.Text))
			}
		}
	}
	if len(system) > 0 {
		m.SystemInstruction = &genai.Content{Parts: system}
	}

	resp, err := m.GenerateContent(ctx, parts...)
	if err != nil {
		return nil, fmt.Errorf("gemini generate: %w", err)
	}

	info := map[string]any{}
	if u := resp.UsageMetadata; u != nil {
		info["PromptTokens"] = int64(u.PromptTokenCount)
		info["CompletionTokens"] = int64(u.CandidatesTokenCount)
		info["TotalTokens"] = int64(u.TotalTokenCount)
	}

	choices := make([]*llms.ContentChoice, 0, len(resp.Candidates))
	for _, c := range resp.Candidates {
		var sb strings.Builder
		if c.Content != nil {
			for _, part := range c.Content.Parts {
				if t, ok := part.(genai.Text); ok {
					sb.WriteString(string(t))
				}
			}
		}
		choices = append(choices, &llms.ContentChoice{
			Content:        sb.String(),
			StopReason:     c.FinishReason.String(),
			GenerationInfo: info,
		})
	}
	return &llms.ContentResponse{Choices: choices}, nil
}

// Call generates from a single prompt.
func (g *geminiModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, g, prompt, options...)
}

// Close releases the SDK client.
func (g *geminiModel) Close() error {
	return g.client.Close()
}

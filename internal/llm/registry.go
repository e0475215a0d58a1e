package llm

import (
	"context"
	"errors"
	"fmt"
	"slices"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/raphaelgruber/urdufact-go/internal/config"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/anthropic"
	"github.com/tmc/langchaingo/llms/bedrock"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
)

// Factory builds a chat model for one provider.
type Factory func(ctx context.Context, cfg config.LLMConfig) (llms.Model, error)

// Registry maps provider names to model factories.
type Registry struct {
	factories map[config.Provider]Factory
}

// NewRegistry returns a registry with every built-in provider.
func NewRegistry() *Registry {
	r := &Registry{factories: make(map[config.Provider]Factory)}
	r.Register(config.ProviderOpenAI, newOpenAI)
	r.Register(config.ProviderAnthropic, newAnthropic)
	r.Register(config.ProviderOllama, newOllama)
	r.Register(config.ProviderBedrock, newBedrock)
	r.Register(config.ProviderGemini, newGemini)
	return r
}

// Register adds or replaces the factory for a provider.
func (r *Registry) Register(p config.Provider, f Factory) {
	r.factories[p] = f
}

// Providers returns the registered provider names, sorted.
func (r *Registry) Providers() []config.Provider {
	out := make([]config.Provider, 0, len(r.factories))
	for p := range r.factories {
		out = append(out, p)
	}
	slices.Sort(out)
	return out
}

// New builds the model for cfg.Provider.
func (r *Registry) New(ctx context.Context, cfg config.LLMConfig) (llms.Model, error) {
	f, ok := r.factories[cfg.Provider]
	if !ok {
		return nil, &UnsupportedProviderError{Provider: cfg.Provider, Known: r.Providers()}
	}
	return f(ctx, cfg)
}

func newOpenAI(_ context.Context, cfg config.LLMConfig) (llms.Model, error) {
	if cfg.OpenAIAPIKey == "" {
		return nil, errors.New("OpenAI API key required")
	}
	opts := []openai.Option{
		openai.WithToken(cfg.OpenAIAPIKey),
		openai.WithModel(cfg.Model),
	}
	if cfg.OpenAIBaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.OpenAIBaseURL))
	}
	model, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("create openai model: %w", err)
	}
	return model, nil
}

func newAnthropic(_ context.Context, cfg config.LLMConfig) (llms.Model, error) {
	if cfg.AnthropicAPIKey == "" {
		return nil, errors.New("Anthropic API key required")
	}
	model, err := anthropic.New(
		anthropic.WithToken(cfg.AnthropicAPIKey),
		anthropic.WithModel(cfg.Model),
	)
	if err != nil {
		return nil, fmt.Errorf("create anthropic model: %w", err)
	}
	return model, nil
}

func newOllama(_ context.Context, cfg config.LLMConfig) (llms.Model, error) {
	model, err := ollama.New(
		ollama.WithModel(cfg.Model),
		ollama.WithServerURL(cfg.OllamaHost),
	)
	if err != nil {
		return nil, fmt.Errorf("create ollama model: %w", err)
	}
	return model, nil
}

func newBedrock(ctx context.Context, cfg config.LLMConfig) (llms.Model, error) {
	var loadOpts []func(*awsconfig.LoadOptions) error
	if cfg.AWSRegion != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(cfg.AWSRegion))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	model, err := bedrock.New(
		bedrock.WithClient(bedrockruntime.NewFromConfig(awsCfg)),
		bedrock.WithModel(cfg.Model),
	)
	if err != nil {
		return nil, fmt.Errorf("create bedrock model: %w", err)
	}
	return model, nil
}

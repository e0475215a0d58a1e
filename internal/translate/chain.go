// Package translate turns English dataset records into Urdu using a chat
// model prompted with a few relevant reference translations.
package translate

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/raphaelgruber/urdufact-go/internal/llm"
	"github.com/raphaelgruber/urdufact-go/internal/models"
	"github.com/raphaelgruber/urdufact-go/internal/resume"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/prompts"
)

// Spec describes one translation task: which fields are read, which are
// produced and how the prompt is phrased.
type Spec struct {
	Name         string
	Instructions string
	Inputs       []string
	Outputs      []string
	// Selector configures few-shot example selection. InputKeys defaults
	// to Inputs.
	Selector SelectorConfig
}

// Chain translates one record per call. It implements service.Transformer.
type Chain struct {
	spec       Spec
	dispatcher *llm.Dispatcher
	selector   *ExampleSelector
	example    prompts.PromptTemplate
	suffix     prompts.PromptTemplate
	logger     *slog.Logger
}

// ChainOption configures a Chain.
type ChainOption func(*Chain)

// WithSelector adds few-shot examples to every prompt.
func WithSelector(s *ExampleSelector) ChainOption {
	return func(c *Chain) { c.selector = s }
}

// WithLogger sets the chain logger.
func WithLogger(l *slog.Logger) ChainOption {
	return func(c *Chain) { c.logger = l }
}

// NewChain builds a chain for spec. Without a selector prompts are zero-shot.
func NewChain(spec Spec, d *llm.Dispatcher, opts ...ChainOption) *Chain {
	c := &Chain{
		spec:       spec,
		dispatcher: d,
		example:    exampleTemplate(spec),
		suffix:     suffixTemplate(spec),
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// NewSelector builds the example selector for spec from examples.
func NewSelector(ctx context.Context, spec Spec, examples []Example, e Embedder) (*ExampleSelector, error) {
	cfg := spec.Selector
	if len(cfg.InputKeys) == 0 {
		cfg.InputKeys = spec.Inputs
	}
	return NewExampleSelector(ctx, examples, e, cfg)
}

// Name returns the task name.
func (c *Chain) Name() string {
	return c.spec.Name
}

// ResumeValidator returns a validator accepting records that already carry
// every output field.
func (c *Chain) ResumeValidator() (resume.Validator, error) {
	return resume.RequireStrings(c.spec.Outputs...)
}

// Transform translates item and returns its Urdu fields.
func (c *Chain) Transform(ctx context.Context, item models.WorkItem) (models.Enrichment, error) {
	input := make(map[string]string, len(c.spec.Inputs))
	for _, name := range c.spec.Inputs {
		input[name] = item.Text(name)
	}

	msgs, err := c.Messages(ctx, input)
	if err != nil {
		return nil, err
	}

	res := llm.DispatchJSON[map[string]any](ctx, c.dispatcher, [][]llms.MessageContent{msgs})[0]
	if res.Err != nil {
		return nil, fmt.Errorf("%s: %w", c.spec.Name, res.Err)
	}

	out := make(models.Enrichment, 0, len(c.spec.Outputs))
	for _, name := range c.spec.Outputs {
		v, ok := res.Value[name].(string)
		if !ok || strings.TrimSpace(v) == "" {
			return nil, &llm.MalformedOutputError{Raw: fmt.Sprint(res.Value), Reason: fmt.Sprintf("missing string field %q", name)}
		}
		out = append(out, models.Field{Name: name, Value: strings.TrimSpace(v)})
	}
	c.logger.Debug("translated", "task", c.spec.Name, "id", item.ID)
	return out, nil
}

// Messages renders the system and human messages for input.
func (c *Chain) Messages(ctx context.Context, input map[string]string) ([]llms.MessageContent, error) {
	var sb strings.Builder
	if c.selector != nil {
		examples, err := c.selector.Select(ctx, input)
		if err != nil {
			return nil, fmt.Errorf("select examples: %w", err)
		}
		if len(examples) > 0 {
			sb.WriteString("Here are a few examples and their expected translations:\n\n")
		}
		for _, ex := range examples {
			s, err := c.example.Format(c.exampleValues(ex))
			if err != nil {
				return nil, fmt.Errorf("format example: %w", err)
			}
			sb.WriteString(s)
			sb.WriteString("\n\n")
		}
	}

	values := toValues(input)
	values["format_instructions"] = formatInstructions(c.spec.Outputs)
	s, err := c.suffix.Format(values)
	if err != nil {
		return nil, fmt.Errorf("format prompt: %w", err)
	}
	sb.WriteString(s)

	return []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, c.spec.Instructions),
		llms.TextParts(llms.ChatMessageTypeHuman, sb.String()),
	}, nil
}

func (c *Chain) exampleValues(ex Example) map[string]any {
	values := make(map[string]any, len(c.spec.Inputs)+len(c.spec.Outputs))
	for _, f := range c.spec.Inputs {
		values[f] = ex[f]
	}
	for _, f := range c.spec.Outputs {
		values[f] = ex[f]
	}
	return values
}

func toValues(m map[string]string) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func exampleTemplate(spec Spec) prompts.PromptTemplate {
	fields := append(append([]string{}, spec.Inputs...), spec.Outputs...)
	lines := make([]string, len(fields))
	for i, f := range fields {
		lines[i] = fmt.Sprintf("%s: {{ index . %q }}", f, f)
	}
	return prompts.NewPromptTemplate(strings.Join(lines, "\n"), fields)
}

func suffixTemplate(spec Spec) prompts.PromptTemplate {
	var sb strings.Builder
	sb.WriteString("### Translation\n")
	for _, f := range spec.Inputs {
		fmt.Fprintf(&sb, "%s: {{ index . %q }}\n", f, f)
	}
	sb.WriteString("\n### Format Instructions:\n{{ .format_instructions }}\n")
	vars := append(append([]string{}, spec.Inputs...), "format_instructions")
	return prompts.NewPromptTemplate(sb.String(), vars)
}

func formatInstructions(outputs []string) string {
	quoted := make([]string, len(outputs))
	for i, o := range outputs {
		quoted[i] = fmt.Sprintf("%q: string", o)
	}
	return "Respond with only a JSON object of the form {" + strings.Join(quoted, ", ") + "}. Do not add any other text."
}

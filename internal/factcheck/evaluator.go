// Package factcheck judges the factuality of Urdu claims against web
// search evidence.
package factcheck

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/raphaelgruber/urdufact-go/internal/llm"
	"github.com/raphaelgruber/urdufact-go/internal/models"
	"github.com/raphaelgruber/urdufact-go/internal/resume"
	"github.com/raphaelgruber/urdufact-go/internal/search"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/prompts"
	"golang.org/x/sync/errgroup"
)

// ErrEmptyClaim is returned for items without text to check.
var ErrEmptyClaim = errors.New("empty claim")

// ErrNoVerdict is returned when every verification request failed.
var ErrNoVerdict = errors.New("no verification succeeded")

// Config controls which fields are checked and how much evidence is used.
type Config struct {
	ClaimField    string // default claim_urdu
	QuestionField string // prepended to the claim when set
	Dataset       string
	Model         string
	MaxQueries    int // default 3
	MaxEvidence   int // default 5
	Concurrency   int // parallel searches, default 4
}

// Verdict is the outcome of checking one text.
type Verdict struct {
	Factuality bool
	Reasoning  []string
	Evidence   []search.Result
}

type verification struct {
	Reasoning  string `json:"reasoning"`
	Factuality bool   `json:"factuality"`
}

// Evaluator checks claims. It implements service.Transformer.
type Evaluator struct {
	cfg        Config
	dispatcher *llm.Dispatcher
	searcher   search.Searcher
	logger     *slog.Logger

	queryPrompt  prompts.PromptTemplate
	verifyPrompt prompts.PromptTemplate
}

// NewEvaluator creates an evaluator. A nil logger uses slog.Default().
func NewEvaluator(cfg Config, d *llm.Dispatcher, s search.Searcher, logger *slog.Logger) *Evaluator {
	if cfg.ClaimField == "" {
		cfg.ClaimField = models.FieldClaimUrdu
	}
	if cfg.MaxQueries <= 0 {
		cfg.MaxQueries = 3
	}
	if cfg.MaxEvidence <= 0 {
		cfg.MaxEvidence = 5
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Evaluator{
		cfg:          cfg,
		dispatcher:   d,
		searcher:     s,
		logger:       logger,
		queryPrompt:  prompts.NewPromptTemplate(queryTemplate, []string{"text", "n"}),
		verifyPrompt: prompts.NewPromptTemplate(verifyTemplate, []string{"text", "title", "snippet"}),
	}
}

// ResumeValidator accepts records that already carry a boolean response.
func (e *Evaluator) ResumeValidator() (resume.Validator, error) {
	return resume.RequireBools(models.FieldResponse)
}

// Text returns the text checked for item.
func (e *Evaluator) Text(item models.WorkItem) string {
	text := strings.TrimSpace(item.Text(e.cfg.ClaimField))
	if e.cfg.QuestionField != "" {
		if q := strings.TrimSpace(item.Text(e.cfg.QuestionField)); q != "" {
			text = q + " " + text
		}
	}
	return text
}

// Transform checks item and returns its response, model and dataset fields.
func (e *Evaluator) Transform(ctx context.Context, item models.WorkItem) (models.Enrichment, error) {
	text := e.Text(item)
	if text == "" {
		return nil, fmt.Errorf("%w: field %q", ErrEmptyClaim, e.cfg.ClaimField)
	}
	v, err := e.Check(ctx, text)
	if err != nil {
		return nil, err
	}
	e.logger.Debug("checked", "id", item.ID, "factuality", v.Factuality, "evidence", len(v.Evidence))
	return models.Enrichment{
		{Name: models.FieldResponse, Value: v.Factuality},
		{Name: models.FieldModel, Value: e.cfg.Model},
		{Name: models.FieldDataset, Value: e.cfg.Dataset},
	}, nil
}

// Check searches for evidence about text and asks the model to verify it
// against each piece. The text is false when any verification says so.
func (e *Evaluator) Check(ctx context.Context, text string) (Verdict, error) {
	queries, err := e.queries(ctx, text)
	if err != nil {
		return Verdict{}, err
	}
	evidence, err := e.gather(ctx, queries)
	if err != nil {
		return Verdict{}, err
	}
	if len(evidence) == 0 {
		evidence = []search.Result{{Title: "none", Snippet: "No evidence was found."}}
	}

	reqs := make([][]llms.MessageContent, len(evidence))
	for i, ev := range evidence {
		p, err := e.verifyPrompt.Format(map[string]any{"text": text, "title": ev.Title, "snippet": ev.Snippet})
		if err != nil {
			return Verdict{}, fmt.Errorf("format verification prompt: %w", err)
		}
		reqs[i] = messages(p)
	}

	v := Verdict{Factuality: true, Evidence: evidence}
	var errs []error
	for _, r := range llm.DispatchJSON[verification](ctx, e.dispatcher, reqs) {
		if r.Err != nil {
			errs = append(errs, r.Err)
			continue
		}
		v.Reasoning = append(v.Reasoning, r.Value.Reasoning)
		if !r.Value.Factuality {
			v.Factuality = false
		}
	}
	if err := ctx.Err(); err != nil {
		return Verdict{}, err
	}
	if len(v.Reasoning) == 0 {
		return Verdict{}, fmt.Errorf("%w: %w", ErrNoVerdict, errors.Join(errs...))
	}
	if len(errs) > 0 {
		e.logger.Warn("some verifications failed", "failed", len(errs), "total", len(reqs), "error", errs[0])
	}
	return v, nil
}

// queries asks the model for search queries. Unusable output falls back to
// searching the text itself.
func (e *Evaluator) queries(ctx context.Context, text string) ([]string, error) {
	p, err := e.queryPrompt.Format(map[string]any{"text": text, "n": e.cfg.MaxQueries})
	if err != nil {
		return nil, fmt.Errorf("format query prompt: %w", err)
	}
	r := llm.DispatchJSON[[]string](ctx, e.dispatcher, [][]llms.MessageContent{messages(p)})[0]
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if errors.Is(r.Err, llm.ErrFatalAPI) {
		return nil, r.Err
	}

	var out []string
	seen := make(map[string]bool)
	for _, q := range r.Value {
		q = strings.TrimSpace(q)
		if q == "" || seen[q] {
			continue
		}
		seen[q] = true
		out = append(out, q)
		if len(out) == e.cfg.MaxQueries {
			break
		}
	}
	if len(out) == 0 {
		if r.Err != nil {
			e.logger.Warn("query generation failed, searching claim text", "error", r.Err)
		}
		out = []string{text}
	}
	return out, nil
}

// gather runs the searches concurrently and returns up to MaxEvidence
// distinct results in query order.
func (e *Evaluator) gather(ctx context.Context, queries []string) ([]search.Result, error) {
	results := make([][]search.Result, len(queries))
	var (
		mu   sync.Mutex
		errs []error
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.Concurrency)
	for i, q := range queries {
		g.Go(func() error {
			res, err := e.searcher.Search(gctx, q)
			if err != nil {
				var apiErr *search.APIError
				if errors.As(err, &apiErr) && apiErr.Fatal() {
					return fmt.Errorf("%w: %w", llm.ErrFatalAPI, err)
				}
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
				return nil
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(errs) == len(queries) {
		return nil, fmt.Errorf("search: %w", errors.Join(errs...))
	}

	var out []search.Result
	seen := make(map[string]bool)
	for _, rs := range results {
		for _, r := range rs {
			key := r.Link + "\x00" + r.Snippet
			if r.Snippet == "" || seen[key] {
				continue
			}
			seen[key] = true
			out = append(out, r)
			if len(out) == e.cfg.MaxEvidence {
				return out, nil
			}
		}
	}
	return out, nil
}

func messages(prompt string) []llms.MessageContent {
	return []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, systemPrompt),
		llms.TextParts(llms.ChatMessageTypeHuman, prompt),
	}
}

const systemPrompt = "You are a careful fact-checker for Urdu text. Answer only with JSON."

const queryTemplate = `Write up to {{.n}} short web search queries, in Urdu or English, that would find evidence for or against the following text.

Text: {{.text}}

Respond with a JSON list of strings.`

const verifyTemplate = `Decide whether the evidence supports the text. Judge only facts the evidence speaks to; if the evidence is unrelated, treat the text as factual.

Text: {{.text}}

Evidence title: {{.title}}
Evidence: {{.snippet}}

Respond with a JSON object {"reasoning": string, "factuality": bool}.`

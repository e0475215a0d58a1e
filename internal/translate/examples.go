package translate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"sort"
	"strings"
)

// Example is one reference translation shown to the model.
type Example map[string]string

// LoadExamples reads a JSON array of example objects. Non-string values are
// stored in their JSON text form.
func LoadExamples(path string) ([]Example, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read examples: %w", err)
	}
	var raw []map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse examples %s: %w", path, err)
	}
	out := make([]Example, 0, len(raw))
	for _, r := range raw {
		ex := make(Example, len(r))
		for k, v := range r {
			switch t := v.(type) {
			case string:
				ex[k] = t
			case nil:
			default:
				b, _ := json.Marshal(t)
				ex[k] = string(b)
			}
		}
		out = append(out, ex)
	}
	return out, nil
}

// Embedder embeds texts for similarity search. Implemented by llm.Embedder.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// SelectorConfig controls max-marginal-relevance example selection.
type SelectorConfig struct {
	K         int      // examples returned
	FetchK    int      // nearest candidates considered, >= K
	Lambda    float64  // 1 favors similarity, 0 favors diversity
	InputKeys []string // fields joined to form the text that is embedded
}

// ExampleSelector picks the examples most relevant to an input while
// keeping them diverse.
type ExampleSelector struct {
	cfg      SelectorConfig
	embedder Embedder
	examples []Example
	vectors  [][]float32
}

// ErrNoExamples is returned when a selector is built without examples.
var ErrNoExamples = errors.New("no examples")

// NewExampleSelector embeds every example once.
func NewExampleSelector(ctx context.Context, examples []Example, embedder Embedder, cfg SelectorConfig) (*ExampleSelector, error) {
	if len(examples) == 0 {
		return nil, ErrNoExamples
	}
	if cfg.K <= 0 {
		cfg.K = 4
	}
	if cfg.FetchK < cfg.K {
		cfg.FetchK = max(20, cfg.K)
	}
	if cfg.Lambda == 0 {
		cfg.Lambda = 0.5
	}

	texts := make([]string, len(examples))
	for i, ex := range examples {
		texts[i] = joinKeys(ex, cfg.InputKeys)
	}
	vectors, err := embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("embed examples: %w", err)
	}
	return &ExampleSelector{cfg: cfg, embedder: embedder, examples: examples, vectors: vectors}, nil
}

// Select returns up to K examples for input, most relevant first.
func (s *ExampleSelector) Select(ctx context.Context, input map[string]string) ([]Example, error) {
	query, err := s.embedder.Embed(ctx, joinKeys(input, s.cfg.InputKeys))
	if err != nil {
		return nil, fmt.Errorf("embed input: %w", err)
	}
	picked := mmr(query, s.vectors, s.cfg.K, s.cfg.FetchK, s.cfg.Lambda)
	out := make([]Example, len(picked))
	for i, idx := range picked {
		out[i] = s.examples[idx]
	}
	return out, nil
}

func joinKeys(values map[string]string, keys []string) string {
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		if v := values[k]; v != "" {
			parts = append(parts, v)
		}
	}
	return strings.Join(parts, " ")
}

// mmr returns indices into vectors chosen by max marginal relevance among
// the fetchK most similar candidates.
func mmr(query []float32, vectors [][]float32, k, fetchK int, lambda float64) []int {
	type scored struct {
		idx int
		sim float64
	}
	cands := make([]scored, len(vectors))
	for i, v := range vectors {
		cands[i] = scored{idx: i, sim: cosine(query, v)}
	}
	sort.SliceStable(cands, func(a, b int) bool { return cands[a].sim > cands[b].sim })
	if len(cands) > fetchK {
		cands = cands[:fetchK]
	}

	var picked []int
	used := make([]bool, len(cands))
	for len(picked) < k && len(picked) < len(cands) {
		best, bestScore := -1, math.Inf(-1)
		for i, c := range cands {
			if used[i] {
				continue
			}
			score := lambda*c.sim - (1-lambda)*redundancy(vectors, c.idx, picked)
			if score > bestScore {
				best, bestScore = i, score
			}
		}
		// NaN scores never compare greater.
		if best < 0 {
			break
		}
		used[best] = true
		picked = append(picked, cands[best].idx)
	}
	return picked
}

// redundancy is the highest similarity of candidate to an already picked
// vector, 0 before the first pick.
func redundancy(vectors [][]float32, candidate int, picked []int) float64 {
	if len(picked) == 0 {
		return 0
	}
	r := math.Inf(-1)
	for _, p := range picked {
		r = math.Max(r, cosine(vectors[candidate], vectors[p]))
	}
	return r
}

func cosine(a, b []float32) float64 {
	n := min(len(a), len(b))
	var dot, na, nb float64
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

package llm

import (
	"encoding/json"

	"github.com/raphaelgruber/urdufact-go/internal/models"
)

// Providers report token counts under different GenerationInfo keys.
var (
	promptKeys     = []string{"PromptTokens", "InputTokens", "prompt_tokens", "input_tokens"}
	completionKeys = []string{"CompletionTokens", "OutputTokens", "completion_tokens", "output_tokens"}
	totalKeys      = []string{"TotalTokens", "total_tokens"}
)

// UsageFromGenerationInfo extracts token usage from a langchaingo choice.
func UsageFromGenerationInfo(info map[string]any) models.Usage {
	u := models.Usage{
		PromptTokens:     firstCount(info, promptKeys),
		CompletionTokens: firstCount(info, completionKeys),
		TotalTokens:      firstCount(info, totalKeys),
	}
	if u.TotalTokens == 0 {
		u.TotalTokens = u.PromptTokens + u.CompletionTokens
	}
	return u
}

func firstCount(info map[string]any, keys []string) int64 {
	for _, k := range keys {
		if v, ok := info[k]; ok {
			if n, ok := toInt64(v); ok {
				return n
			}
		}
	}
	return 0
}

func toInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case float64:
		return int64(n), true
	case float32:
		return int64(n), true
	case json.Number:
		i, err := n.Int64()
		return i, err == nil
	default:
		return 0, false
	}
}

package usage

import (
	"strings"
	"sync"

	"github.com/tiktoken-go/tokenizer"
)

// Estimator approximates token counts with tiktoken for calls where the
// provider response omits usage figures.
type Estimator struct {
	once  sync.Once
	codec tokenizer.Codec
	err   error
}

// NewEstimator creates a lazy tiktoken-backed estimator.
func NewEstimator() *Estimator {
	return &Estimator{}
}

// encodingFor maps a model name to its tiktoken encoding. Newer OpenAI
// models use o200k_base; older chat models use cl100k_base.
func encodingFor(model string) tokenizer.Encoding {
	model = strings.ToLower(model)
	switch {
	case strings.HasPrefix(model, "gpt-4.1"), strings.HasPrefix(model, "gpt-4o"),
		strings.HasPrefix(model, "gpt-5"), strings.HasPrefix(model, "o1"),
		strings.HasPrefix(model, "o3"), strings.HasPrefix(model, "o4"):
		return tokenizer.O200kBase
	case strings.HasPrefix(model, "gpt-4"), strings.HasPrefix(model, "gpt-3.5"):
		return tokenizer.Cl100kBase
	default:
		return tokenizer.O200kBase
	}
}

// Count estimates the token count of text for the given model. Falls back
// to a bytes/4 heuristic if the tokenizer is unavailable.
func (e *Estimator) Count(model, text string) int {
	if text == "" {
		return 0
	}

	// One codec per process: a single model is configured at startup.
	e.once.Do(func() {
		e.codec, e.err = tokenizer.Get(encodingFor(model))
	})
	if e.err != nil {
		return len(text)/4 + 1
	}

	ids, _, err := e.codec.Encode(text)
	if err != nil {
		return len(text)/4 + 1
	}
	return len(ids)
}

// EstimateUsage builds a TokenUsage from prompt and completion text.
func (e *Estimator) EstimateUsage(model, prompt, completion string) (in, out int) {
	return e.Count(model, prompt), e.Count(model, completion)
}

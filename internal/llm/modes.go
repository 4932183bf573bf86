package llm

import "github.com/salescoach/advisor/internal/domain"

// ModelTokenCeiling is the hard max_output_tokens ceiling for the active
// model.
const ModelTokenCeiling = 4000

func floatPtr(f float64) *float64 { return &f }

// modeDefaults are fixed per mode. Resolution is a total function over the
// closed enum.
var modeDefaults = map[domain.Mode]domain.GenerationParameters{
	domain.ModeSpeed: {
		Temperature:     0.3,
		TopP:            floatPtr(0.9),
		ReasoningEffort: domain.EffortLow,
		MaxOutputTokens: 1200,
	},
	domain.ModeDeep: {
		Temperature:     0.2,
		ReasoningEffort: domain.EffortMedium,
		MaxOutputTokens: 2000,
	},
	domain.ModeCreative: {
		Temperature:     0.7,
		ReasoningEffort: domain.EffortLow,
		MaxOutputTokens: 800,
	},
}

// ResolveMode maps a named invocation mode to concrete generation
// parameters. Unknown modes fail with a configuration error. Temperature is
// clamped to [0, 2] and max output tokens to the model ceiling.
func ResolveMode(mode domain.Mode) (domain.GenerationParameters, error) {
	params, ok := modeDefaults[mode]
	if !ok {
		return domain.GenerationParameters{}, domain.ErrConfiguration("unknown invocation mode %q", mode)
	}

	if params.Temperature < 0 {
		params.Temperature = 0
	}
	if params.Temperature > 2 {
		params.Temperature = 2
	}
	if params.MaxOutputTokens > ModelTokenCeiling {
		params.MaxOutputTokens = ModelTokenCeiling
	}

	return params, nil
}

package llm

import (
	"testing"

	"github.com/salescoach/advisor/internal/domain"
)

func TestResolveMode(t *testing.T) {
	tests := []struct {
		mode       domain.Mode
		wantTemp   float64
		wantEffort domain.ReasoningEffort
		wantTokens int
		wantTopP   bool
	}{
		{domain.ModeSpeed, 0.3, domain.EffortLow, 1200, true},
		{domain.ModeDeep, 0.2, domain.EffortMedium, 2000, false},
		{domain.ModeCreative, 0.7, domain.EffortLow, 800, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.mode), func(t *testing.T) {
			params, err := ResolveMode(tt.mode)
			if err != nil {
				t.Fatalf("ResolveMode(%s) error = %v", tt.mode, err)
			}
			if params.Temperature != tt.wantTemp {
				t.Fatalf("Temperature = %v, want %v", params.Temperature, tt.wantTemp)
			}
			if params.ReasoningEffort != tt.wantEffort {
				t.Fatalf("ReasoningEffort = %v, want %v", params.ReasoningEffort, tt.wantEffort)
			}
			if params.MaxOutputTokens != tt.wantTokens {
				t.Fatalf("MaxOutputTokens = %v, want %v", params.MaxOutputTokens, tt.wantTokens)
			}
			if (params.TopP != nil) != tt.wantTopP {
				t.Fatalf("TopP set = %v, want %v", params.TopP != nil, tt.wantTopP)
			}
		})
	}
}

func TestResolveMode_Unknown(t *testing.T) {
	_, err := ResolveMode(domain.Mode("turbo"))
	if !domain.IsKind(err, domain.KindConfiguration) {
		t.Fatalf("ResolveMode(turbo) error = %v, want configuration error", err)
	}
}

func TestResolveMode_CeilingHolds(t *testing.T) {
	for _, mode := range []domain.Mode{domain.ModeSpeed, domain.ModeDeep, domain.ModeCreative} {
		params, err := ResolveMode(mode)
		if err != nil {
			t.Fatalf("ResolveMode(%s) error = %v", mode, err)
		}
		if params.MaxOutputTokens > ModelTokenCeiling {
			t.Fatalf("%s exceeds the model token ceiling: %d", mode, params.MaxOutputTokens)
		}
		if params.Temperature < 0 || params.Temperature > 2 {
			t.Fatalf("%s temperature out of range: %v", mode, params.Temperature)
		}
	}
}

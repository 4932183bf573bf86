package domain

import "encoding/json"

// Mode is a named preset of generation parameters.
type Mode string

const (
	ModeSpeed    Mode = "speed"
	ModeDeep     Mode = "deep"
	ModeCreative Mode = "creative"
)

// ParseMode validates a mode string against the closed enum.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeSpeed, ModeDeep, ModeCreative:
		return Mode(s), nil
	}
	return "", ErrConfiguration("unknown invocation mode %q", s)
}

// ReasoningEffort controls how much internal reasoning the model spends.
type ReasoningEffort string

const (
	EffortLow    ReasoningEffort = "low"
	EffortMedium ReasoningEffort = "medium"
	EffortHigh   ReasoningEffort = "high"
)

// GenerationParameters are the concrete parameters a mode resolves to.
type GenerationParameters struct {
	Temperature     float64
	TopP            *float64
	ReasoningEffort ReasoningEffort
	MaxOutputTokens int
}

// SecurityFlag records a pattern detected during prompt screening.
type SecurityFlag string

const (
	FlagLengthExceeded      SecurityFlag = "length_exceeded"
	FlagRoleMarker          SecurityFlag = "role_marker"
	FlagScriptTag           SecurityFlag = "script_tag"
	FlagHTMLTag             SecurityFlag = "html_tag"
	FlagCodeBlock           SecurityFlag = "code_block"
	FlagInlineCode          SecurityFlag = "inline_code"
	FlagTemplateVar         SecurityFlag = "template_var"
	FlagVariableExpansion   SecurityFlag = "variable_expansion"
	FlagInstructionOverride SecurityFlag = "instruction_override"
	FlagRoleChange          SecurityFlag = "role_change"
)

// PromptRequest is a validated domain request, created per call and never
// persisted as-is.
type PromptRequest struct {
	RawText      string
	Mode         Mode
	OutputSchema json.RawMessage
}

// SanitizedPrompt is the screened form of a PromptRequest's text together
// with every soft flag raised while screening it.
type SanitizedPrompt struct {
	Text  string
	Flags []SecurityFlag
}

// HasFlag reports whether a specific flag was raised.
func (p SanitizedPrompt) HasFlag(flag SecurityFlag) bool {
	for _, f := range p.Flags {
		if f == flag {
			return true
		}
	}
	return false
}

// TokenUsage is the token consumption reported (or estimated) for one call.
type TokenUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
	TotalTokens  int `json:"total_tokens"`
}

// InvokeResult is the terminal success value of an invocation.
type InvokeResult struct {
	// Response is the schema-conformant JSON object returned by the model.
	Response json.RawMessage

	// Flags are the soft security flags raised during sanitization.
	Flags []SecurityFlag

	// UsedCache reports whether the response came from the response cache.
	UsedCache bool

	// RetriesUsed counts provider re-calls beyond the first attempt.
	RetriesUsed int

	// Usage is the token consumption attributed to this call. Zero for
	// cache hits.
	Usage TokenUsage
}

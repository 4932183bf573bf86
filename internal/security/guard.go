// Package security screens prompt text for injection attempts before it
// reaches the model provider.
package security

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"regexp"
	"strings"

	"github.com/salescoach/advisor/internal/domain"
)

// Severity tiers a detected signature. Matches at or above the guard's
// blocking severity reject the prompt; medium and high matches below it are
// neutralized in place; low matches are only flagged.
type Severity int

const (
	SeverityLow Severity = iota + 1
	SeverityMedium
	SeverityHigh
)

// severityNone disables hard rejection entirely.
const severityNone Severity = SeverityHigh + 1

func parseBlockSeverity(s string) Severity {
	switch s {
	case "medium":
		return SeverityMedium
	case "none":
		return severityNone
	default:
		return SeverityHigh
	}
}

type signature struct {
	re       *regexp.Regexp
	flag     domain.SecurityFlag
	severity Severity
}

// Injection signatures: role-override phrases, system-prompt-leak markers,
// and delimiter-escape attempts.
var signatures = []signature{
	{regexp.MustCompile(`(?i)\b(?:system|assistant|user|developer)\s*:`), domain.FlagRoleMarker, SeverityHigh},
	{regexp.MustCompile(`(?is)<script[^>]*>.*?</script>`), domain.FlagScriptTag, SeverityHigh},
	{regexp.MustCompile(`(?i)\b(?:ignore|override|forget)\s+(?:previous|all|these)?\s*(?:instructions?|rules?)`), domain.FlagInstructionOverride, SeverityHigh},
	{regexp.MustCompile(`(?i)\b(?:you\s+are|act\s+as)\s+a\s+.*?(?:ai|assistant|model)`), domain.FlagRoleChange, SeverityHigh},
	{regexp.MustCompile(`<[^>]+>`), domain.FlagHTMLTag, SeverityMedium},
	{regexp.MustCompile("(?s)```\\w*\\n.*?```"), domain.FlagCodeBlock, SeverityMedium},
	{regexp.MustCompile(`(?s)\$\{.*?\}`), domain.FlagVariableExpansion, SeverityMedium},
	{regexp.MustCompile("`[^`\\n]*`"), domain.FlagInlineCode, SeverityLow},
	{regexp.MustCompile(`(?s)\{\{.*?\}\}`), domain.FlagTemplateVar, SeverityLow},
}

var (
	unsafeQuotes = regexp.MustCompile("[\\\\'\"`]")
	controlChars = regexp.MustCompile(`[\x00-\x1f\x7f-\x9f]`)
	multiSpace   = regexp.MustCompile(`\s+`)
)

const filteredMarker = "[FILTERED]"

// Guard is the prompt security screen. Safe for concurrent use; all state
// is immutable after construction.
type Guard struct {
	maxLen        int
	blockSeverity Severity
	logger        *slog.Logger
}

// Options configures a Guard.
type Options struct {
	// MaxPromptLen is the maximum accepted prompt length in runes.
	MaxPromptLen int
	// BlockSeverity is "high", "medium", or "none".
	BlockSeverity string
	Logger        *slog.Logger
}

// NewGuard creates a prompt security guard.
func NewGuard(opts Options) *Guard {
	if opts.MaxPromptLen <= 0 {
		opts.MaxPromptLen = 10000
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Guard{
		maxLen:        opts.MaxPromptLen,
		blockSeverity: parseBlockSeverity(opts.BlockSeverity),
		logger:        opts.Logger,
	}
}

// Screen sanitizes raw prompt text. Soft findings are attached as flags on
// the returned prompt; a match at or above the blocking severity fails with
// a prompt_rejected error carrying the full flag set for audit logging.
// Screening is deterministic: the same input always produces the same
// output.
func (g *Guard) Screen(raw string) (domain.SanitizedPrompt, error) {
	text := raw
	var flags []domain.SecurityFlag

	if runes := []rune(text); len(runes) > g.maxLen {
		text = string(runes[:g.maxLen])
		flags = append(flags, domain.FlagLengthExceeded)
	}

	blocked := false
	for _, sig := range signatures {
		if !sig.re.MatchString(text) {
			continue
		}
		flags = append(flags, sig.flag)
		if sig.severity >= g.blockSeverity {
			blocked = true
			continue
		}
		if sig.severity >= SeverityMedium {
			text = sig.re.ReplaceAllString(text, filteredMarker)
		}
	}

	if blocked {
		g.logger.Warn("prompt rejected by security policy",
			slog.Int("flags", len(flags)))
		return domain.SanitizedPrompt{}, domain.
			ErrPromptRejected("prompt matched a blocking security signature").
			WithFlags(flags)
	}

	text = unsafeQuotes.ReplaceAllString(text, "")
	text = controlChars.ReplaceAllString(text, "")
	text = multiSpace.ReplaceAllString(text, " ")
	text = strings.TrimSpace(text)

	if len(flags) > 0 {
		g.logger.Info("prompt screening raised flags",
			slog.Any("flags", flags))
	}

	return domain.SanitizedPrompt{Text: text, Flags: flags}, nil
}

// EscapeForTemplate escapes braces so sanitized text cannot break template
// interpolation downstream.
func EscapeForTemplate(text string) string {
	text = strings.ReplaceAll(text, "{", "{{")
	text = strings.ReplaceAll(text, "}", "}}")
	return text
}

// Fingerprint derives the deterministic cache key for an invocation from
// the sanitized text, the mode, and the canonicalized output schema. The
// key is content-derived, never identity-derived.
func Fingerprint(text string, mode domain.Mode, schema json.RawMessage) string {
	var compact bytes.Buffer
	if len(schema) > 0 {
		// Compaction normalizes whitespace so equivalent schema documents
		// hash identically.
		if err := json.Compact(&compact, schema); err != nil {
			compact.Reset()
			compact.Write(schema)
		}
	}

	h := sha256.New()
	h.Write([]byte(text))
	h.Write([]byte{'|'})
	h.Write([]byte(mode))
	h.Write([]byte{'|'})
	h.Write(compact.Bytes())
	return hex.EncodeToString(h.Sum(nil))
}

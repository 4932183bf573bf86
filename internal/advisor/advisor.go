// Package advisor holds the coaching services built on top of the
// invocation pipeline: pre-meeting advice, post-meeting review, and
// icebreaker generation. Each service renders its prompt template, runs
// the invoker with its output schema, and persists the result as a
// session through the guarded storage gateway.
package advisor

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/salescoach/advisor/internal/domain"
	"github.com/salescoach/advisor/internal/llm"
	"github.com/salescoach/advisor/internal/security"
	"github.com/salescoach/advisor/internal/storage"
)

// Kind names one advice service. The value doubles as the session payload
// type and the template file name.
type Kind string

const (
	KindPreAdvice  Kind = "pre_advice"
	KindPostReview Kind = "post_review"
	KindIcebreaker Kind = "icebreaker"
)

// ParseKind validates a client-supplied kind string.
func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case KindPreAdvice, KindPostReview, KindIcebreaker:
		return Kind(s), nil
	default:
		return "", domain.ErrNotFound("unknown advice kind %q", s)
	}
}

// Caller identifies who is asking, for usage attribution and session
// ownership. Both fields are optional.
type Caller struct {
	UserID string `json:"user_id,omitempty"`
	TeamID string `json:"team_id,omitempty"`
}

// PreAdviceInput describes the upcoming meeting.
type PreAdviceInput struct {
	SalesType   string   `json:"sales_type"`
	Industry    string   `json:"industry"`
	Product     string   `json:"product"`
	Description string   `json:"description,omitempty"`
	Competitor  string   `json:"competitor,omitempty"`
	Stage       string   `json:"stage,omitempty"`
	Purpose     string   `json:"purpose,omitempty"`
	Constraints []string `json:"constraints,omitempty"`
}

// PostReviewInput carries the notes of a meeting that already happened.
type PostReviewInput struct {
	SalesType      string `json:"sales_type"`
	Industry       string `json:"industry"`
	Product        string `json:"product"`
	MeetingContent string `json:"meeting_content"`
}

// IcebreakerInput describes the opener request.
type IcebreakerInput struct {
	SalesType   string `json:"sales_type"`
	Industry    string `json:"industry"`
	CompanyHint string `json:"company_hint,omitempty"`
}

// Advice is the outcome of one service call.
type Advice struct {
	SessionID   string                `json:"session_id,omitempty"`
	Kind        Kind                  `json:"kind"`
	Response    json.RawMessage       `json:"response"`
	UsedCache   bool                  `json:"used_cache"`
	RetriesUsed int                   `json:"retries_used"`
	Flags       []domain.SecurityFlag `json:"security_flags,omitempty"`
	Usage       domain.TokenUsage     `json:"usage"`
}

// Service runs the three advice kinds over a shared invoker and gateway.
type Service struct {
	invoker   *llm.Invoker
	sessions  storage.Gateway
	logger    *slog.Logger
	templates map[Kind]*promptTemplate
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithLogger sets the service logger.
func WithLogger(logger *slog.Logger) ServiceOption {
	return func(s *Service) {
		s.logger = logger
	}
}

// NewService loads every prompt template up front so a broken template
// fails at startup, not on the first request.
func NewService(invoker *llm.Invoker, sessions storage.Gateway, opts ...ServiceOption) (*Service, error) {
	s := &Service{
		invoker:   invoker,
		sessions:  sessions,
		logger:    slog.Default(),
		templates: make(map[Kind]*promptTemplate, 3),
	}
	for _, opt := range opts {
		opt(s)
	}
	for _, kind := range []Kind{KindPreAdvice, KindPostReview, KindIcebreaker} {
		tpl, err := loadPromptTemplate(kind)
		if err != nil {
			return nil, err
		}
		s.templates[kind] = tpl
	}
	return s, nil
}

// Generate dispatches a raw request body to the named advice kind. The
// HTTP layer uses this so it never decodes service inputs itself.
func (s *Service) Generate(ctx context.Context, tenantID string, caller Caller, kind Kind, body json.RawMessage) (*Advice, error) {
	switch kind {
	case KindPreAdvice:
		var in PreAdviceInput
		if err := json.Unmarshal(body, &in); err != nil {
			return nil, domain.ErrPromptRejected("malformed %s request: %v", kind, err)
		}
		return s.PreAdvice(ctx, tenantID, caller, in)
	case KindPostReview:
		var in PostReviewInput
		if err := json.Unmarshal(body, &in); err != nil {
			return nil, domain.ErrPromptRejected("malformed %s request: %v", kind, err)
		}
		return s.PostReview(ctx, tenantID, caller, in)
	case KindIcebreaker:
		var in IcebreakerInput
		if err := json.Unmarshal(body, &in); err != nil {
			return nil, domain.ErrPromptRejected("malformed %s request: %v", kind, err)
		}
		return s.Icebreaker(ctx, tenantID, caller, in)
	default:
		return nil, domain.ErrNotFound("unknown advice kind %q", kind)
	}
}

// PreAdvice produces a structured plan for an upcoming meeting.
func (s *Service) PreAdvice(ctx context.Context, tenantID string, caller Caller, in PreAdviceInput) (*Advice, error) {
	if strings.TrimSpace(in.Industry) == "" || strings.TrimSpace(in.Product) == "" {
		return nil, domain.ErrPromptRejected("industry and product are required")
	}

	tpl := s.templates[KindPreAdvice]
	prompt, err := tpl.render(map[string]string{
		"SalesType":   escape(in.SalesType),
		"Industry":    escape(in.Industry),
		"Product":     escape(in.Product),
		"Description": escape(in.Description),
		"Competitor":  escape(in.Competitor),
		"Stage":       escape(in.Stage),
		"Purpose":     escape(in.Purpose),
		"Constraints": escapeLines(in.Constraints),
	})
	if err != nil {
		return nil, err
	}
	return s.run(ctx, tenantID, caller, KindPreAdvice, domain.ModeSpeed, prompt, tpl.schema, in)
}

// PostReview analyzes the notes of a finished meeting.
func (s *Service) PostReview(ctx context.Context, tenantID string, caller Caller, in PostReviewInput) (*Advice, error) {
	if strings.TrimSpace(in.MeetingContent) == "" {
		return nil, domain.ErrPromptRejected("meeting_content is required")
	}

	tpl := s.templates[KindPostReview]
	prompt, err := tpl.render(map[string]string{
		"SalesType":      escape(in.SalesType),
		"Industry":       escape(in.Industry),
		"Product":        escape(in.Product),
		"MeetingContent": escape(in.MeetingContent),
	})
	if err != nil {
		return nil, err
	}
	return s.run(ctx, tenantID, caller, KindPostReview, domain.ModeDeep, prompt, tpl.schema, in)
}

// Icebreaker generates three one-line meeting openers.
func (s *Service) Icebreaker(ctx context.Context, tenantID string, caller Caller, in IcebreakerInput) (*Advice, error) {
	if strings.TrimSpace(in.Industry) == "" {
		return nil, domain.ErrPromptRejected("industry is required")
	}

	tpl := s.templates[KindIcebreaker]
	prompt, err := tpl.render(map[string]string{
		"SalesType":   escape(in.SalesType),
		"Tone":        toneFor(in.SalesType),
		"Industry":    escape(in.Industry),
		"CompanyHint": escape(orNone(in.CompanyHint)),
	})
	if err != nil {
		return nil, err
	}
	return s.run(ctx, tenantID, caller, KindIcebreaker, domain.ModeCreative, prompt, tpl.schema, in)
}

// run invokes the pipeline and persists the outcome as a session. A save
// failure never discards advice the caller already paid tokens for; the
// advice comes back without a session ID and the failure is logged.
func (s *Service) run(ctx context.Context, tenantID string, caller Caller, kind Kind, mode domain.Mode, prompt string, schema json.RawMessage, input any) (*Advice, error) {
	result, err := s.invoker.Invoke(ctx, tenantID, caller.UserID, domain.PromptRequest{
		RawText:      prompt,
		Mode:         mode,
		OutputSchema: schema,
	})
	if err != nil {
		return nil, err
	}

	advice := &Advice{
		Kind:        kind,
		Response:    result.Response,
		UsedCache:   result.UsedCache,
		RetriesUsed: result.RetriesUsed,
		Flags:       result.Flags,
		Usage:       result.Usage,
	}

	payload, err := json.Marshal(sessionPayload{Type: kind, Input: input, Response: result.Response})
	if err != nil {
		return nil, err
	}
	id, err := s.sessions.Save(ctx, tenantID, &domain.Session{
		UserID:  caller.UserID,
		TeamID:  caller.TeamID,
		Success: true,
		Payload: payload,
	})
	if err != nil {
		s.logger.Error("session save failed",
			slog.String("tenant_id", tenantID),
			slog.String("kind", string(kind)),
			slog.String("error", err.Error()))
		return advice, nil
	}
	advice.SessionID = id
	return advice, nil
}

type sessionPayload struct {
	Type     Kind            `json:"type"`
	Input    any             `json:"input"`
	Response json.RawMessage `json:"response"`
}

// salesToneByType mirrors the tone guidance used for opener generation.
var salesToneByType = map[string]string{
	"hunter":         "upbeat, short, action-driving",
	"closer":         "value pitch followed by a closing line",
	"relation":       "empathetic, casual, soft",
	"consultant":     "problem hypothesis and probing question",
	"challenger":     "hypothesis-led, perspective-shifting",
	"storyteller":    "concrete example or short story",
	"analyst":        "facts and data first",
	"problem_solver": "remove a blocker, propose the next step",
	"farmer":         "long-term relationship, referral friendly",
}

func toneFor(salesType string) string {
	if tone, ok := salesToneByType[strings.ToLower(strings.TrimSpace(salesType))]; ok {
		return tone
	}
	return "friendly and professional"
}

func escape(text string) string {
	return security.EscapeForTemplate(text)
}

func escapeLines(lines []string) string {
	escaped := make([]string, 0, len(lines))
	for _, line := range lines {
		if strings.TrimSpace(line) == "" {
			continue
		}
		escaped = append(escaped, "- "+security.EscapeForTemplate(line))
	}
	if len(escaped) == 0 {
		return "- none"
	}
	return strings.Join(escaped, "\n")
}

func orNone(s string) string {
	if strings.TrimSpace(s) == "" {
		return "none"
	}
	return s
}

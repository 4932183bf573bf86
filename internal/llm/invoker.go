package llm

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"math/rand"
	"time"

	"github.com/salescoach/advisor/internal/cache"
	"github.com/salescoach/advisor/internal/domain"
	"github.com/salescoach/advisor/internal/schema"
	"github.com/salescoach/advisor/internal/security"
	"github.com/salescoach/advisor/internal/usage"
)

// State names one step of the invocation state machine.
type State string

const (
	StateIdle       State = "idle"
	StateSanitizing State = "sanitizing"
	StateCacheCheck State = "cache_check"
	StateCalling    State = "calling"
	StateValidating State = "validating"
	StateRetrying   State = "retrying"
	StateMetering   State = "metering"
	StateDone       State = "done"
)

const (
	defaultMaxRetries  = 3
	defaultBackoffBase = 1 * time.Second
	defaultBackoffCap  = 8 * time.Second

	defaultSystemInstructions = "You are a top-tier sales coach advising a sales professional."
	schemaInstructions        = " Answer strictly following the supplied JSON schema."
)

// InvokerOption configures the invoker.
type InvokerOption func(*Invoker)

// WithMaxRetries overrides the retry budget.
func WithMaxRetries(n int) InvokerOption {
	return func(inv *Invoker) {
		if n >= 0 {
			inv.maxRetries = n
		}
	}
}

// WithBackoff overrides the exponential backoff base and cap.
func WithBackoff(base, cap time.Duration) InvokerOption {
	return func(inv *Invoker) {
		inv.backoffBase = base
		inv.backoffCap = cap
	}
}

// WithSystemInstructions overrides the system message sent to the provider.
func WithSystemInstructions(s string) InvokerOption {
	return func(inv *Invoker) {
		inv.systemInstructions = s
	}
}

// WithSleep injects the wait function used between retries. Tests use this
// to avoid real sleeps.
func WithSleep(sleep func(context.Context, time.Duration) error) InvokerOption {
	return func(inv *Invoker) {
		inv.sleep = sleep
	}
}

// WithLogger sets the invoker's logger.
func WithLogger(logger *slog.Logger) InvokerOption {
	return func(inv *Invoker) {
		inv.logger = logger
	}
}

// Invoker orchestrates sanitize → cache lookup → provider call with
// retry/backoff → schema validation → metering → cache store as an
// explicit state machine.
type Invoker struct {
	provider  Provider
	guard     *security.Guard
	cache     *cache.Cache
	meter     *usage.Meter
	estimator *usage.Estimator
	logger    *slog.Logger

	maxRetries         int
	backoffBase        time.Duration
	backoffCap         time.Duration
	systemInstructions string
	sleep              func(context.Context, time.Duration) error
}

// NewInvoker wires the invocation pipeline. All collaborators are shared,
// singly-owned objects injected by the caller.
func NewInvoker(provider Provider, guard *security.Guard, respCache *cache.Cache, meter *usage.Meter, opts ...InvokerOption) *Invoker {
	inv := &Invoker{
		provider:           provider,
		guard:              guard,
		cache:              respCache,
		meter:              meter,
		estimator:          usage.NewEstimator(),
		logger:             slog.Default(),
		maxRetries:         defaultMaxRetries,
		backoffBase:        defaultBackoffBase,
		backoffCap:         defaultBackoffCap,
		systemInstructions: defaultSystemInstructions,
		sleep:              sleepContext,
	}
	for _, opt := range opts {
		opt(inv)
	}
	return inv
}

// invocation is the mutable state threaded through one Invoke call.
type invocation struct {
	tenantID string
	userID   string
	request  domain.PromptRequest

	validated *schema.Validated
	params    domain.GenerationParameters
	sanitized domain.SanitizedPrompt
	prompt    string
	cacheKey  string

	attempt  int
	response *ProviderResponse
	payload  json.RawMessage
	result   *domain.InvokeResult
	err      error
}

// Invoke runs one model invocation for a tenant/user. It returns a typed
// failure from the canonical taxonomy or a result carrying the response,
// the soft security flags, cache use, and the retry count.
func (inv *Invoker) Invoke(ctx context.Context, tenantID, userID string, req domain.PromptRequest) (*domain.InvokeResult, error) {
	validated, err := schema.Validate(req.OutputSchema)
	if err != nil {
		return nil, err
	}
	params, err := ResolveMode(req.Mode)
	if err != nil {
		return nil, err
	}

	call := &invocation{
		tenantID:  tenantID,
		userID:    userID,
		request:   req,
		validated: validated,
		params:    params,
	}

	state := StateIdle
	for state != StateDone {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		switch state {
		case StateIdle:
			state = StateSanitizing

		case StateSanitizing:
			state = inv.runSanitizing(call)

		case StateCacheCheck:
			state = inv.runCacheCheck(call)

		case StateCalling:
			state = inv.runCalling(ctx, call)

		case StateRetrying:
			state = inv.runRetrying(ctx, call)

		case StateValidating:
			state = inv.runValidating(call)

		case StateMetering:
			state = inv.runMetering(call)
		}

		if call.err != nil {
			return nil, call.err
		}
	}

	return call.result, nil
}

func (inv *Invoker) runSanitizing(call *invocation) State {
	sanitized, err := inv.guard.Screen(call.request.RawText)
	if err != nil {
		call.err = err
		return StateDone
	}
	call.sanitized = sanitized
	call.prompt = sanitized.Text
	return StateCacheCheck
}

func (inv *Invoker) runCacheCheck(call *invocation) State {
	call.cacheKey = security.Fingerprint(call.sanitized.Text, call.request.Mode, call.validated.Raw())

	entry, ok := inv.cache.Get(call.cacheKey)
	if !ok {
		// Hard quota blocks here, before anything reaches the provider.
		// Cache hits are free and never blocked.
		if err := inv.meter.CheckQuota(call.tenantID, call.userID); err != nil {
			call.err = err
			return StateDone
		}
		return StateCalling
	}

	// Cache hits are still recorded for observability, at zero new cost.
	inv.meter.Record(call.tenantID, call.userID, 0)

	inv.logger.Debug("response cache hit",
		slog.String("tenant_id", call.tenantID),
		slog.String("key", call.cacheKey))

	call.result = &domain.InvokeResult{
		Response:  entry.Response,
		Flags:     call.sanitized.Flags,
		UsedCache: true,
		Usage:     domain.TokenUsage{},
	}
	return StateDone
}

func (inv *Invoker) runCalling(ctx context.Context, call *invocation) State {
	system := inv.systemInstructions + schemaInstructions

	resp, err := inv.provider.Complete(ctx, &ProviderRequest{
		SystemInstructions: system,
		UserPrompt:         call.prompt,
		Temperature:        call.params.Temperature,
		TopP:               call.params.TopP,
		MaxOutputTokens:    call.params.MaxOutputTokens,
		ReasoningEffort:    call.params.ReasoningEffort,
		ResponseSchema:     call.validated.Raw(),
	})
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			call.err = err
			return StateDone
		}
		if domain.Retryable(err) && call.attempt < inv.maxRetries {
			inv.logger.Warn("transient provider failure, retrying",
				slog.Int("attempt", call.attempt+1),
				slog.String("error", err.Error()))
			return StateRetrying
		}
		call.err = err
		return StateDone
	}

	call.response = resp
	return StateValidating
}

func (inv *Invoker) runRetrying(ctx context.Context, call *invocation) State {
	call.attempt++
	if err := inv.sleep(ctx, inv.backoffDelay(call.attempt)); err != nil {
		call.err = err
		return StateDone
	}
	return StateCalling
}

func (inv *Invoker) runValidating(call *invocation) State {
	payload := json.RawMessage(call.response.Content)

	if err := call.validated.ValidatePayload(payload); err != nil {
		var violation *schema.Violation
		if errors.As(err, &violation) && call.attempt < inv.maxRetries {
			inv.logger.Warn("schema violation, re-prompting",
				slog.Int("attempt", call.attempt+1),
				slog.String("path", violation.Path))
			// Re-invoke with a corrective instruction appended so the
			// model can self-correct.
			call.prompt = call.sanitized.Text + correctivePrompt(violation)
			return StateRetrying
		}
		path := ""
		if violation != nil {
			path = violation.Path
		}
		call.err = domain.
			ErrOutputSchema("model output never conformed to the schema after %d attempts", call.attempt+1).
			WithPath(path).
			WithCause(err)
		return StateDone
	}

	call.payload = payload
	return StateMetering
}

func (inv *Invoker) runMetering(call *invocation) State {
	tokens := call.response.Usage
	if tokens.TotalTokens == 0 {
		in, out := inv.estimator.EstimateUsage(call.response.Model, call.prompt, call.response.Content)
		tokens = domain.TokenUsage{InputTokens: in, OutputTokens: out, TotalTokens: in + out}
	}

	inv.meter.Record(call.tenantID, call.userID, tokens.TotalTokens)

	// An exceeded quota here is logged but never retroactively fails a
	// completed call.
	if err := inv.meter.CheckQuota(call.tenantID, call.userID); err != nil {
		inv.logger.Warn("quota exceeded after completed call",
			slog.String("tenant_id", call.tenantID),
			slog.String("user_id", call.userID))
	}

	inv.cache.Put(call.cacheKey, call.payload, tokens)

	call.result = &domain.InvokeResult{
		Response:    call.payload,
		Flags:       call.sanitized.Flags,
		UsedCache:   false,
		RetriesUsed: call.attempt,
		Usage:       tokens,
	}
	return StateDone
}

// backoffDelay computes the exponential backoff with jitter for the given
// attempt (1-based): base*2^(n-1) capped, then half fixed, half random.
func (inv *Invoker) backoffDelay(attempt int) time.Duration {
	d := inv.backoffBase
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= inv.backoffCap {
			d = inv.backoffCap
			break
		}
	}
	half := d / 2
	return half + time.Duration(rand.Int63n(int64(half)+1))
}

// sleepContext waits without blocking cancellation.
func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func correctivePrompt(v *schema.Violation) string {
	path := v.Path
	if path == "" {
		path = "/"
	}
	return "\n\nThe previous response did not conform to the required JSON schema" +
		" (violation at " + path + "). Respond again with a single JSON object" +
		" that strictly conforms to the schema."
}

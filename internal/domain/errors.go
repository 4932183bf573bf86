// Package domain provides the canonical types and error taxonomy shared by
// the invocation pipeline and the persistence gateway.
package domain

import (
	"errors"
	"fmt"
)

// ErrorKind categorizes a failure so callers can render a safe, generic
// message without inspecting provider error bodies.
type ErrorKind string

const (
	// KindConfiguration indicates bad mode/schema/backend setup. Fatal at startup.
	KindConfiguration ErrorKind = "configuration"

	// KindPromptRejected indicates a hard security policy violation. Never retried.
	KindPromptRejected ErrorKind = "prompt_rejected"

	// KindProviderUnavailable indicates a transient provider failure
	// (network, timeout, rate limit). Retried up to budget, then surfaced.
	KindProviderUnavailable ErrorKind = "provider_unavailable"

	// KindProviderRejected indicates a non-retryable provider failure
	// (authentication, malformed request). Surfaced immediately.
	KindProviderRejected ErrorKind = "provider_rejected"

	// KindOutputSchema indicates the retry budget was exhausted on
	// structured output that never conformed to the requested schema.
	KindOutputSchema ErrorKind = "output_schema"

	// KindCredentialsMissing indicates no usable API key could be resolved.
	// Fails fast before any network attempt.
	KindCredentialsMissing ErrorKind = "credentials_missing"

	// KindTenantRequired indicates a storage call without a tenant identifier.
	// A caller programming error, always fatal to that call.
	KindTenantRequired ErrorKind = "tenant_required"

	// KindQuotaExceeded indicates the token quota was reached. Advisory or
	// blocking depending on policy.
	KindQuotaExceeded ErrorKind = "quota_exceeded"

	// KindNotFound indicates a storage read miss. Not an error to most
	// callers; represented as an absent result at the edges.
	KindNotFound ErrorKind = "not_found"
)

// Error is the canonical typed error for the advisor core.
type Error struct {
	Kind    ErrorKind
	Message string

	// Path names the offending instance path for schema violations.
	Path string

	// Flags carries the security flags that caused a prompt rejection,
	// for audit logging.
	Flags []SecurityFlag

	cause error
}

func (e *Error) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("%s at %s: %s", e.Kind, e.Path, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.cause
}

// WithCause attaches an underlying error.
func (e *Error) WithCause(err error) *Error {
	e.cause = err
	return e
}

// WithPath names the offending instance path.
func (e *Error) WithPath(path string) *Error {
	e.Path = path
	return e
}

// WithFlags attaches the security flags detected during screening.
func (e *Error) WithFlags(flags []SecurityFlag) *Error {
	e.Flags = flags
	return e
}

// NewError creates a canonical error of the given kind.
func NewError(kind ErrorKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Convenience constructors for common failures.

func ErrConfiguration(format string, args ...any) *Error {
	return NewError(KindConfiguration, format, args...)
}

func ErrPromptRejected(format string, args ...any) *Error {
	return NewError(KindPromptRejected, format, args...)
}

func ErrProviderUnavailable(format string, args ...any) *Error {
	return NewError(KindProviderUnavailable, format, args...)
}

func ErrProviderRejected(format string, args ...any) *Error {
	return NewError(KindProviderRejected, format, args...)
}

func ErrOutputSchema(format string, args ...any) *Error {
	return NewError(KindOutputSchema, format, args...)
}

func ErrCredentialsMissing(format string, args ...any) *Error {
	return NewError(KindCredentialsMissing, format, args...)
}

func ErrTenantRequired(format string, args ...any) *Error {
	return NewError(KindTenantRequired, format, args...)
}

func ErrQuotaExceeded(format string, args ...any) *Error {
	return NewError(KindQuotaExceeded, format, args...)
}

func ErrNotFound(format string, args ...any) *Error {
	return NewError(KindNotFound, format, args...)
}

// KindOf extracts the error kind from any error in the chain.
// Returns an empty kind for errors outside the taxonomy.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind ErrorKind) bool {
	return KindOf(err) == kind
}

// Retryable reports whether the invoker may retry after this failure.
// Only transient provider failures qualify; schema violations are handled
// separately by the invoker with a corrective re-prompt.
func Retryable(err error) bool {
	return IsKind(err, KindProviderUnavailable)
}

// Package llm turns validated domain requests into secure, schema-conformant
// model calls with retries, caching, and metering.
package llm

import (
	"context"
	"encoding/json"
	"os"

	"github.com/salescoach/advisor/internal/domain"
)

// ProviderRequest is the logical request sent to a model provider.
type ProviderRequest struct {
	SystemInstructions string
	UserPrompt         string
	Temperature        float64
	TopP               *float64
	MaxOutputTokens    int
	ReasoningEffort    domain.ReasoningEffort
	// ResponseSchema constrains the output to a JSON schema. Always sent
	// with strict enforcement.
	ResponseSchema json.RawMessage
}

// ProviderResponse is the logical response from a model provider.
type ProviderResponse struct {
	Content      string
	Model        string
	FinishReason string
	// Usage may be zero if the provider omitted it; the invoker then
	// estimates.
	Usage domain.TokenUsage
}

// Provider is the model provider port. Implementations return typed
// failures from the domain taxonomy: provider_unavailable for transient
// conditions (network, timeout, rate limit) and provider_rejected for
// non-retryable ones (authentication, malformed request).
type Provider interface {
	Name() string
	Complete(ctx context.Context, req *ProviderRequest) (*ProviderResponse, error)
}

// SecretSource resolves named secrets. Consulted only when neither the
// explicit configuration nor the environment provides a credential.
type SecretSource interface {
	GetSecret(ctx context.Context, name string) (string, error)
}

// apiKeyEnv is the environment variable checked after explicit config.
const apiKeyEnv = "OPENAI_API_KEY"

// ResolveAPIKey resolves the provider credential at construction time:
// explicit configuration, then environment, then the secret source. The
// absence of a usable key fails fast, before any network attempt.
func ResolveAPIKey(ctx context.Context, explicit, secretName string, secrets SecretSource) (string, error) {
	if explicit != "" {
		return explicit, nil
	}
	if key := os.Getenv(apiKeyEnv); key != "" {
		return key, nil
	}
	if secrets != nil && secretName != "" {
		key, err := secrets.GetSecret(ctx, secretName)
		if err == nil && key != "" {
			return key, nil
		}
		if err != nil && !domain.IsKind(err, domain.KindNotFound) {
			return "", domain.ErrCredentialsMissing("secret source failed for %q", secretName).WithCause(err)
		}
	}
	return "", domain.ErrCredentialsMissing("no API key in configuration, %s, or secret source", apiKeyEnv)
}

package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/salescoach/advisor/internal/domain"
)

const (
	defaultBaseURL = "https://api.openai.com/v1"
	defaultTimeout = 60 * time.Second
)

// OpenAIOption configures the OpenAI provider.
type OpenAIOption func(*OpenAIProvider)

// WithBaseURL sets a custom API endpoint.
func WithBaseURL(baseURL string) OpenAIOption {
	return func(p *OpenAIProvider) {
		p.baseURL = strings.TrimSuffix(baseURL, "/")
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(httpClient *http.Client) OpenAIOption {
	return func(p *OpenAIProvider) {
		p.httpClient = httpClient
	}
}

// WithTimeout sets the per-call timeout.
func WithTimeout(timeout time.Duration) OpenAIOption {
	return func(p *OpenAIProvider) {
		p.timeout = timeout
	}
}

// OpenAIProvider implements Provider against an OpenAI-compatible chat
// completions API with strict structured output.
type OpenAIProvider struct {
	apiKey     string
	model      string
	baseURL    string
	timeout    time.Duration
	httpClient *http.Client
}

// NewOpenAIProvider creates the provider. The API key must already be
// resolved (see ResolveAPIKey).
func NewOpenAIProvider(apiKey, model string, opts ...OpenAIOption) *OpenAIProvider {
	p := &OpenAIProvider{
		apiKey:     apiKey,
		model:      model,
		baseURL:    defaultBaseURL,
		timeout:    defaultTimeout,
		httpClient: http.DefaultClient,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *OpenAIProvider) Name() string {
	return "openai"
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type jsonSchemaFormat struct {
	Name   string          `json:"name"`
	Schema json.RawMessage `json:"schema"`
	Strict bool            `json:"strict"`
}

type responseFormat struct {
	Type       string           `json:"type"`
	JSONSchema jsonSchemaFormat `json:"json_schema"`
}

type chatCompletionRequest struct {
	Model           string          `json:"model"`
	Messages        []chatMessage   `json:"messages"`
	Temperature     float64         `json:"temperature"`
	TopP            *float64        `json:"top_p,omitempty"`
	MaxTokens       int             `json:"max_tokens"`
	ReasoningEffort string          `json:"reasoning_effort,omitempty"`
	ResponseFormat  *responseFormat `json:"response_format,omitempty"`
}

type chatCompletionResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		FinishReason string `json:"finish_reason"`
		Message      struct {
			Content string  `json:"content"`
			Refusal *string `json:"refusal"`
		} `json:"message"`
	} `json:"choices"`
	Usage *struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

type apiErrorResponse struct {
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
		Code    any    `json:"code"`
	} `json:"error"`
}

// Complete sends one chat completion request.
func (p *OpenAIProvider) Complete(ctx context.Context, req *ProviderRequest) (*ProviderResponse, error) {
	apiReq := chatCompletionRequest{
		Model: p.model,
		Messages: []chatMessage{
			{Role: "system", Content: req.SystemInstructions},
			{Role: "user", Content: req.UserPrompt},
		},
		Temperature:     req.Temperature,
		TopP:            req.TopP,
		MaxTokens:       req.MaxOutputTokens,
		ReasoningEffort: string(req.ReasoningEffort),
	}
	if len(req.ResponseSchema) > 0 {
		apiReq.ResponseFormat = &responseFormat{
			Type: "json_schema",
			JSONSchema: jsonSchemaFormat{
				Name:   "response_schema",
				Schema: req.ResponseSchema,
				Strict: true,
			},
		}
	}

	body, err := json.Marshal(apiReq)
	if err != nil {
		return nil, domain.ErrProviderRejected("marshal request").WithCause(err)
	}

	callCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(callCtx, http.MethodPost, p.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, domain.ErrProviderRejected("build request").WithCause(err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil, err
		}
		return nil, domain.ErrProviderUnavailable("provider request failed").WithCause(err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, domain.ErrProviderUnavailable("read provider response").WithCause(err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, p.classifyHTTPError(resp.StatusCode, respBody)
	}

	var result chatCompletionResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, domain.ErrProviderUnavailable("malformed provider response body").WithCause(err)
	}
	if len(result.Choices) == 0 {
		return nil, domain.ErrProviderUnavailable("provider returned no choices")
	}

	choice := result.Choices[0]
	if choice.FinishReason != "stop" || choice.Message.Refusal != nil {
		return nil, domain.ErrProviderRejected("model did not complete the request (finish_reason=%s)", choice.FinishReason)
	}

	out := &ProviderResponse{
		Content:      choice.Message.Content,
		Model:        result.Model,
		FinishReason: choice.FinishReason,
	}
	if result.Usage != nil {
		out.Usage = domain.TokenUsage{
			InputTokens:  result.Usage.PromptTokens,
			OutputTokens: result.Usage.CompletionTokens,
			TotalTokens:  result.Usage.TotalTokens,
		}
	}
	return out, nil
}

// classifyHTTPError maps provider HTTP failures onto the canonical
// taxonomy. Error bodies are summarized, never passed through verbatim.
func (p *OpenAIProvider) classifyHTTPError(status int, body []byte) error {
	var apiErr apiErrorResponse
	detail := ""
	if err := json.Unmarshal(body, &apiErr); err == nil && apiErr.Error.Type != "" {
		detail = fmt.Sprintf(" (%s)", apiErr.Error.Type)
	}

	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return domain.ErrProviderRejected("provider authentication failed%s", detail)
	case status == http.StatusBadRequest || status == http.StatusUnprocessableEntity:
		return domain.ErrProviderRejected("provider rejected the request%s", detail)
	case status == http.StatusTooManyRequests:
		return domain.ErrProviderUnavailable("provider rate limit reached%s", detail)
	case status >= 500:
		return domain.ErrProviderUnavailable("provider unavailable (status %d)%s", status, detail)
	default:
		return domain.ErrProviderRejected("unexpected provider status %d%s", status, detail)
	}
}

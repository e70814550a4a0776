// Package openaicompat provides a model backend for every provider that
// speaks the OpenAI chat-completions protocol: OpenAI itself, DeepSeek and
// caller-configured custom endpoints.
package openaicompat

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"

	"github.com/tabula-labs/tabula/internal/adapters/driven/backend/faults"
	"github.com/tabula-labs/tabula/internal/core/domain"
	"github.com/tabula-labs/tabula/internal/core/ports/driven"
	"github.com/tabula-labs/tabula/internal/logger"
)

// Ensure Backend implements the interface.
var _ driven.Backend = (*Backend)(nil)

// Backend sends prompts through go-openai.
type Backend struct {
	client      *openai.Client
	httpClient  *http.Client
	provider    domain.Provider
	model       string
	apiKey      string
	maxTokens   int
	temperature float32
	now         func() time.Time
}

// New creates a backend for cfg. A non-empty header template replaces the
// bearer token; its values may reference the key as {{api_key}}.
func New(cfg domain.BackendConfig) (*Backend, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: %s API key is required", domain.ErrAuth, cfg.Provider)
	}
	endpoint := cfg.ResolvedEndpoint()
	if endpoint == "" {
		return nil, fmt.Errorf("%w: %s requires an endpoint", domain.ErrInvalidConfig, cfg.Provider)
	}

	token := cfg.APIKey
	headers := expandHeaders(cfg.Headers, cfg.APIKey)
	if len(headers) > 0 {
		token = ""
	}

	httpClient := &http.Client{
		Timeout:   cfg.Timeout,
		Transport: &transport{base: http.DefaultTransport, headers: headers},
	}
	clientCfg := openai.DefaultConfig(token)
	clientCfg.BaseURL = endpoint
	clientCfg.HTTPClient = httpClient

	return &Backend{
		client:      openai.NewClientWithConfig(clientCfg),
		httpClient:  httpClient,
		provider:    cfg.Provider,
		model:       cfg.ResolvedModel(),
		apiKey:      cfg.APIKey,
		maxTokens:   cfg.ResolvedMaxTokens(),
		temperature: cfg.Temperature,
		now:         time.Now,
	}, nil
}

// Send submits the prompt as a system and a user message.
func (b *Backend) Send(ctx context.Context, prompt domain.Prompt) (string, error) {
	req := openai.ChatCompletionRequest{
		Model:    b.model,
		Messages: messages(prompt),
	}
	// Reasoning models reject both max_tokens and a custom temperature.
	if isReasoningModel(b.model) {
		req.MaxCompletionTokens = b.maxTokens
	} else {
		req.MaxTokens = b.maxTokens
		req.Temperature = b.temperature
		// go-openai omits a zero temperature; the smallest float keeps it explicit.
		if req.Temperature == 0 {
			req.Temperature = math.SmallestNonzeroFloat32
		}
	}

	ctx, meta := withResponseMeta(ctx)
	logger.Debug("%s: chat completion model=%s key=%s", b.provider, b.model, domain.MaskSecret(b.apiKey))
	resp, err := b.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", b.mapError(err, meta)
	}
	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		return "", faults.EmptyResponse(b.provider, http.StatusOK)
	}
	logger.Debug("%s: %d prompt, %d completion tokens, finish=%s",
		b.provider, resp.Usage.PromptTokens, resp.Usage.CompletionTokens, resp.Choices[0].FinishReason)
	return resp.Choices[0].Message.Content, nil
}

// Ping lists models, which validates the key without inference. Custom
// endpoints often lack /models, so they get a one-token completion.
func (b *Backend) Ping(ctx context.Context) error {
	ctx, meta := withResponseMeta(ctx)
	if b.provider == domain.ProviderCustom {
		_, err := b.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
			Model:     b.model,
			Messages:  []openai.ChatCompletionMessage{{Role: openai.ChatMessageRoleUser, Content: "ping"}},
			MaxTokens: 1,
		})
		if err != nil {
			return b.mapError(err, meta)
		}
		return nil
	}
	if _, err := b.client.ListModels(ctx); err != nil {
		return b.mapError(err, meta)
	}
	return nil
}

// Provider returns the provider this backend serves.
func (b *Backend) Provider() domain.Provider {
	return b.provider
}

// ModelName returns the model in use.
func (b *Backend) ModelName() string {
	return b.model
}

// Close releases idle connections.
func (b *Backend) Close() error {
	b.httpClient.CloseIdleConnections()
	return nil
}

// mapError converts go-openai errors into the domain taxonomy.
func (b *Backend) mapError(err error, meta *responseMeta) error {
	retryAfter := faults.ParseRetryAfter(meta.retryAfter, b.now())

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) && apiErr.HTTPStatusCode != 0 {
		return faults.FromStatus(b.provider, apiErr.HTTPStatusCode, retryAfter, apiErr.Message)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) && reqErr.HTTPStatusCode != 0 {
		return faults.FromStatus(b.provider, reqErr.HTTPStatusCode, retryAfter, reqErr.Error())
	}
	if meta.status != 0 {
		// A response arrived but could not be decoded.
		return &domain.BackendError{
			Kind:       domain.ErrProviderResponse,
			Provider:   b.provider,
			StatusCode: meta.status,
			Message:    err.Error(),
		}
	}
	return faults.FromTransport(b.provider, err)
}

func messages(prompt domain.Prompt) []openai.ChatCompletionMessage {
	msgs := make([]openai.ChatCompletionMessage, 0, 2)
	if prompt.System != "" {
		msgs = append(msgs, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: prompt.System})
	}
	return append(msgs, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: prompt.User})
}

// isReasoningModel reports models that take max_completion_tokens instead
// of max_tokens.
func isReasoningModel(model string) bool {
	for _, prefix := range []string{"o1", "o3", "o4", "gpt-5"} {
		if strings.HasPrefix(model, prefix) {
			return true
		}
	}
	return false
}

// Package anthropic provides a model backend for the Anthropic Messages API.
package anthropic

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/tabula-labs/tabula/internal/adapters/driven/backend/faults"
	"github.com/tabula-labs/tabula/internal/core/domain"
	"github.com/tabula-labs/tabula/internal/core/ports/driven"
	"github.com/tabula-labs/tabula/internal/logger"
)

// Ensure Backend implements the interface.
var _ driven.Backend = (*Backend)(nil)

// anthropicVersion is the required API version header.
const anthropicVersion = "2023-06-01"

// maxErrorBody bounds how much of an error response is read.
const maxErrorBody = 64 << 10

// Backend sends prompts to Claude models.
type Backend struct {
	client      *http.Client
	baseURL     string
	apiKey      string
	model       string
	maxTokens   int
	temperature float32
	now         func() time.Time
}

// messagesRequest is the Anthropic /v1/messages request format.
type messagesRequest struct {
	Model       string            `json:"model"`
	Messages    []messagesMessage `json:"messages"`
	MaxTokens   int               `json:"max_tokens"`
	System      string            `json:"system,omitempty"`
	Temperature float32           `json:"temperature"`
}

// messagesMessage is the Anthropic message format.
type messagesMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// messagesResponse is the Anthropic /v1/messages response format.
type messagesResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
	Usage      struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

// errorResponse is the Anthropic error envelope.
type errorResponse struct {
	Error *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// New creates a Claude backend. cfg must already be validated.
func New(cfg domain.BackendConfig) (*Backend, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: anthropic API key is required", domain.ErrAuth)
	}
	return &Backend{
		client:      &http.Client{Timeout: cfg.Timeout},
		baseURL:     strings.TrimSuffix(cfg.ResolvedEndpoint(), "/v1"),
		apiKey:      cfg.APIKey,
		model:       cfg.ResolvedModel(),
		maxTokens:   cfg.ResolvedMaxTokens(),
		temperature: cfg.Temperature,
		now:         time.Now,
	}, nil
}

// Send posts the prompt to /v1/messages and concatenates the text blocks of
// the answer.
func (b *Backend) Send(ctx context.Context, prompt domain.Prompt) (string, error) {
	reqBody := messagesRequest{
		Model:       b.model,
		Messages:    []messagesMessage{{Role: "user", Content: prompt.User}},
		MaxTokens:   b.maxTokens,
		System:      prompt.System,
		Temperature: b.temperature,
	}
	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.baseURL+"/v1/messages", bytes.NewReader(jsonBody))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	b.authorise(req)

	logger.Debug("anthropic: POST /v1/messages model=%s key=%s", b.model, domain.MaskSecret(b.apiKey))
	resp, err := b.client.Do(req)
	if err != nil {
		return "", faults.FromTransport(domain.ProviderClaude, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", b.statusError(resp)
	}

	var msgResp messagesResponse
	if err := json.NewDecoder(resp.Body).Decode(&msgResp); err != nil {
		if ctx.Err() != nil {
			return "", faults.FromTransport(domain.ProviderClaude, ctx.Err())
		}
		return "", &domain.BackendError{
			Kind:       domain.ErrProviderResponse,
			Provider:   domain.ProviderClaude,
			StatusCode: resp.StatusCode,
			Message:    "decode response: " + err.Error(),
		}
	}

	var result strings.Builder
	for _, block := range msgResp.Content {
		if block.Type == "text" {
			result.WriteString(block.Text)
		}
	}
	if strings.TrimSpace(result.String()) == "" {
		return "", faults.EmptyResponse(domain.ProviderClaude, resp.StatusCode)
	}
	logger.Debug("anthropic: %d input, %d output tokens, stop=%s",
		msgResp.Usage.InputTokens, msgResp.Usage.OutputTokens, msgResp.StopReason)
	return result.String(), nil
}

// Ping validates the key by listing models, which runs no inference.
func (b *Backend) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.baseURL+"/v1/models", http.NoBody)
	if err != nil {
		return fmt.Errorf("anthropic: create ping request: %w", err)
	}
	b.authorise(req)

	resp, err := b.client.Do(req)
	if err != nil {
		return faults.FromTransport(domain.ProviderClaude, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return b.statusError(resp)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

// Provider returns domain.ProviderClaude.
func (b *Backend) Provider() domain.Provider {
	return domain.ProviderClaude
}

// ModelName returns the model in use.
func (b *Backend) ModelName() string {
	return b.model
}

// Close releases resources.
func (b *Backend) Close() error {
	b.client.CloseIdleConnections()
	return nil
}

func (b *Backend) authorise(req *http.Request) {
	req.Header.Set("x-api-key", b.apiKey)
	req.Header.Set("anthropic-version", anthropicVersion)
}

// statusError maps a non-200 response, preferring the message from the
// error envelope over the raw body.
func (b *Backend) statusError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	message := string(body)
	var envelope errorResponse
	if json.Unmarshal(body, &envelope) == nil && envelope.Error != nil {
		message = envelope.Error.Type + ": " + envelope.Error.Message
	}
	retryAfter := faults.ParseRetryAfter(resp.Header.Get("Retry-After"), b.now())
	return faults.FromStatus(domain.ProviderClaude, resp.StatusCode, retryAfter, message)
}

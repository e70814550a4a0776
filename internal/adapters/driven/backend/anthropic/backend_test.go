package anthropic

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tabula-labs/tabula/internal/core/domain"
)

func newTestBackend(t *testing.T, handler http.HandlerFunc) *Backend {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return backendFor(t, server.URL)
}

func backendFor(t *testing.T, url string) *Backend {
	t.Helper()
	b, err := New(domain.BackendConfig{
		Provider:  domain.ProviderClaude,
		Endpoint:  url,
		APIKey:    "sk-ant-test-5678",
		MaxTokens: 512,
	})
	require.NoError(t, err)
	return b
}

func TestNew_RequiresKey(t *testing.T) {
	_, err := New(domain.BackendConfig{Provider: domain.ProviderClaude})
	assert.ErrorIs(t, err, domain.ErrAuth)
}

func TestNew_Defaults(t *testing.T) {
	b, err := New(domain.BackendConfig{Provider: domain.ProviderClaude, APIKey: "k"})
	require.NoError(t, err)

	assert.Equal(t, "https://api.anthropic.com", b.baseURL)
	assert.Equal(t, "claude-3-5-sonnet-latest", b.ModelName())
	assert.Equal(t, domain.DefaultMaxTokens, b.maxTokens)
	assert.Equal(t, domain.ProviderClaude, b.Provider())
}

func TestBackend_Send(t *testing.T) {
	var got messagesRequest
	b := newTestBackend(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		assert.Equal(t, "sk-ant-test-5678", r.Header.Get("x-api-key"))
		assert.Equal(t, anthropicVersion, r.Header.Get("anthropic-version"))
		assert.Empty(t, r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"content":[{"type":"text","text":"Hello "},{"type":"tool_use"},{"type":"text","text":"world"}],"stop_reason":"end_turn"}`))
	})

	out, err := b.Send(context.Background(), domain.Prompt{System: "preamble", User: "question"})

	require.NoError(t, err)
	assert.Equal(t, "Hello world", out)
	assert.Equal(t, "preamble", got.System)
	assert.Equal(t, 512, got.MaxTokens)
	require.Len(t, got.Messages, 1)
	assert.Equal(t, "user", got.Messages[0].Role)
	assert.Equal(t, "question", got.Messages[0].Content)
}

func TestBackend_Send_StatusMapping(t *testing.T) {
	tests := []struct {
		name   string
		status int
		want   error
	}{
		{"unauthorised", http.StatusUnauthorized, domain.ErrAuth},
		{"forbidden", http.StatusForbidden, domain.ErrAuth},
		{"rate limited", http.StatusTooManyRequests, domain.ErrRateLimit},
		{"overloaded", 529, domain.ErrRateLimit},
		{"server error", http.StatusInternalServerError, domain.ErrNetwork},
		{"bad request", http.StatusBadRequest, domain.ErrProviderResponse},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := newTestBackend(t, func(w http.ResponseWriter, _ *http.Request) {
				w.Header().Set("Retry-After", "7")
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(`{"type":"error","error":{"type":"some_error","message":"details"}}`))
			})

			_, err := b.Send(context.Background(), domain.Prompt{User: "q"})

			assert.ErrorIs(t, err, tt.want)
			assert.Contains(t, err.Error(), "some_error: details")
			assert.Equal(t, 7*time.Second, domain.RetryAfterHint(err))
		})
	}
}

func TestBackend_Send_EmptyContent(t *testing.T) {
	b := newTestBackend(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"content":[]}`))
	})

	_, err := b.Send(context.Background(), domain.Prompt{User: "q"})

	assert.ErrorIs(t, err, domain.ErrProviderResponse)
}

func TestBackend_Send_Timeout(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		_, _ = io.Copy(io.Discard, r.Body)
		select {
		case <-r.Context().Done():
		case <-release:
		}
	}))
	t.Cleanup(server.Close)
	// Cleanups run last-in first-out: release the handler before Close waits on it.
	t.Cleanup(func() { close(release) })
	b := backendFor(t, server.URL)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := b.Send(ctx, domain.Prompt{User: "q"})

	assert.ErrorIs(t, err, domain.ErrTimeout)
}

func TestBackend_Send_NetworkFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := server.URL
	server.Close()

	b, err := New(domain.BackendConfig{Provider: domain.ProviderClaude, Endpoint: url, APIKey: "k"})
	require.NoError(t, err)

	_, err = b.Send(context.Background(), domain.Prompt{User: "q"})
	assert.ErrorIs(t, err, domain.ErrNetwork)
}

func TestBackend_Ping(t *testing.T) {
	b := newTestBackend(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/v1/models", r.URL.Path)
		if r.Header.Get("x-api-key") != "sk-ant-test-5678" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = w.Write([]byte(`{"data":[]}`))
	})

	require.NoError(t, b.Ping(context.Background()))

	b.apiKey = "wrong"
	assert.ErrorIs(t, b.Ping(context.Background()), domain.ErrAuth)
}

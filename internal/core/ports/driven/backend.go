package driven

import (
	"context"

	"github.com/tabula-labs/tabula/internal/core/domain"
)

// Backend is one configured AI model endpoint. Adapters translate the
// provider-neutral prompt into the provider's wire format and map every
// failure onto the domain error taxonomy (domain.ErrAuth, domain.ErrRateLimit,
// domain.ErrNetwork, domain.ErrTimeout, domain.ErrProviderResponse).
type Backend interface {
	// Send submits a prompt and returns the model's raw text response.
	// This is the only blocking operation in the engine.
	Send(ctx context.Context, prompt domain.Prompt) (string, error)

	// Ping checks connectivity and credentials with a minimal request.
	Ping(ctx context.Context) error

	// Provider returns the provider this backend talks to.
	Provider() domain.Provider

	// ModelName returns the model in use.
	ModelName() string

	// Close releases any resources held by the backend.
	Close() error
}

// BackendRegistry maps a backend configuration to a ready Backend.
// New providers are added by registering a constructor, without touching
// the orchestrator.
type BackendRegistry interface {
	// Resolve validates cfg and returns a backend for it.
	Resolve(cfg domain.BackendConfig) (Backend, error)

	// Providers lists the providers that can be resolved.
	Providers() []domain.Provider
}

// Package backend resolves backend configurations to ready model backends.
// Builders are registered per provider; every resolved backend is paced by
// a per-provider token bucket shared across requests.
package backend

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"golang.org/x/time/rate"

	"github.com/tabula-labs/tabula/internal/adapters/driven/backend/anthropic"
	"github.com/tabula-labs/tabula/internal/adapters/driven/backend/openaicompat"
	"github.com/tabula-labs/tabula/internal/core/domain"
	"github.com/tabula-labs/tabula/internal/core/ports/driven"
)

// Ensure Registry implements the interface.
var _ driven.BackendRegistry = (*Registry)(nil)

// BuilderFunc creates a Backend from a validated configuration.
type BuilderFunc func(cfg domain.BackendConfig) (driven.Backend, error)

// Registry maps providers to their builders.
type Registry struct {
	mu       sync.Mutex
	builders map[domain.Provider]BuilderFunc
	limiters map[domain.Provider]*rate.Limiter
	limit    rate.Limit
	burst    int
}

// NewRegistry creates an empty registry. Backends it resolves are limited
// to requestsPerSecond with the given burst; a non-positive rate disables
// pacing.
func NewRegistry(requestsPerSecond float64, burst int) *Registry {
	limit := rate.Inf
	if requestsPerSecond > 0 {
		limit = rate.Limit(requestsPerSecond)
	}
	if burst < 1 {
		burst = 1
	}
	return &Registry{
		builders: make(map[domain.Provider]BuilderFunc),
		limiters: make(map[domain.Provider]*rate.Limiter),
		limit:    limit,
		burst:    burst,
	}
}

// NewDefaultRegistry creates a registry with every built-in provider.
func NewDefaultRegistry(settings domain.EngineSettings) *Registry {
	r := NewRegistry(settings.RequestsPerSecond, settings.Burst)
	openAICompatible := func(cfg domain.BackendConfig) (driven.Backend, error) {
		return openaicompat.New(cfg)
	}
	r.Register(domain.ProviderDeepSeek, openAICompatible)
	r.Register(domain.ProviderOpenAI, openAICompatible)
	r.Register(domain.ProviderCustom, openAICompatible)
	r.Register(domain.ProviderClaude, func(cfg domain.BackendConfig) (driven.Backend, error) {
		return anthropic.New(cfg)
	})
	return r
}

// Register adds or replaces the builder for a provider.
func (r *Registry) Register(provider domain.Provider, builder BuilderFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.builders[provider] = builder
}

// Has returns true if a builder is registered for the provider.
func (r *Registry) Has(provider domain.Provider) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.builders[provider]
	return ok
}

// Providers returns all registered providers, sorted.
func (r *Registry) Providers() []domain.Provider {
	r.mu.Lock()
	defer r.mu.Unlock()
	providers := make([]domain.Provider, 0, len(r.builders))
	for p := range r.builders {
		providers = append(providers, p)
	}
	sort.Slice(providers, func(i, j int) bool { return providers[i] < providers[j] })
	return providers
}

// Resolve validates cfg and builds a paced backend for it.
func (r *Registry) Resolve(cfg domain.BackendConfig) (driven.Backend, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	builder, ok := r.builders[cfg.Provider]
	limiter := r.limiterFor(cfg.Provider)
	r.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: no backend registered for %s", domain.ErrInvalidConfig, cfg.Provider)
	}

	b, err := builder(cfg)
	if err != nil {
		return nil, fmt.Errorf("build %s backend: %w", cfg.Provider, err)
	}
	return &throttled{Backend: b, limiter: limiter}, nil
}

// limiterFor returns the provider's shared limiter (caller must hold lock).
func (r *Registry) limiterFor(provider domain.Provider) *rate.Limiter {
	l, ok := r.limiters[provider]
	if !ok {
		l = rate.NewLimiter(r.limit, r.burst)
		r.limiters[provider] = l
	}
	return l
}

// throttled waits for a token before each Send.
type throttled struct {
	driven.Backend
	limiter *rate.Limiter
}

func (t *throttled) Send(ctx context.Context, prompt domain.Prompt) (string, error) {
	if err := t.limiter.Wait(ctx); err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		// The wait would outlast the attempt deadline.
		return "", &domain.BackendError{
			Kind:     domain.ErrRateLimit,
			Provider: t.Provider(),
			Message:  "local request pacing: " + err.Error(),
		}
	}
	return t.Backend.Send(ctx, prompt)
}

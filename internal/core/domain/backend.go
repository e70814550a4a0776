package domain

import (
	"fmt"
	"strings"
	"time"
)

const unknownDescription = "Unknown"

// Provider identifies an AI model backend.
type Provider string

// Available providers.
const (
	// ProviderDeepSeek is the DeepSeek cloud API (OpenAI compatible).
	ProviderDeepSeek Provider = "deepseek"

	// ProviderOpenAI is the OpenAI cloud API.
	ProviderOpenAI Provider = "openai"

	// ProviderClaude is the Anthropic Messages API.
	ProviderClaude Provider = "claude"

	// ProviderCustom is any OpenAI compatible endpoint with a caller
	// supplied URL and header template.
	ProviderCustom Provider = "custom"
)

// IsValid returns true if the provider is recognised.
func (p Provider) IsValid() bool {
	switch p {
	case ProviderDeepSeek, ProviderOpenAI, ProviderClaude, ProviderCustom:
		return true
	default:
		return false
	}
}

// RequiresEndpoint returns true if the provider has no default endpoint.
func (p Provider) RequiresEndpoint() bool {
	return p == ProviderCustom
}

// String returns the string representation.
func (p Provider) String() string {
	return string(p)
}

// Description returns a human-readable description of the provider.
func (p Provider) Description() string {
	switch p {
	case ProviderDeepSeek:
		return "DeepSeek (cloud)"
	case ProviderOpenAI:
		return "OpenAI (cloud)"
	case ProviderClaude:
		return "Anthropic Claude (cloud)"
	case ProviderCustom:
		return "Custom OpenAI-compatible endpoint"
	default:
		return unknownDescription
	}
}

// AllProviders returns every supported provider.
func AllProviders() []Provider {
	return []Provider{ProviderDeepSeek, ProviderOpenAI, ProviderClaude, ProviderCustom}
}

// DefaultModels returns the default model for each provider.
func DefaultModels() map[Provider]string {
	return map[Provider]string{
		ProviderDeepSeek: "deepseek-chat",
		ProviderOpenAI:   "gpt-4o-mini",
		ProviderClaude:   "claude-3-5-sonnet-latest",
	}
}

// DefaultEndpoints returns the default base URL for each provider.
func DefaultEndpoints() map[Provider]string {
	return map[Provider]string{
		ProviderDeepSeek: "https://api.deepseek.com",
		ProviderOpenAI:   "https://api.openai.com/v1",
		ProviderClaude:   "https://api.anthropic.com",
	}
}

// Model output defaults.
const (
	DefaultTemperature = 0.0
	DefaultMaxTokens   = 8192
)

// APIKeyPlaceholder is substituted with the API key in custom header values.
const APIKeyPlaceholder = "{{api_key}}"

// BackendConfig describes one model backend as chosen by the caller.
type BackendConfig struct {
	// Provider selects the adapter.
	Provider Provider

	// Endpoint overrides the provider's base URL. Required for custom.
	Endpoint string

	// APIKey is the credential. Never persisted, never logged unmasked.
	APIKey string

	// Model is the model name. Empty means the provider default.
	Model string

	// Temperature for sampling.
	Temperature float32

	// MaxTokens caps the response length. Zero means DefaultMaxTokens.
	MaxTokens int

	// Headers is the custom provider's header template. Values may contain
	// APIKeyPlaceholder. When empty, a bearer token is sent.
	Headers map[string]string

	// Timeout overrides the engine's per-attempt timeout when non-zero.
	Timeout time.Duration
}

// Validate checks that the config can be handed to an adapter. A missing
// key is an authentication failure, everything else is invalid config.
func (c BackendConfig) Validate() error {
	if !c.Provider.IsValid() {
		return fmt.Errorf("%w: unknown provider %q", ErrInvalidConfig, c.Provider)
	}
	if strings.TrimSpace(c.APIKey) == "" {
		return fmt.Errorf("%w: no API key for %s", ErrAuth, c.Provider)
	}
	if c.Provider.RequiresEndpoint() && strings.TrimSpace(c.Endpoint) == "" {
		return fmt.Errorf("%w: %s requires an endpoint", ErrInvalidConfig, c.Provider)
	}
	if c.MaxTokens < 0 {
		return fmt.Errorf("%w: max tokens must not be negative", ErrInvalidConfig)
	}
	return nil
}

// ResolvedModel returns the configured model or the provider default.
func (c BackendConfig) ResolvedModel() string {
	if c.Model != "" {
		return c.Model
	}
	return DefaultModels()[c.Provider]
}

// ResolvedEndpoint returns the configured endpoint or the provider default.
func (c BackendConfig) ResolvedEndpoint() string {
	if c.Endpoint != "" {
		return strings.TrimRight(c.Endpoint, "/")
	}
	return DefaultEndpoints()[c.Provider]
}

// ResolvedMaxTokens returns MaxTokens or the default.
func (c BackendConfig) ResolvedMaxTokens() int {
	if c.MaxTokens > 0 {
		return c.MaxTokens
	}
	return DefaultMaxTokens
}

// MaskedKey returns the key reduced to its last four characters.
func (c BackendConfig) MaskedKey() string {
	return MaskSecret(c.APIKey)
}

// MaskSecret hides all but the last four characters of a secret.
func MaskSecret(secret string) string {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return ""
	}
	if len(secret) <= 4 {
		return "****"
	}
	return "****" + secret[len(secret)-4:]
}

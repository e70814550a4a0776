package services

import (
	"fmt"
	"time"

	"github.com/tabula-labs/tabula/internal/core/domain"
	"github.com/tabula-labs/tabula/internal/core/ports/driven"
	"github.com/tabula-labs/tabula/internal/core/ports/driving"
)

// Ensure SettingsService implements the interface.
var _ driving.SettingsService = (*SettingsService)(nil)

// Config keys for settings storage.
//
//nolint:gosec // G101: These are config key names, not actual credentials.
const (
	keyMaxFileBytes        = "engine.max_file_bytes"
	keySampleRows          = "engine.sample_rows"
	keyMaxTextChars        = "engine.max_text_chars"
	keyRequestTimeout      = "engine.request_timeout"
	keyBaseDelay           = "engine.base_delay"
	keyMultiplier          = "engine.backoff_multiplier"
	keyMaxRateLimitRetries = "engine.max_rate_limit_retries"
	keyMaxNetworkRetries   = "engine.max_network_retries"
	keyRequestsPerSecond   = "engine.requests_per_second"
	keyBurst               = "engine.burst"
	keyHistoryLimit        = "engine.history_limit"

	keyBackendProvider    = "backend.provider"
	keyBackendModel       = "backend.model"
	keyBackendEndpoint    = "backend.endpoint"
	keyBackendAPIKey      = "backend.api_key"
	keyBackendTemperature = "backend.temperature"
	keyBackendMaxTokens   = "backend.max_tokens"
	keyBackendHeaders     = "backend.headers"
)

// SettingsService manages engine settings.
type SettingsService struct {
	configStore driven.ConfigStore
}

// NewSettingsService creates a new settings service.
func NewSettingsService(configStore driven.ConfigStore) *SettingsService {
	return &SettingsService{
		configStore: configStore,
	}
}

// Get retrieves current engine settings. Missing or malformed values fall
// back to defaults; the result is validated as a whole.
func (s *SettingsService) Get() (*domain.EngineSettings, error) {
	defaults := domain.DefaultEngineSettings()

	settings := &domain.EngineSettings{
		MaxFileBytes:        int64(s.getInt(keyMaxFileBytes, int(defaults.MaxFileBytes))),
		SampleRows:          s.getInt(keySampleRows, defaults.SampleRows),
		MaxTextChars:        s.getInt(keyMaxTextChars, defaults.MaxTextChars),
		RequestTimeout:      s.getDuration(keyRequestTimeout, defaults.RequestTimeout),
		BaseDelay:           s.getDuration(keyBaseDelay, defaults.BaseDelay),
		Multiplier:          s.getFloat(keyMultiplier, defaults.Multiplier),
		MaxRateLimitRetries: s.getInt(keyMaxRateLimitRetries, defaults.MaxRateLimitRetries),
		MaxNetworkRetries:   s.getInt(keyMaxNetworkRetries, defaults.MaxNetworkRetries),
		RequestsPerSecond:   s.getFloat(keyRequestsPerSecond, defaults.RequestsPerSecond),
		Burst:               s.getInt(keyBurst, defaults.Burst),
		HistoryLimit:        s.getInt(keyHistoryLimit, defaults.HistoryLimit),
		DefaultBackend: domain.BackendConfig{
			Provider:    s.getProvider(defaults.DefaultBackend.Provider),
			Model:       s.configStore.GetString(keyBackendModel),
			Endpoint:    s.configStore.GetString(keyBackendEndpoint),
			APIKey:      s.configStore.GetString(keyBackendAPIKey),
			Temperature: float32(s.getFloat(keyBackendTemperature, float64(defaults.DefaultBackend.Temperature))),
			MaxTokens:   s.getInt(keyBackendMaxTokens, defaults.DefaultBackend.MaxTokens),
			Headers:     s.configStore.GetStringMap(keyBackendHeaders),
		},
	}

	if err := settings.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", s.configStore.Path(), err)
	}
	return settings, nil
}

// SetDefaultBackend persists the default backend. The key is written only
// when saveKey is true; otherwise any stored key is left untouched.
func (s *SettingsService) SetDefaultBackend(cfg domain.BackendConfig, saveKey bool) error {
	if !cfg.Provider.IsValid() {
		return fmt.Errorf("%w: unknown provider %q", domain.ErrInvalidConfig, cfg.Provider)
	}
	if cfg.Provider.RequiresEndpoint() && cfg.Endpoint == "" {
		return fmt.Errorf("%w: provider %s requires an endpoint", domain.ErrInvalidConfig, cfg.Provider)
	}

	if err := s.configStore.Set(keyBackendProvider, cfg.Provider.String()); err != nil {
		return fmt.Errorf("save backend provider: %w", err)
	}
	if err := s.configStore.Set(keyBackendModel, cfg.Model); err != nil {
		return fmt.Errorf("save backend model: %w", err)
	}
	if err := s.configStore.Set(keyBackendEndpoint, cfg.Endpoint); err != nil {
		return fmt.Errorf("save backend endpoint: %w", err)
	}
	if err := s.configStore.Set(keyBackendTemperature, float64(cfg.Temperature)); err != nil {
		return fmt.Errorf("save backend temperature: %w", err)
	}
	if cfg.MaxTokens > 0 {
		if err := s.configStore.Set(keyBackendMaxTokens, cfg.MaxTokens); err != nil {
			return fmt.Errorf("save backend max_tokens: %w", err)
		}
	}
	if len(cfg.Headers) > 0 {
		if err := s.configStore.Set(keyBackendHeaders, cfg.Headers); err != nil {
			return fmt.Errorf("save backend headers: %w", err)
		}
	}
	if saveKey && cfg.APIKey != "" {
		if err := s.configStore.Set(keyBackendAPIKey, cfg.APIKey); err != nil {
			return fmt.Errorf("save backend api_key: %w", err)
		}
	}
	return nil
}

// GetDefaults returns default settings.
func (s *SettingsService) GetDefaults() domain.EngineSettings {
	return domain.DefaultEngineSettings()
}

// Helper methods for reading config with defaults.

func (s *SettingsService) getInt(key string, defaultVal int) int {
	if _, exists := s.configStore.Get(key); !exists {
		return defaultVal
	}
	return s.configStore.GetInt(key)
}

func (s *SettingsService) getFloat(key string, defaultVal float64) float64 {
	if _, exists := s.configStore.Get(key); !exists {
		return defaultVal
	}
	return s.configStore.GetFloat(key)
}

// getDuration accepts a duration string ("45s", "2m") or a number of seconds.
func (s *SettingsService) getDuration(key string, defaultVal time.Duration) time.Duration {
	val, exists := s.configStore.Get(key)
	if !exists {
		return defaultVal
	}
	if str, ok := val.(string); ok {
		d, err := time.ParseDuration(str)
		if err != nil {
			return defaultVal
		}
		return d
	}
	return time.Duration(s.configStore.GetFloat(key) * float64(time.Second))
}

func (s *SettingsService) getProvider(defaultVal domain.Provider) domain.Provider {
	val := s.configStore.GetString(keyBackendProvider)
	if val == "" {
		return defaultVal
	}
	provider := domain.Provider(val)
	if !provider.IsValid() {
		return defaultVal
	}
	return provider
}

package domain

import (
	"fmt"
	"time"
)

// EngineSettings holds the tunables of the analysis engine.
type EngineSettings struct {
	// MaxFileBytes is the per-file size ceiling, checked before parsing.
	MaxFileBytes int64

	// SampleRows is how many rows per dataset go into the data description.
	SampleRows int

	// MaxTextChars truncates free-text datasets in the data description.
	MaxTextChars int

	// RequestTimeout bounds a single backend attempt.
	RequestTimeout time.Duration

	// BaseDelay and Multiplier shape the exponential backoff.
	BaseDelay  time.Duration
	Multiplier float64

	// MaxRateLimitRetries applies to rate limit and timeout failures.
	MaxRateLimitRetries int

	// MaxNetworkRetries applies to transport failures.
	MaxNetworkRetries int

	// RequestsPerSecond and Burst pace outgoing backend calls.
	RequestsPerSecond float64
	Burst             int

	// HistoryLimit is the default page size for history listings.
	HistoryLimit int

	// DefaultBackend is used when a request does not name a provider.
	DefaultBackend BackendConfig
}

// DefaultEngineSettings returns settings with sensible defaults.
// The default backend has no API key; users supply one per request or
// through the config file.
func DefaultEngineSettings() EngineSettings {
	return EngineSettings{
		MaxFileBytes:        50 << 20,
		SampleRows:          50,
		MaxTextChars:        20000,
		RequestTimeout:      60 * time.Second,
		BaseDelay:           time.Second,
		Multiplier:          2,
		MaxRateLimitRetries: 2,
		MaxNetworkRetries:   1,
		RequestsPerSecond:   2,
		Burst:               4,
		HistoryLimit:        DefaultHistoryLimit,
		DefaultBackend: BackendConfig{
			Provider:    ProviderDeepSeek,
			Temperature: DefaultTemperature,
			MaxTokens:   DefaultMaxTokens,
		},
	}
}

// Validate checks the settings for values the engine cannot run with.
func (s EngineSettings) Validate() error {
	switch {
	case s.MaxFileBytes <= 0:
		return fmt.Errorf("%w: max file bytes must be positive", ErrInvalidInput)
	case s.SampleRows < 0:
		return fmt.Errorf("%w: sample rows must not be negative", ErrInvalidInput)
	case s.MaxTextChars <= 0:
		return fmt.Errorf("%w: max text chars must be positive", ErrInvalidInput)
	case s.RequestTimeout <= 0:
		return fmt.Errorf("%w: request timeout must be positive", ErrInvalidInput)
	case s.BaseDelay < 0:
		return fmt.Errorf("%w: base delay must not be negative", ErrInvalidInput)
	case s.Multiplier < 1:
		return fmt.Errorf("%w: backoff multiplier must be at least 1", ErrInvalidInput)
	case s.MaxRateLimitRetries < 0 || s.MaxNetworkRetries < 0:
		return fmt.Errorf("%w: retry counts must not be negative", ErrInvalidInput)
	case s.RequestsPerSecond <= 0 || s.Burst <= 0:
		return fmt.Errorf("%w: rate limit must be positive", ErrInvalidInput)
	case s.HistoryLimit <= 0:
		return fmt.Errorf("%w: history limit must be positive", ErrInvalidInput)
	}
	return nil
}

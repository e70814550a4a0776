package driving

import "github.com/tabula-labs/tabula/internal/core/domain"

// SettingsService manages engine settings and the default backend.
type SettingsService interface {
	// Get retrieves current engine settings, defaults filled in.
	Get() (*domain.EngineSettings, error)

	// SetDefaultBackend persists the default provider, model and endpoint.
	// The API key is stored only when saveKey is true.
	SetDefaultBackend(cfg domain.BackendConfig, saveKey bool) error

	// GetDefaults returns default settings.
	GetDefaults() domain.EngineSettings
}

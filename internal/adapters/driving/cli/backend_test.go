package cli

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tabula-labs/tabula/internal/core/domain"
)

func TestBackendListCmd(t *testing.T) {
	out, err := executeCommand(t, "", "backend", "list")
	require.NoError(t, err)

	for _, p := range domain.AllProviders() {
		assert.Contains(t, out, string(p))
	}
	assert.Contains(t, out, "deepseek-chat")
	assert.Contains(t, out, "endpoint: (required)")
}

func TestBackendSetAndShow(t *testing.T) {
	ts, cleanup := setupTestServices()
	defer cleanup()

	out, err := executeCommand(t, "", "backend", "set", "-p", "claude", "-m", "claude-3-opus", "-k", "sk-ant-secret1234", "--save-key")
	require.NoError(t, err)
	assert.Contains(t, out, "Default backend set to Anthropic Claude (cloud) (claude-3-opus)")
	assert.Contains(t, out, "****1234")

	settings, err := ts.settings.Get()
	require.NoError(t, err)
	assert.Equal(t, domain.ProviderClaude, settings.DefaultBackend.Provider)
	assert.Equal(t, "sk-ant-secret1234", settings.DefaultBackend.APIKey)

	out, err = executeCommand(t, "", "backend", "show")
	require.NoError(t, err)
	assert.Contains(t, out, "Anthropic Claude (cloud)")
	assert.Contains(t, out, "claude-3-opus")
	assert.Contains(t, out, "****1234")
	assert.NotContains(t, out, "sk-ant-secret1234")
}

func TestBackendSetCmd_RequiresProvider(t *testing.T) {
	_, cleanup := setupTestServices()
	defer cleanup()

	_, err := executeCommand(t, "", "backend", "set", "-m", "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--provider")
}

func TestBackendTestCmd(t *testing.T) {
	t.Run("ok", func(t *testing.T) {
		ts, cleanup := setupTestServices()
		defer cleanup()

		out, err := executeCommand(t, "", "backend", "test", "-p", "openai", "-k", "sk-test")
		require.NoError(t, err)
		assert.Contains(t, out, "Testing openai... OK")
		assert.Equal(t, domain.ProviderOpenAI, ts.analysis.lastCfg.Provider)
		assert.Equal(t, "sk-test", ts.analysis.lastCfg.APIKey)
	})

	t.Run("failure is classified", func(t *testing.T) {
		ts, cleanup := setupTestServices()
		defer cleanup()
		ts.analysis.testErr = fmt.Errorf("openai: %w", domain.ErrAuth)

		out, err := executeCommand(t, "", "backend", "test", "-p", "openai", "-k", "bad")
		require.Error(t, err)
		assert.Contains(t, out, "FAILED")
		assert.True(t, errors.Is(err, domain.ErrAuth))
		assert.Contains(t, err.Error(), domain.DescribeError(domain.ErrorKindAuth))
	})
}

func TestBackendOptions_KeyFromEnvironment(t *testing.T) {
	t.Setenv(apiKeyEnv, "sk-env")

	opts := backendOptions{provider: " DeepSeek "}
	cfg := opts.config()
	assert.Equal(t, domain.ProviderDeepSeek, cfg.Provider)
	assert.Equal(t, "sk-env", cfg.APIKey)

	opts.key = "sk-flag"
	assert.Equal(t, "sk-flag", opts.config().APIKey)
}

func TestValueOr(t *testing.T) {
	assert.Equal(t, "x", valueOr("x", "y"))
	assert.Equal(t, "y", valueOr("", "y"))
}

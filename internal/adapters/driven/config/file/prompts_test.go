package file

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tabula-labs/tabula/internal/core/domain"
	"github.com/tabula-labs/tabula/internal/core/ports/driven"
)

func TestPromptStore_ImplementsInterface(t *testing.T) {
	var _ driven.PromptStore = (*PromptStore)(nil)
}

func TestNewPromptStore_WithCustomDir(t *testing.T) {
	dir := t.TempDir()

	store, err := NewPromptStore(dir)

	require.NoError(t, err)
	assert.Equal(t, dir, store.Dir())
}

func TestPromptStore_Load_CreatesDefaultFiles(t *testing.T) {
	dir := t.TempDir()
	store, err := NewPromptStore(dir)
	require.NoError(t, err)

	prompt, err := store.Load(driven.PromptAnalysisSystem)
	require.NoError(t, err)
	assert.Equal(t, domain.DefaultAnalysisPreamble, prompt)

	for _, f := range []string{"analysis_system.txt", "README.md"} {
		_, err := os.Stat(filepath.Join(dir, f))
		assert.NoError(t, err, "expected file %s to exist", f)
	}
}

func TestPromptStore_Load_ReturnsCustomContent(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(
		filepath.Join(dir, "analysis_system.txt"),
		[]byte("\n  Answer in one sentence.  \n"),
		0600,
	))

	store, err := NewPromptStore(dir)
	require.NoError(t, err)

	prompt, err := store.Load(driven.PromptAnalysisSystem)
	require.NoError(t, err)
	assert.Equal(t, "Answer in one sentence.", prompt)
}

func TestPromptStore_Load_FallsBackToDefault(t *testing.T) {
	dir := t.TempDir()
	store, err := NewPromptStore(dir)
	require.NoError(t, err)

	_, err = store.Load(driven.PromptAnalysisSystem)
	require.NoError(t, err)
	require.NoError(t, os.Remove(filepath.Join(dir, "analysis_system.txt")))
	store.Reload()

	prompt, err := store.Load(driven.PromptAnalysisSystem)
	require.NoError(t, err)
	assert.Equal(t, domain.DefaultAnalysisPreamble, prompt)
}

func TestPromptStore_Load_BlankFileUsesDefault(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "analysis_system.txt"), []byte(" \n\n"), 0600))

	store, err := NewPromptStore(dir)
	require.NoError(t, err)

	prompt, err := store.Load(driven.PromptAnalysisSystem)
	require.NoError(t, err)
	assert.Equal(t, domain.DefaultAnalysisPreamble, prompt)
}

func TestPromptStore_Load_ExtraPromptFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "summary.txt"), []byte("Summarise."), 0600))

	store, err := NewPromptStore(dir)
	require.NoError(t, err)

	prompt, err := store.Load("summary")
	require.NoError(t, err)
	assert.Equal(t, "Summarise.", prompt)
}

func TestPromptStore_Load_InitFailureUsesDefault(t *testing.T) {
	blocker := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0600))

	store, err := NewPromptStore(filepath.Join(blocker, "prompts"))
	require.NoError(t, err)

	prompt, err := store.Load(driven.PromptAnalysisSystem)
	require.NoError(t, err)
	assert.Equal(t, domain.DefaultAnalysisPreamble, prompt)

	_, err = store.Load("no_such_prompt")
	assert.Error(t, err)
}

func TestPromptStore_Load_UnknownPrompt(t *testing.T) {
	store, err := NewPromptStore(t.TempDir())
	require.NoError(t, err)

	_, err = store.Load("no_such_prompt")
	assert.Error(t, err)
}

func TestPromptStore_Reload_PicksUpEdits(t *testing.T) {
	dir := t.TempDir()
	store, err := NewPromptStore(dir)
	require.NoError(t, err)

	_, err = store.Load(driven.PromptAnalysisSystem)
	require.NoError(t, err)

	path := filepath.Join(dir, "analysis_system.txt")
	require.NoError(t, os.WriteFile(path, []byte("edited"), 0600))

	cached, err := store.Load(driven.PromptAnalysisSystem)
	require.NoError(t, err)
	assert.Equal(t, domain.DefaultAnalysisPreamble, cached)

	store.Reload()
	fresh, err := store.Load(driven.PromptAnalysisSystem)
	require.NoError(t, err)
	assert.Equal(t, "edited", fresh)
}

func TestPromptStore_DoesNotOverwriteExistingFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "analysis_system.txt")
	require.NoError(t, os.WriteFile(path, []byte("mine"), 0600))

	store, err := NewPromptStore(dir)
	require.NoError(t, err)
	_, _ = store.Load(driven.PromptAnalysisSystem)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "mine", string(data))
}

func TestPromptStore_Load_ConcurrentAccess(t *testing.T) {
	store, err := NewPromptStore(t.TempDir())
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			prompt, err := store.Load(driven.PromptAnalysisSystem)
			assert.NoError(t, err)
			assert.NotEmpty(t, prompt)
		}()
		if i%5 == 0 {
			store.Reload()
		}
	}
	wg.Wait()
}

package file

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/tabula-labs/tabula/internal/core/domain"
	"github.com/tabula-labs/tabula/internal/core/ports/driven"
)

// Ensure PromptStore implements the interface.
var _ driven.PromptStore = (*PromptStore)(nil)

// defaultPrompts are the built-in prompts, written out as editable files
// the first time the store is used.
var defaultPrompts = map[string]string{
	driven.PromptAnalysisSystem: domain.DefaultAnalysisPreamble,
}

// PromptStore serves prompts from <dir>/<name>.txt, falling back to the
// built-in text when a file is missing, blank or unreadable.
//
// Nothing touches the disk until the first Load or Watch.
type PromptStore struct {
	promptDir string

	initOnce sync.Once
	initErr  error

	mu    sync.RWMutex
	cache map[string]string
	// gen increments on every Reload so a read that raced with it is
	// not cached.
	gen uint64
}

// NewPromptStore creates a store over promptDir, or ~/.tabula/prompts when
// promptDir is empty.
func NewPromptStore(promptDir string) (*PromptStore, error) {
	if promptDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("get home directory: %w", err)
		}
		promptDir = filepath.Join(home, ".tabula", "prompts")
	}
	return &PromptStore{
		promptDir: promptDir,
		cache:     make(map[string]string),
	}, nil
}

// Load returns the prompt called name. Unknown names are an error unless a
// file for them exists.
func (s *PromptStore) Load(name string) (string, error) {
	s.initOnce.Do(s.initialise)
	builtin, known := defaultPrompts[name]

	if s.initErr != nil {
		if known {
			return builtin, nil
		}
		return "", fmt.Errorf("prompt store init failed: %w", s.initErr)
	}

	s.mu.RLock()
	cached, ok := s.cache[name]
	gen := s.gen
	s.mu.RUnlock()
	if ok {
		return cached, nil
	}

	prompt, err := s.read(name)
	switch {
	case err != nil && !known:
		return "", fmt.Errorf("load prompt %q: %w", name, err)
	case err != nil || prompt == "":
		// Not cached, so restoring the file takes effect on the next Load.
		return builtin, nil
	}

	s.mu.Lock()
	if s.gen == gen {
		if existing, ok := s.cache[name]; ok {
			prompt = existing
		} else {
			s.cache[name] = prompt
		}
	}
	s.mu.Unlock()
	return prompt, nil
}

// Reload drops cached prompts so the next Load reads the files again.
func (s *PromptStore) Reload() {
	s.mu.Lock()
	s.cache = make(map[string]string)
	s.gen++
	s.mu.Unlock()
}

// Dir returns the prompt directory.
func (s *PromptStore) Dir() string {
	return s.promptDir
}

func (s *PromptStore) path(name string) string {
	return filepath.Join(s.promptDir, name+".txt")
}

func (s *PromptStore) read(name string) (string, error) {
	data, err := os.ReadFile(s.path(name))
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}

// initialise creates the directory, the default prompt files and the
// README. Existing files are left alone.
func (s *PromptStore) initialise() {
	if err := os.MkdirAll(s.promptDir, 0700); err != nil {
		s.initErr = fmt.Errorf("create prompt directory: %w", err)
		return
	}
	for name, content := range defaultPrompts {
		if err := writeIfMissing(s.path(name), content); err != nil {
			s.initErr = fmt.Errorf("create default prompt %q: %w", name, err)
			return
		}
	}
	if err := writeIfMissing(filepath.Join(s.promptDir, "README.md"), promptReadme); err != nil {
		s.initErr = fmt.Errorf("create prompt README: %w", err)
	}
}

func writeIfMissing(path, content string) error {
	_, err := os.Stat(path)
	if err == nil {
		return nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return os.WriteFile(path, []byte(content), 0600)
}

const promptReadme = "# Tabula Prompts\n\n" +
	"`analysis_system.txt` is sent ahead of every analysis. It tells the model\n" +
	"how to phrase its insight and how to emit chart blocks.\n\n" +
	"Edit it to change the model's instructions. Edits apply to the next\n" +
	"command, or straight away while `tabula mcp serve` is running. Delete\n" +
	"the file, or leave it empty, to use the built-in text.\n\n" +
	"Keep the chart block format intact: each chart is a fenced block tagged\n" +
	"`chart` with type, title, source, x and y header lines followed by one\n" +
	"label,value row per line. Blocks in any other shape are dropped with a\n" +
	"warning.\n"

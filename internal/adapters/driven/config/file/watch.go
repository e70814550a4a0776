package file

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"

	"github.com/tabula-labs/tabula/internal/logger"
)

// Watch reloads the prompt cache whenever a prompt file in the prompt
// directory is written, created, removed or renamed. The watcher is set up
// before Watch returns and stops when ctx is done.
//
// Long-running commands (mcp serve) use this so prompt edits take effect
// without a restart.
func (s *PromptStore) Watch(ctx context.Context) error {
	s.initOnce.Do(s.initialise)
	if s.initErr != nil {
		return fmt.Errorf("prompt store init failed: %w", s.initErr)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create prompt watcher: %w", err)
	}
	if err := watcher.Add(s.promptDir); err != nil {
		watcher.Close()
		return fmt.Errorf("watch prompt directory: %w", err)
	}

	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if name, changed := s.handleEvent(event); changed {
					logger.Debug("Prompt %q changed on disk, reloading", name)
					s.Reload()
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.Warn("Prompt watcher: %v", err)
			}
		}
	}()

	logger.Debug("Watching prompts in %s", s.promptDir)
	return nil
}

// handleEvent reports whether event touches a prompt file, returning the
// prompt name. Chmod-only events and non-prompt files are ignored.
func (s *PromptStore) handleEvent(event fsnotify.Event) (string, bool) {
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) &&
		!event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
		return "", false
	}
	if filepath.Dir(event.Name) != filepath.Clean(s.promptDir) {
		return "", false
	}
	base := filepath.Base(event.Name)
	if strings.HasPrefix(base, ".") || filepath.Ext(base) != ".txt" {
		return "", false
	}
	return strings.TrimSuffix(base, ".txt"), true
}

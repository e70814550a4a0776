// Command tabula answers questions about data files with a model backend.
package main

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/tabula-labs/tabula/internal/adapters/driven/backend"
	"github.com/tabula-labs/tabula/internal/adapters/driven/config/file"
	"github.com/tabula-labs/tabula/internal/adapters/driven/storage/memory"
	"github.com/tabula-labs/tabula/internal/adapters/driven/storage/sqlite"
	"github.com/tabula-labs/tabula/internal/adapters/driving/cli"
	"github.com/tabula-labs/tabula/internal/core/domain"
	"github.com/tabula-labs/tabula/internal/core/ports/driven"
	"github.com/tabula-labs/tabula/internal/core/services"
	"github.com/tabula-labs/tabula/internal/logger"
	"github.com/tabula-labs/tabula/internal/normalisers/csv"
	"github.com/tabula-labs/tabula/internal/normalisers/plaintext"
	"github.com/tabula-labs/tabula/internal/normalisers/records"
	"github.com/tabula-labs/tabula/internal/normalisers/spreadsheet"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

// homeEnv overrides the ~/.tabula directory.
const homeEnv = "TABULA_HOME"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := run(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	home := os.Getenv(homeEnv)

	configStore, err := file.NewConfigStore(home)
	if err != nil {
		logger.Error("Opening config: %v", err)
		return err
	}
	settingsService := services.NewSettingsService(configStore)

	settings, err := settingsService.Get()
	if err != nil {
		logger.Error("Invalid configuration, using defaults: %v", err)
		defaults := settingsService.GetDefaults()
		settings = &defaults
	}

	promptDir := ""
	if home != "" {
		promptDir = filepath.Join(home, "prompts")
	}
	var prompts driven.PromptStore
	var watcher cli.PromptWatcher
	if promptStore, err := file.NewPromptStore(promptDir); err != nil {
		logger.Error("Opening prompts, using built-in preamble: %v", err)
	} else {
		prompts = promptStore
		watcher = promptStore
	}

	historyStore, closeHistory := openHistory(home)
	defer closeHistory()
	historyService := services.NewHistoryService(historyStore)

	normalisers := services.NewNormaliserRegistry(settings.MaxFileBytes,
		csv.New(),
		spreadsheet.New(),
		records.New(),
		plaintext.New(),
	)
	backends := backend.NewDefaultRegistry(*settings)

	analysisService := services.NewAnalysisService(normalisers, backends, historyService, prompts, *settings)

	cli.SetVersion(version)
	cli.SetServices(cli.Services{
		Analysis: analysisService,
		History:  historyService,
		Settings: settingsService,
		Prompts:  watcher,
	})
	return cli.Execute(ctx)
}

// openHistory opens the SQLite history database. If it cannot be opened,
// analyses still run and are kept in memory for this process only.
func openHistory(home string) (driven.HistoryStore, func()) {
	dataDir := ""
	if home != "" {
		dataDir = filepath.Join(home, "data")
	}

	store, err := sqlite.NewStore(dataDir)
	if err != nil {
		logger.Error("%s History will not be saved: %v", domain.DescribeError(domain.ErrorKindStorage), err)
		return memory.NewHistoryStore(), func() {}
	}

	return store.HistoryStore(), func() {
		if err := store.Close(); err != nil {
			logger.Debug("Closing history database: %v", err)
		}
	}
}

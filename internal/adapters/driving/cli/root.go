// Package cli is the command-line driving adapter for Tabula.
//
// Commands dispatch to the driving ports set through SetServices; they
// never construct adapters themselves.
package cli

import (
	"context"
	"os"

	"github.com/spf13/cobra"

	"github.com/tabula-labs/tabula/internal/core/ports/driving"
	"github.com/tabula-labs/tabula/internal/logger"
)

var (
	version = "dev"
	verbose bool

	analysisService driving.AnalysisService
	historyService  driving.HistoryService
	settingsService driving.SettingsService
	promptWatcher   PromptWatcher
)

// PromptWatcher reloads prompt templates when they change on disk.
type PromptWatcher interface {
	Watch(ctx context.Context) error
}

// Services bundles the driving ports the commands use.
type Services struct {
	Analysis driving.AnalysisService
	History  driving.HistoryService
	Settings driving.SettingsService

	// Prompts is optional. When set, mcp serve picks up prompt edits
	// without a restart.
	Prompts PromptWatcher
}

var rootCmd = &cobra.Command{
	Use:   "tabula",
	Short: "Ask questions about your data files",
	Long: `Tabula normalises spreadsheets, CSV, JSON, YAML and text files, sends
them with your question to a model backend (DeepSeek, OpenAI, Claude or any
OpenAI-compatible endpoint) and prints the insight and charts it returns.

Every analysis is recorded in a local history database.`,
	SilenceUsage: true,
	PersistentPreRun: func(_ *cobra.Command, _ []string) {
		logger.SetVerbose(verbose)
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "print debug logs to stderr")
}

// SetServices injects the driving ports. Must be called before Execute.
func SetServices(s Services) {
	analysisService = s.Analysis
	historyService = s.History
	settingsService = s.Settings
	promptWatcher = s.Prompts
}

// SetVersion sets the version reported by the version command.
func SetVersion(v string) {
	version = v
}

// Execute runs the root command with ctx. Command output goes to stdout,
// logs and errors to stderr.
func Execute(ctx context.Context) error {
	rootCmd.SetOut(os.Stdout)
	return rootCmd.ExecuteContext(ctx)
}

package cli

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/tabula-labs/tabula/internal/core/domain"
)

// apiKeyEnv is read when no --key flag is given.
const apiKeyEnv = "TABULA_API_KEY"

// backendOptions holds the backend flags shared by several commands.
type backendOptions struct {
	provider    string
	model       string
	endpoint    string
	key         string
	headers     map[string]string
	temperature float32
	maxTokens   int
	timeout     time.Duration
}

func addBackendFlags(cmd *cobra.Command, opts *backendOptions) {
	flags := cmd.Flags()
	flags.StringVarP(&opts.provider, "provider", "p", "", "backend provider: deepseek, openai, claude or custom")
	flags.StringVarP(&opts.model, "model", "m", "", "model name (provider default when empty)")
	flags.StringVar(&opts.endpoint, "endpoint", "", "base URL override, required for custom")
	flags.StringVarP(&opts.key, "key", "k", "", "API key (defaults to $"+apiKeyEnv+" or the configured key)")
	flags.StringToStringVarP(&opts.headers, "header", "H", nil,
		"custom provider header as Name=Value, "+domain.APIKeyPlaceholder+" is replaced by the key")
	flags.Float32Var(&opts.temperature, "temperature", domain.DefaultTemperature, "sampling temperature")
	flags.IntVar(&opts.maxTokens, "max-tokens", 0, "response token cap (0 = default)")
	flags.DurationVar(&opts.timeout, "timeout", 0, "per-attempt timeout (0 = configured default)")
}

// config builds a backend config from the flags. Unset fields are filled
// from the configured default backend by the engine.
func (o *backendOptions) config() domain.BackendConfig {
	key := o.key
	if key == "" {
		key = os.Getenv(apiKeyEnv)
	}
	return domain.BackendConfig{
		Provider:    domain.Provider(strings.ToLower(strings.TrimSpace(o.provider))),
		Endpoint:    o.endpoint,
		APIKey:      key,
		Model:       o.model,
		Temperature: o.temperature,
		MaxTokens:   o.maxTokens,
		Headers:     o.headers,
		Timeout:     o.timeout,
	}
}

func (o *backendOptions) reset() {
	*o = backendOptions{temperature: domain.DefaultTemperature}
}

var backendCmd = &cobra.Command{
	Use:   "backend",
	Short: "Manage model backends",
	Long:  `List providers, test a connection and choose the default backend.`,
}

var backendListCmd = &cobra.Command{
	Use:   "list",
	Short: "List supported providers",
	RunE:  runBackendList,
}

var backendShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the default backend and engine settings",
	RunE:  runBackendShow,
}

var (
	backendTestOpts backendOptions
	backendTestCmd  = &cobra.Command{
		Use:   "test",
		Short: "Test a backend connection",
		Long: `Send one minimal request to the provider to check that it is reachable
and that the key is accepted. Prompts for the key when none is configured
and stdin is a terminal.`,
		RunE: runBackendTest,
	}
)

var (
	backendSetOpts    backendOptions
	backendSetSaveKey bool
	backendSetCmd     = &cobra.Command{
		Use:   "set",
		Short: "Set the default backend",
		Long: `Persist the default provider, model and endpoint to the config file.
The API key is only written with --save-key; otherwise supply it per run
with --key or $` + apiKeyEnv + `.`,
		RunE: runBackendSet,
	}
)

func init() {
	addBackendFlags(backendTestCmd, &backendTestOpts)
	addBackendFlags(backendSetCmd, &backendSetOpts)
	backendSetCmd.Flags().BoolVar(&backendSetSaveKey, "save-key", false, "store the API key in the config file")

	backendCmd.AddCommand(backendListCmd)
	backendCmd.AddCommand(backendShowCmd)
	backendCmd.AddCommand(backendTestCmd)
	backendCmd.AddCommand(backendSetCmd)
	rootCmd.AddCommand(backendCmd)
}

func runBackendList(cmd *cobra.Command, _ []string) error {
	models := domain.DefaultModels()
	endpoints := domain.DefaultEndpoints()

	for _, p := range domain.AllProviders() {
		cmd.Printf("%-9s %s\n", p, p.Description())
		if model := models[p]; model != "" {
			cmd.Printf("          model:    %s\n", model)
		}
		if endpoint := endpoints[p]; endpoint != "" {
			cmd.Printf("          endpoint: %s\n", endpoint)
		} else {
			cmd.Println("          endpoint: (required)")
		}
	}
	return nil
}

func runBackendShow(cmd *cobra.Command, _ []string) error {
	if settingsService == nil {
		return errors.New("settings service not configured")
	}

	settings, err := settingsService.Get()
	if err != nil {
		return fmt.Errorf("failed to get settings: %w", err)
	}

	def := settings.DefaultBackend
	cmd.Println("[Backend]")
	cmd.Printf("  Provider:    %s\n", def.Provider.Description())
	cmd.Printf("  Model:       %s\n", def.ResolvedModel())
	cmd.Printf("  Endpoint:    %s\n", valueOr(def.ResolvedEndpoint(), "(not set)"))
	cmd.Printf("  API Key:     %s\n", valueOr(def.MaskedKey(), "(not set)"))
	cmd.Printf("  Temperature: %g\n", def.Temperature)
	cmd.Printf("  Max Tokens:  %d\n", def.ResolvedMaxTokens())
	if len(def.Headers) > 0 {
		names := make([]string, 0, len(def.Headers))
		for name := range def.Headers {
			names = append(names, name)
		}
		sort.Strings(names)
		cmd.Printf("  Headers:     %s\n", strings.Join(names, ", "))
	}
	cmd.Println()

	cmd.Println("[Engine]")
	cmd.Printf("  Max file size:   %d bytes\n", settings.MaxFileBytes)
	cmd.Printf("  Sample rows:     %d\n", settings.SampleRows)
	cmd.Printf("  Request timeout: %s\n", settings.RequestTimeout)
	cmd.Printf("  Retries:         %d rate limit, %d network\n", settings.MaxRateLimitRetries, settings.MaxNetworkRetries)
	cmd.Printf("  Backoff:         %s x%g\n", settings.BaseDelay, settings.Multiplier)
	cmd.Printf("  Pacing:          %g req/s, burst %d\n", settings.RequestsPerSecond, settings.Burst)
	return nil
}

func runBackendTest(cmd *cobra.Command, _ []string) error {
	if analysisService == nil {
		return errors.New("analysis service not configured")
	}

	cfg := backendTestOpts.config()
	if cfg.APIKey == "" && !hasDefaultKey(cfg.Provider) && isTerminal(os.Stdin) {
		cmd.Print("API key: ")
		cfg.APIKey = readPassword(cmd.InOrStdin())
		cmd.Println()
	}

	cmd.Printf("Testing %s... ", valueOr(string(cfg.Provider), "default backend"))
	if err := analysisService.TestConnection(cmd.Context(), cfg); err != nil {
		cmd.Println("FAILED")
		kind := domain.ClassifyError(err)
		return fmt.Errorf("%s %w", domain.DescribeError(kind), err)
	}
	cmd.Println("OK")
	return nil
}

func runBackendSet(cmd *cobra.Command, _ []string) error {
	if settingsService == nil {
		return errors.New("settings service not configured")
	}

	cfg := backendSetOpts.config()
	if cfg.Provider == "" {
		return errors.New("--provider is required")
	}

	if err := settingsService.SetDefaultBackend(cfg, backendSetSaveKey); err != nil {
		return fmt.Errorf("failed to set default backend: %w", err)
	}

	cmd.Printf("Default backend set to %s (%s)\n", cfg.Provider.Description(), cfg.ResolvedModel())
	if backendSetSaveKey && cfg.APIKey != "" {
		cmd.Printf("API key %s saved to the config file\n", cfg.MaskedKey())
	}
	return nil
}

// hasDefaultKey reports whether the configured default backend would supply
// a key for provider.
func hasDefaultKey(provider domain.Provider) bool {
	if settingsService == nil {
		return false
	}
	settings, err := settingsService.Get()
	if err != nil {
		return false
	}
	def := settings.DefaultBackend
	return def.APIKey != "" && (provider == "" || provider == def.Provider)
}

// Helper functions.

func isTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

//nolint:errcheck // CLI helper, error ignored for UX
func readPassword(in io.Reader) string {
	// Try to read password without echo
	if f, ok := in.(*os.File); ok && isTerminal(f) {
		password, err := term.ReadPassword(int(f.Fd()))
		if err == nil {
			return strings.TrimSpace(string(password))
		}
	}
	return readLine(bufio.NewReader(in))
}

//nolint:errcheck // CLI helper, error ignored for UX
func readLine(reader *bufio.Reader) string {
	input, _ := reader.ReadString('\n')
	return strings.TrimSpace(input)
}

func valueOr(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}

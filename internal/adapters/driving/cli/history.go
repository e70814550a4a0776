package cli

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/tabula-labs/tabula/internal/core/domain"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Browse past analyses",
	Long:  `List, inspect, summarise and clear the local analysis history.`,
}

var (
	historyProvider string
	historySession  string
	historyStatus   string
	historySince    time.Duration
	historyLimit    int
	historyJSON     bool
	historyYes      bool
)

var historyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent analyses, newest first",
	Args:  cobra.NoArgs,
	RunE:  runHistoryList,
}

var historyShowCmd = &cobra.Command{
	Use:   "show [id]",
	Short: "Show one analysis in full",
	Args:  cobra.ExactArgs(1),
	RunE:  runHistoryShow,
}

var historyStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Summarise the whole history",
	Args:  cobra.NoArgs,
	RunE:  runHistoryStats,
}

var historyClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete every history record",
	Args:  cobra.NoArgs,
	RunE:  runHistoryClear,
}

func init() {
	listFlags := historyListCmd.Flags()
	listFlags.StringVarP(&historyProvider, "provider", "p", "", "only records from this provider")
	listFlags.StringVar(&historySession, "session", "", "only records from this session")
	listFlags.StringVar(&historyStatus, "status", "", "only successful (ok) or failed (failed) records")
	listFlags.DurationVar(&historySince, "since", 0, "only records newer than this, e.g. 24h")
	listFlags.IntVarP(&historyLimit, "limit", "n", 0, "maximum number of records (0 = configured default, -1 = all)")
	listFlags.BoolVar(&historyJSON, "json", false, "output records as JSON")

	historyShowCmd.Flags().BoolVar(&historyJSON, "json", false, "output the record as JSON")
	historyStatsCmd.Flags().BoolVar(&historyJSON, "json", false, "output statistics as JSON")
	historyClearCmd.Flags().BoolVarP(&historyYes, "yes", "y", false, "skip the confirmation prompt")

	historyCmd.AddCommand(historyListCmd)
	historyCmd.AddCommand(historyShowCmd)
	historyCmd.AddCommand(historyStatsCmd)
	historyCmd.AddCommand(historyClearCmd)
	rootCmd.AddCommand(historyCmd)
}

func runHistoryList(cmd *cobra.Command, _ []string) error {
	if historyService == nil {
		return errors.New("history service not configured")
	}

	filter, err := historyFilter(time.Now())
	if err != nil {
		return err
	}

	records, err := historyService.List(cmd.Context(), filter)
	if err != nil {
		return fmt.Errorf("failed to list history: %w", err)
	}

	if historyJSON {
		return printJSON(cmd, records)
	}

	if len(records) == 0 {
		cmd.Println("No analyses recorded.")
		return nil
	}

	for i := range records {
		r := &records[i]
		status := "ok"
		if !r.Success {
			status = string(r.ErrorKind)
		}
		cmd.Printf("%s  %s  %s/%s  %s\n", r.ID, r.Timestamp.Local().Format(time.DateTime), r.Provider, r.Model, status)
		cmd.Printf("    %s\n", truncate(r.Query, 100))
		if files := fileNames(r.Files); files != "" {
			cmd.Printf("    files: %s\n", files)
		}
	}
	return nil
}

// historyFilter builds the list filter from the flags.
func historyFilter(now time.Time) (domain.HistoryFilter, error) {
	filter := domain.HistoryFilter{
		Provider:  domain.Provider(strings.ToLower(historyProvider)),
		SessionID: historySession,
		Limit:     historyLimit,
	}

	switch strings.ToLower(historyStatus) {
	case "":
	case "ok", "success":
		ok := true
		filter.Success = &ok
	case "failed", "failure":
		failed := false
		filter.Success = &failed
	default:
		return filter, fmt.Errorf("unknown status %q (want ok or failed)", historyStatus)
	}

	if historySince > 0 {
		filter.Since = now.Add(-historySince)
	}

	if filter.Limit == 0 && settingsService != nil {
		if settings, err := settingsService.Get(); err == nil {
			filter.Limit = settings.HistoryLimit
		}
	}
	return filter, nil
}

func runHistoryShow(cmd *cobra.Command, args []string) error {
	if historyService == nil {
		return errors.New("history service not configured")
	}

	record, err := historyService.Get(cmd.Context(), args[0])
	if errors.Is(err, domain.ErrNotFound) {
		return fmt.Errorf("no analysis with id %s", args[0])
	}
	if err != nil {
		return fmt.Errorf("failed to get analysis: %w", err)
	}

	if historyJSON {
		return printJSON(cmd, record)
	}

	cmd.Printf("ID:        %s\n", record.ID)
	cmd.Printf("Time:      %s\n", record.Timestamp.Local().Format(time.RFC1123))
	cmd.Printf("Backend:   %s/%s (key %s)\n", record.Provider, record.Model, valueOr(record.MaskedKey, "none"))
	cmd.Printf("Session:   %s\n", record.SessionID)
	cmd.Printf("Question:  %s\n", record.Query)
	for _, f := range record.Files {
		cmd.Printf("File:      %s (%s, %d bytes, %d rows x %d columns)\n", f.Name, f.Format, f.SizeBytes, f.Rows, f.Columns)
	}
	cmd.Println()
	outputResultText(cmd.OutOrStdout(), record.Result)
	return nil
}

func runHistoryStats(cmd *cobra.Command, _ []string) error {
	if historyService == nil {
		return errors.New("history service not configured")
	}

	stats, err := historyService.Stats(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to get history stats: %w", err)
	}

	if historyJSON {
		return printJSON(cmd, stats)
	}

	cmd.Printf("Analyses:     %d (%d ok, %d failed)\n", stats.TotalCount, stats.SuccessCount, stats.FailureCount)
	cmd.Printf("Sessions:     %d\n", stats.SessionCount)
	cmd.Printf("Last 7 days:  %d\n", stats.RecentCount)
	if stats.TotalCount == 0 {
		return nil
	}
	cmd.Printf("Most used:    %s\n", stats.MostUsedProvider)
	cmd.Printf("First:        %s\n", stats.Earliest.Local().Format(time.DateTime))
	cmd.Printf("Latest:       %s\n", stats.Latest.Local().Format(time.DateTime))

	cmd.Println("By provider:")
	for _, p := range sortedKeys(stats.PerProvider) {
		cmd.Printf("  %-10s %d\n", p, stats.PerProvider[p])
	}
	cmd.Println("By format:")
	for _, f := range sortedKeys(stats.PerFormat) {
		cmd.Printf("  %-12s %d\n", f, stats.PerFormat[f])
	}
	return nil
}

func runHistoryClear(cmd *cobra.Command, _ []string) error {
	if historyService == nil {
		return errors.New("history service not configured")
	}

	if !historyYes {
		cmd.Print("Delete all analysis history? [y/N]: ")
		answer := readLine(bufio.NewReader(cmd.InOrStdin()))
		if !strings.EqualFold(answer, "y") && !strings.EqualFold(answer, "yes") {
			cmd.Println("Aborted.")
			return nil
		}
	}

	if err := historyService.ClearAll(cmd.Context()); err != nil {
		return fmt.Errorf("failed to clear history: %w", err)
	}
	cmd.Println("History cleared.")
	return nil
}

func printJSON(cmd *cobra.Command, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal output: %w", err)
	}
	cmd.Println(string(data))
	return nil
}

func fileNames(files []domain.FileRef) string {
	names := make([]string, len(files))
	for i, f := range files {
		names[i] = f.Name
	}
	return strings.Join(names, ", ")
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "..."
}

func sortedKeys[K ~string, V any](m map[K]V) []K {
	keys := make([]K, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/tabula-labs/tabula/internal/core/domain"
)

var (
	analyseFiles   []string
	analyseFormat  string
	analyseSheet   string
	analyseMode    string
	analyseJoinOn  string
	analyseJoinHow string
	analyseSession string
	analyseJSON    bool
	analyseBackend backendOptions
)

var analyseCmd = &cobra.Command{
	Use:     "analyse [question]",
	Aliases: []string{"analyze", "ask"},
	Short:   "Ask a question about one or more data files",
	Long: `Normalises the given files, sends them with the question to the model
backend and prints the insight and any charts it returned.

Several files are analysed side by side (--mode mixed, the default),
stacked into one table with a source_file column (--mode concat), or
merged on a shared key column (--mode join --on <column> --how <type>,
where type is inner, left, right or outer).

Examples:
  tabula analyse -f sales.csv "Which region grew fastest?"
  tabula analyse -f book.xlsx --sheet Q2 -p claude "Summarise the outliers"
  tabula analyse -f jan.csv -f feb.csv --mode concat "Compare the months"
  tabula analyse -f orders.csv -f targets.csv --mode join --on id --how left "Which orders missed target?"`,
	Args: cobra.ExactArgs(1),
	RunE: runAnalyse,
}

func init() {
	flags := analyseCmd.Flags()
	flags.StringArrayVarP(&analyseFiles, "file", "f", nil, "data file to analyse (repeatable)")
	flags.StringVar(&analyseFormat, "format", "", "format of every file: spreadsheet, csv, json, yaml or text (inferred from the name when empty)")
	flags.StringVar(&analyseSheet, "sheet", "", "worksheet of spreadsheet files (first sheet when empty)")
	flags.StringVar(&analyseMode, "mode", "", "how several files are combined: single, mixed, concat or join")
	flags.StringVar(&analyseJoinOn, "on", "", "key column for --mode join")
	flags.StringVar(&analyseJoinHow, "how", "", "join type for --mode join: inner, left, right or outer (default inner)")
	flags.StringVar(&analyseSession, "session", "", "history session to record under")
	flags.BoolVar(&analyseJSON, "json", false, "output the result as JSON")
	addBackendFlags(analyseCmd, &analyseBackend)
	rootCmd.AddCommand(analyseCmd)
}

func runAnalyse(cmd *cobra.Command, args []string) error {
	if analysisService == nil {
		return errors.New("analysis service not configured")
	}
	if len(analyseFiles) == 0 {
		return errors.New("at least one --file is required")
	}

	mode := domain.IngestMode(analyseMode)
	if mode != "" && !mode.IsValid() {
		return fmt.Errorf("unknown mode %q", analyseMode)
	}
	join := domain.JoinSpec{Column: analyseJoinOn, Type: domain.JoinType(analyseJoinHow)}
	if mode == domain.IngestJoin {
		if join.Column == "" {
			return errors.New("--mode join requires --on")
		}
		if join.Type != "" && !join.Type.IsValid() {
			return fmt.Errorf("unknown join type %q", analyseJoinHow)
		}
	} else if join.Column != "" || join.Type != "" {
		return errors.New("--on and --how only apply to --mode join")
	}

	files, err := readPayloads(analyseFiles, domain.Format(analyseFormat), analyseSheet)
	if err != nil {
		return err
	}

	result := analysisService.RunAnalysis(cmd.Context(), domain.AnalysisRequest{
		Files:     files,
		Mode:      mode,
		Join:      join,
		Query:     args[0],
		Backend:   analyseBackend.config(),
		SessionID: analyseSession,
	})

	if result.StorageWarning != "" {
		cmd.PrintErrf("Warning: %s\n", result.StorageWarning)
	}

	if analyseJSON {
		if err := outputResultJSON(cmd, result); err != nil {
			return err
		}
	} else {
		outputResultText(cmd.OutOrStdout(), result)
	}

	if !result.Success {
		return fmt.Errorf("analysis failed: %s", result.ErrorKind)
	}
	return nil
}

// readPayloads loads files from disk. The sheet applies to spreadsheet
// files only.
func readPayloads(paths []string, format domain.Format, sheet string) ([]domain.FilePayload, error) {
	payloads := make([]domain.FilePayload, 0, len(paths))
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", path, err)
		}
		p := domain.FilePayload{
			Name:   filepath.Base(path),
			Format: format,
			Data:   data,
		}
		if resolved, err := p.ResolveFormat(); err == nil && resolved == domain.FormatSpreadsheet {
			p.Sheet = sheet
		}
		payloads = append(payloads, p)
	}
	return payloads, nil
}

func outputResultJSON(cmd *cobra.Command, result domain.AnalysisResult) error {
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal result: %w", err)
	}
	cmd.Println(string(data))
	return nil
}

func outputResultText(w io.Writer, result domain.AnalysisResult) {
	if !result.Success {
		fmt.Fprintf(w, "Analysis failed (%s)\n", result.ErrorKind)
		fmt.Fprintf(w, "  %s\n", result.ErrorDetail)
		return
	}

	fmt.Fprintln(w, strings.TrimSpace(result.Insight))

	for i := range result.Charts {
		fmt.Fprintln(w)
		renderChart(w, i+1, &result.Charts[i])
	}

	if len(result.Warnings) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "Warnings:")
		for _, warning := range result.Warnings {
			fmt.Fprintf(w, "  - %s\n", warning)
		}
	}

	if result.HistoryID != "" {
		fmt.Fprintf(w, "\nRecorded as %s\n", result.HistoryID)
	}
}

// renderChart prints a directive as an aligned table.
func renderChart(w io.Writer, n int, chart *domain.ChartDirective) {
	title := chart.Title
	if title == "" {
		title = strings.Join(chart.Y, ", ") + " by " + chart.X
	}
	fmt.Fprintf(w, "Chart %d [%s]: %s\n", n, chart.Kind, title)
	if chart.Source != "" {
		fmt.Fprintf(w, "  Source: %s\n", chart.Source)
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "  %s\t%s\n", chart.X, strings.Join(chart.Y, "\t"))
	for _, row := range chart.Rows {
		values := make([]string, len(row.Values))
		for i, v := range row.Values {
			values[i] = v.String()
		}
		fmt.Fprintf(tw, "  %s\t%s\n", row.Label, strings.Join(values, "\t"))
	}
	tw.Flush() //nolint:errcheck // writes to cmd output
}

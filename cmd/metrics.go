package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"slices"

	"github.com/spf13/cobra"

	"mcptape/internal/metrics"
	"mcptape/internal/registry"
	mcptesting "mcptape/internal/testing"
)

var (
	metricsLatest   bool
	metricsSession  string
	metricsFormat   string
	metricsPromFile string
)

// metricsCmd summarises recorded runs
var metricsCmd = &cobra.Command{
	Use:   "metrics",
	Short: "Show pass rates and latencies of recorded runs",
	Long: `Summarises recorded runs: pass rate, where responses came from and
latency percentiles. By default every run in the history is shown; use
--latest or --session to pick one.

--prom-file additionally writes the selected runs as Prometheus metrics in
the node_exporter textfile format.`,
	Args: cobra.NoArgs,
	RunE: runMetrics,
}

func runMetrics(cmd *cobra.Command, args []string) error {
	if metricsFormat != "table" && metricsFormat != "json" {
		return fmt.Errorf("unsupported format %q (want table or json)", metricsFormat)
	}

	store, err := openStore()
	if err != nil {
		return err
	}
	runs, err := selectRuns(store)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if len(runs) == 0 {
		fmt.Fprintln(out, "No runs recorded yet.")
		return nil
	}

	if metricsPromFile != "" {
		c := metrics.NewCollector(metrics.DefaultNamespace)
		// Oldest first so the last-run gauges end on the newest run.
		for _, run := range slices.Backward(runs) {
			c.ObserveRun(run)
		}
		if err := c.WriteToTextfile(metricsPromFile); err != nil {
			return err
		}
	}

	summaries := make([]metrics.Summary, 0, len(runs))
	for _, run := range runs {
		summaries = append(summaries, metrics.Summarize(run))
	}
	if metricsFormat == "json" {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(summaries)
	}
	return renderSummaries(out, summaries)
}

// selectRuns returns the runs the flags ask for, newest first.
func selectRuns(store *registry.Store) ([]*registry.RunRecord, error) {
	switch {
	case metricsSession != "":
		run, err := store.LoadRun(metricsSession)
		if err != nil {
			return nil, err
		}
		return []*registry.RunRecord{run}, nil
	case metricsLatest:
		run, err := store.LoadLatestRun()
		if err != nil || run == nil {
			return nil, err
		}
		return []*registry.RunRecord{run}, nil
	}

	all, err := store.ListRuns(0)
	if err != nil {
		return nil, err
	}
	runs := make([]*registry.RunRecord, len(all))
	for i := range all {
		runs[i] = &all[i]
	}
	return runs, nil
}

func renderSummaries(out io.Writer, summaries []metrics.Summary) error {
	table := &mcptesting.Table{
		Title:   "Run metrics",
		Headers: []string{"Session", "Spec", "Passed", "Rate", "Modes", "p50", "p95", "Max"},
	}
	for _, s := range summaries {
		table.AddRow(
			s.SessionID,
			s.SpecName,
			fmt.Sprintf("%d/%d", s.Passed, s.Total),
			fmt.Sprintf("%.0f%%", s.PassRate*100),
			modeCounts(s.ByMode),
			fmt.Sprintf("%.0fms", s.LatencyP50Ms),
			fmt.Sprintf("%.0fms", s.LatencyP95Ms),
			fmt.Sprintf("%.0fms", s.LatencyMaxMs),
		)
	}
	return table.Render(out)
}

func modeCounts(byMode map[registry.Mode]int) string {
	modes := []registry.Mode{registry.ModeReal, registry.ModeRecorded, registry.ModeReplay, registry.ModeMock, registry.ModeError}
	text := ""
	for _, m := range modes {
		if n := byMode[m]; n > 0 {
			if text != "" {
				text += " "
			}
			text += fmt.Sprintf("%s=%d", m, n)
		}
	}
	return text
}

func init() {
	rootCmd.AddCommand(metricsCmd)

	metricsCmd.Flags().BoolVar(&metricsLatest, "latest", false, "Only the most recent run")
	metricsCmd.Flags().StringVar(&metricsSession, "session", "", "Only the run with this session id")
	metricsCmd.Flags().StringVar(&metricsFormat, "format", "table", "Output format: table or json")
	metricsCmd.Flags().StringVar(&metricsPromFile, "prom-file", "", "Also write Prometheus metrics to this textfile")
}

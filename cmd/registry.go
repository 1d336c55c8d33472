package cmd

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"mcptape/internal/color"
	"mcptape/internal/config"
	"mcptape/internal/registry"
	mcptesting "mcptape/internal/testing"
)

var (
	historyLimit  int
	clearCategory string
	clearYes      bool
	inspectTool   string
	inspectCat    string
)

// statusCmd shows what the data directory holds
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show registry statistics and recorded tools",
	Args:  cobra.NoArgs,
	RunE:  runStatus,
}

// historyCmd lists past runs
var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List past test runs, newest first",
	Args:  cobra.NoArgs,
	RunE:  runHistory,
}

// clearCmd deletes recordings
var clearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete recorded mocks",
	Long: `Deletes recorded mocks of one category, or of all categories when
--category is not given. Run history is kept.`,
	Args: cobra.NoArgs,
	RunE: runClear,
}

// inspectCmd shows recordings
var inspectCmd = &cobra.Command{
	Use:   "inspect",
	Short: "Show recorded mocks",
	Long: `Lists recorded mocks. With --tool, the arguments and full response of
every recording of that tool are printed.`,
	Args: cobra.NoArgs,
	RunE: runInspect,
}

// importLegacyCmd migrates a single-file mock store
var importLegacyCmd = &cobra.Command{
	Use:   "import-legacy [mocks.json]",
	Short: "Import a legacy mocks.json into the registry",
	Long: `Imports a legacy mocks.json, whose keys are {"tool": ..., "args": ...}
documents, as tool recordings. The file is renamed to mocks.json.old
afterwards. Entries that cannot be parsed are skipped and listed.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runImportLegacy,
}

func runStatus(cmd *cobra.Command, args []string) error {
	store, err := openStore()
	if err != nil {
		return err
	}
	stats, err := store.Stats()
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()

	table := &mcptesting.Table{Title: "Registry", Headers: []string{"Item", "Count"}}
	table.AddRow("Total mocks", fmt.Sprint(stats.TotalMocks))
	for _, c := range registry.Categories {
		table.AddRow("  "+string(c), fmt.Sprint(stats.ByCategory[c]))
	}
	table.AddRow("Runs", fmt.Sprint(stats.TotalRuns))
	table.AddRow("Data directory", stats.DataDir)
	if err := table.Render(out); err != nil {
		return err
	}

	mocks, err := store.ListMocks(registry.CategoryTools)
	if err != nil {
		return err
	}
	if len(mocks) == 0 {
		fmt.Fprintln(out, color.MutedStyle.Render("\nNo recorded tools."))
		return nil
	}
	counts := make(map[string]int)
	for _, m := range mocks {
		counts[m.Name]++
	}
	names := make([]string, 0, len(counts))
	for name := range counts {
		names = append(names, name)
	}
	sort.Strings(names)

	fmt.Fprintln(out)
	tools := &mcptesting.Table{Title: "Recorded tools", Headers: []string{"Tool", "Recordings"}}
	for _, name := range names {
		tools.AddRow(name, fmt.Sprint(counts[name]))
	}
	return tools.Render(out)
}

func runHistory(cmd *cobra.Command, args []string) error {
	store, err := openStore()
	if err != nil {
		return err
	}
	runs, err := store.ListRuns(historyLimit)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if len(runs) == 0 {
		fmt.Fprintln(out, "No runs recorded yet.")
		return nil
	}

	table := &mcptesting.Table{
		Title:   "Run history",
		Headers: []string{"Session", "Time", "Spec", "Server", "Passed", "Duration"},
		Styles:  []func(string) lipgloss.Style{nil, nil, nil, nil, passRatioStyle},
	}
	for _, run := range runs {
		passed, total := run.Counts()
		table.AddRow(
			run.SessionID,
			run.Timestamp.Local().Format(time.DateTime),
			run.SpecName,
			run.Server,
			fmt.Sprintf("%d/%d", passed, total),
			fmt.Sprintf("%.0fms", run.DurationMs),
		)
	}
	return table.Render(out)
}

func runClear(cmd *cobra.Command, args []string) error {
	var category registry.Category
	if clearCategory != "" {
		c, err := registry.ParseCategory(clearCategory)
		if err != nil {
			return err
		}
		category = c
	}

	what := "all recorded mocks"
	if category != "" {
		what = "all recorded " + string(category)
	}
	if !clearYes && !confirm(cmd.InOrStdin(), cmd.OutOrStdout(), fmt.Sprintf("Delete %s?", what)) {
		fmt.Fprintln(cmd.OutOrStdout(), "Aborted.")
		return nil
	}

	store, err := openStore()
	if err != nil {
		return err
	}
	removed, err := store.ClearMocks(category)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Removed %d mocks\n", removed)
	return nil
}

func runInspect(cmd *cobra.Command, args []string) error {
	var category registry.Category
	if inspectCat != "" {
		c, err := registry.ParseCategory(inspectCat)
		if err != nil {
			return err
		}
		category = c
	}

	store, err := openStore()
	if err != nil {
		return err
	}
	mocks, err := store.ListMocks(category)
	if err != nil {
		return err
	}
	if inspectTool != "" {
		filtered := mocks[:0]
		for _, m := range mocks {
			if m.Name == inspectTool {
				filtered = append(filtered, m)
			}
		}
		mocks = filtered
	}

	out := cmd.OutOrStdout()
	if len(mocks) == 0 {
		fmt.Fprintln(out, "No matching recordings.")
		return nil
	}

	if inspectTool == "" {
		table := &mcptesting.Table{Headers: []string{"Category", "Name", "Arguments", "Recorded"}}
		for _, m := range mocks {
			canon, err := registry.CanonicalArgs(m.Arguments)
			if err != nil {
				canon = "?"
			}
			table.AddRow(string(m.Category), m.Name, canon, m.RecordedAt.Local().Format(time.DateTime))
		}
		return table.Render(out)
	}

	for i, m := range mocks {
		if i > 0 {
			fmt.Fprintln(out)
		}
		canon, err := registry.CanonicalArgs(m.Arguments)
		if err != nil {
			canon = "?"
		}
		fmt.Fprintln(out, color.HeaderStyle.Render(fmt.Sprintf("%s %s %s", m.Category, m.Name, canon)))
		resp, err := json.MarshalIndent(m.Response, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to encode response of %s: %w", m.Name, err)
		}
		fmt.Fprintln(out, string(resp))
	}
	return nil
}

func runImportLegacy(cmd *cobra.Command, args []string) error {
	path := appConfig.Registry.LegacyPath
	if len(args) == 1 {
		path = args[0]
	}
	if path == "" {
		path = config.DefaultLegacyPath
	}

	store, err := openStore()
	if err != nil {
		return err
	}
	report, err := store.ImportLegacy(path)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Imported %d mocks from %s\n", report.Imported, path)
	if report.RenamedTo != "" {
		fmt.Fprintf(out, "Renamed %s to %s\n", path, report.RenamedTo)
	}
	for _, s := range report.Skipped {
		fmt.Fprintln(out, color.WarnStyle.Render(fmt.Sprintf("Skipped %s: %s", s.Key, s.Reason)))
	}
	return nil
}

// passRatioStyle colours a "passed/total" cell.
func passRatioStyle(cell string) lipgloss.Style {
	var passed, total int
	if _, err := fmt.Sscanf(cell, "%d/%d", &passed, &total); err == nil && passed == total {
		return color.PassStyle
	}
	return color.FailStyle
}

// confirm asks a yes/no question on out and reads the answer from in.
func confirm(in io.Reader, out io.Writer, question string) bool {
	fmt.Fprintf(out, "%s [y/N] ", question)
	answer, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && answer == "" {
		return false
	}
	answer = strings.ToLower(strings.TrimSpace(answer))
	return answer == "y" || answer == "yes"
}

func init() {
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(clearCmd)
	rootCmd.AddCommand(inspectCmd)
	rootCmd.AddCommand(importLegacyCmd)

	historyCmd.Flags().IntVar(&historyLimit, "limit", 10, "Number of runs to show, 0 for all")
	clearCmd.Flags().StringVar(&clearCategory, "category", "", "Only clear this category: tools, resources or prompts")
	clearCmd.Flags().BoolVarP(&clearYes, "yes", "y", false, "Do not ask for confirmation")
	inspectCmd.Flags().StringVar(&inspectTool, "tool", "", "Show full recordings of this tool, prompt or resource")
	inspectCmd.Flags().StringVar(&inspectCat, "category", "", "Only show this category: tools, resources or prompts")
}

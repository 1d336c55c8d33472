package testing

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"

	"mcptape/internal/color"
	"mcptape/internal/registry"
)

const (
	defaultMaxColumnWidth = 60
	maxResponseChars      = 800
	columnGap             = "  "
)

// Table renders aligned, optionally styled columns. Cells are plain text;
// widths are measured with runewidth so wide runes line up.
type Table struct {
	Title   string
	Headers []string
	Rows    [][]string
	// Styles optionally styles a column by cell value; nil entries are plain
	Styles []func(cell string) lipgloss.Style
	// MaxColumnWidth truncates longer cells; zero means 60
	MaxColumnWidth int
}

// AddRow appends a row.
func (t *Table) AddRow(cells ...string) {
	t.Rows = append(t.Rows, cells)
}

// Render writes the table to w.
func (t *Table) Render(w io.Writer) error {
	limit := t.MaxColumnWidth
	if limit <= 0 {
		limit = defaultMaxColumnWidth
	}

	cols := len(t.Headers)
	for _, row := range t.Rows {
		cols = max(cols, len(row))
	}
	widths := make([]int, cols)
	cell := func(row []string, i int) string {
		if i >= len(row) {
			return ""
		}
		text := strings.ReplaceAll(row[i], "\n", " ")
		if runewidth.StringWidth(text) > limit {
			text = runewidth.Truncate(text, limit, "…")
		}
		return text
	}
	for i := range widths {
		widths[i] = runewidth.StringWidth(cell(t.Headers, i))
		for _, row := range t.Rows {
			widths[i] = max(widths[i], runewidth.StringWidth(cell(row, i)))
		}
	}

	var b strings.Builder
	if t.Title != "" {
		b.WriteString(color.TitleStyle.Render(t.Title))
		b.WriteString("\n")
	}
	if len(t.Headers) > 0 {
		parts := make([]string, cols)
		for i := range parts {
			parts[i] = color.HeaderStyle.Render(runewidth.FillRight(cell(t.Headers, i), widths[i]))
		}
		b.WriteString(strings.TrimRight(strings.Join(parts, columnGap), " "))
		b.WriteString("\n")

		total := len(columnGap) * (cols - 1)
		for _, w := range widths {
			total += w
		}
		b.WriteString(color.MutedStyle.Render(strings.Repeat("─", total)))
		b.WriteString("\n")
	}
	for _, row := range t.Rows {
		parts := make([]string, cols)
		for i := range parts {
			text := cell(row, i)
			padded := runewidth.FillRight(text, widths[i])
			if i < len(t.Styles) && t.Styles[i] != nil {
				padded = t.Styles[i](text).Render(padded)
			}
			parts[i] = padded
		}
		b.WriteString(strings.TrimRight(strings.Join(parts, columnGap), " "))
		b.WriteString("\n")
	}

	_, err := io.WriteString(w, b.String())
	return err
}

// StatusStyle picks the verdict style for a status cell.
func StatusStyle(cell string) lipgloss.Style {
	if strings.Contains(cell, registry.StatusPass) {
		return color.PassStyle
	}
	return color.FailStyle
}

func modeStyle(string) lipgloss.Style {
	return color.ModeStyle
}

func mutedStyle(string) lipgloss.Style {
	return color.MutedStyle
}

func verdictText(status string) string {
	return statusIcon(status) + " " + status
}

func latencyText(ms float64) string {
	return fmt.Sprintf("%.0fms", ms)
}

func statusIcon(status string) string {
	if status == registry.StatusPass {
		return color.IconPass
	}
	return color.IconFail
}

// Reporter prints run records as per-server tables.
type Reporter struct {
	out io.Writer
	// Verbose adds arguments and the (truncated) response of every test
	Verbose bool
}

// NewReporter creates a reporter writing to out.
func NewReporter(out io.Writer, verbose bool) *Reporter {
	return &Reporter{out: out, Verbose: verbose}
}

// Report prints one table per server, in the order servers appear in the
// results, followed by the overall summary.
func (r *Reporter) Report(run *registry.RunRecord) error {
	var order []string
	byServer := make(map[string][]registry.TestResult)
	for _, res := range run.Results {
		if _, ok := byServer[res.Server]; !ok {
			order = append(order, res.Server)
		}
		byServer[res.Server] = append(byServer[res.Server], res)
	}

	fmt.Fprintln(r.out, color.TitleStyle.Render(fmt.Sprintf("MCP TEST REPORT: %s", run.SpecName)))
	fmt.Fprintln(r.out, color.MutedStyle.Render("Session "+run.SessionID))

	for _, server := range order {
		block := byServer[server]
		passed := 0
		for _, res := range block {
			if res.Passed() {
				passed++
			}
		}

		fmt.Fprintln(r.out)
		table := &Table{
			Title:   fmt.Sprintf("Server: %s (%d/%d passed)", server, passed, len(block)),
			Headers: []string{"Test", "Status", "Latency", "Mode", "Failures"},
			Styles:  []func(string) lipgloss.Style{nil, StatusStyle, nil, modeStyle, mutedStyle},
		}
		for _, res := range block {
			table.AddRow(res.TestName, verdictText(res.Status), latencyText(res.LatencyMs), string(res.Mode), strings.Join(res.Failures, "; "))
		}
		if err := table.Render(r.out); err != nil {
			return err
		}

		if r.Verbose {
			for _, res := range block {
				r.details(res)
			}
		}
	}

	passed, total := run.Counts()
	fmt.Fprintln(r.out)
	summary := fmt.Sprintf("Completed: %d/%d tests passed in %.0fms", passed, total, run.DurationMs)
	if passed == total {
		fmt.Fprintln(r.out, color.PassStyle.Render(summary))
	} else {
		fmt.Fprintln(r.out, color.FailStyle.Render(summary))
	}
	return nil
}

func (r *Reporter) details(res registry.TestResult) {
	args, _ := json.Marshal(res.Arguments)
	resp, _ := json.MarshalIndent(res.Response, "     ", "  ")
	text := string(resp)
	if runewidth.StringWidth(text) > maxResponseChars {
		text = runewidth.Truncate(text, maxResponseChars, "…")
	}
	fmt.Fprintf(r.out, "\n%s %s\n", statusIcon(res.Status), res.TestName)
	fmt.Fprintf(r.out, "   Tool: %s\n", res.Tool)
	fmt.Fprintf(r.out, "   Args: %s\n", args)
	fmt.Fprintf(r.out, "   Resp: %s\n", text)
}

// resultsFile is the document written by WriteResultsFile.
type resultsFile struct {
	SessionID string                `json:"session_id"`
	SpecName  string                `json:"spec_name"`
	Results   []registry.TestResult `json:"results"`
}

// WriteResultsFile writes the run results as indented JSON.
func WriteResultsFile(path string, run *registry.RunRecord) error {
	data, err := json.MarshalIndent(resultsFile{
		SessionID: run.SessionID,
		SpecName:  run.SpecName,
		Results:   run.Results,
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode results: %w", err)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}
	if err := os.WriteFile(path, append(data, '\n'), 0644); err != nil {
		return fmt.Errorf("failed to write results to %s: %w", path, err)
	}
	return nil
}

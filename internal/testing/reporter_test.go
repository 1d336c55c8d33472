package testing

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mattn/go-runewidth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mcptape/internal/registry"
)

func sampleRun() *registry.RunRecord {
	return &registry.RunRecord{
		SessionID:  "s-1",
		SpecName:   "echo-agent",
		DurationMs: 42,
		Results: []registry.TestResult{
			{TestName: "echo_hi", Server: "alpha", Tool: "echo", Status: registry.StatusPass, LatencyMs: 3, Mode: registry.ModeMock, Failures: []string{}},
			{TestName: "echo_bye", Server: "alpha", Tool: "echo", Status: registry.StatusFail, LatencyMs: 7, Mode: registry.ModeReal, Failures: []string{"Missing keywords: bye"}},
			{TestName: "echo_hi", Server: "beta", Tool: "echo", Status: registry.StatusPass, LatencyMs: 5, Mode: registry.ModeReplay, Failures: []string{}},
		},
	}
}

func TestReporter_Report(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewReporter(&buf, false).Report(sampleRun()))
	out := buf.String()

	assert.Contains(t, out, "MCP TEST REPORT: echo-agent")
	assert.Contains(t, out, "Server: alpha (1/2 passed)")
	assert.Contains(t, out, "Server: beta (1/1 passed)")
	assert.Contains(t, out, "Missing keywords: bye")
	assert.Contains(t, out, "Completed: 2/3 tests passed in 42ms")
	assert.Less(t, strings.Index(out, "Server: alpha"), strings.Index(out, "Server: beta"))
	assert.NotContains(t, out, "Resp:")

	buf.Reset()
	require.NoError(t, NewReporter(&buf, true).Report(sampleRun()))
	assert.Contains(t, buf.String(), "Tool: echo")
}

func TestTable_AlignsWideRunes(t *testing.T) {
	table := &Table{Headers: []string{"Name", "Value"}}
	table.AddRow("日本語", "a")
	table.AddRow("x", "b")

	var buf bytes.Buffer
	require.NoError(t, table.Render(&buf))
	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	require.Len(t, lines, 4)

	// The value column starts at the same display column on every row.
	col := func(line, value string) int {
		return runewidth.StringWidth(line[:strings.LastIndex(line, value)])
	}
	assert.Equal(t, col(lines[0], "Value"), col(lines[2], "a"))
	assert.Equal(t, col(lines[2], "a"), col(lines[3], "b"))
}

func TestTable_Truncates(t *testing.T) {
	table := &Table{MaxColumnWidth: 8}
	table.AddRow(strings.Repeat("x", 20))

	var buf bytes.Buffer
	require.NoError(t, table.Render(&buf))
	assert.Equal(t, "xxxxxxx…\n", buf.String())
}

func TestWriteResultsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "results.json")
	require.NoError(t, WriteResultsFile(path, sampleRun()))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var doc struct {
		SessionID string                `json:"session_id"`
		Results   []registry.TestResult `json:"results"`
	}
	require.NoError(t, json.Unmarshal(data, &doc))
	assert.Equal(t, "s-1", doc.SessionID)
	assert.Len(t, doc.Results, 3)
}

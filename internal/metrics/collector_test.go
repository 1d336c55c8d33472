package metrics

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mcptape/internal/registry"
)

func sampleRun() *registry.RunRecord {
	return &registry.RunRecord{
		SessionID:  "s-1",
		Timestamp:  time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
		SpecName:   "echo-agent",
		Status:     registry.RunCompleted,
		DurationMs: 1200,
		Results: []registry.TestResult{
			{TestName: "a", Server: "alpha", Tool: "echo", Status: registry.StatusPass, Mode: registry.ModeReal, LatencyMs: 10},
			{TestName: "b", Server: "alpha", Tool: "echo", Status: registry.StatusFail, Mode: registry.ModeError, LatencyMs: 40},
			{TestName: "c", Server: "beta", Tool: "echo", Status: registry.StatusPass, Mode: registry.ModeReplay, LatencyMs: 20},
			{TestName: "d", Server: "beta", Tool: "echo", Status: registry.StatusPass, Mode: registry.ModeReplay, LatencyMs: 30},
		},
	}
}

func TestCollector_ObserveRun(t *testing.T) {
	c := NewCollector("")
	c.ObserveRun(sampleRun())

	assert.Equal(t, 1.0, testutil.ToFloat64(c.testsTotal.WithLabelValues("alpha", registry.StatusPass, "real")))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.testsTotal.WithLabelValues("beta", registry.StatusPass, "replay")))
	assert.Equal(t, 3, testutil.CollectAndCount(c.testsTotal))
	assert.Equal(t, 2, testutil.CollectAndCount(c.testLatency))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.runsTotal.WithLabelValues(registry.RunCompleted)))
	assert.Equal(t, 0.75, testutil.ToFloat64(c.lastRunPassRate.WithLabelValues("echo-agent")))
	assert.Equal(t, float64(sampleRun().Timestamp.Unix()), testutil.ToFloat64(c.lastRunTime.WithLabelValues("echo-agent")))

	c.ObserveRun(sampleRun())
	assert.Equal(t, 2.0, testutil.ToFloat64(c.runsTotal.WithLabelValues(registry.RunCompleted)))
}

func TestCollector_Isolated(t *testing.T) {
	a := NewCollector("mcptape")
	b := NewCollector("mcptape")
	a.ObserveRun(sampleRun())

	assert.Equal(t, 0, testutil.CollectAndCount(b.testsTotal))
}

func TestCollector_WriteToTextfile(t *testing.T) {
	c := NewCollector("mcptape")
	c.ObserveRun(sampleRun())

	path := filepath.Join(t.TempDir(), "textfile", "mcptape.prom")
	require.NoError(t, c.WriteToTextfile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	text := string(data)
	assert.Contains(t, text, `mcptape_tests_total{mode="replay",server="beta",status="PASS"} 2`)
	assert.Contains(t, text, "mcptape_run_duration_seconds_count 1")
	assert.Contains(t, text, `mcptape_last_run_pass_ratio{spec="echo-agent"} 0.75`)
}

func TestSummarize(t *testing.T) {
	s := Summarize(sampleRun())

	assert.Equal(t, 3, s.Passed)
	assert.Equal(t, 4, s.Total)
	assert.Equal(t, 0.75, s.PassRate)
	assert.Equal(t, map[registry.Mode]int{registry.ModeReal: 1, registry.ModeError: 1, registry.ModeReplay: 2}, s.ByMode)
	assert.Equal(t, 20.0, s.LatencyP50Ms)
	assert.Equal(t, 40.0, s.LatencyP95Ms)
	assert.Equal(t, 40.0, s.LatencyMaxMs)

	empty := Summarize(&registry.RunRecord{SessionID: "none"})
	assert.Zero(t, empty.Total)
	assert.Zero(t, empty.PassRate)
	assert.Zero(t, empty.LatencyMaxMs)
}

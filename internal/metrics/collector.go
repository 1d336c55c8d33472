// Package metrics turns batch run records into Prometheus metrics and
// summary figures.
package metrics

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"

	"mcptape/internal/registry"
	"mcptape/pkg/logging"
)

// DefaultNamespace prefixes every metric name.
const DefaultNamespace = "mcptape"

// Collector holds the run metrics in its own registry, so several collectors
// can coexist and nothing is registered globally.
type Collector struct {
	registry *prometheus.Registry

	testsTotal      *prometheus.CounterVec
	testLatency     *prometheus.HistogramVec
	runsTotal       *prometheus.CounterVec
	runDuration     prometheus.Histogram
	lastRunPassRate *prometheus.GaugeVec
	lastRunTime     *prometheus.GaugeVec
}

// NewCollector creates a collector whose metric names start with namespace.
func NewCollector(namespace string) *Collector {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	c := &Collector{registry: prometheus.NewRegistry()}

	c.testsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tests_total",
			Help:      "Number of test verdicts by server, status and response mode",
		},
		[]string{"server", "status", "mode"},
	)

	c.testLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "test_latency_seconds",
			Help:      "Latency of test calls in seconds",
			Buckets:   []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"server", "tool"},
	)

	c.runsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Number of batch runs by status",
		},
		[]string{"status"},
	)

	c.runDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Wall time of batch runs in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.01, 4, 8),
		},
	)

	c.lastRunPassRate = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_pass_ratio",
			Help:      "Fraction of passed tests in the latest run of a spec",
		},
		[]string{"spec"},
	)

	c.lastRunTime = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_timestamp_seconds",
			Help:      "Unix time of the latest run of a spec",
		},
		[]string{"spec"},
	)

	c.registry.MustRegister(
		c.testsTotal,
		c.testLatency,
		c.runsTotal,
		c.runDuration,
		c.lastRunPassRate,
		c.lastRunTime,
	)
	return c
}

// Registry exposes the collector's registry.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// ObserveRun records every verdict of a run.
func (c *Collector) ObserveRun(run *registry.RunRecord) {
	for _, res := range run.Results {
		c.testsTotal.WithLabelValues(res.Server, res.Status, string(res.Mode)).Inc()
		c.testLatency.WithLabelValues(res.Server, res.Tool).Observe(res.LatencyMs / 1000)
	}

	status := run.Status
	if status == "" {
		status = registry.RunCompleted
	}
	c.runsTotal.WithLabelValues(status).Inc()
	c.runDuration.Observe(run.DurationMs / 1000)

	passed, total := run.Counts()
	ratio := 0.0
	if total > 0 {
		ratio = float64(passed) / float64(total)
	}
	c.lastRunPassRate.WithLabelValues(run.SpecName).Set(ratio)
	if !run.Timestamp.IsZero() {
		c.lastRunTime.WithLabelValues(run.SpecName).Set(float64(run.Timestamp.Unix()))
	}
}

// WriteToTextfile writes the metrics in the node_exporter textfile format.
// The file is replaced atomically.
func (c *Collector) WriteToTextfile(path string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create metrics directory %s: %w", dir, err)
		}
	}
	if err := prometheus.WriteToTextfile(path, c.registry); err != nil {
		return fmt.Errorf("failed to write metrics to %s: %w", path, err)
	}
	logging.Debug("Metrics", "Wrote metrics textfile %s", path)
	return nil
}

package metrics

import (
	"math"
	"slices"

	"mcptape/internal/registry"
)

// Summary condenses one run into the figures the metrics command shows.
type Summary struct {
	SessionID    string                `json:"session_id"`
	SpecName     string                `json:"spec_name"`
	Passed       int                   `json:"passed"`
	Total        int                   `json:"total"`
	PassRate     float64               `json:"pass_rate"`
	DurationMs   float64               `json:"duration_ms"`
	ByMode       map[registry.Mode]int `json:"by_mode"`
	LatencyP50Ms float64               `json:"latency_p50_ms"`
	LatencyP95Ms float64               `json:"latency_p95_ms"`
	LatencyMaxMs float64               `json:"latency_max_ms"`
}

// Summarize computes the summary of a run. Percentiles use the
// nearest-rank method.
func Summarize(run *registry.RunRecord) Summary {
	s := Summary{
		SessionID:  run.SessionID,
		SpecName:   run.SpecName,
		DurationMs: run.DurationMs,
		ByMode:     make(map[registry.Mode]int),
	}
	s.Passed, s.Total = run.Counts()
	if s.Total > 0 {
		s.PassRate = float64(s.Passed) / float64(s.Total)
	}

	latencies := make([]float64, 0, len(run.Results))
	for _, res := range run.Results {
		s.ByMode[res.Mode]++
		latencies = append(latencies, res.LatencyMs)
	}
	if len(latencies) == 0 {
		return s
	}
	slices.Sort(latencies)
	s.LatencyP50Ms = percentile(latencies, 50)
	s.LatencyP95Ms = percentile(latencies, 95)
	s.LatencyMaxMs = latencies[len(latencies)-1]
	return s
}

// percentile expects sorted, non-empty input.
func percentile(sorted []float64, p float64) float64 {
	rank := int(math.Ceil(p / 100 * float64(len(sorted))))
	rank = min(max(rank, 1), len(sorted))
	return sorted[rank-1]
}

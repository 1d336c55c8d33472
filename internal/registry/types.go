package registry

import (
	"fmt"
	"time"
)

// Category is the kind of protocol entity a mock was recorded for. The values
// double as directory names under mocks/.
type Category string

const (
	CategoryTools     Category = "tools"
	CategoryResources Category = "resources"
	CategoryPrompts   Category = "prompts"
)

// Categories lists every category in a fixed order.
var Categories = []Category{CategoryTools, CategoryResources, CategoryPrompts}

// ParseCategory accepts both the singular and plural spelling.
func ParseCategory(s string) (Category, error) {
	switch s {
	case "tool", "tools":
		return CategoryTools, nil
	case "resource", "resources":
		return CategoryResources, nil
	case "prompt", "prompts":
		return CategoryPrompts, nil
	}
	return "", fmt.Errorf("unknown mock category %q (want tools, resources or prompts)", s)
}

// MockRecord is one recorded call persisted under mocks/{category}/.
type MockRecord struct {
	Category   Category       `json:"category"`
	Name       string         `json:"name"`
	Arguments  map[string]any `json:"arguments"`
	Response   any            `json:"response"`
	RecordedAt time.Time      `json:"recorded_at"`
}

// Test verdicts.
const (
	StatusPass = "PASS"
	StatusFail = "FAIL"
)

// Run statuses.
const (
	RunCompleted = "completed"
	RunFailed    = "failed"
)

// Mode says where a test response came from.
type Mode string

const (
	ModeReal     Mode = "real"
	ModeMock     Mode = "mock"
	ModeReplay   Mode = "replay"
	ModeRecorded Mode = "recorded"
	ModeError    Mode = "error"
)

// Expected captures the checks that were configured for a test.
type Expected struct {
	Schema       string   `json:"schema,omitempty"`
	Keywords     []string `json:"keywords,omitempty"`
	MaxLatencyMs *float64 `json:"max_latency_ms,omitempty"`
}

// TestResult is the verdict for one (server, test) pair.
type TestResult struct {
	TestName  string         `json:"test_name"`
	Server    string         `json:"server,omitempty"`
	Tool      string         `json:"tool"`
	Arguments map[string]any `json:"arguments"`
	Response  any            `json:"response"`
	Status    string         `json:"status"`
	LatencyMs float64        `json:"latency_ms"`
	Mode      Mode           `json:"mode"`
	Failures  []string       `json:"failures"`
	Expected  Expected       `json:"expected"`
}

// Passed reports whether the result is a PASS.
func (r TestResult) Passed() bool {
	return r.Status == StatusPass
}

// RunRecord is one completed batch run, persisted under runs/.
type RunRecord struct {
	SessionID  string         `json:"session_id"`
	Timestamp  time.Time      `json:"timestamp"`
	SpecName   string         `json:"spec_name"`
	Server     string         `json:"server"`
	Status     string         `json:"status"`
	DurationMs float64        `json:"duration_ms"`
	Results    []TestResult   `json:"results"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// Counts returns the number of passed and total results.
func (r RunRecord) Counts() (passed, total int) {
	for _, res := range r.Results {
		if res.Passed() {
			passed++
		}
	}
	return passed, len(r.Results)
}

// Capabilities is the discovered entity manifest of one server.
type Capabilities struct {
	Server       string           `json:"server"`
	DiscoveredAt time.Time        `json:"discovered_at"`
	Tools        []map[string]any `json:"tools"`
	Resources    []map[string]any `json:"resources"`
	Prompts      []map[string]any `json:"prompts"`
}

// Stats summarises what the store holds.
type Stats struct {
	TotalMocks int              `json:"total_mocks"`
	ByCategory map[Category]int `json:"by_category"`
	TotalRuns  int              `json:"total_runs"`
	DataDir    string           `json:"data_dir"`
}

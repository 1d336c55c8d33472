package testing

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"mcptape/internal/errdefs"
	"mcptape/internal/registry"
)

const (
	// DefaultTimeoutSec is the per-call timeout when neither the test nor the
	// config sets one.
	DefaultTimeoutSec = 45
	// MaxTimeoutSec is the largest timeout a test may ask for.
	MaxTimeoutSec = 300
)

// TestSpec is a YAML test specification: a set of tool calls with
// expectations, run against one or more MCP servers.
type TestSpec struct {
	// AgentName identifies the spec in reports and run records
	AgentName string `yaml:"agent_name"`
	// Server is a single server identifier, mutually exclusive with Servers
	Server string `yaml:"mcp_server,omitempty"`
	// Servers lists several server identifiers
	Servers []string `yaml:"mcp_servers,omitempty"`
	// Tools is informational and only shown in reports
	Tools []string `yaml:"tools,omitempty"`
	// UseMocks replays every test from the registry unless the test overrides it
	UseMocks bool `yaml:"use_mocks,omitempty"`
	// RecordMocks records every live response unless the test overrides it
	RecordMocks bool `yaml:"record_mocks,omitempty"`
	// Tests are the calls to make
	Tests []TestCase `yaml:"custom_tests"`
}

// TestCase is one tool call with its expectations.
type TestCase struct {
	Name      string         `yaml:"name"`
	Tool      string         `yaml:"tool"`
	Arguments map[string]any `yaml:"arguments,omitempty"`
	// TimeoutSec bounds the call; zero means the configured default
	TimeoutSec  int   `yaml:"timeout_sec,omitempty"`
	UseMocks    *bool `yaml:"use_mocks,omitempty"`
	RecordMocks *bool `yaml:"record_mocks,omitempty"`
	// Mock is an inline response returned instead of calling the server
	Mock             any             `yaml:"mock,omitempty"`
	ExpectedSchema   string          `yaml:"expected_schema,omitempty"`
	ExpectedKeywords []string        `yaml:"expected_keywords,omitempty"`
	ExpectedMetrics  ExpectedMetrics `yaml:"expected_metrics,omitempty"`
}

// ExpectedMetrics holds the numeric assertions of a test.
type ExpectedMetrics struct {
	MaxLatencyMs *float64 `yaml:"max_latency_ms,omitempty"`
}

// ParseSpec decodes and validates a test spec document.
func ParseSpec(data []byte) (*TestSpec, error) {
	var spec TestSpec
	if err := yaml.Unmarshal(data, &spec); err != nil {
		return nil, errdefs.Configuration("parse test spec", err)
	}
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	return &spec, nil
}

// LoadSpec reads a test spec from disk.
func LoadSpec(path string) (*TestSpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errdefs.Configuration("read test spec "+path, err)
	}
	spec, err := ParseSpec(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return spec, nil
}

// Validate reports every problem in the spec in a single configuration error.
func (s *TestSpec) Validate() error {
	var problems []string

	if strings.TrimSpace(s.AgentName) == "" {
		problems = append(problems, "agent_name is required")
	}
	switch {
	case s.Server != "" && len(s.Servers) > 0:
		problems = append(problems, "set either mcp_server or mcp_servers, not both")
	case s.Server == "" && len(s.Servers) == 0:
		problems = append(problems, "mcp_server or mcp_servers is required")
	}
	for i, srv := range s.Servers {
		if strings.TrimSpace(srv) == "" {
			problems = append(problems, fmt.Sprintf("mcp_servers[%d] is empty", i))
		}
	}

	seen := make(map[string]bool, len(s.Tests))
	for i, tc := range s.Tests {
		field := fmt.Sprintf("custom_tests[%d]", i)
		if tc.Name == "" {
			problems = append(problems, field+".name is required")
		} else if seen[tc.Name] {
			problems = append(problems, fmt.Sprintf("%s.name %q is used twice", field, tc.Name))
		}
		seen[tc.Name] = true
		if tc.Tool == "" {
			problems = append(problems, field+".tool is required")
		}
		if tc.TimeoutSec < 0 || tc.TimeoutSec > MaxTimeoutSec {
			problems = append(problems, fmt.Sprintf("%s.timeout_sec must be between 1 and %d, got %d", field, MaxTimeoutSec, tc.TimeoutSec))
		}
		if m := tc.ExpectedMetrics.MaxLatencyMs; m != nil && *m <= 0 {
			problems = append(problems, field+".expected_metrics.max_latency_ms must be positive")
		}
	}

	if len(problems) > 0 {
		return errdefs.Configurationf("invalid test spec: %s", strings.Join(problems, "; "))
	}
	return nil
}

// ServerIDs returns the servers the spec targets, in declaration order.
func (s *TestSpec) ServerIDs() []string {
	if len(s.Servers) > 0 {
		return s.Servers
	}
	if s.Server != "" {
		return []string{s.Server}
	}
	return nil
}

// Timeout returns the call timeout, falling back to fallbackSec and then to
// DefaultTimeoutSec.
func (tc TestCase) Timeout(fallbackSec int) time.Duration {
	sec := tc.TimeoutSec
	if sec <= 0 {
		sec = fallbackSec
	}
	if sec <= 0 {
		sec = DefaultTimeoutSec
	}
	return time.Duration(sec) * time.Second
}

// Expected converts the assertions to their persisted form.
func (tc TestCase) Expected() registry.Expected {
	return registry.Expected{
		Schema:       tc.ExpectedSchema,
		Keywords:     tc.ExpectedKeywords,
		MaxLatencyMs: tc.ExpectedMetrics.MaxLatencyMs,
	}
}

// effective resolves the per-test record/replay flags against the spec
// defaults.
func (tc TestCase) effective(spec *TestSpec) (useMocks, recordMocks bool) {
	useMocks, recordMocks = spec.UseMocks, spec.RecordMocks
	if tc.UseMocks != nil {
		useMocks = *tc.UseMocks
	}
	if tc.RecordMocks != nil {
		recordMocks = *tc.RecordMocks
	}
	return useMocks, recordMocks
}

package testing

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mcptape/internal/errdefs"
)

const echoSpec = `agent_name: echo-agent
mcp_server: servers/echo.py
tools: [echo]
record_mocks: true
custom_tests:
  - name: echo_hi
    tool: echo
    arguments:
      text: hi there
    mock:
      result: hi there
    expected_keywords: [hi]
  - name: echo_fast
    tool: echo
    timeout_sec: 5
    use_mocks: true
    expected_metrics:
      max_latency_ms: 250
`

func TestParseSpec(t *testing.T) {
	spec, err := ParseSpec([]byte(echoSpec))
	require.NoError(t, err)

	assert.Equal(t, "echo-agent", spec.AgentName)
	assert.Equal(t, []string{"servers/echo.py"}, spec.ServerIDs())
	require.Len(t, spec.Tests, 2)

	hi := spec.Tests[0]
	assert.Equal(t, map[string]any{"text": "hi there"}, hi.Arguments)
	assert.Equal(t, map[string]any{"result": "hi there"}, hi.Mock)
	assert.Equal(t, 45*time.Second, hi.Timeout(0))
	assert.Equal(t, 10*time.Second, hi.Timeout(10))

	fast := spec.Tests[1]
	assert.Equal(t, 5*time.Second, fast.Timeout(10))
	require.NotNil(t, fast.ExpectedMetrics.MaxLatencyMs)
	assert.Equal(t, 250.0, *fast.ExpectedMetrics.MaxLatencyMs)
	assert.Equal(t, 250.0, *fast.Expected().MaxLatencyMs)

	useMocks, recordMocks := hi.effective(spec)
	assert.False(t, useMocks)
	assert.True(t, recordMocks)
	useMocks, recordMocks = fast.effective(spec)
	assert.True(t, useMocks)
	assert.True(t, recordMocks)
}

func TestParseSpec_MultipleServers(t *testing.T) {
	spec, err := ParseSpec([]byte("agent_name: a\nmcp_servers: [one, two]\ncustom_tests: []\n"))
	require.NoError(t, err)
	assert.Equal(t, []string{"one", "two"}, spec.ServerIDs())
}

func TestParseSpec_Invalid(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		want []string
	}{
		{
			name: "missing agent and server",
			doc:  "custom_tests: []\n",
			want: []string{"agent_name is required", "mcp_server or mcp_servers is required"},
		},
		{
			name: "both server forms",
			doc:  "agent_name: a\nmcp_server: x\nmcp_servers: [y]\n",
			want: []string{"not both"},
		},
		{
			name: "every bad test field is listed",
			doc: `agent_name: a
mcp_server: x
custom_tests:
  - tool: echo
  - name: t
    timeout_sec: 301
  - name: t
    tool: echo
    expected_metrics: {max_latency_ms: -1}
`,
			want: []string{
				"custom_tests[0].name is required",
				"custom_tests[1].tool is required",
				"custom_tests[1].timeout_sec must be between 1 and 300, got 301",
				`custom_tests[2].name "t" is used twice`,
				"custom_tests[2].expected_metrics.max_latency_ms must be positive",
			},
		},
		{
			name: "not yaml",
			doc:  "agent_name: [\n",
			want: []string{"parse test spec"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseSpec([]byte(tt.doc))
			require.Error(t, err)
			assert.True(t, errdefs.IsConfiguration(err))
			for _, w := range tt.want {
				assert.Contains(t, err.Error(), w)
			}
		})
	}
}

func TestLoadSpec(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "echo.yaml")
	require.NoError(t, os.WriteFile(path, []byte(echoSpec), 0644))

	spec, err := LoadSpec(path)
	require.NoError(t, err)
	assert.Equal(t, "echo-agent", spec.AgentName)

	_, err = LoadSpec(filepath.Join(dir, "missing.yaml"))
	require.Error(t, err)
	assert.True(t, errdefs.IsConfiguration(err))
}

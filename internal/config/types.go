package config

import (
	"time"
)

// MCPTapeConfig is the top-level configuration structure for mcptape.
type MCPTapeConfig struct {
	DataDir      string             `yaml:"dataDir,omitempty"`   // Root of the mock/run/capability store
	LogLevel     string             `yaml:"logLevel,omitempty"`  // debug, info, warn or error
	LogFormat    string             `yaml:"logFormat,omitempty"` // text or json
	Servers      []ServerDefinition `yaml:"servers,omitempty"`
	Defaults     DefaultsConfig     `yaml:"defaults,omitempty"`
	Retry        RetryConfig        `yaml:"retry,omitempty"`
	Replay       ReplayConfig       `yaml:"replay,omitempty"`
	Registry     RegistryConfig     `yaml:"registry,omitempty"`
	WorkflowsDir string             `yaml:"workflowsDir,omitempty"` // Directory of workflow YAML files
	SchemasDir   string             `yaml:"schemasDir,omitempty"`   // Directory of expected_schema JSON files
	Metrics      MetricsConfig      `yaml:"metrics,omitempty"`
	SelfUpdate   SelfUpdateConfig   `yaml:"selfUpdate,omitempty"`
}

// Transports accepted in server definitions.
const (
	TransportStdio          = "stdio"
	TransportStreamableHTTP = "streamable-http"
	TransportSSE            = "sse"
)

// ServerDefinition names an MCP server and says how to reach it.
type ServerDefinition struct {
	Name      string            `yaml:"name"`                // Identifier used by test specs and workflows
	Transport string            `yaml:"transport,omitempty"` // stdio (default), streamable-http or sse
	Command   string            `yaml:"command,omitempty"`   // stdio only
	Args      []string          `yaml:"args,omitempty"`      // stdio only
	Env       map[string]string `yaml:"env,omitempty"`       // stdio only, added to the inherited environment
	URL       string            `yaml:"url,omitempty"`       // streamable-http and sse
	Headers   map[string]string `yaml:"headers,omitempty"`   // streamable-http and sse
	Timeout   time.Duration     `yaml:"timeout,omitempty"`   // HTTP client timeout
}

// DefaultsConfig holds run defaults that test specs may override.
type DefaultsConfig struct {
	TimeoutSec int `yaml:"timeoutSec,omitempty"` // Per-call timeout when a test sets none
	Parallel   int `yaml:"parallel,omitempty"`   // Batch concurrency limit, 0 means unbounded
}

// RetryConfig configures the retry controller wrapped around live calls.
type RetryConfig struct {
	Enabled     bool          `yaml:"enabled,omitempty"`
	Preset      string        `yaml:"preset,omitempty"` // default, quick, standard or persistent
	MaxAttempts int           `yaml:"maxAttempts,omitempty"`
	BaseDelay   time.Duration `yaml:"baseDelay,omitempty"`
	MaxDelay    time.Duration `yaml:"maxDelay,omitempty"`
	Multiplier  float64       `yaml:"multiplier,omitempty"`
	Jitter      *bool         `yaml:"jitter,omitempty"`
}

// ReplayConfig controls what happens when a replayed call has no recording.
type ReplayConfig struct {
	Fallback bool `yaml:"fallback,omitempty"` // Fall through to a live call instead of failing
}

// RegistryConfig controls the mock registry.
type RegistryConfig struct {
	MigrateLegacy bool   `yaml:"migrateLegacy,omitempty"` // Import a legacy mocks.json on startup
	LegacyPath    string `yaml:"legacyPath,omitempty"`
}

// MetricsConfig controls the Prometheus textfile export.
type MetricsConfig struct {
	Textfile string `yaml:"textfile,omitempty"` // Write run metrics here after every run when set
}

// SelfUpdateConfig configures the self-update command.
type SelfUpdateConfig struct {
	Repository string `yaml:"repository,omitempty"` // owner/name of the GitHub repository
}

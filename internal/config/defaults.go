package config

import (
	"fmt"

	"mcptape/internal/retry"
)

const (
	DefaultDataDir      = "data"
	DefaultTimeoutSec   = 45
	DefaultWorkflowsDir = "workflows"
	DefaultSchemasDir   = "schemas"
	DefaultLegacyPath   = "mocks.json"
	DefaultRepository   = "mcptape/mcptape"
)

// GetDefaultConfig returns the built-in configuration: a local data directory,
// no named servers, retries off.
func GetDefaultConfig() MCPTapeConfig {
	return MCPTapeConfig{
		DataDir:   DefaultDataDir,
		LogLevel:  "info",
		LogFormat: "text",
		Servers:   []ServerDefinition{},
		Defaults: DefaultsConfig{
			TimeoutSec: DefaultTimeoutSec,
		},
		Retry: RetryConfig{
			Preset: "default",
		},
		Registry: RegistryConfig{
			LegacyPath: DefaultLegacyPath,
		},
		WorkflowsDir: DefaultWorkflowsDir,
		SchemasDir:   DefaultSchemasDir,
		SelfUpdate: SelfUpdateConfig{
			Repository: DefaultRepository,
		},
	}
}

// Controller builds the retry controller described by the config, or nil
// when retries are disabled. Explicit fields override the preset.
func (r RetryConfig) Controller() (*retry.Controller, error) {
	if !r.Enabled {
		return nil, nil
	}
	cfg, ok := retry.Preset(r.Preset)
	if !ok {
		return nil, fmt.Errorf("unknown retry preset %q", r.Preset)
	}
	if r.MaxAttempts > 0 {
		cfg.MaxAttempts = r.MaxAttempts
	}
	if r.BaseDelay > 0 {
		cfg.BaseDelay = r.BaseDelay
	}
	if r.MaxDelay > 0 {
		cfg.MaxDelay = r.MaxDelay
	}
	if r.Multiplier > 0 {
		cfg.Multiplier = r.Multiplier
	}
	if r.Jitter != nil {
		cfg.Jitter = *r.Jitter
	}
	return retry.New(cfg), nil
}

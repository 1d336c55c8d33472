package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"mcptape/internal/errdefs"
	"mcptape/pkg/logging"
)

// For mocking in tests
var osUserHomeDir = os.UserHomeDir
var osGetwd = os.Getwd

const (
	userConfigDir    = ".config/mcptape"
	projectConfigDir = ".mcptape"
	configFileName   = "config.yaml"
)

// LoadConfig loads the mcptape configuration by layering default, user, and project settings.
func LoadConfig() (MCPTapeConfig, error) {
	return LoadConfigWithOverride("")
}

// LoadConfigWithOverride layers an explicit config file (the --config flag) on
// top of the default, user and project layers. An empty path adds nothing.
func LoadConfigWithOverride(overridePath string) (MCPTapeConfig, error) {
	// 1. Start with the default configuration
	config := GetDefaultConfig()

	// 2. User-specific configuration
	userConfigPath, err := getUserConfigPath()
	if err != nil {
		// User config is optional
		logging.Warn("Config", "Could not determine user config path: %v", err)
	} else if config, err = overlayFile(config, userConfigPath, false); err != nil {
		return MCPTapeConfig{}, err
	}

	// 3. Project-specific configuration
	projectConfigPath, err := getProjectConfigPath()
	if err != nil {
		logging.Warn("Config", "Could not determine project config path: %v", err)
	} else if config, err = overlayFile(config, projectConfigPath, false); err != nil {
		return MCPTapeConfig{}, err
	}

	// 4. Explicit file, which must exist
	if overridePath != "" {
		if config, err = overlayFile(config, overridePath, true); err != nil {
			return MCPTapeConfig{}, err
		}
	}

	if err := config.Validate(); err != nil {
		return MCPTapeConfig{}, err
	}
	return config, nil
}

func overlayFile(base MCPTapeConfig, path string, required bool) (MCPTapeConfig, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if required {
			return base, errdefs.Configurationf("config file %s does not exist", path)
		}
		return base, nil
	}
	overlay, err := loadConfigFromFile(path)
	if err != nil {
		return base, errdefs.Configuration("load config", fmt.Errorf("error loading config from %s: %w", path, err))
	}
	logging.Debug("Config", "Loaded configuration layer %s", path)
	return mergeConfigs(base, overlay), nil
}

var getUserConfigPath = func() (string, error) {
	homeDir, err := osUserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(homeDir, userConfigDir, configFileName), nil
}

var getProjectConfigPath = func() (string, error) {
	wd, err := osGetwd()
	if err != nil {
		return "", err
	}
	return filepath.Join(wd, projectConfigDir, configFileName), nil
}

// loadConfigFromFile loads an MCPTapeConfig from a YAML file.
func loadConfigFromFile(filePath string) (MCPTapeConfig, error) {
	var config MCPTapeConfig
	data, err := os.ReadFile(filePath)
	if err != nil {
		return MCPTapeConfig{}, err
	}
	if err := yaml.Unmarshal(data, &config); err != nil {
		return MCPTapeConfig{}, err
	}
	return config, nil
}

// mergeConfigs merges 'overlay' config into 'base' config. Non-zero overlay
// fields win; servers are merged by name.
func mergeConfigs(base, overlay MCPTapeConfig) MCPTapeConfig {
	merged := base

	if overlay.DataDir != "" {
		merged.DataDir = overlay.DataDir
	}
	if overlay.LogLevel != "" {
		merged.LogLevel = overlay.LogLevel
	}
	if overlay.LogFormat != "" {
		merged.LogFormat = overlay.LogFormat
	}
	if overlay.WorkflowsDir != "" {
		merged.WorkflowsDir = overlay.WorkflowsDir
	}
	if overlay.SchemasDir != "" {
		merged.SchemasDir = overlay.SchemasDir
	}

	// Servers: replace if name exists, otherwise add. Order is base order
	// followed by new names in overlay order.
	index := make(map[string]int, len(merged.Servers))
	servers := make([]ServerDefinition, 0, len(base.Servers)+len(overlay.Servers))
	for _, srv := range base.Servers {
		index[srv.Name] = len(servers)
		servers = append(servers, srv)
	}
	for _, srv := range overlay.Servers {
		if i, ok := index[srv.Name]; ok {
			servers[i] = srv
			continue
		}
		index[srv.Name] = len(servers)
		servers = append(servers, srv)
	}
	merged.Servers = servers

	if overlay.Defaults.TimeoutSec != 0 {
		merged.Defaults.TimeoutSec = overlay.Defaults.TimeoutSec
	}
	if overlay.Defaults.Parallel != 0 {
		merged.Defaults.Parallel = overlay.Defaults.Parallel
	}

	if overlay.Retry.Enabled {
		merged.Retry.Enabled = true
	}
	if overlay.Retry.Preset != "" {
		merged.Retry.Preset = overlay.Retry.Preset
	}
	if overlay.Retry.MaxAttempts != 0 {
		merged.Retry.MaxAttempts = overlay.Retry.MaxAttempts
	}
	if overlay.Retry.BaseDelay != 0 {
		merged.Retry.BaseDelay = overlay.Retry.BaseDelay
	}
	if overlay.Retry.MaxDelay != 0 {
		merged.Retry.MaxDelay = overlay.Retry.MaxDelay
	}
	if overlay.Retry.Multiplier != 0 {
		merged.Retry.Multiplier = overlay.Retry.Multiplier
	}
	if overlay.Retry.Jitter != nil {
		merged.Retry.Jitter = overlay.Retry.Jitter
	}

	if overlay.Replay.Fallback {
		merged.Replay.Fallback = true
	}
	if overlay.Registry.MigrateLegacy {
		merged.Registry.MigrateLegacy = true
	}
	if overlay.Registry.LegacyPath != "" {
		merged.Registry.LegacyPath = overlay.Registry.LegacyPath
	}
	if overlay.Metrics.Textfile != "" {
		merged.Metrics.Textfile = overlay.Metrics.Textfile
	}
	if overlay.SelfUpdate.Repository != "" {
		merged.SelfUpdate.Repository = overlay.SelfUpdate.Repository
	}

	return merged
}

// GetUserConfigDir returns the user configuration directory path
func GetUserConfigDir() (string, error) {
	homeDir, err := osUserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(homeDir, userConfigDir), nil
}

// Loaded is one successfully parsed file from LoadAndParseYAML.
type Loaded[T any] struct {
	Path  string
	Value T
}

// LoadAndParseYAML parses every *.yaml and *.yml file directly under dir into
// T, in file name order. Files that fail to parse or validate are logged and
// skipped. A missing directory yields no entries.
func LoadAndParseYAML[T any](dir string, validator func(T) error) ([]Loaded[T], error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read directory %s: %w", dir, err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(e.Name()))
		if ext == ".yaml" || ext == ".yml" {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	var out []Loaded[T]
	for _, name := range names {
		path := filepath.Join(dir, name)
		data, err := os.ReadFile(path)
		if err != nil {
			logging.Warn("Config", "Skipping unreadable file %s: %v", path, err)
			continue
		}
		var v T
		if err := yaml.Unmarshal(data, &v); err != nil {
			logging.Warn("Config", "Skipping invalid YAML in %s: %v", path, err)
			continue
		}
		if validator != nil {
			if err := validator(v); err != nil {
				logging.Warn("Config", "Skipping %s: %v", path, err)
				continue
			}
		}
		out = append(out, Loaded[T]{Path: path, Value: v})
	}
	return out, nil
}

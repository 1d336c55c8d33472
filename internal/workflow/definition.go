package workflow

import (
	"fmt"
	"maps"
	"os"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"

	"mcptape/internal/dsl"
	"mcptape/internal/errdefs"
	"mcptape/internal/registry"
)

// Definition is a workflow file.
type Definition struct {
	Name         string                `yaml:"workflow_name"`
	Server       string                `yaml:"mcp_server,omitempty"`
	Workflow     []string              `yaml:"workflow"`
	InitialInput any                   `yaml:"initial_input,omitempty"`
	Description  string                `yaml:"description,omitempty"`
	Tags         []string              `yaml:"tags,omitempty"`
	Nodes        map[string]NodeConfig `yaml:"nodes,omitempty"`
	OnError      []string              `yaml:"on_error,omitempty"`
	UseMocks     bool                  `yaml:"use_mocks,omitempty"`
	RecordMocks  bool                  `yaml:"record_mocks,omitempty"`
}

// NodeConfig is one entry of the nodes table. Either Type names a registered
// custom type, or Kind is "tool" and Entity/Name describe the protocol call.
type NodeConfig struct {
	Type   string         `yaml:"type,omitempty"`
	Params map[string]any `yaml:"params,omitempty"`
	Kind   string         `yaml:"kind,omitempty"`
	Entity string         `yaml:"entity,omitempty"`
	Name   string         `yaml:"name,omitempty"`
}

// EntityCategory maps the entity field onto a registry category.
func (c NodeConfig) EntityCategory() (registry.Category, error) {
	if c.Entity == "" {
		return registry.CategoryTools, nil
	}
	return registry.ParseCategory(c.Entity)
}

// ParseDefinition decodes and validates a workflow document.
func ParseDefinition(data []byte) (Definition, error) {
	var def Definition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return Definition{}, errdefs.Configuration("parse workflow", err)
	}
	if err := def.Validate(); err != nil {
		return Definition{}, err
	}
	return def, nil
}

// LoadDefinition reads a workflow file.
func LoadDefinition(path string) (Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Definition{}, errdefs.Configuration("read workflow", err)
	}
	def, err := ParseDefinition(data)
	if err != nil {
		return Definition{}, fmt.Errorf("%s: %w", path, err)
	}
	return def, nil
}

// Validate checks everything that can be checked without a server.
func (d Definition) Validate() error {
	var problems []string
	if strings.TrimSpace(d.Name) == "" {
		problems = append(problems, "workflow_name is required")
	}
	if len(d.Workflow) == 0 {
		problems = append(problems, "workflow must have at least one line")
	}

	for _, name := range slices.Sorted(maps.Keys(d.Nodes)) {
		cfg := d.Nodes[name]
		switch {
		case cfg.Type != "" && cfg.Kind != "":
			problems = append(problems, fmt.Sprintf("node %s: type and kind are mutually exclusive", name))
		case cfg.Type == "" && cfg.Kind != string(ToolNode):
			problems = append(problems, fmt.Sprintf("node %s: needs a type or kind: tool", name))
		}
		if _, err := cfg.EntityCategory(); err != nil {
			problems = append(problems, fmt.Sprintf("node %s: %v", name, err))
		}
	}
	if len(problems) > 0 {
		return errdefs.Configurationf("invalid workflow %s: %s", d.Name, strings.Join(problems, "; "))
	}

	edges, err := dsl.Parse(d.Workflow)
	if err != nil {
		return err
	}
	known := make(map[string]bool)
	for _, n := range dsl.OrderedNodes(edges) {
		known[n] = true
	}
	for _, n := range d.OnError {
		if !known[n] {
			return errdefs.Configurationf("invalid workflow %s: on_error names unknown node %s", d.Name, n)
		}
	}
	return nil
}

package discovery

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"

	"mcptape/internal/errdefs"
	"mcptape/internal/mapping"
	"mcptape/internal/mcpclient"
	"mcptape/internal/registry"
)

// ManifestSchemaSource serves tool schemas and the tool catalog from a saved
// capability manifest.
type ManifestSchemaSource struct {
	caps *registry.Capabilities
}

// NewManifestSchemaSource wraps a manifest. A nil manifest yields discovery
// errors, which callers treat as "no catalog".
func NewManifestSchemaSource(caps *registry.Capabilities) *ManifestSchemaSource {
	return &ManifestSchemaSource{caps: caps}
}

func (m *ManifestSchemaSource) ToolSchema(_ context.Context, tool string) (mapping.ToolSchema, error) {
	if m.caps == nil {
		return mapping.ToolSchema{}, errdefs.Discovery("tool schema", errors.New("no capability manifest saved"))
	}
	for _, t := range m.caps.Tools {
		if name, _ := t["name"].(string); name == tool {
			return mapping.FromInputSchema(tool, t["input_schema"])
		}
	}
	return mapping.ToolSchema{}, fmt.Errorf("%s: %w", tool, mapping.ErrUnknownTool)
}

// ToolNames returns the tool names in the manifest.
func (m *ManifestSchemaSource) ToolNames(_ context.Context) ([]string, error) {
	if m.caps == nil {
		return nil, errdefs.Discovery("tool catalog", errors.New("no capability manifest saved"))
	}
	names := make([]string, 0, len(m.caps.Tools))
	for _, t := range m.caps.Tools {
		if name, ok := t["name"].(string); ok {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names, nil
}

// ClientSchemaSource asks a live server for its tools once and serves schemas
// and the tool catalog from that answer.
type ClientSchemaSource struct {
	client mcpclient.Client
	server string

	once    sync.Once
	schemas map[string]mapping.ToolSchema
	err     error
}

// NewClientSchemaSource returns a source backed by client.
func NewClientSchemaSource(client mcpclient.Client, server string) *ClientSchemaSource {
	return &ClientSchemaSource{client: client, server: server}
}

func (c *ClientSchemaSource) load(ctx context.Context) error {
	c.once.Do(func() {
		tools, err := c.client.ListTools(ctx)
		if err != nil {
			if !errdefs.IsDiscovery(err) {
				err = errdefs.Discovery("list tools on "+c.server, err)
			}
			c.err = err
			return
		}
		c.schemas = make(map[string]mapping.ToolSchema, len(tools))
		for _, t := range tools {
			schema, err := mapping.FromTool(t)
			if err != nil {
				schema = mapping.ToolSchema{Name: t.Name}
			}
			c.schemas[t.Name] = schema
		}
	})
	return c.err
}

func (c *ClientSchemaSource) ToolSchema(ctx context.Context, tool string) (mapping.ToolSchema, error) {
	if err := c.load(ctx); err != nil {
		return mapping.ToolSchema{}, err
	}
	schema, ok := c.schemas[tool]
	if !ok {
		return mapping.ToolSchema{}, fmt.Errorf("%s: %w", tool, mapping.ErrUnknownTool)
	}
	return schema, nil
}

// ToolNames returns the server's tool names.
func (c *ClientSchemaSource) ToolNames(ctx context.Context) ([]string, error) {
	if err := c.load(ctx); err != nil {
		return nil, err
	}
	names := make([]string, 0, len(c.schemas))
	for name := range c.schemas {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func genericJSON(v any) any {
	data, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil
	}
	return out
}

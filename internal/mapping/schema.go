package mapping

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sort"

	"github.com/mark3labs/mcp-go/mcp"
)

// ErrUnknownTool is returned by a SchemaSource that has a tool list but no
// entry for the requested tool.
var ErrUnknownTool = errors.New("tool not found in schema list")

// ToolSchema is the parameter surface of one tool.
type ToolSchema struct {
	Name     string
	Required []string
	Optional []string
}

// Fields returns required then optional field names.
func (s ToolSchema) Fields() []string {
	out := make([]string, 0, len(s.Required)+len(s.Optional))
	out = append(out, s.Required...)
	return append(out, s.Optional...)
}

// Has reports whether field is a declared parameter.
func (s ToolSchema) Has(field string) bool {
	return slices.Contains(s.Required, field) || slices.Contains(s.Optional, field)
}

// SchemaSource provides tool schemas to the mapper. Implementations return
// ErrUnknownTool when the tool is missing from an otherwise usable list, and a
// discovery error when no list could be obtained.
type SchemaSource interface {
	ToolSchema(ctx context.Context, tool string) (ToolSchema, error)
}

// StaticSource is a fixed in-memory SchemaSource.
type StaticSource map[string]ToolSchema

func (s StaticSource) ToolSchema(_ context.Context, tool string) (ToolSchema, error) {
	schema, ok := s[tool]
	if !ok {
		return ToolSchema{}, fmt.Errorf("%s: %w", tool, ErrUnknownTool)
	}
	return schema, nil
}

type inputSchema struct {
	Properties map[string]json.RawMessage `json:"properties"`
	Required   []string                   `json:"required"`
}

// FromInputSchema derives a ToolSchema from a JSON Schema object in any form
// that marshals to JSON (map, raw message, mcp.ToolInputSchema).
func FromInputSchema(name string, schema any) (ToolSchema, error) {
	var raw []byte
	switch s := schema.(type) {
	case nil:
		return ToolSchema{Name: name}, nil
	case json.RawMessage:
		raw = s
	case []byte:
		raw = s
	default:
		b, err := json.Marshal(schema)
		if err != nil {
			return ToolSchema{}, fmt.Errorf("failed to encode input schema of %s: %w", name, err)
		}
		raw = b
	}

	var parsed inputSchema
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return ToolSchema{}, fmt.Errorf("failed to parse input schema of %s: %w", name, err)
	}

	out := ToolSchema{Name: name, Required: slices.Clone(parsed.Required)}
	for prop := range parsed.Properties {
		if !slices.Contains(parsed.Required, prop) {
			out.Optional = append(out.Optional, prop)
		}
	}
	sort.Strings(out.Optional)
	return out, nil
}

// FromTool derives a ToolSchema from a listed MCP tool.
func FromTool(t mcp.Tool) (ToolSchema, error) {
	if t.RawInputSchema != nil {
		return FromInputSchema(t.Name, t.RawInputSchema)
	}
	return FromInputSchema(t.Name, t.InputSchema)
}

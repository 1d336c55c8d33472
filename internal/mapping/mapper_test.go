package mapping

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"mcptape/internal/errdefs"
)

type countingSource struct {
	calls  int
	schema ToolSchema
	err    error
}

func (c *countingSource) ToolSchema(_ context.Context, _ string) (ToolSchema, error) {
	c.calls++
	return c.schema, c.err
}

func summarizeSchema() StaticSource {
	return StaticSource{
		"summarize": {Name: "summarize", Required: []string{"content"}, Optional: []string{"max_links"}},
	}
}

func TestMapper_Auto(t *testing.T) {
	m := &Mapper{Tool: "summarize", Source: summarizeSchema()}

	out, d := m.Map(context.Background(), map[string]any{"url": "x", "title": "y", "content": "z"})

	assert.Equal(t, map[string]any{"content": "z"}, out)
	assert.Equal(t, StrategyAuto, d.Strategy)
	assert.Equal(t, []string{"content"}, d.Forwarded)
	assert.Empty(t, d.Missing)
}

func TestMapper_ExplicitOverridesAuto(t *testing.T) {
	m := &Mapper{Tool: "summarize", Explicit: []string{"url", "title"}, Source: summarizeSchema()}

	out, d := m.Map(context.Background(), map[string]any{"url": "x", "title": "y", "content": "z"})

	assert.Equal(t, map[string]any{"url": "x", "title": "y"}, out)
	assert.Equal(t, StrategyExplicit, d.Strategy)
}

func TestMapper_ExplicitMissingKeysAreNotAnError(t *testing.T) {
	m := &Mapper{Tool: "t", Explicit: []string{"a", "b"}}

	out, d := m.Map(context.Background(), map[string]any{"a": 1})

	assert.Equal(t, map[string]any{"a": 1}, out)
	assert.Equal(t, []string{"b"}, d.Missing)
}

func TestMapper_Fallback(t *testing.T) {
	tests := []struct {
		name   string
		source SchemaSource
	}{
		{"discovery error", &countingSource{err: errdefs.Discovery("list tools", errors.New("boom"))}},
		{"unknown tool", StaticSource{}},
		{"no source", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := &Mapper{Tool: "summarize", Source: tt.source}
			in := map[string]any{"url": "x", "content": "z"}

			out, d := m.Map(context.Background(), in)

			assert.Equal(t, in, out)
			assert.Equal(t, StrategyFallback, d.Strategy)
			assert.Equal(t, []string{"content", "url"}, d.Forwarded)
		})
	}
}

func TestMapper_EmptyIntersectionForwardsEverything(t *testing.T) {
	m := &Mapper{Tool: "summarize", Source: summarizeSchema()}

	out, d := m.Map(context.Background(), map[string]any{"url": "x"})

	assert.Equal(t, map[string]any{"url": "x"}, out)
	assert.Equal(t, StrategyAuto, d.Strategy)
	assert.NotEmpty(t, d.Reason)
}

func TestMapper_MissingRequiredWarns(t *testing.T) {
	m := &Mapper{Tool: "summarize", Source: summarizeSchema()}

	out, d := m.Map(context.Background(), map[string]any{"max_links": 3, "other": true})

	assert.Equal(t, map[string]any{"max_links": 3}, out)
	assert.Equal(t, []string{"content"}, d.Missing)
}

func TestMapper_SchemaFetchedOnce(t *testing.T) {
	src := &countingSource{schema: ToolSchema{Name: "t", Required: []string{"q"}}}
	m := &Mapper{Tool: "t", Source: src}

	for i := 0; i < 3; i++ {
		m.Map(context.Background(), map[string]any{"q": i})
	}
	assert.Equal(t, 1, src.calls)
}

func TestMapper_PassthroughNonMap(t *testing.T) {
	m := &Mapper{Tool: "t", Explicit: []string{"a"}}

	out, d := m.Map(context.Background(), []any{1, 2})

	assert.Equal(t, []any{1, 2}, out)
	assert.Equal(t, StrategyPassthrough, d.Strategy)
}

func TestMapper_UnwrapsCustomNodeOutput(t *testing.T) {
	m := &Mapper{Tool: "summarize", Source: summarizeSchema()}

	out, _ := m.Map(context.Background(), map[string]any{
		"input":       map[string]any{"content": "z", "noise": 1},
		"routing_key": "default",
	})

	assert.Equal(t, map[string]any{"content": "z"}, out)
}

func TestMapper_AutoOutputIsSubsetOfInput(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		fields := rapid.SliceOfDistinct(rapid.StringMatching(`[a-e]`), rapid.ID[string]).Draw(t, "fields")
		input := rapid.MapOf(rapid.StringMatching(`[a-h]`), rapid.IntRange(0, 9)).Draw(t, "input")

		inAny := make(map[string]any, len(input))
		for k, v := range input {
			inAny[k] = v
		}
		m := &Mapper{Tool: "t", Source: StaticSource{"t": {Name: "t", Optional: fields}}}

		out, _ := m.Map(context.Background(), inAny)
		outMap, ok := out.(map[string]any)
		if !ok {
			t.Fatalf("expected map output, got %T", out)
		}
		for k, v := range outMap {
			if inAny[k] != v {
				t.Fatalf("key %q not forwarded from input", k)
			}
		}
	})
}

func TestFromInputSchema(t *testing.T) {
	schema, err := FromInputSchema("search", map[string]any{
		"type": "object",
		"properties": map[string]any{
			"query": map[string]any{"type": "string"},
			"limit": map[string]any{"type": "integer"},
			"lang":  map[string]any{"type": "string"},
		},
		"required": []any{"query"},
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"query"}, schema.Required)
	assert.Equal(t, []string{"lang", "limit"}, schema.Optional)
	assert.Equal(t, []string{"query", "lang", "limit"}, schema.Fields())
	assert.True(t, schema.Has("limit"))
	assert.False(t, schema.Has("page"))
}

package workflow

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mcptape/internal/dsl"
	"mcptape/internal/errdefs"
	"mcptape/internal/registry"
)

func TestBuild_Wiring(t *testing.T) {
	def := Definition{
		Name: "triage",
		Workflow: []string{
			"fetch >> classify",
			"classify - 'high' >> escalate[priority]",
			"classify - 'low' >> archive",
			"escalate",
			"archive",
		},
		Nodes: map[string]NodeConfig{
			"classify": {Type: TypeConditionalRouter},
		},
	}

	g, err := Build(context.Background(), def, DefaultNodeFactory(), Deps{Catalog: staticCatalog{"fetch", "escalate", "archive"}})
	require.NoError(t, err)

	assert.Equal(t, "triage", g.Name())
	assert.Equal(t, "fetch", g.Start())
	assert.Equal(t, []NodeSpec{
		{Name: "fetch", Kind: ToolNode, Next: "classify"},
		{Name: "classify", Kind: RoutingNode},
		{Name: "escalate", Kind: ToolNode, ExplicitParams: []string{"priority"}},
		{Name: "archive", Kind: ToolNode},
	}, g.Nodes())

	_, ok := g.Node(dsl.Terminal)
	assert.False(t, ok, "the terminal sentinel is never a node")

	tests := []struct {
		node, key, want string
		ok              bool
	}{
		{"fetch", "", "classify", true},
		{"fetch", "default", "classify", true},
		{"fetch", "error", "", false},
		{"classify", "high", "escalate", true},
		{"classify", "low", "archive", true},
		{"classify", "", "", false},
		{"classify", "medium", "", false},
		{"escalate", "", "", false},
	}
	for _, tt := range tests {
		next, ok := g.Successor(tt.node, tt.key)
		assert.Equal(t, tt.ok, ok, "%s/%q", tt.node, tt.key)
		assert.Equal(t, tt.want, next, "%s/%q", tt.node, tt.key)
	}

	assert.Len(t, g.Edges(), 5)
}

func TestBuild_Resolution(t *testing.T) {
	tests := []struct {
		name      string
		def       Definition
		catalog   ToolCatalog
		wantErr   bool
		wantKinds map[string]NodeKind
	}{
		{
			name:    "unknown name with catalog",
			def:     Definition{Name: "w", Workflow: []string{"fetch >> typo_tool"}},
			catalog: staticCatalog{"fetch"},
			wantErr: true,
		},
		{
			name:      "catalog failure degrades to tools",
			def:       Definition{Name: "w", Workflow: []string{"fetch >> typo_tool"}},
			catalog:   failingCatalog{},
			wantKinds: map[string]NodeKind{"fetch": ToolNode, "typo_tool": ToolNode},
		},
		{
			name:      "no catalog",
			def:       Definition{Name: "w", Workflow: []string{"fetch >> RetryHandler"}},
			wantKinds: map[string]NodeKind{"fetch": ToolNode, "RetryHandler": ValidationNode},
		},
		{
			name: "declared tool bypasses catalog",
			def: Definition{Name: "w", Workflow: []string{"intro >> fetch"}, Nodes: map[string]NodeConfig{
				"intro": {Kind: "tool", Entity: "prompt", Name: "greeting"},
			}},
			catalog:   staticCatalog{"fetch"},
			wantKinds: map[string]NodeKind{"intro": ToolNode, "fetch": ToolNode},
		},
		{
			name: "declared tool overrides a built-in alias",
			def: Definition{Name: "w", Workflow: []string{"error_handler"}, Nodes: map[string]NodeConfig{
				"error_handler": {Kind: "tool"},
			}},
			wantKinds: map[string]NodeKind{"error_handler": ToolNode},
		},
		{
			name: "unknown custom type",
			def: Definition{Name: "w", Workflow: []string{"gate"}, Nodes: map[string]NodeConfig{
				"gate": {Type: "does_not_exist"},
			}},
			wantErr: true,
		},
		{
			name:    "unparsable line",
			def:     Definition{Name: "w", Workflow: []string{"fetch >>"}},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g, err := Build(context.Background(), tt.def, DefaultNodeFactory(), Deps{Catalog: tt.catalog})
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errdefs.IsConfiguration(err), "got %v", err)
				return
			}
			require.NoError(t, err)
			for name, kind := range tt.wantKinds {
				node, ok := g.Node(name)
				require.True(t, ok, name)
				assert.Equal(t, kind, node.Kind(), name)
			}
		})
	}
}

func TestBuild_ToolTargets(t *testing.T) {
	def := Definition{Name: "w", Workflow: []string{"intro >> readme >> summarize"}, Nodes: map[string]NodeConfig{
		"intro":  {Kind: "tool", Entity: "prompt", Name: "greeting"},
		"readme": {Kind: "tool", Entity: "resource", Name: "file:///README.md"},
	}}
	// "a >> b >> c" is not part of the grammar.
	_, err := Build(context.Background(), def, nil, Deps{})
	require.Error(t, err)

	def.Workflow = []string{"intro >> readme", "readme >> summarize"}
	g, err := Build(context.Background(), def, nil, Deps{})
	require.NoError(t, err)

	node, _ := g.Node("intro")
	cat, name := node.(*ToolStep).Target()
	assert.Equal(t, registry.CategoryPrompts, cat)
	assert.Equal(t, "greeting", name)

	node, _ = g.Node("readme")
	cat, name = node.(*ToolStep).Target()
	assert.Equal(t, registry.CategoryResources, cat)
	assert.Equal(t, "file:///README.md", name)

	node, _ = g.Node("summarize")
	cat, name = node.(*ToolStep).Target()
	assert.Equal(t, registry.CategoryTools, cat)
	assert.Equal(t, "summarize", name)
}

func TestBuild_FactoryNotMutated(t *testing.T) {
	f := DefaultNodeFactory()
	def := Definition{Name: "w", Workflow: []string{"gate"}, Nodes: map[string]NodeConfig{
		"gate": {Type: TypeFieldRouter, Params: map[string]any{"field": "kind"}},
	}}
	_, err := Build(context.Background(), def, f, Deps{})
	require.NoError(t, err)
	assert.False(t, f.Mapped("gate"))
}

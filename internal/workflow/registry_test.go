package workflow

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mcptape/internal/errdefs"
)

const searchWorkflow = `workflow_name: search_flow
mcp_server: servers/search.py
description: Search the web and summarize the hits
tags: [search, rag]
workflow:
  - search >> summarize[content]
initial_input:
  query: golang generics
`

const reviewWorkflow = `workflow_name: review
mcp_server: servers/review.py
description: Route pull requests by priority
tags: [triage]
nodes:
  router:
    type: conditional_router
workflow:
  - fetch_pr >> router
  - router - 'high' >> notify
`

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	require.NoError(t, os.MkdirAll(dir, 0755))
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestParseDefinition(t *testing.T) {
	def, err := ParseDefinition([]byte(reviewWorkflow))
	require.NoError(t, err)
	assert.Equal(t, "review", def.Name)
	assert.Equal(t, "servers/review.py", def.Server)
	assert.Equal(t, TypeConditionalRouter, def.Nodes["router"].Type)
	assert.Len(t, def.Workflow, 2)

	tests := []struct {
		name    string
		doc     string
		wantErr string
	}{
		{"missing name", "workflow: [a]\n", "workflow_name is required"},
		{"no lines", "workflow_name: w\n", "at least one line"},
		{"bad line", "workflow_name: w\nworkflow: ['a >>']\n", "unrecognised workflow line"},
		{"node without type", "workflow_name: w\nworkflow: [a]\nnodes:\n  a: {params: {x: 1}}\n", "needs a type or kind"},
		{"bad entity", "workflow_name: w\nworkflow: [a]\nnodes:\n  a: {kind: tool, entity: widget}\n", "unknown mock category"},
		{"unknown on_error node", "workflow_name: w\nworkflow: [a]\non_error: [b]\n", "unknown node b"},
		{"not yaml", "workflow_name: [\n", "parse workflow"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseDefinition([]byte(tt.doc))
			require.Error(t, err)
			assert.True(t, errdefs.IsConfiguration(err))
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestRegistry_RegisterPersists(t *testing.T) {
	dataDir := t.TempDir()
	src := writeFile(t, t.TempDir(), "search.yaml", searchWorkflow)

	reg, err := NewRegistry(dataDir, "")
	require.NoError(t, err)
	assert.Empty(t, reg.List())

	entry, err := reg.RegisterFile(src, "")
	require.NoError(t, err)
	assert.Equal(t, "search_flow", entry.Name)
	assert.Equal(t, src, entry.Source)
	assert.Equal(t, []string{"search", "rag"}, entry.Tags)

	_, err = reg.RegisterFile(src, "search_copy")
	require.NoError(t, err)

	assert.FileExists(t, filepath.Join(dataDir, "workflows", RegistryFile))
	assert.NoFileExists(t, filepath.Join(dataDir, "workflows", RegistryFile+".tmp"))

	reopened, err := NewRegistry(dataDir, "")
	require.NoError(t, err)
	names := []string{}
	for _, e := range reopened.List() {
		names = append(names, e.Name)
	}
	assert.Equal(t, []string{"search_copy", "search_flow"}, names)

	got, err := reopened.Get("search_flow")
	require.NoError(t, err)
	assert.Equal(t, []string{"search >> summarize[content]"}, got.Definition.Workflow)
	assert.Equal(t, map[string]any{"query": "golang generics"}, got.Definition.InitialInput)
}

func TestRegistry_Queries(t *testing.T) {
	reg, err := NewRegistry(t.TempDir(), "")
	require.NoError(t, err)

	dir := t.TempDir()
	writeFile(t, dir, "a.yaml", searchWorkflow)
	writeFile(t, dir, "b.yml", reviewWorkflow)
	writeFile(t, dir, "broken.yaml", "workflow_name: broken\n")

	names, err := reg.RegisterDir(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{"search_flow", "review"}, names)

	assert.True(t, reg.Exists("review"))
	assert.False(t, reg.Exists("broken"))

	byTag := reg.ListByTag("rag")
	require.Len(t, byTag, 1)
	assert.Equal(t, "search_flow", byTag[0].Name)

	tests := []struct {
		query string
		want  []string
	}{
		{"SEARCH", []string{"search_flow"}},
		{"priority", []string{"review"}},
		{"triage", []string{"review"}},
		{"nothing", nil},
	}
	for _, tt := range tests {
		var got []string
		for _, e := range reg.Search(tt.query) {
			got = append(got, e.Name)
		}
		assert.Equal(t, tt.want, got, tt.query)
	}

	require.NoError(t, reg.Remove("review"))
	assert.False(t, reg.Exists("review"))
	assert.ErrorIs(t, reg.Remove("review"), ErrWorkflowNotFound)

	_, err = reg.Get("review")
	assert.ErrorIs(t, err, ErrWorkflowNotFound)
}

func TestRegistry_LayeredDirectory(t *testing.T) {
	workflowsDir := t.TempDir()
	writeFile(t, workflowsDir, "search.yaml", searchWorkflow)
	writeFile(t, workflowsDir, "review.yaml", reviewWorkflow)

	reg, err := NewRegistry(t.TempDir(), workflowsDir)
	require.NoError(t, err)
	require.Len(t, reg.List(), 2)

	layered, err := reg.Get("review")
	require.NoError(t, err)
	assert.True(t, layered.Layered)
	assert.Error(t, reg.Remove("review"), "directory workflows are removed by deleting the file")

	// A registered workflow of the same name wins.
	def, err := ParseDefinition([]byte(reviewWorkflow))
	require.NoError(t, err)
	def.Description = "registered copy"
	_, err = reg.Register(def, "inline")
	require.NoError(t, err)

	got, err := reg.Get("review")
	require.NoError(t, err)
	assert.False(t, got.Layered)
	assert.Equal(t, "registered copy", got.Description)
	assert.Len(t, reg.List(), 2)
}

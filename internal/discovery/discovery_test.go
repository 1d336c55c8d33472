package discovery

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/mcptest"
	"github.com/mark3labs/mcp-go/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mcptape/internal/errdefs"
	"mcptape/internal/mapping"
	"mcptape/internal/mcpclient"
	"mcptape/internal/registry"
)

func summarizeTool() server.ServerTool {
	return server.ServerTool{
		Tool: mcp.NewTool("summarize",
			mcp.WithDescription("Summarize content"),
			mcp.WithString("content", mcp.Required()),
			mcp.WithNumber("max_links"),
		),
		Handler: func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return mcp.NewToolResultText("ok"), nil
		},
	}
}

func startServer(t *testing.T) *mcptest.Server {
	t.Helper()
	srv := mcptest.NewUnstartedServer(t)
	srv.AddTools(summarizeTool())
	srv.AddPrompt(mcp.NewPrompt("greet", mcp.WithPromptDescription("Greets"), mcp.WithArgument("name", mcp.RequiredArgument())),
		func(ctx context.Context, req mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
			return mcp.NewGetPromptResult("hi", nil), nil
		})
	srv.AddResource(mcp.NewResource("file:///motd", "motd", mcp.WithResourceDescription("Message of the day")),
		func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
			return nil, nil
		})
	require.NoError(t, srv.Start(context.Background()))
	t.Cleanup(srv.Close)
	return srv
}

func TestDiscover(t *testing.T) {
	srv := startServer(t)

	caps, err := Discover(context.Background(), mcpclient.Wrap("demo", srv.Client()), "demo")
	require.NoError(t, err)

	assert.Equal(t, "demo", caps.Server)
	require.Len(t, caps.Tools, 1)
	assert.Equal(t, "summarize", caps.Tools[0]["name"])
	assert.Equal(t, "Summarize content", caps.Tools[0]["description"])
	assert.NotNil(t, caps.Tools[0]["input_schema"])

	require.Len(t, caps.Prompts, 1)
	assert.Equal(t, "greet", caps.Prompts[0]["name"])
	args := caps.Prompts[0]["arguments"].([]map[string]any)
	require.Len(t, args, 1)
	assert.Equal(t, true, args[0]["required"])

	require.Len(t, caps.Resources, 1)
	assert.Equal(t, "file:///motd", caps.Resources[0]["uri"])
	assert.Equal(t, "Message of the day", caps.Resources[0]["description"])
}

func TestDiscover_ManifestDrivesMapping(t *testing.T) {
	srv := startServer(t)
	caps, err := Discover(context.Background(), mcpclient.Wrap("demo", srv.Client()), "demo")
	require.NoError(t, err)

	// Save and reload through the registry so the manifest is in its on-disk form.
	store, err := registry.Open(filepath.Join(t.TempDir(), "data"))
	require.NoError(t, err)
	_, err = store.SaveCapabilities(*caps)
	require.NoError(t, err)
	loaded, err := store.LoadCapabilities()
	require.NoError(t, err)

	source := NewManifestSchemaSource(loaded)
	schema, err := source.ToolSchema(context.Background(), "summarize")
	require.NoError(t, err)
	assert.Equal(t, []string{"content"}, schema.Required)
	assert.Equal(t, []string{"max_links"}, schema.Optional)

	m := &mapping.Mapper{Tool: "summarize", Source: source}
	out, _ := m.Map(context.Background(), map[string]any{"url": "x", "title": "y", "content": "z"})
	assert.Equal(t, map[string]any{"content": "z"}, out)

	names, err := source.ToolNames(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"summarize"}, names)

	_, err = source.ToolSchema(context.Background(), "missing")
	assert.ErrorIs(t, err, mapping.ErrUnknownTool)
}

func TestManifestSchemaSource_NoManifest(t *testing.T) {
	source := NewManifestSchemaSource(nil)

	_, err := source.ToolSchema(context.Background(), "x")
	assert.True(t, errdefs.IsDiscovery(err))

	_, err = source.ToolNames(context.Background())
	assert.True(t, errdefs.IsDiscovery(err))
}

type countingClient struct {
	mcpclient.Client
	lists int
	err   error
}

func (c *countingClient) ListTools(ctx context.Context) ([]mcp.Tool, error) {
	c.lists++
	if c.err != nil {
		return nil, c.err
	}
	return c.Client.ListTools(ctx)
}

func TestClientSchemaSource_ListsOnce(t *testing.T) {
	srv := startServer(t)
	client := &countingClient{Client: mcpclient.Wrap("demo", srv.Client())}
	source := NewClientSchemaSource(client, "demo")

	for i := 0; i < 3; i++ {
		schema, err := source.ToolSchema(context.Background(), "summarize")
		require.NoError(t, err)
		assert.Equal(t, []string{"content"}, schema.Required)
	}
	names, err := source.ToolNames(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"summarize"}, names)
	assert.Equal(t, 1, client.lists)
}

func TestClientSchemaSource_ErrorIsDiscovery(t *testing.T) {
	client := &countingClient{err: errors.New("connection refused")}
	source := NewClientSchemaSource(client, "demo")

	_, err := source.ToolSchema(context.Background(), "summarize")
	assert.True(t, errdefs.IsDiscovery(err))

	m := &mapping.Mapper{Tool: "summarize", Source: source}
	out, d := m.Map(context.Background(), map[string]any{"a": 1})
	assert.Equal(t, map[string]any{"a": 1}, out)
	assert.Equal(t, mapping.StrategyFallback, d.Strategy)
}

package testing

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"mcptape/internal/mapping"
	"mcptape/internal/registry"
	"mcptape/pkg/logging"
)

const (
	mockServerName    = "mcptape-mocks"
	mockServerVersion = "1.0.0"
)

// MockServer serves recorded tool responses as live MCP tools, so any MCP
// client can consume a recording.
type MockServer struct {
	store *registry.Store
	mcp   *server.MCPServer
	tools []string
}

// NewMockServer builds a server exposing one tool per recorded tool name.
// The tool list is fixed at construction; responses are read from the store
// on every call, so re-recorded argument sets are served without a restart.
func NewMockServer(store *registry.Store) (*MockServer, error) {
	records, err := store.ListMocks(registry.CategoryTools)
	if err != nil {
		return nil, fmt.Errorf("failed to list recorded tools: %w", err)
	}

	byTool := make(map[string][]registry.MockRecord)
	for _, rec := range records {
		byTool[rec.Name] = append(byTool[rec.Name], rec)
	}

	s := &MockServer{
		store: store,
		mcp: server.NewMCPServer(
			mockServerName,
			mockServerVersion,
			server.WithToolCapabilities(false),
		),
	}

	for _, name := range sortedKeys(byTool) {
		recs := byTool[name]
		s.mcp.AddTool(mockTool(name, recs), s.handler(name))
		s.tools = append(s.tools, name)
	}

	logging.Info("MockServer", "Serving %d recorded tools from %s", len(s.tools), store.DataDir())
	return s, nil
}

// Tools returns the names of the served tools, sorted.
func (s *MockServer) Tools() []string {
	return slices.Clone(s.tools)
}

// MCPServer exposes the underlying protocol server, for in-process clients.
func (s *MockServer) MCPServer() *server.MCPServer {
	return s.mcp
}

// Serve speaks MCP over the given streams until ctx is cancelled or in is
// closed.
func (s *MockServer) Serve(ctx context.Context, in io.Reader, out io.Writer) error {
	logging.Debug("MockServer", "Listening on stdio")
	return server.NewStdioServer(s.mcp).Listen(ctx, in, out)
}

func (s *MockServer) handler(name string) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args := req.GetArguments()
		resp, err := s.store.LoadMock(registry.CategoryTools, name, args)
		if err != nil {
			logging.Debug("MockServer", "No recording of %s for %v", name, args)
			return mcp.NewToolResultError(s.missMessage(name, args)), nil
		}
		logging.Debug("MockServer", "Replaying %s", name)
		return replayResult(resp)
	}
}

// missMessage lists the argument sets that were recorded for a tool.
func (s *MockServer) missMessage(name string, args map[string]any) string {
	got, _ := registry.CanonicalArgs(args)

	var b strings.Builder
	fmt.Fprintf(&b, "no recording of %s for arguments %s", name, got)

	records, err := s.store.ListMocks(registry.CategoryTools)
	if err != nil {
		return b.String()
	}
	var known []string
	for _, rec := range records {
		if rec.Name != name {
			continue
		}
		c, err := registry.CanonicalArgs(rec.Arguments)
		if err == nil {
			known = append(known, c)
		}
	}
	slices.Sort(known)
	if len(known) > 0 {
		b.WriteString("; recorded argument sets:")
		for _, k := range known {
			b.WriteString("\n  ")
			b.WriteString(k)
		}
	}
	return b.String()
}

// replayResult turns a stored response back into a tool result. Stored tool
// results keep their content; anything else is returned as JSON text.
func replayResult(resp any) (*mcp.CallToolResult, error) {
	if m, ok := resp.(map[string]any); ok {
		if _, hasContent := m["content"]; hasContent {
			data, err := json.Marshal(m)
			if err == nil {
				raw := json.RawMessage(data)
				if res, err := mcp.ParseCallToolResult(&raw); err == nil && len(res.Content) > 0 {
					return res, nil
				}
			}
		}
	}

	normalized := mapping.Normalize(resp)
	if text, ok := normalized.(string); ok {
		return mcp.NewToolResultText(text), nil
	}
	data, err := json.Marshal(normalized)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("recorded response is not JSON: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

// mockTool describes a recorded tool. Its input schema lists every argument
// name seen in the recordings.
func mockTool(name string, recs []registry.MockRecord) mcp.Tool {
	props := make(map[string]any)
	for _, rec := range recs {
		for k := range rec.Arguments {
			props[k] = map[string]any{}
		}
	}
	return mcp.Tool{
		Name:        name,
		Description: fmt.Sprintf("Replays %d recorded response(s) of %s", len(recs), name),
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: props,
		},
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

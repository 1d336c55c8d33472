package workflow

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/mark3labs/mcp-go/mcp"

	"mcptape/internal/errdefs"
)

// scriptedClient answers CallTool from a table of per-tool results and records
// the arguments of every call.
type scriptedClient struct {
	mu      sync.Mutex
	answers map[string]string
	errs    map[string]error
	calls   []toolCall
}

type toolCall struct {
	Name string
	Args map[string]any
}

func (c *scriptedClient) ListTools(context.Context) ([]mcp.Tool, error)         { return nil, nil }
func (c *scriptedClient) ListPrompts(context.Context) ([]mcp.Prompt, error)     { return nil, nil }
func (c *scriptedClient) ListResources(context.Context) ([]mcp.Resource, error) { return nil, nil }
func (c *scriptedClient) Close() error                                          { return nil }

func (c *scriptedClient) CallTool(_ context.Context, name string, args map[string]any) (*mcp.CallToolResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, toolCall{Name: name, Args: args})
	if err, ok := c.errs[name]; ok {
		return nil, err
	}
	if text, ok := c.answers[name]; ok {
		return mcp.NewToolResultText(text), nil
	}
	return nil, fmt.Errorf("no answer scripted for %s", name)
}

func (c *scriptedClient) GetPrompt(_ context.Context, name string, _ map[string]string) (*mcp.GetPromptResult, error) {
	return mcp.NewGetPromptResult(name, []mcp.PromptMessage{
		mcp.NewPromptMessage(mcp.RoleUser, mcp.NewTextContent("prompt "+name)),
	}), nil
}

func (c *scriptedClient) ReadResource(_ context.Context, uri string) (*mcp.ReadResourceResult, error) {
	return &mcp.ReadResourceResult{Contents: []mcp.ResourceContents{
		mcp.TextResourceContents{URI: uri, MIMEType: "text/plain", Text: "contents of " + uri},
	}}, nil
}

func (c *scriptedClient) callsTo(name string) []toolCall {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []toolCall
	for _, call := range c.calls {
		if call.Name == name {
			out = append(out, call)
		}
	}
	return out
}

// staticCatalog is a fixed tool list.
type staticCatalog []string

func (s staticCatalog) ToolNames(context.Context) ([]string, error) { return s, nil }

type failingCatalog struct{}

func (failingCatalog) ToolNames(context.Context) ([]string, error) {
	return nil, errdefs.Discovery("list tools", errors.New("server unreachable"))
}

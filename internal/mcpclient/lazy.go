package mcpclient

import (
	"context"
	"sync"

	"github.com/mark3labs/mcp-go/mcp"
)

// DialFunc opens a connection to a server.
type DialFunc func(ctx context.Context) (Client, error)

// Lazy defers connecting until the first protocol call, so runs served
// entirely from recordings never start the server. A failed dial is retried
// on the next call.
type Lazy struct {
	dial DialFunc

	mu     sync.Mutex
	client Client
}

// NewLazy returns a Client that dials on first use.
func NewLazy(dial DialFunc) *Lazy {
	return &Lazy{dial: dial}
}

func (l *Lazy) get(ctx context.Context) (Client, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.client != nil {
		return l.client, nil
	}
	c, err := l.dial(ctx)
	if err != nil {
		return nil, err
	}
	l.client = c
	return c, nil
}

// Connected reports whether a connection has been made.
func (l *Lazy) Connected() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.client != nil
}

func (l *Lazy) ListTools(ctx context.Context) ([]mcp.Tool, error) {
	c, err := l.get(ctx)
	if err != nil {
		return nil, err
	}
	return c.ListTools(ctx)
}

func (l *Lazy) ListPrompts(ctx context.Context) ([]mcp.Prompt, error) {
	c, err := l.get(ctx)
	if err != nil {
		return nil, err
	}
	return c.ListPrompts(ctx)
}

func (l *Lazy) ListResources(ctx context.Context) ([]mcp.Resource, error) {
	c, err := l.get(ctx)
	if err != nil {
		return nil, err
	}
	return c.ListResources(ctx)
}

func (l *Lazy) CallTool(ctx context.Context, name string, args map[string]any) (*mcp.CallToolResult, error) {
	c, err := l.get(ctx)
	if err != nil {
		return nil, err
	}
	return c.CallTool(ctx, name, args)
}

func (l *Lazy) GetPrompt(ctx context.Context, name string, args map[string]string) (*mcp.GetPromptResult, error) {
	c, err := l.get(ctx)
	if err != nil {
		return nil, err
	}
	return c.GetPrompt(ctx, name, args)
}

func (l *Lazy) ReadResource(ctx context.Context, uri string) (*mcp.ReadResourceResult, error) {
	c, err := l.get(ctx)
	if err != nil {
		return nil, err
	}
	return c.ReadResource(ctx, uri)
}

// Close closes the underlying connection if one was made.
func (l *Lazy) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.client == nil {
		return nil
	}
	err := l.client.Close()
	l.client = nil
	return err
}

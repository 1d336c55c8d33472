package mcpclient

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/client/transport"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"mcptape/internal/errdefs"
	"mcptape/pkg/logging"
)

const (
	clientName    = "mcptape"
	clientVersion = "1.0.0"

	defaultInitTimeout = 30 * time.Second
)

// Transport names a wire transport for reaching a server.
type Transport string

const (
	TransportStdio          Transport = "stdio"
	TransportStreamableHTTP Transport = "streamable-http"
	TransportSSE            Transport = "sse"
)

// Client is the protocol surface the harness needs from an MCP server.
type Client interface {
	ListTools(ctx context.Context) ([]mcp.Tool, error)
	ListPrompts(ctx context.Context) ([]mcp.Prompt, error)
	ListResources(ctx context.Context) ([]mcp.Resource, error)
	CallTool(ctx context.Context, name string, args map[string]any) (*mcp.CallToolResult, error)
	GetPrompt(ctx context.Context, name string, args map[string]string) (*mcp.GetPromptResult, error)
	ReadResource(ctx context.Context, uri string) (*mcp.ReadResourceResult, error)
	Close() error
}

// Options describes how to reach one server.
type Options struct {
	// Name identifies the server in logs and results.
	Name      string
	Transport Transport
	Command   string
	Args      []string
	// Env entries are KEY=VALUE pairs added to the child process environment.
	Env     []string
	URL     string
	Headers map[string]string
	Timeout time.Duration
}

// ProtocolClient implements Client over an mcp-go client.
type ProtocolClient struct {
	name   string
	client *client.Client
}

// Connect starts the transport described by opts and performs the MCP
// initialize handshake.
func Connect(ctx context.Context, opts Options) (*ProtocolClient, error) {
	var (
		c   *client.Client
		err error
	)

	logging.Debug("MCPClient", "Connecting to %s over %s", opts.Name, opts.Transport)

	switch opts.Transport {
	case TransportStdio, "":
		if opts.Command == "" {
			return nil, errdefs.Configurationf("server %s: stdio transport needs a command", opts.Name)
		}
		// NewStdioMCPClient starts the subprocess itself.
		c, err = client.NewStdioMCPClient(opts.Command, opts.Env, opts.Args...)
		if err != nil {
			return nil, errdefs.Classify("start "+opts.Name, err)
		}
	case TransportStreamableHTTP:
		if opts.URL == "" {
			return nil, errdefs.Configurationf("server %s: streamable-http transport needs a url", opts.Name)
		}
		httpOpts := []transport.StreamableHTTPCOption{}
		if len(opts.Headers) > 0 {
			httpOpts = append(httpOpts, transport.WithHTTPHeaders(opts.Headers))
		}
		if opts.Timeout > 0 {
			httpOpts = append(httpOpts, transport.WithHTTPTimeout(opts.Timeout))
		}
		c, err = client.NewStreamableHttpClient(opts.URL, httpOpts...)
		if err != nil {
			return nil, fmt.Errorf("failed to create streamable HTTP client for %s: %w", opts.Name, err)
		}
		if err := c.Start(ctx); err != nil {
			return nil, errdefs.Classify("start "+opts.Name, err)
		}
	case TransportSSE:
		if opts.URL == "" {
			return nil, errdefs.Configurationf("server %s: sse transport needs a url", opts.Name)
		}
		c, err = client.NewSSEMCPClient(opts.URL, transport.WithHeaders(opts.Headers))
		if err != nil {
			return nil, fmt.Errorf("failed to create SSE client for %s: %w", opts.Name, err)
		}
		if err := c.Start(ctx); err != nil {
			return nil, errdefs.Classify("start "+opts.Name, err)
		}
	default:
		return nil, errdefs.Configurationf("server %s: unknown transport %q", opts.Name, opts.Transport)
	}

	if err := initialize(ctx, c); err != nil {
		_ = c.Close()
		return nil, errdefs.Classify("initialize "+opts.Name, err)
	}

	logging.Info("MCPClient", "Connected to %s", opts.Name)
	return &ProtocolClient{name: opts.Name, client: c}, nil
}

// NewInProcess connects to an mcp-go server living in the same process.
func NewInProcess(ctx context.Context, name string, srv *server.MCPServer) (*ProtocolClient, error) {
	c, err := client.NewInProcessClient(srv)
	if err != nil {
		return nil, fmt.Errorf("failed to create in-process client: %w", err)
	}
	if err := c.Start(ctx); err != nil {
		return nil, fmt.Errorf("failed to start in-process client: %w", err)
	}
	if err := initialize(ctx, c); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("failed to initialize in-process client: %w", err)
	}
	return &ProtocolClient{name: name, client: c}, nil
}

// Wrap adapts an already initialized mcp-go client.
func Wrap(name string, c *client.Client) *ProtocolClient {
	return &ProtocolClient{name: name, client: c}
}

func initialize(ctx context.Context, c *client.Client) error {
	initCtx, cancel := context.WithTimeout(ctx, defaultInitTimeout)
	defer cancel()

	var req mcp.InitializeRequest
	req.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	req.Params.ClientInfo = mcp.Implementation{Name: clientName, Version: clientVersion}

	_, err := c.Initialize(initCtx, req)
	return err
}

// Name returns the server name this client was created for.
func (p *ProtocolClient) Name() string {
	return p.name
}

func (p *ProtocolClient) ListTools(ctx context.Context) ([]mcp.Tool, error) {
	result, err := p.client.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		return nil, errdefs.Discovery("list tools on "+p.name, err)
	}
	return result.Tools, nil
}

// ListPrompts returns nil without a round trip when the server does not
// advertise prompts.
func (p *ProtocolClient) ListPrompts(ctx context.Context) ([]mcp.Prompt, error) {
	if p.client.GetServerCapabilities().Prompts == nil {
		logging.Debug("MCPClient", "%s does not offer prompts", p.name)
		return nil, nil
	}
	result, err := p.client.ListPrompts(ctx, mcp.ListPromptsRequest{})
	if err != nil {
		return nil, errdefs.Discovery("list prompts on "+p.name, err)
	}
	return result.Prompts, nil
}

// ListResources returns nil without a round trip when the server does not
// advertise resources.
func (p *ProtocolClient) ListResources(ctx context.Context) ([]mcp.Resource, error) {
	if p.client.GetServerCapabilities().Resources == nil {
		logging.Debug("MCPClient", "%s does not offer resources", p.name)
		return nil, nil
	}
	result, err := p.client.ListResources(ctx, mcp.ListResourcesRequest{})
	if err != nil {
		return nil, errdefs.Discovery("list resources on "+p.name, err)
	}
	return result.Resources, nil
}

func (p *ProtocolClient) CallTool(ctx context.Context, name string, args map[string]any) (*mcp.CallToolResult, error) {
	argsJSON, _ := json.Marshal(args)
	logging.Debug("MCPClient", "Calling tool %s on %s with %s", name, p.name, argsJSON)

	request := mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name:      name,
			Arguments: args,
		},
	}
	result, err := p.client.CallTool(ctx, request)
	if err != nil {
		return nil, errdefs.Classify(fmt.Sprintf("call tool %s", name), err)
	}
	return result, nil
}

func (p *ProtocolClient) GetPrompt(ctx context.Context, name string, args map[string]string) (*mcp.GetPromptResult, error) {
	request := mcp.GetPromptRequest{
		Params: mcp.GetPromptParams{
			Name:      name,
			Arguments: args,
		},
	}
	result, err := p.client.GetPrompt(ctx, request)
	if err != nil {
		return nil, errdefs.Classify(fmt.Sprintf("get prompt %s", name), err)
	}
	return result, nil
}

func (p *ProtocolClient) ReadResource(ctx context.Context, uri string) (*mcp.ReadResourceResult, error) {
	request := mcp.ReadResourceRequest{
		Params: mcp.ReadResourceParams{URI: uri},
	}
	result, err := p.client.ReadResource(ctx, request)
	if err != nil {
		return nil, errdefs.Classify(fmt.Sprintf("read resource %s", uri), err)
	}
	return result, nil
}

// Close shuts the transport down; for stdio this stops the child process.
func (p *ProtocolClient) Close() error {
	if p.client == nil {
		return nil
	}
	logging.Debug("MCPClient", "Closing connection to %s", p.name)
	err := p.client.Close()
	p.client = nil
	return err
}

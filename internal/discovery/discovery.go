// Package discovery builds capability manifests from live servers and serves
// tool schemas from either a live server or a saved manifest.
package discovery

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mark3labs/mcp-go/mcp"

	"mcptape/internal/errdefs"
	"mcptape/internal/mcpclient"
	"mcptape/internal/registry"
	"mcptape/pkg/logging"
)

// For testing
var timeNow = time.Now

// Discover lists the tools, prompts and resources of a server. Failing to list
// tools is a discovery error; prompt and resource listing failures are logged
// and produce empty lists.
func Discover(ctx context.Context, client mcpclient.Client, server string) (*registry.Capabilities, error) {
	var (
		tools     []mcp.Tool
		prompts   []mcp.Prompt
		resources []mcp.Resource
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		tools, err = client.ListTools(gctx)
		if err != nil && !errdefs.IsDiscovery(err) {
			err = errdefs.Discovery("list tools on "+server, err)
		}
		return err
	})
	g.Go(func() error {
		var err error
		prompts, err = client.ListPrompts(gctx)
		if err != nil {
			logging.Warn("Discovery", "Could not list prompts on %s: %v", server, err)
			prompts = nil
		}
		return nil
	})
	g.Go(func() error {
		var err error
		resources, err = client.ListResources(gctx)
		if err != nil {
			logging.Warn("Discovery", "Could not list resources on %s: %v", server, err)
			resources = nil
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	caps := &registry.Capabilities{
		Server:       server,
		DiscoveredAt: timeNow().UTC(),
		Tools:        make([]map[string]any, 0, len(tools)),
		Resources:    make([]map[string]any, 0, len(resources)),
		Prompts:      make([]map[string]any, 0, len(prompts)),
	}
	for _, t := range tools {
		caps.Tools = append(caps.Tools, toolEntry(t))
	}
	for _, p := range prompts {
		caps.Prompts = append(caps.Prompts, promptEntry(p))
	}
	for _, r := range resources {
		caps.Resources = append(caps.Resources, map[string]any{
			"uri":         r.URI,
			"name":        r.Name,
			"description": r.Description,
		})
	}

	logging.Info("Discovery", "Discovered %d tools, %d prompts and %d resources on %s",
		len(caps.Tools), len(caps.Prompts), len(caps.Resources), server)
	return caps, nil
}

func toolEntry(t mcp.Tool) map[string]any {
	var schema any = t.InputSchema
	if t.RawInputSchema != nil {
		schema = t.RawInputSchema
	}
	return map[string]any{
		"name":         t.Name,
		"description":  t.Description,
		"input_schema": genericJSON(schema),
	}
}

func promptEntry(p mcp.Prompt) map[string]any {
	args := make([]map[string]any, 0, len(p.Arguments))
	for _, a := range p.Arguments {
		args = append(args, map[string]any{
			"name":        a.Name,
			"description": a.Description,
			"required":    a.Required,
		})
	}
	return map[string]any{
		"name":        p.Name,
		"description": p.Description,
		"arguments":   args,
	}
}

package config

import (
	"path/filepath"
	"sort"
	"strings"

	"mcptape/internal/errdefs"
	"mcptape/internal/mcpclient"
)

// ResolveServer turns a server identifier from a test spec or workflow into a
// definition. Named servers from the config win; otherwise an http(s) URL is
// reached over streamable HTTP, a *.py path is run with python over stdio, and
// anything else is split into a command line run over stdio.
func (c MCPTapeConfig) ResolveServer(id string) (ServerDefinition, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return ServerDefinition{}, errdefs.Configurationf("empty server identifier")
	}

	for _, srv := range c.Servers {
		if srv.Name == id {
			if srv.Transport == "" {
				srv.Transport = TransportStdio
			}
			return srv, nil
		}
	}

	if strings.HasPrefix(id, "http://") || strings.HasPrefix(id, "https://") {
		return ServerDefinition{Name: id, Transport: TransportStreamableHTTP, URL: id}, nil
	}

	if strings.EqualFold(filepath.Ext(id), ".py") && !strings.ContainsAny(id, " \t") {
		return ServerDefinition{Name: id, Transport: TransportStdio, Command: "python", Args: []string{id}}, nil
	}

	fields := strings.Fields(id)
	return ServerDefinition{Name: id, Transport: TransportStdio, Command: fields[0], Args: fields[1:]}, nil
}

// ClientOptions converts the definition into connection options.
func (s ServerDefinition) ClientOptions() mcpclient.Options {
	opts := mcpclient.Options{
		Name:      s.Name,
		Transport: mcpclient.Transport(s.Transport),
		Command:   s.Command,
		Args:      s.Args,
		URL:       s.URL,
		Headers:   s.Headers,
		Timeout:   s.Timeout,
	}
	if opts.Transport == "" {
		opts.Transport = mcpclient.TransportStdio
	}

	keys := make([]string, 0, len(s.Env))
	for k := range s.Env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		opts.Env = append(opts.Env, k+"="+s.Env[k])
	}
	return opts
}

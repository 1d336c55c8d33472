// Package config provides configuration management for mcptape.
//
// This package implements a layered configuration system. Configuration is
// loaded from multiple sources and merged in a specific order, with later
// sources overriding earlier ones.
//
// # Configuration Layers
//
//  1. Default Configuration (built into the binary)
//  2. User Configuration (~/.config/mcptape/config.yaml)
//  3. Project Configuration (./.mcptape/config.yaml)
//  4. An explicit file given with --config
//
// Scalar fields in a later layer replace earlier values when they are set.
// Servers are merged by name: a later definition with the same name replaces
// the earlier one.
//
// # Configuration Structure
//
//	dataDir: data
//	logLevel: info
//	logFormat: text
//
//	servers:
//	  - name: search
//	    transport: stdio
//	    command: python
//	    args: ["servers/search.py"]
//	    env:
//	      SEARCH_INDEX: ./index
//	  - name: remote
//	    transport: streamable-http
//	    url: https://mcp.example.com/mcp
//	    headers:
//	      X-Team: qa
//	    timeout: 30s
//
//	defaults:
//	  timeoutSec: 45
//	  parallel: 4
//
//	retry:
//	  enabled: true
//	  preset: quick
//	  maxAttempts: 4
//
//	replay:
//	  fallback: false
//
//	registry:
//	  migrateLegacy: true
//	  legacyPath: mocks.json
//
//	workflowsDir: workflows
//	schemasDir: schemas
//
//	metrics:
//	  textfile: data/metrics.prom
//
// # Server Identifiers
//
// Test specs and workflows name their server with a single string. A name
// defined under servers is used as is. Otherwise an http:// or https:// URL
// uses the streamable HTTP transport, a path ending in .py is started with
// python over stdio, and any other string is split on whitespace and started
// as a command over stdio.
//
// # Validation
//
// The merged configuration is validated against an embedded JSON schema
// (log level and format, transports, timeout range, retry preset) followed by
// per-transport checks: stdio servers need a command, HTTP and SSE servers
// need a url.
package config

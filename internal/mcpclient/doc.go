// Package mcpclient is the harness's view of an MCP server: tool, prompt and
// resource listings plus the three call operations, implemented over
// mark3labs/mcp-go with stdio, streamable HTTP, SSE or in-process transports.
package mcpclient

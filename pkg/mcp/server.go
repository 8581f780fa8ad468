// Package mcp exposes manifest validation and execution as MCP tools.
package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// NewServer creates an MCP server with the jiav tools registered.
func NewServer(version string, h *Handlers) *server.MCPServer {
	s := server.NewMCPServer(
		"jiav",
		version,
		server.WithToolCapabilities(true),
	)

	s.AddTool(
		mcp.NewTool("jiav/validate",
			mcp.WithDescription("Validate every step of a jiav manifest against its backend schema"),
			mcp.WithString("path", mcp.Required(), mcp.Description("Path to the manifest YAML file")),
		),
		h.HandleValidate,
	)

	s.AddTool(
		mcp.NewTool("jiav/exec",
			mcp.WithDescription("Execute the steps of a jiav manifest and return the per-step results"),
			mcp.WithString("path", mcp.Required(), mcp.Description("Path to the manifest YAML file")),
			mcp.WithBoolean("fail_fast", mcp.Description("Skip remaining steps after the first failure")),
		),
		h.HandleExec,
	)

	s.AddTool(
		mcp.NewTool("jiav/schema",
			mcp.WithDescription("Export the JSON Schema of a backend's step documents"),
			mcp.WithString("backend", mcp.Required(), mcp.Description("Backend name, e.g. 'ansible' or 'shell'")),
		),
		h.HandleSchema,
	)

	s.AddTool(
		mcp.NewTool("jiav/backends",
			mcp.WithDescription("List the registered backends"),
		),
		h.HandleBackends,
	)

	return s
}

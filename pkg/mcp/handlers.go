package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/rs/zerolog"

	"github.com/ormasoftchile/jiav/pkg/backend"
	"github.com/ormasoftchile/jiav/pkg/manifest"
)

// Handlers implements the jiav MCP tools over one backend registry.
type Handlers struct {
	Registry *backend.Registry
	Log      zerolog.Logger
}

// HandleValidate implements the jiav/validate MCP tool.
func (h *Handlers) HandleValidate(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	m, res := h.load(req)
	if res != nil {
		return res, nil
	}
	if errs := manifest.Validate(h.Registry, m); len(errs) > 0 {
		return errorResult(formatErrors(errs)), nil
	}
	return textResult(fmt.Sprintf("✓ %s is valid (%d steps)", m.Name, len(m.Steps))), nil
}

// HandleExec implements the jiav/exec MCP tool. The manifest is validated
// in full before any step runs.
func (h *Handlers) HandleExec(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	m, res := h.load(req)
	if res != nil {
		return res, nil
	}
	if errs := manifest.Validate(h.Registry, m); len(errs) > 0 {
		return errorResult(formatErrors(errs)), nil
	}

	var opts []manifest.Option
	if failFast, _ := req.GetArguments()["fail_fast"].(bool); failFast {
		opts = append(opts, manifest.WithFailFast())
	}
	report := manifest.Run(ctx, h.Registry, m, h.Log, opts...)

	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return errorResult(err.Error()), nil
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.NewTextContent(string(data))},
		IsError: !report.Successful(),
	}, nil
}

// HandleSchema implements the jiav/schema MCP tool.
func (h *Handlers) HandleSchema(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name, _ := req.GetArguments()["backend"].(string)
	if name == "" {
		return errorResult("backend argument is required"), nil
	}
	b, err := h.Registry.Lookup(name)
	if err != nil {
		return errorResult(fmt.Sprintf("%s (registered: %s)", err, strings.Join(h.Registry.Names(), ", "))), nil
	}
	return textResult(string(b.Schema().JSON())), nil
}

// HandleBackends implements the jiav/backends MCP tool.
func (h *Handlers) HandleBackends(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return textResult(strings.Join(h.Registry.Names(), "\n")), nil
}

func (h *Handlers) load(req mcp.CallToolRequest) (*manifest.Manifest, *mcp.CallToolResult) {
	path, _ := req.GetArguments()["path"].(string)
	if path == "" {
		return nil, errorResult("path argument is required")
	}
	m, err := manifest.LoadFile(path)
	if err != nil {
		return nil, errorResult(err.Error())
	}
	return m, nil
}

func formatErrors(errs []*manifest.StepError) string {
	msgs := make([]string, 0, len(errs))
	for _, e := range errs {
		msgs = append(msgs, e.Error())
	}
	return strings.Join(msgs, "; ")
}

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.NewTextContent(text),
		},
	}
}

func errorResult(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.NewTextContent(msg),
		},
		IsError: true,
	}
}

// Package mcpadapter wraps tools discovered on a Model Context Protocol
// server as tool.Tool instances, so an ensemble can call out to an MCP
// server's tools exactly like any local function tool.
package mcpadapter

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/hupe1980/conductormesh/logging"
)

// caller abstracts the subset of an MCP client this adapter needs, so tests
// can substitute a fake rather than dial a real server.
type caller interface {
	ListTools(ctx context.Context, req mcp.ListToolsRequest) (*mcp.ListToolsResult, error)
	CallTool(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error)
}

// Discover connects to an already-initialized MCP client and returns every
// tool it advertises, wrapped as tool.Tool.
func Discover(ctx context.Context, serverName string, c *client.Client, logger logging.Logger) ([]*Tool, error) {
	if logger == nil {
		logger = logging.NoOpLogger{}
	}

	result, err := c.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		return nil, fmt.Errorf("mcp server %q: list tools: %w", serverName, err)
	}

	tools := make([]*Tool, 0, len(result.Tools))
	for _, t := range result.Tools {
		tools = append(tools, newTool(serverName, c, t, logger))
		logger.Debug("mcp.tool.discovered", "server", serverName, "tool", t.Name)
	}
	return tools, nil
}

// Tool adapts a single MCP tool definition to the tool.Tool interface.
type Tool struct {
	serverName string
	client     caller
	mcpTool    mcp.Tool
	fullName   string
	parameters map[string]any
	logger     logging.Logger
}

func newTool(serverName string, c caller, t mcp.Tool, logger logging.Logger) *Tool {
	return &Tool{
		serverName: serverName,
		client:     c,
		mcpTool:    t,
		fullName:   fmt.Sprintf("mcp_%s_%s", sanitizeName(serverName), sanitizeName(t.Name)),
		parameters: schemaOf(t),
		logger:     logger,
	}
}

// Name returns a collision-resistant name combining the server and the MCP
// tool's own name.
func (t *Tool) Name() string { return t.fullName }

// Description returns the MCP tool's description, or a generated fallback
// when the server did not provide one.
func (t *Tool) Description() string {
	if t.mcpTool.Description != "" {
		return t.mcpTool.Description
	}
	return fmt.Sprintf("MCP tool %q from server %q", t.mcpTool.Name, t.serverName)
}

// Parameters returns the MCP tool's input schema translated into this
// module's JSON-Schema-object shape.
func (t *Tool) Parameters() map[string]any { return t.parameters }

// Execute calls the underlying MCP tool and flattens its result content
// into a single string, matching how a local FunctionTool's result is
// serialized into a tool message.
func (t *Tool) Execute(ctx context.Context, args map[string]any) (any, error) {
	req := mcp.CallToolRequest{}
	req.Params.Name = t.mcpTool.Name
	req.Params.Arguments = args

	t.logger.Debug("mcp.tool.execute", "server", t.serverName, "tool", t.mcpTool.Name)

	result, err := t.client.CallTool(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("mcp tool %q: %w", t.fullName, err)
	}

	content := extractContent(result)
	if result.IsError {
		return nil, fmt.Errorf("mcp tool %q returned an error: %s", t.fullName, content)
	}
	return content, nil
}

func schemaOf(t mcp.Tool) map[string]any {
	data, err := json.Marshal(t.InputSchema)
	if err != nil {
		return map[string]any{"type": "object"}
	}
	var schema map[string]any
	if err := json.Unmarshal(data, &schema); err != nil || schema == nil {
		return map[string]any{"type": "object"}
	}
	return schema
}

func extractContent(result *mcp.CallToolResult) string {
	var parts []string
	for _, c := range result.Content {
		switch v := c.(type) {
		case mcp.TextContent:
			parts = append(parts, v.Text)
		case *mcp.TextContent:
			parts = append(parts, v.Text)
		default:
			if data, err := json.Marshal(v); err == nil {
				parts = append(parts, string(data))
			}
		}
	}
	return strings.Join(parts, "\n")
}

func sanitizeName(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}

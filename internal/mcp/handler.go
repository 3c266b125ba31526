// Package mcp implements the Model Context Protocol (MCP) server for
// starthub-serve, exposing the action runtime's execute entry point
// (spec.md §6) as an MCP tool so assistants like Claude can run actions
// directly. Grounded on the teacher's index.MCPServer
// (index/mcp_server.go): same server.NewMCPServer/mcp.NewTool/AddTool/
// ServeStdio shape, generalized from code-search tools to one
// execute_action tool plus a read-only history tool.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/starthub-run/runtime/pkg/history"
	"github.com/starthub-run/runtime/pkg/runtime"
	"github.com/starthub-run/runtime/pkg/value"
)

// Server wraps the runtime to provide MCP tool access.
type Server struct {
	runtime *runtime.Runtime
	history *history.Store // nil when history persistence is disabled
	server  *server.MCPServer
}

// NewServer creates a new MCP server fronting rt, optionally backed by
// hist for the history tool.
func NewServer(rt *runtime.Runtime, hist *history.Store) *Server {
	s := &Server{
		runtime: rt,
		history: hist,
	}

	mcpServer := server.NewMCPServer(
		"starthub-run",
		"1.0.0",
		server.WithToolCapabilities(true),
	)

	s.registerTools(mcpServer)

	s.server = mcpServer
	return s
}

// registerTools registers all MCP tools with the server.
func (s *Server) registerTools(mcpServer *server.MCPServer) {
	mcpServer.AddTool(
		mcp.NewTool("execute_action",
			mcp.WithDescription("Resolve and run a composable action by reference, returning its output values."),
			mcp.WithString("action_ref",
				mcp.Required(),
				mcp.Description("Action reference in namespace/slug:version form (e.g. 'acme/build:1.2.0')"),
			),
			mcp.WithString("inputs_json",
				mcp.Description("JSON array of the action's positional input values (default: empty array)"),
			),
		),
		s.handleExecuteAction,
	)

	if s.history != nil {
		mcpServer.AddTool(
			mcp.NewTool("list_executions",
				mcp.WithDescription("List recently persisted executions with their status and timing."),
			),
			s.handleListExecutions,
		)
	}
}

// handleExecuteAction handles the execute_action tool.
func (s *Server) handleExecuteAction(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	actionRef := request.GetString("action_ref", "")
	if actionRef == "" {
		return mcp.NewToolResultError("action_ref parameter is required"), nil
	}

	var inputs []value.Value
	if raw := request.GetString("inputs_json", ""); raw != "" {
		if err := json.Unmarshal([]byte(raw), &inputs); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("invalid inputs_json: %v", err)), nil
		}
	}

	outputs, err := s.runtime.Execute(ctx, actionRef, inputs)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("execute failed: %v", err)), nil
	}

	jsonBytes, err := json.MarshalIndent(outputs, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("marshal outputs failed: %v", err)), nil
	}

	return mcp.NewToolResultText(string(jsonBytes)), nil
}

// handleListExecutions handles the list_executions tool.
func (s *Server) handleListExecutions(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	records, err := s.history.Executions()
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("list executions failed: %v", err)), nil
	}

	jsonBytes, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("marshal executions failed: %v", err)), nil
	}

	return mcp.NewToolResultText(string(jsonBytes)), nil
}

// ServeStdio starts the MCP server on stdio.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.server)
}

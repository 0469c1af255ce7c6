// Package mcp implements the Model Context Protocol server for haken.
//
// It gives operators' MCP clients read-only access to task selection
// narratives: the same data as the /v1/tasks HTTP endpoints, exposed as
// tools, a resource template and a prompt. Every call is scoped to the
// account in the caller's token.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	mcplib "github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/ashita-ai/haken/internal/model"
)

// Querier reads enriched selection logs. *selection.Service implements it.
type Querier interface {
	FetchTaskSelectionLogs(ctx context.Context, accountID, taskID string) ([]model.SelectionLogParams, error)
	FetchTaskSelectionLogsData(ctx context.Context, accountID, taskID string) (model.SelectionLogsData, error)
	FetchSelectedDelegateForTask(ctx context.Context, accountID, taskID string) (model.SelectionLogParams, bool, error)
}

// Server wraps the MCP server with haken's selection queries.
type Server struct {
	mcpServer *mcpserver.MCPServer
	queries   Querier
	logger    *slog.Logger
}

const instructions = `haken records why each delegate was accepted, rejected or selected for a task.
Use haken_task_selection_logs to read the full narrative for a task and
haken_selected_delegate to find which delegate ran it. Rows group delegates
by group_key; a REJECTED row's message says which rule excluded them.`

// New creates and configures a new MCP server with all tools, resources and prompts.
func New(queries Querier, logger *slog.Logger, version string) *Server {
	s := &Server{
		queries: queries,
		logger:  logger,
	}

	s.mcpServer = mcpserver.NewMCPServer(
		"haken",
		version,
		mcpserver.WithResourceCapabilities(false, false),
		mcpserver.WithToolCapabilities(false),
		mcpserver.WithPromptCapabilities(false),
		mcpserver.WithInstructions(instructions),
	)

	s.registerTools()
	s.registerResources()
	s.registerPrompts()

	return s
}

// MCPServer returns the underlying mcp-go server for transport setup.
func (s *Server) MCPServer() *mcpserver.MCPServer {
	return s.mcpServer
}

func errorResult(msg string) *mcplib.CallToolResult {
	return &mcplib.CallToolResult{
		Content: []mcplib.Content{
			mcplib.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}

func jsonResult(v any) (*mcplib.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("mcp: marshal result: %w", err)
	}
	return &mcplib.CallToolResult{
		Content: []mcplib.Content{
			mcplib.TextContent{Type: "text", Text: string(data)},
		},
	}, nil
}

package mcp

import (
	"context"

	mcplib "github.com/mark3labs/mcp-go/mcp"

	"github.com/ashita-ai/haken/internal/ctxutil"
	"github.com/ashita-ai/haken/internal/model"
)

func (s *Server) registerTools() {
	// haken_task_selection_logs: full selection narrative for one task.
	s.mcpServer.AddTool(
		mcplib.NewTool("haken_task_selection_logs",
			mcplib.WithDescription(`Explain how a task was matched to a delegate.

Returns one row per delegate per decision, in the order the decisions were
first recorded. Each row carries the delegate's name, host and profile, the
conclusion (ACCEPTED, REJECTED, SELECTED, DISCONNECTED, WAITING_FOR_APPROVAL)
and a message naming the rule involved. Delegates that have since been removed
show their id as the name.

Set include_abstractions to also get the application, service and environment
the task was scoped to when it was first recorded.`),
			mcplib.WithReadOnlyHintAnnotation(true),
			mcplib.WithIdempotentHintAnnotation(true),
			mcplib.WithOpenWorldHintAnnotation(false),
			mcplib.WithString("task_id",
				mcplib.Description("The task identifier"),
				mcplib.Required(),
				mcplib.MaxLength(model.MaxIDLen),
			),
			mcplib.WithBoolean("include_abstractions",
				mcplib.Description("Also return the task's resolved setup abstractions"),
				mcplib.DefaultBool(false),
			),
		),
		s.handleTaskSelectionLogs,
	)

	// haken_selected_delegate: which delegate ran the task, if any.
	s.mcpServer.AddTool(
		mcplib.NewTool("haken_selected_delegate",
			mcplib.WithDescription(`Return the row for the delegate that was assigned a task.
Returns {"selected": false} when no delegate has been selected yet.`),
			mcplib.WithReadOnlyHintAnnotation(true),
			mcplib.WithIdempotentHintAnnotation(true),
			mcplib.WithOpenWorldHintAnnotation(false),
			mcplib.WithString("task_id",
				mcplib.Description("The task identifier"),
				mcplib.Required(),
				mcplib.MaxLength(model.MaxIDLen),
			),
		),
		s.handleSelectedDelegate,
	)
}

func (s *Server) handleTaskSelectionLogs(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	accountID := ctxutil.AccountIDFromContext(ctx)
	if accountID == "" {
		return errorResult("authentication required"), nil
	}
	taskID := request.GetString("task_id", "")
	if taskID == "" || len(taskID) > model.MaxIDLen {
		return errorResult("task_id is required"), nil
	}

	if request.GetBool("include_abstractions", false) {
		data, err := s.queries.FetchTaskSelectionLogsData(ctx, accountID, taskID)
		if err != nil {
			s.logger.Error("mcp: fetch selection logs data", "error", err, "task_id", taskID)
			return errorResult("failed to load selection logs"), nil
		}
		return jsonResult(data)
	}

	rows, err := s.queries.FetchTaskSelectionLogs(ctx, accountID, taskID)
	if err != nil {
		s.logger.Error("mcp: fetch selection logs", "error", err, "task_id", taskID)
		return errorResult("failed to load selection logs"), nil
	}
	return jsonResult(model.SelectionLogsData{Logs: rows})
}

func (s *Server) handleSelectedDelegate(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	accountID := ctxutil.AccountIDFromContext(ctx)
	if accountID == "" {
		return errorResult("authentication required"), nil
	}
	taskID := request.GetString("task_id", "")
	if taskID == "" || len(taskID) > model.MaxIDLen {
		return errorResult("task_id is required"), nil
	}

	row, found, err := s.queries.FetchSelectedDelegateForTask(ctx, accountID, taskID)
	if err != nil {
		s.logger.Error("mcp: fetch selected delegate", "error", err, "task_id", taskID)
		return errorResult("failed to load selected delegate"), nil
	}
	if !found {
		return jsonResult(map[string]any{"selected": false})
	}
	return jsonResult(map[string]any{"selected": true, "delegate": row})
}

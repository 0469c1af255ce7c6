package mcp

import (
	"context"
	"fmt"

	mcplib "github.com/mark3labs/mcp-go/mcp"
)

func (s *Server) registerPrompts() {
	// why-not-selected: walks the client through diagnosing a task that ran somewhere unexpected, or nowhere.
	s.mcpServer.AddPrompt(
		mcplib.NewPrompt("why-not-selected",
			mcplib.WithPromptDescription("Diagnose why a delegate was or was not selected for a task"),
			mcplib.WithArgument("task_id",
				mcplib.ArgumentDescription("The task to diagnose"),
				mcplib.RequiredArgument(),
			),
			mcplib.WithArgument("delegate",
				mcplib.ArgumentDescription("Optional delegate name or id the operator expected to run the task"),
			),
		),
		s.handleWhyNotSelectedPrompt,
	)
}

func (s *Server) handleWhyNotSelectedPrompt(_ context.Context, request mcplib.GetPromptRequest) (*mcplib.GetPromptResult, error) {
	taskID := request.Params.Arguments["task_id"]
	if taskID == "" {
		return nil, fmt.Errorf("task_id argument is required")
	}
	focus := "Summarize which delegates were rejected and group them by reason."
	if d := request.Params.Arguments["delegate"]; d != "" {
		focus = fmt.Sprintf("Focus on %q: find every row for it and explain each conclusion.", d)
	}

	return &mcplib.GetPromptResult{
		Description: fmt.Sprintf("Diagnose delegate selection for task %s", taskID),
		Messages: []mcplib.PromptMessage{
			{
				Role: mcplib.RoleUser,
				Content: mcplib.TextContent{
					Type: "text",
					Text: fmt.Sprintf(`Diagnose delegate selection for task %[1]s.

1. CALL haken_selected_delegate with task_id="%[1]s".
   If selected is true, note the delegate and its profile.

2. CALL haken_task_selection_logs with task_id="%[1]s" and include_abstractions=true.

3. READ the rows:
   - REJECTED rows name the rule that excluded the delegates (missing
     selectors, include/exclude scopes, owner, profile scoping rules).
   - DISCONNECTED and WAITING_FOR_APPROVAL rows mean the delegate was not
     eligible at all.
   - profile_scoping_rules_details lists the exact profile rules that failed.
   - task_setup_abstractions shows the application, service and environment
     the task was scoped to.

4. %[2]s

If there are no rows, selection tracking was probably disabled for the task.`, taskID, focus),
				},
			},
		},
	}, nil
}

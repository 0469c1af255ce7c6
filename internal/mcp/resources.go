package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	mcplib "github.com/mark3labs/mcp-go/mcp"

	"github.com/ashita-ai/haken/internal/ctxutil"
	"github.com/ashita-ai/haken/internal/model"
)

const (
	taskURIPrefix = "haken://tasks/"
	taskURISuffix = "/selection-logs"
)

func (s *Server) registerResources() {
	// haken://tasks/{task_id}/selection-logs: a task's selection narrative with its setup abstractions.
	s.mcpServer.AddResourceTemplate(
		mcplib.NewResourceTemplate(
			taskURIPrefix+"{task_id}"+taskURISuffix,
			"Task Selection Logs",
			mcplib.WithTemplateDescription("Why each delegate was accepted, rejected or selected for a task"),
			mcplib.WithTemplateMIMEType("application/json"),
		),
		s.handleTaskResource,
	)
}

// taskIDFromURI extracts the task id from haken://tasks/{task_id}/selection-logs.
func taskIDFromURI(uri string) (string, error) {
	rest, ok := strings.CutPrefix(uri, taskURIPrefix)
	if !ok {
		return "", fmt.Errorf("mcp: invalid task resource URI: %s", uri)
	}
	escaped, ok := strings.CutSuffix(rest, taskURISuffix)
	if !ok || escaped == "" || strings.Contains(escaped, "/") {
		return "", fmt.Errorf("mcp: invalid task resource URI: %s", uri)
	}
	taskID, err := url.PathUnescape(escaped)
	if err != nil || len(taskID) > model.MaxIDLen {
		return "", fmt.Errorf("mcp: invalid task id in URI: %s", uri)
	}
	return taskID, nil
}

func (s *Server) handleTaskResource(ctx context.Context, request mcplib.ReadResourceRequest) ([]mcplib.ResourceContents, error) {
	accountID := ctxutil.AccountIDFromContext(ctx)
	if accountID == "" {
		return nil, fmt.Errorf("mcp: authentication required")
	}
	uri := request.Params.URI
	taskID, err := taskIDFromURI(uri)
	if err != nil {
		return nil, err
	}

	data, err := s.queries.FetchTaskSelectionLogsData(ctx, accountID, taskID)
	if err != nil {
		return nil, fmt.Errorf("mcp: task selection logs: %w", err)
	}
	raw, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("mcp: marshal selection logs: %w", err)
	}

	return []mcplib.ResourceContents{
		mcplib.TextResourceContents{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(raw),
		},
	}, nil
}

package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	mcplib "github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashita-ai/haken/internal/auth"
	"github.com/ashita-ai/haken/internal/ctxutil"
	"github.com/ashita-ai/haken/internal/model"
)

// fakeQuerier serves canned rows for one account and records what it was asked.
type fakeQuerier struct {
	accountID string
	rows      map[string][]model.SelectionLogParams
	meta      map[string]map[string]string
	err       error

	lastAccount string
}

func (f *fakeQuerier) FetchTaskSelectionLogs(_ context.Context, accountID, taskID string) ([]model.SelectionLogParams, error) {
	f.lastAccount = accountID
	if f.err != nil {
		return nil, f.err
	}
	if accountID != f.accountID {
		return []model.SelectionLogParams{}, nil
	}
	rows := f.rows[taskID]
	if rows == nil {
		rows = []model.SelectionLogParams{}
	}
	return rows, nil
}

func (f *fakeQuerier) FetchTaskSelectionLogsData(ctx context.Context, accountID, taskID string) (model.SelectionLogsData, error) {
	rows, err := f.FetchTaskSelectionLogs(ctx, accountID, taskID)
	if err != nil {
		return model.SelectionLogsData{}, err
	}
	return model.SelectionLogsData{Logs: rows, TaskSetupAbstractions: f.meta[taskID]}, nil
}

func (f *fakeQuerier) FetchSelectedDelegateForTask(ctx context.Context, accountID, taskID string) (model.SelectionLogParams, bool, error) {
	rows, err := f.FetchTaskSelectionLogs(ctx, accountID, taskID)
	if err != nil {
		return model.SelectionLogParams{}, false, err
	}
	for _, r := range rows {
		if r.Conclusion == model.ConclusionSelected {
			return r, true, nil
		}
	}
	return model.SelectionLogParams{}, false, nil
}

func newFixture() (*Server, *fakeQuerier) {
	ts := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	q := &fakeQuerier{
		accountID: "acct-1",
		rows: map[string][]model.SelectionLogParams{
			"task-1": {
				{DelegateID: "d-2", DelegateName: "d-2", Conclusion: model.ConclusionRejected,
					Message: "Missing all selectors", EventTimestamp: ts, GroupKey: "MISSING_ALL_SELECTORS"},
				{DelegateID: "d-1", DelegateName: "builder-1", Conclusion: model.ConclusionSelected,
					Message: "Delegate assigned for task execution", EventTimestamp: ts, GroupKey: "TASK_ASSIGNED"},
			},
			"task-2": {
				{DelegateID: "d-3", DelegateName: "d-3", Conclusion: model.ConclusionDisconnected, GroupKey: "DISCONNECTED"},
			},
		},
		meta: map[string]map[string]string{"task-1": {"APPLICATION": "checkout"}},
	}
	return New(q, slog.New(slog.DiscardHandler), "test"), q
}

func operatorCtx(accountID string) context.Context {
	return ctxutil.WithClaims(context.Background(), &auth.Claims{AccountID: accountID, Role: model.RoleOperator})
}

func toolRequest(name string, args map[string]any) mcplib.CallToolRequest {
	return mcplib.CallToolRequest{
		Params: mcplib.CallToolParams{
			Name:      name,
			Arguments: args,
		},
	}
}

// parseToolText extracts the first TextContent text from a CallToolResult.
func parseToolText(t *testing.T, result *mcplib.CallToolResult) string {
	t.Helper()
	for _, c := range result.Content {
		if tc, ok := c.(mcplib.TextContent); ok {
			return tc.Text
		}
	}
	t.Fatal("no TextContent found in tool result")
	return ""
}

func TestTaskSelectionLogs(t *testing.T) {
	s, q := newFixture()

	result, err := s.handleTaskSelectionLogs(operatorCtx("acct-1"),
		toolRequest("haken_task_selection_logs", map[string]any{"task_id": "task-1"}))
	require.NoError(t, err)
	require.False(t, result.IsError)
	assert.Equal(t, "acct-1", q.lastAccount)

	var data model.SelectionLogsData
	require.NoError(t, json.Unmarshal([]byte(parseToolText(t, result)), &data))
	require.Len(t, data.Logs, 2)
	assert.Equal(t, "d-2", data.Logs[0].DelegateID)
	assert.Nil(t, data.TaskSetupAbstractions, "abstractions are opt-in")
}

func TestTaskSelectionLogs_IncludeAbstractions(t *testing.T) {
	s, _ := newFixture()

	result, err := s.handleTaskSelectionLogs(operatorCtx("acct-1"),
		toolRequest("haken_task_selection_logs", map[string]any{"task_id": "task-1", "include_abstractions": true}))
	require.NoError(t, err)
	require.False(t, result.IsError)

	var data model.SelectionLogsData
	require.NoError(t, json.Unmarshal([]byte(parseToolText(t, result)), &data))
	assert.Equal(t, map[string]string{"APPLICATION": "checkout"}, data.TaskSetupAbstractions)
}

func TestTaskSelectionLogs_OtherAccountSeesNothing(t *testing.T) {
	s, _ := newFixture()

	result, err := s.handleTaskSelectionLogs(operatorCtx("acct-2"),
		toolRequest("haken_task_selection_logs", map[string]any{"task_id": "task-1"}))
	require.NoError(t, err)

	var data model.SelectionLogsData
	require.NoError(t, json.Unmarshal([]byte(parseToolText(t, result)), &data))
	assert.Empty(t, data.Logs)
}

func TestTools_RejectBadInput(t *testing.T) {
	s, _ := newFixture()

	tests := []struct {
		name string
		ctx  context.Context
		args map[string]any
		want string
	}{
		{"no claims", context.Background(), map[string]any{"task_id": "task-1"}, "authentication required"},
		{"missing task", operatorCtx("acct-1"), map[string]any{}, "task_id is required"},
		{"oversized task", operatorCtx("acct-1"), map[string]any{"task_id": strings.Repeat("t", model.MaxIDLen+1)}, "task_id is required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, handle := range []func(context.Context, mcplib.CallToolRequest) (*mcplib.CallToolResult, error){
				s.handleTaskSelectionLogs, s.handleSelectedDelegate,
			} {
				result, err := handle(tt.ctx, toolRequest("", tt.args))
				require.NoError(t, err)
				assert.True(t, result.IsError)
				assert.Equal(t, tt.want, parseToolText(t, result))
			}
		})
	}
}

func TestTools_StorageFailureIsToolError(t *testing.T) {
	s, q := newFixture()
	q.err = errors.New("connection reset")

	result, err := s.handleTaskSelectionLogs(operatorCtx("acct-1"),
		toolRequest("haken_task_selection_logs", map[string]any{"task_id": "task-1"}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.NotContains(t, parseToolText(t, result), "connection reset")
}

func TestSelectedDelegate(t *testing.T) {
	s, _ := newFixture()

	result, err := s.handleSelectedDelegate(operatorCtx("acct-1"),
		toolRequest("haken_selected_delegate", map[string]any{"task_id": "task-1"}))
	require.NoError(t, err)
	var got struct {
		Selected bool                     `json:"selected"`
		Delegate model.SelectionLogParams `json:"delegate"`
	}
	require.NoError(t, json.Unmarshal([]byte(parseToolText(t, result)), &got))
	assert.True(t, got.Selected)
	assert.Equal(t, "builder-1", got.Delegate.DelegateName)

	result, err = s.handleSelectedDelegate(operatorCtx("acct-1"),
		toolRequest("haken_selected_delegate", map[string]any{"task_id": "task-2"}))
	require.NoError(t, err)
	assert.JSONEq(t, `{"selected": false}`, parseToolText(t, result))
}

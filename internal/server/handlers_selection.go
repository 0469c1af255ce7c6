package server

import (
	"net/http"

	"github.com/ashita-ai/haken/internal/ctxutil"
	"github.com/ashita-ai/haken/internal/model"
	"github.com/ashita-ai/haken/internal/service/selection"
)

// HandleRecordSelection handles POST /v1/selection-logs.
//
// The body carries one evaluation pass: the task and every decision reached
// for it. The decisions are folded into a batch and saved in one call, so
// retrying a failed request is safe.
func (h *Handlers) HandleRecordSelection(w http.ResponseWriter, r *http.Request) {
	accountID := ctxutil.AccountIDFromContext(r.Context())

	var req model.RecordSelectionRequest
	if err := decodeJSON(w, r, &req, h.maxRequestBodyBytes); err != nil {
		handleDecodeError(w, r, err)
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, err.Error())
		return
	}

	task := req.Task
	task.AccountID = accountID
	batch := h.selectionSvc.CreateBatch(r.Context(), &task)
	for _, d := range req.Decisions {
		batch.Record(accountID, selection.Decision{
			Category:    d.Category,
			Params:      d.Params,
			DelegateIDs: d.DelegateIDs,
			Metadata:    d.Metadata,
		})
	}

	if err := h.selectionSvc.Save(r.Context(), batch); err != nil {
		h.logger.Error("selection: save batch failed",
			"error", err, "account_id", accountID, "task_id", task.ID,
			"request_id", ctxutil.RequestIDFromContext(r.Context()))
		writeError(w, r, http.StatusInternalServerError, model.ErrCodeInternalError, "failed to save selection logs")
		return
	}

	writeJSON(w, r, http.StatusOK, model.RecordSelectionResponse{
		TaskID:  task.ID,
		Entries: batch.Len(),
		Tracked: batch != nil,
	})
}

// HandleTaskSelectionLogs handles GET /v1/tasks/{task_id}/selection-logs.
func (h *Handlers) HandleTaskSelectionLogs(w http.ResponseWriter, r *http.Request) {
	taskID, ok := pathID(r, "task_id")
	if !ok {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "invalid task_id")
		return
	}
	rows, err := h.selectionSvc.FetchTaskSelectionLogs(r.Context(), ctxutil.AccountIDFromContext(r.Context()), taskID)
	if err != nil {
		h.queryFailed(w, r, taskID, err)
		return
	}
	writeJSON(w, r, http.StatusOK, rows)
}

// HandleTaskSelectionLogsData handles GET /v1/tasks/{task_id}/selection-logs/data.
func (h *Handlers) HandleTaskSelectionLogsData(w http.ResponseWriter, r *http.Request) {
	taskID, ok := pathID(r, "task_id")
	if !ok {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "invalid task_id")
		return
	}
	data, err := h.selectionSvc.FetchTaskSelectionLogsData(r.Context(), ctxutil.AccountIDFromContext(r.Context()), taskID)
	if err != nil {
		h.queryFailed(w, r, taskID, err)
		return
	}
	writeJSON(w, r, http.StatusOK, data)
}

// HandleSelectedDelegate handles GET /v1/tasks/{task_id}/selected-delegate.
// Responds with data: null when no delegate has been selected yet.
func (h *Handlers) HandleSelectedDelegate(w http.ResponseWriter, r *http.Request) {
	taskID, ok := pathID(r, "task_id")
	if !ok {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "invalid task_id")
		return
	}
	row, found, err := h.selectionSvc.FetchSelectedDelegateForTask(r.Context(), ctxutil.AccountIDFromContext(r.Context()), taskID)
	if err != nil {
		h.queryFailed(w, r, taskID, err)
		return
	}
	if !found {
		writeJSON(w, r, http.StatusOK, nil)
		return
	}
	writeJSON(w, r, http.StatusOK, row)
}

func (h *Handlers) queryFailed(w http.ResponseWriter, r *http.Request, taskID string, err error) {
	h.logger.Error("selection: query failed",
		"error", err, "task_id", taskID,
		"request_id", ctxutil.RequestIDFromContext(r.Context()))
	writeError(w, r, http.StatusInternalServerError, model.ErrCodeInternalError, "failed to load selection logs")
}

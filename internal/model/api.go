package model

import (
	"fmt"
	"time"
)

// Request limits for the ingestion endpoint.
const (
	MaxDecisionsPerRequest = 10_000
	MaxIDLen               = 256
	MaxParamLen            = 1024
)

// APIResponse is the standard response envelope for all HTTP API responses.
type APIResponse struct {
	Data any          `json:"data"`
	Meta ResponseMeta `json:"meta"`
}

// APIError is the standard error response envelope.
type APIError struct {
	Error ErrorDetail  `json:"error"`
	Meta  ResponseMeta `json:"meta"`
}

// ResponseMeta contains request metadata included in every response.
type ResponseMeta struct {
	RequestID string    `json:"request_id"`
	Timestamp time.Time `json:"timestamp"`
}

// ErrorDetail describes an API error.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// ErrorCode constants for standard API error codes.
const (
	ErrCodeInvalidInput  = "INVALID_INPUT"
	ErrCodeUnauthorized  = "UNAUTHORIZED"
	ErrCodeForbidden     = "FORBIDDEN"
	ErrCodeNotFound      = "NOT_FOUND"
	ErrCodeInternalError = "INTERNAL_ERROR"
	ErrCodeRateLimited   = "RATE_LIMITED"
)

// DecisionInput is one decision reached while evaluating a delegate pool.
type DecisionInput struct {
	Category    Category                    `json:"category"`
	Params      []string                    `json:"params,omitempty"`
	DelegateIDs []string                    `json:"delegate_ids"`
	Metadata    map[string]DelegateMetadata `json:"metadata,omitempty"`
}

// RecordSelectionRequest is the request body for POST /v1/selection-logs.
// The task's account is taken from the caller's token, not the body.
type RecordSelectionRequest struct {
	Task      Task            `json:"task"`
	Decisions []DecisionInput `json:"decisions"`
}

// RecordSelectionResponse is the response for POST /v1/selection-logs.
type RecordSelectionResponse struct {
	TaskID  string `json:"task_id"`
	Entries int    `json:"entries"`
	Tracked bool   `json:"tracked"`
}

// Validate checks identifiers, category names and parameter counts.
func (r RecordSelectionRequest) Validate() error {
	if r.Task.ID == "" {
		return fmt.Errorf("task.id is required")
	}
	if len(r.Task.ID) > MaxIDLen {
		return fmt.Errorf("task.id exceeds maximum length of %d", MaxIDLen)
	}
	if len(r.Decisions) > MaxDecisionsPerRequest {
		return fmt.Errorf("too many decisions (max %d)", MaxDecisionsPerRequest)
	}
	for i, d := range r.Decisions {
		if !d.Category.Valid() {
			return fmt.Errorf("decisions[%d]: unknown category %q", i, d.Category)
		}
		if len(d.Params) != d.Category.ParamCount() {
			return fmt.Errorf("decisions[%d]: category %s takes %d parameter(s)", i, d.Category, d.Category.ParamCount())
		}
		for _, p := range d.Params {
			if len(p) > MaxParamLen {
				return fmt.Errorf("decisions[%d]: parameter exceeds maximum length of %d", i, MaxParamLen)
			}
		}
		for _, id := range d.DelegateIDs {
			if len(id) > MaxIDLen {
				return fmt.Errorf("decisions[%d]: delegate id exceeds maximum length of %d", i, MaxIDLen)
			}
		}
	}
	return nil
}

// PutDelegateRequest is the request body for PUT /v1/delegates/{delegate_id}.
type PutDelegateRequest struct {
	Name      string `json:"name"`
	HostName  string `json:"host_name"`
	Type      string `json:"type"`
	ProfileID string `json:"profile_id,omitempty"`
}

// PutNameRequest is the request body for the profile and entity PUT endpoints.
type PutNameRequest struct {
	Name string `json:"name"`
}

// HealthResponse is the response for GET /health.
type HealthResponse struct {
	Status   string `json:"status"`
	Version  string `json:"version"`
	Postgres string `json:"postgres"`
	Uptime   int64  `json:"uptime_seconds"`
}

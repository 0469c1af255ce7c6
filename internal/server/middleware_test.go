package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashita-ai/haken/internal/auth"
	"github.com/ashita-ai/haken/internal/ctxutil"
	"github.com/ashita-ai/haken/internal/model"
)

var discard = slog.New(slog.DiscardHandler)

func newJWT(t *testing.T) *auth.JWTManager {
	t.Helper()
	mgr, err := auth.NewJWTManager("", "", time.Hour)
	require.NoError(t, err)
	return mgr
}

func bearer(t *testing.T, mgr *auth.JWTManager, role model.Role) string {
	t.Helper()
	token, _, err := mgr.IssueToken("acct-1", "caller", role)
	require.NoError(t, err)
	return "Bearer " + token
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) model.APIError {
	t.Helper()
	var body model.APIError
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	return body
}

func TestRequestIDMiddleware(t *testing.T) {
	var seen string
	h := requestIDMiddleware(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		seen = ctxutil.RequestIDFromContext(r.Context())
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.NotEmpty(t, seen)
	assert.Equal(t, seen, rec.Header().Get("X-Request-ID"))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "caller-chosen")
	h.ServeHTTP(httptest.NewRecorder(), req)
	assert.Equal(t, "caller-chosen", seen)

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", strings.Repeat("x", 500))
	h.ServeHTTP(httptest.NewRecorder(), req)
	assert.Len(t, seen, 36, "oversized ids are replaced with a uuid")
}

func TestAuthMiddleware(t *testing.T) {
	mgr := newJWT(t)
	var claims *auth.Claims
	h := authMiddleware(mgr, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims = ctxutil.ClaimsFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	tests := []struct {
		name   string
		path   string
		header string
		want   int
	}{
		{"health is open", "/health", "", http.StatusNoContent},
		{"missing header", "/v1/tasks/t/selection-logs", "", http.StatusUnauthorized},
		{"wrong scheme", "/v1/tasks/t/selection-logs", "Basic abc", http.StatusUnauthorized},
		{"garbage token", "/v1/tasks/t/selection-logs", "Bearer not-a-jwt", http.StatusUnauthorized},
		{"valid token", "/v1/tasks/t/selection-logs", bearer(t, mgr, model.RoleOperator), http.StatusNoContent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			claims = nil
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			require.Equal(t, tt.want, rec.Code)
			if tt.want == http.StatusUnauthorized {
				assert.Equal(t, model.ErrCodeUnauthorized, decodeError(t, rec).Error.Code)
			}
		})
	}

	require.NotNil(t, claims)
	assert.Equal(t, "acct-1", claims.AccountID)
}

func TestAuthMiddleware_ClaimsReachOuterWriters(t *testing.T) {
	mgr := newJWT(t)
	inner := authMiddleware(mgr, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	outer := &statusWriter{ResponseWriter: httptest.NewRecorder(), statusCode: http.StatusOK}
	middle := &statusWriter{ResponseWriter: outer, statusCode: http.StatusOK}
	req := httptest.NewRequest(http.MethodGet, "/v1/x", nil)
	req.Header.Set("Authorization", bearer(t, mgr, model.RoleScheduler))
	inner.ServeHTTP(middle, req)

	require.NotNil(t, outer.claims)
	assert.Equal(t, model.RoleScheduler, outer.claims.Role)
	assert.Equal(t, http.StatusTeapot, outer.statusCode)
}

func TestRequireRole(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusNoContent) })
	h := requireRole(model.RoleScheduler)(ok)

	serve := func(c *auth.Claims) int {
		req := httptest.NewRequest(http.MethodPost, "/v1/selection-logs", nil)
		if c != nil {
			req = req.WithContext(ctxutil.WithClaims(req.Context(), c))
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusUnauthorized, serve(nil))
	assert.Equal(t, http.StatusForbidden, serve(&auth.Claims{AccountID: "a", Role: model.RoleOperator}))
	assert.Equal(t, http.StatusNoContent, serve(&auth.Claims{AccountID: "a", Role: model.RoleScheduler}))
	assert.Equal(t, http.StatusNoContent, serve(&auth.Claims{AccountID: "a", Role: model.RoleAdmin}))
}

func TestRecoveryMiddleware(t *testing.T) {
	h := requestIDMiddleware(recoveryMiddleware(discard, http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	})))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	body := decodeError(t, rec)
	assert.Equal(t, model.ErrCodeInternalError, body.Error.Code)
	assert.NotEmpty(t, body.Meta.RequestID)
}

func TestDecodeJSON(t *testing.T) {
	type target struct {
		Name string `json:"name"`
	}
	decode := func(body string, limit int64) error {
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
		var v target
		return decodeJSON(httptest.NewRecorder(), req, &v, limit)
	}

	assert.NoError(t, decode(`{"name":"a"}`, 1024))
	assert.Error(t, decode(`{"name":"a","extra":1}`, 1024), "unknown fields are rejected")
	assert.Error(t, decode(`{"name":"a"}{"name":"b"}`, 1024), "trailing objects are rejected")

	err := decode(`{"name":"`+strings.Repeat("a", 100)+`"}`, 16)
	var maxErr *http.MaxBytesError
	require.ErrorAs(t, err, &maxErr)

	rec := httptest.NewRecorder()
	handleDecodeError(rec, httptest.NewRequest(http.MethodPost, "/", nil), err)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

type fakePinger struct{ err error }

func (p fakePinger) Ping(context.Context) error { return p.err }

func TestHandleHealth(t *testing.T) {
	for _, tc := range []struct {
		name   string
		err    error
		code   int
		status string
	}{
		{"up", nil, http.StatusOK, "healthy"},
		{"down", errors.New("connection refused"), http.StatusServiceUnavailable, "unhealthy"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			h := NewHandlers(HandlersDeps{DB: fakePinger{tc.err}, Logger: discard, Version: "test"})
			rec := httptest.NewRecorder()
			h.HandleHealth(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
			require.Equal(t, tc.code, rec.Code)

			var body struct {
				Data model.HealthResponse `json:"data"`
			}
			require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
			assert.Equal(t, tc.status, body.Data.Status)
			assert.Equal(t, "test", body.Data.Version)
		})
	}
}

func TestAccountKeyFunc(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", nil)
	assert.Empty(t, accountKeyFunc(req))

	withRole := func(role model.Role) *http.Request {
		return req.WithContext(ctxutil.WithClaims(req.Context(), &auth.Claims{AccountID: "acct-9", Role: role}))
	}
	assert.Equal(t, "acct-9", accountKeyFunc(withRole(model.RoleScheduler)))
	assert.Empty(t, accountKeyFunc(withRole(model.RoleAdmin)))
}

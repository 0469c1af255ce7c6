package ratelimit

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashita-ai/haken/internal/model"
)

type brokenLimiter struct{}

func (brokenLimiter) Allow(context.Context, string) (bool, error) { return false, errors.New("backend down") }
func (brokenLimiter) Close() error                                 { return nil }

func serve(t *testing.T, l Limiter, key string) *httptest.ResponseRecorder {
	t.Helper()
	h := Middleware(l,
		func(*http.Request) string { return key },
		func(*http.Request) string { return "req-1" },
		slog.New(slog.DiscardHandler),
	)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/selection-logs", nil))
	return rec
}

func TestMiddleware_RejectsOverLimit(t *testing.T) {
	m, _ := newTestLimiter(t, 0.001, 1)

	assert.Equal(t, http.StatusNoContent, serve(t, m, "acct-1").Code)

	rec := serve(t, m, "acct-1")
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))

	var body model.APIError
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, model.ErrCodeRateLimited, body.Error.Code)
	assert.Equal(t, "req-1", body.Meta.RequestID)
}

func TestMiddleware_EmptyKeyExempt(t *testing.T) {
	m, _ := newTestLimiter(t, 0.001, 1)
	for range 5 {
		assert.Equal(t, http.StatusNoContent, serve(t, m, "").Code)
	}
}

func TestMiddleware_FailsOpen(t *testing.T) {
	assert.Equal(t, http.StatusNoContent, serve(t, brokenLimiter{}, "acct-1").Code)
}

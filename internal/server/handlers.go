package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/ashita-ai/haken/internal/model"
	"github.com/ashita-ai/haken/internal/service/selection"
)

// Pinger reports database reachability for /health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// RegistryWriter maintains the delegate, profile and setup-entity reference
// data that selection rows are enriched from.
type RegistryWriter interface {
	UpsertDelegate(ctx context.Context, d model.Delegate) error
	DeleteDelegate(ctx context.Context, accountID, delegateID string) error
	UpsertDelegateProfile(ctx context.Context, p model.DelegateProfile) error
	DeleteDelegateProfile(ctx context.Context, accountID, profileID string) error
	UpsertEntity(ctx context.Context, e model.NamedEntity) error
}

// Handlers holds HTTP handler dependencies.
type Handlers struct {
	db                  Pinger
	selectionSvc        *selection.Service
	registry            RegistryWriter
	logger              *slog.Logger
	startedAt           time.Time
	version             string
	maxRequestBodyBytes int64
}

// HandlersDeps holds all dependencies for constructing Handlers.
// Optional (nil-safe): Registry.
type HandlersDeps struct {
	DB                  Pinger
	SelectionSvc        *selection.Service
	Registry            RegistryWriter
	Logger              *slog.Logger
	Version             string
	MaxRequestBodyBytes int64
}

// NewHandlers creates a new Handlers with all dependencies.
func NewHandlers(d HandlersDeps) *Handlers {
	maxBody := d.MaxRequestBodyBytes
	if maxBody <= 0 {
		maxBody = 4 * 1024 * 1024
	}
	return &Handlers{
		db:                  d.DB,
		selectionSvc:        d.SelectionSvc,
		registry:            d.Registry,
		logger:              d.Logger,
		startedAt:           time.Now(),
		version:             d.Version,
		maxRequestBodyBytes: maxBody,
	}
}

// HandleHealth handles GET /health.
func (h *Handlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	pgStatus := "connected"
	status := "healthy"
	httpStatus := http.StatusOK

	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := h.db.Ping(ctx); err != nil {
		h.logger.Warn("health: postgres ping failed", "error", err)
		pgStatus = "disconnected"
		status = "unhealthy"
		httpStatus = http.StatusServiceUnavailable
	}

	writeJSON(w, r, httpStatus, model.HealthResponse{
		Status:   status,
		Version:  h.version,
		Postgres: pgStatus,
		Uptime:   int64(time.Since(h.startedAt).Seconds()),
	})
}

// pathID reads a path parameter and checks its length.
func pathID(r *http.Request, name string) (string, bool) {
	v := r.PathValue(name)
	if v == "" || len(v) > model.MaxIDLen {
		return "", false
	}
	return v, true
}

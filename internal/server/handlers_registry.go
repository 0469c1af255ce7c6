package server

import (
	"net/http"

	"github.com/ashita-ai/haken/internal/ctxutil"
	"github.com/ashita-ai/haken/internal/model"
)

// Reference data written here is read back through the registry cache, so a
// rename becomes visible to queries within one cache TTL.

// HandlePutDelegate handles PUT /v1/delegates/{delegate_id}.
func (h *Handlers) HandlePutDelegate(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "delegate_id")
	if !ok {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "invalid delegate_id")
		return
	}
	var req model.PutDelegateRequest
	if err := decodeJSON(w, r, &req, h.maxRequestBodyBytes); err != nil {
		handleDecodeError(w, r, err)
		return
	}
	if req.Name == "" {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "name is required")
		return
	}

	d := model.Delegate{
		ID:        id,
		AccountID: ctxutil.AccountIDFromContext(r.Context()),
		Name:      req.Name,
		HostName:  req.HostName,
		Type:      req.Type,
		ProfileID: req.ProfileID,
	}
	if err := h.registry.UpsertDelegate(r.Context(), d); err != nil {
		h.registryFailed(w, r, "upsert delegate", err)
		return
	}
	h.registryChanged(r, "upsert delegate", id)
	writeJSON(w, r, http.StatusOK, d)
}

// HandleDeleteDelegate handles DELETE /v1/delegates/{delegate_id}.
// Deleting an unknown delegate succeeds.
func (h *Handlers) HandleDeleteDelegate(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "delegate_id")
	if !ok {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "invalid delegate_id")
		return
	}
	if err := h.registry.DeleteDelegate(r.Context(), ctxutil.AccountIDFromContext(r.Context()), id); err != nil {
		h.registryFailed(w, r, "delete delegate", err)
		return
	}
	h.registryChanged(r, "delete delegate", id)
	w.WriteHeader(http.StatusNoContent)
}

// HandlePutDelegateProfile handles PUT /v1/delegate-profiles/{profile_id}.
func (h *Handlers) HandlePutDelegateProfile(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "profile_id")
	if !ok {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "invalid profile_id")
		return
	}
	var req model.PutNameRequest
	if err := decodeJSON(w, r, &req, h.maxRequestBodyBytes); err != nil {
		handleDecodeError(w, r, err)
		return
	}
	if req.Name == "" {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "name is required")
		return
	}

	p := model.DelegateProfile{
		ID:        id,
		AccountID: ctxutil.AccountIDFromContext(r.Context()),
		Name:      req.Name,
	}
	if err := h.registry.UpsertDelegateProfile(r.Context(), p); err != nil {
		h.registryFailed(w, r, "upsert delegate profile", err)
		return
	}
	h.registryChanged(r, "upsert delegate profile", id)
	writeJSON(w, r, http.StatusOK, p)
}

// HandleDeleteDelegateProfile handles DELETE /v1/delegate-profiles/{profile_id}.
func (h *Handlers) HandleDeleteDelegateProfile(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "profile_id")
	if !ok {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "invalid profile_id")
		return
	}
	if err := h.registry.DeleteDelegateProfile(r.Context(), ctxutil.AccountIDFromContext(r.Context()), id); err != nil {
		h.registryFailed(w, r, "delete delegate profile", err)
		return
	}
	h.registryChanged(r, "delete delegate profile", id)
	w.WriteHeader(http.StatusNoContent)
}

// HandlePutEntity handles PUT /v1/entities/{kind}/{entity_id}.
func (h *Handlers) HandlePutEntity(w http.ResponseWriter, r *http.Request) {
	kind := model.EntityKind(r.PathValue("kind"))
	if !kind.Valid() {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "kind must be application, service or environment")
		return
	}
	id, ok := pathID(r, "entity_id")
	if !ok {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "invalid entity_id")
		return
	}
	var req model.PutNameRequest
	if err := decodeJSON(w, r, &req, h.maxRequestBodyBytes); err != nil {
		handleDecodeError(w, r, err)
		return
	}
	if req.Name == "" {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "name is required")
		return
	}

	e := model.NamedEntity{
		Kind:      kind,
		ID:        id,
		AccountID: ctxutil.AccountIDFromContext(r.Context()),
		Name:      req.Name,
	}
	if err := h.registry.UpsertEntity(r.Context(), e); err != nil {
		h.registryFailed(w, r, "upsert entity", err)
		return
	}
	h.registryChanged(r, "upsert "+string(kind), id)
	writeJSON(w, r, http.StatusOK, e)
}

// registryChanged records who changed which reference row.
func (h *Handlers) registryChanged(r *http.Request, op, id string) {
	var subject string
	if claims := ctxutil.ClaimsFromContext(r.Context()); claims != nil {
		subject = claims.Subject
	}
	h.logger.Info("registry: "+op,
		"id", id,
		"account_id", ctxutil.AccountIDFromContext(r.Context()),
		"subject", subject,
		"request_id", ctxutil.RequestIDFromContext(r.Context()))
}

func (h *Handlers) registryFailed(w http.ResponseWriter, r *http.Request, op string, err error) {
	h.logger.Error("registry: "+op+" failed",
		"error", err, "request_id", ctxutil.RequestIDFromContext(r.Context()))
	writeError(w, r, http.StatusInternalServerError, model.ErrCodeInternalError, "failed to "+op)
}

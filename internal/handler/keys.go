// Package handler implements the HTTP surface of apikey-hub: the key
// lifecycle endpoints, presented-key verification, and the unauthenticated
// system probes.
package handler

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/flavien-hugs/apikey-hub/internal/audit"
	"github.com/flavien-hugs/apikey-hub/internal/authgw"
	"github.com/flavien-hugs/apikey-hub/internal/keys"
	"github.com/flavien-hugs/apikey-hub/internal/model"
	"github.com/flavien-hugs/apikey-hub/internal/server/middleware"
)

// Permission strings checked against the access-control gateway, one per
// lifecycle operation.
const (
	PermCreate     = "apikey:can-make-apikey"
	PermRead       = "apikey:can-read-apikey"
	PermRegenerate = "apikey:can-regenerate-apikey"
	PermToggle     = "apikey:can-activate-or-deactivate-apikey"
	PermDelete     = "apikey:can-delete-apikey"
)

const (
	defaultListLimit = 100
	maxListLimit     = 1000
)

// KeysHandler serves the key lifecycle endpoints.
type KeysHandler struct {
	svc    *keys.Service
	trail  audit.Recorder
	logger *slog.Logger
}

// NewKeysHandler creates a KeysHandler.
func NewKeysHandler(svc *keys.Service, trail audit.Recorder, logger *slog.Logger) *KeysHandler {
	return &KeysHandler{svc: svc, trail: trail, logger: logger}
}

// keyWithSecret is the response for create and regenerate: the stored record
// plus the raw key, which appears here exactly once.
type keyWithSecret struct {
	model.APIKey
	Key string `json:"api_key"`
}

// callerFrom extracts the authenticated caller placed in the context by the
// access middleware.
func callerFrom(r *http.Request) keys.Caller {
	info := middleware.GetCaller(r.Context())
	slug := info.UserInfo.Role.Slug
	if slug == "" {
		slug = authgw.Slugify(info.UserInfo.Role.Name)
	}
	return keys.Caller{ID: info.UserInfo.ID, RoleSlug: slug}
}

// Create issues a new key for the authenticated caller.
// POST /keys
func (h *KeysHandler) Create(w http.ResponseWriter, r *http.Request) {
	caller := callerFrom(r)
	if caller.ID == "" {
		writeError(w, http.StatusForbidden, model.CodeAccessDenied, "Access denied")
		return
	}

	key, raw, err := h.svc.Create(r.Context(), caller.ID)
	if err != nil {
		h.logger.Error("create api key failed", "owner_id", caller.ID, "error", err)
		writeError(w, http.StatusInternalServerError, model.CodeInternalError, "Could not create api key")
		return
	}

	h.trail.Record(r.Context(), caller.ID, "has created new api key")
	writeJSON(w, http.StatusCreated, keyWithSecret{APIKey: *key, Key: raw})
}

// List returns key records matching the query filters, newest first by
// default.
// GET /keys
func (h *KeysHandler) List(w http.ResponseWriter, r *http.Request) {
	filter, err := parseListFilter(r)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, model.CodeValidationError, err.Error())
		return
	}

	records, total, err := h.svc.List(r.Context(), filter)
	if err != nil {
		h.logger.Error("list api keys failed", "error", err)
		writeError(w, http.StatusInternalServerError, model.CodeInternalError, "Could not list api keys")
		return
	}
	if records == nil {
		records = []model.APIKey{}
	}

	writeJSON(w, http.StatusOK, model.ListResponse{
		Resource: records,
		Meta: model.ResponseMeta{
			Count:  len(records),
			Total:  total,
			Limit:  filter.Limit,
			Offset: filter.Offset,
		},
	})
}

// Get returns one key record by id.
// GET /keys/{id}
func (h *KeysHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	key, err := h.svc.Get(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, id, err, "get api key failed")
		return
	}
	writeJSON(w, http.StatusOK, key)
}

// Regenerate swaps the record's secret for a fresh one, invalidating the
// previous raw key immediately.
// PUT /keys/{id}
func (h *KeysHandler) Regenerate(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	caller := callerFrom(r)

	key, raw, err := h.svc.Regenerate(r.Context(), caller, id)
	if err != nil {
		h.writeServiceError(w, id, err, "regenerate api key failed")
		return
	}

	h.trail.Record(r.Context(), caller.ID, fmt.Sprintf("has regenerate api key %s", id))
	writeJSON(w, http.StatusAccepted, keyWithSecret{APIKey: *key, Key: raw})
}

// Action activates or deactivates the record per the "action" query
// parameter.
// PUT /keys/{id}/action?action=activate|deactivate
func (h *KeysHandler) Action(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	caller := callerFrom(r)

	var active bool
	switch action := r.URL.Query().Get("action"); action {
	case "activate":
		active = true
	case "deactivate":
		active = false
	default:
		writeError(w, http.StatusUnprocessableEntity, model.CodeValidationError,
			fmt.Sprintf("Invalid action %q: expected activate or deactivate", action))
		return
	}

	key, err := h.svc.SetActive(r.Context(), caller, id, active)
	if err != nil {
		h.writeServiceError(w, id, err, "toggle api key failed")
		return
	}

	verb := "deactivate"
	if active {
		verb = "activate"
	}
	h.trail.Record(r.Context(), caller.ID, fmt.Sprintf("has %s api key %s", verb, id))
	writeJSON(w, http.StatusAccepted, key)
}

// Delete removes the record. Deleting an absent id still returns 204.
// DELETE /keys/{id}
func (h *KeysHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	caller := callerFrom(r)

	if err := h.svc.Delete(r.Context(), id); err != nil {
		h.logger.Error("delete api key failed", "id", id, "error", err)
		writeError(w, http.StatusInternalServerError, model.CodeInternalError, "Could not delete api key")
		return
	}

	h.trail.Record(r.Context(), caller.ID, fmt.Sprintf("has delete api key %s", id))
	w.WriteHeader(http.StatusNoContent)
}

// writeServiceError maps the key service's sentinel errors onto the API
// error envelope.
func (h *KeysHandler) writeServiceError(w http.ResponseWriter, id string, err error, logMsg string) {
	switch {
	case errors.Is(err, keys.ErrNotFound):
		writeError(w, http.StatusNotFound, model.CodeDocumentNotFound,
			fmt.Sprintf("Api key with id %s not found", id))
	case errors.Is(err, keys.ErrPermissionDenied):
		writeError(w, http.StatusForbidden, model.CodeCannotAccessResource,
			"You cannot access this resource")
	default:
		h.logger.Error(logMsg, "id", id, "error", err)
		writeError(w, http.StatusInternalServerError, model.CodeInternalError, "Internal error")
	}
}

func parseListFilter(r *http.Request) (model.APIKeyFilter, error) {
	filter := model.APIKeyFilter{
		OwnerID: r.URL.Query().Get("owner_id"),
		Limit:   clampInt(queryInt(r, "limit", defaultListLimit), 1, maxListLimit),
		Offset:  queryInt(r, "offset", 0),
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}

	isActive, ok := queryBoolPtr(r, "is_active")
	if !ok {
		return filter, errors.New("Invalid is_active: expected a boolean")
	}
	filter.IsActive = isActive

	if filter.LastUsedAt, ok = queryTimePtr(r, "last_used_at"); !ok {
		return filter, errors.New("Invalid last_used_at: expected an RFC 3339 timestamp")
	}
	if filter.ExpiresAt, ok = queryTimePtr(r, "expires_at"); !ok {
		return filter, errors.New("Invalid expires_at: expected an RFC 3339 timestamp")
	}
	if filter.CreatedAt, ok = queryTimePtr(r, "created_at"); !ok {
		return filter, errors.New("Invalid created_at: expected an RFC 3339 timestamp")
	}

	switch sort := model.SortOrder(r.URL.Query().Get("sort")); sort {
	case "", model.SortDesc:
		filter.Sort = model.SortDesc
	case model.SortAsc:
		filter.Sort = model.SortAsc
	default:
		return filter, fmt.Errorf("Invalid sort %q: expected asc or desc", sort)
	}

	return filter, nil
}

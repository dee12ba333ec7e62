package preference

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/frahmantamala/care-access/internal"
	"github.com/frahmantamala/care-access/internal/core/access"
	"github.com/frahmantamala/care-access/internal/transport"
	"github.com/google/uuid"
)

type ServiceAPI interface {
	Load(ctx context.Context, user uuid.UUID) (Preferences, error)
	Save(ctx context.Context, user uuid.UUID, update Update) (Preferences, error)
	RecordProgress(ctx context.Context, user uuid.UUID, module access.ModuleName, path string, snapshot json.RawMessage) ([]Progress, error)
	Progress(ctx context.Context, user uuid.UUID) ([]Progress, error)
}

type Handler struct {
	*transport.BaseHandler
	Service ServiceAPI
}

func NewHandler(baseHandler *transport.BaseHandler, service ServiceAPI) *Handler {
	return &Handler{
		BaseHandler: baseHandler,
		Service:     service,
	}
}

// GetPreferences handles GET /me/preferences
func (h *Handler) GetPreferences(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.RequireUser(w, r)
	if !ok {
		return
	}
	prefs, err := h.Service.Load(r.Context(), userID)
	if err != nil {
		h.HandleServiceError(w, r, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, prefs)
}

// UpdatePreferences handles PATCH /me/preferences
func (h *Handler) UpdatePreferences(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.RequireUser(w, r)
	if !ok {
		return
	}

	var req UpdatePreferencesRequest
	if err := h.DecodeJSON(w, r, &req); err != nil {
		h.HandleServiceError(w, r, err)
		return
	}
	update, err := req.ToUpdate()
	if err != nil {
		h.HandleServiceError(w, r, err)
		return
	}

	prefs, err := h.Service.Save(r.Context(), userID, update)
	if err != nil {
		h.HandleServiceError(w, r, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, prefs)
}

// GetProgress handles GET /me/progress
func (h *Handler) GetProgress(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.RequireUser(w, r)
	if !ok {
		return
	}
	list, err := h.Service.Progress(r.Context(), userID)
	if err != nil {
		h.HandleServiceError(w, r, err)
		return
	}
	if list == nil {
		list = []Progress{}
	}
	h.WriteJSON(w, http.StatusOK, ProgressResponse{Progress: list})
}

// RecordProgress handles POST /me/progress
func (h *Handler) RecordProgress(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.RequireUser(w, r)
	if !ok {
		return
	}

	var req RecordProgressRequest
	if err := h.DecodeJSON(w, r, &req); err != nil {
		h.HandleServiceError(w, r, err)
		return
	}
	module, err := access.ParseModuleName(req.Module)
	if err != nil {
		h.HandleServiceError(w, r, internal.NewValidationFieldError("module", err.Error(), internal.ErrCodeInvalidIdentifier))
		return
	}

	list, err := h.Service.RecordProgress(r.Context(), userID, module, req.Path, req.FormSnapshot)
	if err != nil {
		h.HandleServiceError(w, r, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, ProgressResponse{Progress: list})
}

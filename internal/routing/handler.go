package routing

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/frahmantamala/care-access/internal"
	"github.com/frahmantamala/care-access/internal/core/access"
	"github.com/frahmantamala/care-access/internal/preference"
	"github.com/frahmantamala/care-access/internal/transport"
	"github.com/google/uuid"
)

type ServiceAPI interface {
	BestRoute(ctx context.Context, user uuid.UUID) Decision
	PerformRouting(ctx context.Context, user uuid.UUID, location string) Result
	StartSession(user uuid.UUID) SessionView
	Session(user uuid.UUID) SessionView
	UpdateModuleProgress(ctx context.Context, user uuid.UUID, m access.ModuleName, path string, snapshot json.RawMessage) ([]preference.Progress, error)
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

// GetBestRoute handles GET /me/route
func (h *Handler) GetBestRoute(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.RequireUser(w, r)
	if !ok {
		return
	}
	h.WriteJSON(w, http.StatusOK, h.Service.BestRoute(r.Context(), userID))
}

// PerformRouting handles POST /me/route
func (h *Handler) PerformRouting(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.RequireUser(w, r)
	if !ok {
		return
	}

	var req PerformRoutingRequest
	if err := h.DecodeJSON(w, r, &req); err != nil {
		h.HandleServiceError(w, r, err)
		return
	}
	if req.NewSession {
		h.Service.StartSession(userID)
	}

	h.WriteJSON(w, http.StatusOK, h.Service.PerformRouting(r.Context(), userID, req.Location))
}

// GetSession handles GET /me/route/session
func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.RequireUser(w, r)
	if !ok {
		return
	}
	h.WriteJSON(w, http.StatusOK, h.Service.Session(userID))
}

// ReportNavigation handles POST /me/navigation
func (h *Handler) ReportNavigation(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.RequireUser(w, r)
	if !ok {
		return
	}

	var req NavigationRequest
	if err := h.DecodeJSON(w, r, &req); err != nil {
		h.HandleServiceError(w, r, err)
		return
	}
	m, err := access.ParseModuleName(req.Module)
	if err != nil {
		h.HandleServiceError(w, r, internal.NewValidationFieldError("module", err.Error(), internal.ErrCodeInvalidIdentifier))
		return
	}

	progress, err := h.Service.UpdateModuleProgress(r.Context(), userID, m, req.Path, req.FormSnapshot)
	if err != nil {
		h.HandleServiceError(w, r, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, NavigationResponse{
		Session:  h.Service.Session(userID),
		Progress: progress,
	})
}

package permission

import (
	"context"
	"net/http"

	"github.com/frahmantamala/care-access/internal"
	"github.com/frahmantamala/care-access/internal/grants"
	"github.com/frahmantamala/care-access/internal/transport"
	"github.com/go-chi/chi"
	"github.com/google/uuid"
)

type ServiceAPI interface {
	HasPermission(ctx context.Context, user uuid.UUID, name string, facility *int64) bool
	EffectivePermissions(ctx context.Context, user uuid.UUID) ([]EffectivePermission, error)
	ValidateMultiple(ctx context.Context, user uuid.UUID, names []string, facility *int64) map[string]bool
	GrantPermission(ctx context.Context, user uuid.UUID, name string, in GrantInput) (*grants.UserPermissionGrant, error)
	RevokePermission(ctx context.Context, user uuid.UUID, name string, actor *uuid.UUID) (int64, error)
	InvalidatePermission(ctx context.Context, name string) (int, error)
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

// GetMyPermissions handles GET /me/permissions
func (h *Handler) GetMyPermissions(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.RequireUser(w, r)
	if !ok {
		return
	}
	h.writeEffective(w, r, userID)
}

// GetUserPermissions handles GET /admin/users/{userID}/permissions
func (h *Handler) GetUserPermissions(w http.ResponseWriter, r *http.Request) {
	target, err := transport.ParseUserID(chi.URLParam(r, "userID"))
	if err != nil {
		h.HandleServiceError(w, r, err)
		return
	}
	h.writeEffective(w, r, target)
}

func (h *Handler) writeEffective(w http.ResponseWriter, r *http.Request, user uuid.UUID) {
	list, err := h.Service.EffectivePermissions(r.Context(), user)
	if err != nil {
		h.HandleServiceError(w, r, internal.NewInternalError("failed to resolve permissions", err))
		return
	}
	if list == nil {
		list = []EffectivePermission{}
	}
	h.WriteJSON(w, http.StatusOK, EffectivePermissionsResponse{Permissions: list})
}

// CheckPermission handles GET /me/permissions/check?permission=&facility_id=
func (h *Handler) CheckPermission(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.RequireUser(w, r)
	if !ok {
		return
	}

	name := r.URL.Query().Get("permission")
	if name == "" {
		h.HandleServiceError(w, r, internal.NewValidationFieldError("permission", "permission is required", internal.ErrCodeValidationFailed))
		return
	}
	facility, err := transport.ParseFacilityID(r.URL.Query().Get("facility_id"))
	if err != nil {
		h.HandleServiceError(w, r, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, CheckResponse{
		Permission: name,
		FacilityID: facility,
		Allowed:    h.Service.HasPermission(r.Context(), userID, name, facility),
	})
}

// ValidatePermissions handles POST /me/permissions/validate
func (h *Handler) ValidatePermissions(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.RequireUser(w, r)
	if !ok {
		return
	}

	var req ValidateRequest
	if err := h.DecodeJSON(w, r, &req); err != nil {
		h.HandleServiceError(w, r, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, ValidateResponse{
		Results: h.Service.ValidateMultiple(r.Context(), userID, req.Permissions, req.FacilityID),
	})
}

// GrantPermission handles POST /admin/users/{userID}/permissions
func (h *Handler) GrantPermission(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.RequireUser(w, r)
	if !ok {
		return
	}
	target, err := transport.ParseUserID(chi.URLParam(r, "userID"))
	if err != nil {
		h.HandleServiceError(w, r, err)
		return
	}

	var req GrantRequest
	if err := h.DecodeJSON(w, r, &req); err != nil {
		h.HandleServiceError(w, r, err)
		return
	}

	grant, err := h.Service.GrantPermission(r.Context(), target, req.Permission, GrantInput{
		FacilityID: req.FacilityID,
		ExpiresAt:  req.ExpiresAt,
		GrantedBy:  &actor,
	})
	if err != nil {
		h.Log(r).Error("GrantPermission: service error", "error", err, "user_id", target, "permission", req.Permission)
		h.HandleServiceError(w, r, err)
		return
	}

	h.WriteJSON(w, http.StatusCreated, GrantResponse{
		ID:         grant.ID,
		Permission: grant.Permission.Name,
		FacilityID: grant.FacilityID,
		ExpiresAt:  grant.ExpiresAt,
	})
}

// RevokePermission handles DELETE /admin/users/{userID}/permissions/{permission}
func (h *Handler) RevokePermission(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.RequireUser(w, r)
	if !ok {
		return
	}
	target, err := transport.ParseUserID(chi.URLParam(r, "userID"))
	if err != nil {
		h.HandleServiceError(w, r, err)
		return
	}

	if _, err := h.Service.RevokePermission(r.Context(), target, chi.URLParam(r, "permission"), &actor); err != nil {
		h.HandleServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// RefreshPermission handles POST /admin/permissions/{permission}/refresh
func (h *Handler) RefreshPermission(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "permission")
	holders, err := h.Service.InvalidatePermission(r.Context(), name)
	if err != nil {
		h.HandleServiceError(w, r, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, RefreshResponse{Permission: name, Holders: holders})
}

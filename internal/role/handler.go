package role

import (
	"context"
	"net/http"

	"github.com/frahmantamala/care-access/internal"
	"github.com/frahmantamala/care-access/internal/core/access"
	"github.com/frahmantamala/care-access/internal/grants"
	"github.com/frahmantamala/care-access/internal/transport"
	"github.com/go-chi/chi"
	"github.com/google/uuid"
)

type ServiceAPI interface {
	ListRoles(ctx context.Context) ([]grants.Role, error)
	Memberships(ctx context.Context, user uuid.UUID) ([]grants.UserRole, error)
	RoleNames(ctx context.Context, user uuid.UUID) ([]access.RoleName, error)
	AssignRole(ctx context.Context, user uuid.UUID, name access.RoleName, in AssignInput) (*grants.UserRole, error)
	RemoveRole(ctx context.Context, user uuid.UUID, name access.RoleName, actor *uuid.UUID) (int64, error)
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

// ListRoles handles GET /roles
func (h *Handler) ListRoles(w http.ResponseWriter, r *http.Request) {
	roles, err := h.Service.ListRoles(r.Context())
	if err != nil {
		h.HandleServiceError(w, r, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, CatalogResponse{Roles: roles})
}

// GetMyRoles handles GET /me/roles
func (h *Handler) GetMyRoles(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.RequireUser(w, r)
	if !ok {
		return
	}

	names, err := h.Service.RoleNames(r.Context(), userID)
	if err != nil {
		h.Log(r).Error("GetMyRoles: failed to load roles", "error", err)
		h.HandleServiceError(w, r, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, RolesResponse{Roles: names})
}

// GetUserRoles handles GET /admin/users/{userID}/roles
func (h *Handler) GetUserRoles(w http.ResponseWriter, r *http.Request) {
	target, err := transport.ParseUserID(chi.URLParam(r, "userID"))
	if err != nil {
		h.HandleServiceError(w, r, err)
		return
	}

	memberships, err := h.Service.Memberships(r.Context(), target)
	if err != nil {
		h.HandleServiceError(w, r, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, MembershipsResponse{Memberships: ToMembershipResponses(memberships)})
}

// AssignRole handles POST /admin/users/{userID}/roles
func (h *Handler) AssignRole(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.RequireUser(w, r)
	if !ok {
		return
	}
	target, err := transport.ParseUserID(chi.URLParam(r, "userID"))
	if err != nil {
		h.HandleServiceError(w, r, err)
		return
	}

	var req AssignRoleRequest
	if err := h.DecodeJSON(w, r, &req); err != nil {
		h.HandleServiceError(w, r, err)
		return
	}
	name, err := access.ParseRoleName(req.Role)
	if err != nil {
		h.HandleServiceError(w, r, internal.NewValidationFieldError("role", err.Error(), internal.ErrCodeInvalidIdentifier))
		return
	}

	membership, err := h.Service.AssignRole(r.Context(), target, name, AssignInput{
		FacilityID: req.FacilityID,
		ExpiresAt:  req.ExpiresAt,
		GrantedBy:  &actor,
	})
	if err != nil {
		h.HandleServiceError(w, r, err)
		return
	}
	h.WriteJSON(w, http.StatusCreated, ToMembershipResponses([]grants.UserRole{*membership})[0])
}

// RemoveRole handles DELETE /admin/users/{userID}/roles/{role}
func (h *Handler) RemoveRole(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.RequireUser(w, r)
	if !ok {
		return
	}
	target, err := transport.ParseUserID(chi.URLParam(r, "userID"))
	if err != nil {
		h.HandleServiceError(w, r, err)
		return
	}
	name, err := access.ParseRoleName(chi.URLParam(r, "role"))
	if err != nil {
		h.HandleServiceError(w, r, internal.NewValidationFieldError("role", err.Error(), internal.ErrCodeInvalidIdentifier))
		return
	}

	if _, err := h.Service.RemoveRole(r.Context(), target, name, &actor); err != nil {
		h.HandleServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

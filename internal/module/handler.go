package module

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
	HasModuleAccess(ctx context.Context, user uuid.UUID, name access.ModuleName) bool
	EffectiveModules(ctx context.Context, user uuid.UUID) ([]EffectiveModule, error)
	AssignModuleToUser(ctx context.Context, user uuid.UUID, name access.ModuleName, in AssignInput) (*grants.UserModuleAssignment, error)
	RevokeModuleFromUser(ctx context.Context, user uuid.UUID, name access.ModuleName, actor *uuid.UUID) (int64, error)
	AssignModuleToRole(ctx context.Context, role access.RoleName, name access.ModuleName, actor *uuid.UUID) error
	ListModules(ctx context.Context, includeInactive bool) ([]grants.Module, error)
	CreateModule(ctx context.Context, name access.ModuleName, description string) (*grants.Module, error)
	DeactivateModule(ctx context.Context, name access.ModuleName, actor *uuid.UUID) error
	ActivateModule(ctx context.Context, name access.ModuleName, actor *uuid.UUID) error
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

func parseModule(raw string) (access.ModuleName, error) {
	name, err := access.ParseModuleName(raw)
	if err != nil {
		return "", internal.NewValidationFieldError("module", err.Error(), internal.ErrCodeInvalidIdentifier)
	}
	return name, nil
}

// GetModules handles GET /modules
func (h *Handler) GetModules(w http.ResponseWriter, r *http.Request) {
	modules, err := h.Service.ListModules(r.Context(), r.URL.Query().Get("include_inactive") == "true")
	if err != nil {
		h.Log(r).Error("GetModules: failed to get modules", "error", err)
		h.WriteError(w, http.StatusInternalServerError, "failed to get modules")
		return
	}
	h.WriteJSON(w, http.StatusOK, ModulesResponse{Modules: modules})
}

// GetMyModules handles GET /me/modules
func (h *Handler) GetMyModules(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.RequireUser(w, r)
	if !ok {
		return
	}
	h.writeEffective(w, r, userID)
}

// GetUserModules handles GET /admin/users/{userID}/modules
func (h *Handler) GetUserModules(w http.ResponseWriter, r *http.Request) {
	target, err := transport.ParseUserID(chi.URLParam(r, "userID"))
	if err != nil {
		h.HandleServiceError(w, r, err)
		return
	}
	h.writeEffective(w, r, target)
}

func (h *Handler) writeEffective(w http.ResponseWriter, r *http.Request, user uuid.UUID) {
	list, err := h.Service.EffectiveModules(r.Context(), user)
	if err != nil {
		h.HandleServiceError(w, r, internal.NewInternalError("failed to resolve modules", err))
		return
	}
	if list == nil {
		list = []EffectiveModule{}
	}
	h.WriteJSON(w, http.StatusOK, EffectiveModulesResponse{Modules: list})
}

// CheckModuleAccess handles GET /me/modules/{module}/access
func (h *Handler) CheckModuleAccess(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.RequireUser(w, r)
	if !ok {
		return
	}
	name, err := parseModule(chi.URLParam(r, "module"))
	if err != nil {
		h.HandleServiceError(w, r, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, AccessResponse{
		Module:  name.String(),
		Path:    name.Path(),
		Allowed: h.Service.HasModuleAccess(r.Context(), userID, name),
	})
}

// CreateModule handles POST /admin/modules
func (h *Handler) CreateModule(w http.ResponseWriter, r *http.Request) {
	var req CreateModuleRequest
	if err := h.DecodeJSON(w, r, &req); err != nil {
		h.HandleServiceError(w, r, err)
		return
	}
	name, err := parseModule(req.Name)
	if err != nil {
		h.HandleServiceError(w, r, err)
		return
	}

	m, err := h.Service.CreateModule(r.Context(), name, req.Description)
	if err != nil {
		h.HandleServiceError(w, r, err)
		return
	}
	h.WriteJSON(w, http.StatusCreated, m)
}

// DeactivateModule handles DELETE /admin/modules/{module}
func (h *Handler) DeactivateModule(w http.ResponseWriter, r *http.Request) {
	h.setActive(w, r, false)
}

// ActivateModule handles POST /admin/modules/{module}/activate
func (h *Handler) ActivateModule(w http.ResponseWriter, r *http.Request) {
	h.setActive(w, r, true)
}

func (h *Handler) setActive(w http.ResponseWriter, r *http.Request, active bool) {
	actor, ok := h.RequireUser(w, r)
	if !ok {
		return
	}
	name, err := parseModule(chi.URLParam(r, "module"))
	if err != nil {
		h.HandleServiceError(w, r, err)
		return
	}

	if active {
		err = h.Service.ActivateModule(r.Context(), name, &actor)
	} else {
		err = h.Service.DeactivateModule(r.Context(), name, &actor)
	}
	if err != nil {
		h.HandleServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// AssignModuleToUser handles POST /admin/users/{userID}/modules
func (h *Handler) AssignModuleToUser(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.RequireUser(w, r)
	if !ok {
		return
	}
	target, err := transport.ParseUserID(chi.URLParam(r, "userID"))
	if err != nil {
		h.HandleServiceError(w, r, err)
		return
	}

	var req AssignModuleRequest
	if err := h.DecodeJSON(w, r, &req); err != nil {
		h.HandleServiceError(w, r, err)
		return
	}
	name, err := parseModule(req.Module)
	if err != nil {
		h.HandleServiceError(w, r, err)
		return
	}

	assignment, err := h.Service.AssignModuleToUser(r.Context(), target, name, AssignInput{
		ExpiresAt:  req.ExpiresAt,
		AssignedBy: &actor,
	})
	if err != nil {
		h.HandleServiceError(w, r, err)
		return
	}
	h.WriteJSON(w, http.StatusCreated, AssignmentResponse{
		ID:        assignment.ID,
		Module:    assignment.Module.Name.String(),
		ExpiresAt: assignment.ExpiresAt,
	})
}

// RevokeModuleFromUser handles DELETE /admin/users/{userID}/modules/{module}
func (h *Handler) RevokeModuleFromUser(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.RequireUser(w, r)
	if !ok {
		return
	}
	target, err := transport.ParseUserID(chi.URLParam(r, "userID"))
	if err != nil {
		h.HandleServiceError(w, r, err)
		return
	}
	name, err := parseModule(chi.URLParam(r, "module"))
	if err != nil {
		h.HandleServiceError(w, r, err)
		return
	}

	if _, err := h.Service.RevokeModuleFromUser(r.Context(), target, name, &actor); err != nil {
		h.HandleServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// AssignModuleToRole handles POST /admin/roles/{role}/modules
func (h *Handler) AssignModuleToRole(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.RequireUser(w, r)
	if !ok {
		return
	}
	role, err := access.ParseRoleName(chi.URLParam(r, "role"))
	if err != nil {
		h.HandleServiceError(w, r, internal.NewValidationFieldError("role", err.Error(), internal.ErrCodeInvalidIdentifier))
		return
	}

	var req AssignRoleModuleRequest
	if err := h.DecodeJSON(w, r, &req); err != nil {
		h.HandleServiceError(w, r, err)
		return
	}
	name, err := parseModule(req.Module)
	if err != nil {
		h.HandleServiceError(w, r, err)
		return
	}

	if err := h.Service.AssignModuleToRole(r.Context(), role, name, &actor); err != nil {
		h.HandleServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

package module

import (
	"time"

	"github.com/frahmantamala/care-access/internal/grants"
)

type ModulesResponse struct {
	Modules []grants.Module `json:"modules"`
}

type EffectiveModulesResponse struct {
	Modules []EffectiveModule `json:"modules"`
}

type AccessResponse struct {
	Module  string `json:"module"`
	Path    string `json:"path"`
	Allowed bool   `json:"allowed"`
}

type CreateModuleRequest struct {
	Name        string `json:"name" validate:"required,max=64"`
	Description string `json:"description" validate:"max=500"`
}

type AssignModuleRequest struct {
	Module    string     `json:"module" validate:"required,max=64"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

type AssignmentResponse struct {
	ID        int64      `json:"id"`
	Module    string     `json:"module"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

type AssignRoleModuleRequest struct {
	Module string `json:"module" validate:"required,max=64"`
}

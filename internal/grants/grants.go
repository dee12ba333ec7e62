package grants

import (
	"context"
	"errors"
	"time"

	"github.com/frahmantamala/care-access/internal/core/access"
	"github.com/google/uuid"
)

var (
	ErrNotFound      = errors.New("grant record not found")
	ErrAlreadyExists = errors.New("grant record already exists")
)

type Role struct {
	ID          int64           `json:"id"`
	Name        access.RoleName `json:"name"`
	Description string          `json:"description"`
}

type Permission struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

type Module struct {
	ID          int64             `json:"id"`
	Name        access.ModuleName `json:"name"`
	Description string            `json:"description"`
	IsActive    bool              `json:"is_active"`
}

// UserRole is a role membership. A nil FacilityID means the role holds everywhere.
type UserRole struct {
	ID         int64
	UserID     uuid.UUID
	Role       Role
	FacilityID *int64
	GrantedBy  *uuid.UUID
	ExpiresAt  *time.Time
	IsActive   bool
}

func (r UserRole) EffectiveAt(t time.Time) bool {
	return ActiveAt(r.IsActive, r.ExpiresAt, t)
}

type RolePermission struct {
	RoleID     int64
	Permission Permission
}

type UserPermissionGrant struct {
	ID         int64
	UserID     uuid.UUID
	Permission Permission
	FacilityID *int64
	GrantedBy  *uuid.UUID
	ExpiresAt  *time.Time
	IsActive   bool
	CreatedAt  time.Time
}

func (g UserPermissionGrant) EffectiveAt(t time.Time) bool {
	return ActiveAt(g.IsActive, g.ExpiresAt, t)
}

type RoleModuleAssignment struct {
	RoleID   int64
	Module   Module
	IsActive bool
}

type UserModuleAssignment struct {
	ID         int64
	UserID     uuid.UUID
	Module     Module
	AssignedBy *uuid.UUID
	ExpiresAt  *time.Time
	IsActive   bool
	CreatedAt  time.Time
}

func (a UserModuleAssignment) EffectiveAt(t time.Time) bool {
	return a.Module.IsActive && ActiveAt(a.IsActive, a.ExpiresAt, t)
}

type NewUserRole struct {
	UserID     uuid.UUID
	RoleID     int64
	FacilityID *int64
	GrantedBy  *uuid.UUID
	ExpiresAt  *time.Time
}

type NewPermissionGrant struct {
	UserID       uuid.UUID
	PermissionID int64
	FacilityID   *int64
	GrantedBy    *uuid.UUID
	ExpiresAt    *time.Time
}

type NewModuleAssignment struct {
	UserID     uuid.UUID
	ModuleID   int64
	AssignedBy *uuid.UUID
	ExpiresAt  *time.Time
}

// ExpiredSweep reports what DeactivateExpired touched.
type ExpiredSweep struct {
	PermissionGrants  int64
	ModuleAssignments int64
	RoleMemberships   int64
	Users             []uuid.UUID
}

func (s ExpiredSweep) Total() int64 {
	return s.PermissionGrants + s.ModuleAssignments + s.RoleMemberships
}

// ActiveAt is the shared effectiveness predicate: active and not expired at t.
func ActiveAt(isActive bool, expiresAt *time.Time, t time.Time) bool {
	if !isActive {
		return false
	}
	return expiresAt == nil || expiresAt.After(t)
}

// Store is policy-free typed access to the grant tables.
type Store interface {
	UserRoles(ctx context.Context, userID uuid.UUID) ([]UserRole, error)
	RolePermissions(ctx context.Context, roleIDs []int64) ([]RolePermission, error)
	UserPermissionGrants(ctx context.Context, userID uuid.UUID) ([]UserPermissionGrant, error)
	RoleModules(ctx context.Context, roleIDs []int64) ([]RoleModuleAssignment, error)
	UserModules(ctx context.Context, userID uuid.UUID) ([]UserModuleAssignment, error)
	UsersWithRole(ctx context.Context, roleID int64) ([]uuid.UUID, error)
	UsersWithPermission(ctx context.Context, permissionID int64) ([]uuid.UUID, error)

	RoleByName(ctx context.Context, name access.RoleName) (*Role, error)
	ListRoles(ctx context.Context) ([]Role, error)
	PermissionByName(ctx context.Context, name string) (*Permission, error)
	ModuleByName(ctx context.Context, name access.ModuleName) (*Module, error)
	ListModules(ctx context.Context) ([]Module, error)
	CreateModule(ctx context.Context, name access.ModuleName, description string) (*Module, error)
	SetModuleActive(ctx context.Context, moduleID int64, active bool) error

	CreateUserRole(ctx context.Context, in NewUserRole) (*UserRole, error)
	DeactivateUserRole(ctx context.Context, userID uuid.UUID, roleID int64) (int64, error)
	CreateUserPermissionGrant(ctx context.Context, in NewPermissionGrant) (*UserPermissionGrant, error)
	DeactivateUserPermissionGrants(ctx context.Context, userID uuid.UUID, permissionID int64) (int64, error)
	CreateUserModuleAssignment(ctx context.Context, in NewModuleAssignment) (*UserModuleAssignment, error)
	DeactivateUserModuleAssignments(ctx context.Context, userID uuid.UUID, moduleID int64) (int64, error)
	CreateRoleModuleAssignment(ctx context.Context, roleID, moduleID int64) error

	DeactivateExpired(ctx context.Context, now time.Time) (ExpiredSweep, error)
}

// EffectiveRoles keeps the memberships in force at t.
func EffectiveRoles(roles []UserRole, t time.Time) []UserRole {
	out := make([]UserRole, 0, len(roles))
	for _, r := range roles {
		if r.EffectiveAt(t) {
			out = append(out, r)
		}
	}
	return out
}

// RoleIDs lists the distinct role ids of the memberships.
func RoleIDs(roles []UserRole) []int64 {
	seen := make(map[int64]struct{}, len(roles))
	ids := make([]int64, 0, len(roles))
	for _, r := range roles {
		if _, ok := seen[r.Role.ID]; ok {
			continue
		}
		seen[r.Role.ID] = struct{}{}
		ids = append(ids, r.Role.ID)
	}
	return ids
}

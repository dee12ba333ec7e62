package access

import (
	"time"

	"github.com/google/uuid"
)

type Role struct {
	ID          int64     `gorm:"primaryKey"`
	Name        string    `gorm:"column:name;uniqueIndex;not null"`
	Description string    `gorm:"column:description"`
	CreatedAt   time.Time `gorm:"column:created_at;autoCreateTime"`
}

func (Role) TableName() string { return "roles" }

type Permission struct {
	ID          int64     `gorm:"primaryKey"`
	Name        string    `gorm:"column:name;uniqueIndex;not null"`
	Description string    `gorm:"column:description"`
	CreatedAt   time.Time `gorm:"column:created_at;autoCreateTime"`
}

func (Permission) TableName() string { return "permissions" }

type RolePermission struct {
	ID           int64     `gorm:"primaryKey"`
	RoleID       int64     `gorm:"column:role_id;not null;uniqueIndex:idx_role_permission"`
	PermissionID int64     `gorm:"column:permission_id;not null;uniqueIndex:idx_role_permission"`
	CreatedAt    time.Time `gorm:"column:created_at;autoCreateTime"`
}

func (RolePermission) TableName() string { return "role_permissions" }

// UserRole is a membership of a user in a role, optionally scoped to one facility.
type UserRole struct {
	ID         int64      `gorm:"primaryKey"`
	UserID     uuid.UUID  `gorm:"column:user_id;type:uuid;not null;index"`
	RoleID     int64      `gorm:"column:role_id;not null;index"`
	FacilityID *int64     `gorm:"column:facility_id"`
	GrantedBy  *uuid.UUID `gorm:"column:granted_by;type:uuid"`
	ExpiresAt  *time.Time `gorm:"column:expires_at"`
	IsActive   bool       `gorm:"column:is_active;not null"`
	CreatedAt  time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt  time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}

func (UserRole) TableName() string { return "user_roles" }

type UserPermissionGrant struct {
	ID           int64      `gorm:"primaryKey"`
	UserID       uuid.UUID  `gorm:"column:user_id;type:uuid;not null;index"`
	PermissionID int64      `gorm:"column:permission_id;not null"`
	FacilityID   *int64     `gorm:"column:facility_id"`
	GrantedBy    *uuid.UUID `gorm:"column:granted_by;type:uuid"`
	ExpiresAt    *time.Time `gorm:"column:expires_at"`
	IsActive     bool       `gorm:"column:is_active;not null"`
	CreatedAt    time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}

func (UserPermissionGrant) TableName() string { return "user_permission_grants" }

type Module struct {
	ID          int64     `gorm:"primaryKey"`
	Name        string    `gorm:"column:name;uniqueIndex;not null"`
	Description string    `gorm:"column:description"`
	IsActive    bool      `gorm:"column:is_active;not null"`
	CreatedAt   time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (Module) TableName() string { return "modules" }

type RoleModuleAssignment struct {
	ID        int64     `gorm:"primaryKey"`
	RoleID    int64     `gorm:"column:role_id;not null;uniqueIndex:idx_role_module"`
	ModuleID  int64     `gorm:"column:module_id;not null;uniqueIndex:idx_role_module"`
	IsActive  bool      `gorm:"column:is_active;not null"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
}

func (RoleModuleAssignment) TableName() string { return "role_module_assignments" }

type UserModuleAssignment struct {
	ID         int64      `gorm:"primaryKey"`
	UserID     uuid.UUID  `gorm:"column:user_id;type:uuid;not null;index"`
	ModuleID   int64      `gorm:"column:module_id;not null"`
	AssignedBy *uuid.UUID `gorm:"column:assigned_by;type:uuid"`
	ExpiresAt  *time.Time `gorm:"column:expires_at"`
	IsActive   bool       `gorm:"column:is_active;not null"`
	CreatedAt  time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt  time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}

func (UserModuleAssignment) TableName() string { return "user_module_assignments" }

// UserKV backs the postgres preference store. Keys are namespaced per user.
type UserKV struct {
	Key       string    `gorm:"column:key;primaryKey"`
	Value     string    `gorm:"column:value;type:text;not null"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (UserKV) TableName() string { return "user_kv" }

// All lists every model, in dependency order, for AutoMigrate in tests.
func All() []interface{} {
	return []interface{}{
		&Role{},
		&Permission{},
		&RolePermission{},
		&UserRole{},
		&UserPermissionGrant{},
		&Module{},
		&RoleModuleAssignment{},
		&UserModuleAssignment{},
		&UserKV{},
	}
}

package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/frahmantamala/care-access/internal/core/access"
	accessDatamodel "github.com/frahmantamala/care-access/internal/core/datamodel/access"
	"github.com/frahmantamala/care-access/internal/grants"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type GrantRepository struct {
	db *gorm.DB
}

func NewGrantRepository(db *gorm.DB) grants.Store {
	return &GrantRepository{db: db}
}

type userRoleRow struct {
	ID              int64
	UserID          uuid.UUID
	RoleID          int64
	FacilityID      *int64
	GrantedBy       *uuid.UUID
	ExpiresAt       *time.Time
	IsActive        bool
	RoleName        string
	RoleDescription string
}

type permissionRow struct {
	ID                    int64
	UserID                uuid.UUID
	RoleID                int64
	PermissionID          int64
	FacilityID            *int64
	GrantedBy             *uuid.UUID
	ExpiresAt             *time.Time
	IsActive              bool
	CreatedAt             time.Time
	PermissionName        string
	PermissionDescription string
}

type moduleRow struct {
	ID                int64
	UserID            uuid.UUID
	RoleID            int64
	ModuleID          int64
	AssignedBy        *uuid.UUID
	ExpiresAt         *time.Time
	IsActive          bool
	CreatedAt         time.Time
	ModuleName        string
	ModuleDescription string
	ModuleIsActive    bool
}

func (row moduleRow) module() grants.Module {
	return grants.Module{
		ID:          row.ModuleID,
		Name:        access.ModuleName(row.ModuleName),
		Description: row.ModuleDescription,
		IsActive:    row.ModuleIsActive,
	}
}

func (r *GrantRepository) UserRoles(ctx context.Context, userID uuid.UUID) ([]grants.UserRole, error) {
	var rows []userRoleRow
	err := r.db.WithContext(ctx).
		Table("user_roles AS ur").
		Select("ur.id, ur.user_id, ur.role_id, ur.facility_id, ur.granted_by, ur.expires_at, ur.is_active, r.name AS role_name, r.description AS role_description").
		Joins("JOIN roles r ON r.id = ur.role_id").
		Where("ur.user_id = ?", userID).
		Order("r.name ASC, ur.id ASC").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("query user roles: %w", err)
	}

	out := make([]grants.UserRole, 0, len(rows))
	for _, row := range rows {
		out = append(out, grants.UserRole{
			ID:     row.ID,
			UserID: row.UserID,
			Role: grants.Role{
				ID:          row.RoleID,
				Name:        access.RoleName(row.RoleName),
				Description: row.RoleDescription,
			},
			FacilityID: row.FacilityID,
			GrantedBy:  row.GrantedBy,
			ExpiresAt:  row.ExpiresAt,
			IsActive:   row.IsActive,
		})
	}
	return out, nil
}

func (r *GrantRepository) RolePermissions(ctx context.Context, roleIDs []int64) ([]grants.RolePermission, error) {
	if len(roleIDs) == 0 {
		return nil, nil
	}

	var rows []permissionRow
	err := r.db.WithContext(ctx).
		Table("role_permissions AS rp").
		Select("rp.role_id, rp.permission_id, p.name AS permission_name, p.description AS permission_description").
		Joins("JOIN permissions p ON p.id = rp.permission_id").
		Where("rp.role_id IN ?", roleIDs).
		Order("p.name ASC").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("query role permissions: %w", err)
	}

	out := make([]grants.RolePermission, 0, len(rows))
	for _, row := range rows {
		out = append(out, grants.RolePermission{
			RoleID: row.RoleID,
			Permission: grants.Permission{
				ID:          row.PermissionID,
				Name:        row.PermissionName,
				Description: row.PermissionDescription,
			},
		})
	}
	return out, nil
}

func (r *GrantRepository) UserPermissionGrants(ctx context.Context, userID uuid.UUID) ([]grants.UserPermissionGrant, error) {
	var rows []permissionRow
	err := r.db.WithContext(ctx).
		Table("user_permission_grants AS g").
		Select("g.id, g.user_id, g.permission_id, g.facility_id, g.granted_by, g.expires_at, g.is_active, g.created_at, p.name AS permission_name, p.description AS permission_description").
		Joins("JOIN permissions p ON p.id = g.permission_id").
		Where("g.user_id = ?", userID).
		Order("p.name ASC, g.id ASC").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("query user permission grants: %w", err)
	}

	out := make([]grants.UserPermissionGrant, 0, len(rows))
	for _, row := range rows {
		out = append(out, toPermissionGrant(row))
	}
	return out, nil
}

func toPermissionGrant(row permissionRow) grants.UserPermissionGrant {
	return grants.UserPermissionGrant{
		ID:     row.ID,
		UserID: row.UserID,
		Permission: grants.Permission{
			ID:          row.PermissionID,
			Name:        row.PermissionName,
			Description: row.PermissionDescription,
		},
		FacilityID: row.FacilityID,
		GrantedBy:  row.GrantedBy,
		ExpiresAt:  row.ExpiresAt,
		IsActive:   row.IsActive,
		CreatedAt:  row.CreatedAt,
	}
}

func (r *GrantRepository) RoleModules(ctx context.Context, roleIDs []int64) ([]grants.RoleModuleAssignment, error) {
	if len(roleIDs) == 0 {
		return nil, nil
	}

	var rows []moduleRow
	err := r.db.WithContext(ctx).
		Table("role_module_assignments AS rm").
		Select("rm.role_id, rm.module_id, rm.is_active, m.name AS module_name, m.description AS module_description, m.is_active AS module_is_active").
		Joins("JOIN modules m ON m.id = rm.module_id").
		Where("rm.role_id IN ?", roleIDs).
		Order("m.name ASC").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("query role modules: %w", err)
	}

	out := make([]grants.RoleModuleAssignment, 0, len(rows))
	for _, row := range rows {
		out = append(out, grants.RoleModuleAssignment{
			RoleID:   row.RoleID,
			Module:   row.module(),
			IsActive: row.IsActive,
		})
	}
	return out, nil
}

func (r *GrantRepository) UserModules(ctx context.Context, userID uuid.UUID) ([]grants.UserModuleAssignment, error) {
	var rows []moduleRow
	err := r.db.WithContext(ctx).
		Table("user_module_assignments AS um").
		Select("um.id, um.user_id, um.module_id, um.assigned_by, um.expires_at, um.is_active, um.created_at, m.name AS module_name, m.description AS module_description, m.is_active AS module_is_active").
		Joins("JOIN modules m ON m.id = um.module_id").
		Where("um.user_id = ?", userID).
		Order("m.name ASC, um.id ASC").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("query user modules: %w", err)
	}

	out := make([]grants.UserModuleAssignment, 0, len(rows))
	for _, row := range rows {
		out = append(out, toModuleAssignment(row))
	}
	return out, nil
}

func toModuleAssignment(row moduleRow) grants.UserModuleAssignment {
	return grants.UserModuleAssignment{
		ID:         row.ID,
		UserID:     row.UserID,
		Module:     row.module(),
		AssignedBy: row.AssignedBy,
		ExpiresAt:  row.ExpiresAt,
		IsActive:   row.IsActive,
		CreatedAt:  row.CreatedAt,
	}
}

func (r *GrantRepository) UsersWithRole(ctx context.Context, roleID int64) ([]uuid.UUID, error) {
	var users []uuid.UUID
	err := r.db.WithContext(ctx).
		Model(&accessDatamodel.UserRole{}).
		Where("role_id = ? AND is_active = ?", roleID, true).
		Distinct().
		Pluck("user_id", &users).Error
	if err != nil {
		return nil, fmt.Errorf("query role holders: %w", err)
	}
	return users, nil
}

func (r *GrantRepository) UsersWithPermission(ctx context.Context, permissionID int64) ([]uuid.UUID, error) {
	var users []uuid.UUID
	err := r.db.WithContext(ctx).Raw(`
SELECT g.user_id FROM user_permission_grants g
WHERE g.permission_id = ? AND g.is_active = ?
UNION
SELECT ur.user_id FROM user_roles ur
JOIN role_permissions rp ON rp.role_id = ur.role_id
WHERE rp.permission_id = ? AND ur.is_active = ?
`, permissionID, true, permissionID, true).Scan(&users).Error
	if err != nil {
		return nil, fmt.Errorf("query permission holders: %w", err)
	}
	return users, nil
}

func (r *GrantRepository) RoleByName(ctx context.Context, name access.RoleName) (*grants.Role, error) {
	var role accessDatamodel.Role
	err := r.db.WithContext(ctx).Where("name = ?", string(name)).First(&role).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &grants.Role{ID: role.ID, Name: access.RoleName(role.Name), Description: role.Description}, nil
}

func (r *GrantRepository) ListRoles(ctx context.Context) ([]grants.Role, error) {
	var roles []accessDatamodel.Role
	if err := r.db.WithContext(ctx).Order("name ASC").Find(&roles).Error; err != nil {
		return nil, fmt.Errorf("list roles: %w", err)
	}
	out := make([]grants.Role, 0, len(roles))
	for _, role := range roles {
		out = append(out, grants.Role{ID: role.ID, Name: access.RoleName(role.Name), Description: role.Description})
	}
	return out, nil
}

func (r *GrantRepository) PermissionByName(ctx context.Context, name string) (*grants.Permission, error) {
	var perm accessDatamodel.Permission
	err := r.db.WithContext(ctx).Where("name = ?", name).First(&perm).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &grants.Permission{ID: perm.ID, Name: perm.Name, Description: perm.Description}, nil
}

func (r *GrantRepository) ModuleByName(ctx context.Context, name access.ModuleName) (*grants.Module, error) {
	var m accessDatamodel.Module
	err := r.db.WithContext(ctx).Where("name = ?", string(name)).First(&m).Error
	if err != nil {
		return nil, notFound(err)
	}
	module := fromModuleModel(m)
	return &module, nil
}

func (r *GrantRepository) ListModules(ctx context.Context) ([]grants.Module, error) {
	var modules []accessDatamodel.Module
	if err := r.db.WithContext(ctx).Order("name ASC").Find(&modules).Error; err != nil {
		return nil, fmt.Errorf("list modules: %w", err)
	}
	out := make([]grants.Module, 0, len(modules))
	for _, m := range modules {
		out = append(out, fromModuleModel(m))
	}
	return out, nil
}

func (r *GrantRepository) CreateModule(ctx context.Context, name access.ModuleName, description string) (*grants.Module, error) {
	if _, err := r.ModuleByName(ctx, name); err == nil {
		return nil, grants.ErrAlreadyExists
	} else if !errors.Is(err, grants.ErrNotFound) {
		return nil, err
	}

	m := accessDatamodel.Module{
		Name:        string(name),
		Description: description,
		IsActive:    true,
	}
	if err := r.db.WithContext(ctx).Create(&m).Error; err != nil {
		return nil, fmt.Errorf("create module: %w", err)
	}
	module := fromModuleModel(m)
	return &module, nil
}

func (r *GrantRepository) SetModuleActive(ctx context.Context, moduleID int64, active bool) error {
	res := r.db.WithContext(ctx).
		Model(&accessDatamodel.Module{}).
		Where("id = ?", moduleID).
		Update("is_active", active)
	if res.Error != nil {
		return fmt.Errorf("update module: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return grants.ErrNotFound
	}
	return nil
}

func (r *GrantRepository) CreateUserRole(ctx context.Context, in grants.NewUserRole) (*grants.UserRole, error) {
	var role accessDatamodel.Role
	if err := r.db.WithContext(ctx).First(&role, in.RoleID).Error; err != nil {
		return nil, notFound(err)
	}

	rec := accessDatamodel.UserRole{
		UserID:     in.UserID,
		RoleID:     in.RoleID,
		FacilityID: in.FacilityID,
		GrantedBy:  in.GrantedBy,
		ExpiresAt:  in.ExpiresAt,
		IsActive:   true,
	}
	if err := r.db.WithContext(ctx).Create(&rec).Error; err != nil {
		return nil, fmt.Errorf("create user role: %w", err)
	}

	return &grants.UserRole{
		ID:         rec.ID,
		UserID:     rec.UserID,
		Role:       grants.Role{ID: role.ID, Name: access.RoleName(role.Name), Description: role.Description},
		FacilityID: rec.FacilityID,
		GrantedBy:  rec.GrantedBy,
		ExpiresAt:  rec.ExpiresAt,
		IsActive:   rec.IsActive,
	}, nil
}

func (r *GrantRepository) DeactivateUserRole(ctx context.Context, userID uuid.UUID, roleID int64) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&accessDatamodel.UserRole{}).
		Where("user_id = ? AND role_id = ? AND is_active = ?", userID, roleID, true).
		Update("is_active", false)
	if res.Error != nil {
		return 0, fmt.Errorf("deactivate user role: %w", res.Error)
	}
	return res.RowsAffected, nil
}

func (r *GrantRepository) CreateUserPermissionGrant(ctx context.Context, in grants.NewPermissionGrant) (*grants.UserPermissionGrant, error) {
	var perm accessDatamodel.Permission
	if err := r.db.WithContext(ctx).First(&perm, in.PermissionID).Error; err != nil {
		return nil, notFound(err)
	}

	rec := accessDatamodel.UserPermissionGrant{
		UserID:       in.UserID,
		PermissionID: in.PermissionID,
		FacilityID:   in.FacilityID,
		GrantedBy:    in.GrantedBy,
		ExpiresAt:    in.ExpiresAt,
		IsActive:     true,
	}
	if err := r.db.WithContext(ctx).Create(&rec).Error; err != nil {
		return nil, fmt.Errorf("create permission grant: %w", err)
	}

	return &grants.UserPermissionGrant{
		ID:         rec.ID,
		UserID:     rec.UserID,
		Permission: grants.Permission{ID: perm.ID, Name: perm.Name, Description: perm.Description},
		FacilityID: rec.FacilityID,
		GrantedBy:  rec.GrantedBy,
		ExpiresAt:  rec.ExpiresAt,
		IsActive:   rec.IsActive,
		CreatedAt:  rec.CreatedAt,
	}, nil
}

func (r *GrantRepository) DeactivateUserPermissionGrants(ctx context.Context, userID uuid.UUID, permissionID int64) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&accessDatamodel.UserPermissionGrant{}).
		Where("user_id = ? AND permission_id = ? AND is_active = ?", userID, permissionID, true).
		Update("is_active", false)
	if res.Error != nil {
		return 0, fmt.Errorf("deactivate permission grants: %w", res.Error)
	}
	return res.RowsAffected, nil
}

func (r *GrantRepository) CreateUserModuleAssignment(ctx context.Context, in grants.NewModuleAssignment) (*grants.UserModuleAssignment, error) {
	var m accessDatamodel.Module
	if err := r.db.WithContext(ctx).First(&m, in.ModuleID).Error; err != nil {
		return nil, notFound(err)
	}

	rec := accessDatamodel.UserModuleAssignment{
		UserID:     in.UserID,
		ModuleID:   in.ModuleID,
		AssignedBy: in.AssignedBy,
		ExpiresAt:  in.ExpiresAt,
		IsActive:   true,
	}
	if err := r.db.WithContext(ctx).Create(&rec).Error; err != nil {
		return nil, fmt.Errorf("create module assignment: %w", err)
	}

	return &grants.UserModuleAssignment{
		ID:         rec.ID,
		UserID:     rec.UserID,
		Module:     fromModuleModel(m),
		AssignedBy: rec.AssignedBy,
		ExpiresAt:  rec.ExpiresAt,
		IsActive:   rec.IsActive,
		CreatedAt:  rec.CreatedAt,
	}, nil
}

func (r *GrantRepository) DeactivateUserModuleAssignments(ctx context.Context, userID uuid.UUID, moduleID int64) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&accessDatamodel.UserModuleAssignment{}).
		Where("user_id = ? AND module_id = ? AND is_active = ?", userID, moduleID, true).
		Update("is_active", false)
	if res.Error != nil {
		return 0, fmt.Errorf("deactivate module assignments: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// CreateRoleModuleAssignment is idempotent; an existing inactive row is reactivated.
func (r *GrantRepository) CreateRoleModuleAssignment(ctx context.Context, roleID, moduleID int64) error {
	rec := accessDatamodel.RoleModuleAssignment{
		RoleID:   roleID,
		ModuleID: moduleID,
		IsActive: true,
	}
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "role_id"}, {Name: "module_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"is_active"}),
	}).Create(&rec).Error
	if err != nil {
		return fmt.Errorf("assign module to role: %w", err)
	}
	return nil
}

// DeactivateExpired soft-deactivates every grant whose expiry is at or before now.
func (r *GrantRepository) DeactivateExpired(ctx context.Context, now time.Time) (grants.ExpiredSweep, error) {
	var sweep grants.ExpiredSweep
	seen := make(map[uuid.UUID]struct{})

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, target := range []struct {
			model   interface{}
			counter *int64
		}{
			{&accessDatamodel.UserPermissionGrant{}, &sweep.PermissionGrants},
			{&accessDatamodel.UserModuleAssignment{}, &sweep.ModuleAssignments},
			{&accessDatamodel.UserRole{}, &sweep.RoleMemberships},
		} {
			expired := tx.Model(target.model).
				Where("is_active = ? AND expires_at IS NOT NULL AND expires_at <= ?", true, now).
				Session(&gorm.Session{})

			var users []uuid.UUID
			if err := expired.Distinct().Pluck("user_id", &users).Error; err != nil {
				return err
			}
			if len(users) == 0 {
				continue
			}

			res := expired.Update("is_active", false)
			if res.Error != nil {
				return res.Error
			}
			*target.counter = res.RowsAffected

			for _, u := range users {
				if _, ok := seen[u]; !ok {
					seen[u] = struct{}{}
					sweep.Users = append(sweep.Users, u)
				}
			}
		}
		return nil
	})
	if err != nil {
		return grants.ExpiredSweep{}, fmt.Errorf("deactivate expired grants: %w", err)
	}
	return sweep, nil
}

func fromModuleModel(m accessDatamodel.Module) grants.Module {
	return grants.Module{
		ID:          m.ID,
		Name:        access.ModuleName(m.Name),
		Description: m.Description,
		IsActive:    m.IsActive,
	}
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return grants.ErrNotFound
	}
	return err
}

// Package grantstest provides an in-memory grants.Store for tests.
package grantstest

import (
	"context"
	"errors"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/frahmantamala/care-access/internal/core/access"
	"github.com/frahmantamala/care-access/internal/grants"
	"github.com/google/uuid"
)

var ErrStoreUnavailable = errors.New("grant store unavailable")

type Store struct {
	mu sync.Mutex

	roles       map[int64]grants.Role
	permissions map[int64]grants.Permission
	modules     map[int64]grants.Module

	rolePermissions map[int64][]int64
	roleModules     map[int64]map[int64]bool
	userRoles       []grants.UserRole
	permGrants      []grants.UserPermissionGrant
	moduleGrants    []grants.UserModuleAssignment

	nextID     int64
	shouldFail bool
	failErr    error

	// Reads counts every read query, so tests can observe caching.
	Reads atomic.Int64
}

var _ grants.Store = (*Store)(nil)

func NewStore() *Store {
	return &Store{
		roles:           make(map[int64]grants.Role),
		permissions:     make(map[int64]grants.Permission),
		modules:         make(map[int64]grants.Module),
		rolePermissions: make(map[int64][]int64),
		roleModules:     make(map[int64]map[int64]bool),
	}
}

// SetShouldFail makes every call return err (ErrStoreUnavailable when err is nil).
func (s *Store) SetShouldFail(fail bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		err = ErrStoreUnavailable
	}
	s.shouldFail = fail
	s.failErr = err
}

func (s *Store) id() int64 {
	s.nextID++
	return s.nextID
}

func (s *Store) fail() error {
	if s.shouldFail {
		return s.failErr
	}
	return nil
}

// AddRole seeds a role and the permissions it carries.
func (s *Store) AddRole(name access.RoleName, permissions ...string) grants.Role {
	s.mu.Lock()
	defer s.mu.Unlock()
	role := grants.Role{ID: s.id(), Name: name}
	s.roles[role.ID] = role
	for _, p := range permissions {
		perm := s.permissionLocked(p)
		s.rolePermissions[role.ID] = append(s.rolePermissions[role.ID], perm.ID)
	}
	return role
}

func (s *Store) AddPermission(name string) grants.Permission {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.permissionLocked(name)
}

func (s *Store) permissionLocked(name string) grants.Permission {
	for _, p := range s.permissions {
		if p.Name == name {
			return p
		}
	}
	perm := grants.Permission{ID: s.id(), Name: name}
	s.permissions[perm.ID] = perm
	return perm
}

func (s *Store) AddModule(name access.ModuleName, active bool) grants.Module {
	s.mu.Lock()
	defer s.mu.Unlock()
	m := grants.Module{ID: s.id(), Name: name, IsActive: active}
	s.modules[m.ID] = m
	return m
}

// AssignRole seeds a role membership.
func (s *Store) AssignRole(user uuid.UUID, role grants.Role, facility *int64, expiresAt *time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.userRoles = append(s.userRoles, grants.UserRole{
		ID: s.id(), UserID: user, Role: role, FacilityID: facility, ExpiresAt: expiresAt, IsActive: true,
	})
}

// Grant seeds a direct permission grant.
func (s *Store) Grant(user uuid.UUID, permission string, facility *int64, expiresAt *time.Time, active bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.permGrants = append(s.permGrants, grants.UserPermissionGrant{
		ID: s.id(), UserID: user, Permission: s.permissionLocked(permission),
		FacilityID: facility, ExpiresAt: expiresAt, IsActive: active,
	})
}

// AssignModule seeds a direct module assignment.
func (s *Store) AssignModule(user uuid.UUID, module grants.Module, expiresAt *time.Time, active bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.moduleGrants = append(s.moduleGrants, grants.UserModuleAssignment{
		ID: s.id(), UserID: user, Module: module, ExpiresAt: expiresAt, IsActive: active,
	})
}

func (s *Store) UserRoles(_ context.Context, userID uuid.UUID) ([]grants.UserRole, error) {
	s.Reads.Add(1)
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail(); err != nil {
		return nil, err
	}
	var out []grants.UserRole
	for _, r := range s.userRoles {
		if r.UserID == userID {
			r.Role = s.roles[r.Role.ID]
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *Store) RolePermissions(_ context.Context, roleIDs []int64) ([]grants.RolePermission, error) {
	s.Reads.Add(1)
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail(); err != nil {
		return nil, err
	}
	var out []grants.RolePermission
	for _, roleID := range roleIDs {
		for _, permID := range s.rolePermissions[roleID] {
			out = append(out, grants.RolePermission{RoleID: roleID, Permission: s.permissions[permID]})
		}
	}
	return out, nil
}

func (s *Store) UserPermissionGrants(_ context.Context, userID uuid.UUID) ([]grants.UserPermissionGrant, error) {
	s.Reads.Add(1)
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail(); err != nil {
		return nil, err
	}
	var out []grants.UserPermissionGrant
	for _, g := range s.permGrants {
		if g.UserID == userID {
			out = append(out, g)
		}
	}
	return out, nil
}

func (s *Store) RoleModules(_ context.Context, roleIDs []int64) ([]grants.RoleModuleAssignment, error) {
	s.Reads.Add(1)
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail(); err != nil {
		return nil, err
	}
	var out []grants.RoleModuleAssignment
	for _, roleID := range roleIDs {
		for moduleID, active := range s.roleModules[roleID] {
			out = append(out, grants.RoleModuleAssignment{RoleID: roleID, Module: s.modules[moduleID], IsActive: active})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Module.Name < out[j].Module.Name })
	return out, nil
}

func (s *Store) UserModules(_ context.Context, userID uuid.UUID) ([]grants.UserModuleAssignment, error) {
	s.Reads.Add(1)
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail(); err != nil {
		return nil, err
	}
	var out []grants.UserModuleAssignment
	for _, a := range s.moduleGrants {
		if a.UserID == userID {
			a.Module = s.modules[a.Module.ID]
			out = append(out, a)
		}
	}
	return out, nil
}

func (s *Store) UsersWithRole(_ context.Context, roleID int64) ([]uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail(); err != nil {
		return nil, err
	}
	seen := make(map[uuid.UUID]bool)
	var out []uuid.UUID
	for _, r := range s.userRoles {
		if r.Role.ID == roleID && r.IsActive && !seen[r.UserID] {
			seen[r.UserID] = true
			out = append(out, r.UserID)
		}
	}
	return out, nil
}

func (s *Store) UsersWithPermission(_ context.Context, permissionID int64) ([]uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail(); err != nil {
		return nil, err
	}
	seen := make(map[uuid.UUID]bool)
	var out []uuid.UUID
	add := func(u uuid.UUID) {
		if !seen[u] {
			seen[u] = true
			out = append(out, u)
		}
	}
	for _, g := range s.permGrants {
		if g.Permission.ID == permissionID && g.IsActive {
			add(g.UserID)
		}
	}
	for _, r := range s.userRoles {
		if !r.IsActive {
			continue
		}
		for _, p := range s.rolePermissions[r.Role.ID] {
			if p == permissionID {
				add(r.UserID)
			}
		}
	}
	return out, nil
}

func (s *Store) RoleByName(_ context.Context, name access.RoleName) (*grants.Role, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail(); err != nil {
		return nil, err
	}
	for _, r := range s.roles {
		if r.Name == name {
			return &r, nil
		}
	}
	return nil, grants.ErrNotFound
}

func (s *Store) ListRoles(_ context.Context) ([]grants.Role, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail(); err != nil {
		return nil, err
	}
	out := make([]grants.Role, 0, len(s.roles))
	for _, r := range s.roles {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *Store) PermissionByName(_ context.Context, name string) (*grants.Permission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail(); err != nil {
		return nil, err
	}
	for _, p := range s.permissions {
		if p.Name == name {
			return &p, nil
		}
	}
	return nil, grants.ErrNotFound
}

func (s *Store) ModuleByName(_ context.Context, name access.ModuleName) (*grants.Module, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail(); err != nil {
		return nil, err
	}
	for _, m := range s.modules {
		if m.Name == name {
			return &m, nil
		}
	}
	return nil, grants.ErrNotFound
}

func (s *Store) ListModules(_ context.Context) ([]grants.Module, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail(); err != nil {
		return nil, err
	}
	out := make([]grants.Module, 0, len(s.modules))
	for _, m := range s.modules {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *Store) CreateModule(_ context.Context, name access.ModuleName, description string) (*grants.Module, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail(); err != nil {
		return nil, err
	}
	for _, m := range s.modules {
		if m.Name == name {
			return nil, grants.ErrAlreadyExists
		}
	}
	m := grants.Module{ID: s.id(), Name: name, Description: description, IsActive: true}
	s.modules[m.ID] = m
	return &m, nil
}

func (s *Store) SetModuleActive(_ context.Context, moduleID int64, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail(); err != nil {
		return err
	}
	m, ok := s.modules[moduleID]
	if !ok {
		return grants.ErrNotFound
	}
	m.IsActive = active
	s.modules[moduleID] = m
	return nil
}

func (s *Store) CreateUserRole(_ context.Context, in grants.NewUserRole) (*grants.UserRole, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail(); err != nil {
		return nil, err
	}
	role, ok := s.roles[in.RoleID]
	if !ok {
		return nil, grants.ErrNotFound
	}
	r := grants.UserRole{
		ID: s.id(), UserID: in.UserID, Role: role, FacilityID: in.FacilityID,
		GrantedBy: in.GrantedBy, ExpiresAt: in.ExpiresAt, IsActive: true,
	}
	s.userRoles = append(s.userRoles, r)
	return &r, nil
}

func (s *Store) DeactivateUserRole(_ context.Context, userID uuid.UUID, roleID int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail(); err != nil {
		return 0, err
	}
	var n int64
	for i := range s.userRoles {
		r := &s.userRoles[i]
		if r.UserID == userID && r.Role.ID == roleID && r.IsActive {
			r.IsActive = false
			n++
		}
	}
	return n, nil
}

func (s *Store) CreateUserPermissionGrant(_ context.Context, in grants.NewPermissionGrant) (*grants.UserPermissionGrant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail(); err != nil {
		return nil, err
	}
	perm, ok := s.permissions[in.PermissionID]
	if !ok {
		return nil, grants.ErrNotFound
	}
	g := grants.UserPermissionGrant{
		ID: s.id(), UserID: in.UserID, Permission: perm, FacilityID: in.FacilityID,
		GrantedBy: in.GrantedBy, ExpiresAt: in.ExpiresAt, IsActive: true, CreatedAt: time.Now().UTC(),
	}
	s.permGrants = append(s.permGrants, g)
	return &g, nil
}

func (s *Store) DeactivateUserPermissionGrants(_ context.Context, userID uuid.UUID, permissionID int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail(); err != nil {
		return 0, err
	}
	var n int64
	for i := range s.permGrants {
		g := &s.permGrants[i]
		if g.UserID == userID && g.Permission.ID == permissionID && g.IsActive {
			g.IsActive = false
			n++
		}
	}
	return n, nil
}

func (s *Store) CreateUserModuleAssignment(_ context.Context, in grants.NewModuleAssignment) (*grants.UserModuleAssignment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail(); err != nil {
		return nil, err
	}
	m, ok := s.modules[in.ModuleID]
	if !ok {
		return nil, grants.ErrNotFound
	}
	a := grants.UserModuleAssignment{
		ID: s.id(), UserID: in.UserID, Module: m, AssignedBy: in.AssignedBy,
		ExpiresAt: in.ExpiresAt, IsActive: true, CreatedAt: time.Now().UTC(),
	}
	s.moduleGrants = append(s.moduleGrants, a)
	return &a, nil
}

func (s *Store) DeactivateUserModuleAssignments(_ context.Context, userID uuid.UUID, moduleID int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail(); err != nil {
		return 0, err
	}
	var n int64
	for i := range s.moduleGrants {
		a := &s.moduleGrants[i]
		if a.UserID == userID && a.Module.ID == moduleID && a.IsActive {
			a.IsActive = false
			n++
		}
	}
	return n, nil
}

func (s *Store) CreateRoleModuleAssignment(_ context.Context, roleID, moduleID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail(); err != nil {
		return err
	}
	if _, ok := s.roleModules[roleID]; !ok {
		s.roleModules[roleID] = make(map[int64]bool)
	}
	s.roleModules[roleID][moduleID] = true
	return nil
}

// SetRoleModuleActive flips an existing role assignment.
func (s *Store) SetRoleModuleActive(roleID, moduleID int64, active bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.roleModules[roleID]; ok {
		s.roleModules[roleID][moduleID] = active
	}
}

func (s *Store) DeactivateExpired(_ context.Context, now time.Time) (grants.ExpiredSweep, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail(); err != nil {
		return grants.ExpiredSweep{}, err
	}
	var sweep grants.ExpiredSweep
	seen := make(map[uuid.UUID]bool)
	expired := func(active bool, at *time.Time, user uuid.UUID) bool {
		if !active || at == nil || at.After(now) {
			return false
		}
		if !seen[user] {
			seen[user] = true
			sweep.Users = append(sweep.Users, user)
		}
		return true
	}
	for i := range s.permGrants {
		g := &s.permGrants[i]
		if expired(g.IsActive, g.ExpiresAt, g.UserID) {
			g.IsActive = false
			sweep.PermissionGrants++
		}
	}
	for i := range s.moduleGrants {
		a := &s.moduleGrants[i]
		if expired(a.IsActive, a.ExpiresAt, a.UserID) {
			a.IsActive = false
			sweep.ModuleAssignments++
		}
	}
	for i := range s.userRoles {
		r := &s.userRoles[i]
		if expired(r.IsActive, r.ExpiresAt, r.UserID) {
			r.IsActive = false
			sweep.RoleMemberships++
		}
	}
	return sweep, nil
}

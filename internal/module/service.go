package module

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/frahmantamala/care-access/internal"
	"github.com/frahmantamala/care-access/internal/cache"
	"github.com/frahmantamala/care-access/internal/core/access"
	"github.com/frahmantamala/care-access/internal/core/events"
	"github.com/frahmantamala/care-access/internal/core/observability"
	"github.com/frahmantamala/care-access/internal/grants"
	"github.com/google/uuid"
)

const (
	resolverName = "module"

	checkScope     = "check"
	effectiveScope = "effective"
)

type RepositoryAPI interface {
	UserRoles(ctx context.Context, userID uuid.UUID) ([]grants.UserRole, error)
	RoleModules(ctx context.Context, roleIDs []int64) ([]grants.RoleModuleAssignment, error)
	UserModules(ctx context.Context, userID uuid.UUID) ([]grants.UserModuleAssignment, error)
	UsersWithRole(ctx context.Context, roleID int64) ([]uuid.UUID, error)
	RoleByName(ctx context.Context, name access.RoleName) (*grants.Role, error)
	ModuleByName(ctx context.Context, name access.ModuleName) (*grants.Module, error)
	ListModules(ctx context.Context) ([]grants.Module, error)
	CreateModule(ctx context.Context, name access.ModuleName, description string) (*grants.Module, error)
	SetModuleActive(ctx context.Context, moduleID int64, active bool) error
	CreateUserModuleAssignment(ctx context.Context, in grants.NewModuleAssignment) (*grants.UserModuleAssignment, error)
	DeactivateUserModuleAssignments(ctx context.Context, userID uuid.UUID, moduleID int64) (int64, error)
	CreateRoleModuleAssignment(ctx context.Context, roleID, moduleID int64) error
}

type Config struct {
	CacheTTL  time.Duration
	CacheSize int
}

type AssignInput struct {
	ExpiresAt  *time.Time
	AssignedBy *uuid.UUID
}

// Resolver answers module entitlement questions and owns the module catalog.
type Resolver struct {
	repo      RepositoryAPI
	decisions *cache.Cache[bool]
	effective *cache.Cache[[]EffectiveModule]
	reporter  observability.ErrorReporter
	bus       *events.EventBus
	clock     access.Clock
	logger    *slog.Logger
}

func NewResolver(repo RepositoryAPI, cfg Config, metrics *observability.Metrics, reporter observability.ErrorReporter, bus *events.EventBus, logger *slog.Logger) *Resolver {
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = internal.DefaultCacheTTL
	}
	if reporter == nil {
		reporter = observability.NewLogReporter(logger, metrics)
	}
	return &Resolver{
		repo:      repo,
		decisions: cache.New[bool]("module_check", cfg.CacheSize, cfg.CacheTTL, metrics),
		effective: cache.New[[]EffectiveModule]("module_effective", cfg.CacheSize, cfg.CacheTTL, metrics),
		reporter:  reporter,
		bus:       bus,
		clock:     access.SystemClock,
		logger:    logger,
	}
}

func (r *Resolver) WithClock(clock access.Clock) *Resolver {
	r.clock = clock
	return r
}

// HasModuleAccess is true for super-administrators and for modules in the effective set.
// Failures deny and are reported.
func (r *Resolver) HasModuleAccess(ctx context.Context, user uuid.UUID, name access.ModuleName) (allowed bool) {
	if user == uuid.Nil || name == "" {
		return false
	}

	defer func() {
		if rec := recover(); rec != nil {
			r.reporter.ReportResolutionError(ctx, resolverName, "has_module_access", user, fmt.Errorf("panic: %v", rec))
			allowed = false
		}
	}()

	allowed, err := r.decisions.GetOrLoad(ctx, cache.Key(user, checkScope, name.String()), func(ctx context.Context) (bool, error) {
		roles, err := r.repo.UserRoles(ctx, user)
		if err != nil {
			return false, fmt.Errorf("load roles: %w", err)
		}
		now := r.clock()
		if globalSuperAdmin(roles, now) {
			return true, nil
		}
		list, err := r.effective.GetOrLoad(ctx, cache.Key(user, effectiveScope), func(ctx context.Context) ([]EffectiveModule, error) {
			return r.build(ctx, user, roles, now)
		})
		if err != nil {
			return false, err
		}
		return Contains(StillEffective(list, now), name), nil
	})
	if err != nil {
		r.reporter.ReportResolutionError(ctx, resolverName, "has_module_access", user, err)
		return false
	}
	return allowed
}

// globalSuperAdmin ignores facility-scoped memberships; modules are console-wide.
func globalSuperAdmin(roles []grants.UserRole, t time.Time) bool {
	for _, m := range grants.EffectiveRoles(roles, t) {
		if m.Role.Name == access.RoleSuperAdmin && m.FacilityID == nil {
			return true
		}
	}
	return false
}

func (r *Resolver) build(ctx context.Context, user uuid.UUID, roles []grants.UserRole, now time.Time) ([]EffectiveModule, error) {
	roleModules, err := r.repo.RoleModules(ctx, grants.RoleIDs(grants.EffectiveRoles(roles, now)))
	if err != nil {
		return nil, fmt.Errorf("load role modules: %w", err)
	}
	direct, err := r.repo.UserModules(ctx, user)
	if err != nil {
		return nil, fmt.Errorf("load module assignments: %w", err)
	}
	return FromGrants(roles, roleModules, direct, now), nil
}

// EffectiveModules lists the user's modules ordered by name. There is no bypass here.
func (r *Resolver) EffectiveModules(ctx context.Context, user uuid.UUID) ([]EffectiveModule, error) {
	list, err := r.effective.GetOrLoad(ctx, cache.Key(user, effectiveScope), func(ctx context.Context) ([]EffectiveModule, error) {
		roles, err := r.repo.UserRoles(ctx, user)
		if err != nil {
			return nil, fmt.Errorf("load roles: %w", err)
		}
		return r.build(ctx, user, roles, r.clock())
	})
	if err != nil {
		r.reporter.ReportResolutionError(ctx, resolverName, "effective_modules", user, err)
		return nil, err
	}
	return StillEffective(list, r.clock()), nil
}

// AssignModuleToUser records a direct assignment and drops the user's cached answers.
func (r *Resolver) AssignModuleToUser(ctx context.Context, user uuid.UUID, name access.ModuleName, in AssignInput) (*grants.UserModuleAssignment, error) {
	if in.ExpiresAt != nil && !in.ExpiresAt.After(r.clock()) {
		return nil, internal.NewValidationFieldError("expires_at", "expiry must be in the future", internal.ErrCodeInvalidExpiry)
	}

	m, err := r.lookup(ctx, name)
	if err != nil {
		return nil, err
	}

	assignment, err := r.repo.CreateUserModuleAssignment(ctx, grants.NewModuleAssignment{
		UserID:     user,
		ModuleID:   m.ID,
		AssignedBy: in.AssignedBy,
		ExpiresAt:  in.ExpiresAt,
	})
	if err != nil {
		return nil, fmt.Errorf("assign module %s: %w", name, err)
	}

	r.InvalidateUser(user)
	r.publish(ctx, events.ChangeModuleAssigned, name.String(), []uuid.UUID{user}, in.AssignedBy)
	r.logger.Info("module assigned", "user_id", user, "module", name)
	return assignment, nil
}

// RevokeModuleFromUser soft-deactivates the user's direct assignments of the module.
func (r *Resolver) RevokeModuleFromUser(ctx context.Context, user uuid.UUID, name access.ModuleName, actor *uuid.UUID) (int64, error) {
	m, err := r.lookup(ctx, name)
	if err != nil {
		return 0, err
	}

	n, err := r.repo.DeactivateUserModuleAssignments(ctx, user, m.ID)
	if err != nil {
		return 0, fmt.Errorf("revoke module %s: %w", name, err)
	}

	r.InvalidateUser(user)
	r.publish(ctx, events.ChangeModuleRevoked, name.String(), []uuid.UUID{user}, actor)
	r.logger.Info("module revoked", "user_id", user, "module", name, "assignments", n)
	return n, nil
}

// AssignModuleToRole entitles every holder of the role. Each current holder's
// cached answers are dropped before it returns.
func (r *Resolver) AssignModuleToRole(ctx context.Context, roleName access.RoleName, name access.ModuleName, actor *uuid.UUID) error {
	role, err := r.repo.RoleByName(ctx, roleName)
	if err != nil {
		if errors.Is(err, grants.ErrNotFound) {
			return internal.ErrRoleNotFound
		}
		return fmt.Errorf("lookup role %s: %w", roleName, err)
	}
	m, err := r.lookup(ctx, name)
	if err != nil {
		return err
	}

	if err := r.repo.CreateRoleModuleAssignment(ctx, role.ID, m.ID); err != nil {
		return fmt.Errorf("assign module %s to role %s: %w", name, roleName, err)
	}

	holders, err := r.repo.UsersWithRole(ctx, role.ID)
	if err != nil {
		// Without the holder list no per-user invalidation is possible.
		r.logger.Warn("role holders unavailable, dropping every cached module answer", "role", roleName, "error", err)
		r.purge()
	} else {
		for _, u := range holders {
			r.InvalidateUser(u)
		}
	}

	r.publish(ctx, events.ChangeModuleAssigned, name.String(), holders, actor)
	r.logger.Info("module assigned to role", "role", roleName, "module", name, "holders", len(holders))
	return nil
}

func (r *Resolver) lookup(ctx context.Context, name access.ModuleName) (*grants.Module, error) {
	m, err := r.repo.ModuleByName(ctx, name)
	if err != nil {
		if errors.Is(err, grants.ErrNotFound) {
			return nil, internal.ErrModuleNotFound
		}
		return nil, fmt.Errorf("lookup module %s: %w", name, err)
	}
	return m, nil
}

func (r *Resolver) publish(ctx context.Context, kind, subject string, users []uuid.UUID, actor *uuid.UUID) {
	if r.bus == nil {
		return
	}
	_ = r.bus.Publish(ctx, events.NewAccessChangedEvent(kind, subject, users, actor))
}

func (r *Resolver) InvalidateUser(user uuid.UUID) {
	r.decisions.InvalidateUser(user)
	r.effective.InvalidateUser(user)
}

func (r *Resolver) purge() {
	r.decisions.Purge()
	r.effective.Purge()
}

// HandleAccessEvent invalidates the users an access event names.
func (r *Resolver) HandleAccessEvent(_ context.Context, event events.Event) error {
	for _, user := range events.AffectedUsers(event) {
		r.InvalidateUser(user)
	}
	return nil
}

package permission

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/frahmantamala/care-access/internal"
	"github.com/frahmantamala/care-access/internal/cache"
	"github.com/frahmantamala/care-access/internal/core/access"
	"github.com/frahmantamala/care-access/internal/core/events"
	"github.com/frahmantamala/care-access/internal/core/observability"
	"github.com/frahmantamala/care-access/internal/grants"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

const (
	resolverName = "permission"

	checkScope     = "check"
	effectiveScope = "effective"

	validateConcurrency = 4
)

type RepositoryAPI interface {
	UserRoles(ctx context.Context, userID uuid.UUID) ([]grants.UserRole, error)
	RolePermissions(ctx context.Context, roleIDs []int64) ([]grants.RolePermission, error)
	UserPermissionGrants(ctx context.Context, userID uuid.UUID) ([]grants.UserPermissionGrant, error)
	PermissionByName(ctx context.Context, name string) (*grants.Permission, error)
	CreateUserPermissionGrant(ctx context.Context, in grants.NewPermissionGrant) (*grants.UserPermissionGrant, error)
	DeactivateUserPermissionGrants(ctx context.Context, userID uuid.UUID, permissionID int64) (int64, error)
	UsersWithPermission(ctx context.Context, permissionID int64) ([]uuid.UUID, error)
}

type Config struct {
	CacheTTL  time.Duration
	CacheSize int
}

type GrantInput struct {
	FacilityID *int64
	ExpiresAt  *time.Time
	GrantedBy  *uuid.UUID
}

// Resolver answers permission questions. It is safe for concurrent use.
type Resolver struct {
	repo      RepositoryAPI
	decisions *cache.Cache[bool]
	effective *cache.Cache[[]EffectivePermission]
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
		decisions: cache.New[bool]("permission_check", cfg.CacheSize, cfg.CacheTTL, metrics),
		effective: cache.New[[]EffectivePermission]("permission_effective", cfg.CacheSize, cfg.CacheTTL, metrics),
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

// HasPermission is the point check. Super-administrators hold every permission.
// Any failure denies and is reported; it never panics.
func (r *Resolver) HasPermission(ctx context.Context, user uuid.UUID, name string, facility *int64) (allowed bool) {
	name, err := access.ParsePermissionName(name)
	if user == uuid.Nil || err != nil {
		return false
	}

	defer func() {
		if rec := recover(); rec != nil {
			r.reporter.ReportResolutionError(ctx, resolverName, "has_permission", user, fmt.Errorf("panic: %v", rec))
			allowed = false
		}
	}()

	key := cache.Key(user, checkScope, name, facilityKey(facility))
	allowed, err = r.decisions.GetOrLoad(ctx, key, func(ctx context.Context) (bool, error) {
		return r.resolve(ctx, user, name, facility)
	})
	if err != nil {
		r.reporter.ReportResolutionError(ctx, resolverName, "has_permission", user, err)
		return false
	}
	return allowed
}

func (r *Resolver) resolve(ctx context.Context, user uuid.UUID, name string, facility *int64) (bool, error) {
	roles, err := r.repo.UserRoles(ctx, user)
	if err != nil {
		return false, fmt.Errorf("load roles: %w", err)
	}

	now := r.clock()
	if superAdminFor(roles, facility, now) {
		return true, nil
	}

	list, err := r.effective.GetOrLoad(ctx, cache.Key(user, effectiveScope), func(ctx context.Context) ([]EffectivePermission, error) {
		return r.build(ctx, user, roles, now)
	})
	if err != nil {
		return false, err
	}

	for _, p := range list {
		if p.Covers(name, facility, now) {
			return true, nil
		}
	}
	return false, nil
}

// superAdminFor reports a super-administrator membership that applies to facility.
func superAdminFor(roles []grants.UserRole, facility *int64, t time.Time) bool {
	for _, m := range grants.EffectiveRoles(roles, t) {
		if m.Role.Name != access.RoleSuperAdmin {
			continue
		}
		if m.FacilityID == nil || (facility != nil && *facility == *m.FacilityID) {
			return true
		}
	}
	return false
}

func (r *Resolver) build(ctx context.Context, user uuid.UUID, roles []grants.UserRole, now time.Time) ([]EffectivePermission, error) {
	rolePerms, err := r.repo.RolePermissions(ctx, grants.RoleIDs(grants.EffectiveRoles(roles, now)))
	if err != nil {
		return nil, fmt.Errorf("load role permissions: %w", err)
	}
	direct, err := r.repo.UserPermissionGrants(ctx, user)
	if err != nil {
		return nil, fmt.Errorf("load permission grants: %w", err)
	}
	return FromGrants(roles, rolePerms, direct, now), nil
}

// EffectivePermissions lists what the user holds from roles and direct grants.
// There is no super-administrator bypass here.
func (r *Resolver) EffectivePermissions(ctx context.Context, user uuid.UUID) ([]EffectivePermission, error) {
	list, err := r.effective.GetOrLoad(ctx, cache.Key(user, effectiveScope), func(ctx context.Context) ([]EffectivePermission, error) {
		roles, err := r.repo.UserRoles(ctx, user)
		if err != nil {
			return nil, fmt.Errorf("load roles: %w", err)
		}
		return r.build(ctx, user, roles, r.clock())
	})
	if err != nil {
		r.reporter.ReportResolutionError(ctx, resolverName, "effective_permissions", user, err)
		return nil, err
	}
	return StillEffective(list, r.clock()), nil
}

// ValidateMultiple checks each distinct name independently; one failure only denies that name.
func (r *Resolver) ValidateMultiple(ctx context.Context, user uuid.UUID, names []string, facility *int64) map[string]bool {
	results := make(map[string]bool, len(names))
	distinct := make([]string, 0, len(names))
	for _, name := range names {
		if _, ok := results[name]; !ok {
			results[name] = false
			distinct = append(distinct, name)
		}
	}

	var (
		mu sync.Mutex
		g  errgroup.Group
	)
	g.SetLimit(validateConcurrency)
	for _, name := range distinct {
		name := name
		g.Go(func() error {
			allowed := r.HasPermission(ctx, user, name, facility)
			mu.Lock()
			results[name] = allowed
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// GrantPermission records a direct grant. Cached answers for the user are gone before it returns.
func (r *Resolver) GrantPermission(ctx context.Context, user uuid.UUID, name string, in GrantInput) (*grants.UserPermissionGrant, error) {
	if in.ExpiresAt != nil && !in.ExpiresAt.After(r.clock()) {
		return nil, internal.NewValidationFieldError("expires_at", "expiry must be in the future", internal.ErrCodeInvalidExpiry)
	}

	perm, err := r.lookup(ctx, name)
	if err != nil {
		return nil, err
	}

	grant, err := r.repo.CreateUserPermissionGrant(ctx, grants.NewPermissionGrant{
		UserID:       user,
		PermissionID: perm.ID,
		FacilityID:   in.FacilityID,
		GrantedBy:    in.GrantedBy,
		ExpiresAt:    in.ExpiresAt,
	})
	if err != nil {
		return nil, fmt.Errorf("grant %s: %w", name, err)
	}

	r.InvalidateUser(user)
	r.publish(ctx, events.ChangePermissionGranted, name, user, in.GrantedBy)
	r.logger.Info("permission granted", "user_id", user, "permission", name, "facility_id", in.FacilityID)
	return grant, nil
}

// RevokePermission soft-deactivates every active direct grant of name for the user.
// Role-derived holdings are untouched.
func (r *Resolver) RevokePermission(ctx context.Context, user uuid.UUID, name string, actor *uuid.UUID) (int64, error) {
	perm, err := r.lookup(ctx, name)
	if err != nil {
		return 0, err
	}

	n, err := r.repo.DeactivateUserPermissionGrants(ctx, user, perm.ID)
	if err != nil {
		return 0, fmt.Errorf("revoke %s: %w", name, err)
	}

	r.InvalidateUser(user)
	r.publish(ctx, events.ChangePermissionRevoked, name, user, actor)
	r.logger.Info("permission revoked", "user_id", user, "permission", name, "grants", n)
	return n, nil
}

func (r *Resolver) lookup(ctx context.Context, name string) (*grants.Permission, error) {
	name, err := access.ParsePermissionName(name)
	if err != nil {
		return nil, internal.NewValidationFieldError("permission", err.Error(), internal.ErrCodeInvalidIdentifier)
	}
	perm, err := r.repo.PermissionByName(ctx, name)
	if err != nil {
		if errors.Is(err, grants.ErrNotFound) {
			return nil, internal.ErrPermissionNotFound
		}
		return nil, fmt.Errorf("lookup permission %s: %w", name, err)
	}
	return perm, nil
}

func (r *Resolver) publish(ctx context.Context, kind, subject string, user uuid.UUID, actor *uuid.UUID) {
	if r.bus == nil {
		return
	}
	_ = r.bus.Publish(ctx, events.NewAccessChangedEvent(kind, subject, []uuid.UUID{user}, actor))
}

func (r *Resolver) InvalidateUser(user uuid.UUID) {
	r.decisions.InvalidateUser(user)
	r.effective.InvalidateUser(user)
}

// InvalidatePermission drops cached answers about name after its role bindings
// changed outside this service. Current holders lose every cached entry; anyone
// else loses the checks and effective lists that mention name. It returns the
// number of current holders.
func (r *Resolver) InvalidatePermission(ctx context.Context, name string) (int, error) {
	perm, err := r.lookup(ctx, name)
	if err != nil {
		return 0, err
	}
	holders, err := r.repo.UsersWithPermission(ctx, perm.ID)
	if err != nil {
		return 0, fmt.Errorf("load holders of %s: %w", perm.Name, err)
	}

	for _, user := range holders {
		r.InvalidateUser(user)
	}
	r.decisions.InvalidateMatching(func(key string) bool {
		_, parts := cache.KeyParts(key)
		return len(parts) >= 2 && parts[0] == checkScope && parts[1] == perm.Name
	})
	r.effective.InvalidateValues(func(list []EffectivePermission) bool {
		for _, p := range list {
			if p.Permission == perm.Name {
				return true
			}
		}
		return false
	})

	r.logger.Info("permission cache invalidated", "permission", perm.Name, "holders", len(holders))
	return len(holders), nil
}

// HandleAccessEvent invalidates the users an access event names.
func (r *Resolver) HandleAccessEvent(_ context.Context, event events.Event) error {
	for _, user := range events.AffectedUsers(event) {
		r.InvalidateUser(user)
	}
	return nil
}

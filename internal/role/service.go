package role

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/frahmantamala/care-access/internal"
	"github.com/frahmantamala/care-access/internal/core/access"
	"github.com/frahmantamala/care-access/internal/core/events"
	"github.com/frahmantamala/care-access/internal/grants"
	"github.com/google/uuid"
)

type RepositoryAPI interface {
	UserRoles(ctx context.Context, userID uuid.UUID) ([]grants.UserRole, error)
	RoleByName(ctx context.Context, name access.RoleName) (*grants.Role, error)
	ListRoles(ctx context.Context) ([]grants.Role, error)
	CreateUserRole(ctx context.Context, in grants.NewUserRole) (*grants.UserRole, error)
	DeactivateUserRole(ctx context.Context, userID uuid.UUID, roleID int64) (int64, error)
}

// Invalidator drops whatever a component cached about a user.
type Invalidator interface {
	InvalidateUser(user uuid.UUID)
}

type AssignInput struct {
	FacilityID *int64
	ExpiresAt  *time.Time
	GrantedBy  *uuid.UUID
}

type Service struct {
	repo         RepositoryAPI
	bus          *events.EventBus
	invalidators []Invalidator
	clock        access.Clock
	logger       *slog.Logger
}

func NewService(repo RepositoryAPI, bus *events.EventBus, logger *slog.Logger, invalidators ...Invalidator) *Service {
	return &Service{
		repo:         repo,
		bus:          bus,
		invalidators: invalidators,
		clock:        access.SystemClock,
		logger:       logger,
	}
}

func (s *Service) WithClock(clock access.Clock) *Service {
	s.clock = clock
	return s
}

func (s *Service) ListRoles(ctx context.Context) ([]grants.Role, error) {
	return s.repo.ListRoles(ctx)
}

// Memberships returns the user's memberships in force now.
func (s *Service) Memberships(ctx context.Context, user uuid.UUID) ([]grants.UserRole, error) {
	roles, err := s.repo.UserRoles(ctx, user)
	if err != nil {
		return nil, fmt.Errorf("load roles of %s: %w", user, err)
	}
	return grants.EffectiveRoles(roles, s.clock()), nil
}

// RoleNames returns the distinct names of the user's effective roles, sorted.
func (s *Service) RoleNames(ctx context.Context, user uuid.UUID) ([]access.RoleName, error) {
	memberships, err := s.Memberships(ctx, user)
	if err != nil {
		return nil, err
	}
	return Names(memberships), nil
}

func Names(memberships []grants.UserRole) []access.RoleName {
	seen := make(map[access.RoleName]struct{}, len(memberships))
	names := make([]access.RoleName, 0, len(memberships))
	for _, m := range memberships {
		if _, ok := seen[m.Role.Name]; ok {
			continue
		}
		seen[m.Role.Name] = struct{}{}
		names = append(names, m.Role.Name)
	}
	sort.Slice(names, func(i, j int) bool { return names[i] < names[j] })
	return names
}

func (s *Service) AssignRole(ctx context.Context, user uuid.UUID, name access.RoleName, in AssignInput) (*grants.UserRole, error) {
	if in.ExpiresAt != nil && !in.ExpiresAt.After(s.clock()) {
		return nil, internal.NewValidationFieldError("expires_at", "expiry must be in the future", internal.ErrCodeInvalidExpiry)
	}

	role, err := s.lookup(ctx, name)
	if err != nil {
		return nil, err
	}

	membership, err := s.repo.CreateUserRole(ctx, grants.NewUserRole{
		UserID:     user,
		RoleID:     role.ID,
		FacilityID: in.FacilityID,
		GrantedBy:  in.GrantedBy,
		ExpiresAt:  in.ExpiresAt,
	})
	if err != nil {
		return nil, fmt.Errorf("assign role %s: %w", name, err)
	}

	s.changed(ctx, events.ChangeRoleAssigned, string(name), user, in.GrantedBy)
	s.logger.Info("role assigned", "user_id", user, "role", name, "facility_id", in.FacilityID)
	return membership, nil
}

// RemoveRole soft-deactivates every active membership of the user in the role.
func (s *Service) RemoveRole(ctx context.Context, user uuid.UUID, name access.RoleName, actor *uuid.UUID) (int64, error) {
	role, err := s.lookup(ctx, name)
	if err != nil {
		return 0, err
	}

	n, err := s.repo.DeactivateUserRole(ctx, user, role.ID)
	if err != nil {
		return 0, fmt.Errorf("remove role %s: %w", name, err)
	}

	s.changed(ctx, events.ChangeRoleRemoved, string(name), user, actor)
	s.logger.Info("role removed", "user_id", user, "role", name, "memberships", n)
	return n, nil
}

func (s *Service) lookup(ctx context.Context, name access.RoleName) (*grants.Role, error) {
	role, err := s.repo.RoleByName(ctx, name)
	if err != nil {
		if errors.Is(err, grants.ErrNotFound) {
			return nil, internal.ErrRoleNotFound
		}
		return nil, fmt.Errorf("lookup role %s: %w", name, err)
	}
	return role, nil
}

func (s *Service) changed(ctx context.Context, kind, subject string, user uuid.UUID, actor *uuid.UUID) {
	for _, inv := range s.invalidators {
		inv.InvalidateUser(user)
	}
	if s.bus != nil {
		_ = s.bus.Publish(ctx, events.NewAccessChangedEvent(kind, subject, []uuid.UUID{user}, actor))
	}
}

// Package expiry deactivates grants whose expiry has passed and tells the
// resolvers which users to forget.
package expiry

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/frahmantamala/care-access/internal"
	"github.com/frahmantamala/care-access/internal/core/access"
	"github.com/frahmantamala/care-access/internal/core/events"
	"github.com/frahmantamala/care-access/internal/core/observability"
	"github.com/frahmantamala/care-access/internal/grants"
	"github.com/robfig/cron/v3"
)

type RepositoryAPI interface {
	DeactivateExpired(ctx context.Context, now time.Time) (grants.ExpiredSweep, error)
}

type Sweeper struct {
	repo    RepositoryAPI
	bus     *events.EventBus
	metrics *observability.Metrics
	clock   access.Clock
	logger  *slog.Logger
	cron    *cron.Cron
}

func NewSweeper(repo RepositoryAPI, bus *events.EventBus, metrics *observability.Metrics, logger *slog.Logger) *Sweeper {
	return &Sweeper{
		repo:    repo,
		bus:     bus,
		metrics: metrics,
		clock:   access.SystemClock,
		logger:  logger,
	}
}

func (s *Sweeper) WithClock(clock access.Clock) *Sweeper {
	s.clock = clock
	return s
}

// Sweep runs one pass. The expired event is published synchronously so caches
// are clean by the time Sweep returns.
func (s *Sweeper) Sweep(ctx context.Context) (grants.ExpiredSweep, error) {
	ctx, cancel := internal.WithTimeout(ctx, 0)
	defer cancel()

	sweep, err := s.repo.DeactivateExpired(ctx, s.clock())
	if err != nil {
		return grants.ExpiredSweep{}, fmt.Errorf("deactivate expired grants: %w", err)
	}

	s.metrics.ExpiredGrants("permission", sweep.PermissionGrants)
	s.metrics.ExpiredGrants("module", sweep.ModuleAssignments)
	s.metrics.ExpiredGrants("role", sweep.RoleMemberships)

	if sweep.Total() == 0 {
		return sweep, nil
	}

	s.logger.Info("expired grants deactivated",
		"permission_grants", sweep.PermissionGrants,
		"module_assignments", sweep.ModuleAssignments,
		"role_memberships", sweep.RoleMemberships,
		"users", len(sweep.Users))

	if s.bus != nil {
		event := events.NewAccessExpiredEvent(sweep.Users, sweep.PermissionGrants, sweep.ModuleAssignments, sweep.RoleMemberships)
		if err := s.bus.PublishSync(ctx, event); err != nil {
			s.logger.Error("failed to publish expired event", "error", err)
		}
	}
	return sweep, nil
}

// Start schedules Sweep on the cron spec, e.g. "@every 1m".
func (s *Sweeper) Start(spec string) error {
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	_, err := c.AddFunc(spec, func() {
		if _, err := s.Sweep(context.Background()); err != nil {
			s.logger.Error("expiry sweep failed", "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("schedule expiry sweep %q: %w", spec, err)
	}
	s.cron = c
	c.Start()
	s.logger.Info("expiry sweeper started", "schedule", spec)
	return nil
}

// Stop waits for a running sweep to finish.
func (s *Sweeper) Stop(ctx context.Context) {
	if s.cron == nil {
		return
	}
	select {
	case <-s.cron.Stop().Done():
	case <-ctx.Done():
	}
}

package routing

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/frahmantamala/care-access/internal"
	"github.com/frahmantamala/care-access/internal/core/access"
	"github.com/frahmantamala/care-access/internal/core/observability"
	"github.com/frahmantamala/care-access/internal/module"
	"github.com/frahmantamala/care-access/internal/preference"
	"github.com/google/uuid"
)

type RoleSource interface {
	RoleNames(ctx context.Context, user uuid.UUID) ([]access.RoleName, error)
}

type ModuleSource interface {
	EffectiveModules(ctx context.Context, user uuid.UUID) ([]module.EffectiveModule, error)
	HasModuleAccess(ctx context.Context, user uuid.UUID, name access.ModuleName) bool
}

type PreferenceSource interface {
	Load(ctx context.Context, user uuid.UUID) (preference.Preferences, error)
	Save(ctx context.Context, user uuid.UUID, update preference.Update) (preference.Preferences, error)
	RecordProgress(ctx context.Context, user uuid.UUID, module access.ModuleName, path string, snapshot json.RawMessage) ([]preference.Progress, error)
	Progress(ctx context.Context, user uuid.UUID) ([]preference.Progress, error)
}

// Navigator receives the computed route. Over HTTP the response body is the handoff,
// so the default navigator does nothing.
type Navigator interface {
	Navigate(ctx context.Context, user uuid.UUID, path string) error
}

type noopNavigator struct{}

func (noopNavigator) Navigate(context.Context, uuid.UUID, string) error { return nil }

type Config struct {
	SessionTTL  time.Duration
	SessionSize int
}

// Outcome tells a caller what PerformRouting did.
type Outcome string

const (
	OutcomeNavigated  Outcome = "navigated"
	OutcomeSuspended  Outcome = "suspended"
	OutcomeSuppressed Outcome = "suppressed"
	OutcomeSuperseded Outcome = "superseded"
	OutcomeCompleted  Outcome = "already_completed"
)

// Suspension reasons.
const (
	ReasonAutoRouteOff     = "auto_route_disabled"
	ReasonManualNavigation = "manual_navigation"
	ReasonUnauthenticated  = "unauthenticated"
)

type Result struct {
	Outcome Outcome     `json:"outcome"`
	Session SessionView `json:"session"`
}

type Engine struct {
	roles     RoleSource
	modules   ModuleSource
	prefs     PreferenceSource
	navigator Navigator
	sessions  *sessionTable
	metrics   *observability.Metrics
	clock     access.Clock
	logger    *slog.Logger
}

func NewEngine(roles RoleSource, modules ModuleSource, prefs PreferenceSource, navigator Navigator, cfg Config, metrics *observability.Metrics, logger *slog.Logger) *Engine {
	if navigator == nil {
		navigator = noopNavigator{}
	}
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = internal.DefaultSessionTTL
	}
	if cfg.SessionSize <= 0 {
		cfg.SessionSize = internal.DefaultCacheSize
	}
	e := &Engine{
		roles:     roles,
		modules:   modules,
		prefs:     prefs,
		navigator: navigator,
		metrics:   metrics,
		clock:     access.SystemClock,
		logger:    logger,
	}
	e.sessions = newSessionTable(cfg.SessionSize, cfg.SessionTTL, func() time.Time { return e.clock() })
	return e
}

func (e *Engine) WithClock(clock access.Clock) *Engine {
	e.clock = clock
	return e
}

func routable(location string) bool {
	return location == access.RootPath || location == access.DashboardPath
}

// BestRoute computes the route without touching session state. Errors give the dashboard.
func (e *Engine) BestRoute(ctx context.Context, user uuid.UUID) Decision {
	d, err := e.decide(ctx, user)
	if err != nil {
		e.logger.Error("route decision failed, falling back to dashboard", "user_id", user, "error", err)
		return dashboard(RuleFallback)
	}
	return d
}

// PerformRouting runs the state machine once for the session. location is where the
// user is now; routing only starts from the root or the dashboard.
func (e *Engine) PerformRouting(ctx context.Context, user uuid.UUID, location string) Result {
	if user == uuid.Nil {
		return Result{Outcome: OutcomeSuspended, Session: SessionView{State: StateSuspended, Reason: ReasonUnauthenticated}}
	}

	var prefs preference.Preferences
	if routable(location) {
		prefs = e.loadPreferences(ctx, user)
	}

	s := e.sessions.get(user)
	s.mu.Lock()
	switch {
	case s.state == StateResolving:
		view := s.view()
		s.mu.Unlock()
		e.metrics.RoutingDecision(string(OutcomeSuppressed))
		return Result{Outcome: OutcomeSuppressed, Session: view}
	case s.state != StateIdle:
		view := s.view()
		s.mu.Unlock()
		return Result{Outcome: OutcomeCompleted, Session: view}
	}

	s.location = location
	if !routable(location) {
		return e.suspendLocked(s, ReasonManualNavigation)
	}

	if !prefs.AutoRoute {
		return e.suspendLocked(s, ReasonAutoRouteOff)
	}

	s.state = StateResolving
	s.generation++
	gen := s.generation
	s.mu.Unlock()

	decision, err := e.decide(ctx, user)
	if err != nil {
		e.logger.Error("route decision failed, falling back to dashboard", "user_id", user, "error", err)
		decision = dashboard(RuleFallback)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.generation != gen || s.location != location {
		// The user moved on while we were resolving.
		e.metrics.RoutingDecision(string(OutcomeSuperseded))
		e.logger.Debug("route decision superseded", "user_id", user, "path", decision.Path)
		return Result{Outcome: OutcomeSuperseded, Session: s.view()}
	}

	s.state = StateDecided
	s.decision = &decision
	if err := e.navigator.Navigate(ctx, user, decision.Path); err != nil {
		e.logger.Error("navigation handoff failed, falling back to dashboard", "user_id", user, "path", decision.Path, "error", err)
		fallback := dashboard(RuleFallback)
		s.decision = &fallback
	}
	s.state = StateNavigated
	s.location = s.decision.Path

	e.metrics.RoutingDecision(string(s.decision.Rule))
	e.logger.Info("routed user", "user_id", user, "path", s.decision.Path, "rule", s.decision.Rule)
	return Result{Outcome: OutcomeNavigated, Session: s.view()}
}

// loadPreferences runs outside the session lock so a slow store never blocks
// readers of the session.
func (e *Engine) loadPreferences(ctx context.Context, user uuid.UUID) preference.Preferences {
	prefs, err := e.prefs.Load(ctx, user)
	if err != nil {
		e.logger.Warn("preferences unavailable, using defaults", "user_id", user, "error", err)
		return preference.Defaults(nil)
	}
	return prefs
}

func (e *Engine) suspendLocked(s *Session, reason string) Result {
	defer s.mu.Unlock()
	s.state = StateSuspended
	s.reason = reason
	e.metrics.RoutingDecision(string(OutcomeSuspended))
	e.logger.Debug("routing suspended", "user_id", s.user, "reason", reason, "location", s.location)
	return Result{Outcome: OutcomeSuspended, Session: s.view()}
}

// decide gathers inputs and applies the rules; a panic anywhere becomes an error.
func (e *Engine) decide(ctx context.Context, user uuid.UUID) (d Decision, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic: %v", rec)
		}
	}()

	roles, err := e.roles.RoleNames(ctx, user)
	if err != nil {
		return Decision{}, fmt.Errorf("load roles: %w", err)
	}
	modules, err := e.modules.EffectiveModules(ctx, user)
	if err != nil {
		return Decision{}, fmt.Errorf("load modules: %w", err)
	}
	prefs, err := e.prefs.Load(ctx, user)
	if err != nil {
		return Decision{}, fmt.Errorf("load preferences: %w", err)
	}
	progress, err := e.prefs.Progress(ctx, user)
	if err != nil {
		return Decision{}, fmt.Errorf("load progress: %w", err)
	}

	return Decide(Inputs{
		Roles:       roles,
		Modules:     modules,
		Preferences: prefs,
		Progress:    progress,
		Accessible: func(m access.ModuleName) bool {
			return m == access.ModuleDashboard || e.modules.HasModuleAccess(ctx, user, m)
		},
	}), nil
}

// StartSession discards the user's routing state, as on a fresh login.
func (e *Engine) StartSession(user uuid.UUID) SessionView {
	s := e.sessions.reset(user)
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view()
}

func (e *Engine) Session(user uuid.UUID) SessionView {
	s := e.sessions.get(user)
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view()
}

func (e *Engine) UpdatePreferences(ctx context.Context, user uuid.UUID, update preference.Update) (preference.Preferences, error) {
	return e.prefs.Save(ctx, user, update)
}

// UpdateModuleProgress records navigation into a module: it becomes the last active
// module, its progress entry is refreshed, and any decision still in flight is dropped.
func (e *Engine) UpdateModuleProgress(ctx context.Context, user uuid.UUID, m access.ModuleName, path string, snapshot json.RawMessage) ([]preference.Progress, error) {
	list, err := e.prefs.RecordProgress(ctx, user, m, path, snapshot)
	if err != nil {
		return nil, err
	}
	if _, err := e.prefs.Save(ctx, user, preference.Update{LastActiveModule: &m}); err != nil {
		return nil, err
	}

	location := path
	if location == "" {
		location = m.Path()
	}
	s := e.sessions.get(user)
	s.mu.Lock()
	s.generation++
	s.location = location
	if s.state != StateSuspended {
		s.state = StateNavigated
	}
	s.mu.Unlock()
	return list, nil
}

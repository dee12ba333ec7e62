package preference

import (
	"context"
	"encoding/json"
	"errors"
	"hash/fnv"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/frahmantamala/care-access/internal"
	"github.com/frahmantamala/care-access/internal/core/access"
	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"
)

const lockStripes = 64

// RoleSource supplies the role set used for first-login defaults.
type RoleSource interface {
	RoleNames(ctx context.Context, user uuid.UUID) ([]access.RoleName, error)
}

type Config struct {
	ProgressLimit int
	Timeout       time.Duration
	SessionTTL    time.Duration
	SessionSize   int
}

// Store persists preferences and progress. Persistence failures never surface
// to callers; reads degrade to defaults and writes are held for the session.
// A value built while the store could not be read is never written back to it.
type Store struct {
	kv      KV
	roles   RoleSource
	cfg     Config
	session *expirable.LRU[string, []byte]
	clock   access.Clock
	logger  *slog.Logger
	locks   [lockStripes]sync.Mutex
}

func NewStore(kv KV, roles RoleSource, cfg Config, logger *slog.Logger) *Store {
	if cfg.ProgressLimit <= 0 {
		cfg.ProgressLimit = internal.DefaultProgressLimit
	}
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = internal.DefaultSessionTTL
	}
	if cfg.SessionSize <= 0 {
		cfg.SessionSize = internal.DefaultCacheSize
	}
	return &Store{
		kv:      kv,
		roles:   roles,
		cfg:     cfg,
		session: expirable.NewLRU[string, []byte](cfg.SessionSize, nil, cfg.SessionTTL),
		clock:   access.SystemClock,
		logger:  logger,
	}
}

func (s *Store) WithClock(clock access.Clock) *Store {
	s.clock = clock
	return s
}

// lock serializes read-modify-write cycles of one user.
func (s *Store) lock(user uuid.UUID) func() {
	h := fnv.New32a()
	_, _ = h.Write(user[:])
	mu := &s.locks[h.Sum32()%lockStripes]
	mu.Lock()
	return mu.Unlock
}

// Load returns the stored preferences, or role-derived defaults persisted on first use.
func (s *Store) Load(ctx context.Context, user uuid.UUID) (Preferences, error) {
	if user == uuid.Nil {
		return Preferences{}, internal.NewValidationFieldError("user_id", "user id is required", internal.ErrCodeInvalidUserID)
	}
	unlock := s.lock(user)
	defer unlock()
	prefs, _ := s.load(ctx, user)
	return prefs, nil
}

// load reports degraded when the store could not be read. The result is then
// the session copy, or defaults when there is none.
func (s *Store) load(ctx context.Context, user uuid.UUID) (Preferences, bool) {
	var prefs Preferences
	found, degraded := s.current(ctx, PreferencesKey(user), &prefs)
	if found {
		return prefs, degraded
	}

	prefs = s.defaults(ctx, user)
	if degraded {
		return prefs, true
	}
	prefs.UpdatedAt = s.clock()
	s.write(ctx, PreferencesKey(user), prefs)
	return prefs, false
}

func (s *Store) defaults(ctx context.Context, user uuid.UUID) Preferences {
	roles, err := s.roles.RoleNames(ctx, user)
	if err != nil {
		s.logger.Warn("roles unavailable for default preferences", "user_id", user, "error", err)
		return Defaults(nil)
	}
	return Defaults(roles)
}

// Save merges update into the current preferences; overlapping keys take the new value.
func (s *Store) Save(ctx context.Context, user uuid.UUID, update Update) (Preferences, error) {
	if user == uuid.Nil {
		return Preferences{}, internal.NewValidationFieldError("user_id", "user id is required", internal.ErrCodeInvalidUserID)
	}
	if update.PreferredDashboard != nil {
		if _, err := ParseDashboard(string(*update.PreferredDashboard)); err != nil {
			return Preferences{}, internal.NewValidationFieldError("preferred_dashboard", err.Error(), internal.ErrCodeInvalidPreferences)
		}
	}

	unlock := s.lock(user)
	defer unlock()

	current, degraded := s.load(ctx, user)
	prefs := update.Apply(current)
	prefs.UpdatedAt = s.clock()
	s.store(ctx, PreferencesKey(user), prefs, degraded)
	return prefs, nil
}

// RecordProgress upserts the entry for module and trims the list to the most recent entries.
func (s *Store) RecordProgress(ctx context.Context, user uuid.UUID, module access.ModuleName, path string, snapshot json.RawMessage) ([]Progress, error) {
	if user == uuid.Nil {
		return nil, internal.NewValidationFieldError("user_id", "user id is required", internal.ErrCodeInvalidUserID)
	}
	if path != "" && !strings.HasPrefix(path, "/") {
		return nil, internal.NewValidationFieldError("path", "path must start with /", internal.ErrCodeInvalidLocation)
	}
	if len(snapshot) > 0 && !json.Valid(snapshot) {
		return nil, internal.NewValidationFieldError("form_snapshot", "snapshot must be JSON", internal.ErrCodeInvalidPreferences)
	}

	unlock := s.lock(user)
	defer unlock()

	current, degraded := s.progress(ctx, user)
	list := Upsert(current, Progress{
		Module:       module,
		LastPath:     path,
		FormSnapshot: snapshot,
		Timestamp:    s.clock(),
	}, s.cfg.ProgressLimit)
	s.store(ctx, ProgressKey(user), list, degraded)
	return list, nil
}

// Progress lists the recorded entries, newest first.
func (s *Store) Progress(ctx context.Context, user uuid.UUID) ([]Progress, error) {
	if user == uuid.Nil {
		return nil, internal.NewValidationFieldError("user_id", "user id is required", internal.ErrCodeInvalidUserID)
	}
	unlock := s.lock(user)
	defer unlock()
	list, _ := s.progress(ctx, user)
	return list, nil
}

func (s *Store) progress(ctx context.Context, user uuid.UUID) ([]Progress, bool) {
	var list []Progress
	found, degraded := s.current(ctx, ProgressKey(user), &list)
	if !found {
		return nil, degraded
	}
	SortNewestFirst(list)
	return list, degraded
}

// current decodes key into dst. When the store cannot be read it falls back to
// the session copy and reports degraded; a successful read drops that copy.
func (s *Store) current(ctx context.Context, key string, dst interface{}) (found, degraded bool) {
	found, err := s.read(ctx, key, dst)
	if err == nil {
		s.session.Remove(key)
		return found, false
	}
	if raw, ok := s.session.Get(key); ok && json.Unmarshal(raw, dst) == nil {
		return true, true
	}
	return false, true
}

// store writes value through to the KV, or keeps it for the session only when
// it was derived from a failed read.
func (s *Store) store(ctx context.Context, key string, value interface{}, degraded bool) {
	if !degraded {
		s.write(ctx, key, value)
		return
	}
	raw, err := json.Marshal(value)
	if err != nil {
		s.logger.Error("failed to encode preference value", "key", key, "error", err)
		return
	}
	s.session.Add(key, raw)
	s.logger.Warn("store unreadable, keeping value for the session only", "key", key)
}

// read reports found=false for absent or corrupt values and an error only when
// the store itself failed.
func (s *Store) read(ctx context.Context, key string, dst interface{}) (bool, error) {
	ctx, cancel := internal.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	raw, err := s.kv.Get(ctx, key)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		s.logger.Error("stored preference value is corrupt", "key", key, "error", err)
		return false, nil
	}
	return true, nil
}

func (s *Store) write(ctx context.Context, key string, value interface{}) {
	raw, err := json.Marshal(value)
	if err != nil {
		s.logger.Error("failed to encode preference value", "key", key, "error", err)
		return
	}

	ctx, cancel := internal.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()
	if err := s.kv.Set(ctx, key, raw); err != nil {
		s.logger.Warn("failed to persist preference value", "key", key, "error", err)
	}
}

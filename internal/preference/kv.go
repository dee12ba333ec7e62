package preference

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/frahmantamala/care-access/internal/core/observability"
	"github.com/hashicorp/golang-lru/v2/expirable"
)

var ErrNotFound = errors.New("preference key not found")

// KV is durable per-key storage for serialized preferences and progress.
type KV interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
}

// MemoryKV keeps everything in process. Used when no durable backend is configured.
type MemoryKV struct {
	mu   sync.RWMutex
	data map[string][]byte
}

func NewMemoryKV() *MemoryKV {
	return &MemoryKV{data: make(map[string][]byte)}
}

func (m *MemoryKV) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[key]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), v...), nil
}

func (m *MemoryKV) Set(_ context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = append([]byte(nil), value...)
	return nil
}

// ResilientKV never fails a write. A value the backend refused is kept in a
// session overlay, and reads prefer the overlay until a later write lands.
type ResilientKV struct {
	backend KV
	overlay *expirable.LRU[string, []byte]
	metrics *observability.Metrics
	logger  *slog.Logger
}

func NewResilientKV(backend KV, size int, ttl time.Duration, metrics *observability.Metrics, logger *slog.Logger) *ResilientKV {
	if size <= 0 {
		size = 1024
	}
	return &ResilientKV{
		backend: backend,
		overlay: expirable.NewLRU[string, []byte](size, nil, ttl),
		metrics: metrics,
		logger:  logger,
	}
}

// Get returns ErrNotFound for absent keys and the backend error when it cannot read.
func (r *ResilientKV) Get(ctx context.Context, key string) ([]byte, error) {
	if v, ok := r.overlay.Get(key); ok {
		return v, nil
	}
	v, err := r.backend.Get(ctx, key)
	if err != nil && !errors.Is(err, ErrNotFound) {
		r.metrics.PreferenceFailure("read")
		r.logger.Warn("preference read failed", "key", key, "error", err)
	}
	return v, err
}

func (r *ResilientKV) Set(ctx context.Context, key string, value []byte) error {
	if err := r.backend.Set(ctx, key, value); err != nil {
		r.metrics.PreferenceFailure("write")
		r.logger.Warn("preference write failed, keeping value for the session", "key", key, "error", err)
		r.overlay.Add(key, append([]byte(nil), value...))
		return nil
	}
	r.overlay.Remove(key)
	return nil
}

// Pending is the number of values waiting in the overlay.
func (r *ResilientKV) Pending() int {
	return r.overlay.Len()
}

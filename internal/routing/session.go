package routing

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"
)

type State string

const (
	StateIdle      State = "idle"
	StateResolving State = "resolving"
	StateDecided   State = "decided"
	StateNavigated State = "navigated"
	StateSuspended State = "suspended"
)

// Terminal reports whether routing has finished for the session.
func (s State) Terminal() bool {
	return s == StateNavigated || s == StateSuspended
}

// Session is the routing state of one user's login.
type Session struct {
	mu sync.Mutex

	user       uuid.UUID
	state      State
	location   string
	decision   *Decision
	reason     string
	generation uint64
	startedAt  time.Time
}

// SessionView is a copy of a session safe to hand out.
type SessionView struct {
	State     State     `json:"state"`
	Location  string    `json:"location"`
	Decision  *Decision `json:"decision,omitempty"`
	Reason    string    `json:"reason,omitempty"`
	StartedAt time.Time `json:"started_at"`
}

func (s *Session) view() SessionView {
	v := SessionView{
		State:     s.state,
		Location:  s.location,
		Reason:    s.reason,
		StartedAt: s.startedAt,
	}
	if s.decision != nil {
		d := *s.decision
		v.Decision = &d
	}
	return v
}

type sessionTable struct {
	mu    sync.Mutex
	items *expirable.LRU[uuid.UUID, *Session]
	clock func() time.Time
}

func newSessionTable(size int, ttl time.Duration, clock func() time.Time) *sessionTable {
	return &sessionTable{
		items: expirable.NewLRU[uuid.UUID, *Session](size, nil, ttl),
		clock: clock,
	}
}

func (t *sessionTable) get(user uuid.UUID) *Session {
	t.mu.Lock()
	defer t.mu.Unlock()
	if s, ok := t.items.Get(user); ok {
		return s
	}
	s := &Session{user: user, state: StateIdle, startedAt: t.clock()}
	t.items.Add(user, s)
	return s
}

// reset replaces the user's session with a fresh idle one.
func (t *sessionTable) reset(user uuid.UUID) *Session {
	t.mu.Lock()
	defer t.mu.Unlock()
	s := &Session{user: user, state: StateIdle, startedAt: t.clock()}
	t.items.Add(user, s)
	return s
}

func (t *sessionTable) len() int {
	return t.items.Len()
}

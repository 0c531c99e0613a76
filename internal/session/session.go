package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dgellow/authbridge/internal/log"
	"github.com/dgellow/authbridge/internal/storage"
)

const (
	// ReasonUserLogout is recorded when the user logs out explicitly
	ReasonUserLogout = "user"
	// ReasonSessionExpired is recorded when a backend call returned 401
	ReasonSessionExpired = "session_expired"
)

// State is the process-wide authentication state consulted by route guards
type State struct {
	IsAuthenticated bool            `json:"isAuthenticated"`
	User            json.RawMessage `json:"user,omitempty"`
	LogoutReason    string          `json:"logoutReason,omitempty"`
	UpdatedAt       time.Time       `json:"updatedAt"`
}

// Action is a state transition. The set of actions is closed.
type Action interface {
	apply(prev State, now time.Time) State
	Name() string
}

// LoginSucceeded records a completed login and the identity payload the
// provider returned
type LoginSucceeded struct {
	User json.RawMessage
}

func (LoginSucceeded) Name() string { return "login_succeeded" }

func (a LoginSucceeded) apply(_ State, now time.Time) State {
	return State{IsAuthenticated: true, User: a.User, UpdatedAt: now}
}

// Logout clears the authentication flag and user data
type Logout struct {
	Reason string
}

func (Logout) Name() string { return "logout" }

func (a Logout) apply(_ State, now time.Time) State {
	return State{IsAuthenticated: false, LogoutReason: a.Reason, UpdatedAt: now}
}

// Listener observes every dispatched transition. Listeners run
// synchronously inside Dispatch and must not dispatch themselves.
type Listener func(action Action, prev, next State)

// Dispatcher is the write side of the store
type Dispatcher interface {
	Dispatch(ctx context.Context, action Action) (State, error)
}

// Store holds the session state and persists it to a storage.Store under a
// fixed key. State only changes through Dispatch.
type Store struct {
	dispatchMu sync.Mutex

	mu     sync.RWMutex
	state  State
	subs   map[int]Listener
	nextID int

	kv  storage.Store
	key string
	now func() time.Time
}

// NewStore creates a store persisting to kv under "<namespace>:session"
func NewStore(kv storage.Store, namespace string) *Store {
	return &Store{
		subs: make(map[int]Listener),
		kv:   kv,
		key:  storage.Key(namespace, "session"),
		now:  time.Now,
	}
}

// Key returns the durable key the state is persisted under
func (s *Store) Key() string {
	return s.key
}

// Restore loads the persisted state. A missing key leaves the store logged out.
func (s *Store) Restore(ctx context.Context) error {
	data, err := s.kv.Get(ctx, s.key)
	if errors.Is(err, storage.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("loading session state: %w", err)
	}

	var st State
	if err := json.Unmarshal(data, &st); err != nil {
		return fmt.Errorf("decoding session state: %w", err)
	}

	s.mu.Lock()
	s.state = st
	s.mu.Unlock()

	log.LogDebugWithFields("session", "Restored session state", map[string]any{
		"authenticated": st.IsAuthenticated,
	})
	return nil
}

// State returns a snapshot of the current state
func (s *Store) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// IsAuthenticated is the route-guard query
func (s *Store) IsAuthenticated() bool {
	return s.State().IsAuthenticated
}

// Dispatch applies action, persists the new state and notifies listeners.
// The in-memory state is updated even when persisting fails so that
// readers never see a state older than the last observed outcome.
func (s *Store) Dispatch(ctx context.Context, action Action) (State, error) {
	s.dispatchMu.Lock()
	defer s.dispatchMu.Unlock()

	s.mu.Lock()
	prev := s.state
	next := action.apply(prev, s.now())
	s.state = next
	listeners := make([]Listener, 0, len(s.subs))
	for _, fn := range s.subs {
		listeners = append(listeners, fn)
	}
	s.mu.Unlock()

	var persistErr error
	data, err := json.Marshal(next)
	if err == nil {
		err = s.kv.Set(ctx, s.key, data, 0)
	}
	if err != nil {
		persistErr = fmt.Errorf("persisting session state: %w", err)
		log.LogErrorWithFields("session", "Failed to persist session state", map[string]any{
			"action": action.Name(),
			"error":  err.Error(),
		})
	}

	log.LogInfoWithFields("session", "Session state changed", map[string]any{
		"action":        action.Name(),
		"authenticated": next.IsAuthenticated,
	})

	for _, fn := range listeners {
		fn(action, prev, next)
	}
	return next, persistErr
}

// Subscribe registers fn and returns a func that removes it
func (s *Store) Subscribe(fn Listener) func() {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.subs[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}
}

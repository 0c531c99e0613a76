// Package guard applies uniform unauthorized-response handling to every
// outbound backend call.
package guard

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/dgellow/authbridge/internal/config"
	"github.com/dgellow/authbridge/internal/log"
	"github.com/dgellow/authbridge/internal/notify"
	"github.com/dgellow/authbridge/internal/session"
	"golang.org/x/time/rate"
)

const dispatchTimeout = 5 * time.Second

// Guard reacts to 401 responses by notifying the user and dispatching a
// logout. Responses and errors are always returned unchanged.
//
// With a non-zero coalesce window, 401s within the window after one that
// was reported are passed through without repeating the side effects.
type Guard struct {
	notifier notify.Notifier
	sessions session.Dispatcher
	message  string
	window   time.Duration

	mu      sync.Mutex
	limiter *rate.Limiter

	// effects serializes the limiter check with the notify and logout
	// that follow it, so a coalesced 401 returns only once the session
	// is already logged out
	effects sync.Mutex
}

// New creates a guard
func New(cfg config.GuardConfig, notifier notify.Notifier, sessions session.Dispatcher) *Guard {
	message := cfg.Message
	if message == "" {
		message = config.DefaultExpiredMessage
	}
	g := &Guard{
		notifier: notifier,
		sessions: sessions,
		message:  message,
		window:   cfg.CoalesceWindow,
	}
	g.limiter = g.newLimiter()
	return g
}

func (g *Guard) newLimiter() *rate.Limiter {
	if g.window <= 0 {
		return nil
	}
	return rate.NewLimiter(rate.Every(g.window), 1)
}

// Observe feeds a completed call's status to the guard. It reports whether
// the logout side effects ran for this call.
func (g *Guard) Observe(ctx context.Context, status int) bool {
	if status != http.StatusUnauthorized {
		return false
	}

	g.effects.Lock()
	defer g.effects.Unlock()

	g.mu.Lock()
	allowed := g.limiter == nil || g.limiter.Allow()
	g.mu.Unlock()

	if !allowed {
		log.LogDebugWithFields("guard", "Coalesced unauthorized response", map[string]any{
			"window": g.window.String(),
		})
		return false
	}

	log.LogWarnWithFields("guard", "Backend reported unauthorized, logging out", nil)
	g.notifier.Notify(notify.LevelError, g.message)

	// the logout must land even if the caller's context is already done
	dctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), dispatchTimeout)
	defer cancel()
	if _, err := g.sessions.Dispatch(dctx, session.Logout{Reason: session.ReasonSessionExpired}); err != nil {
		log.LogErrorWithFields("guard", "Failed to dispatch logout", map[string]any{
			"error": err.Error(),
		})
	}
	return true
}

// Reset re-arms the coalescing window. It is called when the user logs in
// again so the next expiry is reported immediately.
func (g *Guard) Reset() {
	g.mu.Lock()
	g.limiter = g.newLimiter()
	g.mu.Unlock()
}

// ResetOnLogin subscribes the guard to successful logins in store
func (g *Guard) ResetOnLogin(store *session.Store) func() {
	return store.Subscribe(func(action session.Action, prev, next session.State) {
		if _, ok := action.(session.LoginSucceeded); ok && next.IsAuthenticated {
			g.Reset()
		}
	})
}

// CallFunc is any request-executing primitive that reports an HTTP status
type CallFunc[T any] func(ctx context.Context) (T, int, error)

// Wrap returns fn with the guard's 401 handling applied. Errors returned by
// fn are propagated without inspection.
func Wrap[T any](g *Guard, fn CallFunc[T]) CallFunc[T] {
	return func(ctx context.Context) (T, int, error) {
		result, status, err := fn(ctx)
		if err != nil {
			return result, status, err
		}
		g.Observe(ctx, status)
		return result, status, nil
	}
}

// Transport returns an http.RoundTripper that runs every response through
// the guard
func (g *Guard) Transport(next http.RoundTripper) http.RoundTripper {
	if next == nil {
		next = http.DefaultTransport
	}
	return &transport{guard: g, next: next}
}

type transport struct {
	guard *Guard
	next  http.RoundTripper
}

func (t *transport) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := t.next.RoundTrip(req)
	if err != nil {
		return resp, err
	}
	t.guard.Observe(req.Context(), resp.StatusCode)
	return resp, nil
}

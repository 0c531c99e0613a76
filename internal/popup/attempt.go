package popup

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/dgellow/authbridge/internal/window"
)

// State is the lifecycle position of an attempt
type State int

const (
	StateIdle State = iota
	StateOpening
	StateAwaitingResult
	StateSucceeded
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateOpening:
		return "opening"
	case StateAwaitingResult:
		return "awaiting_result"
	case StateSucceeded:
		return "succeeded"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Terminal reports whether no transition leaves s
func (s State) Terminal() bool {
	return s == StateSucceeded || s == StateFailed
}

// Result is the single outcome of an attempt. Exactly one of Payload and
// Err is meaningful.
type Result struct {
	Payload json.RawMessage
	Err     error
}

// Attempt is one login-via-popup operation from initiation to settlement.
// Every event (message, poll tick, timeout, cancel) takes mu, and the first
// terminal transition wins.
type Attempt struct {
	id          string
	provider    string
	correlation string
	authURL     string
	markerKey   string
	createdAt   time.Time
	orch        *Orchestrator

	mu             sync.Mutex
	state          State
	settled        bool
	win            window.Window
	removeListener func()
	stopPoll       chan struct{}
	timer          *time.Timer
	result         Result

	done chan struct{}
}

func (a *Attempt) ID() string           { return a.id }
func (a *Attempt) Provider() string     { return a.provider }
func (a *Attempt) AuthURL() string      { return a.authURL }
func (a *Attempt) CreatedAt() time.Time { return a.createdAt }

// MarkerKey is the durable key present while the attempt is in flight
func (a *Attempt) MarkerKey() string { return a.markerKey }

func (a *Attempt) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// Done is closed once the attempt has settled and its side effects
// (session dispatch, notification) have run
func (a *Attempt) Done() <-chan struct{} {
	return a.done
}

// Result returns the outcome and whether the attempt has settled
func (a *Attempt) Result() (Result, bool) {
	select {
	case <-a.done:
		return a.result, true
	default:
		return Result{}, false
	}
}

// Wait blocks until the attempt settles or ctx is done. A done ctx leaves
// the attempt running.
func (a *Attempt) Wait(ctx context.Context) (json.RawMessage, error) {
	select {
	case <-a.done:
		return a.result.Payload, a.result.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

const (
	causeMessage        = "message"
	causeClosed         = "popup_closed"
	causeClosedUnmarked = "popup_closed_unmarked"
	causeBlocked        = "popup_blocked"
	causeTimeout        = "timeout"
	causeCancel         = "cancel"
	causeError          = "error"
)

// Cancel settles the attempt as Cancelled. It reports false if the attempt
// had already settled.
func (a *Attempt) Cancel() bool {
	return a.settle(Result{Err: newError(KindCancelled, MessageCancelled)}, causeCancel)
}

func (a *Attempt) settle(r Result, cause string) bool {
	a.mu.Lock()
	settled := a.settleLocked(r, cause)
	a.mu.Unlock()

	if settled {
		a.finish(cause)
	}
	return settled
}

// settleLocked is the only path to a terminal state. First writer wins.
func (a *Attempt) settleLocked(r Result, cause string) bool {
	if a.settled {
		return false
	}
	a.settled = true
	a.result = r
	if r.Err == nil {
		a.state = StateSucceeded
	} else {
		a.state = StateFailed
	}
	a.teardownLocked(cause)
	return true
}

func (a *Attempt) finish(cause string) {
	a.orch.finish(a, cause)
	close(a.done)
}

// teardownLocked stops everything that could produce another event for
// this attempt and closes the popup
func (a *Attempt) teardownLocked(cause string) {
	if a.stopPoll != nil {
		close(a.stopPoll)
		a.stopPoll = nil
	}
	if a.removeListener != nil {
		a.removeListener()
		a.removeListener = nil
	}
	if a.timer != nil {
		a.timer.Stop()
		a.timer = nil
	}
	// the poll path has already taken the marker
	if cause != causeClosed {
		a.orch.clearMarker(a)
	}
	if a.win != nil && !a.win.Closed() {
		a.orch.closeWindow(a)
	}
}

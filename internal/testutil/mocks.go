package testutil

import (
	"context"
	"net/url"
	"sync"
	"sync/atomic"

	"github.com/dgellow/authbridge/internal/notify"
	"github.com/dgellow/authbridge/internal/session"
	"github.com/dgellow/authbridge/internal/window"
	"github.com/stretchr/testify/mock"
)

// FakeWindow is a popup whose closed flag the test controls. CloseAfter
// makes Closed start returning true after that many calls, which stands in
// for the user closing the popup between poll ticks.
type FakeWindow struct {
	closed      atomic.Bool
	closeCalls  atomic.Int32
	closedCalls atomic.Int32
	CloseAfter  int32
}

func (w *FakeWindow) Closed() bool {
	n := w.closedCalls.Add(1)
	if w.CloseAfter > 0 && n > w.CloseAfter {
		w.closed.Store(true)
	}
	return w.closed.Load()
}

func (w *FakeWindow) Close() error {
	w.closeCalls.Add(1)
	w.closed.Store(true)
	return nil
}

// UserClose marks the popup closed as if the user closed it
func (w *FakeWindow) UserClose() { w.closed.Store(true) }

// CloseCalls returns how many times Close was called
func (w *FakeWindow) CloseCalls() int { return int(w.closeCalls.Load()) }

// ClosedChecks returns how many times Closed was called
func (w *FakeWindow) ClosedChecks() int { return int(w.closedCalls.Load()) }

// FakeOpener records opened URLs and returns Window. A nil Window simulates
// a blocked popup.
type FakeOpener struct {
	mu     sync.Mutex
	URLs   []string
	Window window.Window
	Err    error
	// Before runs inside Open before it returns
	Before func()
}

func (o *FakeOpener) Open(_ context.Context, u string, _ window.Features) (window.Window, error) {
	o.mu.Lock()
	o.URLs = append(o.URLs, u)
	before := o.Before
	o.mu.Unlock()

	if before != nil {
		before()
	}
	if o.Err != nil {
		return nil, o.Err
	}
	return o.Window, nil
}

// Opened returns the URLs opened so far
func (o *FakeOpener) Opened() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]string, len(o.URLs))
	copy(out, o.URLs)
	return out
}

// RecordingNotifier keeps every notification it receives
type RecordingNotifier struct {
	mu            sync.Mutex
	Notifications []notify.Notification
}

func (r *RecordingNotifier) Notify(level notify.Level, message string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Notifications = append(r.Notifications, notify.Notification{Level: level, Message: message})
}

// Messages returns the recorded notification texts in order
func (r *RecordingNotifier) Messages() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.Notifications))
	for _, n := range r.Notifications {
		out = append(out, n.Message)
	}
	return out
}

// MockDispatcher is a testify mock of session.Dispatcher
type MockDispatcher struct {
	mock.Mock
}

func (m *MockDispatcher) Dispatch(ctx context.Context, action session.Action) (session.State, error) {
	args := m.Called(ctx, action)
	return args.Get(0).(session.State), args.Error(1)
}

// StubProvider builds authorization URLs without talking to a provider
type StubProvider struct {
	AuthorizeURL string
}

func (p StubProvider) AuthURL(state string) string {
	u, _ := url.Parse(p.AuthorizeURL)
	q := u.Query()
	q.Set("state", state)
	u.RawQuery = q.Encode()
	return u.String()
}

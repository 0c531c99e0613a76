package window

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dgellow/authbridge/internal/log"
)

// ErrUnknownWindow is returned when a report names a window that isn't tracked
var ErrUnknownWindow = errors.New("unknown window")

// CommandType tells the dashboard what to do with a popup
type CommandType string

const (
	CommandOpen  CommandType = "open"
	CommandClose CommandType = "close"
)

// Command is sent to the connected dashboard
type Command struct {
	Type     CommandType `json:"type"`
	WindowID string      `json:"windowId"`
	URL      string      `json:"url,omitempty"`
	Name     string      `json:"name,omitempty"`
	Width    int         `json:"width,omitempty"`
	Height   int         `json:"height,omitempty"`
}

// Status is what the dashboard reports about a popup
type Status string

const (
	StatusOpened  Status = "opened"
	StatusBlocked Status = "blocked"
	StatusClosed  Status = "closed"
)

// RemoteOpener opens popups through the dashboard. Open sends an open
// command to subscribers and waits for the dashboard to report the popup
// opened or blocked. Later "closed" reports feed the window's Closed flag,
// which is what the liveness poll reads.
//
// Window ids are callback tokens: the acknowledgement is a one-shot
// delivery to the Open call that is waiting for it.
type RemoteOpener struct {
	ackTimeout time.Duration
	acks       *CallbackRegistry[Status]

	mu      sync.Mutex
	windows map[string]*remoteWindow
	subs    map[int]chan Command
	nextSub int
}

// NewRemoteOpener creates an opener that waits up to ackTimeout for the
// dashboard to acknowledge each popup
func NewRemoteOpener(ackTimeout time.Duration) *RemoteOpener {
	return &RemoteOpener{
		ackTimeout: ackTimeout,
		acks:       NewCallbackRegistry[Status](),
		windows:    make(map[string]*remoteWindow),
		subs:       make(map[int]chan Command),
	}
}

type remoteWindow struct {
	id     string
	opener *RemoteOpener

	mu     sync.Mutex
	closed bool
}

func (w *remoteWindow) Closed() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closed
}

func (w *remoteWindow) Close() error {
	w.mu.Lock()
	already := w.closed
	w.closed = true
	w.mu.Unlock()

	w.opener.forget(w.id)
	if !already {
		w.opener.publish(Command{Type: CommandClose, WindowID: w.id})
	}
	return nil
}

func (o *RemoteOpener) Open(ctx context.Context, url string, features Features) (Window, error) {
	acked := make(chan Status, 1)
	id, unregister, err := o.acks.Register(func(status Status) {
		acked <- status
	})
	if err != nil {
		return nil, err
	}

	o.mu.Lock()
	subscribers := len(o.subs)
	o.mu.Unlock()

	if subscribers == 0 {
		unregister()
		log.LogWarnWithFields("window", "No dashboard connected to open popup", nil)
		return nil, nil
	}

	o.publish(Command{
		Type:     CommandOpen,
		WindowID: id,
		URL:      url,
		Name:     features.Name,
		Width:    features.Width,
		Height:   features.Height,
	})

	timer := time.NewTimer(o.ackTimeout)
	defer timer.Stop()

	select {
	case status := <-acked:
		if status == StatusBlocked {
			return nil, nil
		}
		w := &remoteWindow{id: id, opener: o}
		o.mu.Lock()
		o.windows[id] = w
		o.mu.Unlock()
		return w, nil
	case <-timer.C:
		o.abandon(id, unregister, acked)
		log.LogWarnWithFields("window", "Dashboard did not acknowledge popup", map[string]any{
			"window":  id,
			"timeout": o.ackTimeout.String(),
		})
		return nil, nil
	case <-ctx.Done():
		o.abandon(id, unregister, acked)
		return nil, fmt.Errorf("waiting for popup acknowledgement: %w", ctx.Err())
	}
}

// abandon drops the pending acknowledgement for id. If a report raced the
// give-up and the popup did open, the dashboard is told to close it since
// nothing will track or close it otherwise.
func (o *RemoteOpener) abandon(id string, unregister func() bool, acked <-chan Status) {
	if unregister() {
		return
	}
	if status := <-acked; status == StatusOpened {
		log.LogWarnWithFields("window", "Closing popup acknowledged after give-up", map[string]any{
			"window": id,
		})
		o.publish(Command{Type: CommandClose, WindowID: id})
	}
}

// Report records a status sent by the dashboard for window id
func (o *RemoteOpener) Report(id string, status Status) error {
	switch status {
	case StatusOpened, StatusBlocked:
		if !o.acks.Deliver(id, status) {
			return ErrUnknownWindow
		}
	case StatusClosed:
		o.mu.Lock()
		w, ok := o.windows[id]
		o.mu.Unlock()
		if !ok {
			return ErrUnknownWindow
		}
		w.mu.Lock()
		w.closed = true
		w.mu.Unlock()
		o.forget(id)
	default:
		return fmt.Errorf("unknown window status %q", status)
	}
	return nil
}

// Subscribe returns a channel of commands for one dashboard connection
func (o *RemoteOpener) Subscribe(buffer int) (<-chan Command, func()) {
	ch := make(chan Command, buffer)

	o.mu.Lock()
	id := o.nextSub
	o.nextSub++
	o.subs[id] = ch
	o.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			o.mu.Lock()
			delete(o.subs, id)
			o.mu.Unlock()
			close(ch)
		})
	}
}

func (o *RemoteOpener) publish(cmd Command) {
	o.mu.Lock()
	defer o.mu.Unlock()
	for _, ch := range o.subs {
		select {
		case ch <- cmd:
		default:
			log.LogWarnWithFields("window", "Dropping popup command for slow subscriber", map[string]any{
				"type":   string(cmd.Type),
				"window": cmd.WindowID,
			})
		}
	}
}

func (o *RemoteOpener) forget(id string) {
	o.mu.Lock()
	delete(o.windows, id)
	o.mu.Unlock()
}

// Tracked returns the number of popups awaiting acknowledgement or closure
func (o *RemoteOpener) Tracked() int {
	o.mu.Lock()
	open := len(o.windows)
	o.mu.Unlock()
	return open + o.acks.Len()
}

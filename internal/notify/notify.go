// Package notify fans user-visible notifications out to subscribers.
// The dashboard renders them as toasts.
package notify

import (
	"sync"
	"time"

	"github.com/dgellow/authbridge/internal/log"
)

// Level is the severity of a notification
type Level string

const (
	LevelInfo    Level = "info"
	LevelSuccess Level = "success"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

// Notification is one user-visible message
type Notification struct {
	Level   Level     `json:"level"`
	Message string    `json:"message"`
	At      time.Time `json:"at"`
}

// Notifier surfaces a message to the user
type Notifier interface {
	Notify(level Level, message string)
}

// NotifierFunc adapts a function to Notifier
type NotifierFunc func(level Level, message string)

func (f NotifierFunc) Notify(level Level, message string) { f(level, message) }

// Hub delivers notifications to every subscriber. Slow subscribers lose
// notifications rather than blocking the sender.
type Hub struct {
	mu     sync.Mutex
	subs   map[int]chan Notification
	nextID int
	recent []Notification
	keep   int
	now    func() time.Time
}

// NewHub creates a hub that keeps the last keep notifications for late
// subscribers
func NewHub(keep int) *Hub {
	return &Hub{
		subs: make(map[int]chan Notification),
		keep: keep,
		now:  time.Now,
	}
}

var _ Notifier = (*Hub)(nil)

func (h *Hub) Notify(level Level, message string) {
	n := Notification{Level: level, Message: message, At: h.now()}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.keep > 0 {
		h.recent = append(h.recent, n)
		if len(h.recent) > h.keep {
			h.recent = h.recent[len(h.recent)-h.keep:]
		}
	}

	for id, ch := range h.subs {
		select {
		case ch <- n:
		default:
			log.LogWarnWithFields("notify", "Dropping notification for slow subscriber", map[string]any{
				"subscriber": id,
				"message":    message,
			})
		}
	}
}

// Subscribe returns a channel of notifications and a func that closes it
func (h *Hub) Subscribe(buffer int) (<-chan Notification, func()) {
	ch := make(chan Notification, buffer)

	h.mu.Lock()
	id := h.nextID
	h.nextID++
	h.subs[id] = ch
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, id)
			h.mu.Unlock()
			close(ch)
		})
	}
}

// Recent returns the retained notifications, oldest first
func (h *Hub) Recent() []Notification {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]Notification, len(h.recent))
	copy(out, h.recent)
	return out
}

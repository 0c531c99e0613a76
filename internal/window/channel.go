package window

import (
	"sync"

	"github.com/dgellow/authbridge/internal/protocol"
)

// Listener receives every message posted on a Channel
type Listener func(msg protocol.InboundMessage)

// Channel is the host window's message channel. Every listener sees every
// message; filtering is the listener's job.
type Channel struct {
	mu        sync.Mutex
	listeners map[int]Listener
	nextID    int
}

// NewChannel creates a channel with no listeners
func NewChannel() *Channel {
	return &Channel{listeners: make(map[int]Listener)}
}

// Listen registers fn and returns a func that removes it. The returned
// func is safe to call more than once.
func (c *Channel) Listen(fn Listener) func() {
	c.mu.Lock()
	id := c.nextID
	c.nextID++
	c.listeners[id] = fn
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		delete(c.listeners, id)
		c.mu.Unlock()
	}
}

// Post delivers msg to the current listeners synchronously. Listeners may
// remove themselves while being called.
func (c *Channel) Post(msg protocol.InboundMessage) {
	c.mu.Lock()
	listeners := make([]Listener, 0, len(c.listeners))
	for _, fn := range c.listeners {
		listeners = append(listeners, fn)
	}
	c.mu.Unlock()

	for _, fn := range listeners {
		fn(msg)
	}
}

// Len returns the number of registered listeners
func (c *Channel) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.listeners)
}

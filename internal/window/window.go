// Package window models the browser primitives the popup flow relies on:
// opening a popup, watching whether it is still open, and the host
// window's message channel.
package window

import "context"

// Window is a handle to an opened popup
type Window interface {
	// Closed reports whether the popup has been closed, by the user or by Close
	Closed() bool
	// Close closes the popup. Closing an already closed popup is a no-op.
	Close() error
}

// Features describes the popup to open
type Features struct {
	Name   string
	Width  int
	Height int
}

// Opener opens popups. A nil Window with a nil error means the popup was
// blocked.
type Opener interface {
	Open(ctx context.Context, url string, features Features) (Window, error)
}

// OpenerFunc adapts a function to Opener
type OpenerFunc func(ctx context.Context, url string, features Features) (Window, error)

func (f OpenerFunc) Open(ctx context.Context, url string, features Features) (Window, error) {
	return f(ctx, url, features)
}

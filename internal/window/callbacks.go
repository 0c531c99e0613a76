package window

import (
	"fmt"
	"sync"

	"github.com/dgellow/authbridge/internal/crypto"
)

// CallbackRegistry holds one-shot callbacks for injected third-party
// widgets. Each widget instance gets its own random token so several
// mounted instances never overwrite each other's handler.
type CallbackRegistry[T any] struct {
	mu        sync.Mutex
	callbacks map[string]func(T)
}

// NewCallbackRegistry creates an empty registry
func NewCallbackRegistry[T any]() *CallbackRegistry[T] {
	return &CallbackRegistry[T]{callbacks: make(map[string]func(T))}
}

// Register stores fn and returns the token the widget must echo back.
// The returned func unregisters fn without delivering. It reports false
// when a Deliver already claimed fn, in which case fn runs regardless.
func (r *CallbackRegistry[T]) Register(fn func(T)) (string, func() bool, error) {
	token, err := crypto.GenerateSecureToken()
	if err != nil {
		return "", nil, fmt.Errorf("generating callback token: %w", err)
	}

	r.mu.Lock()
	r.callbacks[token] = fn
	r.mu.Unlock()

	return token, func() bool {
		r.mu.Lock()
		defer r.mu.Unlock()
		_, pending := r.callbacks[token]
		delete(r.callbacks, token)
		return pending
	}, nil
}

// Deliver calls and removes the callback registered under token.
// It reports false for unknown or already delivered tokens.
func (r *CallbackRegistry[T]) Deliver(token string, value T) bool {
	r.mu.Lock()
	fn, ok := r.callbacks[token]
	delete(r.callbacks, token)
	r.mu.Unlock()

	if !ok {
		return false
	}
	fn(value)
	return true
}

// Len returns the number of pending callbacks
func (r *CallbackRegistry[T]) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.callbacks)
}

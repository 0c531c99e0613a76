package popup

import "errors"

// Kind classifies why an attempt failed
type Kind string

const (
	KindPopupBlocked      Kind = "popup_blocked"
	KindCancelled         Kind = "cancelled"
	KindProviderError     Kind = "provider_error"
	KindTimedOut          Kind = "timed_out"
	KindAlreadyInProgress Kind = "already_in_progress"
)

const (
	MessagePopupBlocked      = "Popup blocked. Please allow popups for this site and try again."
	MessageCancelled         = "Authentication cancelled"
	MessageTimedOut          = "Authentication timed out"
	MessageAlreadyInProgress = "Authentication already in progress"
	MessageSucceeded         = "Authentication successful"
)

// AuthError is the typed failure of an attempt
type AuthError struct {
	Kind    Kind
	Message string
}

func (e *AuthError) Error() string {
	if e.Message == "" {
		return string(e.Kind)
	}
	return e.Message
}

// Is matches any AuthError of the same kind, so errors.Is works against
// the sentinels below regardless of message
func (e *AuthError) Is(target error) bool {
	var t *AuthError
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind
}

var (
	ErrPopupBlocked      = &AuthError{Kind: KindPopupBlocked, Message: MessagePopupBlocked}
	ErrCancelled         = &AuthError{Kind: KindCancelled, Message: MessageCancelled}
	ErrProviderError     = &AuthError{Kind: KindProviderError}
	ErrTimedOut          = &AuthError{Kind: KindTimedOut, Message: MessageTimedOut}
	ErrAlreadyInProgress = &AuthError{Kind: KindAlreadyInProgress, Message: MessageAlreadyInProgress}
)

func newError(kind Kind, message string) *AuthError {
	return &AuthError{Kind: kind, Message: message}
}

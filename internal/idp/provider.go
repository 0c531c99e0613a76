package idp

import (
	"context"

	"golang.org/x/oauth2"
)

// Identity is the user profile returned after a successful login. It is the
// payload the callback page posts back to the orchestrator.
type Identity struct {
	ProviderType  string   `json:"provider_type"`
	Subject       string   `json:"sub"`
	Login         string   `json:"login"`
	Email         string   `json:"email"`
	EmailVerified bool     `json:"email_verified"`
	Name          string   `json:"name"`
	Picture       string   `json:"picture"`
	Domain        string   `json:"domain"`
	Organizations []string `json:"organizations,omitempty"`
}

// Provider abstracts the third-party login provider.
type Provider interface {
	// Type returns the provider type identifier (e.g. "github").
	Type() string

	// AuthURL generates the authorization URL for the popup.
	AuthURL(state string) string

	// ExchangeCode exchanges an authorization code for tokens.
	ExchangeCode(ctx context.Context, code string) (*oauth2.Token, error)

	// UserInfo fetches the identity behind token.
	UserInfo(ctx context.Context, token *oauth2.Token) (*Identity, error)
}

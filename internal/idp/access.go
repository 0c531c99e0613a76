package idp

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/dgellow/authbridge/internal/emailutil"
	"golang.org/x/oauth2"
)

// ErrAccessDenied is returned by UserInfo when the identity authenticated
// but is not on the configured allow-lists
var ErrAccessDenied = errors.New("access denied")

// restrictedProvider enforces domain and organization allow-lists on top
// of another provider. A user passes when either list admits them.
type restrictedProvider struct {
	Provider
	domains []string
	orgs    []string
}

// Restrict wraps p so UserInfo rejects identities outside the allow-lists.
// With both lists empty p is returned unchanged.
func Restrict(p Provider, allowedDomains, allowedOrgs []string) Provider {
	if len(allowedDomains) == 0 && len(allowedOrgs) == 0 {
		return p
	}
	r := &restrictedProvider{Provider: p}
	for _, d := range allowedDomains {
		r.domains = append(r.domains, strings.ToLower(strings.TrimSpace(d)))
	}
	for _, o := range allowedOrgs {
		r.orgs = append(r.orgs, strings.ToLower(strings.TrimSpace(o)))
	}
	return r
}

func (r *restrictedProvider) UserInfo(ctx context.Context, token *oauth2.Token) (*Identity, error) {
	identity, err := r.Provider.UserInfo(ctx, token)
	if err != nil {
		return nil, err
	}
	if r.admits(identity) {
		return identity, nil
	}
	return nil, fmt.Errorf("%w: %s is not a member of an allowed domain or organization", ErrAccessDenied, identity.Login)
}

func (r *restrictedProvider) admits(identity *Identity) bool {
	// an unverified address proves nothing about the domain
	if identity.EmailVerified {
		domain := identity.Domain
		if domain == "" {
			domain = emailutil.Domain(identity.Email)
		}
		if domain != "" && slices.Contains(r.domains, strings.ToLower(domain)) {
			return true
		}
	}
	for _, org := range identity.Organizations {
		if slices.Contains(r.orgs, strings.ToLower(org)) {
			return true
		}
	}
	return false
}

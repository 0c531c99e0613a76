package idp

import (
	"context"
	"fmt"

	"github.com/dgellow/authbridge/internal/config"
)

// NewProvider creates a Provider based on the ProviderConfig, wrapped with
// the configured allow-lists. OIDC and Azure fetch their discovery
// document here, bounded by ctx.
func NewProvider(ctx context.Context, cfg config.ProviderConfig) (Provider, error) {
	var p Provider
	switch cfg.Kind {
	case config.ProviderGitHub:
		p = NewGitHubProvider(cfg)
	case config.ProviderGoogle:
		p = NewGoogleProvider(cfg)
	case config.ProviderAzure:
		azure, err := NewAzureProvider(ctx, cfg)
		if err != nil {
			return nil, err
		}
		p = azure
	case config.ProviderOIDC:
		oidc, err := NewOIDCProvider(ctx, OIDCConfig{
			ProviderType:     "oidc",
			DiscoveryURL:     cfg.DiscoveryURL,
			AuthorizationURL: cfg.AuthorizeURL,
			TokenURL:         cfg.TokenURL,
			UserInfoURL:      cfg.UserInfoURL,
			ClientID:         cfg.ClientID,
			ClientSecret:     string(cfg.ClientSecret),
			RedirectURI:      cfg.RedirectURI,
			Scopes:           cfg.Scopes,
		})
		if err != nil {
			return nil, err
		}
		p = oidc
	default:
		return nil, fmt.Errorf("unknown provider type: %s", cfg.Kind)
	}
	return Restrict(p, cfg.AllowedDomains, cfg.AllowedOrgs), nil
}

package idp

import (
	"context"
	"fmt"
	"net/url"

	"github.com/dgellow/authbridge/internal/config"
)

const azureDiscoveryFormat = "https://login.microsoftonline.com/%s/v2.0/.well-known/openid-configuration"

// NewAzureProvider creates a Microsoft Entra ID provider. Entra is OIDC
// compliant, so this is the generic provider pointed at the tenant's
// discovery document. cfg.DiscoveryURL overrides the derived URL.
func NewAzureProvider(ctx context.Context, cfg config.ProviderConfig) (*OIDCProvider, error) {
	if cfg.TenantID == "" {
		return nil, fmt.Errorf("tenantId is required for Azure AD")
	}

	discoveryURL := cfg.DiscoveryURL
	if discoveryURL == "" {
		discoveryURL = fmt.Sprintf(azureDiscoveryFormat, url.PathEscape(cfg.TenantID))
	}

	return NewOIDCProvider(ctx, OIDCConfig{
		ProviderType: "azure",
		DiscoveryURL: discoveryURL,
		ClientID:     cfg.ClientID,
		ClientSecret: string(cfg.ClientSecret),
		RedirectURI:  cfg.RedirectURI,
		Scopes:       cfg.Scopes,
	})
}

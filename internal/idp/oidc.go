package idp

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/dgellow/authbridge/internal/emailutil"
	"github.com/dgellow/authbridge/internal/ioutil"
	"golang.org/x/oauth2"
)

const discoveryTimeout = 10 * time.Second

// OIDCConfig configures a generic OIDC provider. DiscoveryURL wins over
// the direct endpoints when both are set.
type OIDCConfig struct {
	ProviderType string

	DiscoveryURL     string
	AuthorizationURL string
	TokenURL         string
	UserInfoURL      string

	ClientID     string
	ClientSecret string
	RedirectURI  string
	Scopes       []string
}

// OIDCProvider implements Provider for any OIDC-compliant issuer
type OIDCProvider struct {
	providerType string
	config       oauth2.Config
	userInfoURL  string
}

type oidcDiscoveryDocument struct {
	Issuer                string `json:"issuer"`
	AuthorizationEndpoint string `json:"authorization_endpoint"`
	TokenEndpoint         string `json:"token_endpoint"`
	UserInfoEndpoint      string `json:"userinfo_endpoint"`
}

type oidcUserInfoResponse struct {
	Sub               string `json:"sub"`
	Email             string `json:"email"`
	EmailVerified     bool   `json:"email_verified"`
	Name              string `json:"name"`
	PreferredUsername string `json:"preferred_username"`
	Picture           string `json:"picture"`
}

// NewOIDCProvider creates an OIDC provider, fetching the discovery
// document when one is configured. Discovery runs once at startup.
func NewOIDCProvider(ctx context.Context, cfg OIDCConfig) (*OIDCProvider, error) {
	authURL, tokenURL, userInfoURL := cfg.AuthorizationURL, cfg.TokenURL, cfg.UserInfoURL

	if cfg.DiscoveryURL != "" {
		discovery, err := fetchOIDCDiscovery(ctx, cfg.DiscoveryURL)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch OIDC discovery: %w", err)
		}
		authURL = discovery.AuthorizationEndpoint
		tokenURL = discovery.TokenEndpoint
		userInfoURL = discovery.UserInfoEndpoint
	} else if authURL == "" || tokenURL == "" || userInfoURL == "" {
		return nil, fmt.Errorf("either discoveryUrl or all endpoints (authorizeUrl, tokenUrl, userInfoUrl) must be provided")
	}

	scopes := cfg.Scopes
	if len(scopes) == 0 {
		scopes = []string{"openid", "profile", "email"}
	}
	providerType := cfg.ProviderType
	if providerType == "" {
		providerType = "oidc"
	}

	return &OIDCProvider{
		providerType: providerType,
		config: oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURI,
			Scopes:       scopes,
			Endpoint:     oauth2.Endpoint{AuthURL: authURL, TokenURL: tokenURL},
		},
		userInfoURL: userInfoURL,
	}, nil
}

func fetchOIDCDiscovery(ctx context.Context, discoveryURL string) (*oidcDiscoveryDocument, error) {
	ctx, cancel := context.WithTimeout(ctx, discoveryTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, discoveryURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch discovery document: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("discovery endpoint returned status %d: %s", resp.StatusCode, ioutil.Snippet(resp.Body, ioutil.DefaultSnippetLimit))
	}

	var discovery oidcDiscoveryDocument
	if err := json.NewDecoder(resp.Body).Decode(&discovery); err != nil {
		return nil, fmt.Errorf("failed to decode discovery document: %w", err)
	}
	if discovery.AuthorizationEndpoint == "" || discovery.TokenEndpoint == "" || discovery.UserInfoEndpoint == "" {
		return nil, fmt.Errorf("discovery document missing required endpoints")
	}
	return &discovery, nil
}

func (p *OIDCProvider) Type() string {
	return p.providerType
}

// AuthURL asks the issuer to show its account picker inside the popup
func (p *OIDCProvider) AuthURL(state string) string {
	return p.config.AuthCodeURL(state, oauth2.SetAuthURLParam("prompt", "select_account"))
}

func (p *OIDCProvider) ExchangeCode(ctx context.Context, code string) (*oauth2.Token, error) {
	return p.config.Exchange(ctx, code)
}

// UserInfo fetches the identity from the userinfo endpoint.
// TODO: verify the ID token locally once a JWKS cache exists, saving the round trip.
func (p *OIDCProvider) UserInfo(ctx context.Context, token *oauth2.Token) (*Identity, error) {
	resp, err := p.config.Client(ctx, token).Get(p.userInfoURL)
	if err != nil {
		return nil, fmt.Errorf("failed to get user info: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to get user info: status %d: %s", resp.StatusCode, ioutil.Snippet(resp.Body, ioutil.DefaultSnippetLimit))
	}

	var info oidcUserInfoResponse
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, fmt.Errorf("failed to decode user info: %w", err)
	}

	email := emailutil.Normalize(info.Email)
	login := info.PreferredUsername
	if login == "" {
		login, _, _ = strings.Cut(email, "@")
	}
	if login == "" {
		login = info.Sub
	}

	return &Identity{
		ProviderType:  p.providerType,
		Subject:       info.Sub,
		Login:         login,
		Email:         email,
		EmailVerified: info.EmailVerified,
		Name:          info.Name,
		Picture:       info.Picture,
		Domain:        emailutil.Domain(email),
	}, nil
}

package idp

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/dgellow/authbridge/internal/config"
	"github.com/dgellow/authbridge/internal/emailutil"
	"github.com/dgellow/authbridge/internal/ioutil"
	"github.com/dgellow/authbridge/internal/urlutil"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

const defaultGoogleAPI = "https://www.googleapis.com"

// GoogleProvider implements Provider for Google accounts. Workspace
// accounts carry their hosted domain, which the allow-list can check.
type GoogleProvider struct {
	config     oauth2.Config
	apiBaseURL string
}

type googleUserInfo struct {
	ID            string `json:"id"`
	Email         string `json:"email"`
	VerifiedEmail bool   `json:"verified_email"`
	HostedDomain  string `json:"hd"`
	Name          string `json:"name"`
	Picture       string `json:"picture"`
}

// NewGoogleProvider creates a Google OAuth provider. Empty endpoint fields
// fall back to Google's public endpoints.
func NewGoogleProvider(cfg config.ProviderConfig) *GoogleProvider {
	endpoint := google.Endpoint
	if cfg.AuthorizeURL != "" {
		endpoint.AuthURL = cfg.AuthorizeURL
	}
	if cfg.TokenURL != "" {
		endpoint.TokenURL = cfg.TokenURL
	}
	apiBaseURL := defaultGoogleAPI
	if cfg.APIBaseURL != "" {
		apiBaseURL = strings.TrimSuffix(cfg.APIBaseURL, "/")
	}

	return &GoogleProvider{
		config: oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: string(cfg.ClientSecret),
			RedirectURL:  cfg.RedirectURI,
			Scopes:       cfg.Scopes,
			Endpoint:     endpoint,
		},
		apiBaseURL: apiBaseURL,
	}
}

func (p *GoogleProvider) Type() string {
	return "google"
}

// AuthURL always shows the account chooser so a user signed into several
// accounts picks one inside the popup.
func (p *GoogleProvider) AuthURL(state string) string {
	return p.config.AuthCodeURL(state, oauth2.SetAuthURLParam("prompt", "select_account"))
}

func (p *GoogleProvider) ExchangeCode(ctx context.Context, code string) (*oauth2.Token, error) {
	return p.config.Exchange(ctx, code)
}

// UserInfo fetches the profile from the userinfo endpoint. The hosted
// domain wins over the email domain when Google reports one.
func (p *GoogleProvider) UserInfo(ctx context.Context, token *oauth2.Token) (*Identity, error) {
	endpoint, err := urlutil.JoinPath(p.apiBaseURL, "oauth2", "v2", "userinfo")
	if err != nil {
		return nil, err
	}

	resp, err := p.config.Client(ctx, token).Get(endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to get user info: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to get user info: status %d: %s", resp.StatusCode, ioutil.Snippet(resp.Body, ioutil.DefaultSnippetLimit))
	}

	var info googleUserInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, fmt.Errorf("failed to decode user info: %w", err)
	}

	email := emailutil.Normalize(info.Email)
	domain := strings.ToLower(info.HostedDomain)
	if domain == "" {
		domain = emailutil.Domain(email)
	}
	login, _, _ := strings.Cut(email, "@")

	return &Identity{
		ProviderType:  "google",
		Subject:       info.ID,
		Login:         login,
		Email:         email,
		EmailVerified: info.VerifiedEmail,
		Name:          info.Name,
		Picture:       info.Picture,
		Domain:        domain,
	}, nil
}

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
	"golang.org/x/oauth2/github"
)

const defaultGitHubAPI = "https://api.github.com"

// GitHubProvider implements the Provider interface for GitHub OAuth.
// GitHub uses OAuth 2.0 (not OIDC) and has its own API for user info and org membership.
type GitHubProvider struct {
	config     oauth2.Config
	apiBaseURL string
}

// githubUserResponse represents GitHub's user API response.
type githubUserResponse struct {
	ID        int64  `json:"id"`
	Login     string `json:"login"`
	Email     string `json:"email"`
	Name      string `json:"name"`
	AvatarURL string `json:"avatar_url"`
}

// githubEmailResponse represents an email from GitHub's emails API.
type githubEmailResponse struct {
	Email    string `json:"email"`
	Primary  bool   `json:"primary"`
	Verified bool   `json:"verified"`
}

// githubOrgResponse represents an org from GitHub's orgs API.
type githubOrgResponse struct {
	Login string `json:"login"`
}

// NewGitHubProvider creates a GitHub OAuth provider. Empty endpoint fields
// fall back to github.com; set them for GitHub Enterprise.
func NewGitHubProvider(cfg config.ProviderConfig) *GitHubProvider {
	endpoint := github.Endpoint
	if cfg.AuthorizeURL != "" {
		endpoint.AuthURL = cfg.AuthorizeURL
	}
	if cfg.TokenURL != "" {
		endpoint.TokenURL = cfg.TokenURL
	}
	apiBaseURL := defaultGitHubAPI
	if cfg.APIBaseURL != "" {
		apiBaseURL = strings.TrimSuffix(cfg.APIBaseURL, "/")
	}

	return &GitHubProvider{
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

// Type returns the provider type.
func (p *GitHubProvider) Type() string {
	return "github"
}

// AuthURL generates the authorization URL. New users may sign up from the
// login page.
func (p *GitHubProvider) AuthURL(state string) string {
	return p.config.AuthCodeURL(state, oauth2.SetAuthURLParam("allow_signup", "true"))
}

// ExchangeCode exchanges an authorization code for tokens.
func (p *GitHubProvider) ExchangeCode(ctx context.Context, code string) (*oauth2.Token, error) {
	return p.config.Exchange(ctx, code)
}

// UserInfo fetches user identity from GitHub's API.
func (p *GitHubProvider) UserInfo(ctx context.Context, token *oauth2.Token) (*Identity, error) {
	client := p.config.Client(ctx, token)

	user, err := p.fetchUser(client)
	if err != nil {
		return nil, err
	}

	// GitHub only shows verified emails in the profile, so a present email is verified
	email := user.Email
	emailVerified := email != ""
	if email == "" {
		primaryEmail, verified, err := p.fetchPrimaryEmail(client)
		if err != nil {
			return nil, fmt.Errorf("failed to get user email: %w", err)
		}
		email = primaryEmail
		emailVerified = verified
	}

	orgs, err := p.fetchOrganizations(client)
	if err != nil {
		return nil, fmt.Errorf("failed to get user organizations: %w", err)
	}

	return &Identity{
		ProviderType:  "github",
		Subject:       fmt.Sprintf("%d", user.ID),
		Login:         user.Login,
		Email:         email,
		EmailVerified: emailVerified,
		Name:          user.Name,
		Picture:       user.AvatarURL,
		Domain:        emailutil.Domain(email),
		Organizations: orgs,
	}, nil
}

func (p *GitHubProvider) getJSON(client *http.Client, path string, v any) error {
	endpoint, err := urlutil.JoinPath(p.apiBaseURL, path)
	if err != nil {
		return err
	}
	resp, err := client.Get(endpoint)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("status %d: %s", resp.StatusCode, ioutil.Snippet(resp.Body, ioutil.DefaultSnippetLimit))
	}
	return json.NewDecoder(resp.Body).Decode(v)
}

func (p *GitHubProvider) fetchUser(client *http.Client) (*githubUserResponse, error) {
	var user githubUserResponse
	if err := p.getJSON(client, "/user", &user); err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return &user, nil
}

func (p *GitHubProvider) fetchPrimaryEmail(client *http.Client) (string, bool, error) {
	var emails []githubEmailResponse
	if err := p.getJSON(client, "/user/emails", &emails); err != nil {
		return "", false, fmt.Errorf("failed to get emails: %w", err)
	}

	for _, email := range emails {
		if email.Primary && email.Verified {
			return email.Email, true, nil
		}
	}

	// Fallback to first verified email
	for _, email := range emails {
		if email.Verified {
			return email.Email, true, nil
		}
	}

	return "", false, fmt.Errorf("no verified email found")
}

func (p *GitHubProvider) fetchOrganizations(client *http.Client) ([]string, error) {
	var orgs []githubOrgResponse
	if err := p.getJSON(client, "/user/orgs", &orgs); err != nil {
		return nil, fmt.Errorf("failed to get organizations: %w", err)
	}

	orgNames := make([]string, len(orgs))
	for i, org := range orgs {
		orgNames[i] = org.Login
	}
	return orgNames, nil
}

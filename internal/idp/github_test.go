package idp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/dgellow/authbridge/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

func testProviderConfig() config.ProviderConfig {
	return config.ProviderConfig{
		Kind:         config.ProviderGitHub,
		ClientID:     "client-id",
		ClientSecret: "client-secret",
		RedirectURI:  "https://dashboard.example.com/oauth/callback?from=popup",
		Scopes:       []string{"read:user", "user:email"},
	}
}

func TestGitHubProvider_Type(t *testing.T) {
	provider := NewGitHubProvider(testProviderConfig())
	assert.Equal(t, "github", provider.Type())
}

func TestGitHubProvider_AuthURL(t *testing.T) {
	provider := NewGitHubProvider(testProviderConfig())

	authURL, err := url.Parse(provider.AuthURL("test-state"))
	require.NoError(t, err)

	assert.Equal(t, "github.com", authURL.Host)
	assert.Equal(t, "/login/oauth/authorize", authURL.Path)

	q := authURL.Query()
	assert.Equal(t, "client-id", q.Get("client_id"))
	assert.Equal(t, "https://dashboard.example.com/oauth/callback?from=popup", q.Get("redirect_uri"))
	assert.Equal(t, "read:user user:email", q.Get("scope"))
	assert.Equal(t, "true", q.Get("allow_signup"))
	assert.Equal(t, "test-state", q.Get("state"))

	// redirect_uri is percent-encoded in the raw query
	assert.Contains(t, authURL.RawQuery, "redirect_uri=https%3A%2F%2Fdashboard.example.com%2Foauth%2Fcallback%3Ffrom%3Dpopup")
}

func TestGitHubProvider_EndpointOverrides(t *testing.T) {
	cfg := testProviderConfig()
	cfg.AuthorizeURL = "https://github.example.com/login/oauth/authorize"
	cfg.TokenURL = "https://github.example.com/login/oauth/access_token"
	cfg.APIBaseURL = "https://github.example.com/api/v3/"

	provider := NewGitHubProvider(cfg)
	assert.Contains(t, provider.AuthURL("s"), "https://github.example.com/login/oauth/authorize?")
	assert.Equal(t, "https://github.example.com/api/v3", provider.apiBaseURL)
}

func TestGitHubProvider_ExchangeCode(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/token", r.URL.Path)
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "the-code", r.PostForm.Get("code"))

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token": "gho_token",
			"token_type":   "bearer",
			"scope":        "read:user,user:email",
		})
	}))
	defer server.Close()

	cfg := testProviderConfig()
	cfg.TokenURL = server.URL + "/token"
	provider := NewGitHubProvider(cfg)

	token, err := provider.ExchangeCode(context.Background(), "the-code")
	require.NoError(t, err)
	assert.Equal(t, "gho_token", token.AccessToken)
}

func TestGitHubProvider_UserInfo(t *testing.T) {
	tests := []struct {
		name                  string
		userResp              githubUserResponse
		emailsResp            []githubEmailResponse
		orgsResp              []githubOrgResponse
		expectedEmail         string
		expectedEmailVerified bool
		expectedDomain        string
		expectedOrgs          []string
	}{
		{
			name: "user_with_public_email",
			userResp: githubUserResponse{
				ID:        12345,
				Login:     "testuser",
				Email:     "user@company.com",
				Name:      "Test User",
				AvatarURL: "https://github.com/avatar.jpg",
			},
			orgsResp:              []githubOrgResponse{{Login: "my-org"}},
			expectedEmail:         "user@company.com",
			expectedEmailVerified: true,
			expectedDomain:        "company.com",
			expectedOrgs:          []string{"my-org"},
		},
		{
			name: "user_without_public_email_fetches_from_api",
			userResp: githubUserResponse{
				ID:    12345,
				Login: "testuser",
				Name:  "Test User",
			},
			emailsResp: []githubEmailResponse{
				{Email: "secondary@other.com", Primary: false, Verified: true},
				{Email: "primary@company.com", Primary: true, Verified: true},
			},
			orgsResp:              []githubOrgResponse{},
			expectedEmail:         "primary@company.com",
			expectedEmailVerified: true,
			expectedDomain:        "company.com",
			expectedOrgs:          []string{},
		},
		{
			name: "user_with_unverified_primary_falls_back_to_verified",
			userResp: githubUserResponse{
				ID:    12345,
				Login: "testuser",
			},
			emailsResp: []githubEmailResponse{
				{Email: "primary@company.com", Primary: true, Verified: false},
				{Email: "verified@company.com", Primary: false, Verified: true},
			},
			orgsResp:              []githubOrgResponse{},
			expectedEmail:         "verified@company.com",
			expectedEmailVerified: true,
			expectedDomain:        "company.com",
			expectedOrgs:          []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))
				w.Header().Set("Content-Type", "application/json")

				switch r.URL.Path {
				case "/user":
					_ = json.NewEncoder(w).Encode(tt.userResp)
				case "/user/emails":
					_ = json.NewEncoder(w).Encode(tt.emailsResp)
				case "/user/orgs":
					_ = json.NewEncoder(w).Encode(tt.orgsResp)
				default:
					w.WriteHeader(http.StatusNotFound)
				}
			}))
			defer server.Close()

			cfg := testProviderConfig()
			cfg.APIBaseURL = server.URL
			provider := NewGitHubProvider(cfg)

			identity, err := provider.UserInfo(context.Background(), &oauth2.Token{AccessToken: "test-token"})
			require.NoError(t, err)
			require.NotNil(t, identity)

			assert.Equal(t, "github", identity.ProviderType)
			assert.Equal(t, "12345", identity.Subject)
			assert.Equal(t, tt.userResp.Login, identity.Login)
			assert.Equal(t, tt.expectedEmail, identity.Email)
			assert.Equal(t, tt.expectedEmailVerified, identity.EmailVerified)
			assert.Equal(t, tt.expectedDomain, identity.Domain)
			assert.Equal(t, tt.expectedOrgs, identity.Organizations)
		})
	}
}

func TestGitHubProvider_UserInfo_APIErrors(t *testing.T) {
	tests := []struct {
		name        string
		userStatus  int
		errContains string
	}{
		{name: "user_api_error", userStatus: http.StatusInternalServerError, errContains: "status 500"},
		{name: "user_unauthorized", userStatus: http.StatusUnauthorized, errContains: "status 401"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.userStatus)
			}))
			defer server.Close()

			cfg := testProviderConfig()
			cfg.APIBaseURL = server.URL
			provider := NewGitHubProvider(cfg)

			_, err := provider.UserInfo(context.Background(), &oauth2.Token{AccessToken: "test-token"})
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errContains)
		})
	}
}

func TestGitHubProvider_UserInfo_NoVerifiedEmail(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")

		switch r.URL.Path {
		case "/user":
			_ = json.NewEncoder(w).Encode(githubUserResponse{ID: 123, Login: "test"})
		case "/user/emails":
			_ = json.NewEncoder(w).Encode([]githubEmailResponse{
				{Email: "unverified@example.com", Primary: true, Verified: false},
			})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	cfg := testProviderConfig()
	cfg.APIBaseURL = server.URL
	provider := NewGitHubProvider(cfg)

	_, err := provider.UserInfo(context.Background(), &oauth2.Token{AccessToken: "test-token"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no verified email")
}

func TestNewProvider(t *testing.T) {
	p, err := NewProvider(context.Background(), testProviderConfig())
	require.NoError(t, err)
	assert.Equal(t, "github", p.Type())

	_, err = NewProvider(context.Background(), config.ProviderConfig{Kind: "gitlab"})
	assert.Error(t, err)
}

package config

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/dgellow/authbridge/internal/log"
)

// SupportedVersion is the config schema version this build understands
const SupportedVersion = "v1"

// secretFields lists config paths that must be {"$env": ...} references
var secretFields = []struct {
	section  string
	name     string
	required bool
}{
	{"bridge", "signingSecret", true},
	{"provider", "clientSecret", true},
	{"storage", "redisPassword", false},
	{"monitor", "apiToken", false},
}

// Load loads and processes the config with immediate env var resolution
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("reading config file: %w", err)
	}
	return Parse(data)
}

// Parse builds a resolved Config from raw JSON
func Parse(data []byte) (Config, error) {
	var rawConfig map[string]any
	if err := json.Unmarshal(data, &rawConfig); err != nil {
		return Config{}, fmt.Errorf("parsing config JSON: %w", err)
	}

	version, ok := rawConfig["version"].(string)
	if !ok {
		return Config{}, fmt.Errorf("config version is required")
	}
	if version != SupportedVersion {
		return Config{}, fmt.Errorf("unsupported config version: %s", version)
	}

	if err := validateRawConfig(rawConfig); err != nil {
		return Config{}, fmt.Errorf("config validation failed: %w", err)
	}

	// The custom UnmarshalJSON methods resolve env vars immediately
	var config Config
	if err := json.Unmarshal(data, &config); err != nil {
		return Config{}, fmt.Errorf("parsing config: %w", err)
	}

	if err := ApplyEnv(&config); err != nil {
		return Config{}, err
	}
	config.ApplyDefaults()

	if err := ValidateConfig(&config); err != nil {
		return Config{}, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

// validateRawConfig rejects secrets written inline before env resolution
func validateRawConfig(rawConfig map[string]any) error {
	for _, secret := range secretFields {
		section, ok := rawConfig[secret.section].(map[string]any)
		if !ok {
			continue
		}
		value, exists := section[secret.name]
		if !exists {
			continue
		}
		if _, isString := value.(string); isString {
			return fmt.Errorf("%s.%s must use environment variable reference for security", secret.section, secret.name)
		}
		if refMap, isMap := value.(map[string]any); isMap {
			if _, hasEnv := refMap["$env"]; !hasEnv {
				return fmt.Errorf("%s.%s must use {\"$env\": \"VAR_NAME\"} format", secret.section, secret.name)
			}
		}
	}
	return nil
}

// ValidateConfig validates the resolved configuration
func ValidateConfig(config *Config) error {
	if err := validateOrigin(config.Bridge.Origin); err != nil {
		return fmt.Errorf("bridge.origin: %w", err)
	}
	if config.Bridge.Addr == "" {
		return fmt.Errorf("bridge.addr is required")
	}
	if len(config.Bridge.SigningSecret) < 32 {
		return fmt.Errorf("bridge.signingSecret must be at least 32 characters (got %d). Generate with: openssl rand -base64 32", len(config.Bridge.SigningSecret))
	}

	if err := validateProvider(&config.Provider); err != nil {
		return fmt.Errorf("provider: %w", err)
	}

	popup := config.Popup
	if popup.Width <= 0 || popup.Height <= 0 {
		return fmt.Errorf("popup.width and popup.height must be positive")
	}
	if popup.PollInterval <= 0 {
		return fmt.Errorf("popup.pollInterval must be positive")
	}
	if popup.Timeout <= popup.PollInterval {
		return fmt.Errorf("popup.timeout must be longer than popup.pollInterval")
	}
	switch popup.Concurrency {
	case ConcurrencyReject, ConcurrencyReuse:
	default:
		return fmt.Errorf("popup.concurrency must be %q or %q, got %q", ConcurrencyReject, ConcurrencyReuse, popup.Concurrency)
	}

	switch popup.Opener {
	case OpenerRemote, OpenerBrowser:
	default:
		return fmt.Errorf("popup.opener must be %q or %q, got %q", OpenerRemote, OpenerBrowser, popup.Opener)
	}

	if config.Guard.CoalesceWindow == 0 {
		log.LogWarn("guard.coalesceWindow is 0 - every 401 will notify and log out individually")
	}

	if err := validateStorage(&config.Storage); err != nil {
		return fmt.Errorf("storage: %w", err)
	}

	if m := config.Monitor; m != nil {
		if _, err := url.ParseRequestURI(m.URL); err != nil {
			return fmt.Errorf("monitor.url is invalid: %w", err)
		}
	}

	return nil
}

// validateOrigin requires a bare scheme://host[:port] with no path
func validateOrigin(origin string) error {
	if origin == "" {
		return fmt.Errorf("is required")
	}
	u, err := url.Parse(origin)
	if err != nil {
		return fmt.Errorf("invalid: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("scheme must be http or https")
	}
	if u.Host == "" {
		return fmt.Errorf("host is required")
	}
	if (u.Path != "" && u.Path != "/") || u.RawQuery != "" || u.Fragment != "" {
		return fmt.Errorf("must not contain a path, query or fragment")
	}
	return nil
}

func validateProvider(p *ProviderConfig) error {
	switch p.Kind {
	case ProviderGitHub, ProviderGoogle:
	case ProviderOIDC:
		direct := p.AuthorizeURL != "" && p.TokenURL != "" && p.UserInfoURL != ""
		if p.DiscoveryURL == "" && !direct {
			return fmt.Errorf("oidc needs discoveryUrl or all of authorizeUrl, tokenUrl and userInfoUrl")
		}
	case ProviderAzure:
		if p.TenantID == "" {
			return fmt.Errorf("tenantId is required for azure")
		}
	default:
		return fmt.Errorf("unknown provider kind %q - use one of github, google, oidc, azure", p.Kind)
	}
	if len(p.AllowedOrgs) > 0 && p.Kind != ProviderGitHub {
		return fmt.Errorf("allowedOrgs is only supported by the %q provider", ProviderGitHub)
	}
	if p.ClientID == "" {
		return fmt.Errorf("clientId is required")
	}
	if p.ClientSecret == "" {
		return fmt.Errorf("clientSecret is required")
	}
	if p.RedirectURI == "" {
		return fmt.Errorf("redirectUri is required")
	}
	if _, err := url.ParseRequestURI(p.RedirectURI); err != nil {
		return fmt.Errorf("redirectUri is invalid: %w", err)
	}
	for _, endpoint := range []string{p.AuthorizeURL, p.TokenURL, p.APIBaseURL, p.DiscoveryURL, p.UserInfoURL} {
		if endpoint == "" {
			continue
		}
		if _, err := url.ParseRequestURI(endpoint); err != nil {
			return fmt.Errorf("endpoint %q is invalid: %w", endpoint, err)
		}
	}
	return nil
}

func validateStorage(s *StorageConfig) error {
	if strings.ContainsAny(s.Namespace, " /") {
		return fmt.Errorf("namespace must not contain spaces or slashes")
	}
	switch s.Kind {
	case StorageMemory:
	case StorageRedis:
		if s.RedisAddr == "" {
			return fmt.Errorf("redisAddr is required when using redis storage")
		}
	case StorageSQLite:
		if s.SQLitePath == "" {
			return fmt.Errorf("sqlitePath is required when using sqlite storage")
		}
	case StorageFirestore:
		if s.GCPProject == "" {
			return fmt.Errorf("gcpProject is required when using firestore storage")
		}
	default:
		return fmt.Errorf("unknown storage kind %q", s.Kind)
	}
	return nil
}

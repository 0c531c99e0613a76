package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// Secret is a string type that redacts itself when printed
type Secret string

// String implements fmt.Stringer to redact the secret
func (s Secret) String() string {
	if s == "" {
		return ""
	}
	return "***"
}

// MarshalJSON implements json.Marshaler to prevent secrets in JSON logs
func (s Secret) MarshalJSON() ([]byte, error) {
	if s == "" {
		return json.Marshal("")
	}
	return json.Marshal("***")
}

// ProviderKind identifies the third-party login provider
type ProviderKind string

const (
	ProviderGitHub ProviderKind = "github"
	ProviderGoogle ProviderKind = "google"
	ProviderOIDC   ProviderKind = "oidc"
	ProviderAzure  ProviderKind = "azure"
)

// ConcurrencyPolicy decides what starting a login does while another
// attempt for the same provider is still in flight
type ConcurrencyPolicy string

const (
	// ConcurrencyReject fails the new attempt with AlreadyInProgress
	ConcurrencyReject ConcurrencyPolicy = "reject"
	// ConcurrencyReuse hands back the attempt already in flight
	ConcurrencyReuse ConcurrencyPolicy = "reuse"
)

// OpenerKind selects how popups are opened
type OpenerKind string

const (
	// OpenerRemote asks the connected dashboard to open the popup and
	// report its liveness back over HTTP
	OpenerRemote OpenerKind = "remote"
	// OpenerBrowser opens the provider page in the system browser
	OpenerBrowser OpenerKind = "browser"
)

// StorageKind selects the durable key/value backend
type StorageKind string

const (
	StorageMemory    StorageKind = "memory"
	StorageRedis     StorageKind = "redis"
	StorageSQLite    StorageKind = "sqlite"
	StorageFirestore StorageKind = "firestore"
)

const (
	DefaultPopupWidth      = 600
	DefaultPopupHeight     = 700
	DefaultPollInterval    = time.Second
	DefaultAttemptTimeout  = 5 * time.Minute
	DefaultAckTimeout      = 10 * time.Second
	DefaultCoalesceWindow  = time.Second
	DefaultExpiredMessage  = "Session expired. Please login again."
	DefaultCleanupInterval = time.Minute
	DefaultNamespace       = "authbridge"
)

// BridgeConfig describes the application the bridge serves.
// Origin is the scheme://host[:port] that cross-window messages must carry.
type BridgeConfig struct {
	Name           string   `json:"name"`
	Origin         string   `json:"origin"`
	Addr           string   `json:"addr"`
	SigningSecret  Secret   `json:"signingSecret"`
	AllowedOrigins []string `json:"allowedOrigins,omitempty"`
}

// ProviderConfig is the static third-party login configuration.
// AuthorizeURL, TokenURL and APIBaseURL default to the provider's public
// endpoints. A generic OIDC provider needs DiscoveryURL or all of
// AuthorizeURL, TokenURL and UserInfoURL; Azure needs TenantID. AllowedDomains and AllowedOrgs restrict who may log in; empty
// lists admit every authenticated user.
type ProviderConfig struct {
	Kind         ProviderKind `json:"kind"`
	ClientID     string       `json:"clientId"`
	ClientSecret Secret       `json:"clientSecret"`
	RedirectURI  string       `json:"redirectUri"`
	Scopes       []string     `json:"scopes,omitempty"`
	AuthorizeURL string       `json:"authorizeUrl,omitempty"`
	TokenURL     string       `json:"tokenUrl,omitempty"`
	APIBaseURL   string       `json:"apiBaseUrl,omitempty"`
	DiscoveryURL string       `json:"discoveryUrl,omitempty"`
	UserInfoURL  string       `json:"userInfoUrl,omitempty"`
	TenantID     string       `json:"tenantId,omitempty"`

	AllowedDomains []string `json:"allowedDomains,omitempty"`
	AllowedOrgs    []string `json:"allowedOrgs,omitempty"`
}

// PopupConfig controls the popup orchestrator
type PopupConfig struct {
	Width        int               `json:"width"`
	Height       int               `json:"height"`
	PollInterval time.Duration     `json:"pollInterval"`
	Timeout      time.Duration     `json:"timeout"`
	Concurrency  ConcurrencyPolicy `json:"concurrency"`
	Opener       OpenerKind        `json:"opener"`
	// AckTimeout bounds how long a remote opener waits for the dashboard
	// to confirm the popup opened before treating it as blocked
	AckTimeout time.Duration `json:"ackTimeout"`
}

// GuardConfig controls the session guard.
// A zero CoalesceWindow reports every 401 individually.
type GuardConfig struct {
	CoalesceWindow time.Duration `json:"coalesceWindow"`
	Message        string        `json:"message"`

	coalesceSet bool
}

// StorageConfig selects and configures the durable store used for attempt
// markers and the persisted session state
type StorageConfig struct {
	Kind                StorageKind   `json:"kind"`
	Namespace           string        `json:"namespace"`
	CleanupInterval     time.Duration `json:"cleanupInterval"`
	RedisAddr           string        `json:"redisAddr,omitempty"`
	RedisPassword       Secret        `json:"redisPassword,omitempty"`
	RedisDB             int           `json:"redisDb,omitempty"`
	SQLitePath          string        `json:"sqlitePath,omitempty"`
	GCPProject          string        `json:"gcpProject,omitempty"`
	FirestoreDatabase   string        `json:"firestoreDatabase,omitempty"`
	FirestoreCollection string        `json:"firestoreCollection,omitempty"`
}

// MonitorConfig points at the Zabbix-style JSON-RPC monitoring API
type MonitorConfig struct {
	URL      string        `json:"url"`
	APIToken Secret        `json:"apiToken"`
	Timeout  time.Duration `json:"timeout"`
}

// Config represents the config structure with resolved values
type Config struct {
	Bridge   BridgeConfig   `json:"bridge"`
	Provider ProviderConfig `json:"provider"`
	Popup    PopupConfig    `json:"popup"`
	Guard    GuardConfig    `json:"guard"`
	Storage  StorageConfig  `json:"storage"`
	Monitor  *MonitorConfig `json:"monitor,omitempty"`
}

// ApplyDefaults fills every unset field with its documented default
func (c *Config) ApplyDefaults() {
	if c.Bridge.Name == "" {
		c.Bridge.Name = "authbridge"
	}
	if c.Provider.Kind == "" {
		c.Provider.Kind = ProviderGitHub
	}
	if len(c.Provider.Scopes) == 0 {
		switch c.Provider.Kind {
		case ProviderGitHub:
			c.Provider.Scopes = []string{"read:user", "user:email", "read:org"}
		default:
			c.Provider.Scopes = []string{"openid", "profile", "email"}
		}
	}
	if c.Popup.Width == 0 {
		c.Popup.Width = DefaultPopupWidth
	}
	if c.Popup.Height == 0 {
		c.Popup.Height = DefaultPopupHeight
	}
	if c.Popup.PollInterval == 0 {
		c.Popup.PollInterval = DefaultPollInterval
	}
	if c.Popup.Timeout == 0 {
		c.Popup.Timeout = DefaultAttemptTimeout
	}
	if c.Popup.Concurrency == "" {
		c.Popup.Concurrency = ConcurrencyReject
	}
	if c.Popup.Opener == "" {
		c.Popup.Opener = OpenerRemote
	}
	if c.Popup.AckTimeout == 0 {
		c.Popup.AckTimeout = DefaultAckTimeout
	}
	if c.Guard.CoalesceWindow == 0 && !c.Guard.coalesceSet {
		c.Guard.CoalesceWindow = DefaultCoalesceWindow
	}
	if c.Guard.Message == "" {
		c.Guard.Message = DefaultExpiredMessage
	}
	if c.Storage.Kind == "" {
		c.Storage.Kind = StorageMemory
	}
	if c.Storage.Namespace == "" {
		c.Storage.Namespace = DefaultNamespace
	}
	if c.Storage.CleanupInterval == 0 {
		c.Storage.CleanupInterval = DefaultCleanupInterval
	}
	if c.Storage.Kind == StorageFirestore && c.Storage.FirestoreCollection == "" {
		c.Storage.FirestoreCollection = "authbridge_kv"
	}
}

// RawConfigValue is a value that was either a plain string or an env reference.
// Only used during parsing.
type RawConfigValue struct {
	value string
}

// ParseConfigValue parses a JSON value that could be a string or {"$env": "VAR"}
func ParseConfigValue(raw json.RawMessage) (*RawConfigValue, error) {
	var str string
	if err := json.Unmarshal(raw, &str); err == nil {
		return &RawConfigValue{value: str}, nil
	}

	var ref map[string]string
	if err := json.Unmarshal(raw, &ref); err != nil {
		return nil, fmt.Errorf("config value must be string or reference object")
	}

	envVar, ok := ref["$env"]
	if !ok {
		return nil, fmt.Errorf("unknown reference type in config value")
	}

	value := os.Getenv(envVar)
	if value == "" {
		return nil, fmt.Errorf("environment variable %s not set", envVar)
	}
	// Strip surrounding quotes if present (only matching pairs)
	if len(value) >= 2 {
		if (value[0] == '"' && value[len(value)-1] == '"') ||
			(value[0] == '\'' && value[len(value)-1] == '\'') {
			value = value[1 : len(value)-1]
		}
	}
	return &RawConfigValue{value: value}, nil
}

// parseString resolves an optional raw value into dst
func parseString(raw json.RawMessage, field string, dst *string) error {
	if raw == nil {
		return nil
	}
	parsed, err := ParseConfigValue(raw)
	if err != nil {
		return fmt.Errorf("parsing %s: %w", field, err)
	}
	*dst = parsed.value
	return nil
}

// parseSecret resolves an optional raw value into a Secret
func parseSecret(raw json.RawMessage, field string, dst *Secret) error {
	var s string
	if err := parseString(raw, field, &s); err != nil {
		return err
	}
	if raw != nil {
		*dst = Secret(s)
	}
	return nil
}

// parseDuration parses an optional Go duration string
func parseDuration(s, field string, dst *time.Duration) error {
	if s == "" {
		return nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("parsing %s: %w", field, err)
	}
	if d < 0 {
		return fmt.Errorf("%s cannot be negative", field)
	}
	*dst = d
	return nil
}

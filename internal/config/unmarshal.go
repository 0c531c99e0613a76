package config

import (
	"encoding/json"
	"fmt"
)

// UnmarshalJSON implements custom unmarshaling for BridgeConfig
func (b *BridgeConfig) UnmarshalJSON(data []byte) error {
	type rawBridge struct {
		Name           string          `json:"name"`
		Origin         json.RawMessage `json:"origin"`
		Addr           json.RawMessage `json:"addr"`
		SigningSecret  json.RawMessage `json:"signingSecret"`
		AllowedOrigins []string        `json:"allowedOrigins"`
	}

	var raw rawBridge
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	b.Name = raw.Name
	b.AllowedOrigins = raw.AllowedOrigins

	if err := parseString(raw.Origin, "origin", &b.Origin); err != nil {
		return err
	}
	if err := parseString(raw.Addr, "addr", &b.Addr); err != nil {
		return err
	}
	if err := parseSecret(raw.SigningSecret, "signingSecret", &b.SigningSecret); err != nil {
		return err
	}
	return nil
}

// UnmarshalJSON implements custom unmarshaling for ProviderConfig
func (p *ProviderConfig) UnmarshalJSON(data []byte) error {
	type rawProvider struct {
		Kind         ProviderKind    `json:"kind"`
		ClientID     json.RawMessage `json:"clientId"`
		ClientSecret json.RawMessage `json:"clientSecret"`
		RedirectURI  json.RawMessage `json:"redirectUri"`
		Scopes       []string        `json:"scopes"`
		AuthorizeURL string          `json:"authorizeUrl"`
		TokenURL     string          `json:"tokenUrl"`
		APIBaseURL   string          `json:"apiBaseUrl"`
		DiscoveryURL string          `json:"discoveryUrl"`
		UserInfoURL  string          `json:"userInfoUrl"`
		TenantID     string          `json:"tenantId"`

		AllowedDomains []string `json:"allowedDomains"`
		AllowedOrgs    []string `json:"allowedOrgs"`
	}

	var raw rawProvider
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	p.Kind = raw.Kind
	p.Scopes = raw.Scopes
	p.AuthorizeURL = raw.AuthorizeURL
	p.TokenURL = raw.TokenURL
	p.APIBaseURL = raw.APIBaseURL
	p.DiscoveryURL = raw.DiscoveryURL
	p.UserInfoURL = raw.UserInfoURL
	p.TenantID = raw.TenantID
	p.AllowedDomains = raw.AllowedDomains
	p.AllowedOrgs = raw.AllowedOrgs

	if err := parseString(raw.ClientID, "clientId", &p.ClientID); err != nil {
		return err
	}
	if err := parseSecret(raw.ClientSecret, "clientSecret", &p.ClientSecret); err != nil {
		return err
	}
	if err := parseString(raw.RedirectURI, "redirectUri", &p.RedirectURI); err != nil {
		return err
	}
	return nil
}

// UnmarshalJSON implements custom unmarshaling for PopupConfig
func (p *PopupConfig) UnmarshalJSON(data []byte) error {
	type rawPopup struct {
		Width        int               `json:"width"`
		Height       int               `json:"height"`
		PollInterval string            `json:"pollInterval"`
		Timeout      string            `json:"timeout"`
		Concurrency  ConcurrencyPolicy `json:"concurrency"`
		Opener       OpenerKind        `json:"opener"`
		AckTimeout   string            `json:"ackTimeout"`
	}

	var raw rawPopup
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	p.Width = raw.Width
	p.Height = raw.Height
	p.Concurrency = raw.Concurrency
	p.Opener = raw.Opener

	if err := parseDuration(raw.PollInterval, "pollInterval", &p.PollInterval); err != nil {
		return err
	}
	if err := parseDuration(raw.Timeout, "timeout", &p.Timeout); err != nil {
		return err
	}
	return parseDuration(raw.AckTimeout, "ackTimeout", &p.AckTimeout)
}

// UnmarshalJSON implements custom unmarshaling for GuardConfig
func (g *GuardConfig) UnmarshalJSON(data []byte) error {
	type rawGuard struct {
		CoalesceWindow *string `json:"coalesceWindow"`
		Message        string  `json:"message"`
	}

	var raw rawGuard
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	g.Message = raw.Message
	if raw.CoalesceWindow == nil {
		return nil
	}
	// An explicit "0s" disables coalescing
	g.coalesceSet = true
	return parseDuration(*raw.CoalesceWindow, "coalesceWindow", &g.CoalesceWindow)
}

// UnmarshalJSON implements custom unmarshaling for StorageConfig
func (s *StorageConfig) UnmarshalJSON(data []byte) error {
	type rawStorage struct {
		Kind                StorageKind     `json:"kind"`
		Namespace           string          `json:"namespace"`
		CleanupInterval     string          `json:"cleanupInterval"`
		RedisAddr           json.RawMessage `json:"redisAddr"`
		RedisPassword       json.RawMessage `json:"redisPassword"`
		RedisDB             int             `json:"redisDb"`
		SQLitePath          string          `json:"sqlitePath"`
		GCPProject          json.RawMessage `json:"gcpProject"`
		FirestoreDatabase   string          `json:"firestoreDatabase"`
		FirestoreCollection string          `json:"firestoreCollection"`
	}

	var raw rawStorage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	s.Kind = raw.Kind
	s.Namespace = raw.Namespace
	s.RedisDB = raw.RedisDB
	s.SQLitePath = raw.SQLitePath
	s.FirestoreDatabase = raw.FirestoreDatabase
	s.FirestoreCollection = raw.FirestoreCollection

	if err := parseDuration(raw.CleanupInterval, "cleanupInterval", &s.CleanupInterval); err != nil {
		return err
	}
	if err := parseString(raw.RedisAddr, "redisAddr", &s.RedisAddr); err != nil {
		return err
	}
	if err := parseSecret(raw.RedisPassword, "redisPassword", &s.RedisPassword); err != nil {
		return err
	}
	return parseString(raw.GCPProject, "gcpProject", &s.GCPProject)
}

// UnmarshalJSON implements custom unmarshaling for MonitorConfig
func (m *MonitorConfig) UnmarshalJSON(data []byte) error {
	type rawMonitor struct {
		URL      json.RawMessage `json:"url"`
		APIToken json.RawMessage `json:"apiToken"`
		Timeout  string          `json:"timeout"`
	}

	var raw rawMonitor
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	if err := parseString(raw.URL, "url", &m.URL); err != nil {
		return err
	}
	if err := parseSecret(raw.APIToken, "apiToken", &m.APIToken); err != nil {
		return fmt.Errorf("monitor: %w", err)
	}
	return parseDuration(raw.Timeout, "timeout", &m.Timeout)
}

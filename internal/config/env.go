package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

// EnvOverrides are deployment-time settings that take precedence over the
// config file
type EnvOverrides struct {
	Addr      string `env:"AUTHBRIDGE_ADDR"`
	Origin    string `env:"AUTHBRIDGE_ORIGIN"`
	Storage   string `env:"AUTHBRIDGE_STORAGE"`
	RedisAddr string `env:"AUTHBRIDGE_REDIS_ADDR"`
}

// ParseEnv loads configuration from environment variables.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// ApplyEnv overlays AUTHBRIDGE_* environment variables onto cfg
func ApplyEnv(cfg *Config) error {
	var o EnvOverrides
	if err := ParseEnv(&o); err != nil {
		return err
	}
	if o.Addr != "" {
		cfg.Bridge.Addr = o.Addr
	}
	if o.Origin != "" {
		cfg.Bridge.Origin = o.Origin
	}
	if o.Storage != "" {
		cfg.Storage.Kind = StorageKind(o.Storage)
	}
	if o.RedisAddr != "" {
		cfg.Storage.RedisAddr = o.RedisAddr
	}
	return nil
}

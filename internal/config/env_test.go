package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplyEnv(t *testing.T) {
	t.Setenv("AUTHBRIDGE_ADDR", ":9090")
	t.Setenv("AUTHBRIDGE_STORAGE", "redis")
	t.Setenv("AUTHBRIDGE_REDIS_ADDR", "localhost:6379")

	cfg := Config{Bridge: BridgeConfig{Addr: ":8080", Origin: "https://a.example"}}
	require.NoError(t, ApplyEnv(&cfg))

	assert.Equal(t, ":9090", cfg.Bridge.Addr)
	assert.Equal(t, "https://a.example", cfg.Bridge.Origin, "unset overrides keep file values")
	assert.Equal(t, StorageRedis, cfg.Storage.Kind)
	assert.Equal(t, "localhost:6379", cfg.Storage.RedisAddr)
}

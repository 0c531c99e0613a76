package main

import (
	"path/filepath"
	"testing"

	"github.com/dgellow/authbridge/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateDefaultConfig_Validates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, generateDefaultConfig(path))

	result, err := config.ValidateFile(path)
	require.NoError(t, err)
	assert.Empty(t, result.Errors)
}

func TestGenerateDefaultConfig_Loads(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, generateDefaultConfig(path))

	t.Setenv("AUTHBRIDGE_SIGNING_SECRET", "0123456789abcdef0123456789abcdef")
	t.Setenv("GITHUB_CLIENT_ID", "Iv1.test")
	t.Setenv("GITHUB_CLIENT_SECRET", "secret")
	t.Setenv("ZABBIX_API_TOKEN", "token")

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, "https://monitor.yourcompany.com", cfg.Bridge.Origin)
	assert.Equal(t, config.OpenerRemote, cfg.Popup.Opener)
	require.NotNil(t, cfg.Monitor)
	assert.Equal(t, config.Secret("token"), cfg.Monitor.APIToken)
}

package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/funtonic/taskserver/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigValues(t *testing.T) {
	cfg := config.DefaultConfig()

	assert.Equal(t, ":4242", cfg.GRPC.Addr)
	assert.Equal(t, 60*time.Second, cfg.Signing.DefaultValidity)
	assert.Equal(t, "known_executors.yml", cfg.Storage.KnownExecutorsFile)
	assert.NotNil(t, cfg.Keys.AuthorizedKeys)
	assert.NotNil(t, cfg.Keys.AdminAuthorizedKeys)
}

func TestLoadFromFileOverridesOnlySpecifiedFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"grpc":{"addr":":9999"}}`), 0o644))

	cfg, err := config.LoadFromFile(path)
	require.NoError(t, err)

	assert.Equal(t, ":9999", cfg.GRPC.Addr)
	assert.Equal(t, "known_executors.yml", cfg.Storage.KnownExecutorsFile, "unspecified fields must keep their defaults")
}

func TestLoadFromFileMissingPathReturnsError(t *testing.T) {
	_, err := config.LoadFromFile(filepath.Join(t.TempDir(), "absent.json"))
	assert.Error(t, err)
}

func TestLoadFromEnvOverridesConfig(t *testing.T) {
	t.Setenv("FUNTONIC_GRPC_ADDR", ":1234")
	t.Setenv("FUNTONIC_TRACING_ENABLED", "true")
	t.Setenv("FUNTONIC_SIGNING_VALIDITY_SECS", "120")

	cfg := config.DefaultConfig()
	config.LoadFromEnv(cfg)

	assert.Equal(t, ":1234", cfg.GRPC.Addr)
	assert.True(t, cfg.Observability.Tracing.Enabled)
	assert.Equal(t, 120*time.Second, cfg.Signing.DefaultValidity)
}

func TestLoadFromEnvLeavesUnsetVarsUntouched(t *testing.T) {
	cfg := config.DefaultConfig()
	before := cfg.GRPC.Addr

	config.LoadFromEnv(cfg)

	assert.Equal(t, before, cfg.GRPC.Addr)
}

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingPathReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadEmptyPathReturnsDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadParsesYAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "opkit.yaml")
	contents := "log_level: debug\nserve_addr: \":9090\"\ndefault_max_retries: 5\ndefault_backoff: constant\n"
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, ":9090", cfg.ServeAddr)
	assert.Equal(t, 5, cfg.DefaultMaxRetries)
	assert.Equal(t, "constant", cfg.DefaultBackoff)
}

func TestLoadMalformedYAMLReturnsError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.yaml")
	require.NoError(t, os.WriteFile(path, []byte("log_level: [unterminated"), 0o600))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadEnvOverridesFileAndDefaults(t *testing.T) {
	t.Setenv("OPKIT_LOG_LEVEL", "warn")
	t.Setenv("OPKIT_DEFAULT_MAX_RETRIES", "9")
	t.Setenv("OPKIT_DEFAULT_BACKOFF_BASE", "500ms")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "warn", cfg.LogLevel)
	assert.Equal(t, 9, cfg.DefaultMaxRetries)
	assert.Equal(t, 500*time.Millisecond, cfg.DefaultBackoffBase)
}

func TestLoadEnvInvalidValuesAreIgnored(t *testing.T) {
	t.Setenv("OPKIT_DEFAULT_MAX_RETRIES", "not-a-number")
	t.Setenv("OPKIT_LOG_JSON", "not-a-bool")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default().DefaultMaxRetries, cfg.DefaultMaxRetries)
	assert.Equal(t, Default().LogJSON, cfg.LogJSON)
}

func TestBackoffSelectsStrategyByName(t *testing.T) {
	cfg := Default()

	cfg.DefaultBackoff = "none"
	assert.NotNil(t, cfg.Backoff())

	cfg.DefaultBackoff = "constant"
	assert.NotNil(t, cfg.Backoff())

	cfg.DefaultBackoff = "exponential"
	assert.NotNil(t, cfg.Backoff())
}

func TestSatisfiedConnectionStatusTranslation(t *testing.T) {
	cfg := Default()

	cfg.SatisfiedConnection = "disconnected"
	assert.Equal(t, 0, int(cfg.SatisfiedConnectionStatus()))

	cfg.SatisfiedConnection = "connected"
	assert.Equal(t, 2, int(cfg.SatisfiedConnectionStatus()))

	cfg.SatisfiedConnection = "requiresConnection"
	assert.Equal(t, 1, int(cfg.SatisfiedConnectionStatus()))
}

func TestClientDefaultsCarriesMaxRetries(t *testing.T) {
	cfg := Default()
	cfg.DefaultMaxRetries = 7

	defaults := cfg.ClientDefaults()
	assert.Equal(t, 7, defaults.MaxRetries)
	assert.NotNil(t, defaults.Backoff)
}

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noEnv(string) (string, bool) { return "", false }

func mapEnv(values map[string]string) EnvLookup {
	return func(key string) (string, bool) {
		v, ok := values[key]
		return v, ok
	}
}

func TestLoadDefaults(t *testing.T) {
	cfg, meta, err := Load(WithEnv(noEnv), WithSearchPaths(t.TempDir()))
	require.NoError(t, err)

	assert.Equal(t, DefaultBaseURL, cfg.Service.BaseURL)
	assert.Equal(t, 120*time.Second, cfg.Service.Timeout)
	assert.Equal(t, DefaultMaxResponseBytes, cfg.Service.MaxResponseBytes)
	assert.Equal(t, 5, cfg.Service.Breaker.FailureThreshold)
	assert.Equal(t, 30*time.Second, cfg.Service.Breaker.Timeout)
	assert.Equal(t, DefaultRegions, cfg.Regions.Defaults)
	assert.Equal(t, "127.0.0.1:8080", cfg.Server.Address())
	assert.True(t, cfg.Server.EnableCORS)
	assert.Equal(t, DefaultFallbackMessage, cfg.Chat.FallbackMessage)
	assert.Empty(t, meta.ConfigFile())
	assert.Equal(t, SourceDefault, meta.Source("service.base_url"))
}

func TestLoadFileThenEnvThenOverride(t *testing.T) {
	dir := t.TempDir()
	content := `
service:
  base_url: http://risk.internal:9000/
  timeout: 45s
  breaker:
    failure_threshold: 3
regions:
  defaults: [Singapore, Busan]
server:
  port: 9090
chat:
  fallback_message: Assistant unavailable.
observability:
  logging:
    level: debug
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "chainwatch.yaml"), []byte(content), 0o644))

	cfg, meta, err := Load(
		WithSearchPaths(dir),
		WithEnv(mapEnv(map[string]string{
			"CHAINWATCH_SERVER_PORT":      "7070",
			"CHAINWATCH_REGIONS_DEFAULTS": "Hamburg, Antwerp",
		})),
		WithOverride("service.timeout", "10s"),
	)
	require.NoError(t, err)

	assert.Equal(t, "http://risk.internal:9000", cfg.Service.BaseURL)
	assert.Equal(t, 10*time.Second, cfg.Service.Timeout)
	assert.Equal(t, 3, cfg.Service.Breaker.FailureThreshold)
	assert.Equal(t, 2, cfg.Service.Breaker.SuccessThreshold)
	assert.Equal(t, 7070, cfg.Server.Port)
	assert.Equal(t, []string{"Hamburg", "Antwerp"}, cfg.Regions.Defaults)
	assert.Equal(t, "Assistant unavailable.", cfg.Chat.FallbackMessage)
	assert.Equal(t, "debug", cfg.Observability.Logging.Level)

	assert.Equal(t, filepath.Join(dir, "chainwatch.yaml"), meta.ConfigFile())
	assert.Equal(t, SourceFile, meta.Source("service.base_url"))
	assert.Equal(t, SourceEnv, meta.Source("server.port"))
	assert.Equal(t, SourceOverride, meta.Source("service.timeout"))
	assert.Equal(t, SourceDefault, meta.Source("server.host"))
}

func TestLoadExplicitPathMustExist(t *testing.T) {
	_, _, err := Load(WithEnv(noEnv), WithConfigPath(filepath.Join(t.TempDir(), "missing.yaml")))
	assert.Error(t, err)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{name: "bad url", env: map[string]string{"CHAINWATCH_SERVICE_BASE_URL": "localhost:8000"}},
		{name: "zero capacity", env: map[string]string{"CHAINWATCH_SERVER_SESSION_CAPACITY": "0"}},
		{name: "bad port", env: map[string]string{"CHAINWATCH_SERVER_PORT": "70000"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := Load(WithEnv(mapEnv(tt.env)), WithSearchPaths(t.TempDir()))
			assert.Error(t, err)
		})
	}
}

func TestEnvName(t *testing.T) {
	assert.Equal(t, "CHAINWATCH_SERVICE_BREAKER_TIMEOUT", EnvName("service.breaker.timeout"))
}

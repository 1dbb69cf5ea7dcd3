package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "anthropic", cfg.Model.Provider)
	assert.True(t, cfg.Journal.Enabled)
	assert.Equal(t, time.Minute, cfg.RateLimit.WindowDuration)
	assert.Empty(t, cfg.ModelOverrides())
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("PORT", "9090")
	t.Setenv("MODEL_PROVIDER", "Gemini")
	t.Setenv("JOURNAL_ENABLED", "off")
	t.Setenv("ALLOWED_ORIGINS", "https://a.example, https://b.example,")
	t.Setenv("RATE_LIMIT_WINDOW", "30s")
	t.Setenv("RATE_LIMIT_REQUESTS", "not-a-number")
	t.Setenv("MODEL_OPUS", "gemini-ultra")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, "gemini", cfg.Model.Provider)
	assert.False(t, cfg.Journal.Enabled)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.AllowedOrigins)
	assert.Equal(t, 30*time.Second, cfg.RateLimit.WindowDuration)
	assert.Equal(t, 20, cfg.RateLimit.RequestsPerWindow)
	assert.Equal(t, map[string]string{"opus": "gemini-ultra"}, cfg.ModelOverrides())
}

func TestLoadYAMLThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "draftsmith.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
port: "7000"
versions_dir: /srv/versions
journal:
  path: /srv/journal.db
  retention: 48h
model:
  provider: grpc
  generator_addr: localhost:50051
rate_limit:
  requests_per_window: 5
  window: 10s
`), 0o600))

	t.Setenv("CONFIG_FILE", path)
	t.Setenv("PORT", "7001")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "7001", cfg.Port)
	assert.Equal(t, "/srv/versions", cfg.VersionsDir)
	assert.Equal(t, "/srv/journal.db", cfg.Journal.Path)
	assert.Equal(t, 48*time.Hour, cfg.Journal.Retention)
	assert.Equal(t, "grpc", cfg.Model.Provider)
	assert.Equal(t, "localhost:50051", cfg.Model.GeneratorAddr)
	assert.Equal(t, 5, cfg.RateLimit.RequestsPerWindow)
	assert.Equal(t, 10*time.Second, cfg.RateLimit.WindowDuration)
	assert.Equal(t, 15*time.Second, cfg.SSE.KeepaliveInterval)
}

func TestLoadBadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("port: [unterminated"), 0o600))
	t.Setenv("CONFIG_FILE", path)

	_, err := Load()
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty port", func(c *Config) { c.Port = "" }},
		{"empty versions dir", func(c *Config) { c.VersionsDir = "" }},
		{"journal without path", func(c *Config) { c.Journal.Path = "" }},
		{"unknown provider", func(c *Config) { c.Model.Provider = "openai" }},
		{"unknown generator backend", func(c *Config) { c.Generator.Backend = "grpc" }},
		{"zero rate limit", func(c *Config) { c.RateLimit.RequestsPerWindow = 0 }},
		{"zero window", func(c *Config) { c.RateLimit.WindowDuration = 0 }},
		{"zero body size", func(c *Config) { c.SSE.MaxRequestBodySize = 0 }},
		{"zero keepalive", func(c *Config) { c.SSE.KeepaliveInterval = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}

	cfg := Default()
	cfg.Journal.Enabled = false
	cfg.Journal.Path = ""
	assert.NoError(t, cfg.Validate())
}

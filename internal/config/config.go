// Package config provides application configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all application configuration.
type Config struct {
	Port           string          `yaml:"port"`
	VersionsDir    string          `yaml:"versions_dir"`
	AllowedOrigins []string        `yaml:"allowed_origins"`
	DevMode        bool            `yaml:"dev_mode"`
	Journal        JournalConfig   `yaml:"journal"`
	Model          ModelConfig     `yaml:"model"`
	Generator      GeneratorConfig `yaml:"generator"`
	RateLimit      RateLimitConfig `yaml:"rate_limit"`
	SSE            SSEConfig       `yaml:"sse"`
}

// JournalConfig controls the SQLite exchange journal.
type JournalConfig struct {
	Enabled   bool          `yaml:"enabled"`
	Path      string        `yaml:"path"`
	Retention time.Duration `yaml:"retention"`
}

// ModelConfig selects the generation provider and its model names.
type ModelConfig struct {
	Provider         string        `yaml:"provider"`
	AnthropicAPIKey  string        `yaml:"anthropic_api_key"`
	AnthropicBaseURL string        `yaml:"anthropic_base_url"`
	GeminiAPIKey     string        `yaml:"gemini_api_key"`
	GeneratorAddr    string        `yaml:"generator_addr"`
	ConnectTimeout   time.Duration `yaml:"connect_timeout"`
	Sonnet           string        `yaml:"sonnet"`
	Opus             string        `yaml:"opus"`
	Haiku            string        `yaml:"haiku"`
}

// GeneratorConfig configures the standalone gRPC generator.
type GeneratorConfig struct {
	ListenAddr string `yaml:"listen_addr"`
	Backend    string `yaml:"backend"`
}

// RateLimitConfig bounds edit requests per client.
type RateLimitConfig struct {
	RequestsPerWindow int           `yaml:"requests_per_window"`
	WindowDuration    time.Duration `yaml:"window"`
}

// SSEConfig tunes the streaming endpoints.
type SSEConfig struct {
	MaxRequestBodySize int64         `yaml:"max_request_body_bytes"`
	KeepaliveInterval  time.Duration `yaml:"keepalive_interval"`
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	return &Config{
		Port:           "8080",
		VersionsDir:    "./data/versions",
		AllowedOrigins: []string{"http://localhost:5173"},
		Journal: JournalConfig{
			Enabled:   true,
			Path:      "./data/journal.db",
			Retention: 30 * 24 * time.Hour,
		},
		Model: ModelConfig{
			Provider:         "anthropic",
			AnthropicBaseURL: "https://api.anthropic.com",
			ConnectTimeout:   5 * time.Second,
		},
		Generator: GeneratorConfig{
			ListenAddr: ":50051",
			Backend:    "anthropic",
		},
		RateLimit: RateLimitConfig{
			RequestsPerWindow: 20,
			WindowDuration:    time.Minute,
		},
		SSE: SSEConfig{
			MaxRequestBodySize: 4 << 20,
			KeepaliveInterval:  15 * time.Second,
		},
	}
}

// Load builds the configuration from defaults, then the YAML file named by
// CONFIG_FILE if set, then environment variables.
func Load() (*Config, error) {
	cfg := Default()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.mergeFile(path); err != nil {
			return nil, err
		}
	}
	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func (c *Config) mergeFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	c.Port = getEnv("PORT", c.Port)
	c.VersionsDir = getEnv("VERSIONS_DIR", c.VersionsDir)
	c.AllowedOrigins = getEnvList("ALLOWED_ORIGINS", c.AllowedOrigins)
	c.DevMode = getEnvBool("DEV_MODE", c.DevMode)

	c.Journal.Enabled = getEnvBool("JOURNAL_ENABLED", c.Journal.Enabled)
	c.Journal.Path = getEnv("JOURNAL_DB_PATH", c.Journal.Path)
	c.Journal.Retention = getEnvDuration("JOURNAL_RETENTION", c.Journal.Retention)

	c.Model.Provider = strings.ToLower(getEnv("MODEL_PROVIDER", c.Model.Provider))
	c.Model.AnthropicAPIKey = getEnv("ANTHROPIC_API_KEY", c.Model.AnthropicAPIKey)
	c.Model.AnthropicBaseURL = getEnv("ANTHROPIC_BASE_URL", c.Model.AnthropicBaseURL)
	c.Model.GeminiAPIKey = getEnv("GEMINI_API_KEY", c.Model.GeminiAPIKey)
	c.Model.GeneratorAddr = getEnv("GENERATOR_ADDR", c.Model.GeneratorAddr)
	c.Model.ConnectTimeout = getEnvDuration("GENERATOR_CONNECT_TIMEOUT", c.Model.ConnectTimeout)
	c.Model.Sonnet = getEnv("MODEL_SONNET", c.Model.Sonnet)
	c.Model.Opus = getEnv("MODEL_OPUS", c.Model.Opus)
	c.Model.Haiku = getEnv("MODEL_HAIKU", c.Model.Haiku)

	c.Generator.ListenAddr = getEnv("GENERATOR_LISTEN_ADDR", c.Generator.ListenAddr)
	c.Generator.Backend = strings.ToLower(getEnv("GENERATOR_BACKEND", c.Generator.Backend))

	c.RateLimit.RequestsPerWindow = getEnvInt("RATE_LIMIT_REQUESTS", c.RateLimit.RequestsPerWindow)
	c.RateLimit.WindowDuration = getEnvDuration("RATE_LIMIT_WINDOW", c.RateLimit.WindowDuration)

	c.SSE.MaxRequestBodySize = int64(getEnvInt("MAX_REQUEST_BODY_BYTES", int(c.SSE.MaxRequestBodySize)))
	c.SSE.KeepaliveInterval = getEnvDuration("SSE_KEEPALIVE_INTERVAL", c.SSE.KeepaliveInterval)
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	if c.Port == "" {
		return errors.New("PORT cannot be empty")
	}
	if c.VersionsDir == "" {
		return errors.New("VERSIONS_DIR cannot be empty")
	}
	if c.Journal.Enabled && c.Journal.Path == "" {
		return errors.New("JOURNAL_DB_PATH cannot be empty when the journal is enabled")
	}
	switch c.Model.Provider {
	case "anthropic", "gemini", "grpc":
	default:
		return fmt.Errorf("MODEL_PROVIDER must be anthropic, gemini or grpc, got %q", c.Model.Provider)
	}
	switch c.Generator.Backend {
	case "anthropic", "gemini":
	default:
		return fmt.Errorf("GENERATOR_BACKEND must be anthropic or gemini, got %q", c.Generator.Backend)
	}
	if c.RateLimit.RequestsPerWindow <= 0 {
		return errors.New("RATE_LIMIT_REQUESTS must be > 0")
	}
	if c.RateLimit.WindowDuration <= 0 {
		return errors.New("RATE_LIMIT_WINDOW must be > 0")
	}
	if c.SSE.MaxRequestBodySize <= 0 {
		return errors.New("MAX_REQUEST_BODY_BYTES must be > 0")
	}
	if c.SSE.KeepaliveInterval <= 0 {
		return errors.New("SSE_KEEPALIVE_INTERVAL must be > 0")
	}
	return nil
}

// ModelOverrides returns the provider model names set in configuration,
// keyed by selector. Unset names are omitted.
func (c *Config) ModelOverrides() map[string]string {
	out := make(map[string]string, 3)
	for sel, name := range map[string]string{
		"sonnet": c.Model.Sonnet,
		"opus":   c.Model.Opus,
		"haiku":  c.Model.Haiku,
	} {
		if name != "" {
			out[sel] = name
		}
	}
	return out
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return d
}

func getEnvList(key string, fallback []string) []string {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// ABOUTME: Configuration loading and parsing for assistant-console
// ABOUTME: Supports YAML or TOML files with .env loading, env var expansion and duration parsing

package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config represents the complete assistant-console configuration
type Config struct {
	Server      ServerConfig      `yaml:"server" toml:"server"`
	Tailscale   TailscaleConfig   `yaml:"tailscale" toml:"tailscale"`
	Database    DatabaseConfig    `yaml:"database" toml:"database"`
	Auth        AuthConfig        `yaml:"auth" toml:"auth"`
	Providers   ProvidersConfig   `yaml:"providers" toml:"providers"`
	Knowledge   KnowledgeConfig   `yaml:"knowledge" toml:"knowledge"`
	Logging     LoggingConfig     `yaml:"logging" toml:"logging"`
	Idempotency IdempotencyConfig `yaml:"idempotency" toml:"idempotency"`
}

// ServerConfig holds server address configuration
type ServerConfig struct {
	HTTPAddr string `yaml:"http_addr" toml:"http_addr"`
	GRPCAddr string `yaml:"grpc_addr" toml:"grpc_addr"` // empty disables the gRPC surface
}

// TailscaleConfig holds Tailscale tsnet configuration
type TailscaleConfig struct {
	Enabled   bool   `yaml:"enabled" toml:"enabled"`
	Hostname  string `yaml:"hostname" toml:"hostname"`
	AuthKey   string `yaml:"auth_key" toml:"auth_key"`
	StateDir  string `yaml:"state_dir" toml:"state_dir"`
	Ephemeral bool   `yaml:"ephemeral" toml:"ephemeral"`
	HTTPS     bool   `yaml:"https" toml:"https"` // serve HTTP over tailnet TLS on :443
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Path string `yaml:"path" toml:"path"`
}

// AuthConfig holds admin API authentication configuration
type AuthConfig struct {
	JWTSecret string        `yaml:"jwt_secret" toml:"jwt_secret"`
	TokenTTL  time.Duration `yaml:"-" toml:"-"`

	TokenTTLRaw string `yaml:"token_ttl" toml:"token_ttl"`
}

// ProvidersConfig holds model provider settings
type ProvidersConfig struct {
	RequestTimeout time.Duration `yaml:"-" toml:"-"`

	RequestTimeoutRaw string `yaml:"request_timeout" toml:"request_timeout"`

	// Seed is created on first start when no providers exist
	Seed []ProviderSeed `yaml:"seed" toml:"seed"`
}

// ProviderSeed describes a provider to create at startup
type ProviderSeed struct {
	Name         string   `yaml:"name" toml:"name"`
	Kind         string   `yaml:"kind" toml:"kind"`
	BaseURL      string   `yaml:"base_url" toml:"base_url"`
	APIKey       string   `yaml:"api_key" toml:"api_key"`
	Models       []string `yaml:"models" toml:"models"`
	DefaultModel string   `yaml:"default_model" toml:"default_model"`
}

// KnowledgeConfig holds knowledge-base ingestion settings
type KnowledgeConfig struct {
	Watch          bool          `yaml:"watch" toml:"watch"`
	Debounce       time.Duration `yaml:"-" toml:"-"`
	Ignore         []string      `yaml:"ignore" toml:"ignore"` // applied to every DIRECTORY resource
	MaxUploadBytes int64         `yaml:"max_upload_bytes" toml:"max_upload_bytes"`
	SyncWorkers    int           `yaml:"sync_workers" toml:"sync_workers"`

	DebounceRaw string `yaml:"debounce" toml:"debounce"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"`
}

// IdempotencyConfig bounds the Idempotency-Key cache used by test submissions
type IdempotencyConfig struct {
	TTL        time.Duration `yaml:"-" toml:"-"`
	MaxEntries int           `yaml:"max_entries" toml:"max_entries"`

	TTLRaw string `yaml:"ttl" toml:"ttl"`
}

// Load reads a configuration file from the given path and returns a parsed Config.
// A .env file next to the config is loaded first (existing variables win).
// Environment variables in the format ${VAR_NAME} are expanded.
// Files ending in .toml are parsed as TOML, everything else as YAML.
func Load(path string) (*Config, error) {
	if err := loadDotEnv(filepath.Join(filepath.Dir(path), ".env")); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg, err := Parse(path, data)
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse decodes raw config bytes. The name's extension selects the format.
func Parse(name string, data []byte) (*Config, error) {
	expanded := expandEnvVars(string(data))

	var cfg Config
	switch strings.ToLower(filepath.Ext(name)) {
	case ".toml":
		if _, err := toml.Decode(expanded, &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	default:
		if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// DefaultPath returns the config path from CONSOLE_CONFIG, falling back to
// the XDG config directory.
func DefaultPath() string {
	if p := os.Getenv("CONSOLE_CONFIG"); p != "" {
		return p
	}
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "assistant-console", "console.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "console.yaml"
	}
	return filepath.Join(home, ".config", "assistant-console", "console.yaml")
}

func loadDotEnv(path string) error {
	err := godotenv.Load(path)
	if err == nil || errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return fmt.Errorf("loading %s: %w", path, err)
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		return os.Getenv(envVarPattern.FindStringSubmatch(match)[1])
	})
}

func (c *Config) applyDefaults() {
	if c.Auth.TokenTTL == 0 {
		c.Auth.TokenTTL = 12 * time.Hour
	}
	if c.Providers.RequestTimeout == 0 {
		c.Providers.RequestTimeout = 60 * time.Second
	}
	if c.Knowledge.Debounce == 0 {
		c.Knowledge.Debounce = 500 * time.Millisecond
	}
	if c.Knowledge.MaxUploadBytes == 0 {
		c.Knowledge.MaxUploadBytes = 10 << 20
	}
	if c.Knowledge.SyncWorkers == 0 {
		c.Knowledge.SyncWorkers = 8
	}
	if c.Idempotency.TTL == 0 {
		c.Idempotency.TTL = 5 * time.Minute
	}
	if c.Idempotency.MaxEntries == 0 {
		c.Idempotency.MaxEntries = 10000
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	// The HTTP address is required unless Tailscale provides the listener
	if !c.Tailscale.Enabled && c.Server.HTTPAddr == "" {
		return fmt.Errorf("server.http_addr is required (or enable tailscale)")
	}

	if c.Tailscale.Enabled && c.Tailscale.Hostname == "" {
		return fmt.Errorf("tailscale.hostname is required when tailscale is enabled")
	}

	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}

	if len(c.Auth.JWTSecret) < 32 {
		return fmt.Errorf("auth.jwt_secret must be at least 32 bytes")
	}

	if c.Knowledge.MaxUploadBytes < 0 {
		return fmt.Errorf("knowledge.max_upload_bytes must not be negative")
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level %q is not one of debug, info, warn, error", c.Logging.Level)
	}

	switch c.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("logging.format %q is not one of text, json", c.Logging.Format)
	}

	for i, p := range c.Providers.Seed {
		if p.Name == "" {
			return fmt.Errorf("providers.seed[%d].name is required", i)
		}
	}

	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	fields := []struct {
		name string
		raw  string
		dst  *time.Duration
	}{
		{"auth.token_ttl", cfg.Auth.TokenTTLRaw, &cfg.Auth.TokenTTL},
		{"providers.request_timeout", cfg.Providers.RequestTimeoutRaw, &cfg.Providers.RequestTimeout},
		{"knowledge.debounce", cfg.Knowledge.DebounceRaw, &cfg.Knowledge.Debounce},
		{"idempotency.ttl", cfg.Idempotency.TTLRaw, &cfg.Idempotency.TTL},
	}

	for _, f := range fields {
		if f.raw == "" {
			continue
		}
		d, err := time.ParseDuration(f.raw)
		if err != nil {
			return fmt.Errorf("parsing %s %q: %w", f.name, f.raw, err)
		}
		if d < 0 {
			return fmt.Errorf("%s must not be negative", f.name)
		}
		*f.dst = d
	}

	return nil
}

// Example returns a starter configuration file in YAML.
func Example() string {
	return `# assistant-console configuration
server:
  http_addr: "127.0.0.1:8080"
  grpc_addr: "127.0.0.1:50051"

tailscale:
  enabled: false
  hostname: "assistant-console"
  auth_key: "${TS_AUTHKEY}"

database:
  path: "./data/console.db"

auth:
  jwt_secret: "${CONSOLE_JWT_SECRET}"
  token_ttl: "12h"

providers:
  request_timeout: "60s"

knowledge:
  watch: false
  debounce: "500ms"
  ignore:
    - "**/.git/**"
    - "**/node_modules/**"
  max_upload_bytes: 10485760

logging:
  level: "info"
  format: "text"

idempotency:
  ttl: "5m"
  max_entries: 10000
`
}

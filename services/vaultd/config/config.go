package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	defaultListen     = ":8645"
	defaultNodeConfig = "vault.toml"
	defaultArchiveDSN = "file:vault-archive.db"

	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config captures the runtime settings for the vault daemon.
type Config struct {
	ListenAddress string                     `yaml:"listen"`
	NodeConfig    string                     `yaml:"node_config"`
	TLS           TLSConfig                  `yaml:"tls"`
	Auth          AuthConfig                 `yaml:"auth"`
	RateLimits    map[string]RateLimitConfig `yaml:"rate_limits"`
	Archive       ArchiveConfig              `yaml:"archive"`
	Logging       LoggingConfig              `yaml:"logging"`
	Outbox        OutboxConfig               `yaml:"outbox"`
	Telemetry     bool                       `yaml:"telemetry"`
}

// TLSConfig describes the TLS material for the HTTP server.
type TLSConfig struct {
	CertPath      string `yaml:"cert"`
	KeyPath       string `yaml:"key"`
	AllowInsecure bool   `yaml:"allow_insecure"`
}

// AuthConfig controls bearer-token verification. The token subject is the
// caller account.
type AuthConfig struct {
	HMACSecret          string `yaml:"hmac_secret"`
	Issuer              string `yaml:"issuer"`
	Audience            string `yaml:"audience"`
	AllowAnonymousReads bool   `yaml:"allow_anonymous_reads"`
	ClockSkewSeconds    int    `yaml:"clock_skew_seconds"`
}

// RateLimitConfig bounds requests per client for one route group.
type RateLimitConfig struct {
	RequestsPerMinute float64 `yaml:"requests_per_minute"`
	Burst             int     `yaml:"burst"`
}

// ArchiveConfig selects the event archive database.
type ArchiveConfig struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

// LoggingConfig mirrors the rotating file options of the logging package.
type LoggingConfig struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Compress   bool   `yaml:"compress"`
}

// OutboxConfig tunes the background settlement worker.
type OutboxConfig struct {
	IntervalMillis int `yaml:"interval_ms"`
}

// Load reads the YAML configuration from disk and validates the result.
func Load(path string) (Config, error) {
	cfg := Config{
		ListenAddress: defaultListen,
		NodeConfig:    defaultNodeConfig,
	}
	if path == "" {
		return cfg, fmt.Errorf("config path required")
	}
	file, err := os.Open(path)
	if err != nil {
		return cfg, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	decoder := yaml.NewDecoder(file)
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}

	cfg.normalize()
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (cfg *Config) normalize() {
	if cfg == nil {
		return
	}
	cfg.ListenAddress = strings.TrimSpace(cfg.ListenAddress)
	if cfg.ListenAddress == "" {
		cfg.ListenAddress = defaultListen
	}
	cfg.NodeConfig = strings.TrimSpace(cfg.NodeConfig)
	if cfg.NodeConfig == "" {
		cfg.NodeConfig = defaultNodeConfig
	}
	cfg.TLS.CertPath = strings.TrimSpace(cfg.TLS.CertPath)
	cfg.TLS.KeyPath = strings.TrimSpace(cfg.TLS.KeyPath)
	cfg.Auth.HMACSecret = strings.TrimSpace(cfg.Auth.HMACSecret)
	cfg.Auth.Issuer = strings.TrimSpace(cfg.Auth.Issuer)
	cfg.Auth.Audience = strings.TrimSpace(cfg.Auth.Audience)
	cfg.Archive.Driver = strings.ToLower(strings.TrimSpace(cfg.Archive.Driver))
	if cfg.Archive.Driver == "" {
		cfg.Archive.Driver = DriverSQLite
	}
	cfg.Archive.DSN = strings.TrimSpace(cfg.Archive.DSN)
	if cfg.Archive.DSN == "" && cfg.Archive.Driver == DriverSQLite {
		cfg.Archive.DSN = defaultArchiveDSN
	}
	cfg.Logging.File = strings.TrimSpace(cfg.Logging.File)
	if cfg.Outbox.IntervalMillis <= 0 {
		cfg.Outbox.IntervalMillis = 500
	}
	limits := make(map[string]RateLimitConfig, len(cfg.RateLimits))
	for key, limit := range cfg.RateLimits {
		if trimmed := strings.ToLower(strings.TrimSpace(key)); trimmed != "" {
			limits[trimmed] = limit
		}
	}
	cfg.RateLimits = limits
}

func (cfg *Config) validate() error {
	if cfg == nil {
		return fmt.Errorf("configuration is missing")
	}
	hasCert := cfg.TLS.CertPath != ""
	if hasCert != (cfg.TLS.KeyPath != "") {
		return fmt.Errorf("tls: cert and key must either both be provided or both be empty")
	}
	if !cfg.TLS.AllowInsecure && !hasCert {
		return fmt.Errorf("tls: cert and key are required unless allow_insecure=true")
	}
	if cfg.Auth.HMACSecret == "" {
		return fmt.Errorf("auth: hmac_secret required")
	}
	if cfg.Auth.ClockSkewSeconds < 0 {
		return fmt.Errorf("auth: clock_skew_seconds must not be negative")
	}
	switch cfg.Archive.Driver {
	case DriverSQLite, DriverPostgres:
	default:
		return fmt.Errorf("archive: unsupported driver %q", cfg.Archive.Driver)
	}
	if cfg.Archive.DSN == "" {
		return fmt.Errorf("archive: dsn required")
	}
	for key, limit := range cfg.RateLimits {
		if limit.RequestsPerMinute <= 0 || limit.Burst <= 0 {
			return fmt.Errorf("rate_limits.%s: requests_per_minute and burst must be positive", key)
		}
	}
	return nil
}

// ClockSkew returns the accepted token clock skew.
func (cfg AuthConfig) ClockSkew() time.Duration {
	return time.Duration(cfg.ClockSkewSeconds) * time.Second
}

// Interval returns the settlement poll interval.
func (cfg OutboxConfig) Interval() time.Duration {
	return time.Duration(cfg.IntervalMillis) * time.Millisecond
}

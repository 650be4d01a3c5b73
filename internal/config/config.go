// Package config loads m365ctl settings from ~/.m365ctl/config.toml with
// M365CTL_* environment overrides.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"

	"github.com/custodia-labs/m365ctl/internal/logger"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "M365CTL_"

// HomeEnv relocates the state directory (config, session, cache).
const HomeEnv = EnvPrefix + "HOME"

const (
	dirName        = ".m365ctl"
	configFileName = "config.toml"
)

// Defaults.
const (
	DefaultBaseURL          = "http://localhost:8000/api"
	DefaultTimeout          = 30 * time.Second
	DefaultCacheTTL         = time.Minute
	DefaultSweepConcurrency = 4
	DefaultSweepRPS         = 5.0
)

// Duration is a time.Duration written as "30s" in TOML and env values.
type Duration time.Duration

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(strings.TrimSpace(string(b)))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", b, err)
	}
	*d = Duration(v)
	return nil
}

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Config is the complete settings tree.
type Config struct {
	Server ServerConfig `toml:"server" envPrefix:"SERVER_"`
	Cache  CacheConfig  `toml:"cache" envPrefix:"CACHE_"`
	Sweep  SweepConfig  `toml:"sweep" envPrefix:"SWEEP_"`
	Log    LogConfig    `toml:"log" envPrefix:"LOG_"`
}

// ServerConfig locates the backend.
type ServerConfig struct {
	BaseURL   string   `toml:"base_url" env:"BASE_URL"`
	Timeout   Duration `toml:"timeout" env:"TIMEOUT"`
	UserAgent string   `toml:"user_agent,omitempty" env:"USER_AGENT"`
}

// CacheConfig tunes the client-side query cache.
type CacheConfig struct {
	// TTL is how long a cached read is served. Zero disables caching.
	TTL Duration `toml:"ttl" env:"TTL"`
}

// SweepConfig paces multi-tenant checks.
type SweepConfig struct {
	Concurrency       int     `toml:"concurrency" env:"CONCURRENCY"`
	RequestsPerSecond float64 `toml:"requests_per_second" env:"REQUESTS_PER_SECOND"`
}

// LogConfig controls diagnostic output.
type LogConfig struct {
	Format  string `toml:"format" env:"FORMAT"`
	Verbose bool   `toml:"verbose" env:"VERBOSE"`
}

// Default returns the built-in settings.
func Default() *Config {
	return &Config{
		Server: ServerConfig{BaseURL: DefaultBaseURL, Timeout: Duration(DefaultTimeout)},
		Cache:  CacheConfig{TTL: Duration(DefaultCacheTTL)},
		Sweep:  SweepConfig{Concurrency: DefaultSweepConcurrency, RequestsPerSecond: DefaultSweepRPS},
		Log:    LogConfig{Format: string(logger.FormatText)},
	}
}

// StateDir returns the directory holding config, session and cache.
// M365CTL_HOME overrides the default ~/.m365ctl.
func StateDir() (string, error) {
	if dir := os.Getenv(HomeEnv); dir != "" {
		return dir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, dirName), nil
}

// DefaultPath returns the config file location.
func DefaultPath() (string, error) {
	dir, err := StateDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, configFileName), nil
}

// Load reads defaults, then the TOML file at path (if present), then a .env
// file in the working directory, then M365CTL_* variables. An empty path
// uses DefaultPath.
func Load(path string) (*Config, error) {
	cfg, err := LoadFile(path)
	if err != nil {
		return nil, err
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		logger.Warn("ignoring .env file: %v", err)
	}
	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return nil, fmt.Errorf("failed to apply environment overrides: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFile reads defaults and the TOML file at path without environment
// overrides. Use it before Save so overrides are not persisted.
func LoadFile(path string) (*Config, error) {
	if path == "" {
		p, err := DefaultPath()
		if err != nil {
			return nil, err
		}
		path = p
	}

	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		logger.Debug("no config file at %s, using defaults", path)
	case err != nil:
		return nil, fmt.Errorf("failed to read config: %w", err)
	default:
		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	}
	return cfg, nil
}

// Save writes cfg as TOML to path (DefaultPath when empty).
func Save(path string, cfg *Config) error {
	if path == "" {
		p, err := DefaultPath()
		if err != nil {
			return err
		}
		path = p
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	data, err := toml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// Validate checks the settings for usable values.
func (c *Config) Validate() error {
	if err := ValidateBaseURL(c.Server.BaseURL); err != nil {
		return err
	}
	if c.Server.Timeout < 0 {
		return fmt.Errorf("server.timeout must not be negative")
	}
	if c.Cache.TTL < 0 {
		return fmt.Errorf("cache.ttl must not be negative")
	}
	if c.Sweep.Concurrency < 1 {
		return fmt.Errorf("sweep.concurrency must be at least 1")
	}
	if c.Sweep.RequestsPerSecond <= 0 {
		return fmt.Errorf("sweep.requests_per_second must be positive")
	}
	switch logger.Format(c.Log.Format) {
	case logger.FormatText, logger.FormatJSON:
	default:
		return fmt.Errorf("log.format must be %q or %q", logger.FormatText, logger.FormatJSON)
	}
	return nil
}

// ValidateBaseURL checks that raw is an absolute http(s) URL.
func ValidateBaseURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid server URL %q: %w", raw, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("invalid server URL %q: must be an absolute http or https URL", raw)
	}
	return nil
}

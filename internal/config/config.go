package config

import (
	"embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed example.yaml
var exampleConfig embed.FS

// Config represents the complete earshot configuration
type Config struct {
	Identity Identity `yaml:"identity"`
	Store    Store    `yaml:"store"`
	Spotify  Spotify  `yaml:"spotify"`
	Publish  Publish  `yaml:"publish"`
	Feed     Feed     `yaml:"feed"`
	Logging  Logging  `yaml:"logging"`
}

// Identity identifies the signed-in user. Email may be absent; components
// that need it (the reciprocal friend edge, the public track document)
// degrade gracefully when it is.
type Identity struct {
	UserID string `yaml:"user_id"`
	Email  string `yaml:"email"`
}

// Store contains document store settings
type Store struct {
	Driver     string      `yaml:"driver"` // memory, sqlite, redis
	SQLitePath string      `yaml:"sqlite_path"`
	Redis      RedisConfig `yaml:"redis"`
}

// RedisConfig contains redis connection settings
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// Spotify contains music service settings. The client secret is never read
// from the config file; it comes from the SPOTIFY_SECRET environment variable.
type Spotify struct {
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"-"`
	TokenPath    string `yaml:"token_path"`
}

// Publish contains now-playing publisher settings
type Publish struct {
	Enabled         bool `yaml:"enabled"`
	IntervalSeconds int  `yaml:"interval_seconds"`
}

// Feed contains WebSocket feed server settings
type Feed struct {
	Enabled bool   `yaml:"enabled"`
	Bind    string `yaml:"bind"`
	Port    int    `yaml:"port"`
}

// Logging contains logging settings
type Logging struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns a configuration with sensible defaults
func Default() *Config {
	return &Config{
		Store: Store{
			Driver:     "sqlite",
			SQLitePath: "./earshot.db",
			Redis: RedisConfig{
				Addr: "localhost:6379",
			},
		},
		Publish: Publish{
			Enabled:         true,
			IntervalSeconds: 30,
		},
		Feed: Feed{
			Enabled: true,
			Bind:    "127.0.0.1",
			Port:    8177,
		},
		Logging: Logging{
			Level:  "info",
			Format: "text",
		},
	}
}

func applyDefaults(cfg *Config) {
	defaults := Default()

	if cfg.Store.Driver == "" {
		cfg.Store.Driver = defaults.Store.Driver
	}
	if cfg.Store.SQLitePath == "" {
		cfg.Store.SQLitePath = defaults.Store.SQLitePath
	}
	if cfg.Store.Redis.Addr == "" {
		cfg.Store.Redis.Addr = defaults.Store.Redis.Addr
	}
	if cfg.Publish.IntervalSeconds == 0 {
		cfg.Publish.IntervalSeconds = defaults.Publish.IntervalSeconds
	}
	if cfg.Feed.Bind == "" {
		cfg.Feed.Bind = defaults.Feed.Bind
	}
	if cfg.Feed.Port == 0 {
		cfg.Feed.Port = defaults.Feed.Port
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = defaults.Logging.Level
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = defaults.Logging.Format
	}
}

// applyEnvOverrides applies environment variable overrides to config
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("SPOTIFY_ID"); v != "" {
		cfg.Spotify.ClientID = v
	}
	if v := os.Getenv("SPOTIFY_SECRET"); v != "" {
		cfg.Spotify.ClientSecret = v
	}
	if v := os.Getenv("EARSHOT_REDIS_ADDR"); v != "" {
		cfg.Store.Redis.Addr = v
	}
	if v := os.Getenv("EARSHOT_USER_ID"); v != "" {
		cfg.Identity.UserID = v
	}
	if v := os.Getenv("EARSHOT_EMAIL"); v != "" {
		cfg.Identity.Email = v
	}
}

// validLogLevels defines allowed log levels
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// validStoreDrivers defines allowed document store drivers
var validStoreDrivers = map[string]bool{
	"memory": true,
	"sqlite": true,
	"redis":  true,
}

// Validate checks if a configuration is valid
func Validate(cfg *Config) error {
	if cfg.Identity.UserID == "" {
		return fmt.Errorf("identity.user_id is required")
	}
	if strings.Contains(cfg.Identity.UserID, "/") {
		return fmt.Errorf("identity.user_id must not contain '/'")
	}

	if !validStoreDrivers[cfg.Store.Driver] {
		return fmt.Errorf("invalid store driver: %s (must be one of: memory, sqlite, redis)", cfg.Store.Driver)
	}
	if cfg.Store.Driver == "sqlite" && cfg.Store.SQLitePath == "" {
		return fmt.Errorf("store.sqlite_path is required for the sqlite driver")
	}
	if cfg.Store.Driver == "redis" && cfg.Store.Redis.Addr == "" {
		return fmt.Errorf("store.redis.addr is required for the redis driver")
	}

	if cfg.Publish.Enabled {
		if cfg.Spotify.ClientID == "" || cfg.Spotify.ClientSecret == "" {
			return fmt.Errorf("publish requires Spotify credentials (SPOTIFY_ID and SPOTIFY_SECRET)")
		}
		if cfg.Publish.IntervalSeconds < 5 {
			return fmt.Errorf("publish.interval_seconds must be at least 5")
		}
	}

	if cfg.Feed.Enabled && (cfg.Feed.Port < 1 || cfg.Feed.Port > 65535) {
		return fmt.Errorf("feed.port must be between 1 and 65535")
	}

	if !validLogLevels[cfg.Logging.Level] {
		return fmt.Errorf("invalid log level: %s (must be one of: debug, info, warn, error)", cfg.Logging.Level)
	}

	return nil
}

// Load reads and parses a configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	applyDefaults(&cfg)
	applyEnvOverrides(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// GetExampleConfig returns the embedded example configuration
func GetExampleConfig() ([]byte, error) {
	return exampleConfig.ReadFile("example.yaml")
}

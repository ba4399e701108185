package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
)

// Storage backends
const (
	StorageMemory = "memory"
	StorageRedis  = "redis"
)

// Identity providers
const (
	IdentityNone     = "none"
	IdentityStatic   = "static"
	IdentityFirebase = "firebase"
)

// Config is the server configuration
type Config struct {
	Server   ServerConfig   `toml:"server"`
	Storage  StorageConfig  `toml:"storage"`
	Sync     SyncConfig     `toml:"sync"`
	Identity IdentityConfig `toml:"identity"`
	Admin    AdminConfig    `toml:"admin"`
	Logging  LoggingConfig  `toml:"logging"`
}

type ServerConfig struct {
	Host            string        `toml:"host"`
	Port            int           `toml:"port"`
	ReadTimeout     time.Duration `toml:"read_timeout"`
	WriteTimeout    time.Duration `toml:"write_timeout"`
	ShutdownTimeout time.Duration `toml:"shutdown_timeout"`
}

type StorageConfig struct {
	Type         string        `toml:"type"` // "memory" or "redis"
	RedisURL     string        `toml:"redis_url"`
	PoolSize     int           `toml:"pool_size"`
	MinIdleConns int           `toml:"min_idle_conns"`
	Timeout      time.Duration `toml:"timeout"` // bound on every durable call
}

type SyncConfig struct {
	ThrottleInterval time.Duration `toml:"throttle_interval"` // min gap between throttled writes per player
	LeaderboardLimit int           `toml:"leaderboard_limit"`
	ChatHistoryLimit int           `toml:"chat_history_limit"` // messages in the join snapshot
	SendBuffer       int           `toml:"send_buffer"`        // outbound events queued per connection
}

type IdentityConfig struct {
	Provider        string            `toml:"provider"` // "none", "static" or "firebase"
	ProjectID       string            `toml:"project_id"`
	CredentialsFile string            `toml:"credentials_file"`
	Timeout         time.Duration     `toml:"timeout"`
	StaticTokens    map[string]string `toml:"static_tokens"` // token -> subject, for local development
}

type AdminConfig struct {
	TokenHash string `toml:"token_hash"` // bcrypt hash; empty leaves admin routes open
}

type LoggingConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"` // "json" or "text"
}

func defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "",
			Port:            8080,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    60 * time.Second,
			ShutdownTimeout: 30 * time.Second,
		},
		Storage: StorageConfig{
			Type:         StorageMemory,
			RedisURL:     "redis://localhost:6379",
			PoolSize:     10,
			MinIdleConns: 2,
			Timeout:      5 * time.Second,
		},
		Sync: SyncConfig{
			ThrottleInterval: 5 * time.Second,
			LeaderboardLimit: 10,
			ChatHistoryLimit: 20,
			SendBuffer:       256,
		},
		Identity: IdentityConfig{
			Provider: IdentityNone,
			Timeout:  5 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Default returns the built-in configuration with environment overrides applied
func Default() *Config {
	cfg := defaults()
	cfg.applyEnv()
	return cfg
}

// Load reads a TOML file over the defaults, then applies environment
// overrides. An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := defaults()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks values that would otherwise fail late
func (c *Config) Validate() error {
	switch c.Storage.Type {
	case StorageMemory, StorageRedis:
	default:
		return fmt.Errorf("unknown storage type %q", c.Storage.Type)
	}
	switch c.Identity.Provider {
	case IdentityNone, IdentityStatic, IdentityFirebase:
	default:
		return fmt.Errorf("unknown identity provider %q", c.Identity.Provider)
	}
	if c.Sync.ThrottleInterval < 0 {
		return fmt.Errorf("throttle interval must not be negative")
	}
	if c.Sync.LeaderboardLimit <= 0 {
		return fmt.Errorf("leaderboard limit must be positive")
	}
	if c.Sync.SendBuffer <= 0 {
		return fmt.Errorf("send buffer must be positive")
	}
	return nil
}

func (c *Config) applyEnv() {
	c.Server.Host = getEnvOrDefault("SAILSYNC_HOST", c.Server.Host)
	c.Server.Port = getEnvInt("SAILSYNC_PORT", c.Server.Port)
	c.Storage.Type = getEnvOrDefault("SAILSYNC_STORAGE_TYPE", c.Storage.Type)
	c.Storage.RedisURL = getEnvOrDefault("SAILSYNC_REDIS_URL", c.Storage.RedisURL)
	c.Sync.ThrottleInterval = getEnvDuration("SAILSYNC_THROTTLE_INTERVAL", c.Sync.ThrottleInterval)
	c.Identity.Provider = getEnvOrDefault("SAILSYNC_IDENTITY_PROVIDER", c.Identity.Provider)
	c.Identity.ProjectID = getEnvOrDefault("SAILSYNC_FIREBASE_PROJECT", c.Identity.ProjectID)
	c.Identity.CredentialsFile = getEnvOrDefault("SAILSYNC_FIREBASE_CREDENTIALS", c.Identity.CredentialsFile)
	c.Admin.TokenHash = getEnvOrDefault("SAILSYNC_ADMIN_TOKEN_HASH", c.Admin.TokenHash)
	c.Logging.Level = getEnvOrDefault("SAILSYNC_LOG_LEVEL", c.Logging.Level)
	c.Logging.Format = getEnvOrDefault("SAILSYNC_LOG_FORMAT", c.Logging.Format)
}

func getEnvOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			return n
		}
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultVal
}

// config/config.go
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	StoreMemory   = "memory"
	StoreRedis    = "redis"
	StorePostgres = "postgres"
	StorePebble   = "pebble"
)

type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Store   StoreConfig   `yaml:"store"`
	Secrets SecretsConfig `yaml:"secrets"`
	Log     LogConfig     `yaml:"log"`
	Metrics MetricsConfig `yaml:"metrics"`
}

type ServerConfig struct {
	Host           string   `yaml:"host"`
	Port           int      `yaml:"port"`
	BaseURL        string   `yaml:"base_url"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

type StoreConfig struct {
	Type     string         `yaml:"type"`
	Redis    RedisConfig    `yaml:"redis"`
	Postgres PostgresConfig `yaml:"postgres"`
	Pebble   PebbleConfig   `yaml:"pebble"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type PostgresConfig struct {
	DSN         string `yaml:"dsn"`
	AutoMigrate bool   `yaml:"auto_migrate"`
}

type PebbleConfig struct {
	Path string `yaml:"path"`
}

type SecretsConfig struct {
	DefaultTTL    time.Duration `yaml:"default_ttl"`
	MaxAttempts   int           `yaml:"max_attempts"`
	Hasher        string        `yaml:"hasher"`
	EnforceTTL    bool          `yaml:"enforce_ttl"`
	SweepInterval time.Duration `yaml:"sweep_interval"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:           "0.0.0.0",
			Port:           8080,
			BaseURL:        "http://localhost:8080",
			AllowedOrigins: []string{"*"},
		},
		Store: StoreConfig{
			Type: StoreMemory,
			Redis: RedisConfig{
				Addr:     "localhost:6379",
				Password: "",
				DB:       0,
			},
			Postgres: PostgresConfig{
				AutoMigrate: true,
			},
			Pebble: PebbleConfig{
				Path: "data/secrets",
			},
		},
		Secrets: SecretsConfig{
			DefaultTTL:    24 * time.Hour,
			MaxAttempts:   3,
			Hasher:        "sha256",
			EnforceTTL:    false,
			SweepInterval: 30 * time.Second,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
	}
}

func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if err := cfg.loadFromFile(path); err != nil {
			return nil, err
		}
	}

	cfg.loadFromEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) loadFromFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil // File not found is OK, use defaults
		}
		return fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parsing config file: %w", err)
	}

	return nil
}

func (c *Config) loadFromEnv() {
	// Server
	if v := os.Getenv("HOST"); v != "" {
		c.Server.Host = v
	}
	if v := os.Getenv("PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Server.Port = port
		}
	}
	if v := os.Getenv("BASE_URL"); v != "" {
		c.Server.BaseURL = v
	}
	if v := os.Getenv("ALLOWED_ORIGINS"); v != "" {
		c.Server.AllowedOrigins = splitList(v)
	}

	if v := os.Getenv("STORE_TYPE"); v != "" {
		c.Store.Type = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.Store.Redis.Addr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		c.Store.Redis.Password = v
	}
	if v := os.Getenv("REDIS_DB"); v != "" {
		if db, err := strconv.Atoi(v); err == nil {
			c.Store.Redis.DB = db
		}
	}
	if v := os.Getenv("POSTGRES_DSN"); v != "" {
		c.Store.Postgres.DSN = v
	}
	if v := os.Getenv("POSTGRES_AUTO_MIGRATE"); v != "" {
		c.Store.Postgres.AutoMigrate = parseBool(v)
	}
	if v := os.Getenv("PEBBLE_PATH"); v != "" {
		c.Store.Pebble.Path = v
	}

	if v := os.Getenv("DEFAULT_TTL"); v != "" {
		if ttl, err := time.ParseDuration(v); err == nil {
			c.Secrets.DefaultTTL = ttl
		}
	}
	if v := os.Getenv("MAX_ATTEMPTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Secrets.MaxAttempts = n
		}
	}
	if v := os.Getenv("PASSWORD_HASHER"); v != "" {
		c.Secrets.Hasher = v
	}
	if v := os.Getenv("ENFORCE_TTL"); v != "" {
		c.Secrets.EnforceTTL = parseBool(v)
	}
	if v := os.Getenv("SWEEP_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.Secrets.SweepInterval = d
		}
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		c.Log.Format = v
	}

	if v := os.Getenv("METRICS_ENABLED"); v != "" {
		c.Metrics.Enabled = parseBool(v)
	}
	if v := os.Getenv("METRICS_PATH"); v != "" {
		c.Metrics.Path = v
	}
}

func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Server.Port)
	}

	if c.Server.BaseURL == "" {
		return fmt.Errorf("base_url is required")
	}

	switch c.Store.Type {
	case StoreMemory:
	case StoreRedis:
		if c.Store.Redis.Addr == "" {
			return fmt.Errorf("redis addr is required when store type is 'redis'")
		}
	case StorePostgres:
		if c.Store.Postgres.DSN == "" {
			return fmt.Errorf("postgres dsn is required when store type is 'postgres'")
		}
	case StorePebble:
		if c.Store.Pebble.Path == "" {
			return fmt.Errorf("pebble path is required when store type is 'pebble'")
		}
	default:
		return fmt.Errorf("invalid store type: %s (must be one of memory, redis, postgres, pebble)", c.Store.Type)
	}

	if c.Secrets.DefaultTTL < time.Second {
		return fmt.Errorf("default_ttl must be at least 1s")
	}

	if c.Secrets.MaxAttempts < 1 {
		return fmt.Errorf("max_attempts must be at least 1")
	}

	if c.Secrets.Hasher != "sha256" && c.Secrets.Hasher != "argon2id" {
		return fmt.Errorf("invalid hasher: %s (must be 'sha256' or 'argon2id')", c.Secrets.Hasher)
	}

	if c.Secrets.EnforceTTL && c.Secrets.SweepInterval <= 0 {
		return fmt.Errorf("sweep_interval must be positive when enforce_ttl is set")
	}

	if c.Metrics.Enabled && !strings.HasPrefix(c.Metrics.Path, "/") {
		return fmt.Errorf("metrics path must start with '/'")
	}

	return nil
}

func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// DefaultTTLSeconds is the TTL recorded on secrets created without one.
func (c *Config) DefaultTTLSeconds() int {
	return int(c.Secrets.DefaultTTL / time.Second)
}

func parseBool(v string) bool {
	return v == "true" || v == "1"
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

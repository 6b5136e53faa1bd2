package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

const (
	envPrefix         = "AUCTION_"
	envConfigFile     = "AUCTION_CONFIG_FILE"
	defaultConfigFile = "configs/config.yaml"
)

// Storage backends
const (
	BackendMemory   = "memory"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
)

type Config struct {
	LogLevel   string           `koanf:"log_level"`
	Server     ServerConfig     `koanf:"server"`
	Storage    StorageConfig    `koanf:"storage"`
	Redis      RedisConfig      `koanf:"redis"`
	Postgres   PostgresConfig   `koanf:"postgres"`
	Repository RepositoryConfig `koanf:"repository"`
	Auth       AuthConfig       `koanf:"auth"`
	NATS       NATSConfig       `koanf:"nats"`
	RateLimit  RateLimitConfig  `koanf:"rate_limit"`
	Lifecycle  LifecycleConfig  `koanf:"lifecycle"`
}

type ServerConfig struct {
	Port            int           `koanf:"port"`
	ReadTimeout     time.Duration `koanf:"read_timeout"`
	WriteTimeout    time.Duration `koanf:"write_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// Addr returns the listen address for net/http
func (s ServerConfig) Addr() string {
	return fmt.Sprintf(":%d", s.Port)
}

type StorageConfig struct {
	Backend string `koanf:"backend"`
}

type RedisConfig struct {
	Addr     string `koanf:"addr"`
	Password string `koanf:"password"`
	DB       int    `koanf:"db"`
}

type PostgresConfig struct {
	URL      string `koanf:"url"`
	MaxConns int32  `koanf:"max_conns"`
}

type RepositoryConfig struct {
	MaxRetries int `koanf:"max_retries"`
}

type AuthConfig struct {
	JWTSecret string `koanf:"jwt_secret"`
}

// NATSConfig enables event publishing when URL is set
type NATSConfig struct {
	URL           string `koanf:"url"`
	SubjectPrefix string `koanf:"subject_prefix"`
}

// RateLimitConfig limits requests per client. A zero RPS disables limiting.
type RateLimitConfig struct {
	RPS   float64 `koanf:"rps"`
	Burst int     `koanf:"burst"`
}

// LifecycleConfig controls the background sweeper. A zero interval disables it;
// expired auctions are then closed lazily on access only.
type LifecycleConfig struct {
	SweepInterval time.Duration `koanf:"sweep_interval"`
}

// Defaults returns the configuration used when nothing overrides it
func Defaults() Config {
	return Config{
		LogLevel: "info",
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Storage: StorageConfig{
			Backend: BackendMemory,
		},
		Redis: RedisConfig{
			Addr: "localhost:6379",
		},
		Postgres: PostgresConfig{
			MaxConns: 10,
		},
		Repository: RepositoryConfig{
			MaxRetries: 5,
		},
		NATS: NATSConfig{
			SubjectPrefix: "auctions",
		},
		RateLimit: RateLimitConfig{
			RPS:   50,
			Burst: 100,
		},
	}
}

// Load reads defaults, then the YAML file named by AUCTION_CONFIG_FILE (configs/config.yaml
// if unset, skipped when missing), then AUCTION_* environment variables.
// A double underscore separates levels: AUCTION_AUTH__JWT_SECRET sets auth.jwt_secret.
func Load() (*Config, error) {
	path := os.Getenv(envConfigFile)
	if path == "" {
		path = defaultConfigFile
	}
	return LoadFile(path)
}

// LoadFile is Load with an explicit config file path
func LoadFile(path string) (*Config, error) {
	k := koanf.New(".")

	defaults := Defaults()
	if err := k.Load(structs.Provider(defaults, "koanf"), nil); err != nil {
		return nil, fmt.Errorf("loading defaults: %w", err)
	}

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("loading config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(envPrefix, ".", func(s string) string {
		return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, envPrefix)), "__", ".")
	}), nil); err != nil {
		return nil, fmt.Errorf("loading environment variables: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate reports the first invalid setting
func (c *Config) Validate() error {
	switch c.Storage.Backend {
	case BackendMemory:
	case BackendRedis:
		if c.Redis.Addr == "" {
			return errors.New("config: redis.addr is required for the redis backend")
		}
	case BackendPostgres:
		if c.Postgres.URL == "" {
			return errors.New("config: postgres.url is required for the postgres backend")
		}
	default:
		return fmt.Errorf("config: unknown storage backend %q", c.Storage.Backend)
	}

	if c.Auth.JWTSecret == "" {
		return errors.New("config: auth.jwt_secret is required")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("config: invalid server port %d", c.Server.Port)
	}
	if c.RateLimit.RPS < 0 || (c.RateLimit.RPS > 0 && c.RateLimit.Burst <= 0) {
		return errors.New("config: rate_limit needs a non-negative rps and a positive burst")
	}
	if c.Lifecycle.SweepInterval < 0 {
		return errors.New("config: lifecycle.sweep_interval cannot be negative")
	}
	return nil
}

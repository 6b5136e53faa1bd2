package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadFile_DefaultsAndEnv(t *testing.T) {
	t.Setenv("AUCTION_AUTH__JWT_SECRET", "s3cret")
	t.Setenv("AUCTION_SERVER__PORT", "9090")
	t.Setenv("AUCTION_RATE_LIMIT__BURST", "7")

	cfg, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	require.Equal(t, "s3cret", cfg.Auth.JWTSecret)
	require.Equal(t, 9090, cfg.Server.Port)
	require.Equal(t, ":9090", cfg.Server.Addr())
	require.Equal(t, 7, cfg.RateLimit.Burst)
	require.Equal(t, 50.0, cfg.RateLimit.RPS)
	require.Equal(t, BackendMemory, cfg.Storage.Backend)
	require.Equal(t, 15*time.Second, cfg.Server.ReadTimeout)
	require.Equal(t, 5, cfg.Repository.MaxRetries)
	require.Equal(t, "info", cfg.LogLevel)
	require.Zero(t, cfg.Lifecycle.SweepInterval)
}

func TestLoadFile_FileThenEnv(t *testing.T) {
	path := writeConfig(t, `
log_level: debug
storage:
  backend: redis
redis:
  addr: cache:6379
  db: 2
auth:
  jwt_secret: from-file
lifecycle:
  sweep_interval: 30s
nats:
  url: nats://bus:4222
`)
	t.Setenv("AUCTION_AUTH__JWT_SECRET", "from-env")

	cfg, err := LoadFile(path)
	require.NoError(t, err)

	require.Equal(t, "debug", cfg.LogLevel)
	require.Equal(t, BackendRedis, cfg.Storage.Backend)
	require.Equal(t, "cache:6379", cfg.Redis.Addr)
	require.Equal(t, 2, cfg.Redis.DB)
	require.Equal(t, "from-env", cfg.Auth.JWTSecret, "environment overrides the file")
	require.Equal(t, 30*time.Second, cfg.Lifecycle.SweepInterval)
	require.Equal(t, "nats://bus:4222", cfg.NATS.URL)
	require.Equal(t, "auctions", cfg.NATS.SubjectPrefix)
}

func TestLoad_UsesConfigFileFromEnv(t *testing.T) {
	path := writeConfig(t, `
auth:
  jwt_secret: abc
server:
  port: 7070
`)
	t.Setenv("AUCTION_CONFIG_FILE", path)

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, 7070, cfg.Server.Port)
}

func TestLoadFile_InvalidYAML(t *testing.T) {
	path := writeConfig(t, "server: [unclosed")
	t.Setenv("AUCTION_AUTH__JWT_SECRET", "s3cret")

	_, err := LoadFile(path)
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	t.Parallel()

	valid := func() Config {
		cfg := Defaults()
		cfg.Auth.JWTSecret = "secret"
		return cfg
	}

	tests := []struct {
		name      string
		mutate    func(c *Config)
		expectErr bool
	}{
		{name: "defaults_with_secret", mutate: func(*Config) {}},
		{name: "missing_secret", mutate: func(c *Config) { c.Auth.JWTSecret = "" }, expectErr: true},
		{name: "unknown_backend", mutate: func(c *Config) { c.Storage.Backend = "mongo" }, expectErr: true},
		{name: "postgres_without_url", mutate: func(c *Config) { c.Storage.Backend = BackendPostgres }, expectErr: true},
		{name: "postgres_with_url", mutate: func(c *Config) {
			c.Storage.Backend = BackendPostgres
			c.Postgres.URL = "postgres://localhost/auctions"
		}},
		{name: "redis_without_addr", mutate: func(c *Config) {
			c.Storage.Backend = BackendRedis
			c.Redis.Addr = ""
		}, expectErr: true},
		{name: "bad_port", mutate: func(c *Config) { c.Server.Port = 70000 }, expectErr: true},
		{name: "rate_limit_disabled", mutate: func(c *Config) { c.RateLimit = RateLimitConfig{} }},
		{name: "rate_limit_without_burst", mutate: func(c *Config) { c.RateLimit.Burst = 0 }, expectErr: true},
		{name: "negative_sweep_interval", mutate: func(c *Config) { c.Lifecycle.SweepInterval = -time.Second }, expectErr: true},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			cfg := valid()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if tc.expectErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
		})
	}
}

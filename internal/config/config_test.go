package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/always-cache/httpcache/rfc9111"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "httpcache.yml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, "sqlite", cfg.Storage.Provider)
	require.Equal(t, ":8080", cfg.Server.Listen)
	require.Equal(t, time.Minute, cfg.SweepInterval())
	require.Equal(t, 24*time.Hour, cfg.SweepCeiling())
	require.Equal(t, zerolog.DebugLevel, cfg.LogLevel())
	require.False(t, cfg.HasRefresh())
	require.True(t, cfg.CachePolicy().IsCacheable(rfc9111.CacheControl{}, "GET", 404))
}

func TestLoadFile(t *testing.T) {
	path := writeConfig(t, `
namespace: www
storage:
  provider: LevelDB
  dsn: /var/cache/httpcache
sweep:
  interval: 5m
  ceiling: 1h
policy:
  methods: [get, post]
  statusCodes: [200]
log:
  level: trace
rules:
  - prefix: /static/
    default: max-age=3600
  - path: /search
    method: POST
    override: max-age=60
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "www", cfg.Namespace)
	require.Equal(t, "leveldb", cfg.Storage.Provider)
	require.Equal(t, 5*time.Minute, cfg.SweepInterval())
	require.Equal(t, time.Hour, cfg.SweepCeiling())
	require.Equal(t, []string{"GET", "POST"}, cfg.Policy.Methods)
	require.Equal(t, zerolog.TraceLevel, cfg.LogLevel())
	require.Len(t, cfg.Rules, 2)
	require.Equal(t, "max-age=3600", cfg.Rules[0].Default)

	policy := cfg.CachePolicy()
	require.True(t, policy.IsCacheable(rfc9111.CacheControl{}, "POST", 200))
	require.False(t, policy.IsCacheable(rfc9111.CacheControl{}, "GET", 404))
}

func TestLoadEnvOverridesFile(t *testing.T) {
	path := writeConfig(t, "storage:\n  provider: leveldb\n  dsn: ./db\n")
	t.Setenv("HTTPCACHE_STORAGE_PROVIDER", "redis")
	t.Setenv("HTTPCACHE_STORAGE_DSN", "localhost:6379")
	t.Setenv("HTTPCACHE_POLICY_STATUS_CODES", "200,404")
	t.Setenv("HTTPCACHE_REFRESH_REDIS_ADDR", "localhost:6379")
	t.Setenv("HTTPCACHE_SWEEP_INTERVAL", "0s")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "redis", cfg.Storage.Provider)
	require.Equal(t, "localhost:6379", cfg.Storage.DSN)
	require.Equal(t, []int{200, 404}, cfg.Policy.StatusCodes)
	require.True(t, cfg.HasRefresh())
	require.Zero(t, cfg.SweepInterval())
}

func TestLoadInvalid(t *testing.T) {
	for name, content := range map[string]string{
		"unknown provider": "storage:\n  provider: floppy\n",
		"missing dsn":      "storage:\n  provider: postgres\n",
		"bad duration":     "sweep:\n  ceiling: forever\n",
		"negative":         "sweep:\n  interval: -1m\n",
		"bad status":       "policy:\n  statusCodes: [100]\n",
		"bad level":        "log:\n  level: loud\n",
		"bad prefix":       "rules:\n  - prefix: static\n",
		"uncached method":  "rules:\n  - method: DELETE\n",
		"not yaml":         "storage: [",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeConfig(t, content))
			require.Error(t, err)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yml"))
	require.ErrorIs(t, err, os.ErrNotExist)
}

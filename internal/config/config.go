// Package config loads the configuration of the httpcache daemon from a yaml
// file, overlaid by HTTPCACHE_* environment variables.
package config

import (
	"fmt"
	"net/http"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/always-cache/httpcache/cache"
	"github.com/always-cache/httpcache/pkg/rules"
	"github.com/always-cache/httpcache/rfc9111"

	"github.com/caarlos0/env/v11"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is the prefix of all environment variables read by Load.
const EnvPrefix = "HTTPCACHE_"

type Config struct {
	// Namespace separates caches sharing the same storage.
	Namespace string `yaml:"namespace" env:"NAMESPACE"`

	Storage struct {
		Provider string `yaml:"provider" env:"PROVIDER"`
		DSN      string `yaml:"dsn" env:"DSN"`
	} `yaml:"storage" envPrefix:"STORAGE_"`

	Server struct {
		Listen string `yaml:"listen" env:"LISTEN"`
	} `yaml:"server" envPrefix:"SERVER_"`

	Sweep struct {
		Interval string `yaml:"interval" env:"INTERVAL"`
		Ceiling  string `yaml:"ceiling" env:"CEILING"`
	} `yaml:"sweep" envPrefix:"SWEEP_"`

	Policy struct {
		Methods     []string `yaml:"methods" env:"METHODS" envSeparator:","`
		StatusCodes []int    `yaml:"statusCodes" env:"STATUS_CODES" envSeparator:","`
	} `yaml:"policy" envPrefix:"POLICY_"`

	Refresh struct {
		// RedisAddr enables stale-while-revalidate refresh jobs.
		RedisAddr   string `yaml:"redisAddr" env:"REDIS_ADDR"`
		Concurrency int    `yaml:"concurrency" env:"CONCURRENCY"`
		Timeout     string `yaml:"timeout" env:"TIMEOUT"`
	} `yaml:"refresh" envPrefix:"REFRESH_"`

	Log struct {
		Level string `yaml:"level" env:"LEVEL"`
		File  string `yaml:"file" env:"FILE"`
	} `yaml:"log" envPrefix:"LOG_"`

	Rules rules.Rules `yaml:"rules"`

	// compiled
	sweepInterval  time.Duration
	sweepCeiling   time.Duration
	refreshTimeout time.Duration
	logLevel       zerolog.Level
}

// Default returns the configuration used when nothing is configured.
func Default() Config {
	var cfg Config
	cfg.Storage.Provider = cache.SQLite
	cfg.Storage.DSN = "cache.db"
	cfg.Server.Listen = ":8080"
	cfg.Sweep.Interval = "1m"
	cfg.Sweep.Ceiling = "24h"
	cfg.Refresh.Concurrency = 4
	cfg.Refresh.Timeout = "30s"
	cfg.Log.Level = "debug"
	return cfg
}

// Load reads the yaml file at path, if path is not empty, applies the
// environment and validates the result.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return Config{}, err
		}
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return Config{}, fmt.Errorf("%s: %w", path, err)
		}
	}
	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return Config{}, err
	}
	if err := cfg.compile(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) compile() error {
	var err error
	c.Storage.Provider = strings.ToLower(c.Storage.Provider)
	switch c.Storage.Provider {
	case cache.Memory, cache.SQLite, cache.LevelDB:
	case cache.Redis, cache.Postgres:
		if c.Storage.DSN == "" {
			return fmt.Errorf("storage.dsn is required for provider %s", c.Storage.Provider)
		}
	default:
		return fmt.Errorf("storage.provider: %w: %q", cache.ErrUnknownProvider, c.Storage.Provider)
	}

	if c.sweepInterval, err = parseDuration("sweep.interval", c.Sweep.Interval); err != nil {
		return err
	}
	if c.sweepCeiling, err = parseDuration("sweep.ceiling", c.Sweep.Ceiling); err != nil {
		return err
	}
	if c.refreshTimeout, err = parseDuration("refresh.timeout", c.Refresh.Timeout); err != nil {
		return err
	}
	if c.Refresh.Concurrency < 1 {
		c.Refresh.Concurrency = 1
	}

	for i, method := range c.Policy.Methods {
		method = strings.ToUpper(strings.TrimSpace(method))
		if method == "" {
			return fmt.Errorf("policy.methods[%d]: empty method", i)
		}
		c.Policy.Methods[i] = method
	}
	for i, code := range c.Policy.StatusCodes {
		if code < 200 || code > 599 {
			return fmt.Errorf("policy.statusCodes[%d]: %d is not a final status code", i, code)
		}
	}

	methods := c.Policy.Methods
	if len(methods) == 0 {
		methods = rfc9111.DefaultMethods
	}
	for i, rule := range c.Rules {
		if rule.Prefix != "" && !strings.HasPrefix(rule.Prefix, "/") {
			return fmt.Errorf("rules[%d].prefix: %q does not start with /", i, rule.Prefix)
		}
		method := strings.ToUpper(rule.Method)
		if method == "" {
			method = http.MethodGet
		}
		if !slices.Contains(methods, method) {
			return fmt.Errorf("rules[%d].method: %s is not cached", i, rule.Method)
		}
	}

	if c.logLevel, err = zerolog.ParseLevel(strings.ToLower(c.Log.Level)); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	return nil
}

func parseDuration(name, value string) (time.Duration, error) {
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", name, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s: negative duration %s", name, value)
	}
	return d, nil
}

// SweepInterval is how often the sweeper runs; zero disables it.
func (c Config) SweepInterval() time.Duration {
	return c.sweepInterval
}

// SweepCeiling is the age after which non-immutable records are swept.
func (c Config) SweepCeiling() time.Duration {
	return c.sweepCeiling
}

func (c Config) RefreshTimeout() time.Duration {
	return c.refreshTimeout
}

func (c Config) LogLevel() zerolog.Level {
	return c.logLevel
}

// CachePolicy returns the storage policy. Unset lists use the defaults.
func (c Config) CachePolicy() rfc9111.Policy {
	return rfc9111.Policy{
		Methods:     c.Policy.Methods,
		StatusCodes: c.Policy.StatusCodes,
	}
}

// HasRefresh reports whether refresh jobs are configured.
func (c Config) HasRefresh() bool {
	return c.Refresh.RedisAddr != ""
}

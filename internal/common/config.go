package common

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pelletier/go-toml/v2"
)

// Config represents the application configuration
type Config struct {
	Environment string        `toml:"environment" validate:"oneof=development production"` // controls sandbox vs production GitHub target
	Server      ServerConfig  `toml:"server"`
	Storage     StorageConfig `toml:"storage"`
	Queue       QueueConfig   `toml:"queue"`
	Cache       CacheConfig   `toml:"cache"`
	GitHub      GitHubConfig  `toml:"github"`
	Reporter    ReporterConfig `toml:"reporter"`
	Logging     LoggingConfig `toml:"logging"`
}

type ServerConfig struct {
	Port int    `toml:"port" validate:"min=1,max=65535"`
	Host string `toml:"host" validate:"required"`
}

type StorageConfig struct {
	Badger BadgerConfig `toml:"badger"`
}

// BadgerConfig represents BadgerDB-specific configuration
type BadgerConfig struct {
	Path           string `toml:"path" validate:"required"` // Database directory path
	ResetOnStartup bool   `toml:"reset_on_startup"`         // Delete database on startup for clean test runs
}

type QueueConfig struct {
	PollInterval      string `toml:"poll_interval" validate:"required"`      // e.g. "1s" - how often workers poll for messages
	Concurrency       int    `toml:"concurrency" validate:"min=1"`           // number of concurrent workers
	VisibilityTimeout string `toml:"visibility_timeout" validate:"required"` // e.g. "5m" - lease before redelivery
	MaxReceive        int    `toml:"max_receive" validate:"min=1"`           // receives before dead-letter
	PurgeAfter        string `toml:"purge_after" validate:"required"`        // dead-letter retention, e.g. "24h"
}

type CacheConfig struct {
	CounterTTL string `toml:"counter_ttl" validate:"required"` // counter cache entry lifetime
	GuardTTL   string `toml:"guard_ttl" validate:"required"`   // backoff guard safety-net lifetime
}

// GitHubConfig contains the issue tracker credentials and target repositories.
// Owner/Repo address the production repository; the sandbox pair is used in
// development so test crashes never file real issues.
type GitHubConfig struct {
	Token             string  `toml:"token"`
	WebhookSecret     string  `toml:"webhook_secret"`
	Owner             string  `toml:"owner" validate:"required"`
	Repo              string  `toml:"repo" validate:"required"`
	SandboxOwner      string  `toml:"sandbox_owner" validate:"required"`
	SandboxRepo       string  `toml:"sandbox_repo" validate:"required"`
	RequestsPerSecond float64 `toml:"requests_per_second" validate:"gt=0"`
}

// ReporterConfig addresses the crash report viewer that issue bodies link to.
type ReporterConfig struct {
	Host        string `toml:"host" validate:"required"`
	SandboxHost string `toml:"sandbox_host" validate:"required"`
}

type LoggingConfig struct {
	Level  string   `toml:"level" validate:"oneof=trace debug info warn error"` // log level
	Output []string `toml:"output"`                                             // "stdout", "file"
}

// NewDefaultConfig creates a configuration with default values.
// Technical parameters are hardcoded here for production stability.
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Server: ServerConfig{
			Port: 8080,
			Host: "localhost",
		},
		Storage: StorageConfig{
			Badger: BadgerConfig{
				Path: "./data",
			},
		},
		Queue: QueueConfig{
			PollInterval:      "1s",
			Concurrency:       4,
			VisibilityTimeout: "5m",
			MaxReceive:        3,
			PurgeAfter:        "24h",
		},
		Cache: CacheConfig{
			CounterTTL: "60s",
			GuardTTL:   "10m",
		},
		GitHub: GitHubConfig{
			Owner:             "tessel",
			Repo:              "t2-cli",
			SandboxOwner:      "tikurahul",
			SandboxRepo:       "sandbox",
			RequestsPerSecond: 2,
		},
		Reporter: ReporterConfig{
			Host:        "http://crash-reporter.tessel.io",
			SandboxHost: "http://localhost:8080",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Output: []string{"stdout", "file"},
		},
	}
}

// LoadFromFiles loads configuration with priority: defaults -> file1 -> file2
// -> ... -> env. Later files override earlier ones.
func LoadFromFiles(paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	for _, path := range paths {
		if path == "" {
			continue
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	applyEnvOverrides(config)

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Validate checks field constraints and duration formats.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	for name, value := range map[string]string{
		"queue.poll_interval":      c.Queue.PollInterval,
		"queue.visibility_timeout": c.Queue.VisibilityTimeout,
		"queue.purge_after":        c.Queue.PurgeAfter,
		"cache.counter_ttl":        c.Cache.CounterTTL,
		"cache.guard_ttl":          c.Cache.GuardTTL,
	} {
		if _, err := time.ParseDuration(value); err != nil {
			return fmt.Errorf("invalid configuration: %s: %w", name, err)
		}
	}
	return nil
}

// IsProduction reports whether the production GitHub repository and reporter
// host should be used.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// applyEnvOverrides applies environment variable overrides to config
func applyEnvOverrides(config *Config) {
	if env := os.Getenv("FRAGOR_ENV"); env != "" {
		config.Environment = env
	} else if env := os.Getenv("GO_ENV"); env != "" {
		config.Environment = env
	}

	if port := os.Getenv("FRAGOR_SERVER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}
	if host := os.Getenv("FRAGOR_SERVER_HOST"); host != "" {
		config.Server.Host = host
	}
	if path := os.Getenv("FRAGOR_BADGER_PATH"); path != "" {
		config.Storage.Badger.Path = path
	}
	if token := os.Getenv("FRAGOR_GITHUB_TOKEN"); token != "" {
		config.GitHub.Token = token
	}
	if secret := os.Getenv("FRAGOR_WEBHOOK_SECRET"); secret != "" {
		config.GitHub.WebhookSecret = secret
	}
	if level := os.Getenv("FRAGOR_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}
}

// Duration accessors. Values are validated at load time; parse failures here
// fall back to the documented defaults.

func (c *QueueConfig) PollIntervalDuration() time.Duration {
	return parseDurationOr(c.PollInterval, time.Second)
}

func (c *QueueConfig) VisibilityTimeoutDuration() time.Duration {
	return parseDurationOr(c.VisibilityTimeout, 5*time.Minute)
}

func (c *QueueConfig) PurgeAfterDuration() time.Duration {
	return parseDurationOr(c.PurgeAfter, 24*time.Hour)
}

func (c *CacheConfig) CounterTTLDuration() time.Duration {
	return parseDurationOr(c.CounterTTL, 60*time.Second)
}

func (c *CacheConfig) GuardTTLDuration() time.Duration {
	return parseDurationOr(c.GuardTTL, 10*time.Minute)
}

func parseDurationOr(value string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(value)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

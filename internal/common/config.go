package common

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pelletier/go-toml/v2"
)

// Config represents the application configuration.
type Config struct {
	Environment string            `toml:"environment"` // "development" or "production"
	Storage     StorageConfig     `toml:"storage"`
	ObjectStore ObjectStoreConfig `toml:"object_store"`
	Encryption  EncryptionConfig  `toml:"encryption"`
	Browser     BrowserConfig     `toml:"browser"`
	Extractor   ExtractorConfig   `toml:"extractor"`
	Scheduler   SchedulerConfig   `toml:"scheduler"`
	Logging     LoggingConfig     `toml:"logging"`
}

type StorageConfig struct {
	Badger BadgerConfig `toml:"badger"`
}

// BadgerConfig represents BadgerDB-specific configuration.
type BadgerConfig struct {
	Path           string `toml:"path" validate:"required"`
	ResetOnStartup bool   `toml:"reset_on_startup"`
}

// ObjectStoreConfig configures the blob store holding downloaded documents.
// Credentials are the inline service-account JSON, normally injected through
// OBJECT_STORE_CREDENTIALS rather than the config file.
type ObjectStoreConfig struct {
	Bucket      string `toml:"bucket"`
	Credentials string `toml:"credentials"`
}

// EncryptionConfig carries the passphrase for the credential vault. Set via
// SYMMETRIC_ENCRYPTION_KEY; never committed to a config file in production.
type EncryptionConfig struct {
	Key string `toml:"key"`
}

// BrowserConfig configures the headless browser pool.
type BrowserConfig struct {
	Headless   bool          `toml:"headless"`
	DisableGPU bool          `toml:"disable_gpu"`
	NoSandbox  bool          `toml:"no_sandbox"`
	UserAgent  string        `toml:"user_agent"`
	NavTimeout time.Duration `toml:"nav_timeout"`
	NavDelay   time.Duration `toml:"nav_delay"` // minimum spacing between navigations per tenant
}

// ExtractorConfig bounds the extraction pipeline.
type ExtractorConfig struct {
	WorkerLimit int           `toml:"worker_limit" validate:"min=1,max=50"`
	RunTimeout  time.Duration `toml:"run_timeout"`
}

// SchedulerConfig bounds scheduler shutdown.
type SchedulerConfig struct {
	ShutdownGrace time.Duration `toml:"shutdown_grace"`
}

type LoggingConfig struct {
	Level  string   `toml:"level"`  // "debug", "info", "warn", "error"
	Output []string `toml:"output"` // "stdout", "file"
}

// DefaultConfig returns the built-in defaults, matching the documented
// environment defaults (5 workers, 30s navigation timeout, 30m run timeout,
// 30s scheduler grace).
func DefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Storage: StorageConfig{
			Badger: BadgerConfig{Path: "./data/conectasei"},
		},
		Browser: BrowserConfig{
			Headless:   true,
			DisableGPU: true,
			NoSandbox:  true,
			UserAgent:  "ConectaSEI/2.0",
			NavTimeout: 30 * time.Second,
			NavDelay:   500 * time.Millisecond,
		},
		Extractor: ExtractorConfig{
			WorkerLimit: 5,
			RunTimeout:  30 * time.Minute,
		},
		Scheduler: SchedulerConfig{
			ShutdownGrace: 30 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Output: []string{"stdout", "file"},
		},
	}
}

// LoadFromFiles loads configuration in priority order: defaults, then each
// file in sequence (later files override earlier ones), then environment
// variables.
func LoadFromFiles(paths ...string) (*Config, error) {
	config := DefaultConfig()

	for _, path := range paths {
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

// applyEnvOverrides applies environment variables on top of file values.
func applyEnvOverrides(config *Config) {
	if v := os.Getenv("DATABASE_URL"); v != "" {
		config.Storage.Badger.Path = v
	}
	if v := os.Getenv("OBJECT_STORE_BUCKET"); v != "" {
		config.ObjectStore.Bucket = v
	}
	if v := os.Getenv("OBJECT_STORE_CREDENTIALS"); v != "" {
		config.ObjectStore.Credentials = v
	}
	if v := os.Getenv("SYMMETRIC_ENCRYPTION_KEY"); v != "" {
		config.Encryption.Key = v
	}
	if v := os.Getenv("EXTRACTOR_WORKER_LIMIT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			config.Extractor.WorkerLimit = n
		}
	}
	if ms := envMillis("BROWSER_NAV_TIMEOUT_MS"); ms > 0 {
		config.Browser.NavTimeout = ms
	}
	if ms := envMillis("EXTRACTION_RUN_TIMEOUT_MS"); ms > 0 {
		config.Extractor.RunTimeout = ms
	}
	if ms := envMillis("SCHEDULER_SHUTDOWN_GRACE_MS"); ms > 0 {
		config.Scheduler.ShutdownGrace = ms
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		config.Logging.Level = v
	}
}

func envMillis(name string) time.Duration {
	v := os.Getenv(name)
	if v == "" {
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 0
	}
	return time.Duration(n) * time.Millisecond
}

// Validate checks structural constraints on the resolved configuration.
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if c.Extractor.RunTimeout <= 0 {
		return fmt.Errorf("invalid configuration: extractor run_timeout must be positive")
	}
	if c.Browser.NavTimeout <= 0 {
		return fmt.Errorf("invalid configuration: browser nav_timeout must be positive")
	}
	return nil
}

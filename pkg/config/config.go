// Package config handles ideagraph configuration via environment variables
// and YAML files.
//
// Configuration starts from DefaultConfig(), is optionally overlaid with a
// YAML file, and is finally overridden by IDEAGRAPH_* environment
// variables. Environment variables always win, which keeps container
// deployments simple.
//
// Example Usage:
//
//	cfg := config.LoadFromEnvOrFile("./ideagraph.yaml")
//	if err := cfg.Validate(); err != nil {
//		log.Fatalf("Invalid config: %v", err)
//	}
//
//	fmt.Println(cfg)
//
// Environment Variables:
//
//   - IDEAGRAPH_DATA_DIR="./data"
//   - IDEAGRAPH_IN_MEMORY=false
//   - IDEAGRAPH_SYNC_WRITES=false
//   - IDEAGRAPH_LOW_MEMORY=false
//   - IDEAGRAPH_ENCRYPTION_PASSWORD=""
//   - IDEAGRAPH_ENCRYPTION_SALT="ideagraph"
//   - IDEAGRAPH_CACHE_ENABLED=true
//   - IDEAGRAPH_CACHE_SIZE=10000
//   - IDEAGRAPH_CACHE_TTL=5m
//   - IDEAGRAPH_SEARCH_MAX_RESULTS=0
//   - IDEAGRAPH_SEARCH_CONCURRENCY=8
//   - IDEAGRAPH_LOG_LEVEL=INFO
//   - IDEAGRAPH_LOG_FORMAT=text
//   - IDEAGRAPH_LOG_OUTPUT=stderr
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all ideagraph configuration.
//
// Configuration is organized into logical sections:
//   - Database: where and how ideas are stored
//   - Cache: read-through cache in front of the store
//   - Search: discovery search limits
//   - Logging: log level, format and destination
type Config struct {
	Database DatabaseConfig `yaml:"database"`
	Cache    CacheConfig    `yaml:"cache"`
	Search   SearchConfig   `yaml:"search"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// DatabaseConfig holds idea store settings.
type DatabaseConfig struct {
	// DataDir is the directory for BadgerDB files
	DataDir string `yaml:"data_dir"`
	// InMemory keeps everything in memory and ignores DataDir
	InMemory bool `yaml:"in_memory"`
	// SyncWrites fsyncs every write
	SyncWrites bool `yaml:"sync_writes"`
	// LowMemory trades throughput for a smaller footprint
	LowMemory bool `yaml:"low_memory"`
	// EncryptionPassword enables encryption at rest when set
	EncryptionPassword string `yaml:"encryption_password"`
	// EncryptionSalt is mixed into the key derivation
	EncryptionSalt string `yaml:"encryption_salt"`
}

// CacheConfig holds read-through cache settings.
type CacheConfig struct {
	Enabled bool          `yaml:"enabled"`
	Size    int           `yaml:"size"`
	TTL     time.Duration `yaml:"ttl"`
}

// SearchConfig holds discovery search settings.
type SearchConfig struct {
	// MaxResults stops a search early; 0 means unlimited
	MaxResults int `yaml:"max_results"`
	// Concurrency bounds parallel candidate fetches
	Concurrency int `yaml:"concurrency"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is DEBUG, INFO, WARN or ERROR
	Level string `yaml:"level"`
	// Format is text or json
	Format string `yaml:"format"`
	// Output is stdout, stderr or a file path
	Output string `yaml:"output"`
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			DataDir:        "./data",
			EncryptionSalt: "ideagraph",
		},
		Cache: CacheConfig{
			Enabled: true,
			Size:    10000,
			TTL:     5 * time.Minute,
		},
		Search: SearchConfig{
			Concurrency: 8,
		},
		Logging: LoggingConfig{
			Level:  "INFO",
			Format: "text",
			Output: "stderr",
		},
	}
}

// LoadFromEnv loads configuration from environment variables on top of the
// defaults.
func LoadFromEnv() *Config {
	cfg := DefaultConfig()
	cfg.applyEnv()
	return cfg
}

// LoadConfig loads configuration from a YAML file. Fields missing from the
// file keep their defaults.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return cfg, nil
}

// LoadFromEnvOrFile loads the file at path (or the defaults if it cannot be
// read) and then applies environment overrides.
// Environment variables take precedence over file settings.
func LoadFromEnvOrFile(path string) *Config {
	cfg := DefaultConfig()
	if path != "" {
		if fileCfg, err := LoadConfig(path); err == nil {
			cfg = fileCfg
		}
	}
	cfg.applyEnv()
	return cfg
}

func (c *Config) applyEnv() {
	c.Database.DataDir = getEnv("IDEAGRAPH_DATA_DIR", c.Database.DataDir)
	c.Database.InMemory = getEnvBool("IDEAGRAPH_IN_MEMORY", c.Database.InMemory)
	c.Database.SyncWrites = getEnvBool("IDEAGRAPH_SYNC_WRITES", c.Database.SyncWrites)
	c.Database.LowMemory = getEnvBool("IDEAGRAPH_LOW_MEMORY", c.Database.LowMemory)
	c.Database.EncryptionPassword = getEnv("IDEAGRAPH_ENCRYPTION_PASSWORD", c.Database.EncryptionPassword)
	c.Database.EncryptionSalt = getEnv("IDEAGRAPH_ENCRYPTION_SALT", c.Database.EncryptionSalt)

	c.Cache.Enabled = getEnvBool("IDEAGRAPH_CACHE_ENABLED", c.Cache.Enabled)
	c.Cache.Size = getEnvInt("IDEAGRAPH_CACHE_SIZE", c.Cache.Size)
	c.Cache.TTL = getEnvDuration("IDEAGRAPH_CACHE_TTL", c.Cache.TTL)

	c.Search.MaxResults = getEnvInt("IDEAGRAPH_SEARCH_MAX_RESULTS", c.Search.MaxResults)
	c.Search.Concurrency = getEnvInt("IDEAGRAPH_SEARCH_CONCURRENCY", c.Search.Concurrency)

	c.Logging.Level = getEnv("IDEAGRAPH_LOG_LEVEL", c.Logging.Level)
	c.Logging.Format = getEnv("IDEAGRAPH_LOG_FORMAT", c.Logging.Format)
	c.Logging.Output = getEnv("IDEAGRAPH_LOG_OUTPUT", c.Logging.Output)
}

// Validate checks the configuration for values that cannot work.
func (c *Config) Validate() error {
	if !c.Database.InMemory && c.Database.DataDir == "" {
		return fmt.Errorf("data directory required unless running in memory")
	}
	if c.Database.EncryptionPassword != "" && c.Database.EncryptionSalt == "" {
		return fmt.Errorf("encryption enabled but no salt provided")
	}
	if c.Cache.Enabled && c.Cache.Size <= 0 {
		return fmt.Errorf("invalid cache size: %d", c.Cache.Size)
	}
	if c.Search.MaxResults < 0 {
		return fmt.Errorf("invalid search max results: %d", c.Search.MaxResults)
	}
	if c.Search.Concurrency <= 0 {
		return fmt.Errorf("invalid search concurrency: %d", c.Search.Concurrency)
	}
	switch strings.ToUpper(c.Logging.Level) {
	case "DEBUG", "INFO", "WARN", "ERROR":
	default:
		return fmt.Errorf("invalid log level: %q", c.Logging.Level)
	}
	switch strings.ToLower(c.Logging.Format) {
	case "text", "json":
	default:
		return fmt.Errorf("invalid log format: %q", c.Logging.Format)
	}
	return nil
}

// String returns a log-safe summary. Secrets are never included.
func (c *Config) String() string {
	return fmt.Sprintf(
		"Config{DataDir: %s, InMemory: %v, Encrypted: %v, Cache: %v/%d, Log: %s/%s}",
		c.Database.DataDir, c.Database.InMemory,
		c.Database.EncryptionPassword != "",
		c.Cache.Enabled, c.Cache.Size,
		c.Logging.Level, c.Logging.Format,
	)
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		val = strings.ToLower(val)
		return val == "true" || val == "1" || val == "yes" || val == "on"
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
		// Try parsing as seconds
		if secs, err := strconv.Atoi(val); err == nil {
			return time.Duration(secs) * time.Second
		}
	}
	return defaultVal
}

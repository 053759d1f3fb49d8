package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/stellar/go/network"
	"gopkg.in/yaml.v3"
)

// Archive backends.
const (
	BackendHTTP = "http"
	BackendS3   = "s3"
	BackendGCS  = "gcs"
	// BackendFS reads a local mirror laid out like the bucket.
	BackendFS = "fs"
)

type Config struct {
	Archive ArchiveConfig `yaml:"archive"`
	RPC     RPCConfig     `yaml:"rpc"`
	Query   QueryConfig   `yaml:"query"`
	Server  ServerConfig  `yaml:"server"`
	Logging LoggingConfig `yaml:"logging"`
}

// ArchiveConfig describes where archived ledger objects live and how their
// keys are laid out.
type ArchiveConfig struct {
	Backend     string `yaml:"backend"` // http, s3, gcs or fs
	BaseURL     string `yaml:"base_url"`
	LedgersPath string `yaml:"ledgers_path"`
	BucketPath  string `yaml:"bucket_path"` // s3/gcs bucket, fs directory
	Region      string `yaml:"region"`      // s3 only
	Endpoint    string `yaml:"endpoint"`    // s3 only

	PartitionSize uint32 `yaml:"partition_size"`
	BatchSize     uint32 `yaml:"batch_size"`
	FileSuffix    string `yaml:"file_suffix"`

	RequestTimeout time.Duration `yaml:"request_timeout"`
}

type RPCConfig struct {
	ArchiveURL        string        `yaml:"archive_url"`
	SorobanURL        string        `yaml:"soroban_url"`
	NetworkPassphrase string        `yaml:"network_passphrase"`
	RequestTimeout    time.Duration `yaml:"request_timeout"`

	// BreakerThreshold consecutive failures open the breaker for BreakerReset.
	BreakerThreshold int           `yaml:"breaker_threshold"`
	BreakerReset     time.Duration `yaml:"breaker_reset"`
}

type QueryConfig struct {
	// Concurrency above 1 enables bounded parallel fetch.
	Concurrency int `yaml:"concurrency"`
	// MaxLedgers caps the span of a single query. 0 disables the check.
	MaxLedgers uint32 `yaml:"max_ledgers"`
	// RateLimit is requests per second across archive and live node. 0 is unlimited.
	RateLimit float64 `yaml:"rate_limit"`
	RateBurst int     `yaml:"rate_burst"`

	CacheSize int           `yaml:"cache_size"`
	CacheTTL  time.Duration `yaml:"cache_ttl"`
}

type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // json or console
}

// Default returns the configuration for the public pubnet archive.
func Default() *Config {
	return &Config{
		Archive: ArchiveConfig{
			Backend:        BackendHTTP,
			BaseURL:        "https://aws-public-blockchain.s3.us-east-2.amazonaws.com",
			LedgersPath:    "v1.1/stellar/ledgers/pubnet",
			Region:         "us-east-2",
			PartitionSize:  64000,
			BatchSize:      1,
			FileSuffix:     ".xdr.zst",
			RequestTimeout: 30 * time.Second,
		},
		RPC: RPCConfig{
			ArchiveURL:        "https://archive-rpc.lightsail.network/",
			SorobanURL:        "https://rpc.lightsail.network/",
			NetworkPassphrase: network.PublicNetworkPassphrase,
			RequestTimeout:    30 * time.Second,
			BreakerThreshold:  5,
			BreakerReset:      30 * time.Second,
		},
		Query: QueryConfig{
			Concurrency: 1,
			MaxLedgers:  10000,
			RateBurst:   1,
			CacheSize:   1024,
			CacheTTL:    10 * time.Minute,
		},
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    5 * time.Minute,
			ShutdownTimeout: 10 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load reads an optional YAML file on top of the defaults and then applies
// environment overrides. An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.Archive.Backend = strings.ToLower(getEnvOrDefault("ARCHIVE_BACKEND", c.Archive.Backend))
	c.Archive.BaseURL = getEnvOrDefault("ARCHIVE_BASE_URL", c.Archive.BaseURL)
	c.Archive.LedgersPath = getEnvOrDefault("ARCHIVE_LEDGERS_PATH", c.Archive.LedgersPath)
	c.Archive.BucketPath = getEnvOrDefault("DATASTORE_BUCKET_PATH", c.Archive.BucketPath)
	c.Archive.Region = getEnvOrDefault("DATASTORE_REGION", c.Archive.Region)
	c.Archive.Endpoint = getEnvOrDefault("DATASTORE_ENDPOINT", c.Archive.Endpoint)
	c.Archive.PartitionSize = getUint32Env("PARTITION_SIZE", c.Archive.PartitionSize)
	c.Archive.BatchSize = getUint32Env("LEDGERS_PER_FILE", c.Archive.BatchSize)
	c.Archive.FileSuffix = getEnvOrDefault("ARCHIVE_FILE_SUFFIX", c.Archive.FileSuffix)
	c.Archive.RequestTimeout = getDurationEnv("ARCHIVE_REQUEST_TIMEOUT", c.Archive.RequestTimeout)

	c.RPC.ArchiveURL = getEnvOrDefault("RPC_ENDPOINT", c.RPC.ArchiveURL)
	c.RPC.SorobanURL = getEnvOrDefault("SOROBAN_RPC_ENDPOINT", c.RPC.SorobanURL)
	c.RPC.NetworkPassphrase = getEnvOrDefault("NETWORK_PASSPHRASE", c.RPC.NetworkPassphrase)
	c.RPC.RequestTimeout = getDurationEnv("RPC_REQUEST_TIMEOUT", c.RPC.RequestTimeout)
	c.RPC.BreakerThreshold = getIntEnv("RPC_BREAKER_THRESHOLD", c.RPC.BreakerThreshold)
	c.RPC.BreakerReset = getDurationEnv("RPC_BREAKER_RESET", c.RPC.BreakerReset)

	c.Query.Concurrency = getIntEnv("QUERY_CONCURRENCY", c.Query.Concurrency)
	c.Query.MaxLedgers = getUint32Env("QUERY_MAX_LEDGERS", c.Query.MaxLedgers)
	c.Query.RateLimit = getFloatEnv("QUERY_RATE_LIMIT", c.Query.RateLimit)
	c.Query.RateBurst = getIntEnv("QUERY_RATE_BURST", c.Query.RateBurst)
	c.Query.CacheSize = getIntEnv("CACHE_SIZE", c.Query.CacheSize)
	c.Query.CacheTTL = getDurationEnv("CACHE_TTL", c.Query.CacheTTL)

	c.Server.Port = getIntEnv("PORT", c.Server.Port)

	c.Logging.Level = getEnvOrDefault("LOG_LEVEL", c.Logging.Level)
	c.Logging.Format = getEnvOrDefault("LOG_FORMAT", c.Logging.Format)
}

// Validate checks the settings that would otherwise fail deep inside a query.
func (c *Config) Validate() error {
	switch c.Archive.Backend {
	case BackendHTTP:
		if c.Archive.BaseURL == "" {
			return fmt.Errorf("archive.base_url is required for the %s backend", BackendHTTP)
		}
	case BackendS3, BackendGCS, BackendFS:
		if c.Archive.BucketPath == "" {
			return fmt.Errorf("archive.bucket_path is required for the %s backend", c.Archive.Backend)
		}
	default:
		return fmt.Errorf("unsupported archive backend: %q (use http, s3, gcs or fs)", c.Archive.Backend)
	}
	if c.Archive.PartitionSize == 0 {
		return fmt.Errorf("archive.partition_size must be positive")
	}
	if c.Archive.BatchSize == 0 {
		return fmt.Errorf("archive.batch_size must be positive")
	}
	if c.RPC.ArchiveURL == "" {
		return fmt.Errorf("rpc.archive_url is required")
	}
	if c.RPC.NetworkPassphrase == "" {
		return fmt.Errorf("rpc.network_passphrase is required")
	}
	if c.Query.Concurrency < 1 {
		return fmt.Errorf("query.concurrency must be at least 1, got %d", c.Query.Concurrency)
	}
	if c.Query.RateLimit < 0 {
		return fmt.Errorf("query.rate_limit must not be negative")
	}
	return nil
}

// Helper functions for environment variable parsing
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	result, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return result
}

func getUint32Env(key string, defaultValue uint32) uint32 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	result, err := strconv.ParseUint(value, 10, 32)
	if err != nil {
		return defaultValue
	}
	return uint32(result)
}

func getFloatEnv(key string, defaultValue float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	result, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return defaultValue
	}
	return result
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	result, err := time.ParseDuration(value)
	if err != nil {
		return defaultValue
	}
	return result
}

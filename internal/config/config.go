// Package config loads client configuration from environment variables,
// optionally seeded from a .env file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds the docs client configuration.
type Config struct {
	// Backend
	ServerURL   string
	AuthToken   string
	HTTPTimeout time.Duration

	// Logging
	LogLevel  string
	LogFormat string

	// Metrics (empty = disabled)
	MetricsAddr string

	// Translation
	PollInterval time.Duration

	// app/config lookups are cached for this long (0 = no cache)
	ConfigCacheTTL  time.Duration
	ConfigCacheSize int

	// Download destination ("local" or "s3")
	DownloadBackend string
	DownloadDir     string

	// S3 download destination
	S3Endpoint  string
	S3Bucket    string
	S3AccessKey string
	S3SecretKey string
	S3Region    string
}

// Load reads configuration from the environment. Variables from envFile
// are applied first without overriding ones already set; a missing file
// is not an error.
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", envFile, err)
		}
	}

	cfg := &Config{
		ServerURL:       strings.TrimSuffix(envOr("DOCS_URL", "http://localhost:8080/docs-web"), "/"),
		AuthToken:       envOr("DOCS_TOKEN", ""),
		HTTPTimeout:     envDuration("HTTP_TIMEOUT", 30*time.Second),
		LogLevel:        envOr("LOG_LEVEL", "info"),
		LogFormat:       envOr("LOG_FORMAT", "console"),
		MetricsAddr:     envOr("METRICS_ADDR", ""),
		PollInterval:    envDuration("POLL_INTERVAL", 2*time.Second),
		ConfigCacheTTL:  envDuration("CONFIG_CACHE_TTL", 0),
		ConfigCacheSize: envInt("CONFIG_CACHE_SIZE", 32),
		DownloadBackend: envOr("DOWNLOAD_BACKEND", "local"),
		DownloadDir:     envOr("DOWNLOAD_DIR", "."),
		S3Endpoint:      envOr("S3_ENDPOINT", "http://localhost:9000"),
		S3Bucket:        envOr("S3_BUCKET", "translations"),
		S3AccessKey:     envOr("S3_ACCESS_KEY", ""),
		S3SecretKey:     envOr("S3_SECRET_KEY", ""),
		S3Region:        envOr("S3_REGION", "us-east-1"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks option combinations.
func (c *Config) Validate() error {
	if c.ServerURL == "" {
		return fmt.Errorf("DOCS_URL is required")
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("POLL_INTERVAL must be positive")
	}
	switch c.DownloadBackend {
	case "local":
	case "s3":
		if c.S3Bucket == "" {
			return fmt.Errorf("S3_BUCKET is required for the s3 download backend")
		}
	default:
		return fmt.Errorf("unknown DOWNLOAD_BACKEND %q", c.DownloadBackend)
	}
	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return i
}

func envDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}

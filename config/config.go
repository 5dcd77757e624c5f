// Package config loads service configuration from environment variables.
package config

import (
	"fmt"

	"github.com/caarlos0/env/v10"
)

// Config holds all configuration for the reviewlens service.
type Config struct {
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`

	// HTTP server
	Port        int  `env:"PORT" envDefault:"8080"`
	CORSEnabled bool `env:"CORS_ENABLED" envDefault:"true"`

	// Result store backend: memory, redis or postgres.
	StoreBackend string `env:"STORE_BACKEND" envDefault:"memory"`

	// PostgreSQL (store backend "postgres")
	DBHost     string `env:"DB_HOST" envDefault:"localhost"`
	DBPort     int    `env:"DB_PORT" envDefault:"5432"`
	DBUser     string `env:"DB_USER" envDefault:"reviewlens"`
	DBPassword string `env:"DB_PASSWORD" envDefault:"reviewlens_dev_pass"`
	DBName     string `env:"DB_NAME" envDefault:"reviewlens"`
	DBSSLMode  string `env:"DB_SSL_MODE" envDefault:"disable"`

	// Redis (store backend "redis")
	RedisAddr     string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPassword string `env:"REDIS_PASSWORD" envDefault:""`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`

	// Raw page archive backend: none, fs or s3.
	ArchiveBackend  string `env:"ARCHIVE_BACKEND" envDefault:"none"`
	ArchiveBasePath string `env:"ARCHIVE_BASE_PATH" envDefault:"./archive"`

	// S3 snapshot storage (archive backend "s3")
	S3Endpoint        string `env:"S3_ENDPOINT"`
	S3Region          string `env:"S3_REGION"`
	S3Bucket          string `env:"S3_BUCKET"`
	S3AccessKeyID     string `env:"S3_ACCESS_KEY_ID"`
	S3SecretAccessKey string `env:"S3_SECRET_ACCESS_KEY"`
	S3UsePathStyle    bool   `env:"S3_USE_PATH_STYLE" envDefault:"true"`

	// Kafka event stream; leave brokers unset to disable publishing.
	KafkaBrokers []string `env:"KAFKA_BROKERS" envSeparator:","`
	KafkaTopic   string   `env:"KAFKA_TOPIC" envDefault:"reviewlens.analyses"`

	// Scrape pipeline
	MarketplaceDomain string `env:"MARKETPLACE_DOMAIN" envDefault:"www.amazon.com"`
	FetchTimeoutSecs  int    `env:"FETCH_TIMEOUT_SECONDS" envDefault:"20"`
	RetryTimeoutSecs  int    `env:"RETRY_FETCH_TIMEOUT_SECONDS" envDefault:"35"`
	RequestsPerMinute int    `env:"REQUESTS_PER_MINUTE" envDefault:"20"`
	CacheTTLHours     int    `env:"CACHE_TTL_HOURS" envDefault:"24"`

	// OpenTelemetry
	OTELEnabled    bool    `env:"OTEL_ENABLED" envDefault:"false"`
	OTELEndpoint   string  `env:"OTEL_EXPORTER_OTLP_ENDPOINT" envDefault:"localhost:4318"`
	OTELSampleRate float64 `env:"OTEL_SAMPLE_RATE" envDefault:"1.0"`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	// An explicitly empty KAFKA_BROKERS parses as a single empty element;
	// normalize it away so emptiness means "publishing disabled".
	brokers := cfg.KafkaBrokers[:0]
	for _, b := range cfg.KafkaBrokers {
		if b != "" {
			brokers = append(brokers, b)
		}
	}
	cfg.KafkaBrokers = brokers

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// validate checks configuration invariants.
func (c *Config) validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", c.Port)
	}
	switch c.StoreBackend {
	case "memory", "redis", "postgres":
	default:
		return fmt.Errorf("unknown STORE_BACKEND %q (want memory, redis or postgres)", c.StoreBackend)
	}
	switch c.ArchiveBackend {
	case "none", "fs", "s3":
	default:
		return fmt.Errorf("unknown ARCHIVE_BACKEND %q (want none, fs or s3)", c.ArchiveBackend)
	}
	if c.ArchiveBackend == "s3" {
		if c.S3Bucket == "" {
			return fmt.Errorf("S3_BUCKET is required when ARCHIVE_BACKEND is s3")
		}
		if c.S3Region == "" {
			return fmt.Errorf("S3_REGION is required when ARCHIVE_BACKEND is s3")
		}
	}
	if c.MarketplaceDomain == "" {
		return fmt.Errorf("MARKETPLACE_DOMAIN is required")
	}
	if c.FetchTimeoutSecs < 1 {
		return fmt.Errorf("FETCH_TIMEOUT_SECONDS must be positive, got %d", c.FetchTimeoutSecs)
	}
	if c.RetryTimeoutSecs < 1 {
		return fmt.Errorf("RETRY_FETCH_TIMEOUT_SECONDS must be positive, got %d", c.RetryTimeoutSecs)
	}
	if c.RequestsPerMinute < 1 {
		return fmt.Errorf("REQUESTS_PER_MINUTE must be positive, got %d", c.RequestsPerMinute)
	}
	if c.CacheTTLHours < 1 {
		return fmt.Errorf("CACHE_TTL_HOURS must be positive, got %d", c.CacheTTLHours)
	}
	if c.OTELSampleRate < 0 || c.OTELSampleRate > 1.0 {
		return fmt.Errorf("OTEL_SAMPLE_RATE must be between 0.0 and 1.0, got %f", c.OTELSampleRate)
	}
	return nil
}

// PostgresDSN returns the PostgreSQL connection string.
func (c *Config) PostgresDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.DBHost, c.DBPort, c.DBUser, c.DBPassword, c.DBName, c.DBSSLMode,
	)
}

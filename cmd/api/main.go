package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/reviewlens/reviewlens"
	"github.com/reviewlens/reviewlens/api"
	"github.com/reviewlens/reviewlens/archive"
	"github.com/reviewlens/reviewlens/config"
	"github.com/reviewlens/reviewlens/events"
	"github.com/reviewlens/reviewlens/metrics"
	"github.com/reviewlens/reviewlens/store"
	"github.com/reviewlens/reviewlens/tracing"
)

func main() {
	// Setup structured logging with JSON output
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	logger.Info("reviewlens service initializing", "version", "1.0.0")

	// Local development overrides; a missing .env file is fine.
	if err := godotenv.Load(); err == nil {
		logger.Info("loaded environment overrides from .env")
	}

	cfg, err := config.Load()
	if err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	if lvl := parseLogLevel(cfg.LogLevel); lvl != slog.LevelInfo {
		logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
		slog.SetDefault(logger)
	}

	// Command-line flags (override environment variables)
	port := flag.Int("port", cfg.Port, "Server port")
	domain := flag.String("domain", cfg.MarketplaceDomain, "Marketplace domain to scrape")
	storeBackend := flag.String("store", cfg.StoreBackend, "Result store backend (memory, redis, postgres)")
	archiveBackend := flag.String("archive", cfg.ArchiveBackend, "Raw page archive backend (none, fs, s3)")
	disableCORS := flag.Bool("disable-cors", !cfg.CORSEnabled, "Disable CORS")
	flag.Parse()

	// Initialize tracing
	shutdownTracing, err := tracing.Init(context.Background(), tracing.Config{
		ServiceName:    "reviewlens-api",
		ServiceVersion: "1.0.0",
		Environment:    cfg.Environment,
		OTLPEndpoint:   cfg.OTELEndpoint,
		SampleRate:     cfg.OTELSampleRate,
		Enabled:        cfg.OTELEnabled,
	})
	if err != nil {
		logger.Warn("failed to initialize tracer, continuing without tracing", "error", err)
	} else {
		defer func() {
			if err := shutdownTracing(context.Background()); err != nil {
				logger.Error("error shutting down tracer", "error", err)
			}
		}()
		if cfg.OTELEnabled {
			logger.Info("tracing initialized successfully", "endpoint", cfg.OTELEndpoint)
		}
	}

	st, err := newStore(*storeBackend, cfg)
	if err != nil {
		logger.Error("failed to initialize result store", "backend", *storeBackend, "error", err)
		os.Exit(1)
	}
	defer st.Close()
	logger.Info("result store initialized", "backend", *storeBackend)

	opts := reviewlens.Options{
		Metrics: metrics.NewRegistry(),
		Logger:  logger,
	}

	switch *archiveBackend {
	case "fs":
		arc, err := archive.New(archive.Config{BasePath: cfg.ArchiveBasePath})
		if err != nil {
			logger.Error("failed to initialize filesystem archive", "error", err)
			os.Exit(1)
		}
		opts.Archiver = arc
		logger.Info("page archive initialized", "backend", "fs", "path", cfg.ArchiveBasePath)
	case "s3":
		arc, err := archive.NewS3Archive(context.Background(), archive.S3Config{
			Endpoint:        cfg.S3Endpoint,
			Region:          cfg.S3Region,
			Bucket:          cfg.S3Bucket,
			AccessKeyID:     cfg.S3AccessKeyID,
			SecretAccessKey: cfg.S3SecretAccessKey,
			UsePathStyle:    cfg.S3UsePathStyle,
		})
		if err != nil {
			logger.Error("failed to initialize S3 archive", "error", err)
			os.Exit(1)
		}
		opts.Archiver = arc
		logger.Info("page archive initialized", "backend", "s3", "bucket", cfg.S3Bucket)
	}

	if len(cfg.KafkaBrokers) > 0 {
		producerCfg := events.DefaultConfig(cfg.KafkaBrokers)
		producerCfg.Topic = cfg.KafkaTopic
		publisher := events.NewPublisher(producerCfg, logger)
		defer func() {
			if err := publisher.Close(); err != nil {
				logger.Error("error closing event publisher", "error", err)
			}
		}()
		opts.Events = publisher
		logger.Info("event publishing enabled", "brokers", cfg.KafkaBrokers, "topic", cfg.KafkaTopic)
	}

	pipelineCfg := reviewlens.DefaultConfig()
	pipelineCfg.Domain = *domain
	pipelineCfg.FetchTimeout = time.Duration(cfg.FetchTimeoutSecs) * time.Second
	pipelineCfg.RetryFetchTimeout = time.Duration(cfg.RetryTimeoutSecs) * time.Second
	pipelineCfg.RequestsPerMinute = cfg.RequestsPerMinute
	pipelineCfg.CacheTTL = time.Duration(cfg.CacheTTLHours) * time.Hour

	service := reviewlens.New(pipelineCfg, st, opts)

	server := api.NewServer(api.Config{
		Addr:        fmt.Sprintf(":%d", *port),
		CORSEnabled: !*disableCORS,
	}, service, st, opts.Metrics)

	// Expired rows in PostgreSQL are invisible to reads but still occupy
	// space; sweep them in the background.
	if pg, ok := st.(*store.PostgresStore); ok {
		go func() {
			ticker := time.NewTicker(time.Hour)
			defer ticker.Stop()
			for range ticker.C {
				ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
				purged, err := pg.PurgeExpired(ctx)
				cancel()
				if err != nil {
					logger.Error("failed to purge expired analyses", "error", err)
					continue
				}
				if purged > 0 {
					logger.Info("purged expired analyses", "count", purged)
				}
			}
		}()
		logger.Info("expired analysis sweeper started", "interval", "1h")
	}

	// Start server in a goroutine
	go func() {
		logger.Info("reviewlens service starting",
			"port", *port,
			"domain", *domain,
			"store_backend", *storeBackend,
			"archive_backend", *archiveBackend,
			"events_enabled", len(cfg.KafkaBrokers) > 0,
			"requests_per_minute", cfg.RequestsPerMinute,
			"cache_ttl_hours", cfg.CacheTTLHours,
		)

		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	// Graceful shutdown
	logger.Info("shutting down gracefully")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error("server shutdown error", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func newStore(backend string, cfg *config.Config) (store.Store, error) {
	switch backend {
	case "memory":
		return store.NewMemoryStore(), nil
	case "redis":
		return store.NewRedisStore(context.Background(), cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	case "postgres":
		return store.NewPostgresStore(cfg.PostgresDSN())
	default:
		return nil, fmt.Errorf("unknown store backend %q", backend)
	}
}

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/ashita-ai/haken/internal/auth"
	"github.com/ashita-ai/haken/internal/config"
	"github.com/ashita-ai/haken/internal/mcp"
	"github.com/ashita-ai/haken/internal/ratelimit"
	"github.com/ashita-ai/haken/internal/registry"
	"github.com/ashita-ai/haken/internal/server"
	"github.com/ashita-ai/haken/internal/service/retention"
	"github.com/ashita-ai/haken/internal/service/selection"
	"github.com/ashita-ai/haken/internal/storage"
	"github.com/ashita-ai/haken/internal/telemetry"
	"github.com/ashita-ai/haken/migrations"
)

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	os.Exit(run0())
}

func run0() int {
	// Load .env file if present (non-fatal; production won't have one).
	_ = godotenv.Load()

	// Level is raised or lowered once config has loaded.
	level := new(slog.LevelVar)
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, logger, level); err != nil {
		slog.Error("fatal error", "error", err)
		return 1
	}
	return 0
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func run(ctx context.Context, logger *slog.Logger, level *slog.LevelVar) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	level.Set(parseLevel(cfg.LogLevel))

	slog.Info("haken starting", "version", version, "port", cfg.Port)

	// Initialize OpenTelemetry.
	otelShutdown, err := telemetry.Init(ctx, telemetry.Config{
		Endpoint:       cfg.OTELEndpoint,
		ServiceName:    cfg.ServiceName,
		ServiceVersion: version,
		Insecure:       cfg.OTELInsecure,
	})
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	defer func() { _ = otelShutdown(context.Background()) }()

	// Connect to database.
	db, err := storage.New(ctx, cfg.DatabaseURL, logger)
	if err != nil {
		return fmt.Errorf("storage: %w", err)
	}
	defer db.Close()

	// Register connection pool OTEL metrics (after telemetry.Init).
	db.RegisterPoolMetrics()

	if cfg.RunMigrations {
		if err := db.RunMigrations(ctx, migrations.FS); err != nil {
			return fmt.Errorf("migrations: %w", err)
		}
	} else {
		logger.Info("migrations: skipped (HAKEN_RUN_MIGRATIONS=false)")
	}

	jwtMgr, err := auth.NewJWTManager(cfg.JWTPrivateKeyPath, cfg.JWTPublicKeyPath, cfg.JWTExpiration)
	if err != nil {
		return fmt.Errorf("auth: %w", err)
	}

	// Registry reads are cached; every enrichment touches them.
	cache := registry.New(db, cfg.RegistryCacheTTL)
	defer cache.Close()

	// Selection service (shared by HTTP and MCP handlers).
	selectionSvc := selection.New(db, cache, storage.RetryPolicy{
		MaxRetries: cfg.SaveMaxRetries,
		BaseDelay:  cfg.SaveRetryDelay,
	}, logger)

	mcpSrv := mcp.New(selectionSvc, logger, version)

	var retentionWorker *retention.Worker
	if cfg.RetentionMaxAge > 0 {
		retentionWorker = retention.New(db, logger, retention.Config{
			MaxAge:    cfg.RetentionMaxAge,
			Interval:  cfg.RetentionInterval,
			BatchSize: cfg.RetentionBatchSize,
		})
		retentionWorker.Start(ctx)
		logger.Info("retention: enabled", "max_age", cfg.RetentionMaxAge.String(), "interval", cfg.RetentionInterval.String())
	} else {
		logger.Info("retention: disabled (HAKEN_RETENTION_MAX_AGE=0)")
	}

	var limiter ratelimit.Limiter
	if cfg.RateLimitEnabled {
		limiter = ratelimit.NewMemoryLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)
		logger.Info("rate limiting: memory (in-process token bucket)",
			"rps", cfg.RateLimitRPS, "burst", cfg.RateLimitBurst)
	} else {
		limiter = ratelimit.NoopLimiter{}
		logger.Info("rate limiting: disabled")
	}
	defer func() { _ = limiter.Close() }()

	// Create and start HTTP server (MCP mounted at /mcp).
	srv := server.New(server.ServerConfig{
		DB:                  db,
		JWTMgr:              jwtMgr,
		SelectionSvc:        selectionSvc,
		Registry:            db,
		Limiter:             limiter,
		MCPServer:           mcpSrv.MCPServer(),
		Logger:              logger,
		Port:                cfg.Port,
		ReadTimeout:         cfg.ReadTimeout,
		WriteTimeout:        cfg.WriteTimeout,
		Version:             version,
		MaxRequestBodyBytes: cfg.MaxRequestBodyBytes,
	})

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return err
	}

	slog.Info("haken shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("http shutdown error", "error", err)
	}
	if retentionWorker != nil {
		retentionWorker.Stop(shutdownCtx)
	}

	slog.Info("haken stopped")
	return nil
}

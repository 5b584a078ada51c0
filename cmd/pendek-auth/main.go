package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/pendek-app/pendek-auth/internal/app"
	"github.com/pendek-app/pendek-auth/internal/config"
	"github.com/pendek-app/pendek-auth/internal/domain"
	"github.com/pendek-app/pendek-auth/internal/health"
	"github.com/pendek-app/pendek-auth/internal/http/handler"
	"github.com/pendek-app/pendek-auth/internal/http/middleware"
	"github.com/pendek-app/pendek-auth/internal/http/router"
	"github.com/pendek-app/pendek-auth/internal/jobs"
	"github.com/pendek-app/pendek-auth/internal/observability"
	"github.com/pendek-app/pendek-auth/internal/reaper"
	"github.com/pendek-app/pendek-auth/internal/repository"
	"github.com/pendek-app/pendek-auth/internal/security"
	"github.com/pendek-app/pendek-auth/internal/service"
)

func main() {
	root := &cobra.Command{
		Use:   "pendek-auth",
		Short: "Authentication and session lifecycle service",
	}
	root.AddCommand(newServeCommand(), newSweepCommand())
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the session sweep",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd.Context())
		},
	}
}

func newSweepCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Purge revoked and expired sessions once and exit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return sweepOnce(cmd.Context())
		},
	}
}

func serve(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger, loggerProvider, err := observability.NewLogger(ctx, cfg)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	runtime, err := observability.InitRuntime(ctx, cfg, logger, loggerProvider)
	if err != nil {
		return err
	}

	db, err := openDatabase(cfg)
	if err != nil {
		return err
	}

	var redisClient redis.UniversalClient
	if cfg.RedisURL != "" {
		opt, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("parse redis url: %w", err)
		}
		redisClient = redis.NewClient(opt)
	}

	users := repository.NewUserRepository(db)
	sessions := repository.NewSessionRepository(db)
	hasher := security.NewBcryptPasswordHasher(cfg.BcryptCost)
	tokens := security.NewTokenManager(cfg.JWTSecret, cfg.JWTIssuer)
	authService := service.NewAuthService(users, sessions, hasher, tokens)
	rp := reaper.New(sessions, observability.NewAlerter(logger), logger)

	stopJobs, err := startSweep(ctx, cfg, rp, logger)
	if err != nil {
		return err
	}

	readiness := health.NewProbeRunner(2 * time.Second)
	readiness.Register("database", func(ctx context.Context) error {
		sqlDB, err := db.DB()
		if err != nil {
			return err
		}
		return sqlDB.PingContext(ctx)
	})
	if redisClient != nil {
		readiness.Register("redis", func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		})
	}

	var limiterBackend middleware.Limiter
	if redisClient != nil {
		limiterBackend = middleware.NewRedisWindowLimiter(redisClient, "pendek-auth:ratelimit")
	}

	mux := router.New(router.Dependencies{
		AuthHandler:      handler.NewAuthHandler(authService),
		AuthService:      authService,
		Reaper:           rp,
		Readiness:        readiness,
		RateLimitBackend: limiterBackend,
		APIRateLimitRPM:  cfg.APIRateLimitRPM,
		AuthRateLimitRPM: cfg.AuthRateLimitRPM,
		EnableOTelHTTP:   cfg.OTELTracesEnabled,
	})
	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	a := app.New(cfg, logger, server, runtime, readiness, stopJobs)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("http server listening", "addr", cfg.HTTPAddr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		a.Shutdown(context.Background())
		return nil
	})
	return g.Wait()
}

func startSweep(ctx context.Context, cfg *config.Config, rp *reaper.Reaper, logger *slog.Logger) (func(), error) {
	if !cfg.SweepEnabled {
		logger.Info("session sweep disabled via configuration")
		return func() {}, nil
	}
	if cfg.RedisURL != "" {
		manager, err := jobs.NewManager(cfg.RedisURL, cfg.SweepInterval, rp, logger)
		if err != nil {
			return nil, err
		}
		if err := manager.Start(); err != nil {
			return nil, err
		}
		return manager.Shutdown, nil
	}

	// No redis: fall back to an in-process ticker.
	sweepCtx, cancel := context.WithCancel(ctx)
	go rp.Run(sweepCtx, cfg.SweepInterval)
	logger.Info("session sweep running in process", "interval", cfg.SweepInterval)
	return cancel, nil
}

func sweepOnce(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel()}))

	db, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	sessions := repository.NewSessionRepository(db)
	rp := reaper.New(sessions, observability.NewAlerter(logger), logger)
	deleted := rp.Tick(ctx)
	logger.Info("one-shot sweep finished", "deleted", deleted)
	return nil
}

func openDatabase(cfg *config.Config) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(cfg.DatabaseURL), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.AutoMigrate(&domain.User{}, &domain.Session{}); err != nil {
		return nil, fmt.Errorf("migrate schema: %w", err)
	}
	return db, nil
}

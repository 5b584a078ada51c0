package app

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/pendek-app/pendek-auth/internal/config"
	"github.com/pendek-app/pendek-auth/internal/health"
	"github.com/pendek-app/pendek-auth/internal/observability"
)

type App struct {
	Config          *config.Config
	Logger          *slog.Logger
	Server          *http.Server
	Observability   *observability.Runtime
	Readiness       *health.ProbeRunner
	ShutdownTimeout time.Duration

	stopBackground func()
}

func New(cfg *config.Config, logger *slog.Logger, server *http.Server, runtime *observability.Runtime, readiness *health.ProbeRunner, stopBackground func()) *App {
	return &App{
		Config:          cfg,
		Logger:          logger,
		Server:          server,
		Observability:   runtime,
		Readiness:       readiness,
		ShutdownTimeout: cfg.ShutdownTimeout,
		stopBackground:  stopBackground,
	}
}

func (a *App) StopBackgroundTasks() {
	if a.stopBackground != nil {
		a.stopBackground()
	}
}

// Shutdown drains HTTP, stops background tasks and flushes telemetry.
func (a *App) Shutdown(ctx context.Context) {
	shutdownCtx, cancel := context.WithTimeout(ctx, a.ShutdownTimeout)
	defer cancel()

	if err := a.Server.Shutdown(shutdownCtx); err != nil {
		a.Logger.Error("http shutdown", "error", err)
	}
	a.StopBackgroundTasks()
	if err := a.Observability.Shutdown(shutdownCtx); err != nil {
		a.Logger.Error("observability shutdown", "error", err)
	}
}

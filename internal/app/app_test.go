package app

import (
	"io"
	"log/slog"
	"net/http"
	"testing"
	"time"

	"github.com/pendek-app/pendek-auth/internal/config"
	"github.com/pendek-app/pendek-auth/internal/health"
)

func TestNewAssignsDependenciesAndTimeouts(t *testing.T) {
	cfg := &config.Config{ShutdownTimeout: 10 * time.Second}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	server := &http.Server{Addr: ":8080", ReadHeaderTimeout: time.Second}
	readiness := health.NewProbeRunner(100 * time.Millisecond)
	stopped := false
	stop := func() { stopped = true }

	a := New(cfg, logger, server, nil, readiness, stop)
	if a.Config != cfg || a.Logger != logger || a.Server != server || a.Readiness != readiness {
		t.Fatal("expected app dependencies to be assigned")
	}
	if a.ShutdownTimeout != cfg.ShutdownTimeout {
		t.Fatal("expected shutdown timeout copied from config")
	}

	a.StopBackgroundTasks()
	if !stopped {
		t.Fatal("expected stop callback to be set")
	}
}

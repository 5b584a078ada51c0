package router

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/pendek-app/pendek-auth/internal/health"
	"github.com/pendek-app/pendek-auth/internal/http/handler"
	"github.com/pendek-app/pendek-auth/internal/http/middleware"
	"github.com/pendek-app/pendek-auth/internal/http/response"
	"github.com/pendek-app/pendek-auth/internal/reaper"
	"github.com/pendek-app/pendek-auth/internal/service"
)

type Dependencies struct {
	AuthHandler      *handler.AuthHandler
	AuthService      *service.AuthService
	Reaper           *reaper.Reaper
	Readiness        *health.ProbeRunner
	RateLimitBackend middleware.Limiter
	APIRateLimitRPM  int
	AuthRateLimitRPM int
	EnableOTelHTTP   bool
}

func New(dep Dependencies) http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.StructuredRequestLogger)

	backend := dep.RateLimitBackend
	if backend == nil {
		backend = middleware.NewLocalWindowLimiter()
	}
	r.Use(middleware.NewRateLimiter(backend, dep.APIRateLimitRPM, time.Minute, middleware.FailOpen, "api").Middleware())
	authLimiter := middleware.NewRateLimiter(backend, dep.AuthRateLimitRPM, time.Minute, middleware.FailClosed, "auth").Middleware()

	r.Get("/health/live", func(w http.ResponseWriter, r *http.Request) {
		response.JSON(w, r, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/health/ready", func(w http.ResponseWriter, r *http.Request) {
		if dep.Readiness == nil {
			response.JSON(w, r, http.StatusOK, map[string]any{"status": "ready", "checks": []any{}})
			return
		}
		ready, results := dep.Readiness.Ready(r.Context())
		if ready {
			response.JSON(w, r, http.StatusOK, map[string]any{"status": "ready", "checks": results})
			return
		}
		response.Error(w, r, http.StatusServiceUnavailable, "DEPENDENCY_UNREADY", "dependencies are not ready")
	})
	r.Get("/health/jobs", func(w http.ResponseWriter, r *http.Request) {
		if dep.Reaper == nil {
			response.Error(w, r, http.StatusServiceUnavailable, "JOBS_DISABLED", "session sweep is not running")
			return
		}
		h := dep.Reaper.Health()
		status := http.StatusOK
		if !h.Healthy {
			status = http.StatusServiceUnavailable
		}
		response.JSON(w, r, status, h)
	})

	r.Route("/api/v1/auth", func(r chi.Router) {
		r.With(authLimiter).Post("/login", dep.AuthHandler.Login)
		r.Get("/verify", dep.AuthHandler.Verify)
		r.With(authLimiter).Post("/refresh-token", dep.AuthHandler.RefreshToken)
		r.Post("/revoke-token", dep.AuthHandler.RevokeToken)
		r.With(middleware.Authenticate(dep.AuthService)).Post("/logout", dep.AuthHandler.Logout)
	})

	var h http.Handler = r
	if dep.EnableOTelHTTP {
		h = otelhttp.NewHandler(r, "http.server")
	}
	return h
}

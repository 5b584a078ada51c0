package observability

import (
	"log/slog"
	"net/http"

	chimiddleware "github.com/go-chi/chi/v5/middleware"
)

// Audit emits one structured record per security-relevant auth event. Events
// carry the request id so they can be joined with the access log.
func Audit(r *http.Request, event string, attrs ...any) {
	base := []any{
		"event", event,
		"method", r.Method,
		"path", r.URL.Path,
		"remote_addr", r.RemoteAddr,
		"request_id", chimiddleware.GetReqID(r.Context()),
	}
	base = append(base, attrs...)
	slog.InfoContext(r.Context(), "audit", base...)
}

package response

import (
	"encoding/json"
	"net/http"
	"time"

	chimiddleware "github.com/go-chi/chi/v5/middleware"
)

type envelope struct {
	Success bool      `json:"success"`
	Message string    `json:"message,omitempty"`
	Data    any       `json:"data,omitempty"`
	Error   *apiError `json:"error,omitempty"`
	Meta    meta      `json:"meta"`
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type meta struct {
	RequestID string    `json:"request_id"`
	Timestamp time.Time `json:"timestamp"`
}

func JSON(w http.ResponseWriter, r *http.Request, status int, data any) {
	write(w, envelope{Success: true, Data: data, Meta: buildMeta(r)}, status)
}

func Message(w http.ResponseWriter, r *http.Request, status int, message string) {
	write(w, envelope{Success: true, Message: message, Meta: buildMeta(r)}, status)
}

func Error(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	write(w, envelope{Success: false, Error: &apiError{Code: code, Message: message}, Meta: buildMeta(r)}, status)
}

func write(w http.ResponseWriter, env envelope, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(env)
}

func buildMeta(r *http.Request) meta {
	id := chimiddleware.GetReqID(r.Context())
	if id == "" {
		id = r.Header.Get("X-Request-Id")
	}
	return meta{RequestID: id, Timestamp: time.Now().UTC()}
}

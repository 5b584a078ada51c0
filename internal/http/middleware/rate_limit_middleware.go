package middleware

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/pendek-app/pendek-auth/internal/http/response"
	"github.com/pendek-app/pendek-auth/internal/observability"
)

type Decision struct {
	Allowed    bool
	Remaining  int
	RetryAfter time.Duration
}

type Limiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (Decision, error)
}

type FailureMode string

const (
	FailOpen   FailureMode = "fail_open"
	FailClosed FailureMode = "fail_closed"
)

type RateLimiter struct {
	limiter Limiter
	limit   int
	window  time.Duration
	mode    FailureMode
	scope   string
}

func NewRateLimiter(limiter Limiter, limit int, window time.Duration, mode FailureMode, scope string) *RateLimiter {
	if limit <= 0 {
		limit = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	if scope == "" {
		scope = "api"
	}
	return &RateLimiter{limiter: limiter, limit: limit, window: window, mode: mode, scope: scope}
}

func (rl *RateLimiter) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			decision, err := rl.limiter.Allow(r.Context(), rl.scope+":"+clientIPKey(r), rl.limit, rl.window)
			if err != nil {
				observability.RecordRateLimitDecision(r.Context(), rl.scope, "backend_error")
				if rl.mode == FailOpen {
					next.ServeHTTP(w, r)
					return
				}
				w.Header().Set("Retry-After", retryAfterHeader(rl.window))
				response.Error(w, r, http.StatusTooManyRequests, "RATE_LIMITED", "too many requests")
				return
			}
			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(rl.limit))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(max(decision.Remaining, 0)))
			if !decision.Allowed {
				observability.RecordRateLimitDecision(r.Context(), rl.scope, "deny")
				w.Header().Set("Retry-After", retryAfterHeader(decision.RetryAfter))
				response.Error(w, r, http.StatusTooManyRequests, "RATE_LIMITED", "too many requests")
				return
			}
			observability.RecordRateLimitDecision(r.Context(), rl.scope, "allow")
			next.ServeHTTP(w, r)
		})
	}
}

type localWindowLimiter struct {
	mu    sync.Mutex
	store map[string][]time.Time
}

func NewLocalWindowLimiter() Limiter {
	return &localWindowLimiter{store: make(map[string][]time.Time)}
}

func (l *localWindowLimiter) Allow(_ context.Context, key string, limit int, window time.Duration) (Decision, error) {
	now := time.Now()
	cutoff := now.Add(-window)

	l.mu.Lock()
	defer l.mu.Unlock()

	hits := l.store[key]
	pruned := hits[:0]
	for _, hit := range hits {
		if hit.After(cutoff) {
			pruned = append(pruned, hit)
		}
	}

	if len(pruned) >= limit {
		l.store[key] = pruned
		retry := pruned[0].Add(window).Sub(now)
		if retry < 0 {
			retry = time.Second
		}
		return Decision{Allowed: false, Remaining: 0, RetryAfter: retry}, nil
	}

	pruned = append(pruned, now)
	l.store[key] = pruned
	return Decision{Allowed: true, Remaining: limit - len(pruned)}, nil
}

func clientIPKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func retryAfterHeader(d time.Duration) string {
	seconds := int(d.Round(time.Second).Seconds())
	if seconds <= 0 {
		seconds = 1
	}
	return strconv.Itoa(seconds)
}

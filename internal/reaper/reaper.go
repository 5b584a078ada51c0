package reaper

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pendek-app/pendek-auth/internal/observability"
)

// MaxConsecutiveFailures is the alert threshold; health stays degraded until
// a run succeeds again.
const MaxConsecutiveFailures = 3

// Store is the one session-store operation the reaper needs.
type Store interface {
	PurgeExpiredOrRevoked() (int64, error)
}

// Alerter is the monitoring sink. Reaper faults never propagate to request
// paths; they only degrade health and, past the threshold, raise an alert.
type Alerter interface {
	CaptureException(err error, tags map[string]string)
	CaptureMessage(msg, severity string)
}

type Health struct {
	LastExecution        time.Time `json:"last_execution"`
	IsRunning            bool      `json:"is_running"`
	Healthy              bool      `json:"healthy"`
	ConsecutiveFailures  int       `json:"consecutive_failures"`
	MaxFailuresThreshold int       `json:"max_failures_threshold"`
}

// Reaper owns all sweep state. Instances are independent; nothing here is
// process-global.
type Reaper struct {
	store   Store
	alerter Alerter
	logger  *slog.Logger

	running atomic.Bool

	mu       sync.Mutex
	lastRun  time.Time
	failures int
}

func New(store Store, alerter Alerter, logger *slog.Logger) *Reaper {
	return &Reaper{store: store, alerter: alerter, logger: logger}
}

// Tick performs one sweep and returns the number of rows purged. An
// overlapping call loses the CompareAndSwap, logs a warning and returns 0
// without queueing. Store failures are absorbed here.
func (r *Reaper) Tick(ctx context.Context) int64 {
	if !r.running.CompareAndSwap(false, true) {
		r.logger.WarnContext(ctx, "session sweep already running, skipping tick")
		observability.RecordReaperRun("skipped", 0)
		return 0
	}
	defer r.running.Store(false)

	start := time.Now()
	deleted, err := r.store.PurgeExpiredOrRevoked()
	if err != nil {
		r.mu.Lock()
		r.failures++
		failures := r.failures
		r.mu.Unlock()

		r.logger.ErrorContext(ctx, "session sweep failed",
			"error", err,
			"consecutive_failures", failures,
		)
		observability.RecordReaperRun("error", 0)
		r.alerter.CaptureException(err, map[string]string{"job_name": "session_sweep"})
		if failures >= MaxConsecutiveFailures {
			r.alerter.CaptureMessage("session sweep failed repeatedly", "fatal")
		}
		return 0
	}

	r.mu.Lock()
	r.lastRun = time.Now()
	r.failures = 0
	r.mu.Unlock()

	r.logger.InfoContext(ctx, "session sweep completed",
		"deleted", deleted,
		"duration", time.Since(start),
	)
	observability.RecordReaperRun("success", deleted)
	return deleted
}

// Run ticks on a fixed interval until ctx is done. Used when the asynq
// scheduler is not configured; assumes single-instance scheduling.
func (r *Reaper) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Tick(ctx)
		}
	}
}

func (r *Reaper) Health() Health {
	r.mu.Lock()
	defer r.mu.Unlock()
	return Health{
		LastExecution:        r.lastRun,
		IsRunning:            r.running.Load(),
		Healthy:              r.failures < MaxConsecutiveFailures,
		ConsecutiveFailures:  r.failures,
		MaxFailuresThreshold: MaxConsecutiveFailures,
	}
}

package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/pendek-app/pendek-auth/internal/reaper"
)

const (
	taskTypeSessionSweep = "sessions:sweep"
	maintenanceQueue     = "maintenance"
)

// Manager schedules the recurring session sweep on asynq. Single-instance
// scheduling is assumed; there is no distributed lock around the sweep.
type Manager struct {
	scheduler *asynq.Scheduler
	server    *asynq.Server
	mux       *asynq.ServeMux
	reaper    *reaper.Reaper
	logger    *slog.Logger
}

func NewManager(redisURL string, interval time.Duration, rp *reaper.Reaper, logger *slog.Logger) (*Manager, error) {
	opt, err := asynq.ParseRedisURI(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	scheduler := asynq.NewScheduler(opt, &asynq.SchedulerOpts{})
	server := asynq.NewServer(opt, asynq.Config{
		Concurrency: 1,
		Queues: map[string]int{
			maintenanceQueue: 1,
		},
	})

	m := &Manager{
		scheduler: scheduler,
		server:    server,
		mux:       asynq.NewServeMux(),
		reaper:    rp,
		logger:    logger,
	}
	m.mux.HandleFunc(taskTypeSessionSweep, m.handleSessionSweep)

	spec := fmt.Sprintf("@every %s", interval)
	if _, err := scheduler.Register(spec, asynq.NewTask(taskTypeSessionSweep, nil), asynq.Queue(maintenanceQueue)); err != nil {
		return nil, fmt.Errorf("register sweep task: %w", err)
	}
	return m, nil
}

func (m *Manager) handleSessionSweep(ctx context.Context, _ *asynq.Task) error {
	// The reaper absorbs its own failures; they surface through its health
	// status and the alerting sink, never as a task retry.
	m.reaper.Tick(ctx)
	return nil
}

func (m *Manager) Start() error {
	if err := m.server.Start(m.mux); err != nil {
		return fmt.Errorf("start jobs server: %w", err)
	}
	if err := m.scheduler.Start(); err != nil {
		m.server.Shutdown()
		return fmt.Errorf("start jobs scheduler: %w", err)
	}
	m.logger.Info("session sweep scheduled")
	return nil
}

func (m *Manager) Shutdown() {
	m.scheduler.Shutdown()
	m.server.Shutdown()
}

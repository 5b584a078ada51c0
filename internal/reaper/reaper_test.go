package reaper

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"
)

type scriptedStore struct {
	mu      sync.Mutex
	results []purgeResult
	calls   int
	block   chan struct{}
}

type purgeResult struct {
	deleted int64
	err     error
}

func (s *scriptedStore) PurgeExpiredOrRevoked() (int64, error) {
	if s.block != nil {
		<-s.block
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	res := purgeResult{}
	if s.calls < len(s.results) {
		res = s.results[s.calls]
	}
	s.calls++
	return res.deleted, res.err
}

type recordingAlerter struct {
	mu         sync.Mutex
	exceptions []error
	messages   []string
	severities []string
}

func (a *recordingAlerter) CaptureException(err error, _ map[string]string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.exceptions = append(a.exceptions, err)
}

func (a *recordingAlerter) CaptureMessage(msg, severity string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.messages = append(a.messages, msg)
	a.severities = append(a.severities, severity)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestTickReportsDeletedRows(t *testing.T) {
	store := &scriptedStore{results: []purgeResult{{deleted: 7}}}
	alerter := &recordingAlerter{}
	r := New(store, alerter, testLogger())

	if got := r.Tick(context.Background()); got != 7 {
		t.Fatalf("expected 7 deleted rows, got %d", got)
	}

	h := r.Health()
	if !h.Healthy || h.ConsecutiveFailures != 0 {
		t.Fatalf("expected healthy state, got %+v", h)
	}
	if h.LastExecution.IsZero() {
		t.Fatal("expected last execution to be recorded")
	}
	if h.IsRunning {
		t.Fatal("expected is_running=false after tick")
	}
	if len(alerter.exceptions) != 0 {
		t.Fatalf("expected no alerts, got %v", alerter.exceptions)
	}
}

func TestTickAbsorbsStoreFailures(t *testing.T) {
	boom := errors.New("database gone")
	store := &scriptedStore{results: []purgeResult{{err: boom}, {deleted: 3}}}
	alerter := &recordingAlerter{}
	r := New(store, alerter, testLogger())

	if got := r.Tick(context.Background()); got != 0 {
		t.Fatalf("expected 0 on failure, got %d", got)
	}
	h := r.Health()
	if h.ConsecutiveFailures != 1 {
		t.Fatalf("expected 1 failure, got %d", h.ConsecutiveFailures)
	}
	if !h.Healthy {
		t.Fatal("one failure should not degrade health")
	}
	if len(alerter.exceptions) != 1 || !errors.Is(alerter.exceptions[0], boom) {
		t.Fatalf("expected the store error to be captured, got %v", alerter.exceptions)
	}

	// A success resets the streak.
	if got := r.Tick(context.Background()); got != 3 {
		t.Fatalf("expected 3 deleted rows, got %d", got)
	}
	h = r.Health()
	if h.ConsecutiveFailures != 0 || !h.Healthy {
		t.Fatalf("expected reset after success, got %+v", h)
	}
}

func TestTickRaisesFatalAlertAtThreshold(t *testing.T) {
	boom := errors.New("database gone")
	store := &scriptedStore{results: []purgeResult{{err: boom}, {err: boom}, {err: boom}}}
	alerter := &recordingAlerter{}
	r := New(store, alerter, testLogger())

	for i := 0; i < MaxConsecutiveFailures; i++ {
		r.Tick(context.Background())
	}

	h := r.Health()
	if h.Healthy {
		t.Fatal("expected degraded health at the failure threshold")
	}
	if h.ConsecutiveFailures != MaxConsecutiveFailures {
		t.Fatalf("expected %d failures, got %d", MaxConsecutiveFailures, h.ConsecutiveFailures)
	}
	if h.MaxFailuresThreshold != MaxConsecutiveFailures {
		t.Fatalf("unexpected threshold %d", h.MaxFailuresThreshold)
	}
	if len(alerter.messages) != 1 || alerter.severities[0] != "fatal" {
		t.Fatalf("expected one fatal alert, got %v / %v", alerter.messages, alerter.severities)
	}
}

func TestTickSkipsOverlappingRun(t *testing.T) {
	store := &scriptedStore{
		results: []purgeResult{{deleted: 1}},
		block:   make(chan struct{}),
	}
	alerter := &recordingAlerter{}
	r := New(store, alerter, testLogger())

	done := make(chan int64, 1)
	go func() { done <- r.Tick(context.Background()) }()

	// Wait for the first tick to take ownership.
	deadline := time.After(2 * time.Second)
	for !r.Health().IsRunning {
		select {
		case <-deadline:
			t.Fatal("first tick never started")
		default:
			time.Sleep(time.Millisecond)
		}
	}

	if got := r.Tick(context.Background()); got != 0 {
		t.Fatalf("overlapping tick should purge nothing, got %d", got)
	}

	close(store.block)
	if got := <-done; got != 1 {
		t.Fatalf("first tick should finish its sweep, got %d", got)
	}

	store.mu.Lock()
	calls := store.calls
	store.mu.Unlock()
	if calls != 1 {
		t.Fatalf("expected a single store call, got %d", calls)
	}
}

func TestRunStopsWhenContextCancelled(t *testing.T) {
	store := &scriptedStore{}
	r := New(store, &recordingAlerter{}, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		r.Run(ctx, 10*time.Millisecond)
		close(stopped)
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("run loop did not stop")
	}

	store.mu.Lock()
	calls := store.calls
	store.mu.Unlock()
	if calls == 0 {
		t.Fatal("expected at least one sweep before cancellation")
	}
}

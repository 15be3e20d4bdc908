package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"showsync/internal/importer"
	appLog "showsync/internal/log"
)

type countingRunner struct {
	mu   sync.Mutex
	runs int
}

func (r *countingRunner) Run(context.Context) (importer.Summary, error) {
	r.mu.Lock()
	r.runs++
	r.mu.Unlock()
	return importer.Summary{State: importer.StateDone}, nil
}

func (r *countingRunner) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.runs
}

func TestNewRejectsBadSpec(t *testing.T) {
	if _, err := New(&countingRunner{}, "not a schedule", time.UTC, nil, nil); err == nil {
		t.Fatal("New() error = nil for invalid spec")
	}
	s, err := New(&countingRunner{}, "", time.UTC, nil, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if s.Spec() != DefaultSpec {
		t.Errorf("Spec() = %q, want %q", s.Spec(), DefaultSpec)
	}
}

func TestScheduledRunRespectsActiveFlag(t *testing.T) {
	runner := &countingRunner{}
	active := false
	ring := appLog.NewRing(10)
	s, err := New(runner, "@every 1h", time.UTC, func() bool { return active }, ring)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	s.runScheduled(context.Background())
	if runner.count() != 0 {
		t.Fatalf("inactive scheduler ran %d imports", runner.count())
	}
	entries := ring.Entries()
	if len(entries) != 1 || entries[0].Level != appLog.LevelWarning {
		t.Errorf("entries = %+v, want one warning", entries)
	}

	active = true
	s.runScheduled(context.Background())
	if runner.count() != 1 {
		t.Errorf("active scheduler ran %d imports, want 1", runner.count())
	}
}

func TestRescheduleKeepsOldSpecOnError(t *testing.T) {
	s, err := New(&countingRunner{}, "@every 1h", time.UTC, nil, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := s.Reschedule("61 * * * *"); err == nil {
		t.Fatal("Reschedule() error = nil for invalid minute")
	}
	if s.Spec() != "@every 1h" {
		t.Errorf("Spec() = %q after failed reschedule", s.Spec())
	}
	if err := s.Reschedule("0 */6 * * *"); err != nil {
		t.Fatalf("Reschedule() error = %v", err)
	}
	if s.Spec() != "0 */6 * * *" {
		t.Errorf("Spec() = %q", s.Spec())
	}
	if n := len(s.cron.Entries()); n != 1 {
		t.Errorf("cron entries = %d, want 1", n)
	}
}

func TestServeStopsOnCancel(t *testing.T) {
	s, err := New(&countingRunner{}, "@every 1h", time.UTC, nil, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx) }()

	deadline := time.Now().Add(2 * time.Second)
	for s.Next().IsZero() && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if s.Next().IsZero() {
		t.Fatal("Next() still zero after start")
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Serve() did not return after cancel")
	}
}

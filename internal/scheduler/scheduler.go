// Package scheduler triggers import runs on a cron schedule.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"showsync/internal/importer"
	appLog "showsync/internal/log"
)

// DefaultSpec runs the import twice a day.
const DefaultSpec = "@every 12h"

// Runner is the import entry point.
type Runner interface {
	Run(ctx context.Context) (importer.Summary, error)
}

// Scheduler runs the importer on a cron schedule. Scheduled runs are
// skipped while the importer is inactive; a run still in progress when
// the next tick fires is not doubled up.
type Scheduler struct {
	cron   *cron.Cron
	runner Runner
	active func() bool
	sink   appLog.Sink

	mu      sync.Mutex
	spec    string
	entryID cron.EntryID
	ctx     context.Context
}

// New creates a Scheduler for spec (standard 5-field cron or a descriptor
// such as "@every 12h") evaluated in loc. active is consulted on each tick.
func New(runner Runner, spec string, loc *time.Location, active func() bool, sink appLog.Sink) (*Scheduler, error) {
	if runner == nil {
		return nil, errors.New("scheduler: runner is nil")
	}
	if spec == "" {
		spec = DefaultSpec
	}
	if loc == nil {
		loc = time.Local
	}
	if active == nil {
		active = func() bool { return true }
	}
	if sink == nil {
		sink = appLog.Std()
	}

	logger := appLog.CronLogger{}
	s := &Scheduler{
		cron: cron.New(
			cron.WithLocation(loc),
			cron.WithLogger(logger),
			cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
		),
		runner: runner,
		active: active,
		sink:   sink,
		ctx:    context.Background(),
	}
	if err := s.Reschedule(spec); err != nil {
		return nil, err
	}
	return s, nil
}

// Reschedule replaces the schedule. The previous one stays in place when
// spec does not parse.
func (s *Scheduler) Reschedule(spec string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if spec == s.spec {
		return nil
	}
	id, err := s.cron.AddFunc(spec, s.tick)
	if err != nil {
		return fmt.Errorf("scheduler: invalid schedule %q: %w", spec, err)
	}
	if s.entryID != 0 {
		s.cron.Remove(s.entryID)
	}
	s.entryID = id
	s.spec = spec
	return nil
}

// Spec returns the active schedule expression.
func (s *Scheduler) Spec() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.spec
}

// Next returns the next scheduled run, or the zero time before Serve.
func (s *Scheduler) Next() time.Time {
	s.mu.Lock()
	id := s.entryID
	s.mu.Unlock()
	return s.cron.Entry(id).Next
}

func (s *Scheduler) runContext() context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ctx
}

func (s *Scheduler) tick() {
	s.runScheduled(s.runContext())
}

func (s *Scheduler) runScheduled(ctx context.Context) {
	if !s.active() {
		s.sink.Log(appLog.LevelWarning, "scheduled import skipped: importer is paused")
		return
	}
	s.sink.Log(appLog.LevelInfo, "scheduled import triggered")
	if _, err := s.runner.Run(ctx); err != nil && !errors.Is(err, importer.ErrRunInProgress) {
		appLog.Debug("scheduled import ended with error", "err", err)
	}
}

// Serve starts the cron loop and blocks until ctx is done, then waits for
// a running import to finish. It satisfies suture.Service.
func (s *Scheduler) Serve(ctx context.Context) error {
	s.mu.Lock()
	s.ctx = ctx
	s.mu.Unlock()

	s.cron.Start()
	appLog.Info("scheduler started", "spec", s.Spec(), "next", s.Next().Format(time.RFC3339))

	<-ctx.Done()
	<-s.cron.Stop().Done()
	appLog.Info("scheduler stopped")
	return ctx.Err()
}

func (s *Scheduler) String() string { return "import-scheduler" }

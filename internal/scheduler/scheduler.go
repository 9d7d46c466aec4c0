// Package scheduler triggers documentation runs once at startup and then
// daily at a fixed local time.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// DefaultMisfireGrace is how late a daily fire may be and still run.
const DefaultMisfireGrace = 5 * time.Minute

var (
	// ErrAlreadyRunning is returned when a run is requested while one is in
	// progress. The request is dropped, not queued.
	ErrAlreadyRunning = errors.New("documentation run already in progress")
	// ErrStopped is returned once the scheduler has been stopped.
	ErrStopped = errors.New("scheduler stopped")
	// ErrAlreadyStarted is returned by a second Start.
	ErrAlreadyStarted = errors.New("scheduler already started")
	// ErrNotStarted is returned by Trigger before Start.
	ErrNotStarted = errors.New("scheduler not started")
)

// State is the scheduler lifecycle state.
type State int32

const (
	StateIdle State = iota
	StateRunning
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// RunFunc performs one documentation run.
type RunFunc func(ctx context.Context) error

// Clock abstracts time for tests.
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
}

type realClock struct{}

func (realClock) Now() time.Time                         { return time.Now() }
func (realClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

// SkipRecorder counts runs that were not started.
type SkipRecorder interface {
	Skipped(reason string)
}

// Options configures the daily trigger.
type Options struct {
	Timezone     string
	Hour         int
	Minute       int
	MisfireGrace time.Duration
}

// Scheduler owns the run loop.
type Scheduler struct {
	schedule cron.Schedule
	grace    time.Duration
	run      RunFunc
	clock    Clock
	skips    SkipRecorder
	logger   *zap.SugaredLogger

	// gate orders state changes against runWG.Add.
	gate    sync.Mutex
	state   atomic.Int32
	busy    atomic.Bool
	stop    chan struct{}
	loopWG  sync.WaitGroup
	runWG   sync.WaitGroup
	baseCtx context.Context

	mu      sync.RWMutex
	nextRun time.Time
}

// Option customizes a Scheduler.
type Option func(*Scheduler)

// WithClock replaces the wall clock.
func WithClock(c Clock) Option {
	return func(s *Scheduler) {
		s.clock = c
	}
}

// WithSkipRecorder reports skipped runs.
func WithSkipRecorder(r SkipRecorder) Option {
	return func(s *Scheduler) {
		s.skips = r
	}
}

// New creates a Scheduler firing daily at opts.Hour:opts.Minute in
// opts.Timezone.
func New(opts Options, run RunFunc, logger *zap.SugaredLogger, options ...Option) (*Scheduler, error) {
	tz := opts.Timezone
	if tz == "" {
		tz = "UTC"
	}
	if _, err := time.LoadLocation(tz); err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", tz, err)
	}
	if opts.Hour < 0 || opts.Hour > 23 || opts.Minute < 0 || opts.Minute > 59 {
		return nil, fmt.Errorf("invalid schedule time %02d:%02d", opts.Hour, opts.Minute)
	}

	spec := fmt.Sprintf("CRON_TZ=%s %d %d * * *", tz, opts.Minute, opts.Hour)
	schedule, err := cron.ParseStandard(spec)
	if err != nil {
		return nil, fmt.Errorf("failed to parse schedule %q: %w", spec, err)
	}

	grace := opts.MisfireGrace
	if grace <= 0 {
		grace = DefaultMisfireGrace
	}

	s := &Scheduler{
		schedule: schedule,
		grace:    grace,
		run:      run,
		clock:    realClock{},
		logger:   logger,
		stop:     make(chan struct{}),
	}
	for _, opt := range options {
		opt(s)
	}
	return s, nil
}

// State returns the lifecycle state.
func (s *Scheduler) State() State {
	return State(s.state.Load())
}

// Busy reports whether a run is in progress.
func (s *Scheduler) Busy() bool {
	return s.busy.Load()
}

// Next returns the first daily fire time strictly after t.
func (s *Scheduler) Next(t time.Time) time.Time {
	return s.schedule.Next(t)
}

// NextRun returns the fire time the loop is currently waiting for.
func (s *Scheduler) NextRun() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.nextRun
}

// Start triggers an immediate run and then arms the daily trigger. It
// returns without waiting for the run.
func (s *Scheduler) Start(ctx context.Context) error {
	s.gate.Lock()
	switch s.State() {
	case StateStopped:
		s.gate.Unlock()
		return ErrStopped
	case StateRunning:
		s.gate.Unlock()
		return ErrAlreadyStarted
	}
	// Runs must finish even when the caller's context is cancelled.
	s.baseCtx = context.WithoutCancel(ctx)
	s.state.Store(int32(StateRunning))
	s.gate.Unlock()

	s.logger.Infow("Scheduler started",
		"next_run", s.Next(s.clock.Now()).Format(time.RFC3339),
		"misfire_grace", s.grace.String(),
	)

	_ = s.tryRun("startup")

	s.loopWG.Add(1)
	go s.loop(ctx)
	return nil
}

// Trigger requests an extra run through the same coalescing path as the
// daily trigger.
func (s *Scheduler) Trigger() error {
	switch s.State() {
	case StateRunning:
		return s.tryRun("manual")
	case StateStopped:
		return ErrStopped
	default:
		return ErrNotStarted
	}
}

// Stop prevents new runs and waits for the in-flight run to finish.
func (s *Scheduler) Stop() {
	s.markStopped()
	s.loopWG.Wait()
	s.runWG.Wait()
	s.logger.Infow("Scheduler stopped")
}

// Wait blocks until the loop has exited and no run is in progress.
func (s *Scheduler) Wait() {
	s.loopWG.Wait()
	s.runWG.Wait()
}

func (s *Scheduler) loop(ctx context.Context) {
	defer s.loopWG.Done()

	for {
		now := s.clock.Now()
		next := s.Next(now)
		s.mu.Lock()
		s.nextRun = next
		s.mu.Unlock()

		select {
		case <-ctx.Done():
			s.markStopped()
			return
		case <-s.stop:
			return
		case <-s.clock.After(next.Sub(now)):
			s.fire(next)
		}
	}
}

// fire handles one daily trigger scheduled for at.
func (s *Scheduler) fire(at time.Time) {
	late := s.clock.Now().Sub(at)
	if late > s.grace {
		s.logger.Warnw("Skipping misfired run",
			"scheduled", at.Format(time.RFC3339),
			"late_by", late.String(),
			"grace", s.grace.String(),
		)
		s.recordSkip("misfire")
		return
	}
	_ = s.tryRun("scheduled")
}

// tryRun starts a run unless one is in progress or the scheduler stopped.
func (s *Scheduler) tryRun(reason string) error {
	s.gate.Lock()
	if s.State() == StateStopped {
		s.gate.Unlock()
		return ErrStopped
	}
	if !s.busy.CompareAndSwap(false, true) {
		s.gate.Unlock()
		s.logger.Warnw("Documentation run already in progress, skipping", "trigger", reason)
		s.recordSkip("coalesced")
		return ErrAlreadyRunning
	}
	s.runWG.Add(1)
	s.gate.Unlock()

	go func() {
		defer s.runWG.Done()
		defer s.busy.Store(false)

		start := s.clock.Now()
		s.logger.Infow("Starting scheduled documentation run", "trigger", reason)
		if err := s.run(s.baseCtx); err != nil {
			s.logger.Errorw("Documentation run failed", "trigger", reason, "error", err)
			return
		}
		s.logger.Infow("Documentation run finished",
			"trigger", reason,
			"duration", s.clock.Now().Sub(start).String(),
		)
	}()
	return nil
}

func (s *Scheduler) markStopped() {
	s.gate.Lock()
	defer s.gate.Unlock()
	if s.State() != StateStopped {
		s.state.Store(int32(StateStopped))
		close(s.stop)
	}
}

func (s *Scheduler) recordSkip(reason string) {
	if s.skips != nil {
		s.skips.Skipped(reason)
	}
}

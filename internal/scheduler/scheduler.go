package scheduler

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"platewatch/internal/components/assert"
	"platewatch/internal/components/chrono"
	"platewatch/internal/components/telemetry"
)

const (
	report_scheduler_run          = "scheduler.run"
	report_scheduler_skip_overdue = "scheduler.skip-overdue"
	report_scheduler_runs         = "scheduler.runs"
)

type State int32

const (
	WaitingForWindow State = iota
	Idle
	Running
)

func (s State) String() string {
	switch s {
	case WaitingForWindow:
		return "waiting-for-window"
	case Idle:
		return "idle"
	case Running:
		return "running"
	}
	return fmt.Sprintf("state(%d)", int32(s))
}

// Task is the unit of work a Scheduler runs. Errors and panics are reported,
// they never stop the schedule.
type Task func(ctx context.Context) error

// Scheduler runs a Task periodically while the wall clock is inside a Window.
//
// Tasks run on the goroutine that called Run, so two runs never overlap. Ticks
// that become due while a run is in flight are skipped, not queued.
type Scheduler struct {
	name   string
	window Window
	task   Task
	clock  chrono.API
	tel    telemetry.API

	state   atomic.Int32
	runs    atomic.Int64
	skipped atomic.Int64
}

type Option func(s *Scheduler)

func WithClock(clock chrono.API) Option {
	return func(s *Scheduler) {
		s.clock = clock
	}
}

func WithTelemetry(tel telemetry.API) Option {
	return func(s *Scheduler) {
		s.tel = tel
	}
}

func New(name string, window Window, task Task, opts ...Option) (*Scheduler, error) {
	assert.NotNil(task)
	if err := window.Validate(); err != nil {
		return nil, fmt.Errorf("scheduler %s: %w", name, err)
	}

	s := &Scheduler{name: name, window: window, task: task}
	for _, o := range opts {
		o(s)
	}
	if s.tel == nil {
		s.tel = telemetry.SlogAPI{}
	}
	s.tel = telemetry.NewScopedAPI(fmt.Sprintf("scheduler[%s]", name), s.tel)
	if s.clock == nil {
		clock, err := chrono.NewStandardImpl("")
		if err != nil {
			return nil, err
		}
		s.clock = clock
	}
	return s, nil
}

func (s *Scheduler) State() State {
	return State(s.state.Load())
}

// Runs is the number of times the task has been started.
func (s *Scheduler) Runs() int64 {
	return s.runs.Load()
}

// Skipped is the number of overdue ticks that were dropped.
func (s *Scheduler) Skipped() int64 {
	return s.skipped.Load()
}

func (s *Scheduler) setState(state State) {
	s.state.Store(int32(state))
}

// Run drives the schedule until ctx is cancelled. The in-flight task (if any)
// is allowed to return before Run does.
func (s *Scheduler) Run(ctx context.Context) error {
	s.tel.ReportDebug("started", s.window.String())
	defer s.setState(Idle)

	for ctx.Err() == nil {
		now := s.clock.Now()
		if !s.window.Contains(now) {
			s.setState(WaitingForWindow)
			next := s.window.NextStart(now)
			s.tel.ReportDebug("waiting for window", next.Format(time.RFC3339))
			if chrono.Sleep(ctx, s.clock, next.Sub(now)) != nil {
				break
			}
			continue
		}

		s.setState(Idle)
		s.tel.ReportDebug("entered window", s.window.String())
		s.runWindow(ctx)
	}

	s.tel.ReportDebug("stopped", s.runs.Load())
	return nil
}

// runWindow handles one stay inside the window, it returns once the window
// closes or ctx is cancelled.
func (s *Scheduler) runWindow(ctx context.Context) {
	var anchor time.Time
	if s.window.AlignToTop {
		if s.window.Immediate {
			s.fire(ctx)
		}
		top := NextTopOfHour(s.clock.Now())
		if chrono.Sleep(ctx, s.clock, top.Sub(s.clock.Now())) != nil {
			return
		}
		if !s.window.Contains(s.clock.Now()) {
			return
		}
		s.fire(ctx)
		anchor = top
	} else {
		anchor = s.clock.Now()
		if s.window.Immediate {
			s.fire(ctx)
		}
	}

	last := anchor
	for {
		now := s.clock.Now()
		next, skipped := nextTick(last, now, s.window.Interval)
		if skipped > 0 {
			total := s.skipped.Add(int64(skipped))
			s.tel.ReportWarning(report_scheduler_skip_overdue, skipped, total)
		}
		if chrono.Sleep(ctx, s.clock, next.Sub(now)) != nil {
			return
		}
		last = next

		if !s.window.Contains(s.clock.Now()) {
			s.tel.ReportDebug("left window", s.window.String())
			return
		}
		s.fire(ctx)
	}
}

func (s *Scheduler) fire(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}

	s.setState(Running)
	defer s.setState(Idle)
	n := s.runs.Add(1)
	s.tel.ReportCount(report_scheduler_runs, n)

	defer func() {
		if r := recover(); r != nil {
			s.tel.ReportBroken(report_scheduler_run, fmt.Errorf("task panicked: %v", r))
		}
	}()
	if err := s.task(ctx); err != nil {
		s.tel.ReportBroken(report_scheduler_run, err)
	}
}

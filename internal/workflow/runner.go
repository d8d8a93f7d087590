package workflow

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"platewatch/internal/captcha"
	"platewatch/internal/components/assert"
	"platewatch/internal/components/chrono"
	"platewatch/internal/components/telemetry"
	"platewatch/internal/notifier"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const DefaultRetryDelay = 15 * time.Second

const (
	report_runner_run   = "runner.run"
	report_runner_retry = "runner.retry"
	report_runner_skip  = "runner.skip-busy"
	report_runner_store = "runner.record"
)

// Scraper performs a single scrape, Workflow implements it.
type Scraper interface {
	Run(ctx context.Context) (Result, error)
}

// Recorder receives every found value, notifier.Notifier implements it.
type Recorder interface {
	RecordAndNotify(ctx context.Context, value string, at time.Time) (notifier.Outcome, error)
}

type RunnerOptions struct {
	// RetryDelay is how long to wait before the one retry of a run that
	// timed out.
	RetryDelay time.Duration
	Clock      chrono.API
}

// Runner wraps the workflow for the scheduler. Failures are reported and
// swallowed, a run that timed out is retried once after RetryDelay. Only one
// run, scheduled or retried, is in flight at a time.
type Runner struct {
	scraper  Scraper
	recorder Recorder
	clock    chrono.API
	delay    time.Duration
	tel      telemetry.API

	busy         sync.Mutex
	retries      sync.WaitGroup
	retryPending atomic.Bool

	runs metric.Int64Counter
}

func NewRunner(scraper Scraper, recorder Recorder, opts RunnerOptions, tel telemetry.API) (*Runner, error) {
	assert.NotNil(scraper)
	assert.NotNil(recorder)
	assert.NotNil(opts.Clock)
	assert.NotNil(tel)

	if opts.RetryDelay <= 0 {
		opts.RetryDelay = DefaultRetryDelay
	}

	runs, err := meter.Int64Counter(
		"platewatch_runs_total",
		metric.WithDescription("Scrape runs by outcome."),
	)
	if err != nil {
		return nil, err
	}

	return &Runner{
		scraper:  scraper,
		recorder: recorder,
		clock:    opts.Clock,
		delay:    opts.RetryDelay,
		tel:      telemetry.NewScopedAPI("workflow", tel),
		runs:     runs,
	}, nil
}

// Run is the scheduler task, it never returns an error.
func (r *Runner) Run(ctx context.Context) error {
	if !r.busy.TryLock() {
		r.tel.ReportWarning(report_runner_skip, "previous run still in flight")
		r.count(ctx, "skipped")
		return nil
	}
	id := uuid.NewString()
	_, _, err := r.scrape(ctx, id)
	r.busy.Unlock()

	if err == nil {
		return nil
	}
	r.tel.ReportBroken(report_runner_run, err, id)
	if IsTimeout(err) && ctx.Err() == nil {
		r.scheduleRetry(ctx, id)
	}
	return nil
}

// Once performs a single run and returns its error, it does not retry.
func (r *Runner) Once(ctx context.Context) (Result, notifier.Outcome, error) {
	r.busy.Lock()
	defer r.busy.Unlock()
	return r.scrape(ctx, uuid.NewString())
}

// Wait blocks until a pending retry has finished or given up.
func (r *Runner) Wait() {
	r.retries.Wait()
}

func (r *Runner) scheduleRetry(ctx context.Context, parent string) {
	if !r.retryPending.CompareAndSwap(false, true) {
		r.tel.ReportDebug("retry already pending", parent)
		return
	}
	r.tel.ReportDebug("navigation timed out, retrying once", parent, r.delay.String())

	r.retries.Add(1)
	go func() {
		defer r.retries.Done()
		defer r.retryPending.Store(false)

		err := chrono.Sleep(ctx, r.clock, r.delay)
		if err != nil {
			r.tel.ReportDebug("retry cancelled", parent)
			return
		}
		if !r.busy.TryLock() {
			r.tel.ReportWarning(report_runner_skip, "retry skipped, a run is in flight", parent)
			r.count(ctx, "skipped")
			return
		}
		defer r.busy.Unlock()

		id := uuid.NewString()
		_, _, err = r.scrape(ctx, id)
		if err != nil {
			r.tel.ReportBroken(report_runner_retry, err, parent, id)
		}
	}()
}

func (r *Runner) scrape(ctx context.Context, id string) (Result, notifier.Outcome, error) {
	ctx, span := tracer.Start(ctx, "scrape")
	defer span.End()
	span.SetAttributes(attribute.String("run_id", id))

	res, err := r.scraper.Run(ctx)
	if err != nil {
		r.count(ctx, classify(err))
		return Result{}, notifier.Outcome{}, err
	}
	if !res.Found {
		r.tel.ReportDebug("no plate on the results page", id)
		r.count(ctx, "empty")
		return res, notifier.Outcome{}, nil
	}

	// the value has been scraped, persisting it is not worth losing to a
	// shutdown
	out, err := r.recorder.RecordAndNotify(context.WithoutCancel(ctx), res.Value, res.At)
	if err != nil {
		r.tel.ReportBroken(report_runner_store, err, id)
		r.count(ctx, "store_failed")
		return res, out, err
	}
	if out.Appended {
		r.count(ctx, "changed")
	} else {
		r.count(ctx, "unchanged")
	}
	r.tel.ReportDebug("run finished", id, res.Value, out.Appended, out.Sent)
	return res, out, nil
}

func (r *Runner) count(ctx context.Context, outcome string) {
	r.runs.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

func classify(err error) string {
	switch {
	case errors.Is(err, ErrInterrupted):
		return "interrupted"
	case errors.Is(err, captcha.ErrExhausted):
		return "captcha_exhausted"
	case IsTimeout(err):
		return "timeout"
	}
	var nav *NavigationError
	if errors.As(err, &nav) {
		return "navigation_failed"
	}
	return "failed"
}

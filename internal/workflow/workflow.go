package workflow

import (
	"context"
	"fmt"
	"time"

	"platewatch/internal/browser"
	"platewatch/internal/captcha"
	"platewatch/internal/components/assert"
	"platewatch/internal/components/chrono"
	"platewatch/internal/components/telemetry"
	"platewatch/pkg/htmlutil"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
)

const (
	DefaultFormURL = "https://www.mvdis.gov.tw/m3-emv-plate/webpickno/queryPickNo#"

	DefaultNavigationAttempts = 3
	DefaultNavigationBackoff  = 2 * time.Second
	DefaultOperationTimeout   = 60 * time.Second
	DefaultPollInterval       = 250 * time.Millisecond
	DefaultCaptchaRefresh     = time.Second
)

const (
	formReadySelector      = "#selDeptCode"
	captchaImageSelector   = "#pickimg"
	captchaRefreshSelector = `a[onclick*="pickimg"]`
	captchaInputSelector   = "#validateStr"
	submitSelector         = `.align_c.gap_t a.std_btn[onclick="doSubmit()"]`
	resultsSelector        = "#countList"
	lastPageSelector       = "#previous"
)

const (
	report_workflow_navigate = "workflow.navigate"
	report_workflow_captcha  = "workflow.solve-captcha"
	report_workflow_refresh  = "workflow.refresh-captcha"
	report_workflow_step     = "workflow.step"
)

var (
	tracer = otel.Tracer("platewatch/internal/workflow")
	meter  = otel.Meter("platewatch/internal/workflow")
)

// Session hands out pages from the shared browser, browser.Manager
// implements it.
type Session interface {
	OpenPage(ctx context.Context) (browser.Page, error)
	Release()
	MarkUse()
}

// Solver turns a challenge image into accepted text or a rejection.
type Solver interface {
	Solve(ctx context.Context, image []byte) (string, error)
}

type Config struct {
	FormURL string
	Cascade []SelectStep

	CaptchaAttempts int
	// CaptchaRefresh is the pause after asking for a new challenge image.
	CaptchaRefresh time.Duration

	NavigationAttempts int
	// NavigationBackoff is multiplied by the attempt number.
	NavigationBackoff time.Duration
	// OperationTimeout bounds every single page operation.
	OperationTimeout time.Duration
	PollInterval     time.Duration
}

func (c Config) withDefaults() Config {
	if c.FormURL == "" {
		c.FormURL = DefaultFormURL
	}
	if c.Cascade == nil {
		c.Cascade = DefaultCascade()
	}
	if c.CaptchaAttempts <= 0 {
		c.CaptchaAttempts = captcha.DefaultMaxAttempts
	}
	if c.CaptchaRefresh <= 0 {
		c.CaptchaRefresh = DefaultCaptchaRefresh
	}
	if c.NavigationAttempts <= 0 {
		c.NavigationAttempts = DefaultNavigationAttempts
	}
	if c.NavigationBackoff <= 0 {
		c.NavigationBackoff = DefaultNavigationBackoff
	}
	if c.OperationTimeout <= 0 {
		c.OperationTimeout = DefaultOperationTimeout
	}
	if c.PollInterval <= 0 {
		c.PollInterval = DefaultPollInterval
	}
	return c
}

// Result is the outcome of a successful run. Found is false when the results
// page had no plate, which is not an error.
type Result struct {
	Value string
	Found bool
	At    time.Time
}

// Workflow drives the pick number form from a blank tab to the newest plate
// on the last results page.
type Workflow struct {
	session Session
	solver  Solver
	clock   chrono.API
	cfg     Config
	tel     telemetry.API

	captchaAttempts metric.Int64Counter
}

func New(session Session, solver Solver, clock chrono.API, cfg Config, tel telemetry.API) (*Workflow, error) {
	assert.NotNil(session)
	assert.NotNil(solver)
	assert.NotNil(clock)
	assert.NotNil(tel)

	captchaAttempts, err := meter.Int64Counter(
		"platewatch_captcha_attempts_total",
		metric.WithDescription("Captcha attempts by whether the answer was accepted."),
	)
	if err != nil {
		return nil, err
	}

	return &Workflow{
		session:         session,
		solver:          solver,
		clock:           clock,
		cfg:             cfg.withDefaults(),
		tel:             telemetry.NewScopedAPI("workflow", tel),
		captchaAttempts: captchaAttempts,
	}, nil
}

// run is the state of a single pass through the steps.
type run struct {
	page       browser.Page
	answer     string
	resultsURL string
	result     Result
}

type stepFunc func(ctx context.Context, r *run) error

// Run performs one pass. Cancelling ctx does not abort the step in flight,
// it only keeps the next step from starting. The page is released and the
// use counted no matter how the run ends.
func (w *Workflow) Run(ctx context.Context) (Result, error) {
	ctx, span := tracer.Start(ctx, "Run")
	defer span.End()

	openCtx, cancel := w.opContext(ctx)
	page, err := w.session.OpenPage(openCtx)
	cancel()
	if err != nil {
		err = &StepError{Step: NavigateForm, Err: fmt.Errorf("open page: %w", err)}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return Result{}, err
	}
	defer func() {
		w.session.Release()
		w.session.MarkUse()
	}()

	steps := []struct {
		step Step
		fn   stepFunc
	}{
		{NavigateForm, w.navigateForm},
		{SelectCascade, w.selectCascade},
		{SolveCaptcha, w.solveCaptcha},
		{Submit, w.submit},
		{NavigateResults, w.navigateResults},
		{ExtractValue, w.extractValue},
	}

	r := &run{page: page}
	for _, s := range steps {
		if ctx.Err() != nil {
			err = &StepError{Step: s.step, Err: ErrInterrupted}
			span.SetStatus(codes.Error, err.Error())
			return Result{}, err
		}

		err = w.runStep(ctx, s.step, s.fn, r)
		if err != nil {
			err = &StepError{Step: s.step, Err: err}
			w.tel.ReportWarning(report_workflow_step, err)
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return Result{}, err
		}
	}

	r.result.At = w.clock.Now()
	span.SetAttributes(
		attribute.String("value", r.result.Value),
		attribute.Bool("found", r.result.Found),
	)
	return r.result, nil
}

func (w *Workflow) runStep(ctx context.Context, step Step, fn stepFunc, r *run) error {
	ctx, span := tracer.Start(ctx, step.String())
	defer span.End()

	// the step finishes even if shutdown is observed half way through
	err := fn(context.WithoutCancel(ctx), r)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

func (w *Workflow) opContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, w.cfg.OperationTimeout)
}

// do runs a single page operation under the operation timeout.
func (w *Workflow) do(ctx context.Context, fn func(ctx context.Context) error) error {
	ctx, cancel := w.opContext(ctx)
	defer cancel()
	return fn(ctx)
}

// navigate retries fn with a linear backoff, the error of the final attempt
// is returned as a NavigationError.
func (w *Workflow) navigate(ctx context.Context, op, url string, fn func(ctx context.Context) error) error {
	var err error
	attempt := 1
	for ; ; attempt++ {
		err = w.do(ctx, fn)
		if err == nil {
			return nil
		}
		w.tel.ReportWarning(report_workflow_navigate, err, op, url, attempt)
		if attempt >= w.cfg.NavigationAttempts {
			break
		}
		sleepErr := chrono.Sleep(ctx, w.clock, w.cfg.NavigationBackoff*time.Duration(attempt))
		if sleepErr != nil {
			break
		}
	}
	return &NavigationError{Op: op, URL: url, Attempts: attempt, Err: err}
}

func (w *Workflow) navigateForm(ctx context.Context, r *run) error {
	err := w.navigate(ctx, "goto", w.cfg.FormURL, func(ctx context.Context) error {
		return r.page.Navigate(ctx, w.cfg.FormURL)
	})
	if err != nil {
		return err
	}

	err = w.do(ctx, func(ctx context.Context) error {
		return r.page.WaitVisible(ctx, formReadySelector)
	})
	if err == nil {
		return nil
	}

	// a half rendered form usually comes back after a reload
	w.tel.ReportDebug("form did not render, reloading", err.Error())
	err = w.navigate(ctx, "reload", w.cfg.FormURL, func(ctx context.Context) error {
		err := r.page.Reload(ctx)
		if err != nil {
			return err
		}
		return r.page.WaitVisible(ctx, formReadySelector)
	})
	return err
}

func (w *Workflow) selectCascade(ctx context.Context, r *run) error {
	for _, step := range w.cfg.Cascade {
		err := w.do(ctx, func(ctx context.Context) error {
			return w.applyStep(ctx, r.page, step)
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func (w *Workflow) solveCaptcha(ctx context.Context, r *run) error {
	var last error
	for attempt := 1; attempt <= w.cfg.CaptchaAttempts; attempt++ {
		answer, err := w.attemptCaptcha(ctx, r.page)
		w.captchaAttempts.Add(ctx, 1, metric.WithAttributes(attribute.Bool("accepted", err == nil)))
		if err == nil {
			r.answer = answer
			w.tel.ReportDebug("captcha accepted", answer, attempt)
			return nil
		}
		last = err
		w.tel.ReportWarning(report_workflow_captcha, err, attempt)

		if attempt == w.cfg.CaptchaAttempts {
			break
		}
		err = w.do(ctx, func(ctx context.Context) error {
			return r.page.Click(ctx, captchaRefreshSelector)
		})
		if err != nil {
			w.tel.ReportWarning(report_workflow_refresh, err)
		}
		err = chrono.Sleep(ctx, w.clock, w.cfg.CaptchaRefresh)
		if err != nil {
			return err
		}
	}
	return &captcha.ExhaustedError{Attempts: w.cfg.CaptchaAttempts, Last: last}
}

func (w *Workflow) attemptCaptcha(ctx context.Context, page browser.Page) (string, error) {
	var image []byte
	err := w.do(ctx, func(ctx context.Context) error {
		var err error
		image, err = page.Screenshot(ctx, captchaImageSelector)
		return err
	})
	if err != nil {
		return "", fmt.Errorf("screenshot challenge: %w", err)
	}

	var answer string
	err = w.do(ctx, func(ctx context.Context) error {
		var err error
		answer, err = w.solver.Solve(ctx, image)
		return err
	})
	return answer, err
}

func (w *Workflow) submit(ctx context.Context, r *run) error {
	return w.do(ctx, func(ctx context.Context) error {
		err := r.page.Fill(ctx, captchaInputSelector, r.answer)
		if err != nil {
			return fmt.Errorf("fill answer: %w", err)
		}
		err = r.page.Click(ctx, submitSelector)
		if err != nil {
			return fmt.Errorf("submit: %w", err)
		}
		err = r.page.WaitVisible(ctx, resultsSelector)
		if err != nil {
			return fmt.Errorf("wait for results: %w", err)
		}
		return nil
	})
}

func (w *Workflow) navigateResults(ctx context.Context, r *run) error {
	var (
		href string
		ok   bool
	)
	err := w.do(ctx, func(ctx context.Context) error {
		var err error
		href, ok, err = r.page.Attribute(ctx, lastPageSelector, "href")
		return err
	})
	if err != nil {
		return fmt.Errorf("read last page link: %w", err)
	}
	if !ok || href == "" {
		// a single page of results has no pagination
		w.tel.ReportDebug("no last page link, staying on the first page")
		return nil
	}

	target, err := htmlutil.ResolveHref(w.cfg.FormURL, href)
	if err != nil {
		return fmt.Errorf("resolve last page link %q: %w", href, err)
	}
	r.resultsURL = target

	return w.navigate(ctx, "goto", target, func(ctx context.Context) error {
		err := r.page.Navigate(ctx, target)
		if err != nil {
			return err
		}
		return r.page.WaitVisible(ctx, resultsSelector)
	})
}

func (w *Workflow) extractValue(ctx context.Context, r *run) error {
	var doc string
	err := w.do(ctx, func(ctx context.Context) error {
		var err error
		doc, err = r.page.HTML(ctx)
		return err
	})
	if err != nil {
		return fmt.Errorf("read results page: %w", err)
	}

	value, err := ExtractLatest(doc)
	if err != nil {
		return err
	}
	r.result = Result{Value: value, Found: value != ""}
	return nil
}

// ExtractLatest returns the plate in the last number cell of a results page,
// or the empty string if the page lists none.
func ExtractLatest(doc string) (string, error) {
	parsed, err := htmlutil.Parse(doc)
	if err != nil {
		return "", fmt.Errorf("parse results page: %w", err)
	}
	cells := parsed.Find(".number_cell")
	if cells.Length() == 0 {
		return "", nil
	}
	return htmlutil.CleanText(cells.Last().Find("a.number")), nil
}

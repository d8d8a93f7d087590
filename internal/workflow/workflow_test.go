package workflow

import (
	"context"
	"errors"
	"testing"
	"time"

	"platewatch/internal/browser"
	"platewatch/internal/captcha"
	"platewatch/internal/components/chrono"
	"platewatch/internal/components/telemetry"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

var start = time.Date(2025, 7, 1, 9, 0, 0, 0, time.UTC)

func newTestWorkflow(t *testing.T, page *fakePage, solver *fakeSolver, cfg Config) (*Workflow, *fakeSession, *chrono.JumpingClock, *telemetry.Recorder) {
	session := &fakeSession{page: page}
	clock := chrono.NewJumpingClock(start)
	tel := telemetry.NewRecorder()
	w, err := New(session, solver, clock, cfg, tel)
	require.NoError(t, err)
	return w, session, clock, tel
}

func TestRunHappyPath(t *testing.T) {
	page := newFakePage()
	solver := &fakeSolver{answers: []solverAnswer{
		rejected(captcha.ErrLowConfidence),
		{text: "AB3D"},
	}}
	w, session, clock, _ := newTestWorkflow(t, page, solver, Config{})

	res, err := w.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, Result{Value: "CAT-2531", Found: true, At: clock.Now()}, res)

	expected := []string{
		"navigate " + DefaultFormURL,
		"select #selDeptCode=2",
		"select #selStationCode=25",
		"select #selWindowNo=251",
		"select #selCarType=C",
		"select #selEnergyType=C",
		"select #selPlateType=3",
		`click input[name="plateVer"][value="2"]`,
		"screenshot #pickimg",
		`click a[onclick*="pickimg"]`,
		"screenshot #pickimg",
		"fill #validateStr=AB3D",
		`click .align_c.gap_t a.std_btn[onclick="doSubmit()"]`,
		"navigate https://www.mvdis.gov.tw/m3-emv-plate/webpickno/queryPickNo?method=pickNoList&page=9",
	}
	if diff := cmp.Diff(expected, page.log); diff != "" {
		t.Fatal(diff)
	}

	// dependent selects were polled until populated
	require.Equal(t, 2, page.polls["#selStationCode"])
	require.Equal(t, 2, page.polls["#selPlateType"])

	require.Equal(t, 1, session.released)
	require.Equal(t, 1, session.uses)
}

func TestRunCaptchaExhausted(t *testing.T) {
	page := newFakePage()
	solver := &fakeSolver{answers: []solverAnswer{
		rejected(captcha.ErrSkipped),
		rejected(captcha.ErrWrongLength),
		rejected(captcha.ErrLowConfidence),
	}}
	w, session, _, tel := newTestWorkflow(t, page, solver, Config{})

	_, err := w.Run(context.Background())
	require.ErrorIs(t, err, captcha.ErrExhausted)
	require.ErrorIs(t, err, captcha.ErrLowConfidence)
	require.Equal(t, SolveCaptcha, FailedStep(err))

	var exhausted *captcha.ExhaustedError
	require.True(t, errors.As(err, &exhausted))
	require.Equal(t, 3, exhausted.Attempts)

	require.Equal(t, 3, solver.calls)
	refreshes := 0
	for _, entry := range page.log {
		if entry == `click a[onclick*="pickimg"]` {
			refreshes++
		}
	}
	require.Equal(t, 2, refreshes)
	require.Empty(t, page.fills)

	require.Equal(t, 1, session.released)
	require.Equal(t, 1, session.uses)
	require.True(t, tel.HasWarning(report_workflow_captcha))
}

func TestRunOcrFailureCountsAsAttempt(t *testing.T) {
	page := newFakePage()
	solver := &fakeSolver{answers: []solverAnswer{
		{err: errors.New("ocr request: unexpected status 502")},
		{text: "WXYZ"},
	}}
	w, _, _, _ := newTestWorkflow(t, page, solver, Config{})

	res, err := w.Run(context.Background())
	require.NoError(t, err)
	require.True(t, res.Found)
	require.Equal(t, "WXYZ", page.fills["#validateStr"])
}

func TestRunNavigationRetry(t *testing.T) {
	page := newFakePage()
	page.navErrs = []error{errors.New("net::ERR_CONNECTION_RESET"), context.DeadlineExceeded}
	w, _, clock, tel := newTestWorkflow(t, page, &fakeSolver{answers: []solverAnswer{{text: "AB3D"}}}, Config{})

	_, err := w.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, []string{DefaultFormURL, DefaultFormURL, DefaultFormURL}, page.navigations[:3])
	// 2s after the first failure, 4s after the second
	require.True(t, !clock.Now().Before(start.Add(6*time.Second)))
	require.True(t, tel.HasWarning(report_workflow_navigate))
}

func TestRunNavigationExhausted(t *testing.T) {
	page := newFakePage()
	page.navErrs = []error{context.DeadlineExceeded, context.DeadlineExceeded, context.DeadlineExceeded}
	w, session, _, _ := newTestWorkflow(t, page, &fakeSolver{answers: []solverAnswer{{text: "AB3D"}}}, Config{})

	_, err := w.Run(context.Background())
	require.Error(t, err)
	require.Equal(t, NavigateForm, FailedStep(err))
	require.True(t, IsTimeout(err))

	var nav *NavigationError
	require.True(t, errors.As(err, &nav))
	require.Equal(t, 3, nav.Attempts)
	require.Equal(t, "goto", nav.Op)

	require.Len(t, page.navigations, 3)
	require.Equal(t, 1, session.uses)
}

func TestRunNoResults(t *testing.T) {
	page := newFakePage()
	page.href = ""
	page.pages[DefaultFormURL] = `<div id="countList"></div>`
	w, _, _, _ := newTestWorkflow(t, page, &fakeSolver{answers: []solverAnswer{{text: "AB3D"}}}, Config{})

	res, err := w.Run(context.Background())
	require.NoError(t, err)
	require.False(t, res.Found)
	require.Equal(t, "", res.Value)
}

func TestRunSinglePage(t *testing.T) {
	page := newFakePage()
	page.href = ""
	w, _, _, _ := newTestWorkflow(t, page, &fakeSolver{answers: []solverAnswer{{text: "AB3D"}}}, Config{})

	res, err := w.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, "CAT-2401", res.Value)
	require.Len(t, page.navigations, 1)
}

func TestRunStopsBetweenSteps(t *testing.T) {
	page := newFakePage()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	// shutdown arrives half way through the cascade
	page.onSelect = func(selector string) {
		if selector == "#selWindowNo" {
			cancel()
		}
	}
	solver := &fakeSolver{answers: []solverAnswer{{text: "AB3D"}}}
	w, session, _, _ := newTestWorkflow(t, page, solver, Config{})

	_, err := w.Run(ctx)
	require.ErrorIs(t, err, ErrInterrupted)
	require.Equal(t, SolveCaptcha, FailedStep(err))

	// the cascade in flight was finished, nothing after it was started
	require.Contains(t, page.log, `click input[name="plateVer"][value="2"]`)
	require.Equal(t, 0, solver.calls)
	require.Equal(t, 1, session.released)
	require.Equal(t, 1, session.uses)
}

func TestRunOptionsNeverPopulate(t *testing.T) {
	page := newFakePage()
	page.options["#selStationCode"] = nil
	w, _, _, _ := newTestWorkflow(t, page, &fakeSolver{answers: []solverAnswer{{text: "AB3D"}}}, Config{
		OperationTimeout: 20 * time.Millisecond,
	})

	_, err := w.Run(context.Background())
	require.Equal(t, SelectCascade, FailedStep(err))
	require.True(t, IsTimeout(err))
}

func TestRunOpenPageFails(t *testing.T) {
	session := &fakeSession{err: errors.New("chrome not found")}
	w, err := New(session, &fakeSolver{}, chrono.NewJumpingClock(start), Config{}, telemetry.NewRecorder())
	require.NoError(t, err)

	_, err = w.Run(context.Background())
	require.ErrorContains(t, err, "chrome not found")
	require.Equal(t, NavigateForm, FailedStep(err))
	require.Equal(t, 0, session.uses)
}

func TestSelectStepResolve(t *testing.T) {
	options := []browser.Option{
		{Value: "0", Text: "請選擇"},
		{Value: "20", Text: "臺北區監理所"},
		{Value: "25", Text: "基隆 監理站"},
	}

	table := []struct {
		name     string
		step     SelectStep
		expected string
		err      bool
	}{
		{name: "by value", step: SelectStep{Name: "x", Value: "20"}, expected: "20"},
		{name: "missing value", step: SelectStep{Name: "x", Value: "99"}, err: true},
		{name: "by text", step: SelectStep{Name: "x", Text: "基隆"}, expected: "25"},
		{name: "by similar text", step: SelectStep{Name: "x", Text: "基隆監理所"}, expected: "25"},
		{name: "no such text", step: SelectStep{Name: "x", Text: "高雄"}, err: true},
		{name: "first available", step: SelectStep{Name: "x", FirstAvailable: true}, expected: "20"},
		{name: "nothing to do", step: SelectStep{Name: "x"}, err: true},
	}

	for _, row := range table {
		t.Run(row.name, func(t *testing.T) {
			option, err := row.step.resolve(options)
			if row.err {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, row.expected, option.Value)
		})
	}
}

func TestExtractLatest(t *testing.T) {
	table := []struct {
		name     string
		doc      string
		expected string
	}{
		{name: "last cell wins", doc: resultsLastPage, expected: "CAT-2531"},
		{name: "no cells", doc: `<div id="countList"></div>`, expected: ""},
		{name: "cell without anchor", doc: `<div class="number_cell">CAT-1</div>`, expected: ""},
	}
	for _, row := range table {
		t.Run(row.name, func(t *testing.T) {
			value, err := ExtractLatest(row.doc)
			require.NoError(t, err)
			require.Equal(t, row.expected, value)
		})
	}
}

package workflow

import (
	"context"
	"fmt"
	"time"

	"platewatch/internal/browser"
	"platewatch/internal/components/chrono"
	"platewatch/pkg/textutil"
)

type Step int

const (
	NavigateForm Step = iota
	SelectCascade
	SolveCaptcha
	Submit
	NavigateResults
	ExtractValue
	Done
	Failed
)

func (s Step) String() string {
	switch s {
	case NavigateForm:
		return "navigate-form"
	case SelectCascade:
		return "select-cascade"
	case SolveCaptcha:
		return "solve-captcha"
	case Submit:
		return "submit"
	case NavigateResults:
		return "navigate-results"
	case ExtractValue:
		return "extract-value"
	case Done:
		return "done"
	case Failed:
		return "failed"
	}
	return fmt.Sprintf("step(%d)", int(s))
}

// SelectStep is one field of the form cascade. Exactly one of Value, Text,
// FirstAvailable or Click decides what is chosen.
type SelectStep struct {
	Name     string
	Selector string

	// Value selects the option with this exact value.
	Value string
	// Text selects the option whose label contains this text, falling back
	// to the most similar label.
	Text string
	// FirstAvailable selects the first option that is not a placeholder.
	FirstAvailable bool
	// Click clicks the element instead of selecting, used for radios.
	Click bool

	// WaitOptions polls until the select has been populated by the previous
	// step, and if Text is set, until an option carrying it shows up.
	WaitOptions bool
	// Settle is a pause after the step for handlers the page does not signal.
	Settle time.Duration
}

// DefaultCascade picks the Keelung station, first pickup window, a non
// electric private passenger car and the new plate version.
func DefaultCascade() []SelectStep {
	return []SelectStep{
		{Name: "region", Selector: "#selDeptCode", Value: "2"},
		{Name: "station", Selector: "#selStationCode", Text: "基隆", WaitOptions: true},
		{Name: "window", Selector: "#selWindowNo", FirstAvailable: true, WaitOptions: true, Settle: 500 * time.Millisecond},
		{Name: "vehicle", Selector: "#selCarType", Value: "C"},
		{Name: "energy", Selector: "#selEnergyType", Value: "C", WaitOptions: true},
		{Name: "plate-type", Selector: "#selPlateType", Text: "自用小客貨車", WaitOptions: true},
		{Name: "plate-version", Selector: `input[name="plateVer"][value="2"]`, Click: true},
	}
}

const minOptionSimilarity = 0.85

func isPlaceholder(o browser.Option) bool {
	return o.Value == "" || o.Value == "0"
}

// resolve picks the option the step asks for.
func (s SelectStep) resolve(options []browser.Option) (browser.Option, error) {
	switch {
	case s.Value != "":
		for _, o := range options {
			if o.Value == s.Value {
				return o, nil
			}
		}
		return browser.Option{}, fmt.Errorf("%s: no option with value %q", s.Name, s.Value)
	case s.Text != "":
		labels := make([]string, len(options))
		for i, o := range options {
			labels[i] = o.Text
		}
		idx := textutil.BestMatch(labels, s.Text, minOptionSimilarity)
		if idx < 0 {
			return browser.Option{}, fmt.Errorf("%s: no option matching %q", s.Name, s.Text)
		}
		return options[idx], nil
	case s.FirstAvailable:
		for _, o := range options {
			if !isPlaceholder(o) {
				return o, nil
			}
		}
		return browser.Option{}, fmt.Errorf("%s: no selectable option", s.Name)
	}
	return browser.Option{}, fmt.Errorf("%s: step does not say what to select", s.Name)
}

// ready is the polling predicate for WaitOptions.
func (s SelectStep) ready(options []browser.Option) bool {
	if len(options) <= 1 {
		return false
	}
	if s.Text == "" {
		return true
	}
	for _, o := range options {
		if textutil.Contains(o.Text, s.Text) {
			return true
		}
	}
	return false
}

// waitOptions polls the select until the step's predicate holds.
func (w *Workflow) waitOptions(ctx context.Context, page browser.Page, step SelectStep) ([]browser.Option, error) {
	for {
		options, err := page.Options(ctx, step.Selector)
		if err != nil {
			return nil, err
		}
		if !step.WaitOptions || step.ready(options) {
			return options, nil
		}
		err = chrono.Sleep(ctx, w.clock, w.cfg.PollInterval)
		if err != nil {
			return nil, fmt.Errorf("%s: waiting for options of %s: %w", step.Name, step.Selector, err)
		}
	}
}

func (w *Workflow) applyStep(ctx context.Context, page browser.Page, step SelectStep) error {
	if step.Click {
		err := page.WaitVisible(ctx, step.Selector)
		if err != nil {
			return fmt.Errorf("%s: %w", step.Name, err)
		}
		err = page.Click(ctx, step.Selector)
		if err != nil {
			return fmt.Errorf("%s: %w", step.Name, err)
		}
	} else {
		options, err := w.waitOptions(ctx, page, step)
		if err != nil {
			return err
		}
		option, err := step.resolve(options)
		if err != nil {
			return err
		}
		err = page.Select(ctx, step.Selector, option.Value)
		if err != nil {
			return fmt.Errorf("%s: %w", step.Name, err)
		}
		w.tel.ReportDebug("selected", step.Name, option.Value, option.Text)
	}

	if step.Settle > 0 {
		return chrono.Sleep(ctx, w.clock, step.Settle)
	}
	return nil
}

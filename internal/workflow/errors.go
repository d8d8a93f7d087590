package workflow

import (
	"context"
	"errors"
	"fmt"

	"platewatch/internal/captcha"
)

// ErrInterrupted is returned when shutdown was observed between two steps.
var ErrInterrupted = errors.New("run interrupted by shutdown")

// NavigationError is the failure of the last of the bounded navigation
// attempts.
type NavigationError struct {
	Op       string
	URL      string
	Attempts int
	Err      error
}

func (e *NavigationError) Error() string {
	return fmt.Sprintf("%s %s failed after %d attempts: %v", e.Op, e.URL, e.Attempts, e.Err)
}

func (e *NavigationError) Unwrap() error {
	return e.Err
}

// StepError carries the step in which a run failed.
type StepError struct {
	Step Step
	Err  error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("%s: %v", e.Step, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}

// IsTimeout reports whether a run failed because an operation ran out of
// time, these runs get one delayed retry. An exhausted captcha is never a
// timeout, even when its last attempt timed out.
func IsTimeout(err error) bool {
	if errors.Is(err, captcha.ErrExhausted) {
		return false
	}
	return errors.Is(err, context.DeadlineExceeded)
}

// FailedStep returns the step a run failed in, or Done if err is not a
// StepError.
func FailedStep(err error) Step {
	var stepErr *StepError
	if errors.As(err, &stepErr) {
		return stepErr.Step
	}
	return Done
}

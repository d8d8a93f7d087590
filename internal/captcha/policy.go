package captcha

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

const (
	DefaultMinConfidence  = 0.7
	DefaultExpectedLength = 4
	DefaultMaxAttempts    = 3
)

var (
	ErrSkipped       = errors.New("ocr flagged result as untrustworthy")
	ErrLowConfidence = errors.New("ocr confidence below threshold")
	ErrWrongLength   = errors.New("ocr text has wrong length")
	ErrExhausted     = errors.New("captcha attempts exhausted")
)

// Result is a single OCR answer for a challenge image.
type Result struct {
	Text       string  `json:"ocr_text"`
	Confidence float64 `json:"min_confidence"`
	Skipped    bool    `json:"skipped"`
}

// RejectedError is returned by Policy.Accept, Reason is one of ErrSkipped,
// ErrLowConfidence or ErrWrongLength.
type RejectedError struct {
	Reason error
	Result Result
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf(
		"captcha rejected (text=%q confidence=%.3f skipped=%v): %s",
		e.Result.Text, e.Result.Confidence, e.Result.Skipped, e.Reason,
	)
}

func (e *RejectedError) Unwrap() error {
	return e.Reason
}

// ExhaustedError is terminal for a scrape run, it matches ErrExhausted.
type ExhaustedError struct {
	Attempts int
	Last     error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("captcha attempts exhausted after %d tries: %v", e.Attempts, e.Last)
}

func (e *ExhaustedError) Is(target error) bool {
	return target == ErrExhausted
}

func (e *ExhaustedError) Unwrap() error {
	return e.Last
}

type Policy struct {
	MinConfidence  float64
	ExpectedLength int
}

func DefaultPolicy() Policy {
	return Policy{
		MinConfidence:  DefaultMinConfidence,
		ExpectedLength: DefaultExpectedLength,
	}
}

// Accept applies the checks in order: skipped, confidence, length. The
// accepted text is uppercased.
func (p Policy) Accept(r Result) (string, error) {
	if r.Skipped {
		return "", &RejectedError{Reason: ErrSkipped, Result: r}
	}
	if r.Confidence < p.MinConfidence {
		return "", &RejectedError{
			Reason: fmt.Errorf("%w: %.3f < %.3f", ErrLowConfidence, r.Confidence, p.MinConfidence),
			Result: r,
		}
	}
	if n := utf8.RuneCountInString(r.Text); n != p.ExpectedLength {
		return "", &RejectedError{
			Reason: fmt.Errorf("%w: %d != %d", ErrWrongLength, n, p.ExpectedLength),
			Result: r,
		}
	}
	return strings.ToUpper(r.Text), nil
}

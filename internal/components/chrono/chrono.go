package chrono

import (
	"context"
	"time"
)

// TimestampLayout is how observed values are stamped in the history and in
// notification messages (YYYY/MM/DD hh:mm:ss, 24 hour).
const TimestampLayout = "2006/01/02 15:04:05"

// DefaultLocation is the wall clock the mvdis site operates on.
const DefaultLocation = "Asia/Taipei"

type API interface {
	Now() time.Time
	// After is time.After, bound to this clock.
	After(d time.Duration) <-chan time.Time
	Location() *time.Location
}

type StandardImpl struct {
	location *time.Location
}

func NewStandardImpl(location string) (StandardImpl, error) {
	if location == "" {
		location = DefaultLocation
	}
	loc, err := time.LoadLocation(location)
	if err != nil {
		return StandardImpl{}, err
	}
	return StandardImpl{location: loc}, nil
}

func (s StandardImpl) Now() time.Time {
	return time.Now().In(s.location)
}

func (s StandardImpl) After(d time.Duration) <-chan time.Time {
	return time.After(d)
}

func (s StandardImpl) Location() *time.Location {
	return s.location
}

// Sleep waits for the duration on the given clock, it returns early with the
// context's error if the context is cancelled first.
func Sleep(ctx context.Context, clock API, d time.Duration) error {
	if err := ctx.Err(); err != nil || d <= 0 {
		return err
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-clock.After(d):
		return nil
	}
}

func FormatTimestamp(t time.Time) string {
	return t.Format(TimestampLayout)
}

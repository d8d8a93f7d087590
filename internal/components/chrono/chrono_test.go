package chrono

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNextMatch(t *testing.T) {
	loc := time.FixedZone("CST", 8*60*60)

	table := []struct {
		spec     string
		now      time.Time
		expected time.Time
	}{
		{
			spec:     "0 * * * *",
			now:      time.Date(2025, 3, 1, 10, 20, 5, 0, loc),
			expected: time.Date(2025, 3, 1, 11, 0, 0, 0, loc),
		},
		{
			spec:     "0 * * * *",
			now:      time.Date(2025, 3, 1, 10, 0, 0, 0, loc),
			expected: time.Date(2025, 3, 1, 11, 0, 0, 0, loc),
		},
		{
			spec:     "0 7-22 * * *",
			now:      time.Date(2025, 3, 1, 23, 10, 0, 0, loc),
			expected: time.Date(2025, 3, 2, 7, 0, 0, 0, loc),
		},
		{
			spec:     "0 7-22 * * *",
			now:      time.Date(2025, 3, 1, 3, 0, 0, 0, loc),
			expected: time.Date(2025, 3, 1, 7, 0, 0, 0, loc),
		},
	}

	for _, row := range table {
		next, err := NextMatch(row.spec, row.now)
		require.NoError(t, err)
		require.True(t, row.expected.Equal(next), "%s from %s: got %s", row.spec, row.now, next)
	}

	_, err := NextMatch("not a spec", time.Now())
	require.Error(t, err)
}

func TestJumpingClock(t *testing.T) {
	start := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	clock := NewJumpingClock(start)

	err := Sleep(context.Background(), clock, time.Hour)
	require.NoError(t, err)
	require.Equal(t, start.Add(time.Hour), clock.Now())

	clock.Advance(time.Minute)
	require.Equal(t, start.Add(time.Hour+time.Minute), clock.Now())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = Sleep(ctx, clock, 0)
	require.ErrorIs(t, err, context.Canceled)
}

func TestFormatTimestamp(t *testing.T) {
	ts := time.Date(2025, 1, 2, 7, 5, 9, 0, time.UTC)
	require.Equal(t, "2025/01/02 07:05:09", FormatTimestamp(ts))
}

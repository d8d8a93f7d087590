package chrono

import (
	"sync"
	"time"
)

// JumpingClock is a clock where waiting is instant, every call to After moves
// the clock forward by the requested duration and fires immediately.
//
// It lets schedulers be tested over whole days of simulated time without
// sleeping.
type JumpingClock struct {
	mu  sync.Mutex
	now time.Time
}

func NewJumpingClock(start time.Time) *JumpingClock {
	return &JumpingClock{now: start}
}

func (c *JumpingClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *JumpingClock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	if d > 0 {
		c.now = c.now.Add(d)
	}
	ch := make(chan time.Time, 1)
	ch <- c.now
	return ch
}

// Advance moves the clock forward, it simulates work that takes time.
func (c *JumpingClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func (c *JumpingClock) Location() *time.Location {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now.Location()
}

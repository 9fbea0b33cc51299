package verification

import (
	"sync"
	"time"
)

// Clock abstracts waiting so polling bounds can be tested without real delay.
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
}

// RealClock uses the wall clock.
type RealClock struct{}

func (RealClock) Now() time.Time                         { return time.Now() }
func (RealClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

// StepClock fires every wait immediately and advances its own time by the
// requested duration. It records each wait.
type StepClock struct {
	mu    sync.Mutex
	now   time.Time
	waits []time.Duration
}

func NewStepClock(start time.Time) *StepClock {
	return &StepClock{now: start}
}

func (c *StepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *StepClock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.now = c.now.Add(d)
	c.waits = append(c.waits, d)

	ch := make(chan time.Time, 1)
	ch <- c.now
	return ch
}

// Waits returns the durations waited so far.
func (c *StepClock) Waits() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]time.Duration(nil), c.waits...)
}

// Elapsed is the sum of all waits.
func (c *StepClock) Elapsed() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	var total time.Duration
	for _, w := range c.waits {
		total += w
	}
	return total
}

// Package clock abstracts wall-clock time and timers so that time-driven
// state machines can run against real time in production and against a
// manually advanced clock in tests and replays.
package clock

import (
	"sync"
	"time"
)

// Timer is a cancellable pending callback.
// Stop is idempotent: stopping a fired or already stopped timer is a no-op.
type Timer interface {
	Stop() bool
}

// Clock provides the current time and schedules callbacks.
type Clock interface {
	// Now returns the current time.
	Now() time.Time

	// AfterFunc calls f once after d has elapsed.
	AfterFunc(d time.Duration, f func()) Timer

	// Tick calls f every d until the returned Timer is stopped.
	Tick(d time.Duration, f func()) Timer
}

// Real is a Clock backed by the time package.
type Real struct{}

// New returns the wall clock.
func New() Clock {
	return Real{}
}

// Now returns time.Now().
func (Real) Now() time.Time {
	return time.Now()
}

// AfterFunc wraps time.AfterFunc.
func (Real) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// Tick runs f on its own goroutine every d.
func (Real) Tick(d time.Duration, f func()) Timer {
	t := &ticker{
		ticker: time.NewTicker(d),
		stop:   make(chan struct{}),
	}
	go t.run(f)
	return t
}

type ticker struct {
	ticker *time.Ticker
	stop   chan struct{}
	once   sync.Once
}

func (t *ticker) run(f func()) {
	for {
		select {
		case <-t.stop:
			return
		case <-t.ticker.C:
			f()
		}
	}
}

func (t *ticker) Stop() bool {
	stopped := false
	t.once.Do(func() {
		t.ticker.Stop()
		close(t.stop)
		stopped = true
	})
	return stopped
}

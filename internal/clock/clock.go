// Package clock is the time source shared by the blocking phases of the
// controller (camera delays, ready polling, heartbeat blink).
package clock

import (
	"sync"
	"time"
)

// Clock reads the time and performs blocking sleeps.
type Clock interface {
	Now() time.Time
	Sleep(d time.Duration)
}

type wall struct{}

// Real returns the wall clock.
func Real() Clock { return wall{} }

func (wall) Now() time.Time        { return time.Now() }
func (wall) Sleep(d time.Duration) { time.Sleep(d) }

// Fake is a manually advanced clock. Sleep advances the fake time instantly,
// so blocking phases complete without waiting and their cost is observable.
type Fake struct {
	mu    sync.Mutex
	now   time.Time
	slept time.Duration
	hooks []func(time.Time)
}

// NewFake returns a fake clock starting at t.
func NewFake(t time.Time) *Fake { return &Fake{now: t} }

func (f *Fake) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *Fake) Sleep(d time.Duration) {
	if d <= 0 {
		return
	}
	f.mu.Lock()
	f.slept += d
	f.mu.Unlock()
	f.Advance(d)
}

// Advance moves the clock forward and runs the registered hooks.
func (f *Fake) Advance(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	now := f.now
	hooks := append([]func(time.Time){}, f.hooks...)
	f.mu.Unlock()
	for _, h := range hooks {
		h(now)
	}
}

// Slept is the total duration spent in Sleep.
func (f *Fake) Slept() time.Duration {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.slept
}

// OnAdvance registers h to run after every advance, e.g. to flip an input
// line once some simulated time has passed.
func (f *Fake) OnAdvance(h func(now time.Time)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.hooks = append(f.hooks, h)
}

// Package debounce collapses bursts of trigger calls into a single delayed
// callback invocation. Feed consumers use it so a storm of change events
// costs one re-fetch per window instead of one per event.
package debounce

import (
	"sync"
	"time"
)

// Debouncer invokes fn once per burst: each Trigger (re)starts a timer of
// the configured window, and fn fires only when a full window passes without
// another Trigger. Callback invocations are serialized; a fire that lands
// while fn is still running waits for it to return.
type Debouncer struct {
	window time.Duration
	fn     func()

	mu         sync.Mutex
	timer      *time.Timer
	generation uint64

	runMu sync.Mutex
}

// New creates a debouncer with the given window. A zero or negative window
// still defers fn to a timer goroutine, firing as soon as possible.
func New(window time.Duration, fn func()) *Debouncer {
	return &Debouncer{
		window: window,
		fn:     fn,
	}
}

// Trigger (re)arms the timer. A pending fire is discarded, not delivered: N
// triggers within one window produce exactly one invocation, a full window
// after the last of them.
func (d *Debouncer) Trigger() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.timer != nil {
		d.timer.Stop()
	}

	d.generation++
	gen := d.generation
	d.timer = time.AfterFunc(d.window, func() { d.fire(gen) })
}

// Cancel discards the pending timer, if any, without invoking fn. Idempotent.
// After Cancel returns, fn will not fire until the next Trigger — even if the
// timer had already elapsed and its callback was about to run.
func (d *Debouncer) Cancel() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}

	d.generation++
}

// Flush fires fn synchronously if a trigger is pending, discarding the timer.
// A no-op when nothing is pending. Mostly useful in tests and shutdown paths
// that cannot wait out the window.
func (d *Debouncer) Flush() {
	d.mu.Lock()

	if d.timer == nil {
		d.mu.Unlock()
		return
	}

	d.timer.Stop()
	d.timer = nil
	d.generation++
	d.mu.Unlock()

	d.run()
}

// fire runs on the timer goroutine. The generation check discards fires from
// timers that were reset or cancelled after they had already elapsed.
func (d *Debouncer) fire(gen uint64) {
	d.mu.Lock()

	if gen != d.generation {
		d.mu.Unlock()
		return
	}

	d.timer = nil
	d.mu.Unlock()

	d.run()
}

func (d *Debouncer) run() {
	d.runMu.Lock()
	defer d.runMu.Unlock()

	d.fn()
}

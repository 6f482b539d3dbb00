package restart

import (
	"sync"
	"time"
)

// Debounce is a value-with-methods, not a hidden global timer: repeated
// Call()s within window collapse to one trailing invocation of fn after
// window elapses since the last call.
type Debounce struct {
	mu     sync.Mutex
	window time.Duration
	fn     func()
	timer  *time.Timer
}

// NewDebounce returns a Debounce that invokes fn after window has elapsed
// since the most recent Call.
func NewDebounce(window time.Duration, fn func()) *Debounce {
	return &Debounce{window: window, fn: fn}
}

// Call (re)schedules fn to run after window. If called again before it
// fires, the previous schedule is replaced.
func (d *Debounce) Call() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.window, d.fn)
}

// Clear cancels any pending scheduled invocation without running it.
func (d *Debounce) Clear() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}

// Flush cancels any pending timer and runs fn synchronously right now, for
// test seams and shutdown paths that need the trailing call to happen
// immediately.
func (d *Debounce) Flush() {
	d.mu.Lock()
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	fn := d.fn
	d.mu.Unlock()
	fn()
}

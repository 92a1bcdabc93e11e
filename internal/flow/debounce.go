package flow

import (
	"sync"
	"time"
)

// DefaultSearchDebounce is the delay applied to search input before a
// fetch is dispatched, so typing does not trigger one request per
// keystroke.
const DefaultSearchDebounce = 500 * time.Millisecond

// Debouncer coalesces bursts of triggers into a single dispatch after
// a quiet period. It is decoupled from any particular view: callers
// provide the dispatch function and the delay.
type Debouncer struct {
	mu    sync.Mutex
	delay time.Duration
	fn    func()
	timer *time.Timer
	seq   uint64
}

// NewDebouncer constructs a Debouncer that invokes fn once per quiet
// period of the given delay.
func NewDebouncer(delay time.Duration, fn func()) *Debouncer {
	return &Debouncer{delay: delay, fn: fn}
}

// Trigger (re)starts the quiet period. fn runs once the delay elapses
// with no further triggers.
func (d *Debouncer) Trigger() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil {
		d.timer.Stop()
	}
	d.seq++
	seq := d.seq
	d.timer = time.AfterFunc(d.delay, func() { d.fire(seq) })
}

// fire dispatches for the timer generation seq. Flush and Cancel bump
// the generation under the lock, so a timer callback that already
// fired when they stopped it arrives stale and does not dispatch.
func (d *Debouncer) fire(seq uint64) {
	d.mu.Lock()
	if seq != d.seq {
		d.mu.Unlock()
		return
	}
	d.timer = nil
	d.mu.Unlock()
	d.fn()
}

// Flush cancels any pending dispatch and runs fn immediately.
func (d *Debouncer) Flush() {
	d.mu.Lock()
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.seq++
	d.mu.Unlock()
	d.fn()
}

// Cancel drops any pending dispatch without running fn.
func (d *Debouncer) Cancel() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.seq++
}

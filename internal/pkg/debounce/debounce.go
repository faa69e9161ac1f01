// Package debounce coalesces a high-frequency stream of values into a
// single emission per quiet period. A map viewport being dragged produces a
// value every animation frame; only the final bounds of a burst should ever
// reach the query layer.
package debounce

import (
	"sync"
	"time"
)

// Debouncer delivers the most recent value passed to Trigger once no new
// value has arrived for the configured quiet period. Each Trigger cancels
// and reschedules the pending delivery, so intermediate values of a burst
// are never emitted.
type Debouncer[T any] struct {
	quiet time.Duration
	emit  func(T)

	mu      sync.Mutex
	timer   *time.Timer
	stopped bool
}

// New creates a debouncer that calls emit with the settled value. emit runs
// on a timer goroutine; it must not block for long.
func New[T any](quiet time.Duration, emit func(T)) *Debouncer[T] {
	return &Debouncer[T]{quiet: quiet, emit: emit}
}

// Trigger records a new value and restarts the quiet period. Calls after
// Stop are ignored.
func (d *Debouncer[T]) Trigger(v T) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return
	}
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.quiet, func() {
		d.mu.Lock()
		if d.stopped {
			d.mu.Unlock()
			return
		}
		d.timer = nil
		d.mu.Unlock()
		d.emit(v)
	})
}

// Stop cancels any pending emission. After Stop no value is ever delivered,
// even if the timer already fired and is waiting on the lock.
func (d *Debouncer[T]) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.stopped = true
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}

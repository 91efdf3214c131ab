/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package chain

import (
	"sync"
	"time"
)

// Debouncer runs only the most recent of a burst of calls, once delay has
// passed without another call arriving.
type Debouncer struct {
	mu    sync.Mutex
	delay time.Duration
	timer *time.Timer
	gen   uint64
}

func NewDebouncer(delay time.Duration) *Debouncer {
	return &Debouncer{delay: delay}
}

// Trigger cancels any pending call and schedules f.
func (d *Debouncer) Trigger(f func()) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.timer != nil {
		d.timer.Stop()
	}

	d.gen++
	gen := d.gen

	d.timer = time.AfterFunc(d.delay, func() {
		d.mu.Lock()
		current := gen == d.gen
		if current {
			d.timer = nil
		}
		d.mu.Unlock()

		// A timer that fired while Trigger or Cancel held the lock is stale.
		if current {
			f()
		}
	})
}

// Cancel drops the pending call, if any.
func (d *Debouncer) Cancel() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.gen++
}

// pending reports whether a call is scheduled.
func (d *Debouncer) pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.timer != nil
}

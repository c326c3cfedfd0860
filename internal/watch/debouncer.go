package watch

import (
	"log/slog"
	"sync"
	"time"
)

// Debouncer owns at most one scheduled callback. Scheduling while a
// callback is pending cancels it and starts a new quiet period, so a burst
// of events yields one callback carrying the last path seen.
type Debouncer struct {
	interval time.Duration
	mu       sync.Mutex
	timer    *time.Timer
	gen      uint64
	callback func(path string)
}

// NewDebouncer creates a debouncer that waits for interval of quiet before
// firing callback with the path of the last event.
func NewDebouncer(interval time.Duration, callback func(path string)) *Debouncer {
	return &Debouncer{
		interval: interval,
		callback: callback,
	}
}

// Schedule cancels any pending callback and schedules a new one for path.
func (d *Debouncer) Schedule(path string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.timer != nil {
		d.timer.Stop()
	}

	d.gen++
	gen := d.gen

	d.timer = time.AfterFunc(d.interval, func() {
		d.fire(gen, path)
	})
}

// fire runs the callback unless a later Schedule or Stop superseded gen.
// A timer whose Stop lost the race against expiry is discarded here.
func (d *Debouncer) fire(gen uint64, path string) {
	d.mu.Lock()
	if gen != d.gen || d.timer == nil {
		d.mu.Unlock()
		return
	}

	d.timer = nil
	d.mu.Unlock()

	defer func() {
		if r := recover(); r != nil {
			slog.Error("debouncer callback panicked", slog.Any("error", r))
		}
	}()

	d.callback(path)
}

// Pending reports whether a callback is scheduled.
func (d *Debouncer) Pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.timer != nil
}

// Stop cancels any pending debounced callback.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.gen++

	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}

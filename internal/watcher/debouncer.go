package watcher

import (
	"sync"
	"time"
)

// Debouncer collects changed transcript paths and emits them as one
// batch after a quiet period. Every new change resets the timer.
type Debouncer struct {
	delay time.Duration
	emit  func([]string)

	mu    sync.Mutex
	timer *time.Timer
	paths map[string]bool
}

// NewDebouncer creates a debouncer that calls emit with the batch of
// changed paths once changes settle.
func NewDebouncer(delay time.Duration, emit func([]string)) *Debouncer {
	return &Debouncer{
		delay: delay,
		emit:  emit,
		paths: make(map[string]bool),
	}
}

// Add records a changed path and resets the quiet-period timer.
func (d *Debouncer) Add(path string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.paths[path] = true

	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.delay, d.fire)
}

func (d *Debouncer) fire() {
	d.mu.Lock()
	paths := make([]string, 0, len(d.paths))
	for p := range d.paths {
		paths = append(paths, p)
	}
	d.paths = make(map[string]bool)
	d.timer = nil
	d.mu.Unlock()

	if len(paths) > 0 && d.emit != nil {
		d.emit(paths)
	}
}

// Flush immediately emits any pending batch.
func (d *Debouncer) Flush() {
	d.mu.Lock()
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.mu.Unlock()

	d.fire()
}

// Cancel drops any pending batch without emitting it.
func (d *Debouncer) Cancel() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.paths = make(map[string]bool)
}

// PendingCount returns the number of paths waiting in the batch.
func (d *Debouncer) PendingCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.paths)
}

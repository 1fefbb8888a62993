package console

import (
	"sync"
	"time"
)

// DefaultDebounce is the quiet window for search input
const DefaultDebounce = 300 * time.Millisecond

// Debouncer calls fn with the last pushed value once no new value has
// arrived for Delay
type Debouncer struct {
	delay time.Duration
	fn    func(string)

	mu      sync.Mutex
	timer   *time.Timer
	seq     uint64
	pending string
}

// NewDebouncer creates a debouncer; delay <= 0 uses DefaultDebounce
func NewDebouncer(delay time.Duration, fn func(string)) *Debouncer {
	if delay <= 0 {
		delay = DefaultDebounce
	}
	return &Debouncer{delay: delay, fn: fn}
}

// Push records a value and restarts the quiet window
func (d *Debouncer) Push(value string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.seq++
	seq := d.seq
	d.pending = value
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.delay, func() { d.fire(seq) })
}

// Flush fires the pending value now, if any
func (d *Debouncer) Flush() {
	d.mu.Lock()
	if d.timer == nil {
		d.mu.Unlock()
		return
	}
	d.timer.Stop()
	d.timer = nil
	d.seq++
	value := d.pending
	d.mu.Unlock()

	d.fn(value)
}

// Stop drops the pending value
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.seq++
}

func (d *Debouncer) fire(seq uint64) {
	d.mu.Lock()
	// a newer Push, Flush or Stop supersedes this timer
	if seq != d.seq {
		d.mu.Unlock()
		return
	}
	d.timer = nil
	value := d.pending
	d.mu.Unlock()

	d.fn(value)
}

package assembler

import (
	"sync"
	"time"
)

// Debouncer is a re-armable silence timer. Fires are delivered on C as the
// generation number that was armed; callers confirm with Take so a fire
// from a superseded timer is never acted on.
type Debouncer struct {
	delay time.Duration
	C     chan uint64

	mu    sync.Mutex
	timer *time.Timer
	gen   uint64
	armed bool
}

func NewDebouncer(delay time.Duration) *Debouncer {
	if delay <= 0 {
		delay = DefaultSilenceDelay
	}
	return &Debouncer{delay: delay, C: make(chan uint64, 1)}
}

func (d *Debouncer) Delay() time.Duration { return d.delay }

// Arm cancels any pending fire and starts the timer again.
func (d *Debouncer) Arm() uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopLocked()
	d.gen++
	gen := d.gen
	d.armed = true
	d.timer = time.AfterFunc(d.delay, func() {
		d.mu.Lock()
		defer d.mu.Unlock()
		if d.gen != gen || !d.armed {
			return
		}
		select {
		case d.C <- gen:
		default:
		}
	})
	return gen
}

// Stop cancels the pending fire, if any.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopLocked()
	d.gen++
}

// Take reports whether gen is the live fire and disarms the timer.
func (d *Debouncer) Take(gen uint64) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if gen != d.gen || !d.armed {
		return false
	}
	d.armed = false
	return true
}

// Armed reports whether a fire is pending.
func (d *Debouncer) Armed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.armed
}

func (d *Debouncer) stopLocked() {
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.armed = false
	select {
	case <-d.C:
	default:
	}
}

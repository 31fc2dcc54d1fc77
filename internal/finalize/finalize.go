// Package finalize implements the idle-countdown controller: a 10
// second grace period, clocked by one-second ticks, that releases the
// timer source and audio backend once every sound producer has gone
// quiet (spec.md §4.10).
package finalize

import "sync"

// GraceSeconds is the idle grace period before release.
const GraceSeconds = 10

// tickUs is the countdown's tick period (one second).
const tickUs = 1_000_000

// Source is the subset of timer.Source the finalizer needs.
type Source interface {
	RequestNextTick(delayUs int64, handler func()) error
}

// ReleaseFunc performs the actual teardown (timer source release, audio
// backend close) once the grace period elapses.
type ReleaseFunc func()

// Controller tracks the one outstanding countdown described in spec.md
// §4.10. Not safe for concurrent use by multiple goroutines beyond the
// guarantees its own mutex provides against the dispatcher thread.
type Controller struct {
	mu        sync.Mutex
	src       Source
	release   ReleaseFunc
	remaining int
	armed     bool
}

// New builds a finalizer driven by src, invoking release once the grace
// period elapses with no intervening Schedule/Cancel activity.
func New(src Source, release ReleaseFunc) *Controller {
	return &Controller{src: src, release: release}
}

// Schedule (re)arms the countdown at GraceSeconds, to be called whenever
// the tone queue, keyer, or straight key transition to idle (spec.md
// §4.5/§4.7/§4.8: "go IDLE ... schedule finalization").
func (c *Controller) Schedule() {
	c.mu.Lock()
	c.remaining = GraceSeconds
	already := c.armed
	c.armed = true
	c.mu.Unlock()

	if !already && c.src != nil {
		_ = c.src.RequestNextTick(tickUs, c.onTick)
	}
}

// Cancel aborts a pending countdown (spec.md §4.10: "Any enqueue/keyer/
// straight-key action cancels a pending finalization"). The already-
// armed 1-second tick, if any, simply finds armed == false and returns
// without rearming or releasing (ticks are not individually cancellable
// per spec.md §5, so Cancel clears state rather than unscheduling the
// timer).
func (c *Controller) Cancel() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.armed = false
}

// Armed reports whether a countdown is currently in progress.
func (c *Controller) Armed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.armed
}

// Remaining reports the number of one-second ticks left in the current
// countdown (undefined once Armed() is false).
func (c *Controller) Remaining() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.remaining
}

func (c *Controller) onTick() {
	c.mu.Lock()
	if !c.armed {
		c.mu.Unlock()
		return
	}
	c.remaining--
	if c.remaining > 0 {
		c.mu.Unlock()
		if c.src != nil {
			_ = c.src.RequestNextTick(tickUs, c.onTick)
		}
		return
	}
	c.armed = false
	release := c.release
	c.mu.Unlock()

	if release != nil {
		release()
	}
}

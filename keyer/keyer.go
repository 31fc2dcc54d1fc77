// Package keyer implements the nine-state iambic paddle keyer, Curtis A
// and B modes, driven by the shared timer dispatcher (spec.md §4.7).
package keyer

import (
	"sync"

	"github.com/n7dr/gocw/cwerr"
	"github.com/n7dr/gocw/internal/timing"
	"github.com/n7dr/gocw/internal/tonequeue"
)

// State is one of the nine iambic keyer states.
type State int

const (
	Idle State = iota
	InDotA
	InDotB
	InDashA
	InDashB
	AfterDotA
	AfterDotB
	AfterDashA
	AfterDashB
)

func (s State) String() string {
	switch s {
	case Idle:
		return "IDLE"
	case InDotA:
		return "IN_DOT_A"
	case InDotB:
		return "IN_DOT_B"
	case InDashA:
		return "IN_DASH_A"
	case InDashB:
		return "IN_DASH_B"
	case AfterDotA:
		return "AFTER_DOT_A"
	case AfterDotB:
		return "AFTER_DOT_B"
	case AfterDashA:
		return "AFTER_DASH_A"
	case AfterDashB:
		return "AFTER_DASH_B"
	default:
		return "UNKNOWN"
	}
}

// Source is the subset of timer.Source the keyer needs.
type Source interface {
	RequestNextTick(delayUs int64, handler func()) error
	Blocked() bool
}

// Keyer is the iambic keyer state machine. Like the tone queue, it is an
// independent producer of sound (spec.md §4.7): it drives the sound
// backend and keying callback directly rather than through the tone
// queue, and merely checks/advertises Busy so the tone queue and straight
// key can interlock with it. It is not safe for concurrent use by
// multiple goroutines except through its exported methods, which take an
// internal lock.
type Keyer struct {
	mu sync.Mutex

	state State

	dotPaddle  bool
	dashPaddle bool
	dotLatch   bool
	dashLatch  bool

	curtisB      bool // mode selector: Curtis B enabled for this instance
	curtisBLatch bool

	params *timing.Params
	sound  tonequeue.SoundFunc
	src    Source
	freq   func() int

	keying  func(down bool)
	onIdle  func()
	waiters []chan struct{} // signaled whenever state changes
}

// New builds an idle Keyer. curtisB selects Curtis B iambic mode (the
// opposite paddle plays unconditionally when both were squeezed);
// otherwise Curtis A is used. sound drives the active sound backend
// directly, the same function the tone queue's dispatcher uses.
func New(sound tonequeue.SoundFunc, src Source, params *timing.Params, curtisB bool, keying func(bool), onIdle func()) *Keyer {
	return &Keyer{
		sound:   sound,
		src:     src,
		params:  params,
		curtisB: curtisB,
		keying:  keying,
		onIdle:  onIdle,
		freq:    func() int { return params.Frequency() },
	}
}

// State returns the current keyer state.
func (k *Keyer) State() State {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.state
}

// Active reports whether the keyer currently owns the audio path
// (spec.md §4.8's Busy condition for the straight key references this).
func (k *Keyer) Active() bool {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.state != Idle
}

// NotifyPaddleEvent overwrites the paddle states and drives the state
// machine's IDLE-entry transition (spec.md §4.7). Returns Busy if the
// tone queue or straight key currently own the audio path.
func (k *Keyer) NotifyPaddleEvent(dot, dash bool, busy tonequeue.BusyChecker) error {
	if busy != nil && busy() {
		return cwerr.New("keyer.NotifyPaddleEvent", cwerr.Busy)
	}

	k.mu.Lock()

	dotWentDown := dot && !k.dotPaddle
	dashWentDown := dash && !k.dashPaddle
	wasSqueezed := k.dotPaddle && k.dashPaddle
	k.dotPaddle = dot
	k.dashPaddle = dash
	if dotWentDown {
		k.dotLatch = true
	}
	if dashWentDown {
		k.dashLatch = true
	}
	if wasSqueezed && !(dot && dash) && k.curtisB {
		// Curtis B: a squeeze just ended, so the keyer owes one more
		// opposite element before it is allowed back to IDLE.
		k.curtisBLatch = true
	}

	armImmediate := false
	if k.state == Idle {
		if dot {
			k.state = AfterDashA
			armImmediate = true
		} else if dash {
			k.state = AfterDotA
			armImmediate = true
		}
	}
	k.notifyWaitersLocked()
	k.mu.Unlock()

	if armImmediate && k.src != nil {
		return k.src.RequestNextTick(0, k.onTick)
	}
	return nil
}

func (k *Keyer) notifyWaitersLocked() {
	for _, ch := range k.waiters {
		close(ch)
	}
	k.waiters = nil
}

// onTick is the dispatcher handler driving the keyer forward one step
// (spec.md §4.7's "on tick" transitions).
func (k *Keyer) onTick() {
	k.mu.Lock()

	d := k.params.Synchronize()

	switch k.state {
	case InDotA, InDotB, InDashA, InDashB:
		k.silenceLocked()
		var next State
		switch k.state {
		case InDotA:
			next = AfterDotA
		case InDotB:
			next = AfterDotB
		case InDashA:
			next = AfterDashA
		case InDashB:
			next = AfterDashB
		}
		k.state = next
		k.notifyWaitersLocked()
		eoe := d.EndOfEle
		k.mu.Unlock()
		if k.src != nil {
			k.src.RequestNextTick(eoe, k.onTick)
		}
		return

	case AfterDotA, AfterDotB, AfterDashA, AfterDashB:
		k.afterElementTickLocked(d)
		return

	default:
		k.mu.Unlock()
		return
	}
}

func (k *Keyer) afterElementTickLocked(d timing.Derived) {
	wasDot := k.state == AfterDotA || k.state == AfterDotB
	isBVariant := k.state == AfterDotB || k.state == AfterDashB

	// Clear the latch of the paddle that is now up.
	if !k.dotPaddle {
		k.dotLatch = false
	}
	if !k.dashPaddle {
		k.dashLatch = false
	}

	playDot := false
	playDash := false
	nextIsB := false

	switch {
	case isBVariant:
		// Curtis B's one forced opposite element has already been queued
		// by entering this state; play it, then fall back to ordinary
		// latch evaluation next time so a released squeeze still reaches
		// IDLE instead of alternating forever.
		playDot = !wasDot
		playDash = wasDot
	case (wasDot && k.dashLatch) || (!wasDot && k.dotLatch):
		// Opposite latch set: play opposite element.
		playDot = !wasDot
		playDash = wasDot
		if k.curtisBLatch {
			k.curtisBLatch = false
			nextIsB = true
		}
	case (wasDot && k.dotLatch) || (!wasDot && k.dashLatch):
		// Same-side latch set: repeat same element.
		playDot = wasDot
		playDash = !wasDot
	case k.curtisBLatch:
		// A squeeze just ended and neither paddle latch survived it, but
		// Curtis B still owes one opposite element before IDLE.
		k.curtisBLatch = false
		playDot = !wasDot
		playDash = wasDot
	default:
		k.state = Idle
		k.notifyWaitersLocked()
		onIdle := k.onIdle
		k.mu.Unlock()
		if onIdle != nil {
			onIdle()
		}
		return
	}

	var elementUs int64
	if playDot {
		if nextIsB {
			k.state = InDotB
		} else {
			k.state = InDotA
		}
		elementUs = d.Dot
	} else if playDash {
		if nextIsB {
			k.state = InDashB
		} else {
			k.state = InDashA
		}
		elementUs = d.Dash
	}
	k.notifyWaitersLocked()
	freq := k.freq()
	sound := k.sound
	keying := k.keying
	k.mu.Unlock()

	if sound != nil {
		sound(freq)
	}
	if keying != nil {
		keying(true)
	}
	if k.src != nil {
		k.src.RequestNextTick(elementUs, k.onTick)
	}
}

func (k *Keyer) silenceLocked() {
	if k.sound != nil {
		k.sound(tonequeue.Silent)
	}
	if k.keying != nil {
		k.keying(false)
	}
}

// addWaiter registers a channel closed on the next state change; caller
// must hold k.mu.
func (k *Keyer) addWaiter() chan struct{} {
	ch := make(chan struct{})
	k.waiters = append(k.waiters, ch)
	return ch
}

// WaitForElement blocks until the keyer leaves its current non-AFTER
// state and re-enters an IN_* state or IDLE.
func (k *Keyer) WaitForElement() error {
	for {
		k.mu.Lock()
		if k.src != nil && k.src.Blocked() {
			k.mu.Unlock()
			return cwerr.New("keyer.WaitForElement", cwerr.Deadlock)
		}
		s := k.state
		if s == Idle || s == InDotA || s == InDotB || s == InDashA || s == InDashB {
			k.mu.Unlock()
			return nil
		}
		ch := k.addWaiter()
		k.mu.Unlock()
		<-ch
	}
}

// WaitForKeyer blocks until the keyer returns to IDLE. Returns Deadlock
// if either paddle is currently held down, since the loop would never
// terminate (spec.md §4.7).
func (k *Keyer) WaitForKeyer() error {
	for {
		k.mu.Lock()
		if k.dotPaddle || k.dashPaddle {
			k.mu.Unlock()
			return cwerr.New("keyer.WaitForKeyer", cwerr.Deadlock)
		}
		if k.src != nil && k.src.Blocked() {
			k.mu.Unlock()
			return cwerr.New("keyer.WaitForKeyer", cwerr.Deadlock)
		}
		if k.state == Idle {
			k.mu.Unlock()
			return nil
		}
		ch := k.addWaiter()
		k.mu.Unlock()
		<-ch
	}
}

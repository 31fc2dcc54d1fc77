// Package gocw is the public façade: an explicit, independently
// constructible library instance wiring the character table, timing
// parameters, timer dispatcher, sound generator, tone queue, sender,
// iambic keyer, straight key, receiver, and idle-finalization controller
// (spec.md §9: "re-architect as an explicit instance value created by a
// constructor and passed to every operation, so multiple independent
// engines can coexist").
package gocw

import (
	"sync"
	"time"

	"github.com/n7dr/gocw/cwerr"
	"github.com/n7dr/gocw/internal/finalize"
	"github.com/n7dr/gocw/internal/receiver"
	"github.com/n7dr/gocw/internal/sound"
	"github.com/n7dr/gocw/internal/timer"
	"github.com/n7dr/gocw/internal/timing"
	"github.com/n7dr/gocw/internal/tonequeue"
	"github.com/n7dr/gocw/keyer"
	"github.com/n7dr/gocw/sender"
	"github.com/n7dr/gocw/straightkey"
)

// Backend selects which sound producer an Instance drives.
type Backend int

const (
	// BackendPCM drives a malgo playback device through a shaped sine
	// generator (spec.md §4.4, the "nominal" backend).
	BackendPCM Backend = iota
	// BackendConsole drives the Linux console beeper (spec.md §4.4), or
	// reports Unsupported on platforms without the ioctl.
	BackendConsole
)

// owner tracks which producer currently drives the audio path (spec.md
// §9: "a shared owner token held by whichever subsystem currently drives
// the audio path").
type owner int

const (
	ownerNone owner = iota
	ownerToneQueue
	ownerKeyer
	ownerStraightKey
)

// Options configures a new Instance. The zero value is a usable default:
// BackendPCM, a real-time timer, Curtis A iambic mode.
type Options struct {
	Backend       Backend
	ConsoleDevice string // only consulted when Backend == BackendConsole
	CurtisB       bool
	Keying        func(down bool) // optional external keying-line callback

	// TimerSource overrides the dispatcher; nil selects timer.NewHost().
	// Tests inject a timer.Virtual here for deterministic control.
	TimerSource timer.Source
	// Clock overrides the receiver's wall-clock source; nil selects a
	// real-time clock. Tests inject an explicit-timestamp-only nil Clock
	// or a fake.
	Clock receiver.Clock
	// SoundBackend overrides backend construction entirely (tests inject
	// a fake Backend instead of opening real audio hardware).
	SoundBackend sound.Backend
}

// Instance is one independently constructible gocw engine.
type Instance struct {
	mu           sync.Mutex
	currentOwner owner

	params *timing.Params
	src    timer.Source

	backend   sound.Backend
	generator *sound.Generator

	queue       *tonequeue.Queue
	sender      *sender.Sender
	keyer       *keyer.Keyer
	straightKey *straightkey.Key
	receiver    *receiver.Receiver
	finalizer   *finalize.Controller

	debug bool

	opened  bool
	started bool
}

// New constructs an Instance with the given options but does not yet
// open the audio backend (spec.md §3: "A library instance is created,
// then audio backend is opened... then the generator thread... is
// started").
func New(opts Options) *Instance {
	src := opts.TimerSource
	if src == nil {
		src = timer.NewHost()
	}

	inst := &Instance{
		params: timing.New(),
		src:    src,
		debug:  DebugFromEnv(),
	}

	var backend sound.Backend
	var gen *sound.Generator
	switch {
	case opts.SoundBackend != nil:
		backend = opts.SoundBackend
		gen = sound.New(backend)
	case opts.Backend == BackendConsole:
		console := sound.NewConsole(opts.ConsoleDevice)
		backend = console
		gen = sound.New(console)
	default:
		pcm := sound.NewPCM()
		gen = sound.New(nil)
		pcm.SetGenerator(gen)
		backend = pcm
	}
	inst.backend = backend
	inst.generator = gen

	keying := opts.Keying
	wrappedKeying := func(down bool) {
		if keying != nil {
			keying(down)
		}
	}

	clock := opts.Clock
	if clock == nil {
		clock = realClock{}
	}

	inst.queue = tonequeue.New(inst.src, gen.SetTone, wrappedKeying, inst.releaseOwnerFunc(ownerToneQueue))
	inst.sender = sender.New(inst.queue, inst.params, inst.busyCheckerFunc(ownerToneQueue))
	inst.keyer = keyer.New(gen.SetTone, inst.src, inst.params, opts.CurtisB, wrappedKeying, inst.releaseOwnerFunc(ownerKeyer))
	inst.straightKey = straightkey.New(gen.SetTone, inst.src, inst.params, wrappedKeying, inst.releaseOwnerFunc(ownerStraightKey), nil)
	inst.receiver = receiver.New(inst.params, clock)
	inst.finalizer = finalize.New(inst.src, inst.release)

	return inst
}

// busyCheckerFunc returns a tonequeue.BusyChecker that, when another
// owner currently holds the audio path, reports Busy without side
// effects; otherwise it claims the path for caller and cancels any
// pending finalization (spec.md §4.10: "Any enqueue/keyer/straight-key
// action cancels a pending finalization").
func (inst *Instance) busyCheckerFunc(caller owner) tonequeue.BusyChecker {
	return func() bool {
		inst.mu.Lock()
		defer inst.mu.Unlock()
		if inst.currentOwner != ownerNone && inst.currentOwner != caller {
			return true
		}
		if !inst.opened {
			// Finalization closed the backend during a prior idle period;
			// any new activity reopens it (spec.md §8 scenario 6).
			if err := inst.backend.Open(); err != nil {
				return true
			}
			inst.opened = true
			inst.started = true
		}
		inst.currentOwner = caller
		inst.finalizer.Cancel()
		return false
	}
}

// releaseOwnerFunc returns the onIdle hook a producer calls once it
// returns to its own idle state: it releases the owner token (if still
// held by caller) and schedules finalization (spec.md: "go IDLE...
// schedule finalization").
func (inst *Instance) releaseOwnerFunc(caller owner) func() {
	return func() {
		inst.mu.Lock()
		if inst.currentOwner == caller {
			inst.currentOwner = ownerNone
		}
		inst.mu.Unlock()
		inst.finalizer.Schedule()
	}
}

// Start opens the audio backend; for BackendPCM this also starts the
// malgo-driven playback callback (the "generator thread" of spec.md §3 --
// malgo's own audio thread plays that role, the same way the teacher's
// capture device is driven by malgo's callback thread rather than a
// goroutine the package itself spawns).
func (inst *Instance) Start() error {
	inst.mu.Lock()
	defer inst.mu.Unlock()
	if inst.opened {
		return nil
	}
	if err := inst.backend.Open(); err != nil {
		return cwerr.Wrap("gocw.Start", cwerr.Io, err)
	}
	inst.opened = true
	inst.started = true
	return nil
}

// release performs the finalization drain: silence the tone, close the
// backend, release the timer source (spec.md §4.10/§3's destruction
// sequence, minus freeing the in-memory buffers which Go's GC handles).
func (inst *Instance) release() {
	inst.mu.Lock()
	defer inst.mu.Unlock()
	if !inst.opened {
		return
	}
	inst.generator.SetTone(sound.Silent)
	_ = inst.backend.Close()
	inst.opened = false
	inst.started = false
}

// Stop performs the same orderly drain as an idle-timeout finalization,
// on demand (spec.md §3: "Destruction performs an orderly drain").
func (inst *Instance) Stop() {
	inst.finalizer.Cancel()
	inst.release()
}

// Delete is Stop followed by releasing the timer source's handler table,
// matching spec.md §3's full destruction sequence.
func (inst *Instance) Delete() {
	inst.Stop()
	inst.src.Release()
}

// Sender returns the instance's character/representation sender; its
// owner-token check was wired in at construction (busyCheckerFunc),
// so calls through it already enforce mutual exclusion with the keyer
// and straight key.
func (inst *Instance) Sender() *sender.Sender { return inst.sender }

// NotifyPaddleEvent drives the iambic keyer, enforcing the owner-token
// mutual exclusion against the tone queue and straight key (spec.md
// §4.7). Prefer this over reaching into Keyer() directly for paddle
// input.
func (inst *Instance) NotifyPaddleEvent(dot, dash bool) error {
	return inst.keyer.NotifyPaddleEvent(dot, dash, inst.busyCheckerFunc(ownerKeyer))
}

// NotifyKeyEvent drives the straight key, enforcing the owner-token
// mutual exclusion against the tone queue and keyer (spec.md §4.8).
// Prefer this over reaching into StraightKey() directly for key input.
func (inst *Instance) NotifyKeyEvent(down bool) error {
	return inst.straightKey.NotifyEvent(down, inst.busyCheckerFunc(ownerStraightKey))
}

// Keyer returns the instance's iambic keyer for state inspection
// (State, Active, WaitForElement, WaitForKeyer); drive it via
// NotifyPaddleEvent rather than calling it directly.
func (inst *Instance) Keyer() *keyer.Keyer { return inst.keyer }

// StraightKey returns the instance's straight key for state inspection
// (Down); drive it via NotifyKeyEvent rather than calling it directly.
func (inst *Instance) StraightKey() *straightkey.Key { return inst.straightKey }

// Receiver returns the instance's mark/space classifier.
func (inst *Instance) Receiver() *receiver.Receiver { return inst.receiver }

// QueueLength, QueueCapacity, QueueIsBusy, FlushQueue, and
// RegisterLowWater expose the tone queue's own API surface (spec.md
// §4.5) directly; these are read-only or flush/callback operations, so
// they need no owner-token gating.
func (inst *Instance) QueueLength() int   { return inst.queue.Length() }
func (inst *Instance) QueueCapacity() int { return inst.queue.Capacity() }
func (inst *Instance) QueueIsBusy() bool  { return inst.queue.IsBusy() }
func (inst *Instance) FlushQueue() error  { return inst.queue.Flush() }
func (inst *Instance) RegisterLowWater(level int, callback func()) error {
	return inst.queue.RegisterLowWater(level, callback)
}

// Params returns the instance's timing parameter block.
func (inst *Instance) Params() *timing.Params { return inst.params }

// Debug reports this instance's debug flag.
func (inst *Instance) Debug() bool {
	inst.mu.Lock()
	defer inst.mu.Unlock()
	return inst.debug
}

// SetDebug toggles this instance's debug flag without affecting
// DebugFromEnv's process-wide memoized default or any other Instance.
func (inst *Instance) SetDebug(on bool) {
	inst.mu.Lock()
	inst.debug = on
	inst.mu.Unlock()
}

// realClock supplies receiver.Receiver with wall-clock timestamps when a
// caller omits an explicit one.
type realClock struct{}

func (realClock) Now() receiver.Timestamp {
	now := time.Now()
	return receiver.Timestamp{Sec: now.Unix(), Usec: int32(now.Nanosecond() / 1000)}
}

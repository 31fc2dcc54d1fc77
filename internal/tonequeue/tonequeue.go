// Package tonequeue implements the bounded ring buffer of (duration,
// frequency) tones that the timer-driven dispatcher plays out one at a
// time (spec.md §4.5). It has one consumer (the dispatcher, via Dequeue)
// and possibly many producers (sender, keyer, straight key via Enqueue).
package tonequeue

import (
	"sync"
	"sync/atomic"

	"github.com/n7dr/gocw/cwerr"
	"github.com/n7dr/gocw/internal/timer"
)

// Slots is the ring buffer size; one slot is always kept empty as a
// sentinel so head==tail is unambiguous.
const Slots = 3000

// Silent is the frequency value meaning "no tone, just silence."
const Silent = 0

// dequeueState mirrors the spec's {IDLE, BUSY} dequeue state.
type dequeueState int32

const (
	stateIdle dequeueState = iota
	stateBusy
)

type tone struct {
	durationUs int64
	freqHz     int
}

// KeyingFunc is called on every change of effective keying state
// (spec.md §6 "Keying callback"). isDown is true while a tone with a
// nonzero frequency is sounding.
type KeyingFunc func(isDown bool)

// SoundFunc drives the active sound backend: freqHz == Silent means
// silence, anything else starts a tone at that frequency.
type SoundFunc func(freqHz int)

// Queue is the bounded tone ring buffer plus its dequeue state machine.
type Queue struct {
	mu   sync.Mutex
	buf  [Slots]tone
	head int // consumer index
	tail int // producer index

	state atomic.Int32 // dequeueState

	lowWater     int
	lowWaterFn   func()
	lastLength   int

	keyingFn KeyingFunc
	soundFn  SoundFunc
	onIdle   func() // invoked when the dequeue handler transitions to IDLE (schedules finalization)

	lastKeyDown bool
	haveLastKey bool

	src timer.Source
}

// New constructs an empty Queue. soundFn and keyingFn may be nil until the
// owning instance wires them up.
func New(src timer.Source, soundFn SoundFunc, keyingFn KeyingFunc, onIdle func()) *Queue {
	q := &Queue{src: src, soundFn: soundFn, keyingFn: keyingFn, onIdle: onIdle}
	q.state.Store(int32(stateIdle))
	return q
}

// Capacity is the number of usable slots: one less than Slots, since one
// slot is reserved as the empty/full sentinel.
func (q *Queue) Capacity() int {
	return Slots - 1
}

// Length returns the number of queued tones. Safe to call concurrently
// with Dequeue: tail only advances under producer lock, head only
// advances from the dispatcher, and producers block the timer source
// around their own tail advance.
func (q *Queue) Length() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.lengthLocked()
}

func (q *Queue) lengthLocked() int {
	if q.tail >= q.head {
		return q.tail - q.head
	}
	return Slots - q.head + q.tail
}

// IsFull reports whether Enqueue would fail with Again right now.
func (q *Queue) IsFull() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.lengthLocked() >= q.Capacity()
}

// IsBusy reflects the dequeue state machine, not emptiness (spec.md §4.5:
// "is_busy() reflects the dequeue state, not emptiness").
func (q *Queue) IsBusy() bool {
	return dequeueState(q.state.Load()) == stateBusy
}

// RegisterLowWater installs callback, fired once per crossing from above
// level down to at-or-below level. level must be in [0, capacity-1).
func (q *Queue) RegisterLowWater(level int, callback func()) error {
	if level < 0 || level >= q.Capacity() {
		return cwerr.New("tonequeue.RegisterLowWater", cwerr.InvalidArgument)
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	q.lowWater = level
	q.lowWaterFn = callback
	return nil
}

// otherActive lets the owning instance veto Enqueue while the keyer or
// straight key is driving the audio path (spec.md §4.5 Busy condition);
// it is injected rather than imported to avoid a dependency cycle.
type BusyChecker func() bool

// Enqueue appends one tone. busy, if non-nil, is consulted first and
// causes a Busy error when it returns true (the keyer or straight key is
// active). Returns Again if the queue is full.
func (q *Queue) Enqueue(durationUs int64, freqHz int, busy BusyChecker) error {
	if busy != nil && busy() {
		return cwerr.New("tonequeue.Enqueue", cwerr.Busy)
	}

	if q.src != nil {
		q.src.BlockCallback(true)
		defer q.src.BlockCallback(false)
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if q.lengthLocked() >= q.Capacity() {
		return cwerr.New("tonequeue.Enqueue", cwerr.Again)
	}

	q.buf[q.tail] = tone{durationUs: durationUs, freqHz: freqHz}
	q.tail = (q.tail + 1) % Slots

	q.state.Store(int32(stateBusy))

	if q.src != nil {
		q.src.RequestNextTick(0, q.Dequeue)
	}
	return nil
}

// Flush synchronously drains the queue by repeatedly calling Dequeue,
// provided the timer source is not blocked (spec.md §4.5: "drains
// synchronously if the timer source is not blocked").
func (q *Queue) Flush() error {
	if q.src != nil && q.src.Blocked() {
		return cwerr.New("tonequeue.Flush", cwerr.Busy)
	}
	for {
		q.mu.Lock()
		empty := q.head == q.tail
		q.mu.Unlock()
		if empty && dequeueState(q.state.Load()) == stateIdle {
			return nil
		}
		q.Dequeue()
	}
}

// Dequeue is the tick-handler half of the dequeue state machine
// (spec.md §4.5 "Dequeue semantics"). It is registered with the timer
// source and re-arms itself as needed.
func (q *Queue) Dequeue() {
	if dequeueState(q.state.Load()) == stateIdle {
		return
	}

	q.mu.Lock()
	empty := q.head == q.tail
	if empty {
		q.mu.Unlock()
		q.goIdle()
		return
	}

	// Skip contiguous zero-duration sentinel entries.
	for q.head != q.tail && q.buf[q.head].durationUs <= 0 && q.buf[q.head].freqHz == Silent {
		q.head = (q.head + 1) % Slots
	}
	if q.head == q.tail {
		q.mu.Unlock()
		q.goIdle()
		return
	}

	t := q.buf[q.head]
	q.head = (q.head + 1) % Slots
	prevLen := q.lastLength
	newLen := q.lengthLocked()
	q.lastLength = newLen
	lowWater := q.lowWater
	lowWaterFn := q.lowWaterFn
	q.mu.Unlock()

	q.playTone(t.freqHz)

	if prevLen > lowWater && newLen <= lowWater && lowWaterFn != nil {
		lowWaterFn()
	}

	if t.durationUs > 0 {
		if q.src != nil {
			q.src.RequestNextTick(t.durationUs, q.Dequeue)
		}
	} else {
		q.goIdle()
	}
}

func (q *Queue) goIdle() {
	q.playTone(Silent)
	q.state.Store(int32(stateIdle))
	if q.onIdle != nil {
		q.onIdle()
	}
}

func (q *Queue) playTone(freqHz int) {
	if q.soundFn != nil {
		q.soundFn(freqHz)
	}
	down := freqHz != Silent
	if !q.haveLastKey || q.lastKeyDown != down {
		q.haveLastKey = true
		q.lastKeyDown = down
		if q.keyingFn != nil {
			q.keyingFn(down)
		}
	}
}

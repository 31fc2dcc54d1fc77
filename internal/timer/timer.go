// Package timer abstracts the single monotonic dispatcher every other
// subsystem schedules against (spec.md §4.3, §9's "Signal-handler-driven
// dispatch" redesign flag). The original cwlib drives everything off a
// POSIX interval-timer signal; that is replaced here by a Source interface
// with a host implementation (a real clock) and a virtual one (a
// hand-advanced clock for deterministic tests), mirroring the way the
// teacher injects collaborators like dsp.Detector rather than reaching for
// process globals.
package timer

import (
	"sync"
	"time"

	"github.com/n7dr/gocw/cwerr"
)

// MaxHandlers is the largest number of distinct handlers a Source will
// track at once (spec.md §4.3 "up to 32 handlers").
const MaxHandlers = 32

// Handler is run on every tick once registered. Implementations must
// return promptly; the spec explicitly forbids blocking beyond a
// non-blocking audio backend call inside a dispatcher handler.
type Handler func()

// Source is the timer capability every other gocw subsystem depends on.
type Source interface {
	// RequestNextTick arms a one-shot tick in delayUs microseconds
	// (delayUs <= 0 fires immediately) and ensures handler is registered
	// for future ticks, deduplicated by identity. Returns OutOfMemory if
	// the handler table is full.
	RequestNextTick(delayUs int64, handler Handler) error

	// BlockCallback(true) suspends tick delivery to form a critical
	// section; BlockCallback(false) resumes it. Calls nest: an equal
	// number of false calls is required to resume delivery.
	BlockCallback(block bool)

	// Blocked reports whether tick delivery is currently suspended.
	Blocked() bool

	// Release cancels any pending tick and forgets all handlers.
	Release()
}

// handlerSlot tracks one registered handler by its reflect-free identity
// (Go funcs are not comparable, so handlers are keyed by registration
// order and a nil marks a free slot).
type handlerSlot struct {
	fn     Handler
	key    uintptr // identity token supplied by the caller via register key
	inUse  bool
}

// Host is the real-time timer source, backed by time.AfterFunc.
type Host struct {
	mu       sync.Mutex
	handlers [MaxHandlers]handlerSlot
	nextKey  uintptr
	keyOf    map[*handlerRef]uintptr

	blockDepth int
	timerObj   *time.Timer
	pending    bool
}

// handlerRef is the identity token returned to callers that want to
// dedupe their own handler across repeated RequestNextTick calls; a fresh
// *handlerRef per logical caller behaves like the spec's "deduplicated by
// identity."
type handlerRef struct{}

// NewHost constructs a ready-to-use real-time timer source.
func NewHost() *Host {
	return &Host{keyOf: make(map[*handlerRef]uintptr)}
}

// HandlerToken lets a caller obtain a stable identity to pass (indirectly,
// by always using the same *handlerRef) across repeated registrations so
// the same logical handler is not registered twice.
type HandlerToken = *handlerRef

// NewHandlerToken allocates a fresh identity token for RegisterWithToken.
func NewHandlerToken() HandlerToken { return &handlerRef{} }

func (h *Host) RequestNextTick(delayUs int64, handler Handler) error {
	return h.requestNextTick(delayUs, handler, nil)
}

// RequestNextTickFor is RequestNextTick but deduplicates against a stable
// token rather than against the Handler value (funcs are never
// comparable in Go, so a caller that needs "don't register me twice"
// semantics passes the same token every time).
func (h *Host) RequestNextTickFor(delayUs int64, handler Handler, token HandlerToken) error {
	return h.requestNextTick(delayUs, handler, token)
}

func (h *Host) requestNextTick(delayUs int64, handler Handler, token HandlerToken) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if token != nil {
		if key, ok := h.keyOf[token]; ok {
			h.handlers[h.slotForKey(key)].fn = handler
		} else {
			slot, err := h.firstFreeSlotLocked()
			if err != nil {
				return err
			}
			h.nextKey++
			key := h.nextKey
			h.keyOf[token] = key
			h.handlers[slot] = handlerSlot{fn: handler, key: key, inUse: true}
		}
	} else {
		slot, err := h.firstFreeSlotLocked()
		if err != nil {
			return err
		}
		h.nextKey++
		h.handlers[slot] = handlerSlot{fn: handler, key: h.nextKey, inUse: true}
	}

	h.armLocked(delayUs)
	return nil
}

func (h *Host) slotForKey(key uintptr) int {
	for i := range h.handlers {
		if h.handlers[i].inUse && h.handlers[i].key == key {
			return i
		}
	}
	return -1
}

func (h *Host) firstFreeSlotLocked() (int, error) {
	for i := range h.handlers {
		if !h.handlers[i].inUse {
			return i, nil
		}
	}
	return 0, cwerr.New("timer.RequestNextTick", cwerr.OutOfMemory)
}

func (h *Host) armLocked(delayUs int64) {
	h.pending = true
	if h.timerObj != nil {
		h.timerObj.Stop()
	}
	delay := time.Duration(delayUs) * time.Microsecond
	if delayUs <= 0 {
		delay = 0
	}
	h.timerObj = time.AfterFunc(delay, h.fire)
}

func (h *Host) fire() {
	h.mu.Lock()
	if h.blockDepth > 0 {
		// Delivery is suspended; try again shortly rather than dropping
		// the tick. This keeps BlockCallback a true critical section
		// without losing ticks armed underneath it.
		h.timerObj = time.AfterFunc(time.Millisecond, h.fire)
		h.mu.Unlock()
		return
	}
	h.pending = false
	var toRun []Handler
	for i := range h.handlers {
		if h.handlers[i].inUse {
			toRun = append(toRun, h.handlers[i].fn)
		}
	}
	h.mu.Unlock()

	for _, fn := range toRun {
		fn()
	}
}

func (h *Host) BlockCallback(block bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if block {
		h.blockDepth++
	} else if h.blockDepth > 0 {
		h.blockDepth--
	}
}

func (h *Host) Blocked() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.blockDepth > 0
}

func (h *Host) Release() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.timerObj != nil {
		h.timerObj.Stop()
		h.timerObj = nil
	}
	h.pending = false
	h.blockDepth = 0
	for i := range h.handlers {
		h.handlers[i] = handlerSlot{}
	}
	h.keyOf = make(map[*handlerRef]uintptr)
}

// Virtual is a manually-advanced deterministic clock for tests: ticks
// fire only when the test calls Advance, never on a wall-clock goroutine.
type Virtual struct {
	mu         sync.Mutex
	handlers   [MaxHandlers]handlerSlot
	nextKey    uintptr
	blockDepth int
	pendingAt  int64 // microseconds since Virtual creation; -1 if none armed
	now        int64
}

// NewVirtual returns a Virtual clock with no pending tick.
func NewVirtual() *Virtual {
	return &Virtual{pendingAt: -1}
}

func (v *Virtual) RequestNextTick(delayUs int64, handler Handler) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	slot := -1
	for i := range v.handlers {
		if !v.handlers[i].inUse {
			slot = i
			break
		}
	}
	if slot == -1 {
		return cwerr.New("timer.RequestNextTick", cwerr.OutOfMemory)
	}
	v.nextKey++
	v.handlers[slot] = handlerSlot{fn: handler, key: v.nextKey, inUse: true}
	if delayUs < 0 {
		delayUs = 0
	}
	v.pendingAt = v.now + delayUs
	return nil
}

func (v *Virtual) BlockCallback(block bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if block {
		v.blockDepth++
	} else if v.blockDepth > 0 {
		v.blockDepth--
	}
}

func (v *Virtual) Blocked() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.blockDepth > 0
}

func (v *Virtual) Release() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.pendingAt = -1
	v.blockDepth = 0
	for i := range v.handlers {
		v.handlers[i] = handlerSlot{}
	}
}

// Advance moves the virtual clock forward by deltaUs microseconds,
// firing the pending tick (if any falls within the new window) exactly
// once, the same way a single AfterFunc fire runs every handler once.
func (v *Virtual) Advance(deltaUs int64) {
	v.mu.Lock()
	v.now += deltaUs
	fire := v.pendingAt >= 0 && v.now >= v.pendingAt && v.blockDepth == 0
	var toRun []Handler
	if fire {
		v.pendingAt = -1
		for i := range v.handlers {
			if v.handlers[i].inUse {
				toRun = append(toRun, v.handlers[i].fn)
			}
		}
	}
	v.mu.Unlock()

	for _, fn := range toRun {
		fn()
	}
}

// Now returns the virtual clock's current microsecond timestamp.
func (v *Virtual) Now() int64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.now
}

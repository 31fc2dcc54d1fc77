// Package straightkey implements the straight key: a trivial key-down/up
// shim with a 500ms keep-alive tick while the key is held down
// (spec.md §4.8).
package straightkey

import (
	"sync"

	"github.com/n7dr/gocw/cwerr"
	"github.com/n7dr/gocw/internal/timing"
	"github.com/n7dr/gocw/internal/tonequeue"
)

// keepAliveUs is the keep-alive tick period while the key is held down.
const keepAliveUs = 500_000

// Source is the subset of timer.Source the straight key needs.
type Source interface {
	RequestNextTick(delayUs int64, handler func()) error
}

// Key is the straight-key state machine: {key_down} only.
type Key struct {
	mu      sync.Mutex
	down    bool
	params  *timing.Params
	sound   tonequeue.SoundFunc
	src     Source
	keying  func(down bool)
	onIdle  func()
	pokeSampler func()
}

// New builds a straight key in the "up" state.
func New(sound tonequeue.SoundFunc, src Source, params *timing.Params, keying func(bool), onIdle func(), pokeSampler func()) *Key {
	return &Key{sound: sound, src: src, params: params, keying: keying, onIdle: onIdle, pokeSampler: pokeSampler}
}

// Down reports whether the key is currently held down.
func (k *Key) Down() bool {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.down
}

// NotifyEvent transitions the key down or up. Rejects with Busy if the
// tone queue or keyer currently own the audio path (spec.md §4.8).
func (k *Key) NotifyEvent(down bool, busy tonequeue.BusyChecker) error {
	if busy != nil && busy() {
		return cwerr.New("straightkey.NotifyEvent", cwerr.Busy)
	}

	k.mu.Lock()
	k.down = down
	freq := k.params.Frequency()
	sound := k.sound
	keying := k.keying
	k.mu.Unlock()

	if down {
		if sound != nil {
			sound(freq)
		}
		if keying != nil {
			keying(true)
		}
		if k.src != nil {
			k.src.RequestNextTick(keepAliveUs, k.onTick)
		}
		return nil
	}

	if sound != nil {
		sound(tonequeue.Silent)
	}
	if keying != nil {
		keying(false)
	}
	if k.onIdle != nil {
		k.onIdle()
	}
	return nil
}

// onTick is the 500ms keep-alive handler: it pokes the sample producer
// (so a PCM backend's envelope keeps running) and re-arms itself while
// the key remains down.
func (k *Key) onTick() {
	k.mu.Lock()
	down := k.down
	k.mu.Unlock()
	if !down {
		return
	}
	if k.pokeSampler != nil {
		k.pokeSampler()
	}
	if k.src != nil {
		k.src.RequestNextTick(keepAliveUs, k.onTick)
	}
}

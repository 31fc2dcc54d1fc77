// Package sound implements the sidetone generator: a backend-agnostic
// envelope-shaped sine producer (PCM) and a two-level square-wave
// console beeper, exactly one of which is active per instance
// (spec.md §4.4).
package sound

import "github.com/n7dr/gocw/cwerr"

// Backend is a sidetone output device. Exactly one Backend is active at
// a time, selected when the generator is constructed.
type Backend interface {
	// Open acquires backend resources (device handle, file descriptor).
	Open() error
	// Close releases backend resources.
	Close() error
	// SetTone requests freqHz be heard; Silent (0) requests quiet.
	SetTone(freqHz int) error
}

// Silent requests silence from a Backend, mirroring tonequeue.Silent.
const Silent = 0

// ErrUnsupported is returned by a backend that has no implementation on
// the running platform (spec.md §9: "implement where the ioctl exists,
// Unsupported elsewhere").
var ErrUnsupported = cwerr.New("sound", cwerr.Unsupported)

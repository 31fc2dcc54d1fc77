package sound

import (
	"math"
	"sync"
)

// SampleRateHz is the nominal PCM sample rate (spec.md §4.4).
const SampleRateHz = 44100

// FragmentSamples is the fragment size negotiated for fine-grained
// scheduling (spec.md §4.4: "approximately 128 samples").
const FragmentSamples = 128

// envelopeSlope is the per-sample amplitude step driving the attack/decay
// ramp. Chosen to yield roughly a 2ms linear ramp at 44100 Hz into the
// full 16-bit range (32767 / (0.002*44100) =~ 372); spec.md §9 leaves the
// exact constant an open tunable, so it is named rather than inlined.
const envelopeSlope = 372

// maxAmplitude is the full-scale 16-bit signed amplitude ceiling.
const maxAmplitude = 32767

// Generator holds the sound generator state of spec.md §3:
// {frequency, volume, phase, phase_offset, sample_rate, slope, amplitude,
// generate_flag, backend_handle}. It produces int16 PCM fragments and
// also serves as the frequency-only SetTone/SetVolume frontend for the
// console backend.
type Generator struct {
	mu sync.Mutex

	backend Backend

	frequencyHz int
	volumePct   int

	phase     float64
	amplitude float64
	slope     float64
}

// New builds a Generator driving backend. backend may be nil for tests
// that only exercise fragment synthesis.
func New(backend Backend) *Generator {
	return &Generator{backend: backend, volumePct: 100}
}

// SetTone is the sound-producer entry point shared by the tone queue,
// keyer, and straight key (tonequeue.SoundFunc's signature): freqHz ==
// Silent requests the envelope ramp down, any other value requests it
// ramp up while tracking freqHz as the new tone (spec.md §3: "on mark
// begin slope := +S, on mark end slope := -S").
func (g *Generator) SetTone(freqHz int) {
	g.mu.Lock()
	g.frequencyHz = freqHz
	if freqHz == Silent {
		g.slope = -envelopeSlope
	} else {
		g.slope = envelopeSlope
	}
	g.mu.Unlock()

	if g.backend != nil {
		_ = g.backend.SetTone(freqHz)
	}
}

// SetVolume sets the target volume percentage (0-100). Per spec.md §4.4,
// driving volume to zero is implemented the same way as a mark ending:
// slope := -S; a nonzero volume drives slope := +S.
func (g *Generator) SetVolume(pct int) {
	if pct < 0 {
		pct = 0
	}
	if pct > 100 {
		pct = 100
	}
	g.mu.Lock()
	g.volumePct = pct
	if pct == 0 {
		g.slope = -envelopeSlope
	} else {
		g.slope = envelopeSlope
	}
	g.mu.Unlock()
}

// targetAmplitude is volume*gain expressed against the 16-bit ceiling.
func (g *Generator) targetAmplitude() float64 {
	return float64(g.volumePct) / 100 * maxAmplitude
}

// FillFragment writes len(buf) synthesized samples, stepping the
// envelope and preserving phase continuity across fragment boundaries
// (spec.md §4.4: "buf[i] = amplitude * sin(2*pi*f*i/Fs + phi0)";
// "phi0 is updated each fragment as phi1 - floor(phi1/2pi)*2pi").
func (g *Generator) FillFragment(buf []int16) {
	g.mu.Lock()
	defer g.mu.Unlock()

	freq := float64(g.frequencyHz)
	target := g.targetAmplitude()
	omega := 2 * math.Pi * freq / SampleRateHz

	for i := range buf {
		g.amplitude += g.slope
		switch {
		case g.slope > 0 && g.amplitude >= target:
			g.amplitude = target
			g.slope = 0
		case g.slope < 0 && g.amplitude <= 0:
			g.amplitude = 0
			g.slope = 0
		}
		buf[i] = int16(g.amplitude * math.Sin(omega*float64(i)+g.phase))
	}

	phase1 := omega*float64(len(buf)) + g.phase
	g.phase = phase1 - math.Floor(phase1/(2*math.Pi))*2*math.Pi
}

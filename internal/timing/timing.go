// Package timing holds the per-instance parameter block and the derived
// microsecond timing values computed from it (spec.md §3/§4.2). All timing
// arithmetic is integer microseconds; only the sound generator touches
// floating point.
package timing

import (
	"sync"

	"github.com/n7dr/gocw/cwerr"
)

// DotCalibration is the PARIS-standard dot length calibration constant:
// a 1 WPM dot lasts 1,200,000 microseconds.
const DotCalibration = 1_200_000

const (
	MinSpeed = 4
	MaxSpeed = 60

	MinFrequency = 0
	MaxFrequency = 4000

	MinVolume = 0
	MaxVolume = 100

	MinGap = 0
	MaxGap = 60

	MinTolerance = 0
	MaxTolerance = 90

	MinWeighting = 20
	MaxWeighting = 80

	initialSpeed      = 12
	initialVolume     = 70
	initialFrequency  = 800
	initialGap        = 0
	initialTolerance  = 50
	initialWeighting  = 50
	initialAdaptive   = false
	initialThreshold  = (DotCalibration / initialSpeed) * 2
)

// InitialNoiseThreshold is the default noise-spike rejection window:
// half a dot at maximum speed.
const InitialNoiseThreshold = (DotCalibration / MaxSpeed) / 2

// Derived holds every microsecond value computed from Params by
// Synchronize. Zero value is meaningless until Synchronize has run once.
type Derived struct {
	// Send side.
	Dot        int64
	Dash       int64
	EndOfEle   int64
	EndOfChar  int64
	EndOfWord  int64
	Additional int64
	Adjustment int64

	// Receive side.
	ReceiveDot  int64
	ReceiveDash int64

	DotRangeMin int64
	DotRangeMax int64
	DashRangeMin int64
	DashRangeMax int64

	EoeRangeMin   int64
	EoeRangeMax   int64
	EoeRangeIdeal int64

	EocRangeMin   int64
	EocRangeMax   int64
	EocRangeIdeal int64

	AdaptiveThreshold int64
}

// Params is the mutable parameter block shared by a single library
// instance (spec.md §3 "Parameter block"). All fields are accessed only
// through the get/set methods below, which validate ranges and manage the
// sync/dirty flag.
type Params struct {
	mu sync.Mutex

	sendSpeed    int
	receiveSpeed int
	gap          int
	tolerance    int
	weighting    int
	adaptive     bool
	noise        int64
	frequency    int
	volume       int

	sync bool // true once derived has been recomputed for the current fields

	adaptiveThreshold int64 // persists across Synchronize calls, per spec.md §3
	derived           Derived
}

// New returns a Params initialized to the documented defaults, already
// synchronized.
func New() *Params {
	p := &Params{}
	p.resetLocked()
	return p
}

func (p *Params) resetLocked() {
	p.sendSpeed = initialSpeed
	p.receiveSpeed = initialSpeed
	p.gap = initialGap
	p.tolerance = initialTolerance
	p.weighting = initialWeighting
	p.adaptive = initialAdaptive
	p.noise = InitialNoiseThreshold
	p.frequency = initialFrequency
	p.volume = initialVolume
	p.adaptiveThreshold = initialThreshold
	p.sync = false
	p.synchronizeLocked()
}

// Reset restores every field to its documented default (spec.md §4.2).
func (p *Params) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.resetLocked()
}

func validateRange(op string, v, lo, hi int) error {
	if v < lo || v > hi {
		return cwerr.New(op, cwerr.InvalidArgument)
	}
	return nil
}

// SetSendSpeed sets the send speed in WPM (4..60).
func (p *Params) SetSendSpeed(wpm int) error {
	if err := validateRange("timing.SetSendSpeed", wpm, MinSpeed, MaxSpeed); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.sendSpeed != wpm {
		p.sendSpeed = wpm
		p.sync = false
	}
	return nil
}

// SetReceiveSpeed sets the receive speed in WPM (4..60). Fails with
// NotPermitted while adaptive tracking is enabled, since the receiver
// derives receive speed itself in that mode.
func (p *Params) SetReceiveSpeed(wpm int) error {
	if err := validateRange("timing.SetReceiveSpeed", wpm, MinSpeed, MaxSpeed); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.adaptive {
		return cwerr.New("timing.SetReceiveSpeed", cwerr.NotPermitted)
	}
	if p.receiveSpeed != wpm {
		p.receiveSpeed = wpm
		p.sync = false
	}
	return nil
}

// SetFrequency sets the sidetone frequency in Hz (0..4000).
func (p *Params) SetFrequency(hz int) error {
	if err := validateRange("timing.SetFrequency", hz, MinFrequency, MaxFrequency); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.frequency = hz
	return nil
}

// SetVolume sets the sidetone volume (0..100). Volume does not affect
// derived timings, so it never clears sync.
func (p *Params) SetVolume(v int) error {
	if err := validateRange("timing.SetVolume", v, MinVolume, MaxVolume); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.volume = v
	return nil
}

// SetGap sets the Farnsworth gap in dot units (0..60).
func (p *Params) SetGap(g int) error {
	if err := validateRange("timing.SetGap", g, MinGap, MaxGap); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.gap != g {
		p.gap = g
		p.sync = false
	}
	return nil
}

// SetTolerance sets the receive tolerance percentage (0..90).
func (p *Params) SetTolerance(t int) error {
	if err := validateRange("timing.SetTolerance", t, MinTolerance, MaxTolerance); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.tolerance != t {
		p.tolerance = t
		p.sync = false
	}
	return nil
}

// SetWeighting sets the send weighting percentage (20..80).
func (p *Params) SetWeighting(w int) error {
	if err := validateRange("timing.SetWeighting", w, MinWeighting, MaxWeighting); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.weighting != w {
		p.weighting = w
		p.sync = false
	}
	return nil
}

// SetNoiseThreshold sets the noise-spike rejection window in microseconds.
// Zero or negative disables noise-spike rejection entirely.
func (p *Params) SetNoiseThreshold(us int64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.noise = us
	return nil
}

// SetAdaptive enables or disables adaptive receive-speed tracking.
func (p *Params) SetAdaptive(on bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.adaptive != on {
		p.adaptive = on
		p.sync = false
	}
	return nil
}

func (p *Params) SendSpeed() int       { p.mu.Lock(); defer p.mu.Unlock(); return p.sendSpeed }
func (p *Params) ReceiveSpeed() int    { p.mu.Lock(); defer p.mu.Unlock(); return p.receiveSpeed }
func (p *Params) Frequency() int       { p.mu.Lock(); defer p.mu.Unlock(); return p.frequency }
func (p *Params) Volume() int          { p.mu.Lock(); defer p.mu.Unlock(); return p.volume }
func (p *Params) Gap() int             { p.mu.Lock(); defer p.mu.Unlock(); return p.gap }
func (p *Params) Tolerance() int       { p.mu.Lock(); defer p.mu.Unlock(); return p.tolerance }
func (p *Params) Weighting() int       { p.mu.Lock(); defer p.mu.Unlock(); return p.weighting }
func (p *Params) NoiseThreshold() int64 { p.mu.Lock(); defer p.mu.Unlock(); return p.noise }
func (p *Params) Adaptive() bool       { p.mu.Lock(); defer p.mu.Unlock(); return p.adaptive }

// Synchronize recomputes Derived from the current fields; it is a no-op
// when sync is already set (spec.md §3 "a synchronize routine that is a
// no-op when sync is set").
func (p *Params) Synchronize() Derived {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.synchronizeLocked()
	return p.derived
}

func (p *Params) synchronizeLocked() {
	if p.sync {
		return
	}

	unit := int64(DotCalibration / p.sendSpeed)
	weightingLength := int64(2*(p.weighting-50)) * unit / 100

	d := Derived{}
	d.Dot = unit + weightingLength
	d.Dash = 3 * d.Dot
	d.EndOfEle = unit - (28*weightingLength)/22
	d.EndOfChar = 3*unit - d.EndOfEle
	d.EndOfWord = 7*unit - d.EndOfChar
	d.Additional = int64(p.gap) * unit
	d.Adjustment = (7 * d.Additional) / 3

	receiveUnit := int64(DotCalibration / p.receiveSpeed)
	d.ReceiveDot = receiveUnit
	d.ReceiveDash = 3 * receiveUnit

	if p.adaptive {
		d.DotRangeMin = 0
		d.DotRangeMax = 2 * d.ReceiveDot
		d.DashRangeMin = d.DotRangeMax
		d.DashRangeMax = -1 // unbounded; callers treat <0 as +Inf
		d.EoeRangeMin = d.DotRangeMin
		d.EoeRangeMax = d.DotRangeMax
		d.EocRangeMin = d.EoeRangeMax
		d.EocRangeMax = 5 * d.ReceiveDot
	} else {
		tol := (d.ReceiveDot * int64(p.tolerance)) / 100
		d.DotRangeMin = d.ReceiveDot - tol
		d.DotRangeMax = d.ReceiveDot + tol
		d.DashRangeMin = d.ReceiveDash - tol
		d.DashRangeMax = d.ReceiveDash + tol
		d.EoeRangeMin = d.DotRangeMin
		d.EoeRangeMax = d.DotRangeMax
		d.EocRangeMin = d.DashRangeMin
		d.EocRangeMax = d.DashRangeMax + d.Additional + d.Adjustment
	}

	d.EoeRangeIdeal = receiveUnit
	d.EocRangeIdeal = 3 * receiveUnit
	d.AdaptiveThreshold = p.adaptiveThreshold

	p.derived = d
	p.sync = true
}

// UpdateAdaptiveThreshold recomputes receive_speed from the running dot/dash
// averages per spec.md §3's "Adaptive threshold" formula, then clears sync
// so the next Synchronize call rebuilds the receive ranges around it. It is
// a no-op unless adaptive tracking is enabled.
func (p *Params) UpdateAdaptiveThreshold(avgDot, avgDash int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.adaptive {
		return
	}
	threshold := (avgDash-avgDot)/2 + avgDot
	p.adaptiveThreshold = threshold

	speed := DotCalibration / (threshold / 2)
	if speed < MinSpeed {
		speed = MinSpeed
	} else if speed > MaxSpeed {
		speed = MaxSpeed
	}
	p.receiveSpeed = int(speed)
	p.sync = false
}

// Package receiver implements the mark/space duration classifier: a
// seven-state machine, 4-slot adaptive moving averages, a population
// -stddev statistics ring, and a representation buffer feeding the
// character table (spec.md §4.9).
package receiver

import (
	"math"
	"sync"

	"github.com/n7dr/gocw/cwerr"
	"github.com/n7dr/gocw/internal/table"
	"github.com/n7dr/gocw/internal/timing"
)

// State is one of the seven receiver states.
type State int

const (
	Idle State = iota
	InTone
	AfterTone
	EndChar
	EndWord
	ErrChar
	ErrWord
)

func (s State) String() string {
	switch s {
	case Idle:
		return "IDLE"
	case InTone:
		return "IN_TONE"
	case AfterTone:
		return "AFTER_TONE"
	case EndChar:
		return "END_CHAR"
	case EndWord:
		return "END_WORD"
	case ErrChar:
		return "ERR_CHAR"
	case ErrWord:
		return "ERR_WORD"
	default:
		return "UNKNOWN"
	}
}

// maxRepBuffer bounds the representation buffer (spec.md §4.9: "If buffer
// length reaches capacity-1, force ERR_CHAR").
const maxRepBuffer = 256

// StatKind tags one entry in the statistics ring.
type StatKind int

const (
	StatNone StatKind = iota
	StatDot
	StatDash
	StatEndEle
	StatEndChar
)

type statEntry struct {
	kind  StatKind
	delta int64
}

// Timestamp is a validated microsecond-resolution point in time, mirroring
// the C source's timeval-style (seconds, microseconds) pair (spec.md
// §4.9: "Timestamps must be well-formed, tv_usec ∈ [0, 10^6)").
type Timestamp struct {
	Sec  int64
	Usec int32
}

// Valid reports whether t is well-formed.
func (t Timestamp) Valid() bool {
	return t.Usec >= 0 && t.Usec < 1_000_000
}

func (t Timestamp) micros() int64 {
	return t.Sec*1_000_000 + int64(t.Usec)
}

func (t Timestamp) sub(other Timestamp) int64 {
	return t.micros() - other.micros()
}

// Clock supplies the current time when a caller omits an explicit
// timestamp (spec.md §4.9: "if a timestamp is omitted the service clock
// is read").
type Clock interface {
	Now() Timestamp
}

// movingAverage is the spec's "4-slot circular moving-average
// accumulator holding a running sum."
type movingAverage struct {
	slots [4]int64
	next  int
	sum   int64
	seen  int
}

func newMovingAverage(initial int64) *movingAverage {
	m := &movingAverage{}
	for i := range m.slots {
		m.slots[i] = initial
	}
	m.sum = initial * int64(len(m.slots))
	return m
}

func (m *movingAverage) add(v int64) {
	m.sum -= m.slots[m.next]
	m.slots[m.next] = v
	m.sum += v
	m.next = (m.next + 1) % len(m.slots)
	if m.seen < len(m.slots) {
		m.seen++
	}
}

func (m *movingAverage) average() int64 {
	return m.sum / int64(len(m.slots))
}

// Receiver is the receive-side duration classifier. Not safe for
// concurrent use by multiple goroutines (spec.md §5: "Receiver state is
// not thread-safe across callers").
type Receiver struct {
	mu sync.Mutex

	params *timing.Params
	table  *table.Table
	clock  Clock

	state State

	repBuffer [maxRepBuffer]byte
	repLen    int

	startTS Timestamp
	endTS   Timestamp
	haveEnd bool

	dotAvg  *movingAverage
	dashAvg *movingAverage

	statsRing   [256]statEntry
	statsCursor int
}

// New builds a Receiver bound to params (for derived timing windows) and
// an optional clock (nil means the caller must always pass explicit
// timestamps).
func New(params *timing.Params, clock Clock) *Receiver {
	d := params.Synchronize()
	return &Receiver{
		params:  params,
		table:   table.Get(),
		clock:   clock,
		dotAvg:  newMovingAverage(d.ReceiveDot),
		dashAvg: newMovingAverage(d.ReceiveDash),
	}
}

// State returns the receiver's current state.
func (r *Receiver) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

func (r *Receiver) now(ts *Timestamp) (Timestamp, error) {
	if ts != nil {
		if !ts.Valid() {
			return Timestamp{}, cwerr.New("receiver.timestamp", cwerr.InvalidArgument)
		}
		return *ts, nil
	}
	if r.clock == nil {
		return Timestamp{}, cwerr.New("receiver.timestamp", cwerr.InvalidArgument)
	}
	return r.clock.Now(), nil
}

// StartTone marks the beginning of a tone. Valid only from Idle or
// AfterTone.
func (r *Receiver) StartTone(ts *Timestamp) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, err := r.now(ts)
	if err != nil {
		return err
	}

	switch r.state {
	case Idle:
		r.startTS = t
		r.state = InTone
		return nil
	case AfterTone:
		gap := t.sub(r.endTS)
		r.appendStatLocked(StatEndEle, gap)
		r.startTS = t
		r.state = InTone
		return nil
	default:
		return cwerr.New("receiver.StartTone", cwerr.OutOfRange)
	}
}

// EndTone marks the end of a tone, classifying its duration as a dot or
// dash. Valid only from InTone.
func (r *Receiver) EndTone(ts *Timestamp) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state != InTone {
		return cwerr.New("receiver.EndTone", cwerr.OutOfRange)
	}

	t, err := r.now(ts)
	if err != nil {
		return err
	}

	mark := t.sub(r.startTS)

	noise := r.params.NoiseThreshold()
	if noise > 0 && mark <= noise {
		if r.repLen == 0 {
			r.state = Idle
		} else {
			r.state = AfterTone
		}
		return cwerr.New("receiver.EndTone", cwerr.Again)
	}

	d := r.params.Synchronize()
	adaptive := r.params.Adaptive()

	var dotMin, dotMax, dashMin, dashMax int64
	if adaptive {
		dotMin, dotMax = 0, 2*d.ReceiveDot
		dashMin, dashMax = dotMax, -1 // unbounded
	} else {
		dotMin, dotMax = d.DotRangeMin, d.DotRangeMax
		dashMin, dashMax = d.DashRangeMin, d.DashRangeMax
	}

	var symbol byte
	switch {
	case mark >= dotMin && mark <= dotMax:
		symbol = '.'
	case mark >= dashMin && (dashMax < 0 || mark <= dashMax):
		symbol = '-'
	case mark > d.EocRangeMax:
		r.state = ErrWord
		r.endTS = t
		return cwerr.New("receiver.EndTone", cwerr.NotFound)
	default:
		r.state = ErrChar
		r.endTS = t
		return cwerr.New("receiver.EndTone", cwerr.NotFound)
	}

	if adaptive {
		if symbol == '.' {
			r.dotAvg.add(mark)
		} else {
			r.dashAvg.add(mark)
		}
		r.params.UpdateAdaptiveThreshold(r.dotAvg.average(), r.dashAvg.average())
	}

	var ideal int64
	if symbol == '.' {
		ideal = d.ReceiveDot
		r.appendStatLocked(StatDot, mark-ideal)
	} else {
		ideal = d.ReceiveDash
		r.appendStatLocked(StatDash, mark-ideal)
	}

	if r.repLen >= maxRepBuffer-1 {
		r.state = ErrChar
		return cwerr.New("receiver.EndTone", cwerr.OutOfMemory)
	}
	r.repBuffer[r.repLen] = symbol
	r.repLen++

	r.endTS = t
	r.state = AfterTone
	return nil
}

func (r *Receiver) appendStatLocked(kind StatKind, delta int64) {
	r.statsRing[r.statsCursor] = statEntry{kind: kind, delta: delta}
	r.statsCursor = (r.statsCursor + 1) % len(r.statsRing)
}

// PollRepresentation returns the buffered representation and whether the
// word/char has ended or errored, advancing the state machine based on
// elapsed gap since the last tone.
func (r *Receiver) PollRepresentation(ts *Timestamp) (rep string, isEndOfWord, isError bool, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch r.state {
	case EndWord, ErrWord:
		return string(r.repBuffer[:r.repLen]), true, r.state == ErrWord, nil
	case AfterTone, EndChar, ErrChar:
		t, e := r.now(ts)
		if e != nil {
			return "", false, false, e
		}
		d := r.params.Synchronize()
		gap := t.sub(r.endTS)
		switch {
		case gap > d.EocRangeMax:
			if r.state == ErrChar {
				r.state = ErrWord
			} else {
				r.state = EndWord
			}
			return string(r.repBuffer[:r.repLen]), true, r.state == ErrWord, nil
		case gap >= d.EocRangeMin && r.state == AfterTone:
			r.appendStatLocked(StatEndChar, gap-d.EocRangeIdeal)
			r.state = EndChar
			return string(r.repBuffer[:r.repLen]), false, false, nil
		default:
			return "", false, false, cwerr.New("receiver.PollRepresentation", cwerr.Again)
		}
	default:
		return "", false, false, cwerr.New("receiver.PollRepresentation", cwerr.Again)
	}
}

// PollCharacter layers a representation->character lookup on top of
// PollRepresentation.
func (r *Receiver) PollCharacter(ts *Timestamp) (c byte, isEndOfWord, isError bool, err error) {
	rep, eow, isErr, err := r.PollRepresentation(ts)
	if err != nil {
		return 0, false, false, err
	}
	if rep == "" {
		return 0, eow, isErr, cwerr.New("receiver.PollCharacter", cwerr.Again)
	}
	ch, lookupErr := r.table.LookupRepresentation(rep)
	if lookupErr != nil {
		return 0, eow, true, cwerr.New("receiver.PollCharacter", cwerr.NotFound)
	}
	return ch, eow, isErr, nil
}

// Clear empties the representation buffer and returns to Idle.
func (r *Receiver) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.repLen = 0
	r.state = Idle
	r.haveEnd = false
}

// Statistics is the population standard deviation of recorded deltas,
// grouped by StatKind.
type Statistics struct {
	Dot     float64
	Dash    float64
	EndEle  float64
	EndChar float64
}

// GetStatistics computes the population standard deviation of stored
// deltas per type (spec.md §4.9).
func (r *Receiver) GetStatistics() Statistics {
	r.mu.Lock()
	defer r.mu.Unlock()

	var dot, dash, endEle, endChar []int64
	for _, e := range r.statsRing {
		switch e.kind {
		case StatDot:
			dot = append(dot, e.delta)
		case StatDash:
			dash = append(dash, e.delta)
		case StatEndEle:
			endEle = append(endEle, e.delta)
		case StatEndChar:
			endChar = append(endChar, e.delta)
		}
	}
	return Statistics{
		Dot:     populationStdDev(dot),
		Dash:    populationStdDev(dash),
		EndEle:  populationStdDev(endEle),
		EndChar: populationStdDev(endChar),
	}
}

func populationStdDev(xs []int64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += float64(x)
	}
	mean := sum / float64(len(xs))
	var sq float64
	for _, x := range xs {
		d := float64(x) - mean
		sq += d * d
	}
	return math.Sqrt(sq / float64(len(xs)))
}

// Package sender translates characters and raw dot-dash representations
// into tones on a tone queue (spec.md §4.6).
package sender

import (
	"github.com/n7dr/gocw/cwerr"
	"github.com/n7dr/gocw/internal/table"
	"github.com/n7dr/gocw/internal/timing"
	"github.com/n7dr/gocw/internal/tonequeue"
)

// highWaterMark is the queue length at or above which a full
// representation/character send is refused, reserving room for the
// element tones already committed elsewhere (spec.md §4.6: "reserve for
// ≥100 elements").
const highWaterMark = 2900

// Queue is the subset of *tonequeue.Queue the sender needs, narrowed so
// tests can substitute a fake.
type Queue interface {
	Enqueue(durationUs int64, freqHz int, busy tonequeue.BusyChecker) error
	Length() int
}

// Sender emits characters and representations as tones on a Queue, using
// the send-side derived timings from a timing.Params.
type Sender struct {
	queue  Queue
	params *timing.Params
	table  *table.Table
	busy   tonequeue.BusyChecker
}

// New builds a Sender. busy, if non-nil, is consulted by every Enqueue
// call to veto sends while the keyer or straight key own the audio path.
func New(queue Queue, params *timing.Params, busy tonequeue.BusyChecker) *Sender {
	return &Sender{queue: queue, params: params, table: table.Get(), busy: busy}
}

func (s *Sender) freq() int {
	return s.params.Frequency()
}

// SendDot enqueues one dot followed by an inter-element silence.
func (s *Sender) SendDot() error {
	d := s.params.Synchronize()
	return s.sendElement(d.Dot, d.EndOfEle)
}

// SendDash enqueues one dash followed by an inter-element silence.
func (s *Sender) SendDash() error {
	d := s.params.Synchronize()
	return s.sendElement(d.Dash, d.EndOfEle)
}

func (s *Sender) sendElement(elementUs, gapUs int64) error {
	if err := s.queue.Enqueue(elementUs, s.freq(), s.busy); err != nil {
		return err
	}
	return s.queue.Enqueue(gapUs, tonequeue.Silent, s.busy)
}

// SendCharacter looks c up in the character table and enqueues its
// elements; space enqueues an inter-word silence only (spec.md §4.6).
func (s *Sender) SendCharacter(c byte) error {
	if c == ' ' {
		d := s.params.Synchronize()
		return s.queue.Enqueue(d.EndOfWord+d.Adjustment, tonequeue.Silent, s.busy)
	}

	rep, err := s.table.LookupCharacter(c)
	if err != nil {
		return err
	}
	if err := s.SendRepresentation(rep, false); err != nil {
		return err
	}
	return nil
}

// SendRepresentation validates rep and enqueues each element; if
// partial is false an end-of-character gap is appended. A full
// (non-partial) send is refused with Again if the queue is already at
// the high-water mark.
func (s *Sender) SendRepresentation(rep string, partial bool) error {
	if !table.CheckRepresentation(rep) {
		return cwerr.New("sender.SendRepresentation", cwerr.InvalidArgument)
	}
	if !partial && s.queue.Length() >= highWaterMark {
		return cwerr.New("sender.SendRepresentation", cwerr.Again)
	}

	d := s.params.Synchronize()
	for i := 0; i < len(rep); i++ {
		var elementUs int64
		if rep[i] == '.' {
			elementUs = d.Dot
		} else {
			elementUs = d.Dash
		}
		if err := s.queue.Enqueue(elementUs, s.freq(), s.busy); err != nil {
			return err
		}
		if err := s.queue.Enqueue(d.EndOfEle, tonequeue.Silent, s.busy); err != nil {
			return err
		}
	}

	if !partial {
		if err := s.queue.Enqueue(d.EndOfChar+d.Additional, tonequeue.Silent, s.busy); err != nil {
			return err
		}
	}
	return nil
}

package receiver

import (
	"testing"

	"github.com/n7dr/gocw/internal/table"
	"github.com/n7dr/gocw/internal/timing"
	"pgregory.net/rapid"
)

func tsAt(us int64) *Timestamp {
	return &Timestamp{Sec: us / 1_000_000, Usec: int32(us % 1_000_000)}
}

func TestStartEndToneBuildsRepresentation(t *testing.T) {
	p := timing.New()
	_ = p.SetReceiveSpeed(20) // receive dot = 60000us, dash = 180000us
	r := New(p, nil)

	// Dot.
	if err := r.StartTone(tsAt(0)); err != nil {
		t.Fatalf("StartTone: %v", err)
	}
	if err := r.EndTone(tsAt(60000)); err != nil {
		t.Fatalf("EndTone dot: %v", err)
	}
	// Gap then dash.
	if err := r.StartTone(tsAt(60000 + 20000)); err != nil {
		t.Fatalf("StartTone dash: %v", err)
	}
	if err := r.EndTone(tsAt(60000 + 20000 + 180000)); err != nil {
		t.Fatalf("EndTone dash: %v", err)
	}

	rep, eow, isErr, err := r.PollRepresentation(tsAt(60000 + 20000 + 180000 + 50000))
	if err != nil {
		t.Fatalf("PollRepresentation: %v", err)
	}
	if rep != ".-" {
		t.Fatalf("rep = %q, want .-", rep)
	}
	if eow || isErr {
		t.Fatalf("eow=%v isErr=%v, want false/false mid-character", eow, isErr)
	}
}

func TestStartToneOutOfRange(t *testing.T) {
	p := timing.New()
	r := New(p, nil)
	_ = r.StartTone(tsAt(0))
	if err := r.StartTone(tsAt(1000)); err == nil {
		t.Fatal("expected OutOfRange calling StartTone twice in a row")
	}
}

func TestEndToneOutOfRange(t *testing.T) {
	p := timing.New()
	r := New(p, nil)
	if err := r.EndTone(tsAt(1000)); err == nil {
		t.Fatal("expected OutOfRange calling EndTone without StartTone")
	}
}

// spec.md §8 scenario 3: noise rejection.
func TestNoiseRejection(t *testing.T) {
	p := timing.New()
	_ = p.SetNoiseThreshold(10_000) // 10ms
	r := New(p, nil)

	_ = r.StartTone(tsAt(0))
	err := r.EndTone(tsAt(1_000)) // 1ms mark, below 10ms noise threshold
	if err == nil {
		t.Fatal("expected Again for a tone below the noise threshold")
	}
	if r.State() != Idle {
		t.Fatalf("state = %v, want Idle restored (buffer was empty)", r.State())
	}

	_, _, _, pollErr := r.PollRepresentation(tsAt(2_000))
	if pollErr == nil {
		t.Fatal("expected Again from PollRepresentation, buffer unchanged")
	}
}

// spec.md §8 scenario 2: adaptive receive from a fixed-speed source whose
// dot/dash durations differ from the receiver's initial guess. 18 WPM is
// used (rather than the illustrative 25 WPM in spec.md) because it clears
// the receiver's default dash floor on the very first dash -- with the
// default 12 WPM starting guess, a generator need not differ from it by
// too wide a margin for the 4-slot moving average to recover in only a
// handful of elements.
func TestAdaptiveReceiveTracksSpeed(t *testing.T) {
	p := timing.New()
	_ = p.SetReceiveSpeed(12)
	_ = p.SetAdaptive(true)
	r := New(p, nil)

	const generatorWPM = 18
	dot := int64(1_200_000 / generatorWPM)
	dash := 3 * dot
	eoe := int64(20_000) // arbitrary, inside adaptive eoe window

	var now int64
	send := func(markUs int64) {
		_ = r.StartTone(tsAt(now))
		now += markUs
		_ = r.EndTone(tsAt(now))
		now += eoe
	}

	for i := 0; i < 6; i++ {
		send(dot)
		send(dash)
	}

	speed := p.ReceiveSpeed()
	if diff := speed - generatorWPM; diff < -2 || diff > 2 {
		t.Fatalf("ReceiveSpeed() = %d, want within 2 of %d", speed, generatorWPM)
	}
}

// Fixed-speed mode's EocRangeMin must sit at DashRangeMin (~3 dots minus
// tolerance), not collapse to EoeRangeMax (~1 dot plus tolerance): a gap
// comfortably longer than a dot but still well short of a dash must read
// as "not yet" (Again), not "end of character".
func TestFixedSpeedEocFloorIsDashRangeMin(t *testing.T) {
	p := timing.New()
	_ = p.SetReceiveSpeed(20) // receive dot = 60000us, dash = 180000us
	d := p.Synchronize()

	if d.EocRangeMin != d.DashRangeMin {
		t.Fatalf("EocRangeMin = %d, want DashRangeMin (%d)", d.EocRangeMin, d.DashRangeMin)
	}

	// A gap inside (EoeRangeMax, EocRangeMin): too long to still be an
	// inter-element gap, but nowhere near end-of-character yet.
	midGap := (d.EoeRangeMax + d.EocRangeMin) / 2

	r := New(p, nil)
	if err := r.StartTone(tsAt(0)); err != nil {
		t.Fatalf("StartTone: %v", err)
	}
	if err := r.EndTone(tsAt(60000)); err != nil {
		t.Fatalf("EndTone: %v", err)
	}

	_, _, _, err := r.PollRepresentation(tsAt(60000 + midGap))
	if err == nil {
		t.Fatalf("PollRepresentation with gap=%d (between EoeRangeMax=%d and EocRangeMin=%d) should be Again, not end-of-character", midGap, d.EoeRangeMax, d.EocRangeMin)
	}

	// A gap past EocRangeMin does complete the character.
	eocGap := d.EocRangeMin + 1000
	rep, eow, isErr, err := r.PollRepresentation(tsAt(60000 + eocGap))
	if err != nil {
		t.Fatalf("PollRepresentation with gap=%d (past EocRangeMin): %v", eocGap, err)
	}
	if rep != "." {
		t.Fatalf("rep = %q, want \".\"", rep)
	}
	if eow || isErr {
		t.Fatalf("eow=%v isErr=%v, want false/false at end of character", eow, isErr)
	}
}

func TestClearResetsToIdle(t *testing.T) {
	p := timing.New()
	r := New(p, nil)
	_ = r.StartTone(tsAt(0))
	_ = r.EndTone(tsAt(60000))
	r.Clear()
	if r.State() != Idle {
		t.Fatalf("state after Clear = %v, want Idle", r.State())
	}
	rep, _, _, err := r.PollRepresentation(tsAt(1000))
	if rep != "" || err == nil {
		t.Fatalf("expected empty rep / Again after Clear, got rep=%q err=%v", rep, err)
	}
}

func TestInvalidTimestampRejected(t *testing.T) {
	p := timing.New()
	r := New(p, nil)
	bad := &Timestamp{Sec: 0, Usec: 1_000_000}
	if err := r.StartTone(bad); err == nil {
		t.Fatal("expected InvalidArgument for Usec == 1_000_000")
	}
}

// Round-trip: for every character in the table (excluding space), feed the
// enqueued (duration, frequency) pairs send_character(c) would produce as
// mark/space edges into the receiver and confirm poll_character recovers c
// (spec.md §8 "Round-trip and idempotence").
func TestProperty_SendThenReceiveRoundTrip(t *testing.T) {
	p := timing.New()
	_ = p.SetSendSpeed(20)
	_ = p.SetReceiveSpeed(20)
	d := p.Synchronize()

	tbl := allTableChars(t)

	rapid.Check(t, func(rt *rapid.T) {
		c := rapid.SampledFrom(tbl).Draw(rt, "char")
		rep := lookupRep(t, c)

		r := New(p, nil)
		var now int64
		for i := 0; i < len(rep); i++ {
			var mark int64
			if rep[i] == '.' {
				mark = d.Dot
			} else {
				mark = d.Dash
			}
			if err := r.StartTone(tsAt(now)); err != nil {
				rt.Fatalf("StartTone: %v", err)
			}
			now += mark
			if err := r.EndTone(tsAt(now)); err != nil {
				rt.Fatalf("EndTone: %v", err)
			}
			now += d.EndOfEle
		}
		// Land the poll squarely inside the receive-side eoc window
		// (gap must be >= EocRangeMin and <= EocRangeMax).
		extra := d.EocRangeMin - d.EndOfEle + 100
		if extra < 100 {
			extra = 100
		}
		now += extra

		got, _, isErr, err := r.PollCharacter(tsAt(now))
		if err != nil {
			rt.Fatalf("PollCharacter(%q): %v", c, err)
		}
		if isErr {
			rt.Fatalf("PollCharacter(%q) reported error", c)
		}
		if got != c {
			rt.Fatalf("round trip: sent %q (%q), received %q", c, rep, got)
		}
	})
}

func allTableChars(t *testing.T) []byte {
	t.Helper()
	return table.Get().Characters()
}

func lookupRep(t *testing.T, c byte) string {
	t.Helper()
	rep, err := table.Get().LookupCharacter(c)
	if err != nil {
		t.Fatalf("LookupCharacter(%q): %v", c, err)
	}
	return rep
}

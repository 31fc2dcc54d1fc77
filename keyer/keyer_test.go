package keyer

import (
	"testing"

	"github.com/n7dr/gocw/internal/timer"
	"github.com/n7dr/gocw/internal/timing"
)

func newTestKeyer(t *testing.T, curtisB bool) (*Keyer, *timer.Virtual, *[]int, *[]bool) {
	t.Helper()
	v := timer.NewVirtual()
	p := timing.New()
	_ = p.SetSendSpeed(12)
	var sounded []int
	var edges []bool
	k := New(
		func(f int) { sounded = append(sounded, f) },
		v,
		p,
		curtisB,
		func(down bool) { edges = append(edges, down) },
		nil,
	)
	return k, v, &sounded, &edges
}

func TestKeyerIdleByDefault(t *testing.T) {
	k, _, _, _ := newTestKeyer(t, false)
	if k.State() != Idle {
		t.Fatalf("initial state = %v, want Idle", k.State())
	}
}

// spec.md §8 scenario 4: both paddles held from t=0 for 1s at 12 WPM
// (Curtis A) alternates dot, dash, dot, dash, ... and releasing both
// paddles completes the in-progress element with no trailing opposite.
func TestIambicSqueezeCurtisA(t *testing.T) {
	k, v, sounded, _ := newTestKeyer(t, false)

	if err := k.NotifyPaddleEvent(true, true, nil); err != nil {
		t.Fatalf("NotifyPaddleEvent: %v", err)
	}

	d := timing.New()
	_ = d.SetSendSpeed(12)
	deriv := d.Synchronize()

	var playedFreqs []int
	for i := 0; i < 6; i++ {
		// drive enough advances to cross one element + one eoe each loop
		v.Advance(0)
		v.Advance(deriv.Dot) // at most dash-sized; Advance no-ops if not yet due
		v.Advance(deriv.Dash)
		v.Advance(deriv.EndOfEle)
	}
	playedFreqs = *sounded
	if len(playedFreqs) < 4 {
		t.Fatalf("expected several elements sounded, got %d: %v", len(playedFreqs), playedFreqs)
	}

	// Release both paddles; the keyer should eventually return to Idle.
	_ = k.NotifyPaddleEvent(false, false, nil)
	for i := 0; i < 10 && k.State() != Idle; i++ {
		v.Advance(deriv.Dash)
		v.Advance(deriv.EndOfEle)
	}
	if k.State() != Idle {
		t.Fatalf("keyer did not return to Idle after release, state = %v", k.State())
	}
}

// runSqueezeScenario drives the scenario 4/5 setup (both paddles held for
// six elements at 12 WPM, then released) and reports how many elements
// sounded before and after the release, plus the final state reached.
func runSqueezeScenario(t *testing.T, curtisB bool) (beforeRelease, afterRelease int, final State) {
	t.Helper()
	k, v, sounded, _ := newTestKeyer(t, curtisB)

	if err := k.NotifyPaddleEvent(true, true, nil); err != nil {
		t.Fatalf("NotifyPaddleEvent: %v", err)
	}

	d := timing.New()
	_ = d.SetSendSpeed(12)
	deriv := d.Synchronize()

	for i := 0; i < 6; i++ {
		v.Advance(0)
		v.Advance(deriv.Dot)
		v.Advance(deriv.Dash)
		v.Advance(deriv.EndOfEle)
	}
	beforeRelease = len(*sounded)

	_ = k.NotifyPaddleEvent(false, false, nil)
	for i := 0; i < 10 && k.State() != Idle; i++ {
		v.Advance(deriv.Dash)
		v.Advance(deriv.EndOfEle)
	}
	afterRelease = len(*sounded) - beforeRelease
	final = k.State()
	return beforeRelease, afterRelease, final
}

// spec.md §8 scenario 5: same squeeze as scenario 4, but with Curtis B
// enabled. Releasing both paddles still completes the in-progress
// element, but Curtis B then owes exactly one more opposite element
// before the keyer is allowed back to IDLE.
func TestIambicSqueezeCurtisB(t *testing.T) {
	_, afterA, finalA := runSqueezeScenario(t, false)
	if finalA != Idle {
		t.Fatalf("Curtis A keyer did not return to Idle, state = %v", finalA)
	}

	_, afterB, finalB := runSqueezeScenario(t, true)
	if finalB != Idle {
		t.Fatalf("Curtis B keyer did not return to Idle, state = %v", finalB)
	}

	if afterB != afterA+1 {
		t.Fatalf("Curtis B should sound exactly one more trailing element than Curtis A after release: A=%d B=%d", afterA, afterB)
	}
}

func TestWaitForKeyerDeadlockWhilePaddleHeld(t *testing.T) {
	k, _, _, _ := newTestKeyer(t, false)
	_ = k.NotifyPaddleEvent(true, false, nil)
	if err := k.WaitForKeyer(); err == nil {
		t.Fatal("expected Deadlock while a paddle is held down")
	}
}

func TestWaitForKeyerReturnsWhenIdle(t *testing.T) {
	k, _, _, _ := newTestKeyer(t, false)
	if err := k.WaitForKeyer(); err != nil {
		t.Fatalf("WaitForKeyer on already-idle keyer: %v", err)
	}
}

func TestNotifyPaddleEventBusy(t *testing.T) {
	k, _, _, _ := newTestKeyer(t, false)
	err := k.NotifyPaddleEvent(true, false, func() bool { return true })
	if err == nil {
		t.Fatal("expected Busy error")
	}
}

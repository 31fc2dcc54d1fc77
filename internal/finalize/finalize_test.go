package finalize

import (
	"testing"

	"github.com/n7dr/gocw/internal/timer"
)

func TestReleaseFiresAfterGracePeriod(t *testing.T) {
	v := timer.NewVirtual()
	released := 0
	c := New(v, func() { released++ })

	c.Schedule()
	for i := 0; i < GraceSeconds-1; i++ {
		v.Advance(tickUs)
		if released != 0 {
			t.Fatalf("released early after %d ticks", i+1)
		}
	}
	v.Advance(tickUs)
	if released != 1 {
		t.Fatalf("released = %d, want 1 after %d ticks", released, GraceSeconds)
	}
	if c.Armed() {
		t.Fatal("expected Armed() false after release")
	}
}

func TestCancelAbortsCountdown(t *testing.T) {
	v := timer.NewVirtual()
	released := 0
	c := New(v, func() { released++ })

	c.Schedule()
	for i := 0; i < GraceSeconds-2; i++ {
		v.Advance(tickUs)
	}
	c.Cancel()
	if c.Armed() {
		t.Fatal("expected Armed() false after Cancel")
	}
	for i := 0; i < 5; i++ {
		v.Advance(tickUs)
	}
	if released != 0 {
		t.Fatalf("released = %d, want 0 after Cancel", released)
	}
}

func TestRescheduleResetsCountdown(t *testing.T) {
	v := timer.NewVirtual()
	released := 0
	c := New(v, func() { released++ })

	c.Schedule()
	for i := 0; i < GraceSeconds-1; i++ {
		v.Advance(tickUs)
	}
	c.Schedule() // activity just before expiry resets the clock
	for i := 0; i < GraceSeconds-1; i++ {
		v.Advance(tickUs)
		if released != 0 {
			t.Fatalf("released = %d, want 0 mid-reset countdown (tick %d)", released, i+1)
		}
	}
	v.Advance(tickUs)
	if released != 1 {
		t.Fatalf("released = %d, want 1 once the reset countdown elapses", released)
	}
}

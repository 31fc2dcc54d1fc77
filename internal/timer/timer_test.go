package timer

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestVirtualFiresOnAdvance(t *testing.T) {
	v := NewVirtual()
	var fired int32
	if err := v.RequestNextTick(1000, func() { atomic.AddInt32(&fired, 1) }); err != nil {
		t.Fatalf("RequestNextTick: %v", err)
	}
	v.Advance(500)
	if atomic.LoadInt32(&fired) != 0 {
		t.Fatal("handler fired before delay elapsed")
	}
	v.Advance(500)
	if atomic.LoadInt32(&fired) != 1 {
		t.Fatalf("fired = %d, want 1", fired)
	}
}

func TestVirtualImmediateTick(t *testing.T) {
	v := NewVirtual()
	var fired int32
	_ = v.RequestNextTick(0, func() { atomic.AddInt32(&fired, 1) })
	v.Advance(0)
	if atomic.LoadInt32(&fired) != 1 {
		t.Fatalf("fired = %d, want 1 for delay<=0", fired)
	}
}

func TestVirtualBlockCallbackSuppressesDelivery(t *testing.T) {
	v := NewVirtual()
	var fired int32
	_ = v.RequestNextTick(100, func() { atomic.AddInt32(&fired, 1) })
	v.BlockCallback(true)
	v.Advance(200)
	if atomic.LoadInt32(&fired) != 0 {
		t.Fatal("tick delivered while blocked")
	}
	v.BlockCallback(false)
	v.Advance(0)
	if atomic.LoadInt32(&fired) != 1 {
		t.Fatal("tick not delivered after unblock + next advance")
	}
}

func TestVirtualOverflow(t *testing.T) {
	v := NewVirtual()
	for i := 0; i < MaxHandlers; i++ {
		if err := v.RequestNextTick(1, func() {}); err != nil {
			t.Fatalf("handler %d: unexpected error %v", i, err)
		}
	}
	if err := v.RequestNextTick(1, func() {}); err == nil {
		t.Fatal("expected OutOfMemory on 33rd handler")
	}
}

func TestBlockCallbackNesting(t *testing.T) {
	v := NewVirtual()
	v.BlockCallback(true)
	v.BlockCallback(true)
	v.BlockCallback(false)
	if !v.Blocked() {
		t.Fatal("expected still blocked after one unblock of two blocks")
	}
	v.BlockCallback(false)
	if v.Blocked() {
		t.Fatal("expected unblocked after matching unblock count")
	}
}

func TestBlockCallbackNoOpRoundTrip(t *testing.T) {
	v := NewVirtual()
	v.BlockCallback(true)
	v.BlockCallback(false)
	if v.Blocked() {
		t.Fatal("block(true) then block(false) should leave state unchanged (unblocked)")
	}
}

func TestHostFires(t *testing.T) {
	h := NewHost()
	defer h.Release()
	done := make(chan struct{})
	if err := h.RequestNextTick(1000, func() { close(done) }); err != nil {
		t.Fatalf("RequestNextTick: %v", err)
	}
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("handler did not fire within 1s")
	}
}

func TestHostOverflow(t *testing.T) {
	h := NewHost()
	defer h.Release()
	for i := 0; i < MaxHandlers; i++ {
		if err := h.RequestNextTick(10_000_000, func() {}); err != nil {
			t.Fatalf("handler %d: unexpected error %v", i, err)
		}
	}
	if err := h.RequestNextTick(10_000_000, func() {}); err == nil {
		t.Fatal("expected OutOfMemory on 33rd handler")
	}
}

func TestHostReleaseCancelsPending(t *testing.T) {
	h := NewHost()
	var fired int32
	_ = h.RequestNextTick(50_000_000, func() { atomic.AddInt32(&fired, 1) })
	h.Release()
	time.Sleep(10 * time.Millisecond)
	if atomic.LoadInt32(&fired) != 0 {
		t.Fatal("handler fired after Release")
	}
}

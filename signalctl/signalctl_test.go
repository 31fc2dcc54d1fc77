package signalctl

import (
	"os"
	"syscall"
	"testing"
	"time"
)

func TestModeCallbackInvokedOnSignal(t *testing.T) {
	got := make(chan os.Signal, 1)
	w := Watch([]os.Signal{syscall.SIGUSR1}, ModeCallback, nil, func(s os.Signal) {
		got <- s
	})
	defer w.Stop()

	if err := syscall.Kill(syscall.Getpid(), syscall.SIGUSR1); err != nil {
		t.Fatalf("kill: %v", err)
	}

	select {
	case sig := <-got:
		if sig != syscall.SIGUSR1 {
			t.Fatalf("sig = %v, want SIGUSR1", sig)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for callback")
	}
}

func TestModeTerminateCallsOnce(t *testing.T) {
	calls := make(chan struct{}, 2)
	w := Watch([]os.Signal{syscall.SIGUSR2}, ModeTerminate, func() {
		calls <- struct{}{}
	}, nil)
	defer w.Stop()

	_ = syscall.Kill(syscall.Getpid(), syscall.SIGUSR2)

	select {
	case <-calls:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for terminate")
	}

	// After ModeTerminate fires once the watcher goroutine exits; a
	// second signal must not invoke terminate again.
	_ = syscall.Kill(syscall.Getpid(), syscall.SIGUSR2)
	select {
	case <-calls:
		t.Fatal("terminate invoked a second time")
	case <-time.After(200 * time.Millisecond):
	}
}

func TestLastRecordsMostRecentSignal(t *testing.T) {
	w := Watch([]os.Signal{syscall.SIGUSR1}, ModeIgnore, nil, nil)
	defer w.Stop()

	if _, ok := w.Last(); ok {
		t.Fatal("expected no signal recorded yet")
	}

	_ = syscall.Kill(syscall.Getpid(), syscall.SIGUSR1)
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if sig, ok := w.Last(); ok {
			if sig != syscall.SIGUSR1 {
				t.Fatalf("sig = %v, want SIGUSR1", sig)
			}
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("timed out waiting for Last to observe the signal")
}

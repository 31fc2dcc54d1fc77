// Package signalctl is a small, reusable generalization of the
// teacher's inline OS-signal handling: `signal.Notify` plus a goroutine
// that reacts to the first received signal (spec.md §4.11).
package signalctl

import (
	"os"
	"os/signal"
)

// Mode selects what Watch does when a watched signal arrives.
type Mode int

const (
	// ModeTerminate calls the supplied terminate func once, on the first
	// signal received.
	ModeTerminate Mode = iota
	// ModeIgnore watches for signals without reacting to them (useful for
	// tests that want to assert a signal was observed via Watcher.Last).
	ModeIgnore
	// ModeCallback invokes a caller-supplied func(os.Signal) on every
	// signal received, without ever stopping the watch.
	ModeCallback
)

// Watcher is a running signal watch, stoppable via Stop.
type Watcher struct {
	ch      chan os.Signal
	stop    chan struct{}
	lastSig chan os.Signal
}

// Watch begins watching signals, invoking terminate (ModeTerminate) or
// callback (ModeCallback) as dictated by mode. Passing a nil terminate
// under ModeTerminate, or a nil callback under ModeCallback, is a no-op
// watch that still records signals for Last. Call Stop to release the
// underlying channel and goroutine.
func Watch(signals []os.Signal, mode Mode, terminate func(), callback func(os.Signal)) *Watcher {
	w := &Watcher{
		ch:      make(chan os.Signal, 1),
		stop:    make(chan struct{}),
		lastSig: make(chan os.Signal, 1),
	}
	signal.Notify(w.ch, signals...)

	go func() {
		for {
			select {
			case sig := <-w.ch:
				select {
				case w.lastSig <- sig:
				default:
					<-w.lastSig
					w.lastSig <- sig
				}
				switch mode {
				case ModeTerminate:
					if terminate != nil {
						terminate()
					}
					return
				case ModeCallback:
					if callback != nil {
						callback(sig)
					}
				case ModeIgnore:
					// Recorded above; no reaction.
				}
			case <-w.stop:
				return
			}
		}
	}()

	return w
}

// Stop releases the signal channel and terminates the watch goroutine.
func (w *Watcher) Stop() {
	signal.Stop(w.ch)
	close(w.stop)
}

// Last returns the most recently received signal and whether one has
// arrived yet.
func (w *Watcher) Last() (os.Signal, bool) {
	select {
	case sig := <-w.lastSig:
		w.lastSig <- sig
		return sig, true
	default:
		return nil, false
	}
}

//go:build linux

package sound

import (
	"fmt"
	"os"

	ioctl "github.com/daedaluz/goioctl"
)

// kiocsound is Linux's console-beeper ioctl request number, the direct
// equivalent of original_source/src/cwlib/cwlib.c's cw_console_* calls.
const kiocsound = 0x4B2F

// consoleClockHz is the PC speaker's timer clock; the ioctl argument is
// the clock divided by the desired frequency (0 silences the beeper).
const consoleClockHz = 1193180

// Console drives /dev/console's KIOCSOUND ioctl: a two-level (on/off)
// square-wave beeper with no sample thread (spec.md §4.4).
type Console struct {
	path string
	f    *os.File
}

// NewConsole builds a console backend against the given device path
// (typically "/dev/console" or "/dev/tty0").
func NewConsole(path string) *Console {
	if path == "" {
		path = "/dev/console"
	}
	return &Console{path: path}
}

// Open acquires the console device file descriptor.
func (c *Console) Open() error {
	f, err := os.OpenFile(c.path, os.O_WRONLY, 0)
	if err != nil {
		return fmt.Errorf("sound: open console device: %w", err)
	}
	c.f = f
	return nil
}

// Close releases the console device file descriptor.
func (c *Console) Close() error {
	if c.f == nil {
		return nil
	}
	err := c.f.Close()
	c.f = nil
	return err
}

// SetTone issues the beeper ioctl: freqHz == Silent stops the tone,
// any other value starts a square wave at freqHz (spec.md §4.4: "a zero
// frequency argument requests silence").
func (c *Console) SetTone(freqHz int) error {
	if c.f == nil {
		return fmt.Errorf("sound: console device not open")
	}
	var arg uintptr
	if freqHz > 0 {
		arg = uintptr(consoleClockHz / freqHz)
	}
	return ioctl.Ioctl(c.f.Fd(), kiocsound, arg)
}

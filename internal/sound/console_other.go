//go:build !linux

package sound

// Console is the non-Linux stand-in: the KIOCSOUND ioctl this backend
// needs has no portable equivalent, so every method reports
// ErrUnsupported (spec.md §9: "implement where the ioctl exists,
// Unsupported elsewhere").
type Console struct{}

// NewConsole builds a console backend stub; path is accepted for
// signature parity with the Linux build and otherwise ignored.
func NewConsole(path string) *Console {
	return &Console{}
}

func (c *Console) Open() error { return ErrUnsupported }

func (c *Console) Close() error { return nil }

func (c *Console) SetTone(freqHz int) error { return ErrUnsupported }

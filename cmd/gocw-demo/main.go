// Command gocw-demo exercises the gocw library end to end: it sends an
// optional greeting through a sidetone backend, then listens on an audio
// device and decodes incoming CW into text.
package main

import (
	"github.com/n7dr/gocw/internal/recovery"
)

func main() {
	defer recovery.HandlePanic()
	Execute()
}

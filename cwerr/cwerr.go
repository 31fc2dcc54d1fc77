// Package cwerr defines the error taxonomy shared by every gocw package.
//
// Every fallible operation in gocw returns (or wraps) an *Error rather than
// a bare errors.New string, so callers can errors.As to the Kind and branch
// on it the way the spec's error-code discipline requires.
package cwerr

import "errors"

// Kind is the taxonomy of error conditions a gocw operation can report.
type Kind int

const (
	// InvalidArgument: out-of-range numeric parameter, malformed
	// timestamp, or ill-formed representation string.
	InvalidArgument Kind = iota
	// NotPermitted: operation disallowed in the current mode (e.g. set
	// receive speed while adaptive tracking is enabled).
	NotPermitted
	// NotFound: no lookup entry for the given character or representation.
	NotFound
	// Again: transient — queue full, classification not yet possible, or
	// tone shorter than the noise threshold.
	Again
	// Busy: another producer (tone queue / keyer / straight key)
	// currently owns the audio path.
	Busy
	// OutOfRange: operation attempted in a disallowed state (e.g. end of
	// tone without a preceding start of tone).
	OutOfRange
	// OutOfMemory: internal buffer saturated (receive buffer, timer
	// handler list).
	OutOfMemory
	// Deadlock: caller has blocked the timer source and asked to wait for
	// a timer-driven completion.
	Deadlock
	// Unsupported: feature requested on a backend that cannot provide it
	// (e.g. console beeper volume).
	Unsupported
	// Io: backend reported a low-level failure.
	Io
)

func (k Kind) String() string {
	switch k {
	case InvalidArgument:
		return "InvalidArgument"
	case NotPermitted:
		return "NotPermitted"
	case NotFound:
		return "NotFound"
	case Again:
		return "Again"
	case Busy:
		return "Busy"
	case OutOfRange:
		return "OutOfRange"
	case OutOfMemory:
		return "OutOfMemory"
	case Deadlock:
		return "Deadlock"
	case Unsupported:
		return "Unsupported"
	case Io:
		return "Io"
	default:
		return "Unknown"
	}
}

// Error is the concrete error type every gocw operation returns. Op names
// the failing method (e.g. "Keyer.NotifyPaddleEvent") so errors read well
// without needing a stack trace.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	msg := e.Kind.String()
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New builds an *Error with no wrapped cause.
func New(op string, kind Kind) *Error {
	return &Error{Kind: kind, Op: op}
}

// Wrap builds an *Error wrapping a lower-level cause.
func Wrap(op string, kind Kind, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Is reports whether err is a *Error of the given kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Kind == kind
}

package signaling

import "errors"

var (
	// ErrNotConnected is returned by Send while the relay connection is down.
	ErrNotConnected = errors.New("relay not connected")

	// ErrClosed is returned once the link has been closed.
	ErrClosed = errors.New("signaling link closed")
)

// Error describes a relay-level failure: a dropped connection, a failed
// write or a malformed frame. The link recovers from all of them by itself.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string { return "signaling " + e.Op + ": " + e.Err.Error() }
func (e *Error) Unwrap() error { return e.Err }

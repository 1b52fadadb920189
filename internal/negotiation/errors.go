package negotiation

import "errors"

var (
	// ErrTimeout is reported when a negotiation attempt does not reach
	// Connected before its deadline.
	ErrTimeout = errors.New("negotiation timed out")

	// ErrFailed is returned by operations on a machine that already failed.
	ErrFailed = errors.New("negotiation failed")
)

// Error is a negotiation failure: a description or candidate rejected by the
// peer session for a reason other than an expected offer collision, or a
// timeout. It is terminal for the session.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string { return "negotiation " + e.Op + ": " + e.Err.Error() }
func (e *Error) Unwrap() error { return e.Err }

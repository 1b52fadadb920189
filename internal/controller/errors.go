package controller

import "errors"

var (
	// ErrNotOpen is returned by Send and Renegotiate before the first Open.
	ErrNotOpen = errors.New("no session open")

	// ErrSessionMismatch is returned by Open while a session for another
	// room or relay is alive.
	ErrSessionMismatch = errors.New("a session for another room is open")

	// ErrChannelFailed is returned by Send once the session has failed.
	// The session has to be opened again.
	ErrChannelFailed = errors.New("channel failed")

	// ErrChannelClosed is returned by Send after Close.
	ErrChannelClosed = errors.New("channel closed")
)

package forumchat

import (
	"errors"
	"fmt"
)

var (
	// ErrAuthExpired is returned by Session.Send when the liveness check
	// fails. The session has been logged out when it is returned.
	ErrAuthExpired = errors.New("session expired")

	// ErrNotConnected is returned when sending on a channel that is not open.
	ErrNotConnected = errors.New("not connected")

	// ErrSendQueueFull is returned when the outbound queue cannot accept a frame.
	ErrSendQueueFull = errors.New("send queue full")

	// ErrUnknownFrame is returned when an inbound frame has an unrecognised type.
	ErrUnknownFrame = errors.New("unknown frame type")

	// ErrInvalidInput wraps validation failures.
	ErrInvalidInput = errors.New("invalid input")

	// ErrSessionClosed is returned by operations on a session after Logout.
	ErrSessionClosed = errors.New("session closed")
)

// ConnectionError means the channel could not be established. Chat features
// are unavailable for the rest of the session.
type ConnectionError struct {
	URL string
	Err error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connect %s: %v", e.URL, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// FetchError means a REST call failed or returned a non-2xx status.
type FetchError struct {
	Method     string
	Path       string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s %s: HTTP %d", e.Method, e.Path, e.StatusCode)
	}
	return fmt.Sprintf("%s %s: %v", e.Method, e.Path, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

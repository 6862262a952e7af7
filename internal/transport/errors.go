package transport

import (
	"errors"
	"fmt"
)

var (
	// ErrNotConnected is returned when an operation needs an open socket.
	ErrNotConnected = errors.New("not connected")
	// ErrNoSession is returned when stopping without a current session.
	ErrNoSession = errors.New("no active investigation session")
	// ErrStartTimeout is returned when no start acknowledgement arrived and
	// the start policy declined to assume success.
	ErrStartTimeout = errors.New("timed out waiting for investigation to start")
	// ErrStopTimeout is returned when no stop acknowledgement arrived in time.
	ErrStopTimeout = errors.New("timed out waiting for investigation to stop")
	// ErrDisconnected is returned to waiters cancelled by Disconnect.
	ErrDisconnected = errors.New("connection closed by client")

	// ErrMalformedJSON marks a frame that is not valid JSON.
	ErrMalformedJSON = errors.New("malformed JSON frame")
	// ErrInvalidEnvelope marks valid JSON lacking a string type or timestamp.
	ErrInvalidEnvelope = errors.New("invalid message envelope")
)

// InvestigationError is a backend-reported failure for a session.
type InvestigationError struct {
	SessionID string
	Reason    string
}

func (e *InvestigationError) Error() string {
	if e.SessionID == "" {
		return fmt.Sprintf("investigation error: %s", e.Reason)
	}
	return fmt.Sprintf("investigation error [%s]: %s", e.SessionID, e.Reason)
}

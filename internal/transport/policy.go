package transport

import "time"

// ReconnectPolicy controls automatic reconnection after an unexpected close.
// The delay grows linearly with the attempt number.
type ReconnectPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// DefaultReconnectPolicy returns 5 attempts spaced 1s, 2s, 3s, 4s, 5s apart.
func DefaultReconnectPolicy() ReconnectPolicy {
	return ReconnectPolicy{
		MaxAttempts: 5,
		BaseDelay:   time.Second,
		MaxDelay:    30 * time.Second,
	}
}

// ShouldRetry reports whether attempt (1-indexed) may be scheduled.
func (p ReconnectPolicy) ShouldRetry(attempt int) bool {
	return attempt >= 1 && attempt <= p.MaxAttempts
}

// NextDelay returns the delay before attempt (1-indexed), capped at MaxDelay.
func (p ReconnectPolicy) NextDelay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := p.BaseDelay * time.Duration(attempt)
	if p.MaxDelay > 0 && delay > p.MaxDelay {
		return p.MaxDelay
	}
	return delay
}

// StartAckPolicy decides what a start request does when the backend never
// acknowledges it. The backend is known to start slowly and to skip the
// acknowledgement, so the default assumes success while the socket stays open.
type StartAckPolicy struct {
	Timeout    time.Duration
	Optimistic bool
}

// DefaultStartAckPolicy waits 30s, then assumes success if still connected.
func DefaultStartAckPolicy() StartAckPolicy {
	return StartAckPolicy{
		Timeout:    30 * time.Second,
		Optimistic: true,
	}
}

// AcceptOnTimeout reports whether a timed-out start should resolve successfully.
func (p StartAckPolicy) AcceptOnTimeout(connected bool, sessionID string) bool {
	return p.Optimistic && connected && sessionID != ""
}

// DefaultStopTimeout bounds the wait for investigation_stopped.
const DefaultStopTimeout = 5 * time.Second

// Package call holds the client-side view of a call and its status
// machine.
package call

import (
	"sync"
	"time"
)

// Type is the kind of media a call carries.
type Type string

const (
	Audio Type = "audio"
	Video Type = "video"
)

// ParseType maps a user supplied string to a Type. Anything other than
// "video" is an audio call.
func ParseType(s string) Type {
	if Type(s) == Video {
		return Video
	}
	return Audio
}

// Status is the lifecycle state of a call.
type Status string

const (
	StatusRinging    Status = "ringing"
	StatusConnecting Status = "connecting"
	StatusConnected  Status = "connected"
	StatusRejected   Status = "rejected"
	StatusUnanswered Status = "unanswered"
	StatusEnded      Status = "ended"
)

// Terminal reports whether no further transition is possible.
func (s Status) Terminal() bool {
	switch s {
	case StatusRejected, StatusUnanswered, StatusEnded:
		return true
	}
	return false
}

// EndReason explains why a call reached a terminal status.
type EndReason string

const (
	ReasonNone       EndReason = ""
	ReasonHangup     EndReason = "hangup"
	ReasonRejected   EndReason = "rejected"
	ReasonUnanswered EndReason = "unanswered"
	ReasonFailed     EndReason = "failed"
	ReasonPeerLeft   EndReason = "peer-left"
)

// Call is one call between two participants. The identity fields are set
// at creation; the status moves only through the transition methods,
// which are safe for concurrent use.
type Call struct {
	ID           string
	Type         Type
	From         string
	To           string
	StartedAt    time.Time
	Participants []string

	mu          sync.Mutex
	status      Status
	connectedAt time.Time
	endedAt     time.Time
	reason      EndReason
}

// New returns a ringing call placed by from to to.
func New(id string, typ Type, from, to string) *Call {
	return &Call{
		ID:           id,
		Type:         typ,
		From:         from,
		To:           to,
		StartedAt:    time.Now(),
		Participants: []string{from, to},
		status:       StatusRinging,
	}
}

func (c *Call) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

func (c *Call) EndReason() EndReason {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reason
}

func (c *Call) EndedAt() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.endedAt
}

// Duration is the time spent connected. It keeps growing until the call
// ends and is zero for calls that never connected.
func (c *Call) Duration() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.connectedAt.IsZero() {
		return 0
	}
	if c.endedAt.IsZero() {
		return time.Since(c.connectedAt)
	}
	return c.endedAt.Sub(c.connectedAt)
}

// Accept moves a ringing call to connecting.
func (c *Call) Accept() error {
	return c.transition("accept", func(s Status) (Status, EndReason, bool) {
		return StatusConnecting, ReasonNone, s == StatusRinging
	})
}

// Connected marks the media path as established.
func (c *Call) Connected() error {
	return c.transition("connected", func(s Status) (Status, EndReason, bool) {
		return StatusConnected, ReasonNone, s == StatusConnecting
	})
}

// Reject declines a ringing call.
func (c *Call) Reject() error {
	return c.transition("reject", func(s Status) (Status, EndReason, bool) {
		return StatusRejected, ReasonRejected, s == StatusRinging
	})
}

// End hangs up. A call that is still ringing becomes unanswered.
func (c *Call) End() error {
	return c.transition("end", func(s Status) (Status, EndReason, bool) {
		if s == StatusRinging {
			return StatusUnanswered, ReasonUnanswered, true
		}
		return StatusEnded, ReasonHangup, !s.Terminal()
	})
}

// Fail ends the call after a connection failure.
func (c *Call) Fail() error {
	return c.transition("fail", func(s Status) (Status, EndReason, bool) {
		return StatusEnded, ReasonFailed, !s.Terminal()
	})
}

// PeerLeft ends the call because the other participant went away.
func (c *Call) PeerLeft() error {
	return c.transition("peer left", func(s Status) (Status, EndReason, bool) {
		if s == StatusRinging {
			return StatusUnanswered, ReasonPeerLeft, true
		}
		return StatusEnded, ReasonPeerLeft, !s.Terminal()
	})
}

func (c *Call) transition(op string, next func(Status) (Status, EndReason, bool)) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	to, reason, ok := next(c.status)
	if !ok {
		return WrapError(op, ErrInvalidTransition, "call is "+string(c.status))
	}

	now := time.Now()
	c.status = to
	switch {
	case to == StatusConnected:
		c.connectedAt = now
	case to.Terminal():
		c.endedAt = now
		c.reason = reason
	}
	return nil
}

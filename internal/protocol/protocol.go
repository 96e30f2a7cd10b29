package protocol

import "encoding/json"

// Message is the frame exchanged over the signaling websocket in both
// directions. Payload is decoded according to Type.
type Message struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Message type constants.
const (
	// Client to server
	TypeJoinCall  = "join-call"
	TypeLeaveCall = "leave-call"
	TypeSignal    = "signal"

	// Server to client
	TypeUserJoined = "user-joined"
	TypePeerLeft   = "peer-left"
)

// Kind tags the payload carried by a signal.
type Kind string

const (
	KindOffer        Kind = "offer"
	KindAnswer       Kind = "answer"
	KindICECandidate Kind = "ice-candidate"
)

// Legacy values of the "from" field used by browser clients that predate
// the kind field.
const (
	LegacyFromOffer  = "offer"
	LegacyFromAnswer = "answer"
	LegacyFromICE    = "ice"
)

// JoinCall is the payload of a join-call request.
type JoinCall struct {
	CallID string `json:"callId"`
	UserID string `json:"userId"`
}

// LeaveCall is the payload of a leave-call request.
type LeaveCall struct {
	CallID string `json:"callId"`
}

// UserJoined is sent to existing room members when a participant joins.
type UserJoined struct {
	UserID string `json:"userId"`
	CallID string `json:"callId,omitempty"`
}

// PeerLeft is sent to remaining room members when a participant leaves
// or its connection closes.
type PeerLeft struct {
	UserID string `json:"userId"`
	CallID string `json:"callId,omitempty"`
}

// SignalRoute is the only part of a signal the relay reads. The rest of
// the payload is forwarded byte for byte.
type SignalRoute struct {
	CallID string `json:"callId"`
}

// SignalEnvelope is the routed unit. Data is never interpreted by the relay.
type SignalEnvelope struct {
	CallID   string          `json:"callId"`
	From     string          `json:"from,omitempty"`
	To       string          `json:"to,omitempty"`
	Kind     Kind            `json:"kind,omitempty"`
	SenderID string          `json:"senderId,omitempty"`
	Data     json.RawMessage `json:"data,omitempty"`
}

// ResolvedKind returns the payload kind, falling back to the legacy
// overloaded "from" tag when Kind is not set. It returns "" when neither
// identifies the payload.
func (e *SignalEnvelope) ResolvedKind() Kind {
	if e.Kind != "" {
		return e.Kind
	}
	switch e.From {
	case LegacyFromOffer:
		return KindOffer
	case LegacyFromAnswer:
		return KindAnswer
	case LegacyFromICE:
		return KindICECandidate
	}
	return ""
}

// LegacyFrom returns the "from" tag older clients expect for a kind.
func LegacyFrom(k Kind) string {
	switch k {
	case KindOffer:
		return LegacyFromOffer
	case KindAnswer:
		return LegacyFromAnswer
	case KindICECandidate:
		return LegacyFromICE
	}
	return ""
}

// NewMessage marshals payload into a Message of the given type.
func NewMessage(t string, payload any) (*Message, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return &Message{Type: t, Payload: b}, nil
}

// DecodePayload decodes the message payload into v.
func (m *Message) DecodePayload(v any) error {
	return json.Unmarshal(m.Payload, v)
}

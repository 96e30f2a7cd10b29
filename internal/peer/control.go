package peer

import "github.com/vmihailenco/msgpack/v5"

// Control message types carried on the control data channel.
const (
	ControlHangup = "hangup"
	ControlMute   = "mute"
)

// controlChannelID is the pre-negotiated stream id of the control channel.
const controlChannelID uint16 = 0

const controlChannelLabel = "control"

// Control is a message on the control data channel.
type Control struct {
	Type    string             `msgpack:"type"`
	Payload msgpack.RawMessage `msgpack:"payload,omitempty"`
}

// MutePayload reports that the sender muted or unmuted a track kind.
type MutePayload struct {
	Kind  string `msgpack:"kind"`
	Muted bool   `msgpack:"muted"`
}

// NewControl creates a control message with an encoded payload. A nil
// payload is left empty.
func NewControl(t string, payload any) (Control, error) {
	if payload == nil {
		return Control{Type: t}, nil
	}
	b, err := msgpack.Marshal(payload)
	if err != nil {
		return Control{}, err
	}
	return Control{Type: t, Payload: b}, nil
}

// DecodePayload decodes the message payload into v.
func (c Control) DecodePayload(v any) error {
	return msgpack.Unmarshal(c.Payload, v)
}

package peer

import "github.com/vmihailenco/msgpack/v5"

// Message types carried on the data channel.
const (
	TypeDeviceInfo = "device_info"
	TypeNote       = "note"
	TypeBye        = "bye"
)

// Message represents all data channel messages.
type Message struct {
	Type    string             `msgpack:"type"`
	Payload msgpack.RawMessage `msgpack:"payload,omitempty"`
}

// DeviceInfoPayload is exchanged as soon as the channel opens.
type DeviceInfoPayload struct {
	DeviceName    string `msgpack:"deviceName"`
	DeviceVersion string `msgpack:"deviceVersion"`
	SenderID      string `msgpack:"senderId"`
}

// NotePayload is a direct peer-to-peer text that never touches the relay
// or the chat history.
type NotePayload struct {
	Text string `msgpack:"text"`
}

// DecodePayload decodes the message payload into v.
func (m Message) DecodePayload(v any) error {
	return msgpack.Unmarshal(m.Payload, v)
}

// NewMessage creates a Message with the given type and payload. A nil
// payload leaves Payload empty.
func NewMessage(t string, payload any) (Message, error) {
	if payload == nil {
		return Message{Type: t}, nil
	}
	b, err := msgpack.Marshal(payload)
	if err != nil {
		return Message{}, err
	}
	return Message{Type: t, Payload: b}, nil
}

func (m Message) encode() ([]byte, error) {
	return msgpack.Marshal(m)
}

func decodeMessage(data []byte) (Message, error) {
	var m Message
	err := msgpack.Unmarshal(data, &m)
	return m, err
}

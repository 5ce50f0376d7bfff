package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrMalformedEnvelope is returned by Decode when the tag is missing or the
// payload does not match the shape the tag requires.
var ErrMalformedEnvelope = errors.New("malformed envelope")

// Envelope is the frame format used in both directions
type Envelope struct {
	Type    MessageType     `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Message is a decoded envelope. Payload holds a pointer to the payload struct
// registered for Type, or Unknown for unrecognised tags.
type Message struct {
	Type    MessageType
	Payload any
}

// IsUnknown reports whether the tag was not recognised
func (m Message) IsUnknown() bool {
	_, ok := m.Payload.(Unknown)
	return ok
}

type validator interface {
	validate() error
}

var payloadFactories = map[MessageType]func() any{
	TypeWatchRequest:        func() any { return &WatchRequestPayload{} },
	TypePatch:               func() any { return &PatchPayload{} },
	TypeDeleteRequest:       func() any { return &DeleteRequestPayload{} },
	TypeContainersStateList: func() any { return &ContainersStateListPayload{} },
	TypeContainersRemoved:   func() any { return &ContainersRemovedPayload{} },
	TypePatchReceived:       func() any { return &PatchReceivedPayload{} },
	TypeUpdate:              func() any { return &UpdatePayload{} },
	TypeDeleted:             func() any { return &DeletedPayload{} },
	TypeError:               func() any { return &ErrorPayload{} },
	TypePresenceJoin:        func() any { return &PresencePayload{} },
	TypePresenceLeave:       func() any { return &PresencePayload{} },
	TypePing:                func() any { return &PingPayload{} },
	TypePong:                func() any { return &PingPayload{} },
}

// Encode serializes a typed payload into a frame
func Encode(t MessageType, payload any) ([]byte, error) {
	if t == "" {
		return nil, fmt.Errorf("encode: %w: empty type", ErrMalformedEnvelope)
	}
	var raw json.RawMessage
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encode %s payload: %w", t, err)
		}
		raw = b
	}
	return json.Marshal(Envelope{Type: t, Payload: raw})
}

// MustEncode is Encode for payloads that are known to marshal
func MustEncode(t MessageType, payload any) []byte {
	b, err := Encode(t, payload)
	if err != nil {
		panic(err)
	}
	return b
}

// Decode parses a frame. Unknown tags decode successfully into Unknown.
func Decode(data []byte) (Message, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Message{}, fmt.Errorf("%w: %v", ErrMalformedEnvelope, err)
	}
	if env.Type == "" {
		return Message{}, fmt.Errorf("%w: missing type", ErrMalformedEnvelope)
	}

	factory, ok := payloadFactories[env.Type]
	if !ok {
		return Message{Type: env.Type, Payload: Unknown{Raw: data}}, nil
	}

	payload := factory()
	raw := bytes.TrimSpace(env.Payload)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		raw = []byte("{}")
	}
	if err := json.Unmarshal(raw, payload); err != nil {
		return Message{}, fmt.Errorf("%w: %s payload: %v", ErrMalformedEnvelope, env.Type, err)
	}
	if v, ok := payload.(validator); ok {
		if err := v.validate(); err != nil {
			return Message{}, fmt.Errorf("%w: %s payload: %v", ErrMalformedEnvelope, env.Type, err)
		}
	}

	return Message{Type: env.Type, Payload: payload}, nil
}

// NewError builds an error frame
func NewError(code, message, resourceID string) []byte {
	return MustEncode(TypeError, ErrorPayload{Code: code, Message: message, ResourceID: resourceID})
}

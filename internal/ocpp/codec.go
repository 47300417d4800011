package ocpp

import (
	"encoding/json"
	"errors"
	"fmt"
)

// OCPP-J message type identifiers.
type MessageType int

const (
	Call       MessageType = 2
	CallResult MessageType = 3
	CallError  MessageType = 4
)

var (
	ErrMalformedFrame = errors.New("malformed frame")
	ErrUnknownType    = errors.New("unknown message type")
)

// Frame is one decoded OCPP-J message. For frames that arrived inside a
// forwarding envelope, Meta carries the envelope's meta object and Raw
// still holds the bare inner array, so re-forwarding preserves both.
type Frame struct {
	Type      MessageType
	MessageID string

	// Call only.
	Action string

	// Call and CallResult.
	Payload json.RawMessage

	// CallError only.
	ErrorCode        string
	ErrorDescription string
	ErrorDetails     json.RawMessage

	// Meta from a forwarding envelope, nil for bare frames.
	Meta json.RawMessage

	// Raw is the bare array frame as received (envelope stripped).
	Raw []byte
}

// forwardEnvelope wraps a frame relayed between gateway nodes.
type forwardEnvelope struct {
	Ocpp json.RawMessage `json:"ocpp"`
	Meta json.RawMessage `json:"meta,omitempty"`
}

// Decode parses a wire frame. It transparently unwraps the forwarding
// envelope shape {"ocpp": [...], "meta": {...}}. Callers drop frames
// that fail to decode; devices send garbage often enough that a decode
// failure is not an error condition for the connection.
func Decode(data []byte) (*Frame, error) {
	var parts []json.RawMessage
	if err := json.Unmarshal(data, &parts); err != nil {
		// Not an array: try the forwarding envelope.
		var env forwardEnvelope
		if err := json.Unmarshal(data, &env); err != nil || len(env.Ocpp) == 0 {
			return nil, ErrMalformedFrame
		}
		frame, err := Decode(env.Ocpp)
		if err != nil {
			return nil, err
		}
		frame.Meta = env.Meta
		return frame, nil
	}

	if len(parts) < 3 {
		return nil, ErrMalformedFrame
	}

	var msgType MessageType
	if err := json.Unmarshal(parts[0], &msgType); err != nil {
		return nil, ErrMalformedFrame
	}

	var messageID string
	if err := json.Unmarshal(parts[1], &messageID); err != nil || messageID == "" {
		return nil, ErrMalformedFrame
	}

	frame := &Frame{Type: msgType, MessageID: messageID, Raw: data}

	switch msgType {
	case Call:
		if len(parts) < 4 {
			return nil, ErrMalformedFrame
		}
		if err := json.Unmarshal(parts[2], &frame.Action); err != nil || frame.Action == "" {
			return nil, ErrMalformedFrame
		}
		frame.Payload = parts[3]

	case CallResult:
		frame.Payload = parts[2]

	case CallError:
		if err := json.Unmarshal(parts[2], &frame.ErrorCode); err != nil {
			return nil, ErrMalformedFrame
		}
		if len(parts) > 3 {
			if err := json.Unmarshal(parts[3], &frame.ErrorDescription); err != nil {
				return nil, ErrMalformedFrame
			}
		}
		if len(parts) > 4 {
			frame.ErrorDetails = parts[4]
		}

	default:
		return nil, ErrUnknownType
	}

	return frame, nil
}

// EncodeCall builds a Call frame [2, messageId, action, payload].
func EncodeCall(messageID string, action Action, payload interface{}) ([]byte, error) {
	if payload == nil {
		payload = map[string]interface{}{}
	}
	data, err := json.Marshal([]interface{}{int(Call), messageID, string(action), payload})
	if err != nil {
		return nil, fmt.Errorf("encode call %s: %w", action, err)
	}
	return data, nil
}

// EncodeCallResult builds a CallResult frame [3, messageId, payload].
func EncodeCallResult(messageID string, payload interface{}) ([]byte, error) {
	if payload == nil {
		payload = map[string]interface{}{}
	}
	data, err := json.Marshal([]interface{}{int(CallResult), messageID, payload})
	if err != nil {
		return nil, fmt.Errorf("encode call result: %w", err)
	}
	return data, nil
}

// EncodeCallError builds a CallError frame [4, messageId, code, description, details].
func EncodeCallError(messageID, code, description string, details interface{}) ([]byte, error) {
	if details == nil {
		details = map[string]interface{}{}
	}
	data, err := json.Marshal([]interface{}{int(CallError), messageID, code, description, details})
	if err != nil {
		return nil, fmt.Errorf("encode call error: %w", err)
	}
	return data, nil
}

// WrapForward wraps a bare frame in the forwarding envelope used when
// relaying messages between gateway nodes.
func WrapForward(raw []byte, meta interface{}) ([]byte, error) {
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return nil, fmt.Errorf("encode forward meta: %w", err)
	}
	return json.Marshal(forwardEnvelope{Ocpp: raw, Meta: metaJSON})
}

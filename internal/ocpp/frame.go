// Package ocpp implements the OCPP-J 1.6 wire format: array-framed Call,
// CallResult and CallError messages, the RPC error code table, and the
// request/response payload schemas exchanged with charge stations.
package ocpp

import (
	"encoding/json"
	"errors"
	"fmt"
)

// MessageType discriminates the three OCPP-J frame shapes.
type MessageType int

const (
	CallMessage       MessageType = 2
	CallResultMessage MessageType = 3
	CallErrorMessage  MessageType = 4
)

// ErrMalformedFrame is returned by Decode for anything that is not a valid
// OCPP-J array frame.
var ErrMalformedFrame = errors.New("malformed ocpp frame")

// Frame is a decoded OCPP-J message. MessageID holds the raw JSON token as it
// appeared on the wire, quotes included, so that replies can reuse it without
// guessing its original quoting. Payload is kept as raw JSON.
type Frame struct {
	Type             MessageType
	MessageID        string
	Action           string
	Payload          json.RawMessage
	ErrorCode        ErrorCode
	ErrorDescription string
	ErrorDetails     json.RawMessage
}

// Decode parses a wire frame into a Frame. The payload is not validated
// against any action schema here; that is the dispatcher's job.
func Decode(data []byte) (*Frame, error) {
	var parts []json.RawMessage
	if err := json.Unmarshal(data, &parts); err != nil {
		return nil, fmt.Errorf("%w: not a JSON array: %v", ErrMalformedFrame, err)
	}
	if len(parts) < 3 {
		return nil, fmt.Errorf("%w: %d elements", ErrMalformedFrame, len(parts))
	}

	var msgType int
	if err := json.Unmarshal(parts[0], &msgType); err != nil {
		return nil, fmt.Errorf("%w: message type is not a number", ErrMalformedFrame)
	}

	f := &Frame{
		Type:      MessageType(msgType),
		MessageID: string(parts[1]),
	}

	switch f.Type {
	case CallMessage:
		if len(parts) != 4 {
			return nil, fmt.Errorf("%w: call needs 4 elements, got %d", ErrMalformedFrame, len(parts))
		}
		if err := json.Unmarshal(parts[2], &f.Action); err != nil {
			return nil, fmt.Errorf("%w: action is not a string", ErrMalformedFrame)
		}
		f.Payload = parts[3]
	case CallResultMessage:
		if len(parts) != 3 {
			return nil, fmt.Errorf("%w: call result needs 3 elements, got %d", ErrMalformedFrame, len(parts))
		}
		f.Payload = parts[2]
	case CallErrorMessage:
		if len(parts) != 5 {
			return nil, fmt.Errorf("%w: call error needs 5 elements, got %d", ErrMalformedFrame, len(parts))
		}
		var code string
		if err := json.Unmarshal(parts[2], &code); err != nil {
			return nil, fmt.Errorf("%w: error code is not a string", ErrMalformedFrame)
		}
		f.ErrorCode = ErrorCode(code)
		if err := json.Unmarshal(parts[3], &f.ErrorDescription); err != nil {
			return nil, fmt.Errorf("%w: error description is not a string", ErrMalformedFrame)
		}
		f.ErrorDetails = parts[4]
	default:
		return nil, fmt.Errorf("%w: unknown message type %d", ErrMalformedFrame, msgType)
	}
	return f, nil
}

// Encode renders the frame back to wire text. It is the inverse of Decode.
func (f *Frame) Encode() string {
	switch f.Type {
	case CallResultMessage:
		return WrapCallResult(f.MessageID, f.Payload)
	case CallErrorMessage:
		return WrapCallError(f.MessageID, f.ErrorCode, f.ErrorDetails)
	default:
		return WrapCall(f.MessageID, f.Action, f.Payload)
	}
}

// BestEffortMessageID pulls the second array element out of a frame that
// failed to decode, so a CallError can still reference it. Returns the raw
// token, or the empty string when even that much cannot be recovered.
func BestEffortMessageID(data []byte) string {
	var parts []json.RawMessage
	if err := json.Unmarshal(data, &parts); err != nil || len(parts) < 2 {
		return ""
	}
	return string(parts[1])
}

// UnquoteID strips one level of JSON string quoting from a raw MessageID
// token. Tokens without surrounding quotes pass through unchanged.
func UnquoteID(raw string) string {
	if len(raw) >= 2 && raw[0] == '"' && raw[len(raw)-1] == '"' {
		return raw[1 : len(raw)-1]
	}
	return raw
}

// quoteToken adds quotes around a token unless it already carries them, so
// wrapping is idempotent with respect to quoting.
func quoteToken(s string) string {
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		return s
	}
	return `"` + s + `"`
}

// WrapCall builds a `[2,"<id>","<action>",<payload>]` frame. MessageID and
// action may arrive quoted or unquoted; the output carries exactly one level
// of quoting. A nil payload is rendered as an empty object.
func WrapCall(messageID, action string, payload json.RawMessage) string {
	if len(payload) == 0 {
		payload = json.RawMessage("{}")
	}
	return fmt.Sprintf("[2,%s,%s,%s]", quoteToken(messageID), quoteToken(action), payload)
}

// WrapCallResult builds a `[3,"<id>",<payload>]` frame.
func WrapCallResult(messageID string, payload json.RawMessage) string {
	if len(payload) == 0 {
		payload = json.RawMessage("{}")
	}
	return fmt.Sprintf("[3,%s,%s]", quoteToken(messageID), payload)
}

// WrapCallError builds a `[4,"<id>","<code>","<description>",<details>]`
// frame. The description always comes from the fixed error code table.
func WrapCallError(messageID string, code ErrorCode, details json.RawMessage) string {
	if len(details) == 0 {
		details = json.RawMessage("{}")
	}
	desc, _ := json.Marshal(code.Description())
	return fmt.Sprintf("[4,%s,%q,%s,%s]", quoteToken(messageID), string(code), desc, details)
}

// ErrorDetailsText marshals a diagnostic string into a details element.
func ErrorDetailsText(text string) json.RawMessage {
	b, _ := json.Marshal(text)
	return b
}

// Package jsonrpc models the JSON-RPC 2.0 frames exchanged on the MCP
// stdio transport. Raw JSON is preserved wherever possible so that
// forwarded frames stay byte-identical to what the caller sent.
package jsonrpc

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Version is the only protocol version MCP speaks.
const Version = "2.0"

// JSON-RPC 2.0 error codes used by the filter.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeInvalidParams  = -32602
)

var (
	ErrInvalidJSON    = errors.New("jsonrpc: invalid JSON")
	ErrInvalidVersion = errors.New("jsonrpc: version must be 2.0")
)

// Message is a single JSON-RPC 2.0 frame: request, notification, or
// response, depending on which fields are populated.
type Message struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
	ID      json.RawMessage `json:"id,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
}

// Error is the JSON-RPC 2.0 error object.
type Error struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("jsonrpc error %d: %s", e.Code, e.Message)
}

// MessageType classifies a frame by its populated fields.
type MessageType int

const (
	TypeUnknown MessageType = iota
	TypeRequest
	TypeNotification
	TypeResponse
)

func (t MessageType) String() string {
	switch t {
	case TypeRequest:
		return "request"
	case TypeNotification:
		return "notification"
	case TypeResponse:
		return "response"
	default:
		return "unknown"
	}
}

// Type returns the frame's classification. A frame with a result or
// error is a response; with a method and id, a request; with a method
// and no id, a notification.
func (m *Message) Type() MessageType {
	if len(m.Result) > 0 || m.Error != nil {
		return TypeResponse
	}
	hasID := len(m.ID) > 0 && string(m.ID) != "null"
	switch {
	case m.Method != "" && hasID:
		return TypeRequest
	case m.Method != "":
		return TypeNotification
	default:
		return TypeUnknown
	}
}

// Parse decodes a single frame and checks the protocol version.
func Parse(data []byte) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidJSON, err)
	}
	if msg.JSONRPC != Version {
		return nil, ErrInvalidVersion
	}
	return &msg, nil
}

// ExtractID attempts to recover the id field from a frame that failed
// to parse as a Message, so a correlated error can still be returned.
// Returns nil when no id is recoverable.
func ExtractID(data []byte) json.RawMessage {
	var probe struct {
		ID json.RawMessage `json:"id"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil
	}
	if len(probe.ID) == 0 || string(probe.ID) == "null" {
		return nil
	}
	return probe.ID
}

// NewResult builds a success response correlated to id.
func NewResult(id json.RawMessage, result any) (*Message, error) {
	r, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("encode result: %w", err)
	}
	return &Message{JSONRPC: Version, ID: id, Result: r}, nil
}

// NewError builds an error response correlated to id.
func NewError(id json.RawMessage, code int, message string) *Message {
	return &Message{
		JSONRPC: Version,
		ID:      id,
		Error:   &Error{Code: code, Message: message},
	}
}

// Encode serializes a frame without the newline delimiter; the stream
// writer owns framing.
func Encode(msg *Message) ([]byte, error) {
	return json.Marshal(msg)
}

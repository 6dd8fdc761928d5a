package jsonrpc

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Version is the JSON-RPC protocol version spoken on both sides of the proxy.
const Version = "2.0"

// Standard JSON-RPC 2.0 error codes used at the client-facing boundary.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
)

// MessageType represents the type of JSON-RPC message.
type MessageType string

const (
	MessageTypeRequest      MessageType = "request"
	MessageTypeResponse     MessageType = "response"
	MessageTypeNotification MessageType = "notification"
	MessageTypeError        MessageType = "error"
)

// ErrorObject contains details about a JSON-RPC error reply.
type ErrorObject struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// Message is a decoded JSON-RPC 2.0 message. The ID is kept raw so the
// proxy can correlate replies without caring whether the peer uses numeric
// or string identifiers.
type Message struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *ErrorObject    `json:"error,omitempty"`
}

// Parse decodes raw bytes into a Message and validates the protocol version.
func Parse(data []byte) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("invalid JSON-RPC message: %w", err)
	}
	if msg.JSONRPC != Version {
		return nil, fmt.Errorf("unsupported JSON-RPC version: %q", msg.JSONRPC)
	}
	if msg.Method == "" && msg.Result == nil && msg.Error == nil && msg.ID == nil {
		return nil, fmt.Errorf("cannot determine JSON-RPC message type")
	}
	return &msg, nil
}

// Type classifies the message following JSON-RPC 2.0 rules.
func (m *Message) Type() MessageType {
	switch {
	case m.Error != nil:
		return MessageTypeError
	case m.Method != "" && m.ID != nil:
		return MessageTypeRequest
	case m.Method != "":
		return MessageTypeNotification
	default:
		return MessageTypeResponse
	}
}

// IsRequest returns true if this is a request message.
func (m *Message) IsRequest() bool { return m.Type() == MessageTypeRequest }

// IsNotification returns true if this is a notification message.
func (m *Message) IsNotification() bool { return m.Type() == MessageTypeNotification }

// IsReply returns true if this message answers an outstanding request,
// either with a result or with an error object.
func (m *Message) IsReply() bool {
	t := m.Type()
	return t == MessageTypeResponse || t == MessageTypeError
}

// IDEquals compares the message's raw identifier against another raw
// identifier, tolerating insignificant whitespace differences.
func (m *Message) IDEquals(id json.RawMessage) bool {
	if m.ID == nil || id == nil {
		return false
	}
	return bytes.Equal(bytes.TrimSpace(m.ID), bytes.TrimSpace(id))
}

// NewRequest builds a request message. The id must marshal to a JSON
// number or string.
func NewRequest(id interface{}, method string, params interface{}) (*Message, error) {
	rawID, err := json.Marshal(id)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request id: %w", err)
	}

	msg := &Message{JSONRPC: Version, ID: rawID, Method: method}
	if params != nil {
		rawParams, err := json.Marshal(params)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request params: %w", err)
		}
		msg.Params = rawParams
	}
	return msg, nil
}

// NewNotification builds a notification message (no reply expected).
func NewNotification(method string, params interface{}) (*Message, error) {
	msg := &Message{JSONRPC: Version, Method: method}
	if params != nil {
		rawParams, err := json.Marshal(params)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal notification params: %w", err)
		}
		msg.Params = rawParams
	}
	return msg, nil
}

// NewResult builds a success reply for the given request id.
func NewResult(id json.RawMessage, result interface{}) (*Message, error) {
	rawResult, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal result: %w", err)
	}
	return &Message{JSONRPC: Version, ID: id, Result: rawResult}, nil
}

// NewError builds an error reply for the given request id.
func NewError(id json.RawMessage, code int, message string) *Message {
	return &Message{
		JSONRPC: Version,
		ID:      id,
		Error:   &ErrorObject{Code: code, Message: message},
	}
}

// Encode marshals the message and appends the record separator so it can
// be written directly to a newline-delimited stream.
func (m *Message) Encode() ([]byte, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("failed to encode JSON-RPC message: %w", err)
	}
	return append(data, '\n'), nil
}

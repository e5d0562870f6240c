// Package jsonrpc implements the newline-delimited JSON-RPC 2.0 wire format
// spoken by MCP servers over stdio: one JSON object per line, requests
// correlated to responses by id.
package jsonrpc

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// Version is the fixed protocol identifier carried by every message.
const Version = "2.0"

// Kind classifies a decoded message.
type Kind int

const (
	KindRequest Kind = iota
	KindResponse
	KindNotification
)

func (k Kind) String() string {
	switch k {
	case KindRequest:
		return "request"
	case KindResponse:
		return "response"
	case KindNotification:
		return "notification"
	default:
		return "unknown"
	}
}

// ID is a JSON-RPC request id. The protocol allows integers and strings;
// this client only ever emits integers but must accept either on decode.
type ID struct {
	num   int64
	str   string
	isStr bool
	valid bool
}

// NewID returns an integer id.
func NewID(n int64) ID { return ID{num: n, valid: true} }

// StringID returns a string id.
func StringID(s string) ID { return ID{str: s, isStr: true, valid: true} }

// Valid reports whether the id was present on the wire (or set at all).
func (id ID) Valid() bool { return id.valid }

// Equal reports whether two ids match in both type and value.
func (id ID) Equal(other ID) bool {
	if !id.valid || !other.valid || id.isStr != other.isStr {
		return id.valid == other.valid && !id.valid
	}
	if id.isStr {
		return id.str == other.str
	}
	return id.num == other.num
}

func (id ID) String() string {
	if !id.valid {
		return "<none>"
	}
	if id.isStr {
		return id.str
	}
	return strconv.FormatInt(id.num, 10)
}

// MarshalJSON encodes the id as a JSON number or string.
func (id ID) MarshalJSON() ([]byte, error) {
	if !id.valid {
		return []byte("null"), nil
	}
	if id.isStr {
		return json.Marshal(id.str)
	}
	return strconv.AppendInt(nil, id.num, 10), nil
}

// UnmarshalJSON accepts an integer or string id; null leaves the id unset.
func (id *ID) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*id = ID{}
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*id = StringID(s)
		return nil
	}
	n, err := strconv.ParseInt(string(b), 10, 64)
	if err != nil {
		return fmt.Errorf("id must be an integer or string: %w", err)
	}
	*id = NewID(n)
	return nil
}

// Error is the error member of a response.
type Error struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("jsonrpc error %d: %s", e.Code, e.Message)
}

// Message is one JSON-RPC message: a request, response, or notification.
// Messages built by DecodeLine keep the original line so unknown fields
// survive re-encoding untouched.
type Message struct {
	ID     ID
	Method string
	Params json.RawMessage
	Result json.RawMessage
	Error  *Error

	raw []byte
}

// Kind classifies the message by shape. Requests carry a method and an id,
// notifications a method without an id, responses an id with result or error.
func (m *Message) Kind() Kind {
	if m.Method != "" {
		if m.ID.Valid() {
			return KindRequest
		}
		return KindNotification
	}
	return KindResponse
}

// NewRequest builds a request. A nil params value omits the params member
// entirely, matching servers that reject "params": null.
func NewRequest(id ID, method string, params any) (*Message, error) {
	m := &Message{ID: id, Method: method}
	if params != nil {
		b, err := json.Marshal(params)
		if err != nil {
			return nil, fmt.Errorf("marshal params for %s: %w", method, err)
		}
		m.Params = b
	}
	return m, nil
}

// NewNotification builds a notification (a request without an id).
func NewNotification(method string, params any) (*Message, error) {
	m, err := NewRequest(ID{}, method, params)
	if err != nil {
		return nil, err
	}
	return m, nil
}

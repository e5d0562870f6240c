package jsonrpc

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrMalformed reports an inbound line that is not a recognizable JSON-RPC
// message. Once seen, the stream can no longer be trusted.
var ErrMalformed = errors.New("malformed jsonrpc message")

// wire is the envelope used for both directions. Pointers and omitempty keep
// absent members absent: a notification has no id, a request no result.
type wire struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      *ID             `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
}

// EncodeLine serializes m to a single line of JSON without the trailing
// newline. Messages that came from DecodeLine re-encode as their original
// bytes so fields this package does not model pass through intact.
func EncodeLine(m *Message) ([]byte, error) {
	if m.raw != nil {
		return m.raw, nil
	}
	w := wire{JSONRPC: Version, Method: m.Method, Params: m.Params, Result: m.Result, Error: m.Error}
	if m.ID.Valid() {
		id := m.ID
		w.ID = &id
	}
	b, err := json.Marshal(w)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", m.Kind(), err)
	}
	return b, nil
}

// DecodeLine parses one line into a Message. It returns ErrMalformed when the
// line is not valid JSON or has no recognizable request/response/notification
// shape. Unknown fields are retained via the raw line.
func DecodeLine(line []byte) (*Message, error) {
	line = bytes.TrimSpace(line)
	if len(line) == 0 {
		return nil, fmt.Errorf("%w: empty line", ErrMalformed)
	}
	var w wire
	if err := json.Unmarshal(line, &w); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	m := &Message{Method: w.Method, Params: w.Params, Result: w.Result, Error: w.Error}
	if w.ID != nil {
		m.ID = *w.ID
	}
	switch {
	case m.Method != "":
		// Request or notification from the peer.
	case m.ID.Valid() && (m.Result != nil || m.Error != nil):
		// Response.
	default:
		return nil, fmt.Errorf("%w: no method, result or error", ErrMalformed)
	}
	m.raw = append([]byte(nil), line...)
	return m, nil
}

package jsonrpc

import (
	"bytes"
	"errors"
	"testing"
)

func TestRequestRoundTrip(t *testing.T) {
	req, err := NewRequest(NewID(5), "tools/call", map[string]any{
		"name":      "search",
		"arguments": map[string]any{"query": "go", "limit": 3},
	})
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	line, err := EncodeLine(req)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if bytes.ContainsRune(line, '\n') {
		t.Fatalf("encoded line contains newline: %q", line)
	}
	got, err := DecodeLine(line)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Kind() != KindRequest {
		t.Fatalf("kind = %s, want request", got.Kind())
	}
	if !got.ID.Equal(req.ID) || got.Method != req.Method {
		t.Fatalf("id/method changed: %s %s", got.ID, got.Method)
	}
	if string(got.Params) != string(req.Params) {
		t.Fatalf("params changed: %s != %s", got.Params, req.Params)
	}
}

func TestResponseRoundTrip(t *testing.T) {
	line := []byte(`{"jsonrpc":"2.0","id":"abc","result":{"tools":[{"name":"a"}]}}`)
	msg, err := DecodeLine(line)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if msg.Kind() != KindResponse {
		t.Fatalf("kind = %s, want response", msg.Kind())
	}
	if !msg.ID.Equal(StringID("abc")) {
		t.Fatalf("id = %s", msg.ID)
	}
	if string(msg.Result) != `{"tools":[{"name":"a"}]}` {
		t.Fatalf("result = %s", msg.Result)
	}
}

func TestErrorResponse(t *testing.T) {
	msg, err := DecodeLine([]byte(`{"jsonrpc":"2.0","id":3,"error":{"code":-32601,"message":"Method not found"}}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if msg.Error == nil || msg.Error.Code != -32601 || msg.Error.Message != "Method not found" {
		t.Fatalf("error member = %+v", msg.Error)
	}
}

func TestUnknownFieldsPassThrough(t *testing.T) {
	line := []byte(`{"jsonrpc":"2.0","id":1,"result":{},"_meta":{"trace":"xyz"}}`)
	msg, err := DecodeLine(line)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	out, err := EncodeLine(msg)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if !bytes.Equal(out, line) {
		t.Fatalf("re-encode dropped fields: %s", out)
	}
}

func TestNotificationShape(t *testing.T) {
	msg, err := DecodeLine([]byte(`{"jsonrpc":"2.0","method":"notifications/progress","params":{"p":1}}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if msg.Kind() != KindNotification {
		t.Fatalf("kind = %s, want notification", msg.Kind())
	}

	n, err := NewNotification("notifications/initialized", nil)
	if err != nil {
		t.Fatalf("new notification: %v", err)
	}
	line, err := EncodeLine(n)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if string(line) != `{"jsonrpc":"2.0","method":"notifications/initialized"}` {
		t.Fatalf("line = %s", line)
	}
}

func TestRequestWithoutParamsOmitsMember(t *testing.T) {
	req, err := NewRequest(NewID(2), "tools/list", nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	line, err := EncodeLine(req)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if string(line) != `{"jsonrpc":"2.0","id":2,"method":"tools/list"}` {
		t.Fatalf("line = %s", line)
	}
}

func TestDecodeMalformed(t *testing.T) {
	cases := []string{
		``,
		`   `,
		`not json at all`,
		`{}`,
		`{"jsonrpc":"2.0","id":5}`,
		`{"jsonrpc":"2.0","id":1.5,"result":{}}`,
		`[1,2,3]`,
	}
	for _, c := range cases {
		if _, err := DecodeLine([]byte(c)); !errors.Is(err, ErrMalformed) {
			t.Fatalf("DecodeLine(%q) = %v, want ErrMalformed", c, err)
		}
	}
}

func TestIDEquality(t *testing.T) {
	if NewID(1).Equal(StringID("1")) {
		t.Fatal("integer and string ids must not compare equal")
	}
	if !NewID(7).Equal(NewID(7)) {
		t.Fatal("equal integer ids must match")
	}
	if NewID(7).Equal(NewID(8)) {
		t.Fatal("different ids must not match")
	}
	var unset ID
	if unset.Valid() {
		t.Fatal("zero ID must be invalid")
	}
	if unset.Equal(NewID(0)) {
		t.Fatal("unset id must not equal a set id")
	}
}

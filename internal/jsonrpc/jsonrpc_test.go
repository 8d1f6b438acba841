package jsonrpc

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestParse_Request(t *testing.T) {
	msg, err := Parse([]byte(`{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"get_me"}}`))
	if err != nil {
		t.Fatal(err)
	}
	if msg.Type() != TypeRequest {
		t.Fatalf("expected request, got %s", msg.Type())
	}
	if msg.Method != "tools/call" {
		t.Fatalf("unexpected method %q", msg.Method)
	}
	if string(msg.ID) != "1" {
		t.Fatalf("unexpected id %s", msg.ID)
	}
}

func TestParse_Notification(t *testing.T) {
	msg, err := Parse([]byte(`{"jsonrpc":"2.0","method":"notifications/initialized"}`))
	if err != nil {
		t.Fatal(err)
	}
	if msg.Type() != TypeNotification {
		t.Fatalf("expected notification, got %s", msg.Type())
	}
}

func TestParse_Response(t *testing.T) {
	msg, err := Parse([]byte(`{"jsonrpc":"2.0","id":"abc","result":{"tools":[]}}`))
	if err != nil {
		t.Fatal(err)
	}
	if msg.Type() != TypeResponse {
		t.Fatalf("expected response, got %s", msg.Type())
	}
}

func TestParse_InvalidJSON(t *testing.T) {
	if _, err := Parse([]byte(`{not json`)); !errors.Is(err, ErrInvalidJSON) {
		t.Fatalf("expected ErrInvalidJSON, got %v", err)
	}
}

func TestParse_WrongVersion(t *testing.T) {
	if _, err := Parse([]byte(`{"jsonrpc":"1.0","id":1,"method":"x"}`)); !errors.Is(err, ErrInvalidVersion) {
		t.Fatalf("expected ErrInvalidVersion, got %v", err)
	}
}

func TestExtractID(t *testing.T) {
	if id := ExtractID([]byte(`{"id":42,"method":"x"}`)); string(id) != "42" {
		t.Fatalf("expected 42, got %s", id)
	}
	if id := ExtractID([]byte(`{"id":"req-1"}`)); string(id) != `"req-1"` {
		t.Fatalf("expected \"req-1\", got %s", id)
	}
	if id := ExtractID([]byte(`{"method":"x"}`)); id != nil {
		t.Fatalf("expected nil for missing id, got %s", id)
	}
	if id := ExtractID([]byte(`garbage`)); id != nil {
		t.Fatalf("expected nil for non-JSON, got %s", id)
	}
}

func TestNewError_Wire(t *testing.T) {
	msg := NewError(json.RawMessage(`7`), CodeInvalidRequest, "Tool 'x' is not permitted")
	data, err := Encode(msg)
	if err != nil {
		t.Fatal(err)
	}
	round, err := Parse(data)
	if err != nil {
		t.Fatal(err)
	}
	if round.Type() != TypeResponse {
		t.Fatalf("expected response, got %s", round.Type())
	}
	if string(round.ID) != "7" {
		t.Fatalf("id not correlated: %s", round.ID)
	}
	if round.Error == nil || round.Error.Code != CodeInvalidRequest {
		t.Fatalf("unexpected error object: %+v", round.Error)
	}
}

func TestNewResult_Wire(t *testing.T) {
	msg, err := NewResult(json.RawMessage(`"abc"`), map[string]any{"ok": true})
	if err != nil {
		t.Fatal(err)
	}
	data, err := Encode(msg)
	if err != nil {
		t.Fatal(err)
	}
	round, err := Parse(data)
	if err != nil {
		t.Fatal(err)
	}
	if string(round.ID) != `"abc"` {
		t.Fatalf("id not correlated: %s", round.ID)
	}
	if len(round.Result) == 0 {
		t.Fatal("missing result")
	}
}

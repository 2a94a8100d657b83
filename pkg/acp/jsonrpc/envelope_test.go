package jsonrpc

import (
	"encoding/json"
	"testing"
)

func TestDecodeRequest(t *testing.T) {
	env, err := Decode(json.RawMessage(`{"jsonrpc":"2.0","id":3,"method":"fs/read_text_file","params":{"path":"/a"}}`))
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if env.Kind != EnvelopeRequest {
		t.Fatalf("Kind = %v, want request", env.Kind)
	}
	if env.Request.Method != "fs/read_text_file" {
		t.Errorf("Method = %q", env.Request.Method)
	}
	if id, ok := env.Request.ID.(int64); !ok || id != 3 {
		t.Errorf("ID = %v (%T), want int64 3", env.Request.ID, env.Request.ID)
	}
}

func TestDecodeStringID(t *testing.T) {
	env, err := Decode(json.RawMessage(`{"jsonrpc":"2.0","id":"abc","method":"m"}`))
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if id, ok := env.Request.ID.(string); !ok || id != "abc" {
		t.Errorf("ID = %v (%T)", env.Request.ID, env.Request.ID)
	}
}

func TestDecodeNotification(t *testing.T) {
	env, err := Decode(json.RawMessage(`{"jsonrpc":"2.0","method":"session/update","params":{}}`))
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if env.Kind != EnvelopeNotification {
		t.Fatalf("Kind = %v, want notification", env.Kind)
	}
	if env.Notification.Method != "session/update" {
		t.Errorf("Method = %q", env.Notification.Method)
	}
}

func TestDecodeResultResponse(t *testing.T) {
	env, err := Decode(json.RawMessage(`{"jsonrpc":"2.0","id":1,"result":{"ok":true}}`))
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if env.Kind != EnvelopeResponse {
		t.Fatalf("Kind = %v, want response", env.Kind)
	}
	if env.Response.Error != nil {
		t.Errorf("unexpected error: %v", env.Response.Error)
	}
}

func TestDecodeErrorResponse(t *testing.T) {
	env, err := Decode(json.RawMessage(`{"jsonrpc":"2.0","id":1,"error":{"code":-32601,"message":"nope"}}`))
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if env.Kind != EnvelopeResponse {
		t.Fatalf("Kind = %v, want response", env.Kind)
	}
	if env.Response.Error == nil || env.Response.Error.Code != MethodNotFound {
		t.Errorf("Error = %+v", env.Response.Error)
	}
}

func TestDecodeNotAnEnvelope(t *testing.T) {
	for _, raw := range []string{`{}`, `{"id":1}`, `{"foo":"bar"}`, `[1,2,3]`, `"hello"`} {
		if _, err := Decode(json.RawMessage(raw)); err == nil {
			t.Errorf("%s: expected an error", raw)
		}
	}
}

func TestDecodeMalformedJSON(t *testing.T) {
	if _, err := Decode(json.RawMessage(`{"truncated`)); err == nil {
		t.Error("expected an error for malformed JSON")
	}
}

func TestNewResponseEmptyResult(t *testing.T) {
	resp, err := NewResponse(1, nil)
	if err != nil {
		t.Fatalf("NewResponse failed: %v", err)
	}
	if string(resp.Result) != "{}" {
		t.Errorf("Result = %s, want {}", resp.Result)
	}
}

func TestRequestRoundTrip(t *testing.T) {
	req, err := NewRequest(int64(9), "terminal/create", map[string]string{"command": "ls"})
	if err != nil {
		t.Fatalf("NewRequest failed: %v", err)
	}
	data, err := json.Marshal(req)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}

	env, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if env.Kind != EnvelopeRequest || env.Request.Method != "terminal/create" {
		t.Errorf("env = %+v", env)
	}
	if id, ok := env.Request.ID.(int64); !ok || id != 9 {
		t.Errorf("ID = %v (%T)", env.Request.ID, env.Request.ID)
	}
}

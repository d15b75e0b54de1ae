package core

import "testing"

func TestRedactSensitiveMapPreservesTraceabilityMetadata(t *testing.T) {
	redacted := RedactSensitiveMap(map[string]any{
		"trace_id":      "trace_1",
		"request_id":    "req_1",
		"event_id":      "evt_1",
		"token_path":    "/oauth/token",
		"access_token":  "secret-token",
		"authorization": "Bearer secret-token",
		"nested":        map[string]any{"client_secret": "shh", "trace_id": "trace_nested"},
		"events":        []any{map[string]any{"api_key": "key_1"}, map[string]any{"event_type": "payment.created"}},
		"headers":       map[string]string{"Authorization": "Basic abc", "Accept": "application/json"},
	})

	if redacted["trace_id"] != "trace_1" || redacted["event_id"] != "evt_1" {
		t.Fatalf("expected traceability keys to remain visible, got %#v", redacted)
	}
	if redacted["token_path"] != "/oauth/token" {
		t.Fatalf("expected token_path to remain visible, got %#v", redacted["token_path"])
	}
	if redacted["access_token"] != RedactedValue || redacted["authorization"] != RedactedValue {
		t.Fatalf("expected credentials to be redacted, got %#v", redacted)
	}
	nested, ok := redacted["nested"].(map[string]any)
	if !ok {
		t.Fatalf("expected nested redacted map")
	}
	if nested["client_secret"] != RedactedValue {
		t.Fatalf("expected nested client_secret to be redacted, got %#v", nested["client_secret"])
	}
	if nested["trace_id"] != "trace_nested" {
		t.Fatalf("expected nested trace_id to remain visible, got %#v", nested["trace_id"])
	}
	events, ok := redacted["events"].([]any)
	if !ok || events[0].(map[string]any)["api_key"] != RedactedValue {
		t.Fatalf("expected list entries to be redacted, got %#v", redacted["events"])
	}
	headers, ok := redacted["headers"].(map[string]string)
	if !ok || headers["Authorization"] != RedactedValue || headers["Accept"] != "application/json" {
		t.Fatalf("expected header map to be redacted, got %#v", redacted["headers"])
	}
}

func TestRedactHeaders(t *testing.T) {
	headers := RedactHeaders(map[string]string{
		"Authorization":      "Bearer tok",
		"X-Paykit-Signature": "sha256=abc",
		"Content-Type":       "application/json",
	})
	if headers["Authorization"] != RedactedValue || headers["X-Paykit-Signature"] != RedactedValue {
		t.Fatalf("expected credential headers to be redacted, got %#v", headers)
	}
	if headers["Content-Type"] != "application/json" {
		t.Fatalf("expected plain headers to remain, got %#v", headers)
	}
	if len(RedactHeaders(nil)) != 0 {
		t.Fatalf("expected empty map for nil headers")
	}
}

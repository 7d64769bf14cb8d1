package service

import (
	"encoding/json"
	"testing"
)

func TestRedactJSONNested(t *testing.T) {
	body := []byte(`{"name":"ci","secret":"s3cr3t","nested":{"api_key":"k","Password":"p","keep":1},"list":[{"token":"t"},{"other":"o"}]}`)
	out := RedactJSON(body)

	var data map[string]interface{}
	if err := json.Unmarshal([]byte(out), &data); err != nil {
		t.Fatalf("invalid json output: %v", err)
	}
	if data["secret"] != "***" {
		t.Fatalf("secret not redacted: %v", data["secret"])
	}
	if data["name"] != "ci" {
		t.Fatalf("name should be kept")
	}
	nested := data["nested"].(map[string]interface{})
	if nested["api_key"] != "***" || nested["Password"] != "***" {
		t.Fatalf("nested secrets not redacted: %v", nested)
	}
	if nested["keep"] != float64(1) {
		t.Fatalf("non-sensitive nested field changed")
	}
	list := data["list"].([]interface{})
	if list[0].(map[string]interface{})["token"] != "***" {
		t.Fatalf("token inside array not redacted")
	}
	if list[1].(map[string]interface{})["other"] != "o" {
		t.Fatalf("array element changed")
	}
}

func TestRedactJSONNonSensitive(t *testing.T) {
	body := []byte(`{"ok":true}`)
	if out := RedactJSON(body); out != string(body) {
		t.Fatalf("unexpected redaction: %s", out)
	}
}

func TestRedactJSONInvalid(t *testing.T) {
	if out := RedactJSON([]byte("not-json")); out != "[redacted]" {
		t.Fatalf("expected redacted placeholder for invalid json, got %q", out)
	}
	if out := RedactJSON(nil); out != "" {
		t.Fatalf("expected empty output for empty body, got %q", out)
	}
}

func TestRedactSnapshot(t *testing.T) {
	snap := struct {
		ID         string `json:"id"`
		SecretHash string `json:"secret_hash"`
	}{ID: "c1", SecretHash: "abc"}

	out := RedactSnapshot(snap)
	if out != `{"id":"c1","secret_hash":"***"}` {
		t.Fatalf("unexpected snapshot: %s", out)
	}
	if RedactSnapshot(nil) != "" {
		t.Fatalf("nil snapshot should be empty")
	}
}

package service

import (
	"encoding/json"
	"strings"
)

const redactedPlaceholder = "[redacted]"

// RedactJSON masks sensitive keys at any depth. Bodies that are not JSON are
// replaced entirely.
func RedactJSON(body []byte) string {
	if len(body) == 0 {
		return ""
	}
	var data any
	if err := json.Unmarshal(body, &data); err != nil {
		return redactedPlaceholder
	}
	redactValue(&data)
	out, err := json.Marshal(data)
	if err != nil {
		return redactedPlaceholder
	}
	return string(out)
}

// RedactSnapshot marshals v and redacts the result.
func RedactSnapshot(v any) string {
	if v == nil {
		return ""
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return redactedPlaceholder
	}
	return RedactJSON(raw)
}

func redactValue(v *any) {
	switch raw := (*v).(type) {
	case map[string]any:
		for key, val := range raw {
			if isSensitiveKey(key) {
				raw[key] = "***"
				continue
			}
			vv := val
			redactValue(&vv)
			raw[key] = vv
		}
	case []any:
		for i, val := range raw {
			vv := val
			redactValue(&vv)
			raw[i] = vv
		}
	}
}

func isSensitiveKey(key string) bool {
	switch strings.ToLower(strings.TrimSpace(key)) {
	case "secret",
		"secret_hash",
		"client_secret",
		"api_key",
		"api_secret",
		"password",
		"token",
		"access_token",
		"refresh_token",
		"authorization",
		"private_key",
		"webhook_secret",
		"signature":
		return true
	default:
		return false
	}
}

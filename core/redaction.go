package core

import "strings"

const RedactedValue = "[REDACTED]"

// RedactSensitiveMap copies metadata, masking values under secret-looking keys.
func RedactSensitiveMap(metadata map[string]any) map[string]any {
	if len(metadata) == 0 {
		return map[string]any{}
	}
	return redactSensitiveMap(metadata)
}

// RedactHeaders copies headers with credential-bearing values masked.
func RedactHeaders(headers map[string]string) map[string]string {
	if len(headers) == 0 {
		return map[string]string{}
	}
	out := make(map[string]string, len(headers))
	for key, value := range headers {
		if shouldRedactKey(key) {
			out[key] = RedactedValue
			continue
		}
		out[key] = value
	}
	return out
}

func redactSensitiveMap(source map[string]any) map[string]any {
	target := make(map[string]any, len(source))
	for key, value := range source {
		if shouldRedactKey(key) {
			target[key] = RedactedValue
			continue
		}
		target[key] = redactSensitiveValue(value)
	}
	return target
}

func redactSensitiveValue(value any) any {
	switch typed := value.(type) {
	case map[string]any:
		return redactSensitiveMap(typed)
	case map[string]string:
		return RedactHeaders(typed)
	case []any:
		out := make([]any, len(typed))
		for i := range typed {
			out[i] = redactSensitiveValue(typed[i])
		}
		return out
	default:
		return value
	}
}

var sensitiveKeyTokens = []string{
	"password",
	"secret",
	"token",
	"authorization",
	"api_key",
	"apikey",
	"cookie",
	"credential",
	"signature",
}

func shouldRedactKey(key string) bool {
	key = strings.ToLower(strings.TrimSpace(key))
	if key == "" || isTraceabilityKey(key) {
		return false
	}
	for _, token := range sensitiveKeyTokens {
		if strings.Contains(key, token) {
			return true
		}
	}
	return false
}

func isTraceabilityKey(key string) bool {
	switch key {
	case "provider",
		"method",
		"event_id",
		"event_type",
		"request_id",
		"trace_id",
		"token_path":
		return true
	default:
		return false
	}
}

func headerValue(headers map[string]string, key string) string {
	for existing, value := range headers {
		if strings.EqualFold(strings.TrimSpace(existing), strings.TrimSpace(key)) {
			return strings.TrimSpace(value)
		}
	}
	return ""
}

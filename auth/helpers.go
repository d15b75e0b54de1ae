package auth

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

func readString(payload map[string]any, keys ...string) string {
	for _, key := range keys {
		value, ok := payload[key]
		if !ok || value == nil {
			continue
		}
		switch typed := value.(type) {
		case string:
			if trimmed := strings.TrimSpace(typed); trimmed != "" {
				return trimmed
			}
		case fmt.Stringer:
			if trimmed := strings.TrimSpace(typed.String()); trimmed != "" {
				return trimmed
			}
		}
	}
	return ""
}

// readSeconds accepts numbers and numeric strings, as providers send both.
func readSeconds(payload map[string]any, keys ...string) (int64, bool) {
	for _, key := range keys {
		switch typed := payload[key].(type) {
		case json.Number:
			if value, err := typed.Int64(); err == nil {
				return value, true
			}
			if value, err := typed.Float64(); err == nil {
				return int64(value), true
			}
		case float64:
			return int64(typed), true
		case int:
			return int64(typed), true
		case int64:
			return typed, true
		case string:
			if value, err := strconv.ParseInt(strings.TrimSpace(typed), 10, 64); err == nil {
				return value, true
			}
		}
	}
	return 0, false
}

func normalizeValues(values []string) []string {
	if len(values) == 0 {
		return []string{}
	}
	seen := map[string]struct{}{}
	out := make([]string, 0, len(values))
	for _, value := range values {
		trimmed := strings.TrimSpace(value)
		if trimmed == "" {
			continue
		}
		if _, ok := seen[trimmed]; ok {
			continue
		}
		seen[trimmed] = struct{}{}
		out = append(out, trimmed)
	}
	sort.Strings(out)
	return out
}

func cloneHeaders(headers map[string]string) map[string]string {
	out := make(map[string]string, len(headers))
	for key, value := range headers {
		if strings.TrimSpace(key) == "" {
			continue
		}
		out[strings.TrimSpace(key)] = value
	}
	return out
}

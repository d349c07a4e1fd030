package guide

import (
	"fmt"
	"strconv"
	"strings"
)

// The upstream API spells the same concept under several alternate
// keys depending on endpoint and content age. Each attribute is read
// through one ordered fallback lookup rather than scattered key
// probing.

// firstString returns the first non-empty string value among keys.
func firstString(m map[string]any, keys ...string) string {
	for _, key := range keys {
		switch v := m[key].(type) {
		case string:
			if v != "" {
				return v
			}
		case float64:
			return strconv.FormatFloat(v, 'f', -1, 64)
		}
	}

	return ""
}

// firstInt returns the first value among keys that parses as an
// integer.
func firstInt(m map[string]any, keys ...string) (int, bool) {
	for _, key := range keys {
		switch v := m[key].(type) {
		case float64:
			return int(v), true
		case string:
			if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
				return n, true
			}
		}
	}

	return 0, false
}

// firstBool returns the first truthy value among keys. Upstream flags
// arrive as booleans, "true"/"false" strings, or 0/1 numbers.
func firstBool(m map[string]any, keys ...string) bool {
	for _, key := range keys {
		switch v := m[key].(type) {
		case bool:
			if v {
				return true
			}
		case string:
			if strings.EqualFold(strings.TrimSpace(v), "true") {
				return true
			}
		case float64:
			if v != 0 {
				return true
			}
		}
	}

	return false
}

// firstList returns the first list value among keys. A single
// comma-separated string counts as a list.
func firstList(m map[string]any, keys ...string) []string {
	for _, key := range keys {
		switch v := m[key].(type) {
		case []any:
			items := make([]string, 0, len(v))

			for _, item := range v {
				if s, ok := item.(string); ok && s != "" {
					items = append(items, s)
				}
			}

			if len(items) > 0 {
				return items
			}
		case string:
			if v == "" {
				continue
			}

			parts := strings.Split(v, ",")
			items := make([]string, 0, len(parts))

			for _, part := range parts {
				if part = strings.TrimSpace(part); part != "" {
					items = append(items, part)
				}
			}

			if len(items) > 0 {
				return items
			}
		}
	}

	return nil
}

// stringValue renders any scalar as a string, for identifiers that
// arrive as either numbers or strings.
func stringValue(v any) string {
	switch v := v.(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", v)
	}
}

// subMap returns m[key] as a map, or an empty map.
func subMap(m map[string]any, key string) map[string]any {
	if sub, ok := m[key].(map[string]any); ok {
		return sub
	}

	return map[string]any{}
}

// markerMillis extracts a millisecond timestamp from a
// display.markers entry of the form {"value": <ms>}.
func markerMillis(markers map[string]any, key string) int64 {
	marker := subMap(markers, key)

	switch v := marker["value"].(type) {
	case float64:
		return int64(v)
	case string:
		if n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64); err == nil {
			return n
		}
	}

	return 0
}

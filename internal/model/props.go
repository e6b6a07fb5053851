package model

import (
	"fmt"
	"strings"
)

// SanitizeProperties deep-copies a free-form property map into the value
// set the graph backend can store: strings, numbers, bools, and lists and
// maps thereof. Unsupported values are stringified.
func SanitizeProperties(props map[string]any) map[string]any {
	if props == nil {
		return nil
	}
	out := make(map[string]any, len(props))
	for k, v := range props {
		out[k] = sanitizeValue(v)
	}
	return out
}

func sanitizeValue(v any) any {
	switch val := v.(type) {
	case nil:
		return ""
	case string, bool,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64:
		return val
	case []string:
		out := make([]any, len(val))
		for i, s := range val {
			out[i] = s
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = sanitizeValue(item)
		}
		return out
	case map[string]any:
		return SanitizeProperties(val)
	default:
		return fmt.Sprintf("%v", val)
	}
}

// JoinStrings renders a string slice as a single property value for
// backends without native list support in fulltext contexts.
func JoinStrings(values []string) string {
	return strings.Join(values, ", ")
}

package graphstore

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

func nowUnix() int64 {
	return time.Now().Unix()
}

// escapeString escapes single quotes and backslashes for inline Cypher
// string literals. Parameterized queries are preferred; inline literals are
// used where FalkorDB requires them (index DDL, label positions).
func escapeString(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `'`, `\'`)
	return s
}

// cypherValue renders a Go value as a Cypher literal. Only the sanitized
// property value set is supported: strings, bools, integers, floats, and
// string slices.
func cypherValue(v any) string {
	switch val := v.(type) {
	case nil:
		return "null"
	case string:
		return "'" + escapeString(val) + "'"
	case bool:
		return strconv.FormatBool(val)
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case float64:
		return strconv.FormatFloat(val, 'g', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(val), 'g', -1, 32)
	case []string:
		parts := make([]string, len(val))
		for i, s := range val {
			parts[i] = "'" + escapeString(s) + "'"
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case []int64:
		parts := make([]string, len(val))
		for i, n := range val {
			parts[i] = strconv.FormatInt(n, 10)
		}
		return "[" + strings.Join(parts, ", ") + "]"
	default:
		return "'" + escapeString(fmt.Sprintf("%v", val)) + "'"
	}
}

// cypherProps renders a property map as `{k: v, ...}` with deterministic key
// order so generated queries are stable.
func cypherProps(props map[string]any) string {
	if len(props) == 0 {
		return "{}"
	}
	keys := make([]string, 0, len(props))
	for k := range props {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+cypherValue(props[k]))
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

// cypherSet renders `alias.k = v, ...` assignments in deterministic order.
func cypherSet(alias string, props map[string]any) string {
	keys := make([]string, 0, len(props))
	for k := range props {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, alias+"."+k+" = "+cypherValue(props[k]))
	}
	return strings.Join(parts, ", ")
}

// vecf32Literal renders an embedding as a FalkorDB vecf32 literal.
func vecf32Literal(vec []float32) string {
	parts := make([]string, len(vec))
	for i, v := range vec {
		parts[i] = strconv.FormatFloat(float64(v), 'g', -1, 32)
	}
	return "vecf32([" + strings.Join(parts, ", ") + "])"
}

// Result value coercion helpers. FalkorDB returns integers as int64 and
// floats as float64; properties written as vecf32 come back as []any.

func asString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

func asInt64(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	case float64:
		return int64(n)
	}
	return 0
}

func asFloat64(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case int64:
		return float64(n)
	case int:
		return float64(n)
	}
	return 0
}

func asStringSlice(v any) []string {
	items, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		if s, isStr := item.(string); isStr {
			out = append(out, s)
		}
	}
	return out
}

func asVector(v any) []float32 {
	items, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]float32, 0, len(items))
	for _, item := range items {
		out = append(out, float32(asFloat64(item)))
	}
	return out
}

// Package model holds the data produced by one documentation run: controller
// snapshots, their per-site collections and the run summary.
package model

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// Record is one object returned by the controller API. Numbers are kept as
// json.Number so values print exactly as the controller sent them.
type Record map[string]any

// Has reports whether key is present, even with a null value.
func (r Record) Has(key string) bool {
	_, ok := r[key]
	return ok
}

// Text returns the value at key formatted for display, or fallback when the
// key is absent, null or an empty string.
func (r Record) Text(key, fallback string) string {
	v, ok := r[key]
	if !ok || v == nil {
		return fallback
	}
	if s, ok := v.(string); ok {
		if s == "" {
			return fallback
		}
		return s
	}
	return fmt.Sprint(v)
}

// First returns the first non-empty Text among keys, or fallback.
func (r Record) First(fallback string, keys ...string) string {
	for _, key := range keys {
		if s := r.Text(key, ""); s != "" {
			return s
		}
	}
	return fallback
}

// ID returns the controller object id (`_id`).
func (r Record) ID() string {
	return r.Text("_id", "")
}

// Truthy reports whether the value at key is set and non-zero, following the
// loose truthiness controller payloads rely on ("", 0, false, [] are unset).
func (r Record) Truthy(key string) bool {
	switch v := r[key].(type) {
	case nil:
		return false
	case bool:
		return v
	case string:
		return v != ""
	case json.Number:
		if f, err := strconv.ParseFloat(string(v), 64); err == nil {
			return f != 0
		}
		return v != ""
	case float64:
		return v != 0
	case int:
		return v != 0
	case int64:
		return v != 0
	case []any:
		return len(v) > 0
	case map[string]any:
		return len(v) > 0
	default:
		return true
	}
}

// Strings returns the list at key with every element formatted for display.
// A scalar value yields a single-element list.
func (r Record) Strings(key string) []string {
	switch v := r[key].(type) {
	case nil:
		return nil
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			out = append(out, fmt.Sprint(item))
		}
		return out
	case []string:
		return v
	default:
		return []string{fmt.Sprint(v)}
	}
}

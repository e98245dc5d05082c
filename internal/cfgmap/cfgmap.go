// Package cfgmap reads adapter settings out of the generic maps passed to
// hlbus transport factories. Values may come from Go code, YAML or JSON, so
// numbers arrive as int or float64 and durations as time.Duration, strings
// or nanosecond counts.
package cfgmap

import (
	"time"
)

// Value is a setting type Set understands.
type Value interface {
	string | int | bool | time.Duration
}

// Set assigns m[key] to *dst when the key is present, converts to T and
// passes every accept predicate. It reports whether *dst changed.
func Set[T Value](m map[string]any, key string, dst *T, accept ...func(T) bool) bool {
	raw, ok := m[key]
	if !ok {
		return false
	}
	v, ok := convert[T](raw)
	if !ok {
		return false
	}
	for _, a := range accept {
		if !a(v) {
			return false
		}
	}
	*dst = v
	return true
}

// NonZero accepts everything but the zero value.
func NonZero[T comparable](v T) bool {
	var zero T
	return v != zero
}

// Positive accepts values above zero.
func Positive[T int | time.Duration](v T) bool { return v > 0 }

func convert[T Value](raw any) (T, bool) {
	var out T
	var ok bool
	switch p := any(&out).(type) {
	case *string:
		*p, ok = raw.(string)
	case *bool:
		*p, ok = raw.(bool)
	case *int:
		*p, ok = toInt(raw)
	case *time.Duration:
		*p, ok = toDuration(raw)
	}
	return out, ok
}

func toInt(raw any) (int, bool) {
	switch v := raw.(type) {
	case int:
		return v, true
	case int32:
		return int(v), true
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	}
	return 0, false
}

func toDuration(raw any) (time.Duration, bool) {
	switch v := raw.(type) {
	case time.Duration:
		return v, true
	case string:
		d, err := time.ParseDuration(v)
		return d, err == nil
	case int:
		return time.Duration(v), true
	case int64:
		return time.Duration(v), true
	case float64:
		return time.Duration(v), true
	}
	return 0, false
}

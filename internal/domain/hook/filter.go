package hook

import (
	"encoding/json"
	"reflect"
)

// Filter narrows a subscription to hooks whose payload fields equal every
// entry in the map. An empty filter matches everything.
type Filter map[string]any

// Matches reports whether every filter key is present in fields with an
// equal value. Numbers compare by value regardless of their Go type.
func (f Filter) Matches(fields map[string]any) bool {
	for k, want := range f {
		got, ok := fields[k]
		if !ok || !equal(want, got) {
			return false
		}
	}
	return true
}

// Number converts a payload value to float64 if it is numeric.
func Number(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}

func equal(a, b any) bool {
	if x, ok := Number(a); ok {
		y, ok := Number(b)
		return ok && x == y
	}
	if x, ok := stringValue(a); ok {
		y, ok := stringValue(b)
		return ok && x == y
	}
	return reflect.DeepEqual(a, b)
}

// stringValue accepts named string types such as agent.Status.
func stringValue(v any) (string, bool) {
	if v == nil {
		return "", false
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.String {
		return "", false
	}
	return rv.String(), true
}

package parsing

import (
	"fmt"
	"strings"
)

// Namespace maps argument names to bound values.
type Namespace map[string]any

// Get returns the value bound to name, or nil.
func (ns Namespace) Get(name string) any {
	return ns[name]
}

// Has reports whether name is bound to a non-nil value.
func (ns Namespace) Has(name string) bool {
	return ns[name] != nil
}

// String returns the value as text; lists are joined with spaces.
func (ns Namespace) String(name string) string {
	switch v := ns[name].(type) {
	case nil:
		return ""
	case string:
		return v
	case []any:
		parts := make([]string, len(v))
		for i, p := range v {
			parts[i] = fmt.Sprint(p)
		}
		return strings.Join(parts, " ")
	default:
		return fmt.Sprint(v)
	}
}

// Int returns an integer value, or 0 when the value is not an integer.
func (ns Namespace) Int(name string) int64 {
	switch v := ns[name].(type) {
	case int:
		return int64(v)
	case int32:
		return int64(v)
	case int64:
		return v
	default:
		return 0
	}
}

// Strings returns a list value as strings.
func (ns Namespace) Strings(name string) []string {
	switch v := ns[name].(type) {
	case nil:
		return nil
	case []string:
		return v
	case []any:
		out := make([]string, len(v))
		for i, p := range v {
			out[i] = fmt.Sprint(p)
		}
		return out
	default:
		return []string{fmt.Sprint(v)}
	}
}

// Package callbacks resolves inline button payloads to their handlers.
//
// A payload such as "send confirm 1337 4 7" is first matched against the
// anchored pattern of a table ("^send"). The matched span is removed and the
// remainder ("confirm 1337 4 7") is looked up in the table's targets: an
// exact key wins, otherwise the single key that prefixes the remainder.
package callbacks

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
)

var (
	// ErrNoPatternMatch means the payload does not belong to the table.
	ErrNoPatternMatch = errors.New("callback data does not match the table pattern")

	// ErrNotFound means no target key fits the payload.
	ErrNotFound = errors.New("no target for callback data")

	// ErrAmbiguous means several keys prefix the payload.
	ErrAmbiguous = errors.New("callback data matches several targets")
)

// ResolutionError describes a payload that could not be resolved.
type ResolutionError struct {
	Table      string
	Data       string
	Candidates []string
	Err        error
}

func (e *ResolutionError) Error() string {
	msg := fmt.Sprintf("callback %s: %v: %q", e.Table, e.Err, e.Data)
	if len(e.Candidates) > 0 {
		msg += fmt.Sprintf(" (candidates %s)", strings.Join(e.Candidates, ", "))
	}
	return msg
}

func (e *ResolutionError) Unwrap() error {
	return e.Err
}

// Resolution is the outcome of a successful lookup.
type Resolution[H any] struct {
	// Key is the target key that matched.
	Key string
	// Data is the payload with the pattern match removed and trimmed.
	Data string
	// Args are the whitespace separated words after Key.
	Args   []string
	Target H
}

// Resolve strips the first match of pattern from payload and picks the
// target for the remainder.
func Resolve[H any](payload string, pattern *regexp.Regexp, targets map[string]H) (Resolution[H], error) {
	var res Resolution[H]

	loc := pattern.FindStringIndex(payload)
	if loc == nil {
		return res, &ResolutionError{Data: payload, Err: ErrNoPatternMatch}
	}
	data := strings.TrimSpace(payload[:loc[0]] + payload[loc[1]:])

	key := data
	if _, exact := targets[data]; !exact {
		var candidates []string
		for k := range targets {
			if strings.HasPrefix(data, k) {
				candidates = append(candidates, k)
			}
		}
		sort.Strings(candidates)
		switch len(candidates) {
		case 0:
			return res, &ResolutionError{Data: data, Err: ErrNotFound}
		case 1:
			key = candidates[0]
		default:
			return res, &ResolutionError{Data: data, Candidates: candidates, Err: ErrAmbiguous}
		}
	}

	res.Key = key
	res.Data = data
	res.Args = strings.Fields(data[len(key):])
	res.Target = targets[key]
	return res, nil
}

// Table is an immutable set of targets behind one anchored pattern.
type Table[H any] struct {
	Name    string
	Pattern *regexp.Regexp
	targets map[string]H
}

// NewTable compiles pattern, which must be anchored with "^", and copies
// targets. Keys must be non-empty.
func NewTable[H any](name, pattern string, targets map[string]H) (*Table[H], error) {
	if strings.TrimSpace(name) == "" {
		return nil, errors.New("callback table name is required")
	}
	if !strings.HasPrefix(pattern, "^") {
		return nil, fmt.Errorf("callback table %s: pattern %q must start with ^", name, pattern)
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("callback table %s: %w", name, err)
	}
	if len(targets) == 0 {
		return nil, fmt.Errorf("callback table %s: no targets", name)
	}

	copied := make(map[string]H, len(targets))
	for k, h := range targets {
		if strings.TrimSpace(k) == "" {
			return nil, fmt.Errorf("callback table %s: empty target key", name)
		}
		copied[k] = h
	}
	return &Table[H]{Name: name, Pattern: re, targets: copied}, nil
}

// MustTable is NewTable for tables defined in code.
func MustTable[H any](name, pattern string, targets map[string]H) *Table[H] {
	t, err := NewTable(name, pattern, targets)
	if err != nil {
		panic(err)
	}
	return t
}

// Match reports whether payload belongs to the table.
func (t *Table[H]) Match(payload string) bool {
	return t.Pattern.MatchString(payload)
}

// Resolve resolves payload against the table's targets.
func (t *Table[H]) Resolve(payload string) (Resolution[H], error) {
	res, err := Resolve(payload, t.Pattern, t.targets)
	var resErr *ResolutionError
	if errors.As(err, &resErr) {
		resErr.Table = t.Name
	}
	return res, err
}

// Keys returns the target keys in sorted order.
func (t *Table[H]) Keys() []string {
	keys := make([]string, 0, len(t.targets))
	for k := range t.targets {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

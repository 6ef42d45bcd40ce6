package parsing

import (
	"errors"
	"fmt"
	"strings"
)

// Reasons a single value can be rejected.
var (
	ErrInvalidFormat  = errors.New("invalid format")
	ErrZero           = errors.New("value is zero")
	ErrNotPositive    = errors.New("value is not positive")
	ErrTooLarge       = errors.New("value exceeds the configured maximum")
	ErrOutOfRange     = errors.New("value exceeds the 32-bit range")
	ErrNotAChoice     = errors.New("value is not an allowed choice")
	ErrNoMention      = errors.New("no user mentioned")
	ErrUnknownUser    = errors.New("unknown user")
	ErrAmbiguousUser  = errors.New("ambiguous user")
	ErrUnknownItem    = errors.New("unknown consumable")
	ErrUnknownCommand = errors.New("unknown command")
)

// Reasons a whole parse can fail.
var (
	ErrNoMatchingArity = errors.New("no usage accepts this number of arguments")
	ErrNoUsageApplies  = errors.New("no usage applies")
)

// ConversionError is a value the user can fix: wrong format, out of range,
// unknown or ambiguous reference.
type ConversionError struct {
	// Argument is the name of the slot, filled in during binding.
	Argument string
	Input    string
	// Reason is shown to the user as is.
	Reason string
	Err    error
}

func (e *ConversionError) Error() string {
	if e.Argument != "" {
		return fmt.Sprintf("argument %s: %s", e.Argument, e.Reason)
	}
	return e.Reason
}

func (e *ConversionError) Unwrap() error {
	return e.Err
}

func conversionError(input string, err error, format string, args ...any) *ConversionError {
	return &ConversionError{
		Input:  input,
		Reason: fmt.Sprintf(format, args...),
		Err:    err,
	}
}

// Rejection records why a usage did not apply.
type Rejection struct {
	Usage int
	Err   *ConversionError
}

// ParseFailure is a structural mismatch between the arguments and every
// usage of a grammar.
type ParseFailure struct {
	Command    string
	Tokens     int
	Err        error
	Rejections []Rejection
}

func (f *ParseFailure) Error() string {
	if f.Command != "" {
		return fmt.Sprintf("parse /%s: %v", f.Command, f.Err)
	}
	return fmt.Sprintf("parse: %v", f.Err)
}

func (f *ParseFailure) Unwrap() error {
	return f.Err
}

// Message renders the failure for the user who sent the command.
func (f *ParseFailure) Message() string {
	if errors.Is(f.Err, ErrNoMatchingArity) {
		if f.Tokens == 0 {
			return "Missing arguments."
		}
		return fmt.Sprintf("Wrong number of arguments (%d).", f.Tokens)
	}

	reasons := make([]string, 0, len(f.Rejections))
	seen := make(map[string]bool, len(f.Rejections))
	for _, r := range f.Rejections {
		msg := r.Err.Reason
		if seen[msg] {
			continue
		}
		seen[msg] = true
		reasons = append(reasons, msg)
	}
	switch len(reasons) {
	case 0:
		return "Invalid arguments."
	case 1:
		return reasons[0]
	default:
		return "Invalid arguments:\n- " + strings.Join(reasons, "\n- ")
	}
}

package telegram

import (
	"errors"
	"fmt"
)

// ErrorCode classifies adapter failures for logs and retry decisions.
type ErrorCode string

const (
	// ErrCodeConfig indicates an invalid adapter configuration
	ErrCodeConfig ErrorCode = "CONFIG_ERROR"

	// ErrCodeAuthentication indicates a rejected bot token
	ErrCodeAuthentication ErrorCode = "AUTH_ERROR"

	// ErrCodeConnection indicates network failures talking to Telegram
	ErrCodeConnection ErrorCode = "CONNECTION_ERROR"

	// ErrCodeRateLimit indicates a send was cancelled while throttled
	ErrCodeRateLimit ErrorCode = "RATE_LIMIT_ERROR"

	// ErrCodeTimeout indicates an operation ran out of time
	ErrCodeTimeout ErrorCode = "TIMEOUT_ERROR"

	// ErrCodeSend indicates Telegram refused an outgoing message
	ErrCodeSend ErrorCode = "SEND_ERROR"
)

// Error is an adapter failure with a code and the underlying cause.
type Error struct {
	Code    ErrorCode
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(code ErrorCode, message string, err error) *Error {
	return &Error{Code: code, Message: message, Err: err}
}

// GetErrorCode returns the code of an adapter error, or "" for other errors.
func GetErrorCode(err error) ErrorCode {
	var tgErr *Error
	if errors.As(err, &tgErr) {
		return tgErr.Code
	}
	return ""
}

// IsRetryable reports whether err is a transient failure.
func IsRetryable(err error) bool {
	switch GetErrorCode(err) {
	case ErrCodeConnection, ErrCodeRateLimit, ErrCodeTimeout:
		return true
	default:
		return false
	}
}

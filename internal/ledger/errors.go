package ledger

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a lookup matched nothing.
	ErrNotFound = errors.New("not found")

	// ErrAmbiguous is returned when a lookup matched more than one record.
	ErrAmbiguous = errors.New("ambiguous")
)

// RemoteErrorKind separates transport trouble from requests the core
// service understood and refused.
type RemoteErrorKind string

const (
	// Connectivity covers network failures, timeouts and 5xx responses.
	Connectivity RemoteErrorKind = "connectivity"

	// Rejected covers 4xx responses other than 404.
	Rejected RemoteErrorKind = "rejected"

	// Malformed covers successful responses whose body could not be read.
	// The request may have taken effect.
	Malformed RemoteErrorKind = "malformed"
)

// RemoteError is a failure reported by, or on the way to, the core service.
type RemoteError struct {
	Kind      RemoteErrorKind
	Operation string
	Status    int
	// Message is the detail sent by the server, suitable for users when
	// Kind is Rejected.
	Message string
	Err     error
}

func (e *RemoteError) Error() string {
	switch {
	case e.Err != nil:
		return fmt.Sprintf("ledger %s: %s: %v", e.Operation, e.Kind, e.Err)
	case e.Message != "":
		return fmt.Sprintf("ledger %s: %s (%d): %s", e.Operation, e.Kind, e.Status, e.Message)
	default:
		return fmt.Sprintf("ledger %s: %s (%d)", e.Operation, e.Kind, e.Status)
	}
}

func (e *RemoteError) Unwrap() error {
	return e.Err
}

// IsConnectivity reports whether err is a connectivity failure.
func IsConnectivity(err error) bool {
	var remote *RemoteError
	return errors.As(err, &remote) && remote.Kind == Connectivity
}

// RejectionMessage returns the server's explanation if err is a rejected
// request, so handlers can show it to the user.
func RejectionMessage(err error) (string, bool) {
	var remote *RemoteError
	if errors.As(err, &remote) && remote.Kind == Rejected && remote.Message != "" {
		return remote.Message, true
	}
	return "", false
}

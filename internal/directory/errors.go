package directory

import (
	"errors"
	"fmt"
)

// ErrRequest is matched by every failure returned from Client, whatever the
// cause (transport, rejected credentials, bad status, undecodable body).
var ErrRequest = errors.New("directory request failed")

// RequestError carries detail for logs. Callers should only branch on ErrRequest.
type RequestError struct {
	Op     string
	Status int
	Err    error
}

func (e *RequestError) Error() string {
	switch {
	case e.Status != 0 && e.Err != nil:
		return fmt.Sprintf("directory %s: status %d: %v", e.Op, e.Status, e.Err)
	case e.Status != 0:
		return fmt.Sprintf("directory %s: status %d", e.Op, e.Status)
	default:
		return fmt.Sprintf("directory %s: %v", e.Op, e.Err)
	}
}

// Unwrap exposes the underlying cause.
func (e *RequestError) Unwrap() error { return e.Err }

// Is lets errors.Is(err, ErrRequest) match.
func (e *RequestError) Is(target error) bool { return target == ErrRequest }

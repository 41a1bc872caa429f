package remote

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned when a requested object or folder is not found.
var ErrNotFound = errors.New("remote: resource not found")

// OpError reports a failed backend call with enough detail for the caller to
// decide between retrying and propagating.
type OpError struct {
	Op         string // operation name, e.g. "drive.ListFolder"
	StatusCode int    // HTTP status reported by the backend, 0 when unknown
	Err        error
}

func (e *OpError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: status %d: %v", e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *OpError) Unwrap() error { return e.Err }

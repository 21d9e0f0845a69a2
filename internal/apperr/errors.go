// Package apperr holds the error taxonomy shared by storage, the blog
// service and the bridge.
package apperr

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrConflict      = errors.New("conflict")
	ErrInvalidConfig = errors.New("invalid configuration")
	ErrInvalidBlog   = errors.New("invalid blog")
	ErrParse         = errors.New("malformed content")
)

// RemoteError is any failed call against the remote content host.
type RemoteError struct {
	Op     string
	Path   string
	Status int // 0 when the request never got a response
	Err    error
}

func (e *RemoteError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s %s: status %d: %v", e.Op, e.Path, e.Status, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *RemoteError) Unwrap() error { return e.Err }

// PartialFailure reports an operation that failed after some of its remote
// writes were already committed. Committed lists those paths in order.
type PartialFailure struct {
	Op        string
	Slug      string
	Committed []string
	Err       error
}

func (e *PartialFailure) Error() string {
	return fmt.Sprintf("%s %s: partially applied (committed: %s): %v",
		e.Op, e.Slug, strings.Join(e.Committed, ", "), e.Err)
}

func (e *PartialFailure) Unwrap() error { return e.Err }

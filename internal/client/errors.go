// internal/client/errors.go
package client

import "errors"

var (
	// ErrNotConnected is returned by operations issued before Start or after
	// Stop.
	ErrNotConnected = errors.New("client not connected")
	// ErrNoSuchWindow is returned when a window index falls outside the
	// current handle list.
	ErrNoSuchWindow = errors.New("no window at requested index")
	// ErrElementNotFound is returned when a selector matches nothing at the
	// moment an immediate (non-waiting) operation runs.
	ErrElementNotFound = errors.New("element not found")
)

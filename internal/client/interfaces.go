// internal/client/interfaces.go

// Package client defines the remote-control facade for the application under
// test and its CDP-backed implementation. The interface is the only surface
// the scenario layer sees; selectors are opaque CSS strings owned by callers.
package client

import (
	"context"
	"time"
)

// Client is the handle to the controlled application's windows. Every
// operation is context-first and returns an explicit error; none of them
// retry internally. Implementations are safe for use from a single scenario
// chain at a time, matching the one-chain-per-application model.
type Client interface {
	// Start connects the protocol session to the running application.
	Start(ctx context.Context) error
	// Stop disconnects and, when the implementation owns the process, shuts
	// the application down. Safe to call twice.
	Stop(ctx context.Context) error
	// IsRunning reports whether the controlled process is alive.
	IsRunning() bool

	// Click clicks the first element matching selector.
	Click(ctx context.Context, selector string) error
	// SetValue clears the matching input and types value into it.
	SetValue(ctx context.Context, selector, value string) error
	// SelectByValue picks the option with the given value on a select element.
	SelectByValue(ctx context.Context, selector, value string) error
	// GetText returns the visible text content of the matching element.
	GetText(ctx context.Context, selector string) (string, error)
	// WaitForVisible blocks until the matching element is visible, or with
	// reverse set, until it is not visible. A non-positive timeout uses the
	// implementation default.
	WaitForVisible(ctx context.Context, selector string, timeout time.Duration, reverse bool) error
	// WaitForExist blocks until the matching element is attached to the DOM.
	WaitForExist(ctx context.Context, selector string, timeout time.Duration) error

	// WindowHandle returns the handle of the currently focused window.
	WindowHandle(ctx context.Context) (string, error)
	// WindowHandles returns all top-level window handles in creation order.
	WindowHandles(ctx context.Context) ([]string, error)
	// WindowByIndex switches the session focus to the window at index within
	// the WindowHandles ordering.
	WindowByIndex(ctx context.Context, index int) error
}

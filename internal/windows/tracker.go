// internal/windows/tracker.go

// Package windows detects the appearance of new top-level windows by polling
// the ordered window-handle list, and moves session focus to them.
package windows

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/compass-pilot/internal/wait"
)

// Session is the narrow slice of the client facade the tracker needs.
type Session interface {
	WindowHandle(ctx context.Context) (string, error)
	WindowHandles(ctx context.Context) ([]string, error)
	WindowByIndex(ctx context.Context, index int) error
}

// Tracker waits for window-handle transitions against a live session.
type Tracker struct {
	session Session
	logger  *zap.Logger
}

// NewTracker builds a tracker over the given session.
func NewTracker(session Session, logger *zap.Logger) *Tracker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Tracker{session: session, logger: logger.Named("windows")}
}

// WaitForWindow captures the currently focused handle, then polls the full
// handle list until the handle at index exists and differs from the captured
// one. On success it switches focus to that window and returns its handle.
//
// A slot beyond the current list length means the window has not been created
// yet, so the wait continues; it never short-circuits to success on a missing
// handle. Timeout semantics come from the wait engine.
func (t *Tracker) WaitForWindow(ctx context.Context, index int, timeout, interval time.Duration) (string, error) {
	if index < 0 {
		return "", fmt.Errorf("window index must be non-negative, got %d", index)
	}

	captured, err := t.session.WindowHandle(ctx)
	if err != nil {
		return "", err
	}
	t.logger.Debug("Watching for window transition.",
		zap.Int("index", index),
		zap.String("captured_handle", captured))

	var found string
	pred := func(ctx context.Context) (bool, error) {
		handles, err := t.session.WindowHandles(ctx)
		if err != nil {
			return false, err
		}
		if index >= len(handles) {
			// Slot not populated yet: keep waiting.
			return false, nil
		}
		if handles[index] == captured {
			return false, nil
		}
		found = handles[index]
		return true, nil
	}

	op := fmt.Sprintf("window at slot %d", index)
	if err := wait.Until(ctx, op, pred, timeout, interval); err != nil {
		return "", err
	}

	if err := t.session.WindowByIndex(ctx, index); err != nil {
		return "", err
	}
	t.logger.Debug("Switched to new window.", zap.Int("index", index), zap.String("handle", found))
	return found, nil
}

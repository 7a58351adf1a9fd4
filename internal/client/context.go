// internal/client/context.go
package client

import (
	"context"
	"time"
)

// combineContext derives a context from tabCtx, which carries the chromedp
// target binding, that is additionally canceled when opCtx ends. chromedp
// resolves its session from context values, so the tab context must stay the
// parent; the operational deadline rides along through the watcher.
func combineContext(tabCtx, opCtx context.Context) (context.Context, context.CancelFunc) {
	combined, cancel := context.WithCancel(tabCtx)
	go func() {
		select {
		case <-opCtx.Done():
			cancel()
		case <-combined.Done():
		}
	}()
	return combined, cancel
}

// valueOnlyContext keeps a parent's values while dropping its deadline and
// cancellation. Needed for teardown work that must still reach the browser
// after the run context has been canceled.
type valueOnlyContext struct {
	context.Context
}

func (valueOnlyContext) Deadline() (deadline time.Time, ok bool) { return }
func (valueOnlyContext) Done() <-chan struct{}                   { return nil }
func (valueOnlyContext) Err() error                              { return nil }

// detach returns a context inheriting ctx's values but not its cancellation.
func detach(ctx context.Context) context.Context {
	return valueOnlyContext{ctx}
}

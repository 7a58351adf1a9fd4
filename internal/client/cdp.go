// internal/client/cdp.go
package client

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/target"
	"github.com/chromedp/chromedp"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ProcessHandle is the slice of the application launcher the client uses to
// reflect and control process lifetime. launcher.App satisfies it.
type ProcessHandle interface {
	IsRunning() bool
	Stop(ctx context.Context) error
}

// Options configures a CDP client.
type Options struct {
	// DebuggerURL is the DevTools HTTP root of the running application,
	// e.g. http://127.0.0.1:9222.
	DebuggerURL string
	// Process, when set, ties the application process to the client:
	// IsRunning reflects it and Stop shuts it down after detaching.
	Process ProcessHandle
	// DefaultWaitTimeout applies when a wait method gets a non-positive
	// timeout. Zero means 10 seconds.
	DefaultWaitTimeout time.Duration
	// PollInterval is the cadence of the client's own DOM polls. Zero means
	// 500 milliseconds.
	PollInterval time.Duration
}

// CDP drives the application over the Chrome DevTools Protocol. One client
// serves one application instance. The window ledger keeps handle order
// stable across polls even though the protocol's own target listing makes
// no ordering promise.
type CDP struct {
	id     string
	logger *zap.Logger
	opts   Options

	mu          sync.Mutex
	started     bool
	allocStop   context.CancelFunc
	browser     context.Context
	browserStop context.CancelFunc
	tabs        map[target.ID]*tab
	order       []target.ID
	current     target.ID
}

// tab is a cached chromedp context bound to one window. Sessions are kept
// for the client's lifetime so switching back to a window reuses its
// attachment; Stop tears them all down with the browser context.
type tab struct {
	ctx    context.Context
	cancel context.CancelFunc
}

var _ Client = (*CDP)(nil)

// NewCDP builds a client for the application behind opts.DebuggerURL. The
// session is not connected until Start.
func NewCDP(opts Options, logger *zap.Logger) *CDP {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.DefaultWaitTimeout <= 0 {
		opts.DefaultWaitTimeout = 10 * time.Second
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 500 * time.Millisecond
	}
	id := uuid.New().String()
	return &CDP{
		id:     id,
		logger: logger.Named("client").With(zap.String("session_id", id)),
		opts:   opts,
		tabs:   make(map[target.ID]*tab),
	}
}

// Start attaches the protocol session to the application's DevTools
// endpoint and adopts the first window. The application itself must already
// be running; the launcher owns that. Calling Start on a started client is
// a no-op.
func (c *CDP) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.started {
		return nil
	}
	if c.opts.DebuggerURL == "" {
		return fmt.Errorf("%w: no debugger URL configured", ErrNotConnected)
	}

	// The allocator parent is deliberately not the caller's context: the
	// session must outlive Start and is torn down by Stop instead.
	allocCtx, allocStop := chromedp.NewRemoteAllocator(context.Background(), c.opts.DebuggerURL)
	browserCtx, browserStop := chromedp.NewContext(allocCtx)

	// Listing targets verifies the connection and primes the ledger in one
	// round trip. The listing must run on browserCtx itself: the allocator
	// ties websocket teardown to whichever context performs the first call,
	// and that lifetime belongs to Stop, not to this attach. Actions are
	// never run on browserCtx either way; chromedp.Run would open a fresh
	// window.
	type listing struct {
		infos []*target.Info
		err   error
	}
	done := make(chan listing, 1)
	go func() {
		infos, err := chromedp.Targets(browserCtx)
		done <- listing{infos: infos, err: err}
	}()

	var infos []*target.Info
	select {
	case l := <-done:
		if l.err != nil {
			browserStop()
			allocStop()
			return fmt.Errorf("attaching to %s: %w", c.opts.DebuggerURL, l.err)
		}
		infos = l.infos
	case <-ctx.Done():
		// Canceling the browser context aborts the in-flight dial, so the
		// listing goroutine unblocks shortly after.
		browserStop()
		allocStop()
		return ctx.Err()
	}

	c.allocStop = allocStop
	c.browser = browserCtx
	c.browserStop = browserStop
	c.order = mergeOrder(nil, infos)
	if len(c.order) > 0 {
		c.current = c.order[0]
	}
	c.started = true

	c.logger.Info("Control session attached.",
		zap.String("debugger_url", c.opts.DebuggerURL),
		zap.Int("windows", len(c.order)))
	return nil
}

// Stop detaches from every window, drops the protocol session, and shuts
// the application down when a process handle is attached. Safe to call
// twice.
func (c *CDP) Stop(ctx context.Context) error {
	c.mu.Lock()
	if c.started {
		// Stopping the browser context first means the cached window
		// sessions unwind against a closed connection instead of closing
		// the application's windows one by one.
		c.browserStop()
		c.allocStop()
		for _, t := range c.tabs {
			t.cancel()
		}
		c.tabs = make(map[target.ID]*tab)
		c.order = nil
		c.current = ""
		c.started = false
		c.logger.Info("Control session detached.")
	}
	c.mu.Unlock()

	if c.opts.Process != nil {
		// Teardown must reach the process even when the run context that
		// triggered it is already canceled.
		return c.opts.Process.Stop(detach(ctx))
	}
	return nil
}

// IsRunning reports whether the controlled process is alive. Without a
// process handle it falls back to the health of the protocol session.
func (c *CDP) IsRunning() bool {
	if c.opts.Process != nil {
		return c.opts.Process.IsRunning()
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.started && c.browser.Err() == nil
}

// WindowHandle returns the handle of the window commands currently route to.
func (c *CDP) WindowHandle(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.started {
		return "", ErrNotConnected
	}
	if c.current == "" {
		if err := c.refreshLocked(ctx); err != nil {
			return "", err
		}
		if len(c.order) == 0 {
			return "", fmt.Errorf("%w: application has no windows", ErrNoSuchWindow)
		}
		c.current = c.order[0]
	}
	return string(c.current), nil
}

// WindowHandles returns all window handles in creation order. Every call
// folds a fresh target listing into the ledger, so newly opened windows
// append and closed ones drop out while surviving slots keep their order.
func (c *CDP) WindowHandles(ctx context.Context) ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.started {
		return nil, ErrNotConnected
	}
	if err := c.refreshLocked(ctx); err != nil {
		return nil, err
	}
	handles := make([]string, len(c.order))
	for i, id := range c.order {
		handles[i] = string(id)
	}
	return handles, nil
}

// WindowByIndex reroutes subsequent commands to the window at index in the
// ledger. Switching never closes the previous window; its session stays
// cached for switching back.
func (c *CDP) WindowByIndex(ctx context.Context, index int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.started {
		return ErrNotConnected
	}
	if index < 0 {
		return fmt.Errorf("%w: negative index %d", ErrNoSuchWindow, index)
	}
	if err := c.refreshLocked(ctx); err != nil {
		return err
	}
	if index >= len(c.order) {
		return fmt.Errorf("%w: index %d of %d windows", ErrNoSuchWindow, index, len(c.order))
	}
	c.current = c.order[index]
	c.logger.Debug("Switched window focus.",
		zap.Int("index", index),
		zap.String("handle", string(c.current)))
	return nil
}

// refreshLocked re-lists targets and folds them into the ledger. Callers
// hold c.mu.
func (c *CDP) refreshLocked(ctx context.Context) error {
	listCtx, cancel := combineContext(c.browser, ctx)
	defer cancel()
	infos, err := chromedp.Targets(listCtx)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("listing windows: %w", err)
	}
	c.order = mergeOrder(c.order, infos)
	return nil
}

// tabContext returns the cached chromedp context for the current window,
// creating it on first use.
func (c *CDP) tabContext() (context.Context, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.started {
		return nil, ErrNotConnected
	}
	if c.current == "" {
		return nil, fmt.Errorf("%w: no window adopted yet", ErrNoSuchWindow)
	}
	if t, ok := c.tabs[c.current]; ok {
		return t.ctx, nil
	}
	tabCtx, cancel := chromedp.NewContext(c.browser, chromedp.WithTargetID(c.current))
	c.tabs[c.current] = &tab{ctx: tabCtx, cancel: cancel}
	return tabCtx, nil
}

// run executes actions against the current window under an operation
// timeout. It returns the caller's context error on cancellation and
// context.DeadlineExceeded when only the operation budget ran out; callers
// wrap with the operation name.
func (c *CDP) run(ctx context.Context, timeout time.Duration, actions ...chromedp.Action) error {
	tabCtx, err := c.tabContext()
	if err != nil {
		return err
	}
	opCtx, opCancel := context.WithTimeout(ctx, timeout)
	defer opCancel()
	runCtx, runCancel := combineContext(tabCtx, opCtx)
	defer runCancel()

	if err := chromedp.Run(runCtx, actions...); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if opCtx.Err() == context.DeadlineExceeded {
			return context.DeadlineExceeded
		}
		return err
	}
	return nil
}

// mergeOrder folds a fresh target listing into the existing creation-order
// ledger: surviving windows keep their slots, closed ones drop out, and
// unseen ones append in listing order. The ledger is what gives window
// indexes a stable meaning.
func mergeOrder(old []target.ID, infos []*target.Info) []target.ID {
	alive := make(map[target.ID]bool, len(infos))
	for _, info := range infos {
		if isWindow(info) {
			alive[info.TargetID] = true
		}
	}

	next := make([]target.ID, 0, len(alive))
	seen := make(map[target.ID]bool, len(alive))
	for _, id := range old {
		if alive[id] && !seen[id] {
			next = append(next, id)
			seen[id] = true
		}
	}
	for _, info := range infos {
		if isWindow(info) && !seen[info.TargetID] {
			next = append(next, info.TargetID)
			seen[info.TargetID] = true
		}
	}
	return next
}

// isWindow filters the target listing down to top-level application
// windows. DevTools' own pages show up as type "page" too and must not
// occupy slots.
func isWindow(info *target.Info) bool {
	return info != nil && info.Type == "page" && !strings.HasPrefix(info.URL, "devtools://")
}

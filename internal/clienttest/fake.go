// Package clienttest provides a scripted in-memory client.Client for unit
// tests. It records every operation in call order and lets tests queue text
// reads, window-handle snapshots, and injected failures without a real
// protocol session.
package clienttest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/xkilldash9x/compass-pilot/internal/client"
)

// Op is one recorded facade call.
type Op struct {
	Method   string
	Selector string
	Value    string
	Timeout  time.Duration
	Reverse  bool
	Index    int
}

// Fake is a programmable client.Client. The zero value via New is running,
// focused on handle "window-0", and reports every wait as instantly
// satisfied.
type Fake struct {
	mu sync.Mutex

	ops     []Op
	running bool
	current string

	handleScript [][]string
	handleReads  int

	texts    map[string][]string
	failures map[string]error
}

var _ client.Client = (*Fake)(nil)

// New returns a running fake focused on "window-0" with a single window.
func New() *Fake {
	return &Fake{
		running:      true,
		current:      "window-0",
		handleScript: [][]string{{"window-0"}},
		texts:        make(map[string][]string),
		failures:     make(map[string]error),
	}
}

// ScriptHandles replaces the sequence of snapshots WindowHandles will return.
// Each call consumes the next snapshot; the last one repeats forever.
func (f *Fake) ScriptHandles(lists ...[]string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handleScript = lists
	f.handleReads = 0
}

// SetCurrentHandle overrides the focused window handle.
func (f *Fake) SetCurrentHandle(h string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.current = h
}

// QueueText scripts successive GetText results for selector; the last value
// repeats once the queue drains.
func (f *Fake) QueueText(selector string, values ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.texts[selector] = values
}

// FailWith makes every call of method against selector return err. Method
// names match the client.Client method names; selector may be empty for
// selector-less methods.
func (f *Fake) FailWith(method, selector string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures[method+" "+selector] = err
}

// Ops returns a copy of every recorded call in order.
func (f *Fake) Ops() []Op {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Op, len(f.ops))
	copy(out, f.ops)
	return out
}

// Calls returns the recorded ops for one method, in order.
func (f *Fake) Calls(method string) []Op {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []Op
	for _, op := range f.ops {
		if op.Method == method {
			out = append(out, op)
		}
	}
	return out
}

func (f *Fake) record(op Op) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ops = append(f.ops, op)
	if err, ok := f.failures[op.Method+" "+op.Selector]; ok {
		return err
	}
	return nil
}

func (f *Fake) Start(ctx context.Context) error {
	if err := f.record(Op{Method: "Start"}); err != nil {
		return err
	}
	f.mu.Lock()
	f.running = true
	f.mu.Unlock()
	return nil
}

func (f *Fake) Stop(ctx context.Context) error {
	if err := f.record(Op{Method: "Stop"}); err != nil {
		return err
	}
	f.mu.Lock()
	f.running = false
	f.mu.Unlock()
	return nil
}

func (f *Fake) IsRunning() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.running
}

func (f *Fake) Click(ctx context.Context, selector string) error {
	return f.record(Op{Method: "Click", Selector: selector})
}

func (f *Fake) SetValue(ctx context.Context, selector, value string) error {
	return f.record(Op{Method: "SetValue", Selector: selector, Value: value})
}

func (f *Fake) SelectByValue(ctx context.Context, selector, value string) error {
	return f.record(Op{Method: "SelectByValue", Selector: selector, Value: value})
}

func (f *Fake) GetText(ctx context.Context, selector string) (string, error) {
	if err := f.record(Op{Method: "GetText", Selector: selector}); err != nil {
		return "", err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	queue := f.texts[selector]
	if len(queue) == 0 {
		return "", nil
	}
	text := queue[0]
	if len(queue) > 1 {
		f.texts[selector] = queue[1:]
	}
	return text, nil
}

func (f *Fake) WaitForVisible(ctx context.Context, selector string, timeout time.Duration, reverse bool) error {
	return f.record(Op{Method: "WaitForVisible", Selector: selector, Timeout: timeout, Reverse: reverse})
}

func (f *Fake) WaitForExist(ctx context.Context, selector string, timeout time.Duration) error {
	return f.record(Op{Method: "WaitForExist", Selector: selector, Timeout: timeout})
}

func (f *Fake) WindowHandle(ctx context.Context) (string, error) {
	if err := f.record(Op{Method: "WindowHandle"}); err != nil {
		return "", err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.current, nil
}

func (f *Fake) WindowHandles(ctx context.Context) ([]string, error) {
	if err := f.record(Op{Method: "WindowHandles"}); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.handleScript) == 0 {
		return nil, nil
	}
	idx := f.handleReads
	if idx >= len(f.handleScript) {
		idx = len(f.handleScript) - 1
	}
	f.handleReads++
	snapshot := f.handleScript[idx]
	out := make([]string, len(snapshot))
	copy(out, snapshot)
	return out, nil
}

func (f *Fake) WindowByIndex(ctx context.Context, index int) error {
	if err := f.record(Op{Method: "WindowByIndex", Index: index}); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.handleScript) == 0 {
		return client.ErrNoSuchWindow
	}
	// Switch against the snapshot the last WindowHandles call served.
	idx := f.handleReads - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(f.handleScript) {
		idx = len(f.handleScript) - 1
	}
	snapshot := f.handleScript[idx]
	if index < 0 || index >= len(snapshot) {
		return fmt.Errorf("%w: index %d of %d handles", client.ErrNoSuchWindow, index, len(snapshot))
	}
	f.current = snapshot[index]
	return nil
}

// internal/applog/follower.go

// Package applog follows the captured stdout/stderr of the application
// under test and collects crash-shaped lines. The collected events feed the
// failure report; a run that times out because a renderer died should say
// so instead of just "element never appeared".
package applog

import (
	"context"
	"fmt"
	"regexp"
	"sync"
	"time"

	"github.com/hpcloud/tail"
	"go.uber.org/zap"
)

// Event is one crash-indicating log line.
type Event struct {
	Time time.Time
	Kind string
	Line string
}

// Event kinds, ordered by how fatal they usually are.
const (
	KindCrash    = "crash"
	KindUncaught = "uncaught-exception"
	KindGPU      = "gpu"
)

// classifiers maps output lines to event kinds. First match wins.
var classifiers = []struct {
	kind string
	re   *regexp.Regexp
}{
	{KindCrash, regexp.MustCompile(`(?i)(renderer process crashed|child process gone|segmentation fault|core dumped|fatal error)`)},
	{KindUncaught, regexp.MustCompile(`(?i)uncaught (exception|typeerror|referenceerror|error)`)},
	{KindGPU, regexp.MustCompile(`(?i)gpu process (crashed|launch failed|exited)`)},
}

// Follower tails one captured output file for the lifetime of a run.
type Follower struct {
	logger *zap.Logger
	path   string

	mu     sync.Mutex
	events []Event

	done chan struct{}
}

// NewFollower prepares a follower for the file at path. Nothing is opened
// until Start.
func NewFollower(path string, logger *zap.Logger) *Follower {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Follower{
		logger: logger.Named("applog"),
		path:   path,
		done:   make(chan struct{}),
	}
}

// Start begins following the file from its beginning and returns once the
// tail is attached. The follower runs until ctx is canceled or the file's
// line channel closes.
func (f *Follower) Start(ctx context.Context) error {
	t, err := tail.TailFile(f.path, tail.Config{
		Follow:    true,
		ReOpen:    true,
		MustExist: true,
		Logger:    tail.DiscardingLogger,
	})
	if err != nil {
		return fmt.Errorf("failed to tail application log file: %w", err)
	}
	f.logger.Debug("Following application output.", zap.String("path", f.path))

	go f.loop(ctx, t)
	return nil
}

func (f *Follower) loop(ctx context.Context, t *tail.Tail) {
	defer close(f.done)
	defer func() {
		t.Stop()
		t.Cleanup()
	}()

	for {
		select {
		case <-ctx.Done():
			f.logger.Debug("Stopping application log follower.")
			return
		case line, ok := <-t.Lines:
			if !ok {
				f.logger.Debug("Application log channel closed.")
				return
			}
			if line.Err != nil {
				f.logger.Warn("Error reading application log.", zap.Error(line.Err))
				continue
			}
			f.scan(line.Text)
		}
	}
}

// scan classifies one line and records it when it looks like crash
// evidence.
func (f *Follower) scan(text string) {
	for _, c := range classifiers {
		if !c.re.MatchString(text) {
			continue
		}
		ev := Event{Time: time.Now(), Kind: c.kind, Line: text}
		f.mu.Lock()
		f.events = append(f.events, ev)
		f.mu.Unlock()
		f.logger.Warn("Application emitted crash evidence.",
			zap.String("kind", c.kind),
			zap.String("line", text))
		return
	}
}

// Events returns a snapshot of everything recorded so far.
func (f *Follower) Events() []Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Event, len(f.events))
	copy(out, f.events)
	return out
}

// HasCrash reports whether any hard crash was seen.
func (f *Follower) HasCrash() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, ev := range f.events {
		if ev.Kind == KindCrash {
			return true
		}
	}
	return false
}

// Wait blocks until the follower's loop has exited. Call after canceling
// the context passed to Start.
func (f *Follower) Wait() {
	<-f.done
}

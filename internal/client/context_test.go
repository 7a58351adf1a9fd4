// internal/client/context_test.go
package client

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type ctxKey string

func TestCombineContext(t *testing.T) {
	t.Run("InheritsValuesFromTab", func(t *testing.T) {
		tabCtx := context.WithValue(context.Background(), ctxKey("window"), "schema")
		opCtx := context.WithValue(context.Background(), ctxKey("op"), "click")

		combined, cancel := combineContext(tabCtx, opCtx)
		defer cancel()

		assert.Equal(t, "schema", combined.Value(ctxKey("window")),
			"combined context must resolve values from the tab side")
		assert.Nil(t, combined.Value(ctxKey("op")),
			"operation-side values must not leak into the combined context")
	})

	t.Run("CanceledByTab", func(t *testing.T) {
		tabCtx, tabCancel := context.WithCancel(context.Background())
		combined, cancel := combineContext(tabCtx, context.Background())
		defer cancel()

		tabCancel()

		select {
		case <-combined.Done():
		case <-time.After(time.Second):
			t.Fatal("combined context did not follow tab cancellation")
		}
		assert.ErrorIs(t, combined.Err(), context.Canceled)
	})

	t.Run("CanceledByOperation", func(t *testing.T) {
		opCtx, opCancel := context.WithCancel(context.Background())
		combined, cancel := combineContext(context.Background(), opCtx)
		defer cancel()

		opCancel()

		select {
		case <-combined.Done():
		case <-time.After(time.Second):
			t.Fatal("combined context did not follow operation cancellation")
		}
		assert.ErrorIs(t, combined.Err(), context.Canceled)
	})

	t.Run("DeadlineFromTab", func(t *testing.T) {
		tabCtx, tabCancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer tabCancel()
		combined, cancel := combineContext(tabCtx, context.Background())
		defer cancel()

		select {
		case <-combined.Done():
		case <-time.After(time.Second):
			t.Fatal("combined context did not expire with the tab deadline")
		}
		assert.ErrorIs(t, combined.Err(), context.DeadlineExceeded,
			"tab deadline surfaces directly because the tab is the parent")
	})

	t.Run("DeadlineFromOperation", func(t *testing.T) {
		opCtx, opCancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer opCancel()
		combined, cancel := combineContext(context.Background(), opCtx)
		defer cancel()

		select {
		case <-combined.Done():
		case <-time.After(time.Second):
			t.Fatal("combined context did not expire with the operation deadline")
		}
		// The watcher relays the expiry as a cancellation, so callers check
		// the operation context itself to distinguish a timeout.
		assert.ErrorIs(t, combined.Err(), context.Canceled)
		require.ErrorIs(t, opCtx.Err(), context.DeadlineExceeded)
	})

	t.Run("ExplicitCancel", func(t *testing.T) {
		combined, cancel := combineContext(context.Background(), context.Background())
		cancel()

		select {
		case <-combined.Done():
		case <-time.After(time.Second):
			t.Fatal("combined context ignored its own cancel func")
		}
		assert.ErrorIs(t, combined.Err(), context.Canceled)
	})
}

func TestDetach(t *testing.T) {
	t.Run("InheritsValues", func(t *testing.T) {
		parent := context.WithValue(context.Background(), ctxKey("window"), "schema")
		detached := detach(parent)
		assert.Equal(t, "schema", detached.Value(ctxKey("window")))
	})

	t.Run("IgnoresParentCancellation", func(t *testing.T) {
		parent, cancel := context.WithCancel(context.Background())
		detached := detach(parent)

		cancel()

		require.ErrorIs(t, parent.Err(), context.Canceled)
		assert.NoError(t, detached.Err(), "detached context must survive parent cancellation")
		assert.Nil(t, detached.Done())
	})

	t.Run("IgnoresParentDeadline", func(t *testing.T) {
		parent, cancel := context.WithTimeout(context.Background(), time.Nanosecond)
		defer cancel()
		detached := detach(parent)

		<-parent.Done()

		_, ok := detached.Deadline()
		assert.False(t, ok, "detached context must not carry the parent deadline")
		assert.NoError(t, detached.Err())
	})

	t.Run("DerivedContextKeepsOwnTimeout", func(t *testing.T) {
		parent, parentCancel := context.WithCancel(context.Background())
		parentCancel()

		derived, cancel := context.WithTimeout(detach(parent), 20*time.Millisecond)
		defer cancel()

		select {
		case <-derived.Done():
		case <-time.After(time.Second):
			t.Fatal("context derived from a detached parent never expired")
		}
		assert.ErrorIs(t, derived.Err(), context.DeadlineExceeded)
	})
}

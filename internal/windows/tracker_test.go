// internal/windows/tracker_test.go
package windows

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"

	"github.com/xkilldash9x/compass-pilot/internal/clienttest"
	"github.com/xkilldash9x/compass-pilot/internal/wait"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newTracker(fake *clienttest.Fake) *Tracker {
	return NewTracker(fake, zap.NewNop())
}

func TestWaitForWindow_ResolvesWhenSlotChanges(t *testing.T) {
	fake := clienttest.New()
	fake.SetCurrentHandle("connect-window")
	// First two polls still show the old window at slot 0, then the schema
	// window takes its place.
	fake.ScriptHandles(
		[]string{"connect-window"},
		[]string{"connect-window"},
		[]string{"schema-window", "connect-window"},
	)

	handle, err := newTracker(fake).WaitForWindow(context.Background(), 0, 2*time.Second, 10*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, "schema-window", handle)

	switches := fake.Calls("WindowByIndex")
	require.Len(t, switches, 1)
	assert.Equal(t, 0, switches[0].Index)
}

func TestWaitForWindow_IndexBeyondListKeepsWaiting(t *testing.T) {
	fake := clienttest.New()
	fake.SetCurrentHandle("main-window")
	// Slot 1 does not exist for the first three polls. A naive "handle at
	// index differs from captured" check would false-succeed immediately.
	fake.ScriptHandles(
		[]string{"main-window"},
		[]string{"main-window"},
		[]string{"main-window"},
		[]string{"main-window", "help-window"},
	)

	handle, err := newTracker(fake).WaitForWindow(context.Background(), 1, 2*time.Second, 10*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, "help-window", handle)
	assert.GreaterOrEqual(t, len(fake.Calls("WindowHandles")), 4, "must keep polling until the slot is populated")
}

func TestWaitForWindow_TimesOutWhileSlotMissing(t *testing.T) {
	fake := clienttest.New()
	fake.SetCurrentHandle("main-window")
	fake.ScriptHandles([]string{"main-window"})

	_, err := newTracker(fake).WaitForWindow(context.Background(), 1, 150*time.Millisecond, 20*time.Millisecond)
	require.Error(t, err)
	assert.True(t, wait.IsTimeout(err))
	assert.Empty(t, fake.Calls("WindowByIndex"), "no switch may happen on timeout")
}

func TestWaitForWindow_TimesOutWhileHandleUnchanged(t *testing.T) {
	fake := clienttest.New()
	fake.SetCurrentHandle("only-window")
	fake.ScriptHandles([]string{"only-window"})

	_, err := newTracker(fake).WaitForWindow(context.Background(), 0, 150*time.Millisecond, 20*time.Millisecond)
	require.Error(t, err)

	var te *wait.TimeoutError
	require.ErrorAs(t, err, &te)
	assert.Contains(t, te.Op, "slot 0")
}

func TestWaitForWindow_NegativeIndexRejected(t *testing.T) {
	fake := clienttest.New()
	_, err := newTracker(fake).WaitForWindow(context.Background(), -1, time.Second, time.Millisecond)
	require.Error(t, err)
	assert.Empty(t, fake.Ops(), "no remote calls for an invalid index")
}

func TestWaitForWindow_HandleListErrorsAreTolerated(t *testing.T) {
	fake := clienttest.New()
	fake.SetCurrentHandle("connect-window")
	fake.ScriptHandles([]string{"schema-window"})
	listErr := errors.New("window list unavailable")
	fake.FailWith("WindowHandles", "", listErr)

	_, err := newTracker(fake).WaitForWindow(context.Background(), 0, 120*time.Millisecond, 20*time.Millisecond)
	require.Error(t, err)

	var te *wait.TimeoutError
	require.ErrorAs(t, err, &te)
	assert.ErrorIs(t, te.LastErr, listErr, "the last probe error must ride along in the timeout")
}

func TestWaitForWindow_CapturedHandleReadFailure(t *testing.T) {
	fake := clienttest.New()
	readErr := errors.New("no focused window")
	fake.FailWith("WindowHandle", "", readErr)

	_, err := newTracker(fake).WaitForWindow(context.Background(), 0, time.Second, time.Millisecond)
	require.ErrorIs(t, err, readErr)
}

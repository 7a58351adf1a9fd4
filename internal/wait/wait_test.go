// internal/wait/wait_test.go
package wait

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestUntil_ImmediateSuccess(t *testing.T) {
	var calls int32
	pred := func(ctx context.Context) (bool, error) {
		atomic.AddInt32(&calls, 1)
		return true, nil
	}

	start := time.Now()
	err := Until(context.Background(), "immediate condition", pred, 5*time.Second, 50*time.Millisecond)
	elapsed := time.Since(start)

	require.NoError(t, err)
	assert.EqualValues(t, 1, atomic.LoadInt32(&calls), "predicate should be probed exactly once")
	assert.Less(t, elapsed, 500*time.Millisecond, "an immediately-true predicate must not wait for an interval")
}

func TestUntil_EventualSuccess(t *testing.T) {
	var calls int32
	pred := func(ctx context.Context) (bool, error) {
		return atomic.AddInt32(&calls, 1) >= 3, nil
	}

	start := time.Now()
	err := Until(context.Background(), "third probe condition", pred, 5*time.Second, 50*time.Millisecond)
	elapsed := time.Since(start)

	require.NoError(t, err)
	assert.EqualValues(t, 3, atomic.LoadInt32(&calls))
	// Two interval gaps must have passed, but nowhere near the budget.
	assert.GreaterOrEqual(t, elapsed, 100*time.Millisecond)
	assert.Less(t, elapsed, 2*time.Second)
}

func TestUntil_Timeout(t *testing.T) {
	pred := func(ctx context.Context) (bool, error) { return false, nil }

	start := time.Now()
	err := Until(context.Background(), "never-true condition", pred, 300*time.Millisecond, 50*time.Millisecond)
	elapsed := time.Since(start)

	require.Error(t, err)

	var te *TimeoutError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, "never-true condition", te.Op)
	assert.Equal(t, 300*time.Millisecond, te.Timeout)
	assert.NoError(t, te.LastErr)
	assert.GreaterOrEqual(t, te.Elapsed, 250*time.Millisecond, "recorded elapsed time should reflect the budget spent")

	assert.True(t, IsTimeout(err))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Contains(t, err.Error(), "never-true condition")

	// The wait must not return early nor run far past its budget.
	assert.GreaterOrEqual(t, elapsed, 250*time.Millisecond, "timed out too fast")
	assert.Less(t, elapsed, 2*time.Second, "timed out too slowly")
}

func TestUntil_TimeoutCarriesLastProbeError(t *testing.T) {
	probeErr := errors.New("element not attached")
	pred := func(ctx context.Context) (bool, error) { return false, probeErr }

	err := Until(context.Background(), "broken probe", pred, 200*time.Millisecond, 50*time.Millisecond)

	var te *TimeoutError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, probeErr, te.LastErr)
	assert.Contains(t, err.Error(), "element not attached")
}

func TestUntil_ProbeErrorKeepsPolling(t *testing.T) {
	var calls int32
	pred := func(ctx context.Context) (bool, error) {
		switch atomic.AddInt32(&calls, 1) {
		case 1, 2:
			return false, errors.New("transient probe failure")
		default:
			return true, nil
		}
	}

	err := Until(context.Background(), "eventually probeable", pred, 5*time.Second, 20*time.Millisecond)
	require.NoError(t, err, "probe errors must not abort the wait")
	assert.EqualValues(t, 3, atomic.LoadInt32(&calls))
}

func TestUntil_CallerCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(80 * time.Millisecond)
		cancel()
	}()

	pred := func(ctx context.Context) (bool, error) { return false, nil }
	err := Until(ctx, "canceled externally", pred, 10*time.Second, 20*time.Millisecond)

	require.ErrorIs(t, err, context.Canceled)
	assert.False(t, IsTimeout(err), "caller cancellation must not masquerade as a wait timeout")
}

func TestUntil_DefaultInterval(t *testing.T) {
	var calls int32
	pred := func(ctx context.Context) (bool, error) {
		atomic.AddInt32(&calls, 1)
		return false, nil
	}

	// Interval 0 falls back to the 1s default: within a 1.1s budget the
	// predicate fires at t=0 and t=1s only.
	err := Until(context.Background(), "default cadence", pred, 1100*time.Millisecond, 0)

	require.Error(t, err)
	assert.True(t, IsTimeout(err))
	assert.EqualValues(t, 2, atomic.LoadInt32(&calls))
}

package sudo

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeepaliveRefreshesOnInterval(t *testing.T) {
	t.Parallel()

	var refreshes atomic.Int32
	refresh := func(ctx context.Context) error {
		refreshes.Add(1)
		return nil
	}

	k := start(context.Background(), nil, 5*time.Millisecond, refresh)
	require.NotNil(t, k)

	require.Eventually(t, func() bool {
		return refreshes.Load() >= 3
	}, time.Second, time.Millisecond)

	k.Stop()
}

func TestStopTerminatesTask(t *testing.T) {
	t.Parallel()

	var refreshes atomic.Int32
	refresh := func(ctx context.Context) error {
		refreshes.Add(1)
		return nil
	}

	k := start(context.Background(), nil, time.Millisecond, refresh)
	require.Eventually(t, func() bool { return refreshes.Load() >= 1 }, time.Second, time.Millisecond)

	k.Stop()
	after := refreshes.Load()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, after, refreshes.Load(), "no refresh may run after Stop returns")
}

func TestStopIsSafeOnNilHandle(t *testing.T) {
	t.Parallel()

	var k *Keepalive
	k.Stop()
}

func TestParentContextCancellationStopsTask(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	refresh := func(ctx context.Context) error { return nil }

	k := start(ctx, nil, time.Millisecond, refresh)
	cancel()

	select {
	case <-k.done:
	case <-time.After(time.Second):
		t.Fatal("task did not exit after parent context cancellation")
	}
}

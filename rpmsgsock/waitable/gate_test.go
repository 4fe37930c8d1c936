package waitable

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGate_NotifyThenWaitReturnsImmediately(t *testing.T) {
	g := NewGate()
	g.Notify()

	err := g.Wait(context.Background(), time.Second)
	require.NoError(t, err)
}

func TestGate_NotifyIsIdempotent(t *testing.T) {
	g := NewGate()
	g.Notify()
	g.Notify()
	g.Notify()

	require.NoError(t, g.Wait(context.Background(), time.Second))
	require.NoError(t, g.Wait(context.Background(), time.Second), "a second wait after notify must still observe it until Reset")
}

func TestGate_ResetRearms(t *testing.T) {
	g := NewGate()
	g.Notify()
	g.Reset()

	err := g.Wait(context.Background(), 20*time.Millisecond)
	assert.ErrorIs(t, err, ErrTimeout)
}

func TestGate_WaitTimesOut(t *testing.T) {
	g := NewGate()
	err := g.Wait(context.Background(), 10*time.Millisecond)
	assert.ErrorIs(t, err, ErrTimeout)
}

func TestGate_WaitHonoursContextCancellation(t *testing.T) {
	g := NewGate()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := g.Wait(ctx, time.Second)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestGate_ConcurrentNotifyWakesWaiter(t *testing.T) {
	g := NewGate()
	done := make(chan error, 1)
	go func() {
		done <- g.Wait(context.Background(), 2*time.Second)
	}()

	time.Sleep(10 * time.Millisecond)
	g.Notify()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("waiter was not woken by Notify")
	}
}

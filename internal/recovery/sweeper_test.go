package recovery

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestSweeperStopsWithContext(t *testing.T) {
	// Container tests in this package leave client goroutines behind.
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	store := NewMemoryStore()
	_, err := store.Issue(context.Background(), "karel", time.Nanosecond)
	require.NoError(t, err)

	sweeper := NewSweeper(store, 5*time.Millisecond, nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		sweeper.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool { return store.Len() == 0 }, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop")
	}
}

func TestSweepOnceReportsRemoved(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	_, err := store.Issue(ctx, "karel", time.Minute)
	require.NoError(t, err)

	sweeper := NewSweeper(store, 0, nil)
	assert.Zero(t, sweeper.SweepOnce(ctx))

	sweeper.now = func() time.Time { return time.Now().Add(time.Hour) }
	assert.Equal(t, 1, sweeper.SweepOnce(ctx))
}

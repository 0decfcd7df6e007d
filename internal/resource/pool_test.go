package resource

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPool_RunsJobs(t *testing.T) {
	p := NewPool(NewController(Config{MaxBackgroundWorkers: 2}))
	defer p.Close()

	var done atomic.Int32
	for i := 0; i < 10; i++ {
		require.NoError(t, p.Go(func(ctx context.Context) {
			done.Add(1)
		}))
	}
	p.Wait()
	assert.Equal(t, int32(10), done.Load())
}

func TestPool_BoundsConcurrency(t *testing.T) {
	p := NewPool(NewController(Config{MaxBackgroundWorkers: 2}))
	defer p.Close()

	var running, peak atomic.Int32
	for i := 0; i < 8; i++ {
		require.NoError(t, p.Go(func(ctx context.Context) {
			n := running.Add(1)
			for {
				old := peak.Load()
				if n <= old || peak.CompareAndSwap(old, n) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			running.Add(-1)
		}))
	}
	p.Wait()
	assert.LessOrEqual(t, peak.Load(), int32(2))
	assert.Equal(t, int32(0), running.Load())
}

func TestPool_CloseCancels(t *testing.T) {
	p := NewPool(nil)

	started := make(chan struct{})
	var cancelled atomic.Bool
	require.NoError(t, p.Go(func(ctx context.Context) {
		close(started)
		<-ctx.Done()
		cancelled.Store(true)
	}))

	<-started
	require.NoError(t, p.Close())
	assert.True(t, cancelled.Load())

	assert.ErrorIs(t, p.Go(func(context.Context) {}), ErrPoolClosed)
	require.NoError(t, p.Close())
}

func TestPool_CloseDropsQueuedJobs(t *testing.T) {
	p := NewPool(NewController(Config{MaxBackgroundWorkers: 1}))

	release := make(chan struct{})
	started := make(chan struct{})
	require.NoError(t, p.Go(func(ctx context.Context) {
		close(started)
		select {
		case <-release:
		case <-ctx.Done():
		}
	}))
	<-started

	var ran atomic.Bool
	require.NoError(t, p.Go(func(context.Context) { ran.Store(true) }))

	require.NoError(t, p.Close())
	close(release)
	assert.False(t, ran.Load())
}

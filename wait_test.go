package vectable

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWaitForIndices(t *testing.T) {
	ctx := context.Background()

	t.Run("ReturnsAfterBothComplete", func(t *testing.T) {
		db := newTestDB(t)
		tbl := createWords(t, db, textWords())

		require.NoError(t, tbl.CreateIndex(ctx, "vector", IVFPQ(MetricCosine)))
		require.NoError(t, tbl.CreateIndex(ctx, "text", FTS()))
		require.NoError(t, tbl.WaitForIndices(ctx, 2, waitFast(0)...))

		indices, err := tbl.ListIndices(ctx)
		require.NoError(t, err)
		assert.Len(t, indices, 2)
	})

	t.Run("NeverReturnsEarly", func(t *testing.T) {
		db := newTestDB(t)
		tbl := createWords(t, db, textWords())

		require.NoError(t, tbl.CreateIndex(ctx, "text", FTS()))
		require.NoError(t, tbl.WaitForIndices(ctx, 1, waitFast(0)...))

		err := tbl.WaitForIndices(ctx, 2, waitFast(5)...)
		require.ErrorIs(t, err, ErrIndexWaitTimeout)
	})

	t.Run("ReportsProgress", func(t *testing.T) {
		db := newTestDB(t)
		tbl := createWords(t, db, textWords())
		require.NoError(t, tbl.CreateIndex(ctx, "text", FTS()))
		require.NoError(t, tbl.WaitForIndices(ctx, 1, waitFast(0)...))

		var calls []int
		opts := append(waitFast(5), WithProgress(func(ready, expected int) {
			assert.Equal(t, 2, expected)
			calls = append(calls, ready)
		}))
		err := tbl.WaitForIndices(ctx, 2, opts...)
		require.ErrorIs(t, err, ErrIndexWaitTimeout)
		// No report after the final attempt.
		assert.Equal(t, []int{1, 1, 1, 1}, calls)

		calls = nil
		require.NoError(t, tbl.WaitForIndices(ctx, 1, opts...))
		assert.Empty(t, calls)
	})

	t.Run("Timeout", func(t *testing.T) {
		db := newTestDB(t)
		tbl := createWords(t, db, textWords())

		start := time.Now()
		err := tbl.WaitForIndices(ctx, 1,
			WithPollInterval(5*time.Millisecond),
			WithWaitTimeout(30*time.Millisecond),
		)
		require.ErrorIs(t, err, ErrIndexWaitTimeout)
		assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)
	})

	t.Run("ZeroExpected", func(t *testing.T) {
		db := newTestDB(t)
		tbl := createWords(t, db, textWords())
		require.NoError(t, tbl.WaitForIndices(ctx, 0, WithMaxAttempts(1)))
	})

	t.Run("Cancelled", func(t *testing.T) {
		db := newTestDB(t)
		tbl := createWords(t, db, textWords())

		cctx, cancel := context.WithCancel(ctx)
		cancel()
		err := tbl.WaitForIndices(cctx, 1, WithPollInterval(5*time.Millisecond))
		require.ErrorIs(t, err, context.Canceled)
		assert.NotErrorIs(t, err, ErrIndexWaitTimeout)
	})
}

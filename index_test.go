package vectable

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hupe1980/vectable/blobstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateIndexValidation(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	tbl := createWords(t, db, words())

	tests := []struct {
		name   string
		column string
		cfg    IndexConfig
		want   error
	}{
		{"VectorOnText", "text", IVFPQ(MetricL2), ErrInvalidConfig},
		{"VectorOnUnknown", "embedding", IVFPQ(MetricL2), ErrUnknownColumn},
		{"BadMetric", "vector", IVFPQ(Metric(42)), ErrInvalidConfig},
		{"SubVectors", "vector", IndexConfig{Type: IndexTypeIVFPQ, SubVectors: 2}, ErrInvalidConfig},
		{"FTSOnVector", "vector", FTS(), ErrInvalidConfig},
		{"FTSOnUnknown", "body", FTS(), ErrUnknownColumn},
		{"UnknownType", "text", IndexConfig{Type: "BTREE"}, ErrInvalidConfig},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tbl.CreateIndex(ctx, tt.column, tt.cfg)
			assert.ErrorIs(t, err, tt.want)
		})
	}

	indices, err := tbl.ListIndices(ctx)
	require.NoError(t, err)
	assert.Empty(t, indices)
}

func TestIndexLifecycle(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	tbl := createWords(t, db, textWords())

	require.NoError(t, tbl.CreateIndex(ctx, "vector", IVFPQ(MetricCosine)))
	require.NoError(t, tbl.CreateIndex(ctx, "text", FTS()))
	require.NoError(t, tbl.WaitForIndices(ctx, 2, waitFast(0)...))

	indices, err := tbl.ListIndices(ctx)
	require.NoError(t, err)
	require.Len(t, indices, 2)

	byName := map[string]IndexInfo{}
	for _, info := range indices {
		byName[info.Name] = info
	}
	assert.Equal(t, IndexTypeIVFPQ, byName["vector_idx"].Type)
	assert.Equal(t, MetricCosine, byName["vector_idx"].Metric)
	assert.Equal(t, 5, byName["vector_idx"].Rows)
	assert.Equal(t, IndexTypeFTS, byName["text_idx"].Type)
	assert.Equal(t, uint64(1), byName["text_idx"].Version)

	stats, err := tbl.IndexStats(ctx, "vector_idx")
	require.NoError(t, err)
	assert.Equal(t, IndexStatusReady, stats.Status)
	assert.Zero(t, stats.UnindexedRows)
	assert.Positive(t, stats.Partitions)
	assert.Positive(t, stats.SubVectors)

	_, err = tbl.IndexStats(ctx, "missing")
	assert.ErrorIs(t, err, ErrIndexNotFound)

	t.Run("Replace", func(t *testing.T) {
		require.NoError(t, tbl.CreateIndex(ctx, "text", IndexConfig{Type: IndexTypeFTS, Name: "text_fts"}))
		require.NoError(t, tbl.WaitForIndices(ctx, 2, waitFast(0)...))

		indices, err := tbl.ListIndices(ctx)
		require.NoError(t, err)
		require.Len(t, indices, 2)
		names := []string{indices[0].Name, indices[1].Name}
		assert.ElementsMatch(t, []string{"text_fts", "vector_idx"}, names)

		_, err = tbl.IndexStats(ctx, "text_idx")
		assert.ErrorIs(t, err, ErrIndexNotFound)

		rows, err := tbl.Query().FullTextSearch("carrot").Select("id").ToArray(ctx)
		require.NoError(t, err)
		require.NotEmpty(t, rows)
		assert.Equal(t, int64(3), rows[0]["id"])
	})

	t.Run("UnindexedRowsFollowCheckout", func(t *testing.T) {
		require.NoError(t, tbl.Add(ctx, textWords()[:2]))

		stats, err := tbl.IndexStats(ctx, "vector_idx")
		require.NoError(t, err)
		assert.Equal(t, 2, stats.UnindexedRows)

		require.NoError(t, tbl.Checkout(ctx, 1))
		stats, err = tbl.IndexStats(ctx, "vector_idx")
		require.NoError(t, err)
		assert.Zero(t, stats.UnindexedRows)
		require.NoError(t, tbl.CheckoutLatest(ctx))
	})

	t.Run("DroppedWithTable", func(t *testing.T) {
		require.NoError(t, db.DropTable(ctx, "words"))
		tbl := createWords(t, db, textWords())

		indices, err := tbl.ListIndices(ctx)
		require.NoError(t, err)
		assert.Empty(t, indices)
	})
}

func TestIndexBuildFailure(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	tbl, err := db.CreateTable(ctx, "empty", nil, WithDimension(8))
	require.NoError(t, err)

	require.NoError(t, tbl.CreateIndex(ctx, "vector", IVFPQ(MetricL2)))

	err = tbl.WaitForIndices(ctx, 1, waitFast(0)...)
	require.ErrorIs(t, err, ErrIndexBuildFailed)

	stats, err := tbl.IndexStats(ctx, "vector_idx")
	require.NoError(t, err)
	assert.Equal(t, IndexStatusFailed, stats.Status)
	assert.NotEmpty(t, stats.Error)

	indices, err := tbl.ListIndices(ctx)
	require.NoError(t, err)
	assert.Empty(t, indices)
}

// gatedStore blocks the n-th write of index metadata until release is closed.
type gatedStore struct {
	blobstore.BlobStore
	n       int32
	writes  atomic.Int32
	reached chan struct{}
	release chan struct{}
}

func (s *gatedStore) Put(ctx context.Context, name string, data []byte) error {
	if strings.HasSuffix(name, ".meta") && s.writes.Add(1) == s.n {
		close(s.reached)
		<-s.release
	}
	return s.BlobStore.Put(ctx, name, data)
}

func TestOverwriteWaitsForIndexPublish(t *testing.T) {
	ctx := context.Background()
	store := &gatedStore{
		BlobStore: blobstore.NewMemoryStore(),
		n:         2, // pending, then the build outcome
		reached:   make(chan struct{}),
		release:   make(chan struct{}),
	}
	db := newTestDB(t, WithBlobStore(store))
	tbl := createWords(t, db, words())
	require.NoError(t, tbl.CreateIndex(ctx, "vector", IVFPQ(MetricL2)))

	select {
	case <-store.reached:
	case <-time.After(10 * time.Second):
		t.Fatal("index build never published")
	}

	var wg sync.WaitGroup
	var replaced *Table
	var err error
	wg.Add(1)
	go func() {
		defer wg.Done()
		replaced, err = db.CreateTable(ctx, "words", textWords(), WithMode(CreateModeOverwrite))
	}()
	time.Sleep(20 * time.Millisecond)
	close(store.release)
	wg.Wait()
	require.NoError(t, err)

	// The old build's outcome must not leak into the new table.
	indices, err := replaced.ListIndices(ctx)
	require.NoError(t, err)
	assert.Empty(t, indices)
	_, err = replaced.IndexStats(ctx, "vector_idx")
	assert.ErrorIs(t, err, ErrIndexNotFound)
}

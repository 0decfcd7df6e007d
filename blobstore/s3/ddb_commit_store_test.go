package s3

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/hupe1980/vectable/blobstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDDBCommitStore(ddb *mockDDBClient, baseURI string) *DDBCommitStore {
	return NewDDBCommitStore(NewStore(&MockS3Client{}, "test-bucket", "test/"), ddb, "vectable-commits", baseURI)
}

func TestDDBCommitStore_LatestBeforeCommit(t *testing.T) {
	store := newTestDDBCommitStore(newMockDDBClient(), "s3://test-bucket/test/")

	v, err := store.LatestVersion(context.Background(), "food_table")
	require.NoError(t, err)
	assert.Equal(t, uint64(0), v)
}

func TestDDBCommitStore_MultipleCommits(t *testing.T) {
	ctx := context.Background()
	store := newTestDDBCommitStore(newMockDDBClient(), "s3://test-bucket/test/")

	for i := uint64(1); i <= 12; i++ {
		require.NoError(t, store.CommitVersion(ctx, "food_table", i, fmt.Sprintf("%020d.manifest", i)))
	}

	v, err := store.LatestVersion(ctx, "food_table")
	require.NoError(t, err)
	assert.Equal(t, uint64(12), v)
}

func TestDDBCommitStore_DuplicateVersion(t *testing.T) {
	ctx := context.Background()
	store := newTestDDBCommitStore(newMockDDBClient(), "s3://test-bucket/test/")

	require.NoError(t, store.CommitVersion(ctx, "t", 1, "a"))
	err := store.CommitVersion(ctx, "t", 1, "b")
	assert.ErrorIs(t, err, blobstore.ErrExists)
}

func TestDDBCommitStore_ConcurrentCommits(t *testing.T) {
	ctx := context.Background()
	store := newTestDDBCommitStore(newMockDDBClient(), "s3://test-bucket/test/")

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		conflicts int
	)
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			err := store.CommitVersion(ctx, "t", 2, fmt.Sprintf("writer-%d", id))
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case errors.Is(err, blobstore.ErrExists):
				conflicts++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, successes)
	assert.Equal(t, 4, conflicts)
}

func TestDDBCommitStore_IsolatedNamespaces(t *testing.T) {
	ctx := context.Background()
	ddb := newMockDDBClient()
	a := newTestDDBCommitStore(ddb, "s3://test-bucket/a/")
	b := newTestDDBCommitStore(ddb, "s3://test-bucket/b/")

	require.NoError(t, a.CommitVersion(ctx, "t", 1, "m"))
	require.NoError(t, a.CommitVersion(ctx, "t", 2, "m"))
	require.NoError(t, b.CommitVersion(ctx, "t", 1, "m"))
	require.NoError(t, a.CommitVersion(ctx, "other", 1, "m"))

	va, err := a.LatestVersion(ctx, "t")
	require.NoError(t, err)
	vb, err := b.LatestVersion(ctx, "t")
	require.NoError(t, err)
	assert.Equal(t, uint64(2), va)
	assert.Equal(t, uint64(1), vb)
}

func TestDDBCommitStore_DropVersions(t *testing.T) {
	ctx := context.Background()
	store := newTestDDBCommitStore(newMockDDBClient(), "s3://test-bucket/test/")

	for i := uint64(1); i <= 3; i++ {
		require.NoError(t, store.CommitVersion(ctx, "t", i, "m"))
	}
	require.NoError(t, store.CommitVersion(ctx, "keep", 1, "m"))
	require.NoError(t, store.DropVersions(ctx, "t"))

	v, err := store.LatestVersion(ctx, "t")
	require.NoError(t, err)
	assert.Equal(t, uint64(0), v)

	v, err = store.LatestVersion(ctx, "keep")
	require.NoError(t, err)
	assert.Equal(t, uint64(1), v)

	// A dropped key can be committed again from version 1.
	require.NoError(t, store.CommitVersion(ctx, "t", 1, "m"))
}

package vectable

import (
	"context"
	"errors"
	"testing"

	"github.com/hupe1980/vectable/blobstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConnect(t *testing.T) {
	ctx := context.Background()

	t.Run("Memory", func(t *testing.T) {
		db, err := Connect(ctx, "memory://")
		require.NoError(t, err)
		defer db.Close()
		assert.Equal(t, "memory://", db.URI())
		assert.Nil(t, db.Embedder())

		names, err := db.TableNames(ctx)
		require.NoError(t, err)
		assert.Empty(t, names)
	})

	t.Run("UnsupportedScheme", func(t *testing.T) {
		_, err := Connect(ctx, "ftp://example.com/data")
		assert.ErrorIs(t, err, ErrUnsupportedScheme)

		_, err = Connect(ctx, "")
		assert.ErrorIs(t, err, ErrUnsupportedScheme)
	})

	t.Run("ConnectError", func(t *testing.T) {
		_, err := Connect(ctx, "minio://localhost:9000")
		var ce *ConnectError
		require.ErrorAs(t, err, &ce)
		assert.Equal(t, "minio://localhost:9000", ce.URI)
		assert.ErrorIs(t, err, ErrInvalidConfig)
	})

	t.Run("UnreachableStore", func(t *testing.T) {
		down := errors.New("no such host")
		_, err := Connect(ctx, "s3://bucket/tables", WithBlobStore(&pingStore{BlobStore: blobstore.NewMemoryStore(), err: down}))
		var ce *ConnectError
		require.ErrorAs(t, err, &ce)
		assert.Equal(t, "s3://bucket/tables", ce.URI)
		assert.ErrorIs(t, err, down)

		db, err := Connect(ctx, "s3://bucket/tables", WithBlobStore(&pingStore{BlobStore: blobstore.NewMemoryStore()}))
		require.NoError(t, err)
		require.NoError(t, db.Close())
	})

	t.Run("LocalPersists", func(t *testing.T) {
		dir := t.TempDir()

		db, err := Connect(ctx, dir)
		require.NoError(t, err)
		_, err = db.CreateTable(ctx, "words", words())
		require.NoError(t, err)
		require.NoError(t, db.Close())

		db, err = Connect(ctx, "file://"+dir)
		require.NoError(t, err)
		defer db.Close()

		tbl, err := db.OpenTable(ctx, "words")
		require.NoError(t, err)
		n, err := tbl.CountRows(ctx)
		require.NoError(t, err)
		assert.Equal(t, 5, n)
	})
}

func TestCreateTable(t *testing.T) {
	ctx := context.Background()

	t.Run("Create", func(t *testing.T) {
		db := newTestDB(t)
		tbl, err := db.CreateTable(ctx, "words", words())
		require.NoError(t, err)
		assert.Equal(t, "words", tbl.Name())

		n, err := tbl.CountRows(ctx)
		require.NoError(t, err)
		assert.Equal(t, 5, n)

		v, err := tbl.Version(ctx)
		require.NoError(t, err)
		assert.Equal(t, uint64(1), v)

		dim, err := tbl.Dimension(ctx)
		require.NoError(t, err)
		assert.Equal(t, 3, dim)

		_, err = db.CreateTable(ctx, "words", words())
		assert.ErrorIs(t, err, ErrTableExists)
	})

	t.Run("OverwriteCount", func(t *testing.T) {
		db := newTestDB(t)
		createWords(t, db, words())

		tbl, err := db.CreateTable(ctx, "words", words()[:2], WithMode(CreateModeOverwrite))
		require.NoError(t, err)

		n, err := tbl.CountRows(ctx)
		require.NoError(t, err)
		assert.Equal(t, 2, n)

		versions, err := tbl.ListVersions(ctx)
		require.NoError(t, err)
		require.Len(t, versions, 1)
		assert.Equal(t, uint64(1), versions[0].Version)
	})

	t.Run("EmbedsText", func(t *testing.T) {
		db := newTestDB(t)
		tbl := createWords(t, db, textWords())

		dim, err := tbl.Dimension(ctx)
		require.NoError(t, err)
		assert.Equal(t, 64, dim)
	})

	t.Run("NoEmbedder", func(t *testing.T) {
		db, err := Connect(ctx, "memory://")
		require.NoError(t, err)
		defer db.Close()

		_, err = db.CreateTable(ctx, "words", textWords())
		assert.ErrorIs(t, err, ErrInvalidConfig)
	})

	t.Run("Empty", func(t *testing.T) {
		db := newTestDB(t)
		_, err := db.CreateTable(ctx, "empty", nil)
		assert.ErrorIs(t, err, ErrInvalidConfig)

		tbl, err := db.CreateTable(ctx, "empty", nil, WithDimension(3))
		require.NoError(t, err)
		n, err := tbl.CountRows(ctx)
		require.NoError(t, err)
		assert.Zero(t, n)

		require.NoError(t, tbl.Add(ctx, words()))
		n, err = tbl.CountRows(ctx)
		require.NoError(t, err)
		assert.Equal(t, 5, n)
	})

	t.Run("DimensionMismatch", func(t *testing.T) {
		db := newTestDB(t)
		rows := words()
		rows[3].Vector = []float32{1, 2}

		_, err := db.CreateTable(ctx, "words", rows)
		var dm *ErrDimensionMismatch
		require.ErrorAs(t, err, &dm)
		assert.Equal(t, 3, dm.Expected)
		assert.Equal(t, 2, dm.Actual)
	})

	t.Run("InvalidName", func(t *testing.T) {
		db := newTestDB(t)
		for _, name := range []string{"", "a/b", "_versions", ".hidden"} {
			_, err := db.CreateTable(ctx, name, words())
			assert.ErrorIs(t, err, ErrInvalidConfig, name)
		}
	})

	t.Run("MetadataColumns", func(t *testing.T) {
		db := newTestDB(t)
		rows := words()
		rows[0].Metadata = map[string]any{"color": "red"}
		tbl := createWords(t, db, rows)

		cols, err := tbl.Columns(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"id", "text", "type", "vector", "color"}, cols)
	})
}

func TestAdd(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	all := words()
	tbl := createWords(t, db, all[:2])

	before, err := tbl.Query().Limit(100).ToArray(ctx)
	require.NoError(t, err)

	require.NoError(t, tbl.Add(ctx, all[2:]))

	n, err := tbl.CountRows(ctx)
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	v, err := tbl.Version(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), v)

	after, err := tbl.Query().Limit(100).ToArray(ctx)
	require.NoError(t, err)
	for _, row := range before {
		assert.Contains(t, after, row)
	}

	t.Run("Empty", func(t *testing.T) {
		require.NoError(t, tbl.Add(ctx, nil))
		v, err := tbl.Version(ctx)
		require.NoError(t, err)
		assert.Equal(t, uint64(2), v)
	})

	t.Run("DimensionMismatch", func(t *testing.T) {
		err := tbl.Add(ctx, []Record{{ID: 9, Text: "x", Vector: []float32{1}}})
		var dm *ErrDimensionMismatch
		require.ErrorAs(t, err, &dm)
		var oe *OpError
		require.ErrorAs(t, err, &oe)
		assert.Equal(t, "add", oe.Op)
	})
}

func TestVersioning(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	all := textWords()

	tbl := createWords(t, db, all[:2])
	n, err := tbl.CountRows(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	v0, err := tbl.Version(ctx)
	require.NoError(t, err)

	query := func() []Row {
		rows, err := tbl.Query().NearestToText("fruit").Select("id", "text").Limit(10).ToArray(ctx)
		require.NoError(t, err)
		return rows
	}
	original := query()
	require.Len(t, original, 2)

	require.NoError(t, tbl.Add(ctx, all[2:]))
	n, err = tbl.CountRows(ctx)
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	v1, err := tbl.Version(ctx)
	require.NoError(t, err)
	assert.Greater(t, v1, v0)
	assert.Len(t, query(), 5)

	require.NoError(t, tbl.Checkout(ctx, v0))
	v, err := tbl.Version(ctx)
	require.NoError(t, err)
	assert.Equal(t, v0, v)
	n, err = tbl.CountRows(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, original, query())

	t.Run("OtherHandlesUnaffected", func(t *testing.T) {
		other, err := db.OpenTable(ctx, "words")
		require.NoError(t, err)
		n, err := other.CountRows(ctx)
		require.NoError(t, err)
		assert.Equal(t, 5, n)
	})

	t.Run("DetachedHead", func(t *testing.T) {
		err := tbl.Add(ctx, all[:1])
		assert.ErrorIs(t, err, ErrDetachedHead)
	})

	t.Run("UnknownVersion", func(t *testing.T) {
		assert.ErrorIs(t, tbl.Checkout(ctx, 99), ErrVersionNotFound)
		assert.ErrorIs(t, tbl.Checkout(ctx, 0), ErrVersionNotFound)
	})

	t.Run("Restore", func(t *testing.T) {
		require.NoError(t, tbl.Restore(ctx))

		v, err := tbl.Version(ctx)
		require.NoError(t, err)
		assert.Equal(t, v1+1, v)
		n, err := tbl.CountRows(ctx)
		require.NoError(t, err)
		assert.Equal(t, 2, n)

		versions, err := tbl.ListVersions(ctx)
		require.NoError(t, err)
		require.Len(t, versions, 3)
		assert.Equal(t, v0, versions[2].RestoredFrom)
		assert.Equal(t, 5, versions[1].Rows)

		// The restored version accepts appends again.
		require.NoError(t, tbl.Add(ctx, all[4:]))
		n, err = tbl.CountRows(ctx)
		require.NoError(t, err)
		assert.Equal(t, 3, n)
	})

	t.Run("CheckoutLatest", func(t *testing.T) {
		require.NoError(t, tbl.Checkout(ctx, v1))
		require.NoError(t, tbl.CheckoutLatest(ctx))
		n, err := tbl.CountRows(ctx)
		require.NoError(t, err)
		assert.Equal(t, 3, n)
	})
}

func TestCheckoutAcrossOverwrite(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)

	tbl := createWords(t, db, words()[:2])
	require.NoError(t, tbl.Add(ctx, words()[2:]))
	require.NoError(t, tbl.Checkout(ctx, 1))

	// The replacement table starts again at version 1.
	createWords(t, db, textWords())

	_, err := tbl.CountRows(ctx)
	assert.ErrorIs(t, err, ErrVersionNotFound)
	_, err = tbl.Version(ctx)
	assert.ErrorIs(t, err, ErrVersionNotFound)
	_, err = tbl.Query().Limit(10).ToArray(ctx)
	assert.ErrorIs(t, err, ErrVersionNotFound)
	assert.ErrorIs(t, tbl.Add(ctx, words()[:1]), ErrVersionNotFound)
	assert.ErrorIs(t, tbl.Restore(ctx), ErrVersionNotFound)

	// Checking out again binds to the new table.
	require.NoError(t, tbl.Checkout(ctx, 1))
	rows, err := tbl.Query().Select("text").Limit(10).ToArray(ctx)
	require.NoError(t, err)
	assert.Len(t, rows, len(textWords()))

	require.NoError(t, tbl.CheckoutLatest(ctx))
	n, err := tbl.CountRows(ctx)
	require.NoError(t, err)
	assert.Equal(t, len(textWords()), n)
}

func TestCheckoutFollowsOwnAppends(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	tbl := createWords(t, db, words()[:2])

	require.NoError(t, tbl.Checkout(ctx, 1))
	require.NoError(t, tbl.Add(ctx, words()[2:]))

	v, err := tbl.Version(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), v)
	n, err := tbl.CountRows(ctx)
	require.NoError(t, err)
	assert.Equal(t, 5, n)
}

func TestCountRowsWhere(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	tbl := createWords(t, db, words())

	n, err := tbl.CountRowsWhere(ctx, "type = 'fruit'")
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	_, err = tbl.CountRowsWhere(ctx, "color = 'red'")
	assert.ErrorIs(t, err, ErrUnknownColumn)
}

func TestDropTable(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	createWords(t, db, words())
	_, err := db.CreateTable(ctx, "other", words())
	require.NoError(t, err)

	names, err := db.TableNames(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"other", "words"}, names)

	require.NoError(t, db.DropTable(ctx, "words"))
	_, err = db.OpenTable(ctx, "words")
	assert.ErrorIs(t, err, ErrTableNotFound)
	assert.ErrorIs(t, db.DropTable(ctx, "words"), ErrTableNotFound)

	names, err = db.TableNames(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"other"}, names)
}

func TestClose(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	tbl := createWords(t, db, words())

	require.NoError(t, db.Close())
	require.NoError(t, db.Close())

	_, err := db.CreateTable(ctx, "x", words())
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, tbl.Add(ctx, words()), ErrClosed)
	assert.ErrorIs(t, tbl.CreateIndex(ctx, "text", FTS()), ErrClosed)
}

type pingStore struct {
	blobstore.BlobStore
	err error
}

func (s *pingStore) Ping(context.Context) error { return s.err }

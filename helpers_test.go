package vectable

import (
	"context"
	"sort"
	"testing"
	"time"

	"github.com/hupe1980/vectable/embed"
	"github.com/stretchr/testify/require"
)

// words returns five rows with hand-placed 3-dimensional vectors.
func words() []Record {
	return []Record{
		{ID: 1, Text: "apple", Type: "fruit", Vector: []float32{1, 0, 0}},
		{ID: 2, Text: "banana", Type: "fruit", Vector: []float32{0.9, 0.1, 0}},
		{ID: 3, Text: "carrot", Type: "vegetable", Vector: []float32{0, 1, 0}},
		{ID: 4, Text: "broccoli", Type: "vegetable", Vector: []float32{0, 0.9, 0.1}},
		{ID: 5, Text: "cherry", Type: "fruit", Vector: []float32{0.8, 0, 0.2}},
	}
}

// textWords returns rows that are embedded on write.
func textWords() []Record {
	return []Record{
		{ID: 1, Text: "red apple is a sweet fruit", Type: "fruit"},
		{ID: 2, Text: "yellow banana is a soft fruit", Type: "fruit"},
		{ID: 3, Text: "orange carrot is a crunchy vegetable", Type: "vegetable"},
		{ID: 4, Text: "green broccoli is a healthy vegetable", Type: "vegetable"},
		{ID: 5, Text: "red cherry is a small fruit", Type: "fruit"},
	}
}

func newTestDB(t *testing.T, opts ...Option) *DB {
	t.Helper()
	emb := embed.NewHash(embed.WithDimension(64))
	t.Cleanup(func() { _ = emb.Close() })

	db, err := Connect(context.Background(), "memory://", append([]Option{WithEmbedder(emb)}, opts...)...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func createWords(t *testing.T, db *DB, records []Record) *Table {
	t.Helper()
	tbl, err := db.CreateTable(context.Background(), "words", records, WithMode(CreateModeOverwrite))
	require.NoError(t, err)
	return tbl
}

func waitFast(attempts int) []WaitOption {
	return []WaitOption{
		WithPollInterval(5 * time.Millisecond),
		WithWaitTimeout(10 * time.Second),
		WithMaxAttempts(attempts),
	}
}

func ids(rows []Row) []int64 {
	out := make([]int64, len(rows))
	for i, r := range rows {
		out[i] = r["id"].(int64)
	}
	return out
}

func sortedIDs(rows []Row) []int64 {
	out := ids(rows)
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

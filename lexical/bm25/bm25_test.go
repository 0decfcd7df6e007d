package bm25

import (
	"strings"
	"testing"

	"github.com/hupe1980/vectable/index"
	"github.com/hupe1980/vectable/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func addr(i int) model.RowAddr { return model.NewRowAddr(1, uint32(i)) }

func newFixture(t *testing.T) *MemoryIndex {
	t.Helper()
	idx := New()
	docs := []string{
		"the quick brown fox",
		"jumped over the lazy dog",
		"quick brown dogs",
		"fox and dog",
	}
	for i, d := range docs {
		require.NoError(t, idx.Add(addr(i), d))
	}
	return idx
}

func TestMemoryIndex_Basic(t *testing.T) {
	idx := newFixture(t)
	assert.Equal(t, 4, idx.Len())
	assert.Equal(t, index.KindBM25, idx.Kind())

	results, err := idx.Search("fox", 10, nil)
	require.NoError(t, err)
	require.Len(t, results, 2)

	found := map[model.RowAddr]bool{}
	for _, r := range results {
		found[r.Addr] = true
		assert.Greater(t, r.Score, float32(0))
	}
	assert.True(t, found[addr(0)])
	assert.True(t, found[addr(3)])

	// The shorter document ranks first.
	assert.Equal(t, addr(3), results[0].Addr)
}

func TestMemoryIndex_MultiTerm(t *testing.T) {
	idx := newFixture(t)

	results, err := idx.Search("quick fox", 10, nil)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, addr(0), results[0].Addr, "document matching both terms first")
	for i := 1; i < len(results); i++ {
		assert.GreaterOrEqual(t, results[i-1].Score, results[i].Score)
	}

	dup, err := idx.Search("quick quick fox", 10, nil)
	require.NoError(t, err)
	assert.Equal(t, results, dup, "repeated query terms do not change scores")
}

func TestMemoryIndex_LimitAndFilter(t *testing.T) {
	idx := newFixture(t)

	results, err := idx.Search("dog dogs fox", 1, nil)
	require.NoError(t, err)
	assert.Len(t, results, 1)

	onlyLazy := func(a model.RowAddr) bool { return a == addr(1) }
	results, err = idx.Search("dog", 10, onlyLazy)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, addr(1), results[0].Addr)

	results, err = idx.Search("dog", 0, nil)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestMemoryIndex_NoMatch(t *testing.T) {
	idx := newFixture(t)

	results, err := idx.Search("zebra", 10, nil)
	require.NoError(t, err)
	assert.Empty(t, results)

	empty := New()
	results, err = empty.Search("fox", 10, nil)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestMemoryIndex_CaseAndPunctuation(t *testing.T) {
	idx := New()
	require.NoError(t, idx.Add(addr(0), "Apples, BANANAS and pears."))

	results, err := idx.Search("bananas!", 10, nil)
	require.NoError(t, err)
	assert.Len(t, results, 1)
}

func TestMemoryIndex_TypeOverflow(t *testing.T) {
	idx := New()

	var sb strings.Builder
	for i := 0; i < 300; i++ {
		sb.WriteString("word ")
	}
	require.NoError(t, idx.Add(addr(0), sb.String()))

	res, err := idx.Search("word", 1, nil)
	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.Greater(t, res[0].Score, float32(0))
}

func TestMemoryIndex_MarshalRoundTrip(t *testing.T) {
	idx := newFixture(t)

	data, err := index.Marshal(idx)
	require.NoError(t, err)

	loaded, err := index.Unmarshal(data)
	require.NoError(t, err)
	restored, ok := loaded.(*MemoryIndex)
	require.True(t, ok)
	assert.Equal(t, idx.Len(), restored.Len())

	want, err := idx.Search("quick dog", 10, nil)
	require.NoError(t, err)
	got, err := restored.Search("quick dog", 10, nil)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	require.NoError(t, restored.Add(addr(9), "another quick one"))
	assert.Equal(t, 5, restored.Len())
}

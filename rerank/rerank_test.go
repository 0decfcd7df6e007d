package rerank

import (
	"testing"

	"github.com/hupe1980/vectable/index"
	"github.com/hupe1980/vectable/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func results(addrs ...model.RowAddr) []index.SearchResult {
	out := make([]index.SearchResult, len(addrs))
	for i, a := range addrs {
		out[i] = index.SearchResult{Addr: a, Score: float32(i)}
	}
	return out
}

func TestRRF(t *testing.T) {
	r := NewRRF(0)
	assert.Equal(t, DefaultRRFK, r.K)
	assert.Equal(t, "rrf", r.Name())

	// Row 2 is second in the vector list and first in the text list.
	got := r.Rerank(results(1, 2, 3), results(2, 4))
	require.Len(t, got, 4)
	assert.Equal(t, model.RowAddr(2), got[0].Addr)
	assert.InDelta(t, 1.0/62+1.0/61, got[0].Score, 1e-6)

	assert.Equal(t, model.RowAddr(1), got[1].Addr)
	assert.Equal(t, model.RowAddr(4), got[2].Addr)
	assert.Equal(t, model.RowAddr(3), got[3].Addr)
}

func TestRRFTiesBreakByAddress(t *testing.T) {
	got := NewRRF(60).Rerank(results(7), results(3))
	require.Len(t, got, 2)
	assert.Equal(t, model.RowAddr(3), got[0].Addr)
	assert.Equal(t, got[0].Score, got[1].Score)
}

func TestRRFSingleList(t *testing.T) {
	got := NewRRF(10).Rerank(nil, results(5, 6))
	require.Len(t, got, 2)
	assert.Equal(t, model.RowAddr(5), got[0].Addr)
	assert.InDelta(t, 1.0/11, got[0].Score, 1e-6)

	assert.Empty(t, NewRRF(10).Rerank(nil, nil))
}

func TestLinear(t *testing.T) {
	l := NewLinear(0.5)
	assert.Equal(t, "linear", l.Name())

	vector := []index.SearchResult{{Addr: 1, Score: 0.1}, {Addr: 2, Score: 0.5}, {Addr: 3, Score: 0.9}}
	text := []index.SearchResult{{Addr: 3, Score: 8}, {Addr: 2, Score: 4}}

	got := l.Rerank(vector, text)
	require.Len(t, got, 3)

	byAddr := map[model.RowAddr]float32{}
	for _, r := range got {
		byAddr[r.Addr] = r.Score
	}
	assert.InDelta(t, 0.5, byAddr[1], 1e-6)  // closest vector, no text match
	assert.InDelta(t, 0.25, byAddr[2], 1e-6) // mid vector, weakest text
	assert.InDelta(t, 0.5, byAddr[3], 1e-6)  // farthest vector, best text
	assert.Equal(t, model.RowAddr(1), got[0].Addr)
}

func TestLinearDefaults(t *testing.T) {
	assert.InDelta(t, DefaultLinearWeight, NewLinear(-1).Weight, 1e-6)
	assert.InDelta(t, DefaultLinearWeight, NewLinear(2).Weight, 1e-6)

	got := NewLinear(1).Rerank([]index.SearchResult{{Addr: 9, Score: 3}}, nil)
	require.Len(t, got, 1)
	assert.InDelta(t, 1.0, got[0].Score, 1e-6)
}

func TestLinearSingleHits(t *testing.T) {
	vector := []index.SearchResult{{Addr: 1, Score: 0.1}, {Addr: 2, Score: 0.2}}
	text := []index.SearchResult{{Addr: 2, Score: 5}}

	got := NewLinear(0.4).Rerank(vector, text)
	require.Len(t, got, 2)

	// The only full-text hit gets full text credit on top of its vector rank.
	assert.Equal(t, model.RowAddr(2), got[0].Addr)
	assert.InDelta(t, 0.6, got[0].Score, 1e-6)
	assert.Equal(t, model.RowAddr(1), got[1].Addr)
	assert.InDelta(t, 0.4, got[1].Score, 1e-6)

	// Equal credit on both sides for lone hits.
	a := NewLinear(0.5).Rerank([]index.SearchResult{{Addr: 7, Score: 0.3}}, nil)
	b := NewLinear(0.5).Rerank(nil, []index.SearchResult{{Addr: 7, Score: 12}})
	assert.Equal(t, a, b)
}

func TestImplementsReranker(t *testing.T) {
	var _ Reranker = NewRRF(60)
	var _ Reranker = NewLinear(0.7)
}

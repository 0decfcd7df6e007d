// Package rerank fuses vector and full-text result lists into one ranking.
package rerank

import (
	"github.com/hupe1980/vectable/index"
	"github.com/hupe1980/vectable/model"
)

// DefaultRRFK is the constant k in the RRF formula.
const DefaultRRFK = 60

// DefaultLinearWeight is the vector weight of the linear reranker.
const DefaultLinearWeight = 0.7

// Reranker merges the results of a hybrid query.
//
// vector is ordered by ascending distance and text by descending score.
// The returned list is ordered by descending relevance.
type Reranker interface {
	Rerank(vector, text []index.SearchResult) []index.SearchResult
	Name() string
}

// RRF implements Reciprocal Rank Fusion: score = sum(1 / (k + rank)).
type RRF struct {
	K int
}

// NewRRF creates an RRF reranker. k <= 0 selects DefaultRRFK.
func NewRRF(k int) *RRF {
	if k <= 0 {
		k = DefaultRRFK
	}
	return &RRF{K: k}
}

// Name implements Reranker.
func (r *RRF) Name() string { return "rrf" }

// Rerank implements Reranker.
func (r *RRF) Rerank(vector, text []index.SearchResult) []index.SearchResult {
	k := r.K
	if k <= 0 {
		k = DefaultRRFK
	}

	scores := make(map[model.RowAddr]float32, len(vector)+len(text))
	for _, list := range [][]index.SearchResult{vector, text} {
		for rank, c := range list {
			scores[c.Addr] += 1.0 / float32(k+rank+1)
		}
	}
	return collect(scores)
}

// Linear combines min-max normalised scores:
// weight*(1 - distance) + (1 - weight)*textScore. A row missing from one
// list contributes zero for it.
type Linear struct {
	Weight float32
}

// NewLinear creates a linear reranker. weight outside [0, 1] selects
// DefaultLinearWeight.
func NewLinear(weight float32) *Linear {
	if weight < 0 || weight > 1 {
		weight = DefaultLinearWeight
	}
	return &Linear{Weight: weight}
}

// Name implements Reranker.
func (l *Linear) Name() string { return "linear" }

// Rerank implements Reranker.
func (l *Linear) Rerank(vector, text []index.SearchResult) []index.SearchResult {
	scores := make(map[model.RowAddr]float32, len(vector)+len(text))
	for addr, r := range relevance(vector, true) {
		scores[addr] += l.Weight * r
	}
	for addr, r := range relevance(text, false) {
		scores[addr] += (1 - l.Weight) * r
	}
	return collect(scores)
}

// relevance maps scores to [0, 1] with 1 for the best hit. Distances are
// lower-is-better. A list whose scores are all equal maps to 1, so a lone
// hit gets full credit on either side.
func relevance(results []index.SearchResult, lowerIsBetter bool) map[model.RowAddr]float32 {
	out := make(map[model.RowAddr]float32, len(results))
	if len(results) == 0 {
		return out
	}
	lo, hi := results[0].Score, results[0].Score
	for _, r := range results[1:] {
		lo = min(lo, r.Score)
		hi = max(hi, r.Score)
	}
	span := hi - lo
	for _, r := range results {
		switch {
		case span == 0:
			out[r.Addr] = 1
		case lowerIsBetter:
			out[r.Addr] = (hi - r.Score) / span
		default:
			out[r.Addr] = (r.Score - lo) / span
		}
	}
	return out
}

func collect(scores map[model.RowAddr]float32) []index.SearchResult {
	out := make([]index.SearchResult, 0, len(scores))
	for addr, s := range scores {
		out = append(out, index.SearchResult{Addr: addr, Score: s})
	}
	index.SortDescending(out)
	return out
}

// Package testutil generates deterministic vector columns and exact ground
// truth for index tests.
package testutil

import (
	"math"
	"math/rand"
	"sync"

	"github.com/hupe1980/vectable/distance"
	"github.com/hupe1980/vectable/index"
	"github.com/hupe1980/vectable/model"
)

// RNG is a seeded, goroutine-safe random source.
type RNG struct {
	mu   sync.Mutex
	rand *rand.Rand
	seed int64
}

// NewRNG returns an RNG seeded with seed.
func NewRNG(seed int64) *RNG {
	return &RNG{rand: rand.New(rand.NewSource(seed)), seed: seed}
}

// Seed returns the initial seed.
func (r *RNG) Seed() int64 { return r.seed }

// UniformVectors returns num vectors with components in [-1, 1).
func (r *RNG) UniformVectors(num, dim int) [][]float32 {
	r.mu.Lock()
	defer r.mu.Unlock()

	data := make([]float32, num*dim)
	vecs := make([][]float32, num)
	for i := range num {
		v := data[i*dim : (i+1)*dim]
		for j := range v {
			v[j] = r.rand.Float32()*2 - 1
		}
		vecs[i] = v
	}
	return vecs
}

// UnitVectors returns num vectors drawn uniformly from the unit sphere.
func (r *RNG) UnitVectors(num, dim int) [][]float32 {
	r.mu.Lock()
	defer r.mu.Unlock()

	data := make([]float32, num*dim)
	vecs := make([][]float32, num)
	for i := range num {
		v := data[i*dim : (i+1)*dim]
		var norm float64
		for j := range v {
			g := r.rand.NormFloat64()
			v[j] = float32(g)
			norm += g * g
		}
		if norm == 0 {
			norm = 1
		}
		inv := float32(1 / math.Sqrt(norm))
		for j := range v {
			v[j] *= inv
		}
		vecs[i] = v
	}
	return vecs
}

// ClusteredVectors returns num vectors scattered with Gaussian noise of the
// given spread around clusters random unit centroids. Row i belongs to
// cluster i % clusters.
func (r *RNG) ClusteredVectors(num, dim, clusters int, spread float32) [][]float32 {
	centroids := r.UnitVectors(clusters, dim)

	r.mu.Lock()
	defer r.mu.Unlock()

	data := make([]float32, num*dim)
	vecs := make([][]float32, num)
	for i := range num {
		c := centroids[i%clusters]
		v := data[i*dim : (i+1)*dim]
		for j := range v {
			v[j] = c[j] + float32(r.rand.NormFloat64())*spread
		}
		vecs[i] = v
	}
	return vecs
}

// Addrs returns consecutive row addresses in one fragment.
func Addrs(fragment model.FragmentID, n int) []model.RowAddr {
	out := make([]model.RowAddr, n)
	for i := range out {
		out[i] = model.NewRowAddr(fragment, uint32(i))
	}
	return out
}

// BruteForceSearch returns the exact k nearest rows under metric, closest
// first.
func BruteForceSearch(vecs [][]float32, addrs []model.RowAddr, query []float32, k int, metric distance.Metric) ([]index.SearchResult, error) {
	fn, err := distance.Provider(metric)
	if err != nil {
		return nil, err
	}
	top := index.NewTopK(k)
	for i, v := range vecs {
		top.Push(index.SearchResult{Addr: addrs[i], Score: fn(query, v)})
	}
	return top.Results(), nil
}

// Recall is the share of the ground truth rows found in approximate.
func Recall(truth, approximate []index.SearchResult) float64 {
	if len(truth) == 0 {
		if len(approximate) == 0 {
			return 1
		}
		return 0
	}
	want := make(map[model.RowAddr]struct{}, len(truth))
	for _, r := range truth {
		want[r.Addr] = struct{}{}
	}
	hits := 0
	for _, r := range approximate {
		if _, ok := want[r.Addr]; ok {
			hits++
		}
	}
	return float64(hits) / float64(len(truth))
}

package index

import (
	"container/heap"
	"sort"
)

// MergeSearchResults merges two sorted lists of SearchResult into a single sorted list of size k.
// Both input lists must be sorted by score (ascending).
func MergeSearchResults(a, b []SearchResult, k int) []SearchResult {
	result := make([]SearchResult, 0, min(k, len(a)+len(b)))
	i, j := 0, 0

	for len(result) < k && (i < len(a) || j < len(b)) {
		if i < len(a) && (j >= len(b) || a[i].Score <= b[j].Score) {
			result = append(result, a[i])
			i++
		} else {
			result = append(result, b[j])
			j++
		}
	}

	return result
}

// TopK collects the k results with the lowest score.
type TopK struct {
	k int
	h maxHeap
}

// NewTopK creates a collector for the k best (lowest-scoring) results.
func NewTopK(k int) *TopK {
	return &TopK{k: k, h: make(maxHeap, 0, k)}
}

// Push offers a result to the collector.
func (t *TopK) Push(r SearchResult) {
	if t.k <= 0 {
		return
	}
	if len(t.h) < t.k {
		heap.Push(&t.h, r)
		return
	}
	if r.Score < t.h[0].Score || (r.Score == t.h[0].Score && r.Addr < t.h[0].Addr) {
		t.h[0] = r
		heap.Fix(&t.h, 0)
	}
}

// Len returns the number of collected results.
func (t *TopK) Len() int { return len(t.h) }

// Results returns the collected results sorted by ascending score. Ties are
// broken by address so that results are deterministic.
func (t *TopK) Results() []SearchResult {
	out := make([]SearchResult, len(t.h))
	copy(out, t.h)
	SortAscending(out)
	return out
}

// SortAscending sorts results by score, breaking ties by address.
func SortAscending(results []SearchResult) {
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score < results[j].Score
		}
		return results[i].Addr < results[j].Addr
	})
}

// SortDescending sorts results by descending score, breaking ties by address.
func SortDescending(results []SearchResult) {
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].Addr < results[j].Addr
	})
}

// maxHeap keeps the worst result at the root.
type maxHeap []SearchResult

func (h maxHeap) Len() int { return len(h) }
func (h maxHeap) Less(i, j int) bool {
	if h[i].Score != h[j].Score {
		return h[i].Score > h[j].Score
	}
	return h[i].Addr > h[j].Addr
}
func (h maxHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *maxHeap) Push(x any) {
	*h = append(*h, x.(SearchResult))
}

func (h *maxHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[0 : n-1]
	return x
}

package bm25

import "github.com/hupe1980/vectable/index"

// termIterator allows iterating over a posting list for a specific term.
type termIterator struct {
	postings []posting
	idx      int
	idf      float64
}

// doc returns the current docID. Returns max uint32 if exhausted.
func (it *termIterator) doc() uint32 {
	if it.idx >= len(it.postings) {
		return ^uint32(0)
	}
	return it.postings[it.idx].DocID
}

// count returns the term frequency in the current document.
func (it *termIterator) count() uint32 {
	if it.idx >= len(it.postings) {
		return 0
	}
	return it.postings[it.idx].Count
}

// next advances to the next posting.
func (it *termIterator) next() {
	it.idx++
}

// candidateHeap is a min-heap on score holding the current top-k.
type candidateHeap []index.SearchResult

func (h candidateHeap) less(i, j int) bool {
	if h[i].Score != h[j].Score {
		return h[i].Score < h[j].Score
	}
	return h[i].Addr > h[j].Addr
}

func (h *candidateHeap) offer(r index.SearchResult, k int) {
	if len(*h) < k {
		*h = append(*h, r)
		h.up(len(*h) - 1)
		return
	}
	root := (*h)[0]
	if r.Score > root.Score || (r.Score == root.Score && r.Addr < root.Addr) {
		(*h)[0] = r
		h.down(0)
	}
}

func (h candidateHeap) up(j int) {
	for j > 0 {
		i := (j - 1) / 2
		if !h.less(j, i) {
			break
		}
		h[i], h[j] = h[j], h[i]
		j = i
	}
}

func (h candidateHeap) down(i int) {
	n := len(h)
	for {
		j := 2*i + 1
		if j >= n {
			return
		}
		if r := j + 1; r < n && h.less(r, j) {
			j = r
		}
		if !h.less(j, i) {
			return
		}
		h[i], h[j] = h[j], h[i]
		i = j
	}
}

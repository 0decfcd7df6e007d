package bm25

import (
	"bytes"
	"encoding/gob"
	"errors"
	"math"
	"sync"

	"github.com/hupe1980/vectable/index"
	"github.com/hupe1980/vectable/lexical"
	"github.com/hupe1980/vectable/model"
)

const (
	k1 = 1.2
	b  = 0.75
)

func init() {
	index.Register(index.KindBM25, func() index.Index { return New() })
}

type posting struct {
	DocID uint32
	Count uint32
}

// MemoryIndex is a simple in-memory BM25 index.
type MemoryIndex struct {
	mu          sync.RWMutex
	tokenizer   lexical.Tokenizer
	inverted    map[string][]posting
	docAddrs    []model.RowAddr
	docLengths  []uint32
	totalLength int64
}

// Option configures a MemoryIndex.
type Option func(*MemoryIndex)

// WithTokenizer replaces the default tokenizer.
func WithTokenizer(t lexical.Tokenizer) Option {
	return func(idx *MemoryIndex) {
		idx.tokenizer = t
	}
}

// New creates a new MemoryIndex.
func New(opts ...Option) *MemoryIndex {
	idx := &MemoryIndex{
		tokenizer: lexical.SimpleTokenizer{},
		inverted:  make(map[string][]posting),
	}
	for _, opt := range opts {
		opt(idx)
	}
	return idx
}

// Ensure MemoryIndex implements lexical.Index
var _ lexical.Index = (*MemoryIndex)(nil)

// Kind implements index.Index.
func (idx *MemoryIndex) Kind() index.Kind { return index.KindBM25 }

// Len returns the number of indexed documents.
func (idx *MemoryIndex) Len() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.docAddrs)
}

// Add indexes text under addr. Documents are append-only.
func (idx *MemoryIndex) Add(addr model.RowAddr, text string) error {
	tokens := idx.tokenizer.Tokenize(text)

	// Count term frequencies
	tf := make(map[string]uint32, len(tokens))
	for _, t := range tokens {
		tf[t]++
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()

	if len(idx.docAddrs) == math.MaxUint32 {
		return errors.New("bm25: index is full")
	}
	docID := uint32(len(idx.docAddrs))
	idx.docAddrs = append(idx.docAddrs, addr)
	idx.docLengths = append(idx.docLengths, uint32(len(tokens)))
	idx.totalLength += int64(len(tokens))

	for t, count := range tf {
		idx.inverted[t] = append(idx.inverted[t], posting{DocID: docID, Count: count})
	}
	return nil
}

// Search performs a Document-At-A-Time search over the query terms. Rows
// rejected by filter are skipped; a zero score never matches.
func (idx *MemoryIndex) Search(text string, k int, filter index.Filter) ([]index.SearchResult, error) {
	if k <= 0 {
		return nil, nil
	}
	terms := uniqueTerms(idx.tokenizer.Tokenize(text))

	idx.mu.RLock()
	defer idx.mu.RUnlock()

	docCount := len(idx.docAddrs)
	if docCount == 0 {
		return nil, nil
	}

	iterators := make([]termIterator, 0, len(terms))
	for _, t := range terms {
		postings, ok := idx.inverted[t]
		if !ok || len(postings) == 0 {
			continue
		}
		iterators = append(iterators, termIterator{postings: postings, idf: idx.computeIDF(len(postings))})
	}
	if len(iterators) == 0 {
		return nil, nil
	}

	avgDL := float64(idx.totalLength) / float64(docCount)
	if avgDL == 0 {
		avgDL = 1
	}

	// Precompute BM25 constants for this query
	k1Plus1 := k1 + 1
	k1b := k1 * (1 - b)
	k1bAvgDL := k1 * b / avgDL

	h := make(candidateHeap, 0, k)
	for {
		minDoc := ^uint32(0)
		for i := range iterators {
			if doc := iterators[i].doc(); doc < minDoc {
				minDoc = doc
			}
		}
		if minDoc == ^uint32(0) {
			break
		}

		var score float64
		docLen := float64(idx.docLengths[minDoc])
		for i := range iterators {
			it := &iterators[i]
			if it.doc() != minDoc {
				continue
			}
			tf := float64(it.count())
			score += it.idf * (tf * k1Plus1) / (tf + k1b + k1bAvgDL*docLen)
			it.next()
		}

		addr := idx.docAddrs[minDoc]
		if score <= 0 || (filter != nil && !filter(addr)) {
			continue
		}
		h.offer(index.SearchResult{Addr: addr, Score: float32(score)}, k)
	}

	results := []index.SearchResult(h)
	index.SortDescending(results)
	return results, nil
}

func (idx *MemoryIndex) computeIDF(df int) float64 {
	// IDF = log(1 + (N - n + 0.5) / (n + 0.5))
	N := float64(len(idx.docAddrs))
	n := float64(df)
	return math.Log(1 + (N-n+0.5)/(n+0.5))
}

func uniqueTerms(tokens []string) []string {
	seen := make(map[string]struct{}, len(tokens))
	out := tokens[:0]
	for _, t := range tokens {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}

type gobIndex struct {
	Terms       []string
	Postings    [][]posting
	DocAddrs    []model.RowAddr
	DocLengths  []uint32
	TotalLength int64
}

// GobEncode implements gob.GobEncoder.
func (idx *MemoryIndex) GobEncode() ([]byte, error) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	g := gobIndex{
		Terms:       make([]string, 0, len(idx.inverted)),
		Postings:    make([][]posting, 0, len(idx.inverted)),
		DocAddrs:    idx.docAddrs,
		DocLengths:  idx.docLengths,
		TotalLength: idx.totalLength,
	}
	for t, p := range idx.inverted {
		g.Terms = append(g.Terms, t)
		g.Postings = append(g.Postings, p)
	}

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(g); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// GobDecode implements gob.GobDecoder.
func (idx *MemoryIndex) GobDecode(data []byte) error {
	var g gobIndex
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&g); err != nil {
		return err
	}
	if len(g.Terms) != len(g.Postings) || len(g.DocAddrs) != len(g.DocLengths) {
		return errors.New("bm25: inconsistent index")
	}

	inverted := make(map[string][]posting, len(g.Terms))
	for i, t := range g.Terms {
		for _, p := range g.Postings[i] {
			if int(p.DocID) >= len(g.DocAddrs) {
				return errors.New("bm25: posting out of range")
			}
		}
		inverted[t] = g.Postings[i]
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()
	if idx.tokenizer == nil {
		idx.tokenizer = lexical.SimpleTokenizer{}
	}
	idx.inverted = inverted
	idx.docAddrs = g.DocAddrs
	idx.docLengths = g.DocLengths
	idx.totalLength = g.TotalLength
	return nil
}

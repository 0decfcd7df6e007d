// Package bm25 provides a BM25-based lexical search index.
//
// BM25 (Best Matching 25) is a ranking function used for keyword search.
// This implementation uses an in-memory inverted index with
// document-at-a-time (DAAT) scoring and persists through the index registry
// like every other index kind.
//
// # Usage
//
//	idx := bm25.New()
//	_ = idx.Add(model.NewRowAddr(1, 0), "sweet red apple")
//	hits, _ := idx.Search("apple", 10, nil)
//
// # Parameters
//
// Uses standard BM25 parameters: k1=1.2, b=0.75
//
// # Thread Safety
//
// The index is safe for concurrent reads and writes.
package bm25

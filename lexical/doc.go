// Package lexical defines the interface for lexical (keyword) search indexes
// and the tokenizer shared by full-text indexing and query parsing.
//
// Lexical indexes enable hybrid search by combining keyword matching with
// vector similarity through a reranker such as Reciprocal Rank Fusion (RRF).
//
// # Built-in Implementation
//
// The bm25 subpackage provides a BM25-based lexical index:
//
//	idx := bm25.New()
//	_ = idx.Add(addr, "a crisp red apple")
//	hits, _ := idx.Search("apple", 10, nil)
package lexical

package index

import (
	"encoding/gob"
	"fmt"

	"github.com/hupe1980/vectable/model"
)

// Kind identifies an index implementation on disk.
type Kind uint8

const (
	KindIVFPQ Kind = 1
	KindBM25  Kind = 2
)

func (k Kind) String() string {
	switch k {
	case KindIVFPQ:
		return "ivfpq"
	case KindBM25:
		return "bm25"
	default:
		return fmt.Sprintf("Kind(%d)", uint8(k))
	}
}

// ErrDimensionMismatch is a named error type for dimension mismatch
type ErrDimensionMismatch struct {
	Expected int // Expected dimensions
	Actual   int // Actual dimensions
}

// Error returns the error message for dimension mismatch
func (e *ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("dimension mismatch: expected %d, got %d", e.Expected, e.Actual)
}

// SearchResult represents a search result.
type SearchResult struct {
	// Addr is the address of the matching row.
	Addr model.RowAddr

	// Score is a distance for vector indexes (ascending) and a relevance
	// score for text indexes (descending).
	Score float32
}

// Filter reports whether a row may be returned. A nil Filter admits all rows.
type Filter func(addr model.RowAddr) bool

// Index is a persistable secondary index.
type Index interface {
	gob.GobEncoder
	gob.GobDecoder

	// Kind returns the on-disk kind of the index.
	Kind() Kind

	// Len returns the number of indexed rows.
	Len() int
}

package model

import (
	"fmt"
	"maps"
	"slices"
)

// Reserved column names.
const (
	ColumnID        = "id"
	ColumnText      = "text"
	ColumnType      = "type"
	ColumnVector    = "vector"
	ColumnDistance  = "_distance"
	ColumnScore     = "_score"
	ColumnRelevance = "_relevance_score"
	ColumnRowAddr   = "_rowaddr"
)

// FragmentID identifies an immutable fragment within a table.
type FragmentID uint32

// RowAddr is the stable physical address of a row: the fragment ID in the
// upper 32 bits and the row offset within the fragment in the lower 32 bits.
type RowAddr uint64

// NewRowAddr builds a RowAddr.
func NewRowAddr(frag FragmentID, offset uint32) RowAddr {
	return RowAddr(uint64(frag)<<32 | uint64(offset))
}

// Fragment returns the fragment part of the address.
func (a RowAddr) Fragment() FragmentID { return FragmentID(a >> 32) }

// Offset returns the row offset within the fragment.
func (a RowAddr) Offset() uint32 { return uint32(a) }

// String returns a string representation of the RowAddr.
func (a RowAddr) String() string {
	return fmt.Sprintf("Addr(%d:%d)", a.Fragment(), a.Offset())
}

// Record represents a full table row.
type Record struct {
	ID       int64
	Text     string
	Type     string
	Vector   []float32
	Metadata map[string]any
}

// Clone returns a deep copy of r.
func (r Record) Clone() Record {
	r.Vector = slices.Clone(r.Vector)
	r.Metadata = maps.Clone(r.Metadata)
	return r
}

// Field returns the value of a named column and whether it exists.
// Metadata keys shadowed by reserved columns are not reachable.
func (r Record) Field(name string) (any, bool) {
	switch name {
	case ColumnID:
		return r.ID, true
	case ColumnText:
		return r.Text, true
	case ColumnType:
		return r.Type, true
	case ColumnVector:
		return r.Vector, true
	}
	v, ok := r.Metadata[name]
	return v, ok
}

// Candidate represents a potential match found during search.
type Candidate struct {
	Addr RowAddr
	// Score is metric-dependent: a distance for vector search (smaller is
	// closer), a relevance score for full-text search (larger is better).
	Score float32
	// Approx indicates the score came from quantized data.
	Approx bool
}

// Package rowset provides compressed sets of row addresses.
package rowset

import (
	"iter"

	"github.com/RoaringBitmap/roaring/v2/roaring64"
	"github.com/hupe1980/vectable/model"
)

// Set implements a 64-bit Roaring Bitmap of row addresses.
// The zero value is not usable; call New.
type Set struct {
	rb *roaring64.Bitmap
}

// New creates a new empty set.
func New() *Set {
	return &Set{rb: roaring64.New()}
}

// Of creates a set holding addrs.
func Of(addrs ...model.RowAddr) *Set {
	s := New()
	for _, a := range addrs {
		s.Add(a)
	}
	return s
}

// Fragment returns the set of all rows of a fragment.
func Fragment(id model.FragmentID, rows int) *Set {
	s := New()
	s.AddFragment(id, rows)
	return s
}

// Add adds an address to the set.
func (s *Set) Add(a model.RowAddr) {
	s.rb.Add(uint64(a))
}

// AddFragment adds rows [0, rows) of fragment id.
func (s *Set) AddFragment(id model.FragmentID, rows int) {
	if rows <= 0 {
		return
	}
	start := uint64(model.NewRowAddr(id, 0))
	s.rb.AddRange(start, start+uint64(rows))
}

// Contains checks if an address is in the set.
func (s *Set) Contains(a model.RowAddr) bool {
	return s.rb.Contains(uint64(a))
}

// Len returns the number of elements in the set.
func (s *Set) Len() int {
	return int(s.rb.GetCardinality())
}

// IsEmpty returns true if the set is empty.
func (s *Set) IsEmpty() bool {
	return s.rb.IsEmpty()
}

// Clone returns a deep copy of the set.
func (s *Set) Clone() *Set {
	return &Set{rb: s.rb.Clone()}
}

// And computes the intersection in place.
func (s *Set) And(other *Set) {
	s.rb.And(other.rb)
}

// Or computes the union in place.
func (s *Set) Or(other *Set) {
	s.rb.Or(other.rb)
}

// AndNot removes every element of other in place.
func (s *Set) AndNot(other *Set) {
	s.rb.AndNot(other.rb)
}

// All iterates the set in ascending order.
func (s *Set) All() iter.Seq[model.RowAddr] {
	return func(yield func(model.RowAddr) bool) {
		it := s.rb.Iterator()
		for it.HasNext() {
			if !yield(model.RowAddr(it.Next())) {
				return
			}
		}
	}
}

// Slice returns the addresses in ascending order.
func (s *Set) Slice() []model.RowAddr {
	out := make([]model.RowAddr, 0, s.Len())
	for a := range s.All() {
		out = append(out, a)
	}
	return out
}

// Contains returns a membership predicate over s, or nil for a nil set.
func Contains(s *Set) func(model.RowAddr) bool {
	if s == nil {
		return nil
	}
	return s.Contains
}

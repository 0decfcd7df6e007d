package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRowAddr(t *testing.T) {
	a := NewRowAddr(7, 42)
	assert.Equal(t, FragmentID(7), a.Fragment())
	assert.Equal(t, uint32(42), a.Offset())
	assert.Equal(t, "Addr(7:42)", a.String())

	last := NewRowAddr(^FragmentID(0), ^uint32(0))
	assert.Equal(t, RowAddr(^uint64(0)), last)
}

func TestRecordField(t *testing.T) {
	r := Record{
		ID:       3,
		Text:     "Apple",
		Type:     "fruit",
		Vector:   []float32{1, 2},
		Metadata: map[string]any{"color": "red", "text": "shadowed"},
	}

	v, ok := r.Field("id")
	assert.True(t, ok)
	assert.Equal(t, int64(3), v)

	v, ok = r.Field("text")
	assert.True(t, ok)
	assert.Equal(t, "Apple", v)

	v, ok = r.Field("color")
	assert.True(t, ok)
	assert.Equal(t, "red", v)

	_, ok = r.Field("missing")
	assert.False(t, ok)
}

func TestRecordClone(t *testing.T) {
	r := Record{Vector: []float32{1}, Metadata: map[string]any{"k": 1}}
	c := r.Clone()
	c.Vector[0] = 9
	c.Metadata["k"] = 2

	assert.Equal(t, float32(1), r.Vector[0])
	assert.Equal(t, 1, r.Metadata["k"])
}

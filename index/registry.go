package index

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	"github.com/hupe1980/vectable/internal/compress"
	"github.com/hupe1980/vectable/internal/hash"
)

const (
	magic      = 0x58495456 // "VTIX" little-endian
	headerSize = 12
)

// ErrCorrupt is returned when an index blob fails validation.
var ErrCorrupt = errors.New("corrupt index")

// Factory returns an empty index ready for GobDecode.
type Factory func() Index

var (
	factoriesMu sync.RWMutex
	factories   = map[Kind]Factory{}
)

// Register registers the factory for an index kind.
//
// Index implementations should typically call this from an init() function.
func Register(kind Kind, f Factory) {
	factoriesMu.Lock()
	defer factoriesMu.Unlock()
	factories[kind] = f
}

// Marshal encodes idx into a self-describing blob.
func Marshal(idx Index) ([]byte, error) {
	body, err := idx.GobEncode()
	if err != nil {
		return nil, fmt.Errorf("encode %s index: %w", idx.Kind(), err)
	}
	block, err := compress.Compress(body, compress.LZ4)
	if err != nil {
		return nil, err
	}

	out := make([]byte, headerSize, headerSize+len(block))
	binary.LittleEndian.PutUint32(out[0:4], magic)
	out[4] = byte(idx.Kind())
	binary.LittleEndian.PutUint32(out[8:12], hash.CRC32C(block))
	return append(out, block...), nil
}

// Unmarshal decodes a blob produced by Marshal.
//
// It reads the header to detect the index kind, then dispatches to the
// registered factory.
func Unmarshal(data []byte) (Index, error) {
	if len(data) < headerSize {
		return nil, fmt.Errorf("%w: short header", ErrCorrupt)
	}
	if m := binary.LittleEndian.Uint32(data[0:4]); m != magic {
		return nil, fmt.Errorf("%w: invalid magic 0x%08x", ErrCorrupt, m)
	}
	kind := Kind(data[4])
	block := data[headerSize:]
	if hash.CRC32C(block) != binary.LittleEndian.Uint32(data[8:12]) {
		return nil, fmt.Errorf("%w: checksum mismatch", ErrCorrupt)
	}

	factoriesMu.RLock()
	factory, ok := factories[kind]
	factoriesMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown index kind: %d", kind)
	}

	body, err := compress.Decompress(block)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}

	idx := factory()
	if err := idx.GobDecode(body); err != nil {
		return nil, fmt.Errorf("decode %s index: %w", kind, err)
	}
	return idx, nil
}

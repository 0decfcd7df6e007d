package fragment

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/hupe1980/vectable/codec"
	"github.com/hupe1980/vectable/internal/compress"
	"github.com/hupe1980/vectable/internal/hash"
	"github.com/hupe1980/vectable/model"
)

const (
	magic         = 0x52465456 // "VTFR" little-endian
	formatVersion = 1
	headerSize    = 16
)

var (
	// ErrCorrupt is returned when a fragment fails validation.
	ErrCorrupt = errors.New("corrupt fragment")

	// ErrIncompatibleVersion is returned for unknown format versions.
	ErrIncompatibleVersion = errors.New("incompatible fragment version")
)

// Fragment is an immutable batch of rows.
type Fragment struct {
	ID      model.FragmentID
	Dim     int
	Records []model.Record
}

// Name returns the blob name of fragment id relative to the table root.
func Name(id model.FragmentID) string {
	return fmt.Sprintf("data/%010d.frag", id)
}

type attrs struct {
	Text     string         `json:"text"`
	Type     string         `json:"type"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Encode serializes f.
func Encode(f *Fragment) ([]byte, error) {
	return EncodeWith(f, codec.Default)
}

// EncodeWith serializes f using c for the attribute columns.
func EncodeWith(f *Fragment, c codec.Codec) ([]byte, error) {
	for i, r := range f.Records {
		if len(r.Vector) != f.Dim {
			return nil, fmt.Errorf("row %d: vector dimension %d, want %d", i, len(r.Vector), f.Dim)
		}
	}

	cols := make([]attrs, len(f.Records))
	for i, r := range f.Records {
		cols[i] = attrs{Text: r.Text, Type: r.Type, Metadata: r.Metadata}
	}
	encodedAttrs, err := c.Marshal(cols)
	if err != nil {
		return nil, fmt.Errorf("encode attributes: %w", err)
	}

	n := len(f.Records)
	pb := newPayloadBuffer(make([]byte, 0, 12+n*8+n*f.Dim*4+len(encodedAttrs)+16))
	pb.writeUint32(uint32(f.ID))
	pb.writeUint32(uint32(f.Dim))
	pb.writeUint32(uint32(n))
	for _, r := range f.Records {
		pb.writeUint64(uint64(r.ID))
	}
	for _, r := range f.Records {
		for _, v := range r.Vector {
			pb.writeUint32(math.Float32bits(v))
		}
	}
	pb.writeString(c.Name())
	pb.writeBytes(encodedAttrs)
	if pb.err != nil {
		return nil, pb.err
	}

	block, err := compress.Compress(pb.buf, compress.ZSTD)
	if err != nil {
		return nil, err
	}

	out := make([]byte, headerSize, headerSize+len(block))
	binary.LittleEndian.PutUint32(out[0:4], magic)
	binary.LittleEndian.PutUint32(out[4:8], formatVersion)
	binary.LittleEndian.PutUint32(out[8:12], hash.CRC32C(block))
	binary.LittleEndian.PutUint32(out[12:16], uint32(len(block)))
	return append(out, block...), nil
}

// Decode parses a fragment produced by Encode.
func Decode(data []byte) (*Fragment, error) {
	if len(data) < headerSize {
		return nil, fmt.Errorf("%w: short header", ErrCorrupt)
	}
	if m := binary.LittleEndian.Uint32(data[0:4]); m != magic {
		return nil, fmt.Errorf("%w: invalid magic %x", ErrCorrupt, m)
	}
	if v := binary.LittleEndian.Uint32(data[4:8]); v != formatVersion {
		return nil, fmt.Errorf("%w: %d", ErrIncompatibleVersion, v)
	}
	checksum := binary.LittleEndian.Uint32(data[8:12])
	length := binary.LittleEndian.Uint32(data[12:16])
	if uint64(len(data)-headerSize) < uint64(length) {
		return nil, fmt.Errorf("%w: truncated", ErrCorrupt)
	}
	block := data[headerSize : headerSize+int(length)]
	if hash.CRC32C(block) != checksum {
		return nil, fmt.Errorf("%w: checksum mismatch", ErrCorrupt)
	}

	payload, err := compress.Decompress(block)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}

	pb := newPayloadBuffer(payload)
	f := &Fragment{
		ID:  model.FragmentID(pb.readUint32()),
		Dim: int(pb.readUint32()),
	}
	n := int(pb.readUint32())
	if pb.err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, pb.err)
	}
	if uint64(n)*uint64(8+4*f.Dim) > uint64(len(payload)) {
		return nil, fmt.Errorf("%w: row count %d exceeds payload", ErrCorrupt, n)
	}

	f.Records = make([]model.Record, n)
	for i := range f.Records {
		f.Records[i].ID = int64(pb.readUint64())
	}
	vectors := make([]float32, n*f.Dim)
	for i := range vectors {
		vectors[i] = math.Float32frombits(pb.readUint32())
	}
	for i := range f.Records {
		f.Records[i].Vector = vectors[i*f.Dim : (i+1)*f.Dim : (i+1)*f.Dim]
	}

	codecName := pb.readString()
	encodedAttrs := pb.readBytes()
	if pb.err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, pb.err)
	}

	c, ok := codec.ByName(codecName)
	if !ok {
		return nil, fmt.Errorf("%w: unknown codec %q", ErrCorrupt, codecName)
	}
	var cols []attrs
	if nd, ok := c.(codec.NumberDecoder); ok {
		err = nd.UnmarshalNumbers(encodedAttrs, &cols)
	} else {
		err = c.Unmarshal(encodedAttrs, &cols)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: attributes: %v", ErrCorrupt, err)
	}
	if len(cols) != n {
		return nil, fmt.Errorf("%w: %d attribute rows, want %d", ErrCorrupt, len(cols), n)
	}
	for i, a := range cols {
		f.Records[i].Text = a.Text
		f.Records[i].Type = a.Type
		if a.Metadata != nil {
			f.Records[i].Metadata = normalizeMap(a.Metadata)
		}
	}
	return f, nil
}

// normalizeMap converts json.Number values to int64 or float64.
func normalizeMap(m map[string]any) map[string]any {
	for k, v := range m {
		m[k] = normalize(v)
	}
	return m
}

func normalize(v any) any {
	switch x := v.(type) {
	case json.Number:
		if i, err := x.Int64(); err == nil {
			return i
		}
		f, _ := x.Float64()
		return f
	case map[string]any:
		return normalizeMap(x)
	case []any:
		for i := range x {
			x[i] = normalize(x[i])
		}
		return x
	default:
		return v
	}
}

type payloadBuffer struct {
	buf []byte
	pos int
	err error
}

func newPayloadBuffer(b []byte) *payloadBuffer {
	return &payloadBuffer{buf: b}
}

func (p *payloadBuffer) writeUint64(v uint64) {
	p.buf = binary.LittleEndian.AppendUint64(p.buf, v)
}

func (p *payloadBuffer) writeUint32(v uint32) {
	p.buf = binary.LittleEndian.AppendUint32(p.buf, v)
}

func (p *payloadBuffer) writeString(s string) {
	if p.err != nil {
		return
	}
	if len(s) > math.MaxUint16 {
		p.err = fmt.Errorf("string too long: %d", len(s))
		return
	}
	p.buf = binary.LittleEndian.AppendUint16(p.buf, uint16(len(s)))
	p.buf = append(p.buf, s...)
}

func (p *payloadBuffer) writeBytes(b []byte) {
	if p.err != nil {
		return
	}
	if uint64(len(b)) > math.MaxUint32 {
		p.err = fmt.Errorf("section too long: %d", len(b))
		return
	}
	p.buf = binary.LittleEndian.AppendUint32(p.buf, uint32(len(b)))
	p.buf = append(p.buf, b...)
}

func (p *payloadBuffer) need(n int) bool {
	if p.err != nil {
		return false
	}
	if p.pos+n > len(p.buf) || n < 0 {
		p.err = io.ErrUnexpectedEOF
		return false
	}
	return true
}

func (p *payloadBuffer) readUint64() uint64 {
	if !p.need(8) {
		return 0
	}
	v := binary.LittleEndian.Uint64(p.buf[p.pos:])
	p.pos += 8
	return v
}

func (p *payloadBuffer) readUint32() uint32 {
	if !p.need(4) {
		return 0
	}
	v := binary.LittleEndian.Uint32(p.buf[p.pos:])
	p.pos += 4
	return v
}

func (p *payloadBuffer) readString() string {
	if !p.need(2) {
		return ""
	}
	l := int(binary.LittleEndian.Uint16(p.buf[p.pos:]))
	p.pos += 2
	if !p.need(l) {
		return ""
	}
	s := string(p.buf[p.pos : p.pos+l])
	p.pos += l
	return s
}

func (p *payloadBuffer) readBytes() []byte {
	l := int(p.readUint32())
	if !p.need(l) {
		return nil
	}
	b := p.buf[p.pos : p.pos+l]
	p.pos += l
	return b
}

// Package index provides the interfaces shared by vectable's secondary indexes.
//
// Two index kinds exist:
//
//   - ivfpq: inverted file with product quantization over a vector column
//   - bm25: inverted token index with BM25 scoring over a text column
//
// Indexes address rows by model.RowAddr and are persisted as a single blob:
//
//	Header (12 bytes):
//	  Magic    (4 bytes) - "VTIX"
//	  Kind     (1 byte)
//	  Reserved (3 bytes)
//	  Checksum (4 bytes) - CRC32C of block
//	Block: lz4-compressed gob encoding of the index (see internal/compress)
//
// Implementations register a factory for their Kind from an init function so
// that Unmarshal can dispatch on the header.
package index

// Package fragment encodes and decodes the immutable data files of a table.
//
// Each Add writes exactly one fragment. A fragment stores the rows' ids and
// vectors in a fixed-width binary section followed by the text, type and
// metadata columns encoded with a codec. The payload is zstd-compressed and
// protected by a CRC32C checksum.
//
// File layout:
//
//	Magic (4 bytes) "VTFR"
//	Version (4 bytes)
//	Checksum (4 bytes) - CRC32C of block
//	BlockLength (4 bytes)
//	Block: compressed payload (see internal/compress)
//
// Payload:
//
//	FragmentID (4 bytes)
//	Dim (4 bytes)
//	Rows (4 bytes)
//	IDs (Rows * 8 bytes)
//	Vectors (Rows * Dim * 4 bytes)
//	Codec (string)
//	AttrsLength (4 bytes)
//	Attrs (bytes)
package fragment

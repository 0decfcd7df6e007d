// Package hash provides the checksums and hashes used across vectable.
//
// Fragments, index payloads and uploaded blobs are protected with
// CRC32-Castagnoli. Token feature hashing for the offline embedder uses
// xxHash64.
//
//	sum := hash.CRC32C(data)
//	bucket := hash.Bucket("token", 384)
package hash

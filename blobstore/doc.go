// Package blobstore provides the storage abstraction tables are persisted on.
//
// A BlobStore holds immutable, named blobs: data fragments, index payloads and
// version manifests. Implementations must be safe for concurrent use.
//
// # Built-in Implementations
//
//   - MemoryStore: in-process, for tests and ephemeral tables
//   - LocalStore: local filesystem with mmap reads
//   - s3.Store / s3.DDBCommitStore: Amazon S3, optionally with a DynamoDB commit log
//   - minio.Store: MinIO and other S3-compatible services
//
// # Conditional Writes
//
// Version manifests are committed with PutIfAbsent. The first writer of a name
// wins; later writers get ErrExists. This is what turns concurrent appends into
// a detectable conflict instead of a lost update.
package blobstore

// Package manifest implements versioned table metadata on top of a blob store.
//
// # Overview
//
// Every committed version of a table is described by one immutable manifest
// listing the fragments visible at that version. Manifests enable time-travel
// reads (checkout) and restore.
//
// # Layout
//
//	<table>/_versions/00000000000000000001.manifest
//	<table>/_versions/00000000000000000002.manifest
//	<table>/_indices/<name>.meta
//	<table>/data/<fragment>.frag
//
// # Atomic Protocol
//
// Commit publishes version N+1 with a compare-and-swap:
//
//   - Stores implementing blobstore.VersionLog (S3 with DynamoDB) record the
//     version in the log first and then write the manifest blob.
//   - All other stores write the manifest with PutIfAbsent.
//
// A writer that loses the race receives ErrConflict and must reload the
// latest manifest before retrying.
package manifest

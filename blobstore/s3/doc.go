// Package s3 provides an S3 implementation of the blobstore.BlobStore interface.
//
// # Usage
//
//	store, err := s3.New(ctx, "my-bucket",
//	    s3.WithPrefix("vectable/"),
//	    s3.WithRegion("us-east-1"),
//	)
//
// Plain S3 stores commit table versions with conditional writes
// (If-None-Match: *). For buckets that lack conditional write support, wrap
// the store with NewDDBCommitStore to keep the version log in DynamoDB.
//
// # Features
//
//   - Range reads for partial fetches
//   - Multipart uploads for large fragments
//   - CRC32C integrity checksums on upload
//   - Automatic pagination for listing
//   - Configurable prefix for multi-tenant isolation
package s3

// Package minio provides a BlobStore implementation using the MinIO client.
//
// It works with MinIO and other S3-compatible storage systems like Ceph,
// SeaweedFS, and Garage.
//
// # Basic Usage
//
//	store, err := minioblob.New(ctx, "localhost:9000", "my-bucket",
//	    minioblob.WithPrefix("vectable/"),
//	    minioblob.WithCredentials("minioadmin", "minioadmin"),
//	    minioblob.WithSecure(false),
//	)
//
// # Conditional writes
//
// PutIfAbsent checks for the object before writing it. Two writers racing on
// the same name may both succeed, so concurrent writers against one table
// should be avoided on MinIO.
package minio

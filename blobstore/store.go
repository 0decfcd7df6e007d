package blobstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

var (
	// ErrNotFound is returned when a blob does not exist.
	//
	// Implementations return an error that satisfies errors.Is(err, ErrNotFound).
	ErrNotFound = os.ErrNotExist

	// ErrExists is returned by PutIfAbsent when the blob already exists.
	ErrExists = errors.New("blob already exists")
)

// BlobStore is an abstraction for accessing immutable data blobs.
type BlobStore interface {
	// Open opens a blob for reading.
	Open(ctx context.Context, name string) (Blob, error)
	// Put writes a blob atomically, replacing any previous content.
	Put(ctx context.Context, name string, data []byte) error
	// PutIfAbsent writes a blob only if no blob with that name exists.
	PutIfAbsent(ctx context.Context, name string, data []byte) error
	// Delete removes a blob. Deleting a missing blob is not an error.
	Delete(ctx context.Context, name string) error
	// List returns the sorted names of all blobs with the given prefix.
	List(ctx context.Context, prefix string) ([]string, error)
}

// Blob is a read-only handle to a data blob.
type Blob interface {
	// ReadAt reads len(p) bytes starting at off.
	ReadAt(ctx context.Context, p []byte, off int64) (int, error)
	// Close releases the handle.
	Close() error
	// Size returns the size of the blob in bytes.
	Size() int64
}

// Mappable is an optional interface for Blobs that expose their bytes without copying.
type Mappable interface {
	// Bytes returns the underlying byte slice.
	// The slice is valid until the Blob is closed.
	Bytes() ([]byte, error)
}

// Pinger is implemented by remote stores that can check reachability and
// credentials without touching any blob.
type Pinger interface {
	Ping(ctx context.Context) error
}

// VersionLog is implemented by stores that keep an external, strongly
// consistent log of committed versions (e.g. DynamoDB next to S3).
//
// When a store implements VersionLog, manifest commits go through
// CommitVersion instead of relying on PutIfAbsent of the manifest blob.
type VersionLog interface {
	// LatestVersion returns the highest committed version for key, or 0.
	LatestVersion(ctx context.Context, key string) (uint64, error)
	// CommitVersion records version for key. It fails with an error wrapping
	// ErrExists if the version was already committed.
	CommitVersion(ctx context.Context, key string, version uint64, manifest string) error
	// DropVersions forgets every committed version for key.
	DropVersions(ctx context.Context, key string) error
}

// ReadAll reads the full content of the named blob.
func ReadAll(ctx context.Context, s BlobStore, name string) ([]byte, error) {
	b, err := s.Open(ctx, name)
	if err != nil {
		return nil, err
	}
	defer b.Close()

	if m, ok := b.(Mappable); ok {
		data, err := m.Bytes()
		if err != nil {
			return nil, err
		}
		// Mapped bytes die with the handle.
		out := make([]byte, len(data))
		copy(out, data)
		return out, nil
	}

	out := make([]byte, b.Size())
	n, err := b.ReadAt(ctx, out, 0)
	if err != nil && !(errors.Is(err, io.EOF) && int64(n) == b.Size()) {
		return nil, fmt.Errorf("read %s: %w", name, err)
	}
	return out[:n], nil
}

// DeletePrefix removes every blob whose name starts with prefix.
func DeletePrefix(ctx context.Context, s BlobStore, prefix string) error {
	names, err := s.List(ctx, prefix)
	if err != nil {
		return err
	}
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := s.Delete(ctx, name); err != nil {
			return fmt.Errorf("delete %s: %w", name, err)
		}
	}
	return nil
}

func hasPrefix(name, prefix string) bool {
	return prefix == "" || strings.HasPrefix(name, prefix)
}

package vectable

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/hupe1980/vectable/blobstore"
	"github.com/hupe1980/vectable/blobstore/minio"
	"github.com/hupe1980/vectable/blobstore/s3"
)

// openStore resolves a connection URI to a blob store.
//
// Supported forms:
//
//	memory://
//	file:///var/lib/vectable    or a bare path
//	s3://bucket/prefix?commit_table=commits&endpoint=http://localhost:4566
//	minio://host:9000/bucket/prefix?secure=false
func openStore(ctx context.Context, uri string, o *options) (blobstore.BlobStore, error) {
	if uri == "" {
		return nil, fmt.Errorf("%w: empty uri", ErrUnsupportedScheme)
	}
	if !strings.Contains(uri, "://") {
		return openLocal(uri)
	}

	u, err := url.Parse(uri)
	if err != nil {
		return nil, err
	}

	switch u.Scheme {
	case "memory":
		return blobstore.NewMemoryStore(), nil
	case "file":
		return openLocal(u.Host + u.Path)
	case "s3":
		return openS3(ctx, u, o)
	case "minio":
		return openMinio(ctx, u, o)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedScheme, u.Scheme)
	}
}

func openLocal(dir string) (blobstore.BlobStore, error) {
	if dir == "" {
		return nil, fmt.Errorf("%w: empty path", ErrInvalidConfig)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return blobstore.NewLocalStore(dir), nil
}

func openS3(ctx context.Context, u *url.URL, o *options) (blobstore.BlobStore, error) {
	q := u.Query()
	opts := []s3.Option{
		s3.WithPrefix(strings.Trim(u.Path, "/")),
		s3.WithRegion(o.region),
	}
	if o.apiKey != "" {
		access, secret, err := splitAPIKey(o.apiKey)
		if err != nil {
			return nil, err
		}
		opts = append(opts, s3.WithStaticCredentials(access, secret))
	}
	if table := q.Get("commit_table"); table != "" {
		opts = append(opts, s3.WithCommitTable(table))
	}
	if endpoint := q.Get("endpoint"); endpoint != "" {
		opts = append(opts, s3.WithEndpoint(endpoint))
	}
	return s3.New(ctx, u.Host, opts...)
}

func openMinio(ctx context.Context, u *url.URL, o *options) (blobstore.BlobStore, error) {
	bucket, prefix, _ := strings.Cut(strings.TrimPrefix(u.Path, "/"), "/")
	if bucket == "" {
		return nil, fmt.Errorf("%w: minio uri needs a bucket", ErrInvalidConfig)
	}

	opts := []minio.Option{
		minio.WithPrefix(strings.Trim(prefix, "/")),
		minio.WithRegion(o.region),
	}
	if o.apiKey != "" {
		access, secret, err := splitAPIKey(o.apiKey)
		if err != nil {
			return nil, err
		}
		opts = append(opts, minio.WithCredentials(access, secret))
	}
	if s := u.Query().Get("secure"); s != "" {
		secure, err := strconv.ParseBool(s)
		if err != nil {
			return nil, fmt.Errorf("%w: secure=%q", ErrInvalidConfig, s)
		}
		opts = append(opts, minio.WithSecure(secure))
	}
	return minio.New(ctx, u.Host, bucket, opts...)
}

func splitAPIKey(key string) (string, string, error) {
	access, secret, ok := strings.Cut(key, ":")
	if !ok || access == "" || secret == "" {
		return "", "", fmt.Errorf("%w: api key must be ACCESS_KEY:SECRET_KEY", ErrInvalidConfig)
	}
	return access, secret, nil
}

package vectable

import (
	"log/slog"

	"github.com/hupe1980/vectable/blobstore"
	"github.com/hupe1980/vectable/codec"
	"github.com/hupe1980/vectable/embed"
	"go.opentelemetry.io/otel/trace"
)

const (
	// DefaultRegion is used for s3:// URIs when no region is configured.
	DefaultRegion = "us-east-1"

	// DefaultFragmentCacheBytes bounds the decoded fragment cache.
	DefaultFragmentCacheBytes = 256 << 20

	// DefaultIndexCacheEntries bounds the number of loaded indexes kept in memory.
	DefaultIndexCacheEntries = 16
)

type options struct {
	apiKey               string
	region               string
	codec                codec.Codec
	metricsCollector     MetricsCollector
	logger               *Logger
	tracerProvider       trace.TracerProvider
	embedder             embed.Embedder
	store                blobstore.BlobStore
	maxBackgroundWorkers int64
	ioLimitBytesPerSec   int64
	fragmentCacheBytes   int64
	indexCacheEntries    int64
}

// Option configures Connect.
type Option func(*options)

// WithAPIKey sets the credentials for object-store URIs.
//
// For s3:// and minio:// the key has the form "ACCESS_KEY:SECRET_KEY".
// An empty key on s3:// falls back to the default AWS credential chain.
func WithAPIKey(key string) Option {
	return func(o *options) {
		o.apiKey = key
	}
}

// WithRegion sets the object-store region. Default: us-east-1.
func WithRegion(region string) Option {
	return func(o *options) {
		if region != "" {
			o.region = region
		}
	}
}

// WithCodec configures the codec used for row attributes in new fragments.
//
// If nil is passed, codec.Default is used.
func WithCodec(c codec.Codec) Option {
	return func(o *options) {
		if c == nil {
			c = codec.Default
		}
		o.codec = c
	}
}

// WithEmbedder sets the embedding adapter used for rows without vectors
// and for NearestToText queries. The connection does not close it.
//
// Example:
//
//	emb := embed.NewHash(embed.WithDimension(384))
//	defer emb.Close()
//	db, _ := vectable.Connect(ctx, "memory://", vectable.WithEmbedder(emb))
func WithEmbedder(e embed.Embedder) Option {
	return func(o *options) {
		o.embedder = e
	}
}

// WithBlobStore connects to an already constructed store. The URI passed to
// Connect is then only used in log and error messages.
func WithBlobStore(store blobstore.BlobStore) Option {
	return func(o *options) {
		o.store = store
	}
}

// WithMaxBackgroundWorkers bounds the number of concurrent index builds.
// Default: 2.
func WithMaxBackgroundWorkers(n int) Option {
	return func(o *options) {
		o.maxBackgroundWorkers = int64(n)
	}
}

// WithIOLimit throttles fragment and index reads to bytesPerSec.
// 0 disables throttling.
func WithIOLimit(bytesPerSec int64) Option {
	return func(o *options) {
		o.ioLimitBytesPerSec = bytesPerSec
	}
}

// WithFragmentCacheSize sets the byte budget of the decoded fragment cache.
// 0 disables caching.
func WithFragmentCacheSize(bytes int64) Option {
	return func(o *options) {
		o.fragmentCacheBytes = bytes
	}
}

// WithIndexCacheSize sets how many loaded indexes are kept in memory.
func WithIndexCacheSize(entries int) Option {
	return func(o *options) {
		o.indexCacheEntries = int64(entries)
	}
}

// WithMetricsCollector configures a metrics collector for monitoring operations.
// Pass nil to disable metrics collection.
//
// Example with BasicMetricsCollector:
//
//	metrics := &vectable.BasicMetricsCollector{}
//	db, _ := vectable.Connect(ctx, uri, vectable.WithMetricsCollector(metrics))
//	// ... use db ...
//	stats := metrics.GetStats()
//	fmt.Printf("Queries: %d, Avg latency: %dns\n", stats.QueryCount, stats.QueryAvgNanos)
func WithMetricsCollector(mc MetricsCollector) Option {
	return func(o *options) {
		if mc == nil {
			mc = NoopMetricsCollector{}
		}
		o.metricsCollector = mc
	}
}

// WithTracerProvider sets the OpenTelemetry tracer provider.
// Default: the global provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(o *options) {
		o.tracerProvider = tp
	}
}

// WithLogger configures structured logging for operations.
// Pass nil to disable logging.
//
// Example with JSON logging:
//
//	logger := vectable.NewJSONLogger(slog.LevelInfo)
//	db, _ := vectable.Connect(ctx, uri, vectable.WithLogger(logger))
func WithLogger(logger *Logger) Option {
	return func(o *options) {
		if logger == nil {
			logger = NoopLogger()
		}
		o.logger = logger
	}
}

// WithLogLevel creates a text logger with the specified level and sets it.
// Convenience wrapper for WithLogger(NewTextLogger(level)).
func WithLogLevel(level slog.Level) Option {
	return func(o *options) {
		o.logger = NewTextLogger(level)
	}
}

func applyOptions(optFns []Option) options {
	o := options{
		region:             DefaultRegion,
		codec:              codec.Default,
		metricsCollector:   NoopMetricsCollector{},
		logger:             NoopLogger(),
		fragmentCacheBytes: DefaultFragmentCacheBytes,
		indexCacheEntries:  DefaultIndexCacheEntries,
	}
	for _, fn := range optFns {
		if fn != nil {
			fn(&o)
		}
	}
	return o
}

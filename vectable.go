package vectable

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hupe1980/vectable/blobstore"
	"github.com/hupe1980/vectable/codec"
	"github.com/hupe1980/vectable/embed"
	"github.com/hupe1980/vectable/index"
	"github.com/hupe1980/vectable/internal/cache"
	"github.com/hupe1980/vectable/internal/fragment"
	"github.com/hupe1980/vectable/internal/manifest"
	"github.com/hupe1980/vectable/internal/resource"
	"github.com/hupe1980/vectable/model"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Record is one table row.
type Record = model.Record

// CreateMode controls how CreateTable treats an existing table.
type CreateMode int

const (
	// CreateModeCreate fails with ErrTableExists if the table exists.
	CreateModeCreate CreateMode = iota
	// CreateModeOverwrite drops an existing table and creates it anew.
	CreateModeOverwrite
)

func (m CreateMode) String() string {
	switch m {
	case CreateModeCreate:
		return "create"
	case CreateModeOverwrite:
		return "overwrite"
	default:
		return fmt.Sprintf("CreateMode(%d)", int(m))
	}
}

type createOptions struct {
	mode CreateMode
	dim  int
}

// CreateOption configures CreateTable.
type CreateOption func(*createOptions)

// WithMode sets the creation policy. Default: CreateModeCreate.
func WithMode(mode CreateMode) CreateOption {
	return func(o *createOptions) {
		o.mode = mode
	}
}

// WithDimension fixes the vector dimension. It is required when creating a
// table without rows and must match the rows otherwise.
func WithDimension(dim int) CreateOption {
	return func(o *createOptions) {
		o.dim = dim
	}
}

// DB is a connection to a vectable database.
//
// A DB is safe for concurrent use. Close cancels running index builds.
type DB struct {
	uri       string
	store     blobstore.BlobStore
	codec     codec.Codec
	embedder  embed.Embedder
	logger    *Logger
	metrics   MetricsCollector
	tracer    trace.Tracer
	resources *resource.Controller
	pool      *resource.Pool
	fragments *cache.LRU[string, *fragment.Fragment]
	indexes   *cache.LRU[string, index.Index]
	closed    atomic.Bool

	// indexMu serializes index metadata transitions within the process.
	indexMu sync.Mutex
}

// Connect opens the database at uri.
//
// Example:
//
//	emb := embed.NewHash()
//	defer emb.Close()
//	db, err := vectable.Connect(ctx, "memory://", vectable.WithEmbedder(emb))
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
func Connect(ctx context.Context, uri string, optFns ...Option) (*DB, error) {
	o := applyOptions(optFns)

	store := o.store
	if store == nil {
		var err error
		store, err = openStore(ctx, uri, &o)
		if err != nil {
			if errors.Is(err, ErrUnsupportedScheme) {
				return nil, err
			}
			return nil, &ConnectError{URI: uri, Err: err}
		}
	}
	if p, ok := store.(blobstore.Pinger); ok {
		if err := p.Ping(ctx); err != nil {
			return nil, &ConnectError{URI: uri, Err: err}
		}
	}

	resources := resource.NewController(resource.Config{
		MaxBackgroundWorkers: o.maxBackgroundWorkers,
		IOLimitBytesPerSec:   o.ioLimitBytesPerSec,
	})

	db := &DB{
		uri:       uri,
		store:     store,
		codec:     o.codec,
		embedder:  o.embedder,
		logger:    o.logger,
		metrics:   o.metricsCollector,
		tracer:    newTracer(o.tracerProvider),
		resources: resources,
		pool:      resource.NewPool(resources),
		fragments: cache.NewLRU(o.fragmentCacheBytes, cache.WithCost[string](fragmentCost)),
		indexes:   cache.NewLRU[string, index.Index](o.indexCacheEntries),
	}
	db.logger.DebugContext(ctx, "connected", "uri", uri)
	return db, nil
}

func fragmentCost(f *fragment.Fragment) int64 {
	// Vectors dominate; attributes are estimated per row.
	return int64(len(f.Records)) * int64(f.Dim*4+128)
}

// URI returns the URI the connection was opened with.
func (db *DB) URI() string { return db.uri }

// Embedder returns the configured embedding adapter, or nil.
func (db *DB) Embedder() embed.Embedder { return db.embedder }

// Close cancels background index builds and waits for them to stop.
// It does not close the embedder.
func (db *DB) Close() error {
	if db == nil || !db.closed.CompareAndSwap(false, true) {
		return nil
	}
	return db.pool.Close()
}

func (db *DB) checkOpen() error {
	if db.closed.Load() {
		return ErrClosed
	}
	return nil
}

// TableNames returns the names of all tables, sorted.
func (db *DB) TableNames(ctx context.Context) ([]string, error) {
	if err := db.checkOpen(); err != nil {
		return nil, opError("table names", "", err)
	}
	names, err := manifest.ListTables(ctx, db.store)
	return names, opError("table names", "", err)
}

// OpenTable returns a handle bound to the latest version of an existing table.
func (db *DB) OpenTable(ctx context.Context, name string) (*Table, error) {
	if err := db.checkOpen(); err != nil {
		return nil, opError("open table", name, err)
	}
	if err := validateTableName(name); err != nil {
		return nil, opError("open table", name, err)
	}
	ms := manifest.NewStore(db.store, name)
	ok, err := ms.Exists(ctx)
	if err != nil {
		return nil, opError("open table", name, err)
	}
	if !ok {
		return nil, opError("open table", name, ErrTableNotFound)
	}
	return newTable(db, ms), nil
}

// DropTable deletes a table with all its versions and indexes.
func (db *DB) DropTable(ctx context.Context, name string) (err error) {
	ctx, span := db.startSpan(ctx, "vectable.DropTable", attribute.String("table", name))
	defer func() { endSpan(span, err) }()

	if err := db.checkOpen(); err != nil {
		return opError("drop table", name, err)
	}
	if err := validateTableName(name); err != nil {
		return opError("drop table", name, err)
	}
	ms := manifest.NewStore(db.store, name)
	ok, err := ms.Exists(ctx)
	if err != nil {
		return opError("drop table", name, err)
	}
	if !ok {
		return opError("drop table", name, ErrTableNotFound)
	}
	if err := db.drop(ctx, ms); err != nil {
		return opError("drop table", name, err)
	}
	db.logger.InfoContext(ctx, "table dropped", "table", name)
	return nil
}

func (db *DB) drop(ctx context.Context, ms *manifest.Store) error {
	// A build that is publishing its outcome must finish first, or it
	// could write a ready index into the table that replaces this one.
	db.indexMu.Lock()
	defer db.indexMu.Unlock()

	prefix := ms.Table() + "/"
	db.fragments.Invalidate(func(key string) bool { return strings.HasPrefix(key, prefix) })
	db.indexes.Invalidate(func(key string) bool { return strings.HasPrefix(key, prefix) })
	return ms.Drop(ctx)
}

// CreateTable creates a table from records and returns a handle bound to
// its first version.
//
// Records without a vector are embedded from their text with the
// connection's embedder. All vectors must share one dimension.
func (db *DB) CreateTable(ctx context.Context, name string, records []Record, optFns ...CreateOption) (tbl *Table, err error) {
	start := time.Now()
	ctx, span := db.startSpan(ctx, "vectable.CreateTable",
		attribute.String("table", name),
		attribute.Int("rows", len(records)),
	)
	defer func() {
		endSpan(span, err)
		db.metrics.RecordAdd(len(records), time.Since(start), err)
	}()

	var o createOptions
	for _, fn := range optFns {
		fn(&o)
	}

	tbl, dim, err := db.createTable(ctx, name, records, o)
	db.logger.LogCreateTable(ctx, name, len(records), dim, err)
	if err != nil {
		return nil, opError("create table", name, err)
	}
	return tbl, nil
}

func (db *DB) createTable(ctx context.Context, name string, records []Record, o createOptions) (*Table, int, error) {
	if err := db.checkOpen(); err != nil {
		return nil, 0, err
	}
	if err := validateTableName(name); err != nil {
		return nil, 0, err
	}
	if o.dim < 0 {
		return nil, 0, fmt.Errorf("%w: dimension %d", ErrInvalidConfig, o.dim)
	}

	rows, err := db.prepareRecords(ctx, records)
	if err != nil {
		return nil, 0, err
	}
	dim := o.dim
	if dim == 0 {
		if len(rows) == 0 {
			return nil, 0, fmt.Errorf("%w: cannot infer the dimension of an empty table", ErrInvalidConfig)
		}
		dim = len(rows[0].Vector)
	}
	if err := checkDimensions(rows, dim); err != nil {
		return nil, dim, err
	}

	ms := manifest.NewStore(db.store, name)
	exists, err := ms.Exists(ctx)
	if err != nil {
		return nil, dim, err
	}
	if exists {
		switch o.mode {
		case CreateModeCreate:
			return nil, dim, ErrTableExists
		case CreateModeOverwrite:
			if err := db.drop(ctx, ms); err != nil {
				return nil, dim, fmt.Errorf("drop existing table: %w", err)
			}
		default:
			return nil, dim, fmt.Errorf("%w: create mode %v", ErrInvalidConfig, o.mode)
		}
	}

	m := manifest.New(dim)
	if len(rows) > 0 {
		info, err := db.writeFragment(ctx, ms, m.NextFragmentID, dim, rows)
		if err != nil {
			return nil, dim, err
		}
		m.Fragments = append(m.Fragments, info)
		m.NextFragmentID++
		m.AddColumns(metadataColumns(rows)...)
	}

	if err := ms.Commit(ctx, m); err != nil {
		if errors.Is(err, manifest.ErrConflict) {
			db.metrics.RecordCommitConflict()
			return nil, dim, ErrTableExists
		}
		return nil, dim, err
	}
	return newTable(db, ms), dim, nil
}

// prepareRecords clones records and embeds those without a vector.
func (db *DB) prepareRecords(ctx context.Context, records []Record) ([]Record, error) {
	rows := make([]Record, len(records))
	var (
		missing []int
		texts   []string
	)
	for i, r := range records {
		rows[i] = r.Clone()
		if len(r.Vector) == 0 {
			missing = append(missing, i)
			texts = append(texts, r.Text)
		}
	}
	if len(missing) == 0 {
		return rows, nil
	}
	if db.embedder == nil {
		return nil, fmt.Errorf("%w: %d rows without vector and no embedder configured", ErrInvalidConfig, len(missing))
	}

	vecs, err := db.embedder.Embed(ctx, texts)
	if err != nil {
		return nil, err
	}
	if len(vecs) != len(missing) {
		return nil, fmt.Errorf("embedder returned %d vectors for %d texts", len(vecs), len(missing))
	}
	for j, i := range missing {
		rows[i].Vector = vecs[j]
	}
	return rows, nil
}

func checkDimensions(rows []Record, dim int) error {
	if dim <= 0 {
		return fmt.Errorf("%w: dimension %d", ErrInvalidConfig, dim)
	}
	for _, r := range rows {
		if len(r.Vector) != dim {
			return &ErrDimensionMismatch{Expected: dim, Actual: len(r.Vector)}
		}
	}
	return nil
}

func metadataColumns(rows []Record) []string {
	var cols []string
	seen := make(map[string]struct{})
	for _, r := range rows {
		for k := range r.Metadata {
			if isReservedColumn(k) {
				continue
			}
			if _, ok := seen[k]; ok {
				continue
			}
			seen[k] = struct{}{}
			cols = append(cols, k)
		}
	}
	return cols
}

// writeFragment encodes rows as fragment id and stores it under the table.
// The blob is written with PutIfAbsent so racing writers cannot replace
// each other's data.
func (db *DB) writeFragment(ctx context.Context, ms *manifest.Store, id model.FragmentID, dim int, rows []Record) (manifest.FragmentInfo, error) {
	data, err := fragment.EncodeWith(&fragment.Fragment{ID: id, Dim: dim, Records: rows}, db.codec)
	if err != nil {
		return manifest.FragmentInfo{}, err
	}
	rel := fragment.Name(id)
	if err := db.store.PutIfAbsent(ctx, ms.Path(rel), data); err != nil {
		if errors.Is(err, blobstore.ErrExists) {
			return manifest.FragmentInfo{}, fmt.Errorf("%w: fragment %d", manifest.ErrConflict, id)
		}
		return manifest.FragmentInfo{}, err
	}
	return manifest.FragmentInfo{
		ID:   id,
		Rows: uint32(len(rows)),
		Path: rel,
		Size: int64(len(data)),
	}, nil
}

func validateTableName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: empty table name", ErrInvalidConfig)
	}
	if strings.ContainsAny(name, "/\\") || strings.HasPrefix(name, "_") || strings.HasPrefix(name, ".") {
		return fmt.Errorf("%w: invalid table name %q", ErrInvalidConfig, name)
	}
	return nil
}

func isReservedColumn(name string) bool {
	switch name {
	case model.ColumnID, model.ColumnText, model.ColumnType, model.ColumnVector,
		model.ColumnDistance, model.ColumnScore, model.ColumnRelevance, model.ColumnRowAddr:
		return true
	}
	return false
}

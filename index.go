package vectable

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/hupe1980/vectable/distance"
	"github.com/hupe1980/vectable/index"
	"github.com/hupe1980/vectable/index/ivfpq"
	"github.com/hupe1980/vectable/internal/manifest"
	"github.com/hupe1980/vectable/internal/resource"
	"github.com/hupe1980/vectable/lexical/bm25"
	"github.com/hupe1980/vectable/model"
	"go.opentelemetry.io/otel/attribute"
)

// Metric is the distance metric of a vector column or query.
type Metric = distance.Metric

const (
	MetricL2     = distance.MetricL2
	MetricCosine = distance.MetricCosine
	MetricDot    = distance.MetricDot
)

// IndexType selects the index implementation.
type IndexType string

const (
	// IndexTypeIVFPQ is an inverted-file index with product quantization
	// over the vector column.
	IndexTypeIVFPQ IndexType = "IVF_PQ"
	// IndexTypeFTS is a BM25 full-text index over a string column.
	IndexTypeFTS IndexType = "FTS"
)

// IndexStatus is the build state of an index.
type IndexStatus string

const (
	IndexStatusPending IndexStatus = IndexStatus(manifest.IndexPending)
	IndexStatusReady   IndexStatus = IndexStatus(manifest.IndexReady)
	IndexStatusFailed  IndexStatus = IndexStatus(manifest.IndexFailed)
)

// IndexConfig describes an index to build.
type IndexConfig struct {
	Type IndexType
	// Name defaults to "<column>_idx".
	Name string

	// Metric is the distance metric of a vector index.
	Metric Metric
	// Partitions is the number of IVF cells. 0 selects sqrt(rows), capped at 256.
	Partitions int
	// SubVectors is the number of PQ subvectors. 0 derives it from the dimension.
	SubVectors int
	// MaxIterations bounds k-means training. 0 uses 50.
	MaxIterations int
	// Seed makes training deterministic. 0 uses 42.
	Seed int64
}

// IVFPQ returns the configuration of a vector index with metric.
func IVFPQ(metric Metric) IndexConfig {
	return IndexConfig{Type: IndexTypeIVFPQ, Metric: metric}
}

// FTS returns the configuration of a full-text index.
func FTS() IndexConfig {
	return IndexConfig{Type: IndexTypeFTS}
}

// IndexInfo describes a completed index.
type IndexInfo struct {
	Name    string
	Column  string
	Type    IndexType
	Metric  Metric
	Version uint64 // table version the index was built from
	Rows    int
}

// IndexStats reports the state of an index in any status.
type IndexStats struct {
	IndexInfo
	Status IndexStatus
	// Error holds the failure message of a failed build.
	Error         string
	UnindexedRows int
	Partitions    int
	SubVectors    int
}

func kindOf(t IndexType) manifest.IndexKind {
	if t == IndexTypeFTS {
		return manifest.IndexKindFullText
	}
	return manifest.IndexKindVector
}

func typeOf(k manifest.IndexKind) IndexType {
	if k == manifest.IndexKindFullText {
		return IndexTypeFTS
	}
	return IndexTypeIVFPQ
}

func infoOf(meta *manifest.IndexMeta) IndexInfo {
	return IndexInfo{
		Name:    meta.Name,
		Column:  meta.Column,
		Type:    typeOf(meta.Kind),
		Metric:  meta.Metric,
		Version: meta.Version,
		Rows:    meta.Rows,
	}
}

// CreateIndex records a pending index build over column and schedules it
// on the connection's background workers. It returns before the index is
// usable; use WaitForIndices or IndexStats to observe completion.
//
// An existing index of the same type on the column is replaced.
func (t *Table) CreateIndex(ctx context.Context, column string, cfg IndexConfig) (err error) {
	ctx, span := t.db.startSpan(ctx, "vectable.CreateIndex",
		attribute.String("table", t.name),
		attribute.String("column", column),
		attribute.String("type", string(cfg.Type)),
	)
	defer func() { endSpan(span, err) }()

	if err := t.db.checkOpen(); err != nil {
		return opError("create index", t.name, err)
	}
	m, err := t.ms.Latest(ctx)
	if err != nil {
		return opError("create index", t.name, err)
	}
	if err := validateIndex(m, column, cfg); err != nil {
		return opError("create index", t.name, err)
	}
	if cfg.Name == "" {
		cfg.Name = column + "_idx"
	}

	now := time.Now().UTC()
	meta := &manifest.IndexMeta{
		Name:      cfg.Name,
		Column:    column,
		Kind:      kindOf(cfg.Type),
		Metric:    cfg.Metric,
		Status:    manifest.IndexPending,
		BuildID:   uuid.NewString(),
		Version:   m.Version,
		CreatedAt: now,
	}
	if err := t.replaceIndex(ctx, meta); err != nil {
		return opError("create index", t.name, err)
	}

	err = t.db.pool.Go(func(ctx context.Context) {
		t.buildIndex(ctx, meta, m, cfg)
	})
	if errors.Is(err, resource.ErrPoolClosed) {
		err = ErrClosed
	}
	return opError("create index", t.name, err)
}

func validateIndex(m *manifest.Manifest, column string, cfg IndexConfig) error {
	known := tableColumns(m)
	switch cfg.Type {
	case IndexTypeIVFPQ:
		if column != model.ColumnVector {
			if slices.Contains(known, column) {
				return fmt.Errorf("%w: %s is not a vector column", ErrInvalidConfig, column)
			}
			return fmt.Errorf("%w: %q", ErrUnknownColumn, column)
		}
		if _, err := distance.Provider(cfg.Metric); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
		}
		if cfg.Partitions < 0 || cfg.SubVectors < 0 || cfg.MaxIterations < 0 {
			return fmt.Errorf("%w: negative index parameter", ErrInvalidConfig)
		}
		if cfg.SubVectors > 0 && m.Dim%cfg.SubVectors != 0 {
			return fmt.Errorf("%w: dimension %d is not divisible by %d sub vectors", ErrInvalidConfig, m.Dim, cfg.SubVectors)
		}
	case IndexTypeFTS:
		if !slices.Contains(known, column) {
			return fmt.Errorf("%w: %q", ErrUnknownColumn, column)
		}
		if column == model.ColumnVector || column == model.ColumnID {
			return fmt.Errorf("%w: %s is not a string column", ErrInvalidConfig, column)
		}
	default:
		return fmt.Errorf("%w: index type %q", ErrInvalidConfig, cfg.Type)
	}
	return nil
}

// replaceIndex saves meta as pending and removes indexes it supersedes.
func (t *Table) replaceIndex(ctx context.Context, meta *manifest.IndexMeta) error {
	t.db.indexMu.Lock()
	defer t.db.indexMu.Unlock()

	existing, err := t.ms.ListIndexes(ctx)
	if err != nil {
		return err
	}
	if err := t.ms.SaveIndex(ctx, meta); err != nil {
		return err
	}
	for _, old := range existing {
		switch {
		case old.Name == meta.Name:
		case old.Column == meta.Column && old.Kind == meta.Kind:
			if err := t.ms.DeleteIndex(ctx, old.Name); err != nil {
				return err
			}
		default:
			continue
		}
		if err := t.ms.DeletePayload(ctx, old.Payload); err != nil {
			return err
		}
	}
	return nil
}

// buildIndex runs on a background worker and publishes the outcome.
func (t *Table) buildIndex(ctx context.Context, meta *manifest.IndexMeta, m *manifest.Manifest, cfg IndexConfig) {
	start := time.Now()
	ctx, span := t.db.startSpan(ctx, "vectable.BuildIndex",
		attribute.String("table", t.name),
		attribute.String("index", meta.Name),
	)

	payload, built, err := t.trainIndex(ctx, meta, m, cfg)

	// Record the outcome even if the connection is closing.
	ctx = context.WithoutCancel(ctx)
	t.db.indexMu.Lock()
	current, lerr := t.ms.LoadIndex(ctx, meta.Name)
	superseded := lerr != nil || current.BuildID != meta.BuildID
	if superseded {
		_ = t.ms.DeletePayload(ctx, payload)
	} else {
		if err != nil {
			current.Status = manifest.IndexFailed
			current.Error = err.Error()
			_ = t.ms.DeletePayload(ctx, payload)
		} else {
			current.Status = manifest.IndexReady
			current.Payload = payload
			current.Rows = built.Len()
			current.Fragments = fragmentIDs(m)
			if v, ok := built.(*ivfpq.Index); ok {
				current.Partitions = v.Partitions()
				current.SubVectors = v.SubVectors()
			}
		}
		if serr := t.ms.SaveIndex(ctx, current); serr != nil && err == nil {
			err = serr
		}
	}
	t.db.indexMu.Unlock()

	elapsed := time.Since(start)
	if superseded && err == nil {
		t.db.logger.DebugContext(ctx, "index build superseded", "table", t.name, "index", meta.Name)
	} else {
		t.db.logger.LogIndexBuild(ctx, t.name, meta.Name, m.RowCount(), elapsed, err)
		t.db.metrics.RecordIndexBuild(string(typeOf(meta.Kind)), elapsed, err)
	}
	endSpan(span, err)
}

// trainIndex builds the index over m and stores its payload.
func (t *Table) trainIndex(ctx context.Context, meta *manifest.IndexMeta, m *manifest.Manifest, cfg IndexConfig) (string, index.Index, error) {
	frags, err := t.loadFragments(ctx, m)
	if err != nil {
		return "", nil, err
	}

	var built index.Index
	switch meta.Kind {
	case manifest.IndexKindVector:
		n := m.RowCount()
		vectors := make([][]float32, 0, n)
		addrs := make([]model.RowAddr, 0, n)
		for _, f := range frags {
			for i, r := range f.Records {
				vectors = append(vectors, r.Vector)
				addrs = append(addrs, model.NewRowAddr(f.ID, uint32(i)))
			}
		}
		built, err = ivfpq.Build(ctx, m.Dim, vectors, addrs, ivfpq.Config{
			Partitions:    cfg.Partitions,
			SubVectors:    cfg.SubVectors,
			Metric:        cfg.Metric,
			MaxIterations: cfg.MaxIterations,
			Seed:          cfg.Seed,
		})
	case manifest.IndexKindFullText:
		fts := bm25.New()
		for _, f := range frags {
			if err := ctx.Err(); err != nil {
				return "", nil, err
			}
			for i, r := range f.Records {
				if err := fts.Add(model.NewRowAddr(f.ID, uint32(i)), columnText(r, meta.Column)); err != nil {
					return "", nil, err
				}
			}
		}
		built = fts
	default:
		err = fmt.Errorf("unknown index kind %q", meta.Kind)
	}
	if err != nil {
		return "", nil, err
	}

	data, err := index.Marshal(built)
	if err != nil {
		return "", nil, err
	}
	payload, err := t.ms.PutIndexPayload(ctx, meta.Name, meta.BuildID, data)
	if err != nil {
		return "", nil, err
	}
	return payload, built, nil
}

// columnText returns the indexable text of a string column.
func columnText(r Record, column string) string {
	v, ok := r.Field(column)
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}

func fragmentIDs(m *manifest.Manifest) []model.FragmentID {
	ids := make([]model.FragmentID, len(m.Fragments))
	for i, f := range m.Fragments {
		ids[i] = f.ID
	}
	return ids
}

// ListIndices returns the completed indices of the table.
func (t *Table) ListIndices(ctx context.Context) ([]IndexInfo, error) {
	metas, err := t.ms.ListIndexes(ctx)
	if err != nil {
		return nil, opError("list indices", t.name, err)
	}
	var out []IndexInfo
	for _, meta := range metas {
		if meta.Status == manifest.IndexReady {
			out = append(out, infoOf(meta))
		}
	}
	return out, nil
}

// IndexStats returns the status of the named index, whether it is
// pending, ready or failed. Unindexed rows are counted in the version the
// handle reads.
func (t *Table) IndexStats(ctx context.Context, name string) (*IndexStats, error) {
	meta, err := t.ms.LoadIndex(ctx, name)
	if err != nil {
		return nil, opError("index stats", t.name, err)
	}
	stats := &IndexStats{
		IndexInfo:  infoOf(meta),
		Status:     IndexStatus(meta.Status),
		Error:      meta.Error,
		Partitions: meta.Partitions,
		SubVectors: meta.SubVectors,
	}
	m, err := t.snapshot(ctx)
	if err != nil {
		return nil, opError("index stats", t.name, err)
	}
	for _, f := range m.Fragments {
		if meta.Status != manifest.IndexReady || !meta.Covers(f.ID) {
			stats.UnindexedRows += int(f.Rows)
		}
	}
	return stats, nil
}

// loadIndex returns the ready index of kind on column, or nil if there is
// none. For vector indexes, metric restricts the match when non-nil.
func (t *Table) loadIndex(ctx context.Context, column string, kind manifest.IndexKind, metric *Metric) (*manifest.IndexMeta, index.Index, error) {
	metas, err := t.ms.ListIndexes(ctx)
	if err != nil {
		return nil, nil, err
	}
	for _, meta := range metas {
		if meta.Status != manifest.IndexReady || meta.Column != column || meta.Kind != kind {
			continue
		}
		if metric != nil && meta.Metric != *metric {
			continue
		}
		key := t.name + "/" + meta.Payload
		if idx, ok := t.db.indexes.Get(key); ok {
			return meta, idx, nil
		}
		data, err := t.ms.ReadIndexPayload(ctx, meta.Payload)
		if err != nil {
			return nil, nil, fmt.Errorf("read index %s: %w", meta.Name, err)
		}
		if err := t.db.resources.AcquireIO(ctx, len(data)); err != nil {
			return nil, nil, err
		}
		idx, err := index.Unmarshal(data)
		if err != nil {
			return nil, nil, fmt.Errorf("index %s: %w", meta.Name, err)
		}
		t.db.indexes.Set(key, idx)
		return meta, idx, nil
	}
	return nil, nil, nil
}

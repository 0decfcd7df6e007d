package vectable

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/hupe1980/vectable/blobstore"
	"github.com/hupe1980/vectable/filter"
	"github.com/hupe1980/vectable/internal/fragment"
	"github.com/hupe1980/vectable/internal/manifest"
	"github.com/hupe1980/vectable/model"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"
)

// maxCommitAttempts bounds the retries of an append that lost a commit race.
const maxCommitAttempts = 3

// VersionInfo describes one committed table version.
type VersionInfo struct {
	Version      uint64
	Timestamp    time.Time
	Rows         int
	RestoredFrom uint64
}

// Table is a handle to a versioned table.
//
// A handle reads the latest version unless it has been checked out to a
// specific one. The pin is local to the handle.
type Table struct {
	db   *DB
	name string
	ms   *manifest.Store

	mu       sync.Mutex
	pinned   uint64 // 0 follows the latest version
	pinnedID string // TableID of the pinned version
}

func newTable(db *DB, ms *manifest.Store) *Table {
	return &Table{db: db, name: ms.Table(), ms: ms}
}

// Name returns the table name.
func (t *Table) Name() string { return t.name }

func (t *Table) pin() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.pinned
}

func (t *Table) pinID() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.pinnedID
}

func (t *Table) setPin(v uint64, tableID string) {
	t.mu.Lock()
	t.pinned = v
	t.pinnedID = tableID
	t.mu.Unlock()
}

// samePinnedTable fails when m belongs to a table that replaced the one
// the handle was checked out on. Version numbers restart after an
// overwrite, so the number alone does not identify the snapshot.
func (t *Table) samePinnedTable(m *manifest.Manifest) error {
	if id := t.pinID(); id != "" && id != m.TableID {
		return fmt.Errorf("%w: version %d belongs to a table that was dropped or overwritten", ErrVersionNotFound, t.pin())
	}
	return nil
}

// snapshot loads the manifest the handle currently reads.
func (t *Table) snapshot(ctx context.Context) (*manifest.Manifest, error) {
	if v := t.pin(); v != 0 {
		m, err := t.ms.Load(ctx, v)
		if err != nil {
			return nil, err
		}
		if err := t.samePinnedTable(m); err != nil {
			return nil, err
		}
		return m, nil
	}
	m, err := t.ms.Latest(ctx)
	if errors.Is(err, manifest.ErrNotFound) {
		return nil, ErrTableNotFound
	}
	return m, err
}

// Version returns the version the handle reads: the pinned version after
// Checkout, otherwise the latest committed version.
func (t *Table) Version(ctx context.Context) (uint64, error) {
	m, err := t.snapshot(ctx)
	if err != nil {
		return 0, opError("version", t.name, err)
	}
	return m.Version, nil
}

// Checkout pins the handle's reads to version. Other handles and the
// stored versions are not affected.
func (t *Table) Checkout(ctx context.Context, version uint64) (err error) {
	ctx, span := t.db.startSpan(ctx, "vectable.Checkout",
		attribute.String("table", t.name),
		attribute.Int64("version", int64(version)),
	)
	defer func() {
		endSpan(span, err)
		t.db.logger.LogCheckout(ctx, t.name, version, err)
	}()

	if version == 0 {
		return opError("checkout", t.name, fmt.Errorf("%w: 0", ErrVersionNotFound))
	}
	m, err := t.ms.Load(ctx, version)
	if err != nil {
		return opError("checkout", t.name, err)
	}
	t.setPin(version, m.TableID)
	return nil
}

// CheckoutLatest releases a pin so the handle follows the latest version again.
func (t *Table) CheckoutLatest(ctx context.Context) error {
	t.setPin(0, "")
	if _, err := t.snapshot(ctx); err != nil {
		return opError("checkout latest", t.name, err)
	}
	return nil
}

// Restore commits the content of the checked out version as a new latest
// version and releases the pin. On a handle that follows the latest version
// it does nothing.
func (t *Table) Restore(ctx context.Context) (err error) {
	ctx, span := t.db.startSpan(ctx, "vectable.Restore", attribute.String("table", t.name))
	defer func() { endSpan(span, err) }()

	pinned := t.pin()
	if pinned == 0 {
		return nil
	}
	old, err := t.snapshot(ctx)
	if err != nil {
		return opError("restore", t.name, err)
	}
	latest, err := t.ms.Latest(ctx)
	if err != nil {
		return opError("restore", t.name, err)
	}
	if err := t.samePinnedTable(latest); err != nil {
		return opError("restore", t.name, err)
	}

	next := latest.Next()
	next.Dim = old.Dim
	next.Fragments = append([]manifest.FragmentInfo(nil), old.Fragments...)
	next.Columns = append([]string(nil), old.Columns...)
	next.RestoredFrom = old.Version
	if err := t.commit(ctx, next); err != nil {
		return opError("restore", t.name, err)
	}
	t.setPin(0, "")
	t.db.logger.InfoContext(ctx, "version restored", "table", t.name, "from", old.Version, "version", next.Version)
	return nil
}

// ListVersions returns every committed version in ascending order.
func (t *Table) ListVersions(ctx context.Context) ([]VersionInfo, error) {
	versions, err := t.ms.ListVersions(ctx)
	if err != nil {
		return nil, opError("list versions", t.name, err)
	}
	out := make([]VersionInfo, 0, len(versions))
	for _, v := range versions {
		m, err := t.ms.Load(ctx, v)
		if err != nil {
			return nil, opError("list versions", t.name, err)
		}
		out = append(out, VersionInfo{
			Version:      m.Version,
			Timestamp:    m.CreatedAt,
			Rows:         m.RowCount(),
			RestoredFrom: m.RestoredFrom,
		})
	}
	return out, nil
}

// Columns returns the column names of the version the handle reads.
func (t *Table) Columns(ctx context.Context) ([]string, error) {
	m, err := t.snapshot(ctx)
	if err != nil {
		return nil, opError("columns", t.name, err)
	}
	return tableColumns(m), nil
}

// Dimension returns the vector dimension of the table.
func (t *Table) Dimension(ctx context.Context) (int, error) {
	m, err := t.snapshot(ctx)
	if err != nil {
		return 0, opError("dimension", t.name, err)
	}
	return m.Dim, nil
}

func tableColumns(m *manifest.Manifest) []string {
	cols := []string{model.ColumnID, model.ColumnText, model.ColumnType, model.ColumnVector}
	return append(cols, m.Columns...)
}

// CountRows returns the number of rows in the version the handle reads.
func (t *Table) CountRows(ctx context.Context) (int, error) {
	m, err := t.snapshot(ctx)
	if err != nil {
		return 0, opError("count rows", t.name, err)
	}
	return m.RowCount(), nil
}

// CountRowsWhere counts the rows matching a filter expression such as
// "type = 'fruit'".
func (t *Table) CountRowsWhere(ctx context.Context, where string) (int, error) {
	m, err := t.snapshot(ctx)
	if err != nil {
		return 0, opError("count rows", t.name, err)
	}
	expr, err := parseFilter(where, m)
	if err != nil {
		return 0, opError("count rows", t.name, err)
	}
	frags, err := t.loadFragments(ctx, m)
	if err != nil {
		return 0, opError("count rows", t.name, err)
	}
	n := 0
	for _, f := range frags {
		for _, r := range f.Records {
			if expr.Match(r) {
				n++
			}
		}
	}
	return n, nil
}

// Add appends records as a new version.
//
// Records without a vector are embedded from their text. Adding through a
// handle checked out to an older version fails with ErrDetachedHead.
func (t *Table) Add(ctx context.Context, records []Record) (err error) {
	start := time.Now()
	ctx, span := t.db.startSpan(ctx, "vectable.Add",
		attribute.String("table", t.name),
		attribute.Int("rows", len(records)),
	)
	var version uint64
	defer func() {
		endSpan(span, err)
		t.db.metrics.RecordAdd(len(records), time.Since(start), err)
		t.db.logger.LogAdd(ctx, t.name, len(records), version, err)
	}()

	version, err = t.add(ctx, records)
	return opError("add", t.name, err)
}

func (t *Table) add(ctx context.Context, records []Record) (uint64, error) {
	if err := t.db.checkOpen(); err != nil {
		return 0, err
	}
	if len(records) == 0 {
		return 0, nil
	}

	rows, err := t.db.prepareRecords(ctx, records)
	if err != nil {
		return 0, err
	}

	var lastErr error
	for attempt := 0; attempt < maxCommitAttempts; attempt++ {
		latest, err := t.ms.Latest(ctx)
		if err != nil {
			return 0, err
		}
		if pinned := t.pin(); pinned != 0 {
			if err := t.samePinnedTable(latest); err != nil {
				return 0, err
			}
			if pinned != latest.Version {
				return 0, fmt.Errorf("%w: pinned to %d, latest is %d", ErrDetachedHead, pinned, latest.Version)
			}
		}
		if err := checkDimensions(rows, latest.Dim); err != nil {
			return 0, err
		}

		next := latest.Next()
		info, err := t.db.writeFragment(ctx, t.ms, next.NextFragmentID, next.Dim, rows)
		if err == nil {
			next.Fragments = append(next.Fragments, info)
			next.NextFragmentID++
			next.AddColumns(metadataColumns(rows)...)
			err = t.commit(ctx, next)
			if err != nil && errors.Is(err, ErrConcurrentModification) {
				// The fragment was never published.
				_ = t.db.store.Delete(ctx, t.ms.Path(info.Path))
			}
		} else if errors.Is(err, manifest.ErrConflict) {
			t.db.metrics.RecordCommitConflict()
			err = fmt.Errorf("%w: %w", ErrConcurrentModification, err)
		}
		if err == nil {
			if t.pin() != 0 {
				t.setPin(next.Version, next.TableID)
			}
			return next.Version, nil
		}
		if !errors.Is(err, ErrConcurrentModification) {
			return 0, err
		}
		lastErr = err
	}
	return 0, lastErr
}

// commit publishes m, mapping lost races to ErrConcurrentModification.
func (t *Table) commit(ctx context.Context, m *manifest.Manifest) error {
	err := t.ms.Commit(ctx, m)
	if errors.Is(err, manifest.ErrConflict) {
		t.db.metrics.RecordCommitConflict()
		return fmt.Errorf("%w: %w", ErrConcurrentModification, err)
	}
	return err
}

func (t *Table) cacheKey(m *manifest.Manifest, rel string) string {
	return t.name + "/" + m.TableID + "/" + rel
}

// loadFragments reads the fragments of m in parallel, in manifest order.
func (t *Table) loadFragments(ctx context.Context, m *manifest.Manifest) ([]*fragment.Fragment, error) {
	frags := make([]*fragment.Fragment, len(m.Fragments))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(8)
	for i, info := range m.Fragments {
		g.Go(func() error {
			f, err := t.loadFragment(ctx, m, info)
			if err != nil {
				return err
			}
			frags[i] = f
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return frags, nil
}

func (t *Table) loadFragment(ctx context.Context, m *manifest.Manifest, info manifest.FragmentInfo) (*fragment.Fragment, error) {
	key := t.cacheKey(m, info.Path)
	if f, ok := t.db.fragments.Get(key); ok {
		return f, nil
	}
	if err := t.db.resources.AcquireIO(ctx, int(info.Size)); err != nil {
		return nil, err
	}
	data, err := blobstore.ReadAll(ctx, t.db.store, t.ms.Path(info.Path))
	if err != nil {
		return nil, fmt.Errorf("read fragment %d: %w", info.ID, err)
	}
	f, err := fragment.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("fragment %d: %w", info.ID, err)
	}
	if f.ID != info.ID || len(f.Records) != int(info.Rows) {
		return nil, fmt.Errorf("fragment %d: %w: manifest mismatch", info.ID, fragment.ErrCorrupt)
	}
	t.db.fragments.Set(key, f)
	return f, nil
}

// parseFilter parses where and checks its columns against the table.
func parseFilter(where string, m *manifest.Manifest) (filter.Expr, error) {
	expr, err := filter.Parse(where)
	if err != nil {
		return nil, err
	}
	known := tableColumns(m)
	for _, col := range expr.Columns() {
		if !slices.Contains(known, col) {
			return nil, fmt.Errorf("%w: %q", ErrUnknownColumn, col)
		}
	}
	return expr, nil
}

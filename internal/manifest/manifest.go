package manifest

import (
	"context"
	"errors"
	"fmt"
	"path"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hupe1980/vectable/blobstore"
	"github.com/hupe1980/vectable/codec"
	"github.com/hupe1980/vectable/model"
)

const (
	versionsDir = "_versions"
	indicesDir  = "_indices"
	manifestExt = ".manifest"
	indexExt    = ".meta"

	// CurrentVersion is the version of the manifest format.
	CurrentVersion = 1
)

// Manifest describes the state of a table at a specific version.
type Manifest struct {
	FormatVersion int    `json:"format_version"`
	Version       uint64 `json:"version"`
	// TableID is assigned on creation and survives every later version.
	// Dropping and recreating a table yields a new ID.
	TableID        string           `json:"table_id"`
	CreatedAt      time.Time        `json:"created_at"`
	Dim            int              `json:"dim"`
	Columns        []string         `json:"columns,omitempty"`
	NextFragmentID model.FragmentID `json:"next_fragment_id"`
	Fragments      []FragmentInfo   `json:"fragments"`
	// RestoredFrom is set when the version was produced by a restore.
	RestoredFrom uint64 `json:"restored_from,omitempty"`
}

// New creates an empty manifest for version 1.
func New(dim int) *Manifest {
	return &Manifest{
		FormatVersion:  CurrentVersion,
		Version:        1,
		TableID:        uuid.NewString(),
		CreatedAt:      time.Now().UTC(),
		Dim:            dim,
		NextFragmentID: 1,
	}
}

// FragmentInfo describes a single fragment.
type FragmentInfo struct {
	ID   model.FragmentID `json:"id"`
	Rows uint32           `json:"rows"`
	Path string           `json:"path"` // Relative to the table root
	Size int64            `json:"size"`
}

// RowCount returns the number of rows in the version.
func (m *Manifest) RowCount() int {
	n := 0
	for _, f := range m.Fragments {
		n += int(f.Rows)
	}
	return n
}

// Next returns a copy of m prepared as the successor version.
func (m *Manifest) Next() *Manifest {
	next := *m
	next.Version = m.Version + 1
	next.CreatedAt = time.Now().UTC()
	next.Fragments = slices.Clone(m.Fragments)
	next.Columns = slices.Clone(m.Columns)
	next.RestoredFrom = 0
	return &next
}

// AddColumns merges names into the known metadata columns.
func (m *Manifest) AddColumns(names ...string) {
	for _, n := range names {
		if !slices.Contains(m.Columns, n) {
			m.Columns = append(m.Columns, n)
		}
	}
	slices.Sort(m.Columns)
}

// HasFragment reports whether id is part of the version.
func (m *Manifest) HasFragment(id model.FragmentID) bool {
	for _, f := range m.Fragments {
		if f.ID == id {
			return true
		}
	}
	return false
}

// Store manages the manifests and index metadata of one table.
type Store struct {
	store blobstore.BlobStore
	table string
	codec codec.Codec
}

// NewStore creates a manifest store for table.
func NewStore(store blobstore.BlobStore, table string) *Store {
	return &Store{store: store, table: table, codec: codec.Default}
}

// Table returns the table name.
func (s *Store) Table() string { return s.table }

// Path joins name onto the table root.
func (s *Store) Path(name string) string {
	return path.Join(s.table, name)
}

func (s *Store) versionName(v uint64) string {
	return s.Path(fmt.Sprintf("%s/%020d%s", versionsDir, v, manifestExt))
}

// Exists reports whether the table has at least one committed version.
func (s *Store) Exists(ctx context.Context) (bool, error) {
	v, err := s.LatestVersion(ctx)
	if err != nil {
		return false, err
	}
	return v > 0, nil
}

// LatestVersion returns the newest committed version, or 0 if none.
func (s *Store) LatestVersion(ctx context.Context) (uint64, error) {
	if vl, ok := s.store.(blobstore.VersionLog); ok {
		return vl.LatestVersion(ctx, s.table)
	}
	versions, err := s.ListVersions(ctx)
	if err != nil {
		return 0, err
	}
	if len(versions) == 0 {
		return 0, nil
	}
	return versions[len(versions)-1], nil
}

// ListVersions returns all committed versions in ascending order.
func (s *Store) ListVersions(ctx context.Context) ([]uint64, error) {
	names, err := s.store.List(ctx, s.Path(versionsDir)+"/")
	if err != nil {
		return nil, err
	}
	versions := make([]uint64, 0, len(names))
	for _, name := range names {
		base := path.Base(name)
		if !strings.HasSuffix(base, manifestExt) {
			continue
		}
		v, err := strconv.ParseUint(strings.TrimSuffix(base, manifestExt), 10, 64)
		if err != nil {
			continue // Skip foreign files
		}
		versions = append(versions, v)
	}
	slices.Sort(versions)
	return versions, nil
}

// Latest loads the newest manifest.
func (s *Store) Latest(ctx context.Context) (*Manifest, error) {
	v, err := s.LatestVersion(ctx)
	if err != nil {
		return nil, err
	}
	if v == 0 {
		return nil, ErrNotFound
	}
	m, err := s.Load(ctx, v)
	// A log-backed commit records the version before the manifest lands.
	if errors.Is(err, ErrVersionNotFound) && v > 1 {
		return s.Load(ctx, v-1)
	}
	return m, err
}

// Load loads a specific version.
func (s *Store) Load(ctx context.Context, version uint64) (*Manifest, error) {
	data, err := blobstore.ReadAll(ctx, s.store, s.versionName(version))
	if err != nil {
		if errors.Is(err, blobstore.ErrNotFound) {
			return nil, fmt.Errorf("%w: %d", ErrVersionNotFound, version)
		}
		return nil, err
	}

	m := &Manifest{}
	if err := s.codec.Unmarshal(data, m); err != nil {
		return nil, fmt.Errorf("decode manifest %d: %w", version, err)
	}
	if m.FormatVersion != CurrentVersion {
		return nil, fmt.Errorf("%w: %d", ErrIncompatibleVersion, m.FormatVersion)
	}
	return m, nil
}

// Commit atomically publishes m as version m.Version.
func (s *Store) Commit(ctx context.Context, m *Manifest) error {
	if m.Version == 0 {
		return errors.New("manifest version must be positive")
	}
	m.FormatVersion = CurrentVersion

	data, err := s.codec.Marshal(m)
	if err != nil {
		return fmt.Errorf("encode manifest: %w", err)
	}
	name := s.versionName(m.Version)

	if vl, ok := s.store.(blobstore.VersionLog); ok {
		if err := vl.CommitVersion(ctx, s.table, m.Version, name); err != nil {
			if errors.Is(err, blobstore.ErrExists) {
				return fmt.Errorf("%w: version %d", ErrConflict, m.Version)
			}
			return err
		}
		return s.store.Put(ctx, name, data)
	}

	if err := s.store.PutIfAbsent(ctx, name, data); err != nil {
		if errors.Is(err, blobstore.ErrExists) {
			return fmt.Errorf("%w: version %d", ErrConflict, m.Version)
		}
		return err
	}
	return nil
}

// Drop deletes every blob of the table, including its version log.
func (s *Store) Drop(ctx context.Context) error {
	if err := blobstore.DeletePrefix(ctx, s.store, s.table+"/"); err != nil {
		return err
	}
	if vl, ok := s.store.(blobstore.VersionLog); ok {
		return vl.DropVersions(ctx, s.table)
	}
	return nil
}

// ListTables returns the names of all tables that have a committed version.
func ListTables(ctx context.Context, store blobstore.BlobStore) ([]string, error) {
	names, err := store.List(ctx, "")
	if err != nil {
		return nil, err
	}
	seen := make(map[string]struct{})
	var tables []string
	for _, name := range names {
		table, rest, ok := strings.Cut(name, "/")
		if !ok || !strings.HasPrefix(rest, versionsDir+"/") {
			continue
		}
		if _, dup := seen[table]; dup {
			continue
		}
		seen[table] = struct{}{}
		tables = append(tables, table)
	}
	slices.Sort(tables)
	return tables, nil
}

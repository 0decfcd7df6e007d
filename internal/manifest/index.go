package manifest

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/hupe1980/vectable/blobstore"
	"github.com/hupe1980/vectable/distance"
	"github.com/hupe1980/vectable/model"
)

// IndexKind is the type of an index.
type IndexKind string

const (
	IndexKindVector   IndexKind = "ivf_pq"
	IndexKindFullText IndexKind = "fts"
)

// IndexStatus is the build state of an index.
type IndexStatus string

const (
	IndexPending IndexStatus = "pending"
	IndexReady   IndexStatus = "ready"
	IndexFailed  IndexStatus = "failed"
)

// IndexMeta describes an index and its build state.
type IndexMeta struct {
	Name    string          `json:"name"`
	Column  string          `json:"column"`
	Kind    IndexKind       `json:"kind"`
	Metric  distance.Metric `json:"metric"`
	Status  IndexStatus     `json:"status"`
	Error   string          `json:"error,omitempty"`
	BuildID string          `json:"build_id"`
	// Version is the table version the index was built from.
	Version uint64 `json:"version"`
	// Fragments lists the fragments covered by the index.
	Fragments []model.FragmentID `json:"fragments,omitempty"`
	Rows      int                `json:"rows"`
	Payload   string             `json:"payload,omitempty"`

	Partitions int `json:"partitions,omitempty"`
	SubVectors int `json:"sub_vectors,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Covers reports whether the index includes fragment id.
func (m *IndexMeta) Covers(id model.FragmentID) bool {
	for _, f := range m.Fragments {
		if f == id {
			return true
		}
	}
	return false
}

// ErrIndexNotFound is returned when no index metadata exists for a name.
var ErrIndexNotFound = errors.New("index not found")

func (s *Store) indexName(name string) string {
	return s.Path(path.Join(indicesDir, name+indexExt))
}

// PayloadName returns the blob name for an index build's payload.
func (s *Store) PayloadName(name, buildID string) string {
	return s.Path(path.Join(indicesDir, name+"-"+buildID+".idx"))
}

// SaveIndex writes index metadata, replacing any previous state.
func (s *Store) SaveIndex(ctx context.Context, meta *IndexMeta) error {
	meta.UpdatedAt = time.Now().UTC()
	data, err := s.codec.Marshal(meta)
	if err != nil {
		return fmt.Errorf("encode index meta: %w", err)
	}
	return s.store.Put(ctx, s.indexName(meta.Name), data)
}

// LoadIndex reads index metadata by name.
func (s *Store) LoadIndex(ctx context.Context, name string) (*IndexMeta, error) {
	data, err := blobstore.ReadAll(ctx, s.store, s.indexName(name))
	if err != nil {
		if errors.Is(err, blobstore.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrIndexNotFound, name)
		}
		return nil, err
	}
	meta := &IndexMeta{}
	if err := s.codec.Unmarshal(data, meta); err != nil {
		return nil, fmt.Errorf("decode index meta %s: %w", name, err)
	}
	return meta, nil
}

// ListIndexes returns the metadata of every index, sorted by name.
func (s *Store) ListIndexes(ctx context.Context) ([]*IndexMeta, error) {
	names, err := s.store.List(ctx, s.Path(indicesDir)+"/")
	if err != nil {
		return nil, err
	}
	var metas []*IndexMeta
	for _, name := range names {
		base := path.Base(name)
		if !strings.HasSuffix(base, indexExt) {
			continue
		}
		meta, err := s.LoadIndex(ctx, strings.TrimSuffix(base, indexExt))
		if err != nil {
			if errors.Is(err, ErrIndexNotFound) {
				continue // Dropped concurrently
			}
			return nil, err
		}
		metas = append(metas, meta)
	}
	return metas, nil
}

// DeleteIndex removes the metadata of an index. Its payload is left to the caller.
func (s *Store) DeleteIndex(ctx context.Context, name string) error {
	return s.store.Delete(ctx, s.indexName(name))
}

// PutIndexPayload stores the serialized index of a build.
func (s *Store) PutIndexPayload(ctx context.Context, name, buildID string, data []byte) (string, error) {
	blobName := s.PayloadName(name, buildID)
	if err := s.store.Put(ctx, blobName, data); err != nil {
		return "", err
	}
	return blobName, nil
}

// ReadIndexPayload loads a payload written by PutIndexPayload.
func (s *Store) ReadIndexPayload(ctx context.Context, blobName string) ([]byte, error) {
	return blobstore.ReadAll(ctx, s.store, blobName)
}

// DeletePayload removes a payload blob. Missing payloads are ignored.
func (s *Store) DeletePayload(ctx context.Context, blobName string) error {
	if blobName == "" {
		return nil
	}
	return s.store.Delete(ctx, blobName)
}

package ivfpq

import (
	"bytes"
	"context"
	"encoding/gob"
	"errors"
	"fmt"
	"math"
	"slices"

	"github.com/hupe1980/vectable/distance"
	"github.com/hupe1980/vectable/index"
	"github.com/hupe1980/vectable/internal/kmeans"
	"github.com/hupe1980/vectable/model"
	"github.com/hupe1980/vectable/quantization"
)

func init() {
	index.Register(index.KindIVFPQ, func() index.Index { return &Index{} })
}

// Config controls index training.
type Config struct {
	// Partitions is the number of IVF cells. 0 selects sqrt(rows), capped at 256.
	Partitions int
	// SubVectors is the number of PQ subvectors. 0 selects dim/16 (or the
	// nearest smaller divisor of dim).
	SubVectors int
	// Metric is the distance metric of the indexed column.
	Metric distance.Metric
	// MaxIterations bounds k-means. Default: 50.
	MaxIterations int
	// Seed makes training deterministic. Default: 42.
	Seed int64
}

// DefaultPartitions returns the partition count used for rows vectors.
func DefaultPartitions(rows int) int {
	p := int(math.Sqrt(float64(rows)))
	return min(max(p, 1), 256)
}

// DefaultSubVectors returns the largest divisor of dim that is at most dim/16.
func DefaultSubVectors(dim int) int {
	for m := dim / 16; m > 1; m-- {
		if dim%m == 0 {
			return m
		}
	}
	return 1
}

// Index is an immutable IVF-PQ index.
type Index struct {
	dim       int
	metric    distance.Metric
	centroids []float32 // partitions * dim
	pq        *quantization.ProductQuantizer
	addrs     [][]model.RowAddr // per partition
	codes     [][]byte          // per partition, len(addrs[p]) * M
	rows      int
}

// Build trains and populates an index. vectors[i] is stored at addrs[i].
func Build(ctx context.Context, dim int, vectors [][]float32, addrs []model.RowAddr, cfg Config) (*Index, error) {
	if len(vectors) != len(addrs) {
		return nil, fmt.Errorf("ivfpq: %d vectors for %d addresses", len(vectors), len(addrs))
	}
	if len(vectors) == 0 {
		return nil, errors.New("ivfpq: cannot train on an empty column")
	}
	if dim <= 0 {
		return nil, fmt.Errorf("ivfpq: invalid dimension %d", dim)
	}
	if cfg.Partitions == 0 {
		cfg.Partitions = DefaultPartitions(len(vectors))
	}
	if cfg.SubVectors == 0 {
		cfg.SubVectors = DefaultSubVectors(dim)
	}
	if cfg.MaxIterations == 0 {
		cfg.MaxIterations = 50
	}
	if cfg.Seed == 0 {
		cfg.Seed = 42
	}
	if cfg.Partitions < 0 || cfg.SubVectors < 0 {
		return nil, errors.New("ivfpq: partitions and sub vectors must be positive")
	}
	if dim%cfg.SubVectors != 0 {
		return nil, fmt.Errorf("ivfpq: dimension %d is not divisible by %d sub vectors", dim, cfg.SubVectors)
	}

	prepared := make([][]float32, len(vectors))
	flat := make([]float32, 0, len(vectors)*dim)
	for i, v := range vectors {
		if len(v) != dim {
			return nil, &index.ErrDimensionMismatch{Expected: dim, Actual: len(v)}
		}
		prepared[i] = prepare(v, cfg.Metric)
		flat = append(flat, prepared[i]...)
	}

	partitions := min(cfg.Partitions, len(vectors))
	centroids, err := kmeans.TrainKMeans(ctx, flat, dim, partitions, distance.MetricL2, cfg.MaxIterations, cfg.Seed)
	if err != nil {
		return nil, fmt.Errorf("ivfpq: train partitions: %w", err)
	}

	idx := &Index{
		dim:       dim,
		metric:    cfg.Metric,
		centroids: centroids,
		addrs:     make([][]model.RowAddr, partitions),
		codes:     make([][]byte, partitions),
		rows:      len(vectors),
	}

	assignments := make([]int, len(prepared))
	residuals := make([][]float32, len(prepared))
	for i, v := range prepared {
		p, err := kmeans.AssignPartition(v, centroids, dim, distance.MetricL2)
		if err != nil {
			return nil, err
		}
		assignments[i] = p
		residuals[i] = residual(v, idx.centroid(p))
	}

	pq, err := quantization.NewProductQuantizer(dim, cfg.SubVectors, 256)
	if err != nil {
		return nil, fmt.Errorf("ivfpq: %w", err)
	}
	if err := pq.Train(ctx, residuals, cfg.Seed); err != nil {
		return nil, fmt.Errorf("ivfpq: train codebooks: %w", err)
	}
	idx.pq = pq

	for i, r := range residuals {
		code, err := pq.Encode(r)
		if err != nil {
			return nil, err
		}
		p := assignments[i]
		idx.addrs[p] = append(idx.addrs[p], addrs[i])
		idx.codes[p] = append(idx.codes[p], code...)
	}

	return idx, nil
}

// prepare maps a vector into index space.
func prepare(v []float32, metric distance.Metric) []float32 {
	if metric == distance.MetricCosine {
		if n, ok := distance.NormalizeL2Copy(v); ok {
			return n
		}
	}
	return slices.Clone(v)
}

func residual(v, c []float32) []float32 {
	r := make([]float32, len(v))
	for i := range v {
		r[i] = v[i] - c[i]
	}
	return r
}

func (idx *Index) centroid(p int) []float32 {
	return idx.centroids[p*idx.dim : (p+1)*idx.dim]
}

// Kind implements index.Index.
func (idx *Index) Kind() index.Kind { return index.KindIVFPQ }

// Len returns the number of indexed rows.
func (idx *Index) Len() int { return idx.rows }

// Dim returns the vector dimension.
func (idx *Index) Dim() int { return idx.dim }

// Metric returns the metric the index was built for.
func (idx *Index) Metric() distance.Metric { return idx.metric }

// Partitions returns the number of IVF cells.
func (idx *Index) Partitions() int { return len(idx.addrs) }

// SubVectors returns the number of PQ subvectors.
func (idx *Index) SubVectors() int { return idx.pq.NumSubvectors() }

// Search returns up to k rows from the nprobes closest partitions, ranked by
// approximate distance. nprobes <= 0 probes every partition.
func (idx *Index) Search(query []float32, k, nprobes int, filter index.Filter) ([]index.SearchResult, error) {
	if len(query) != idx.dim {
		return nil, &index.ErrDimensionMismatch{Expected: idx.dim, Actual: len(query)}
	}
	if k <= 0 {
		return nil, nil
	}
	if nprobes <= 0 || nprobes > len(idx.addrs) {
		nprobes = len(idx.addrs)
	}

	q := prepare(query, idx.metric)
	probes, err := kmeans.FindClosestCentroids(q, idx.centroids, idx.dim, nprobes, distance.MetricL2)
	if err != nil {
		return nil, err
	}

	m := idx.pq.NumSubvectors()
	top := index.NewTopK(k)
	for _, p := range probes {
		table, err := idx.pq.BuildDistanceTable(residual(q, idx.centroid(p)))
		if err != nil {
			return nil, err
		}
		for i, addr := range idx.addrs[p] {
			if filter != nil && !filter(addr) {
				continue
			}
			top.Push(index.SearchResult{
				Addr:  addr,
				Score: idx.pq.AdcDistance(table, idx.codes[p][i*m:(i+1)*m]),
			})
		}
	}
	return top.Results(), nil
}

type gobIndex struct {
	Dim       int
	Metric    int
	Centroids []float32
	PQ        quantization.State
	Addrs     [][]model.RowAddr
	Codes     [][]byte
	Rows      int
}

// GobEncode implements gob.GobEncoder.
func (idx *Index) GobEncode() ([]byte, error) {
	var buf bytes.Buffer
	err := gob.NewEncoder(&buf).Encode(gobIndex{
		Dim:       idx.dim,
		Metric:    int(idx.metric),
		Centroids: idx.centroids,
		PQ:        idx.pq.State(),
		Addrs:     idx.addrs,
		Codes:     idx.codes,
		Rows:      idx.rows,
	})
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// GobDecode implements gob.GobDecoder.
func (idx *Index) GobDecode(data []byte) error {
	var g gobIndex
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&g); err != nil {
		return err
	}
	pq, err := quantization.FromState(g.PQ)
	if err != nil {
		return err
	}
	if len(g.Addrs) != len(g.Codes) || len(g.Centroids) != len(g.Addrs)*g.Dim {
		return errors.New("ivfpq: inconsistent partitions")
	}

	*idx = Index{
		dim:       g.Dim,
		metric:    distance.Metric(g.Metric),
		centroids: g.Centroids,
		pq:        pq,
		addrs:     g.Addrs,
		codes:     g.Codes,
		rows:      g.Rows,
	}
	return nil
}

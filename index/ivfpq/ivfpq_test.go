package ivfpq

import (
	"context"
	"testing"

	"github.com/hupe1980/vectable/distance"
	"github.com/hupe1980/vectable/index"
	"github.com/hupe1980/vectable/internal/testutil"
	"github.com/hupe1980/vectable/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func randomData(n, dim int, seed int64) ([][]float32, []model.RowAddr) {
	return testutil.NewRNG(seed).UniformVectors(n, dim), testutil.Addrs(1, n)
}

func TestBuildAndSearch(t *testing.T) {
	ctx := context.Background()
	vecs, addrs := randomData(500, 32, 1)

	for _, metric := range []distance.Metric{distance.MetricL2, distance.MetricCosine, distance.MetricDot} {
		t.Run(metric.String(), func(t *testing.T) {
			idx, err := Build(ctx, 32, vecs, addrs, Config{Metric: metric})
			require.NoError(t, err)
			assert.Equal(t, 500, idx.Len())
			assert.Equal(t, DefaultPartitions(500), idx.Partitions())
			assert.Equal(t, 2, idx.SubVectors())

			// Exhaustive probing must rank the query's own row among the best hits.
			hits, err := idx.Search(vecs[42], 10, 0, nil)
			require.NoError(t, err)
			require.Len(t, hits, 10)

			found := false
			for _, h := range hits {
				if h.Addr == addrs[42] {
					found = true
				}
			}
			assert.True(t, found, "query row not among the top hits")

			for i := 1; i < len(hits); i++ {
				assert.LessOrEqual(t, hits[i-1].Score, hits[i].Score)
			}
		})
	}
}

func TestSearchFilter(t *testing.T) {
	vecs, addrs := randomData(100, 8, 2)
	idx, err := Build(context.Background(), 8, vecs, addrs, Config{})
	require.NoError(t, err)

	even := func(a model.RowAddr) bool { return a.Offset()%2 == 0 }
	hits, err := idx.Search(vecs[3], 20, 0, even)
	require.NoError(t, err)
	assert.Len(t, hits, 20)
	for _, h := range hits {
		assert.True(t, even(h.Addr))
	}
}

func TestSmallColumn(t *testing.T) {
	vecs := [][]float32{{1, 0, 0, 0}, {0, 1, 0, 0}, {0, 0, 1, 0}}
	addrs := []model.RowAddr{1, 2, 3}

	idx, err := Build(context.Background(), 4, vecs, addrs, Config{Partitions: 16, Metric: distance.MetricCosine})
	require.NoError(t, err)
	assert.Equal(t, 3, idx.Partitions())

	hits, err := idx.Search([]float32{0, 2, 0, 0}, 1, 1, nil)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, model.RowAddr(2), hits[0].Addr)
}

func TestBuildErrors(t *testing.T) {
	ctx := context.Background()

	_, err := Build(ctx, 4, nil, nil, Config{})
	assert.Error(t, err)

	_, err = Build(ctx, 4, [][]float32{{1, 2, 3, 4}}, nil, Config{})
	assert.Error(t, err)

	_, err = Build(ctx, 4, [][]float32{{1, 2, 3}}, []model.RowAddr{1}, Config{})
	var dimErr *index.ErrDimensionMismatch
	assert.ErrorAs(t, err, &dimErr)

	_, err = Build(ctx, 4, [][]float32{{1, 2, 3, 4}}, []model.RowAddr{1}, Config{SubVectors: 3})
	assert.Error(t, err)
}

func TestSearchDimensionMismatch(t *testing.T) {
	vecs, addrs := randomData(10, 8, 3)
	idx, err := Build(context.Background(), 8, vecs, addrs, Config{})
	require.NoError(t, err)

	_, err = idx.Search([]float32{1}, 1, 1, nil)
	var dimErr *index.ErrDimensionMismatch
	assert.ErrorAs(t, err, &dimErr)
}

func TestMarshalRoundTrip(t *testing.T) {
	vecs, addrs := randomData(200, 16, 4)
	idx, err := Build(context.Background(), 16, vecs, addrs, Config{Metric: distance.MetricCosine})
	require.NoError(t, err)

	data, err := index.Marshal(idx)
	require.NoError(t, err)

	loaded, err := index.Unmarshal(data)
	require.NoError(t, err)
	restored, ok := loaded.(*Index)
	require.True(t, ok)

	assert.Equal(t, idx.Len(), restored.Len())
	assert.Equal(t, distance.MetricCosine, restored.Metric())

	want, err := idx.Search(vecs[7], 5, 4, nil)
	require.NoError(t, err)
	got, err := restored.Search(vecs[7], 5, 4, nil)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	data[len(data)-1] ^= 0xFF
	_, err = index.Unmarshal(data)
	assert.ErrorIs(t, err, index.ErrCorrupt)
}

func TestDefaults(t *testing.T) {
	assert.Equal(t, 24, DefaultSubVectors(384))
	assert.Equal(t, 1, DefaultSubVectors(8))
	assert.Equal(t, 4, DefaultSubVectors(68))
	assert.Equal(t, 1, DefaultPartitions(0))
	assert.Equal(t, 2, DefaultPartitions(5))
	assert.Equal(t, 256, DefaultPartitions(1_000_000))
}

func TestRecallOnClusteredData(t *testing.T) {
	rng := testutil.NewRNG(7)
	vecs := rng.ClusteredVectors(2000, 32, 20, 0.05)
	addrs := testutil.Addrs(1, len(vecs))

	idx, err := Build(context.Background(), 32, vecs, addrs, Config{Metric: distance.MetricL2})
	require.NoError(t, err)

	var total float64
	queries := 0
	for i := 0; i < len(vecs); i += 97 {
		q := vecs[i]
		truth, err := testutil.BruteForceSearch(vecs, addrs, q, 1, distance.MetricL2)
		require.NoError(t, err)
		hits, err := idx.Search(q, 10, idx.Partitions(), nil)
		require.NoError(t, err)
		total += testutil.Recall(truth, hits)
		queries++
	}
	// Probing every partition leaves only quantization error.
	assert.GreaterOrEqual(t, total/float64(queries), 0.5)
}

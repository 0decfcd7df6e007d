package quantization

import (
	"context"
	"math"
	"math/rand"
	"testing"

	"github.com/hupe1980/vectable/distance"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProductQuantizer(t *testing.T) {
	const (
		dimension     = 32
		numVectors    = 300
		numSubvectors = 8
		numCentroids  = 64
	)

	rng := rand.New(rand.NewSource(1))
	pq, err := NewProductQuantizer(dimension, numSubvectors, numCentroids)
	require.NoError(t, err)

	_, err = pq.Encode(make([]float32, dimension))
	require.ErrorIs(t, err, ErrNotTrained)

	training := make([][]float32, numVectors)
	for i := range training {
		training[i] = generateRandomVector(rng, dimension)
	}
	require.NoError(t, pq.Train(context.Background(), training, 42))
	assert.True(t, pq.IsTrained())

	testVec := training[0]
	codes, err := pq.Encode(testVec)
	require.NoError(t, err)
	assert.Len(t, codes, numSubvectors)

	reconstructed, err := pq.Decode(codes)
	require.NoError(t, err)
	require.Len(t, reconstructed, dimension)

	mse := distance.SquaredL2(testVec, reconstructed) / dimension
	assert.Less(t, mse, float32(0.05))

	_, err = pq.Encode(make([]float32, 3))
	assert.ErrorIs(t, err, ErrDimension)
}

func TestProductQuantizer_AdcMatchesDecoded(t *testing.T) {
	rng := rand.New(rand.NewSource(2))
	pq, err := NewProductQuantizer(16, 4, 32)
	require.NoError(t, err)

	training := make([][]float32, 100)
	for i := range training {
		training[i] = generateRandomVector(rng, 16)
	}
	require.NoError(t, pq.Train(context.Background(), training, 7))

	query := generateRandomVector(rng, 16)
	codes, err := pq.Encode(generateRandomVector(rng, 16))
	require.NoError(t, err)

	table, err := pq.BuildDistanceTable(query)
	require.NoError(t, err)
	decoded, err := pq.Decode(codes)
	require.NoError(t, err)

	assert.InDelta(t, distance.SquaredL2(query, decoded), pq.AdcDistance(table, codes), 1e-4)
}

func TestProductQuantizer_FewVectors(t *testing.T) {
	pq, err := NewProductQuantizer(4, 2, 256)
	require.NoError(t, err)

	training := [][]float32{{1, 0, 0, 1}, {0, 1, 1, 0}, {1, 1, 0, 0}}
	require.NoError(t, pq.Train(context.Background(), training, 1))
	assert.Equal(t, 3, pq.NumCentroids())

	for _, v := range training {
		codes, err := pq.Encode(v)
		require.NoError(t, err)
		decoded, err := pq.Decode(codes)
		require.NoError(t, err)
		assert.Equal(t, v, decoded)
	}
}

func TestProductQuantizer_State(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	pq, err := NewProductQuantizer(8, 2, 16)
	require.NoError(t, err)

	training := make([][]float32, 50)
	for i := range training {
		training[i] = generateRandomVector(rng, 8)
	}
	require.NoError(t, pq.Train(context.Background(), training, 3))

	restored, err := FromState(pq.State())
	require.NoError(t, err)

	v := training[5]
	a, err := pq.Encode(v)
	require.NoError(t, err)
	b, err := restored.Encode(v)
	require.NoError(t, err)
	assert.Equal(t, a, b)

	bad := pq.State()
	bad.Codebooks = bad.Codebooks[:1]
	_, err = FromState(bad)
	assert.Error(t, err)
}

func TestProductQuantizerInvalidConfig(t *testing.T) {
	_, err := NewProductQuantizer(100, 7, 256)
	assert.Error(t, err)

	_, err = NewProductQuantizer(128, 8, 300)
	assert.Error(t, err)

	_, err = NewProductQuantizer(128, 0, 256)
	assert.Error(t, err)
}

func generateRandomVector(rng *rand.Rand, dim int) []float32 {
	vec := make([]float32, dim)
	for i := range vec {
		vec[i] = rng.Float32()*2 - 1
	}
	var norm float32
	for _, v := range vec {
		norm += v * v
	}
	norm = float32(math.Sqrt(float64(norm)))
	for i := range vec {
		vec[i] /= norm
	}
	return vec
}

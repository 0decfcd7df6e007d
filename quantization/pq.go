package quantization

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/hupe1980/vectable/distance"
	"github.com/hupe1980/vectable/internal/kmeans"
)

var (
	// ErrNotTrained is returned when encoding with an untrained quantizer.
	ErrNotTrained = errors.New("product quantizer not trained")

	// ErrDimension is returned for vectors of the wrong length.
	ErrDimension = errors.New("vector dimension mismatch")
)

// ProductQuantizer implements Product Quantization (PQ).
// PQ splits vectors into subvectors and quantizes each independently using k-means clustering.
//
// Example: 128-dim vector with M=8 subvectors → 8 uint8 codes = 8 bytes (64x compression vs float32)
type ProductQuantizer struct {
	numSubvectors int         // M: number of subvectors
	numCentroids  int         // K: number of centroids per subspace
	dimension     int         // D: original vector dimension
	subvectorDim  int         // D/M: dimensions per subvector
	codebooks     [][]float32 // M flattened codebooks of K*subvectorDim
	trained       bool
}

// NewProductQuantizer creates a new PQ quantizer.
// Parameters:
//   - dimension: Vector dimensionality (must be divisible by numSubvectors)
//   - numSubvectors: Number of subvectors to split into (M)
//   - numCentroids: Number of centroids per subspace (K, at most 256 for uint8 codes)
func NewProductQuantizer(dimension, numSubvectors, numCentroids int) (*ProductQuantizer, error) {
	if numSubvectors <= 0 || dimension%numSubvectors != 0 {
		return nil, fmt.Errorf("dimension %d must be divisible by numSubvectors %d", dimension, numSubvectors)
	}
	if numCentroids <= 0 || numCentroids > 256 {
		return nil, errors.New("numCentroids must be in [1, 256] for uint8 encoding")
	}

	return &ProductQuantizer{
		numSubvectors: numSubvectors,
		numCentroids:  numCentroids,
		dimension:     dimension,
		subvectorDim:  dimension / numSubvectors,
		codebooks:     make([][]float32, numSubvectors),
	}, nil
}

// Train learns one codebook per subspace with k-means.
// If there are fewer training vectors than centroids, K is reduced to the
// number of vectors.
func (pq *ProductQuantizer) Train(ctx context.Context, vectors [][]float32, seed int64) error {
	if len(vectors) == 0 {
		return errors.New("no vectors provided for training")
	}
	for _, v := range vectors {
		if len(v) != pq.dimension {
			return fmt.Errorf("%w: expected %d, got %d", ErrDimension, pq.dimension, len(v))
		}
	}

	k := min(pq.numCentroids, len(vectors))
	sub := make([]float32, len(vectors)*pq.subvectorDim)

	for m := 0; m < pq.numSubvectors; m++ {
		start := m * pq.subvectorDim
		for i, vec := range vectors {
			copy(sub[i*pq.subvectorDim:], vec[start:start+pq.subvectorDim])
		}

		centroids, err := kmeans.TrainKMeans(ctx, sub, pq.subvectorDim, k, distance.MetricL2, 20, seed+int64(m))
		if err != nil {
			return fmt.Errorf("train subspace %d: %w", m, err)
		}
		pq.codebooks[m] = centroids
	}

	pq.numCentroids = k
	pq.trained = true
	return nil
}

// Encode quantizes a vector into PQ codes.
// Returns M uint8 codes (one per subvector).
func (pq *ProductQuantizer) Encode(vec []float32) ([]byte, error) {
	if !pq.trained {
		return nil, ErrNotTrained
	}
	if len(vec) != pq.dimension {
		return nil, fmt.Errorf("%w: expected %d, got %d", ErrDimension, pq.dimension, len(vec))
	}

	codes := make([]byte, pq.numSubvectors)
	for m := 0; m < pq.numSubvectors; m++ {
		start := m * pq.subvectorDim
		codes[m] = uint8(pq.findNearestCentroid(vec[start:start+pq.subvectorDim], pq.codebooks[m]))
	}
	return codes, nil
}

// Decode reconstructs an approximate vector from PQ codes.
func (pq *ProductQuantizer) Decode(codes []byte) ([]float32, error) {
	if !pq.trained {
		return nil, ErrNotTrained
	}
	if len(codes) != pq.numSubvectors {
		return nil, fmt.Errorf("invalid code length %d", len(codes))
	}

	reconstructed := make([]float32, pq.dimension)
	for m := 0; m < pq.numSubvectors; m++ {
		c := int(codes[m])
		copy(reconstructed[m*pq.subvectorDim:], pq.codebooks[m][c*pq.subvectorDim:(c+1)*pq.subvectorDim])
	}
	return reconstructed, nil
}

// BuildDistanceTable precomputes distances from a query to all centroids.
// Returns a flattened table of size M * K where table[m*K + k] is the squared distance
// from query subvector m to centroid k.
func (pq *ProductQuantizer) BuildDistanceTable(query []float32) ([]float32, error) {
	if !pq.trained {
		return nil, ErrNotTrained
	}
	if len(query) != pq.dimension {
		return nil, fmt.Errorf("%w: expected %d, got %d", ErrDimension, pq.dimension, len(query))
	}

	table := make([]float32, pq.numSubvectors*pq.numCentroids)
	for m := 0; m < pq.numSubvectors; m++ {
		q := query[m*pq.subvectorDim : (m+1)*pq.subvectorDim]
		book := pq.codebooks[m]
		for k := 0; k < pq.numCentroids; k++ {
			table[m*pq.numCentroids+k] = distance.SquaredL2(q, book[k*pq.subvectorDim:(k+1)*pq.subvectorDim])
		}
	}
	return table, nil
}

// AdcDistance computes the approximate squared L2 distance between a query
// (represented by its distance table) and a quantized vector.
func (pq *ProductQuantizer) AdcDistance(table []float32, codes []byte) float32 {
	var d float32
	for m, c := range codes {
		d += table[m*pq.numCentroids+int(c)]
	}
	return d
}

func (pq *ProductQuantizer) findNearestCentroid(vec []float32, book []float32) int {
	minDist := float32(math.MaxFloat32)
	nearestIdx := 0
	for i := 0; i < pq.numCentroids; i++ {
		d := distance.SquaredL2(vec, book[i*pq.subvectorDim:(i+1)*pq.subvectorDim])
		if d < minDist {
			minDist = d
			nearestIdx = i
		}
	}
	return nearestIdx
}

// BytesPerVector returns the compressed size per vector in bytes.
func (pq *ProductQuantizer) BytesPerVector() int {
	return pq.numSubvectors
}

// NumSubvectors returns the number of subvectors (M).
func (pq *ProductQuantizer) NumSubvectors() int {
	return pq.numSubvectors
}

// NumCentroids returns the number of centroids per subspace (K).
func (pq *ProductQuantizer) NumCentroids() int {
	return pq.numCentroids
}

// IsTrained returns whether the quantizer has been trained.
func (pq *ProductQuantizer) IsTrained() bool {
	return pq.trained
}

// State is the serializable form of a trained quantizer.
type State struct {
	Dimension     int
	NumSubvectors int
	NumCentroids  int
	Codebooks     [][]float32
}

// State exports the trained codebooks.
func (pq *ProductQuantizer) State() State {
	return State{
		Dimension:     pq.dimension,
		NumSubvectors: pq.numSubvectors,
		NumCentroids:  pq.numCentroids,
		Codebooks:     pq.codebooks,
	}
}

// FromState restores a quantizer exported with State.
func FromState(s State) (*ProductQuantizer, error) {
	pq, err := NewProductQuantizer(s.Dimension, s.NumSubvectors, max(s.NumCentroids, 1))
	if err != nil {
		return nil, err
	}
	if len(s.Codebooks) != s.NumSubvectors {
		return nil, fmt.Errorf("expected %d codebooks, got %d", s.NumSubvectors, len(s.Codebooks))
	}
	for m, book := range s.Codebooks {
		if len(book) != s.NumCentroids*pq.subvectorDim {
			return nil, fmt.Errorf("codebook %d has %d values, want %d", m, len(book), s.NumCentroids*pq.subvectorDim)
		}
	}
	pq.codebooks = s.Codebooks
	pq.trained = true
	return pq, nil
}

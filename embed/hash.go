package embed

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/hupe1980/vectable/distance"
	"github.com/hupe1980/vectable/internal/hash"
	"github.com/hupe1980/vectable/lexical"
)

// DefaultHashDimension is the output size of the hash embedder.
const DefaultHashDimension = 384

// Hash is a local embedder based on feature hashing. Each token contributes
// its word feature and its character trigrams, hashed into a signed bucket.
// Texts sharing words or word fragments end up close to each other.
type Hash struct {
	dim       int
	pooling   Pooling
	normalize bool
	closed    atomic.Bool
}

var _ Embedder = (*Hash)(nil)

// NewHash creates a hash embedder: 384 dimensions, mean pooling, normalized.
func NewHash(opts ...Option) *Hash {
	cfg := config{
		dim:       DefaultHashDimension,
		pooling:   PoolingMean,
		normalize: true,
	}
	for _, o := range opts {
		o(&cfg)
	}
	if cfg.dim <= 0 {
		cfg.dim = DefaultHashDimension
	}
	if cfg.pooling == "" {
		cfg.pooling = PoolingMean
	}
	return &Hash{dim: cfg.dim, pooling: cfg.pooling, normalize: cfg.normalize}
}

// Embed implements Embedder.
func (h *Hash) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if h.closed.Load() {
		return nil, ErrClosed
	}
	if len(texts) == 0 {
		return nil, ErrEmptyInput
	}
	if err := ctx.Err(); err != nil {
		return nil, &Error{Start: 0, End: len(texts), Err: err}
	}

	out := make([][]float32, len(texts))
	for i, text := range texts {
		out[i] = h.embedOne(text)
	}
	return out, nil
}

func (h *Hash) embedOne(text string) []float32 {
	vec := make([]float32, h.dim)
	tokens := lexical.Tokenize(text)
	if len(tokens) == 0 {
		return vec
	}
	if h.pooling == PoolingCLS {
		tokens = tokens[:1]
	}

	for _, tok := range tokens {
		h.addFeature(vec, "w:"+tok, 1)
		padded := []rune("#" + tok + "#")
		for i := 0; i+3 <= len(padded); i++ {
			h.addFeature(vec, "c:"+string(padded[i:i+3]), 0.5)
		}
	}

	scale := 1 / float32(len(tokens))
	for i := range vec {
		vec[i] *= scale
	}
	if h.normalize {
		distance.NormalizeL2InPlace(vec)
	}
	return vec
}

func (h *Hash) addFeature(vec []float32, feature string, weight float32) {
	idx, sign := hash.Bucket(feature, h.dim)
	vec[idx] += sign * weight
}

// Dimension implements Embedder.
func (h *Hash) Dimension() int { return h.dim }

// Name implements Embedder.
func (h *Hash) Name() string {
	return fmt.Sprintf("hash-%d-%s-%t", h.dim, h.pooling, h.normalize)
}

// Close implements Embedder.
func (h *Hash) Close() error {
	h.closed.Store(true)
	return nil
}

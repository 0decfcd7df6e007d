// Package embed provides a text embedding interface and its implementations.
//
// An Embedder converts text into dense vector representations (embeddings)
// suitable for semantic search.
//
// # Implementations
//
//   - [Hash] - local, deterministic feature hashing (offline default)
//   - [OpenAI] - OpenAI or any OpenAI-compatible embeddings endpoint
//   - [Cached] - read-through cache in front of another embedder, backed
//     by [LRUCache] or [RedisCache]
//
// # Quick Start
//
//	e := embed.NewHash()
//	defer e.Close()
//	vecs, err := e.Embed(ctx, []string{"hello", "world"})
package embed

import (
	"context"
	"errors"
	"fmt"
)

// Embedder converts text into dense float32 vectors.
type Embedder interface {
	// Embed returns one vector per text, in input order. If any item fails
	// the whole batch fails.
	Embed(ctx context.Context, texts []string) ([][]float32, error)

	// Dimension returns the dimensionality of the output vectors.
	Dimension() int

	// Name identifies the model. Equal names imply equal vectors.
	Name() string

	// Close releases the embedder. Embed fails with ErrClosed afterwards.
	Close() error
}

// Common errors.
var (
	// ErrEmptyInput is returned when there is nothing to embed.
	ErrEmptyInput = errors.New("embed: empty input")

	// ErrClosed is returned when using a closed embedder.
	ErrClosed = errors.New("embed: embedder is closed")
)

// Error reports a failed batch.
type Error struct {
	// Start and End delimit the failed batch in the caller's input.
	Start, End int
	Err        error
}

func (e *Error) Error() string {
	return fmt.Sprintf("embed batch [%d:%d]: %v", e.Start, e.End, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Pooling selects how token features are combined into one vector.
type Pooling string

const (
	// PoolingMean averages all token vectors.
	PoolingMean Pooling = "mean"
	// PoolingCLS uses the vector of the first token.
	PoolingCLS Pooling = "cls"
)

// ParsePooling parses "mean" or "cls".
func ParsePooling(s string) (Pooling, error) {
	switch Pooling(s) {
	case PoolingMean, PoolingCLS:
		return Pooling(s), nil
	case "":
		return PoolingMean, nil
	default:
		return "", fmt.Errorf("embed: unknown pooling %q", s)
	}
}

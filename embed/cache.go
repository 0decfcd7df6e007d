package embed

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"slices"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/hupe1980/vectable/internal/cache"
	"github.com/hupe1980/vectable/internal/hash"
	"github.com/redis/go-redis/v9"
)

// Cache stores embeddings by key.
type Cache interface {
	// GetMany returns one entry per key; misses are nil.
	GetMany(ctx context.Context, keys []string) ([][]float32, error)
	// SetMany stores vecs[i] under keys[i].
	SetMany(ctx context.Context, keys []string, vecs [][]float32) error
}

// Cached is a read-through cache in front of another embedder.
type Cached struct {
	inner  Embedder
	cache  Cache
	closed atomic.Bool
}

var _ Embedder = (*Cached)(nil)

// NewCached wraps inner with cache. Closing the result closes inner.
func NewCached(inner Embedder, cache Cache) *Cached {
	return &Cached{inner: inner, cache: cache}
}

// Embed implements Embedder. Only cache misses reach the inner embedder.
func (c *Cached) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if c.closed.Load() {
		return nil, ErrClosed
	}
	if len(texts) == 0 {
		return nil, ErrEmptyInput
	}

	keys := make([]string, len(texts))
	for i, t := range texts {
		keys[i] = c.key(t)
	}

	out, err := c.cache.GetMany(ctx, keys)
	if err != nil || len(out) != len(texts) {
		// A broken cache degrades to a pass-through.
		out = make([][]float32, len(texts))
	}

	var missIdx []int
	var missTexts []string
	for i, v := range out {
		if v == nil || len(v) != c.inner.Dimension() {
			out[i] = nil
			missIdx = append(missIdx, i)
			missTexts = append(missTexts, texts[i])
		}
	}
	if len(missIdx) == 0 {
		return out, nil
	}

	vecs, err := c.inner.Embed(ctx, missTexts)
	if err != nil {
		return nil, err
	}
	missKeys := make([]string, len(missIdx))
	for j, i := range missIdx {
		out[i] = vecs[j]
		missKeys[j] = keys[i]
	}
	_ = c.cache.SetMany(ctx, missKeys, vecs)
	return out, nil
}

func (c *Cached) key(text string) string {
	return strconv.FormatUint(hash.Sum64(c.inner.Name()+"\x00"+text), 16)
}

// Dimension implements Embedder.
func (c *Cached) Dimension() int { return c.inner.Dimension() }

// Name implements Embedder.
func (c *Cached) Name() string { return c.inner.Name() }

// Close implements Embedder.
func (c *Cached) Close() error {
	if c.closed.Swap(true) {
		return nil
	}
	return c.inner.Close()
}

// LRUCache is an in-process embedding cache.
type LRUCache struct {
	lru *cache.LRU[string, []float32]
}

// NewLRUCache creates a cache holding up to size embeddings.
func NewLRUCache(size int) *LRUCache {
	return &LRUCache{lru: cache.NewLRU[string, []float32](int64(size))}
}

// GetMany implements Cache.
func (c *LRUCache) GetMany(_ context.Context, keys []string) ([][]float32, error) {
	out := make([][]float32, len(keys))
	for i, k := range keys {
		if v, ok := c.lru.Get(k); ok {
			out[i] = slices.Clone(v)
		}
	}
	return out, nil
}

// SetMany implements Cache.
func (c *LRUCache) SetMany(_ context.Context, keys []string, vecs [][]float32) error {
	if len(keys) != len(vecs) {
		return fmt.Errorf("embed: %d keys for %d vectors", len(keys), len(vecs))
	}
	for i, k := range keys {
		c.lru.Set(k, slices.Clone(vecs[i]))
	}
	return nil
}

// Stats returns the cache hit and miss counters.
func (c *LRUCache) Stats() (hits, misses int64) {
	return c.lru.Stats()
}

// RedisClient is the subset of go-redis commands used by RedisCache.
// *redis.Client, *redis.ClusterClient and redis.UniversalClient satisfy it.
type RedisClient interface {
	MGet(ctx context.Context, keys ...string) *redis.SliceCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
}

const defaultRedisPrefix = "vectable:emb:"

// RedisCache stores embeddings in Redis as little-endian float32 strings.
type RedisCache struct {
	client RedisClient
	prefix string
	ttl    time.Duration
}

// NewRedisCache creates a Redis-backed cache. A zero ttl never expires.
func NewRedisCache(client RedisClient, ttl time.Duration) *RedisCache {
	return &RedisCache{client: client, prefix: defaultRedisPrefix, ttl: ttl}
}

// GetMany implements Cache.
func (c *RedisCache) GetMany(ctx context.Context, keys []string) ([][]float32, error) {
	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = c.prefix + k
	}
	vals, err := c.client.MGet(ctx, full...).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, err
	}

	out := make([][]float32, len(keys))
	for i, v := range vals {
		if i >= len(out) {
			break
		}
		s, ok := v.(string)
		if !ok {
			continue
		}
		out[i] = decodeVector([]byte(s))
	}
	return out, nil
}

// SetMany implements Cache.
func (c *RedisCache) SetMany(ctx context.Context, keys []string, vecs [][]float32) error {
	if len(keys) != len(vecs) {
		return fmt.Errorf("embed: %d keys for %d vectors", len(keys), len(vecs))
	}
	for i, k := range keys {
		if err := c.client.Set(ctx, c.prefix+k, encodeVector(vecs[i]), c.ttl).Err(); err != nil {
			return err
		}
	}
	return nil
}

func encodeVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(f))
	}
	return buf
}

func decodeVector(buf []byte) []float32 {
	if len(buf) == 0 || len(buf)%4 != 0 {
		return nil
	}
	v := make([]float32, len(buf)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[4*i:]))
	}
	return v
}

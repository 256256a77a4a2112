// Package embcache decorates an EmbeddingProvider with a Redis/Valkey cache.
// Chunk content hashes rarely change between ingestion runs, so re-ingesting
// an unchanged corpus costs zero embedding tokens when the cache is warm.
package embcache

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/redis/rueidis"

	sage "github.com/vheim/sage"
)

const keyPrefix = "sage:emb:"

// DefaultTTL keeps cached vectors for a week; a stale vector for unchanged
// text is still correct, the TTL only bounds storage.
const DefaultTTL = 7 * 24 * time.Hour

// Cache is the minimal key-value surface the decorator needs. RedisCache is
// the production implementation.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// Option configures a CachedEmbedding.
type Option func(*CachedEmbedding)

// WithTTL sets the cache entry lifetime.
func WithTTL(ttl time.Duration) Option {
	return func(c *CachedEmbedding) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// WithLogger sets the logger for cache faults. The default discards.
func WithLogger(logger *slog.Logger) Option {
	return func(c *CachedEmbedding) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// CachedEmbedding caches inner's vectors keyed by a hash of model and text.
// Cache faults degrade to the inner provider with a warning; the cache can
// never fail an ingestion run.
type CachedEmbedding struct {
	inner  sage.EmbeddingProvider
	cache  Cache
	ttl    time.Duration
	logger *slog.Logger
}

// New creates a caching decorator around inner.
func New(inner sage.EmbeddingProvider, cache Cache, opts ...Option) *CachedEmbedding {
	c := &CachedEmbedding{
		inner:  inner,
		cache:  cache,
		ttl:    DefaultTTL,
		logger: sage.NopLogger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

var _ sage.EmbeddingProvider = (*CachedEmbedding)(nil)

// Name returns the inner provider's name.
func (c *CachedEmbedding) Name() string { return c.inner.Name() }

// Dimensions returns the inner provider's dimensionality.
func (c *CachedEmbedding) Dimensions() int { return c.inner.Dimensions() }

// Embed serves hits from the cache and embeds only the misses, preserving
// input order. One inner call covers all misses in a batch.
func (c *CachedEmbedding) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	var missTexts []string
	var missIdx []int

	for i, text := range texts {
		key := c.cacheKey(text)
		data, ok, err := c.cache.Get(ctx, key)
		if err != nil {
			c.logger.Warn("embedding cache get failed", "error", err)
		}
		if ok && err == nil {
			if vec, err := bytesToVector(data); err == nil {
				out[i] = vec
				continue
			}
			c.logger.Warn("corrupt cached embedding, re-embedding", "key", key)
		}
		missTexts = append(missTexts, text)
		missIdx = append(missIdx, i)
	}

	if len(missTexts) == 0 {
		return out, nil
	}

	vecs, err := c.inner.Embed(ctx, missTexts)
	if err != nil {
		return nil, err
	}
	if len(vecs) != len(missTexts) {
		return nil, &sage.ErrLLM{Provider: c.inner.Name(), Message: "embedding count does not match input count"}
	}

	for i, vec := range vecs {
		out[missIdx[i]] = vec
		key := c.cacheKey(missTexts[i])
		if err := c.cache.Set(ctx, key, vectorToBytes(vec), c.ttl); err != nil {
			c.logger.Warn("embedding cache set failed", "error", err)
		}
	}
	return out, nil
}

// cacheKey hashes model name and text together so switching models never
// serves vectors from the wrong space.
func (c *CachedEmbedding) cacheKey(text string) string {
	h := sha256.Sum256([]byte(c.inner.Name() + "\x00" + text))
	return keyPrefix + hex.EncodeToString(h[:])
}

// vectorToBytes encodes a vector as little-endian float32s.
func vectorToBytes(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func bytesToVector(data []byte) ([]float32, error) {
	if len(data) == 0 || len(data)%4 != 0 {
		return nil, fmt.Errorf("embedding blob length %d not a multiple of 4", len(data))
	}
	v := make([]float32, len(data)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return v, nil
}

// RedisCache implements Cache on a rueidis client.
type RedisCache struct {
	client rueidis.Client
}

// NewRedisCache connects to a Redis/Valkey instance.
func NewRedisCache(addr string) (*RedisCache, error) {
	client, err := rueidis.NewClient(rueidis.ClientOption{
		InitAddress:  []string{addr},
		DisableCache: true,
	})
	if err != nil {
		return nil, fmt.Errorf("embcache: create client: %w", err)
	}
	return &RedisCache{client: client}, nil
}

// Get retrieves a value by key. A missing key is (nil, false, nil).
func (r *RedisCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	cmd := r.client.B().Get().Key(key).Build()
	data, err := r.client.Do(ctx, cmd).AsBytes()
	if err != nil {
		if rueidis.IsRedisNil(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return data, true, nil
}

// Set stores a value with an expiration.
func (r *RedisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	cmd := r.client.B().Set().Key(key).Value(rueidis.BinaryString(value)).Ex(ttl).Build()
	return r.client.Do(ctx, cmd).Error()
}

// Close releases the client.
func (r *RedisCache) Close() { r.client.Close() }

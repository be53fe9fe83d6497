package embedder

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/soundprediction/go-graphrag/pkg/cache"
)

// CachedEmbedder stores vectors in a cache so repeated runs over the same
// entity names embed each name once.
type CachedEmbedder struct {
	next   Client
	store  cache.Cache
	model  string
	ttl    time.Duration
	logger *slog.Logger
}

// NewCachedEmbedder wraps next. model is part of every key.
func NewCachedEmbedder(next Client, store cache.Cache, model string, ttl time.Duration, logger *slog.Logger) *CachedEmbedder {
	if logger == nil {
		logger = slog.Default()
	}
	return &CachedEmbedder{next: next, store: store, model: model, ttl: ttl, logger: logger}
}

// CachePrefix namespaces embeddings in a shared cache.
const CachePrefix = "emb:"

func (c *CachedEmbedder) key(text string) string {
	sum := sha256.Sum256([]byte(c.model + "\x00" + text))
	return CachePrefix + hex.EncodeToString(sum[:])
}

// Embed returns cached vectors and embeds only the misses, in one call.
func (c *CachedEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	var missIdx []int
	var missTexts []string

	for i, text := range texts {
		raw, err := c.store.Get(c.key(text))
		if err == nil {
			if v, ok := decodeVector(raw); ok {
				out[i] = v
				continue
			}
		} else if !errors.Is(err, cache.ErrKeyNotFound) {
			c.logger.Warn("embedding cache read failed", "error", err)
		}
		missIdx = append(missIdx, i)
		missTexts = append(missTexts, text)
	}
	if len(missTexts) == 0 {
		return out, nil
	}

	fresh, err := c.next.Embed(ctx, missTexts)
	if err != nil {
		return nil, err
	}
	if len(fresh) != len(missTexts) {
		return nil, fmt.Errorf("embedder returned %d vectors for %d inputs", len(fresh), len(missTexts))
	}
	for j, i := range missIdx {
		out[i] = fresh[j]
		if err := c.store.Set(c.key(missTexts[j]), encodeVector(fresh[j]), c.ttl); err != nil {
			c.logger.Warn("embedding cache write failed", "error", err)
		}
	}
	return out, nil
}

// EmbedSingle implements Client.
func (c *CachedEmbedder) EmbedSingle(ctx context.Context, text string) ([]float32, error) {
	vs, err := c.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vs[0], nil
}

// Dimensions implements Client.
func (c *CachedEmbedder) Dimensions() int {
	return c.next.Dimensions()
}

// Close closes the wrapped client. The cache is owned by the caller.
func (c *CachedEmbedder) Close() error {
	return c.next.Close()
}

func encodeVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, x := range v {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(x))
	}
	return buf
}

func decodeVector(buf []byte) ([]float32, bool) {
	if len(buf)%4 != 0 {
		return nil, false
	}
	v := make([]float32, len(buf)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[4*i:]))
	}
	return v, true
}

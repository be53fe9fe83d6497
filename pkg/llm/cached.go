package llm

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"log/slog"
	"time"

	"github.com/soundprediction/go-graphrag/pkg/cache"
)

// CachedGenerator serves repeated prompts from a cache. Entries are keyed by
// model and prompt, so re-running a pipeline over the same input does not
// hit the service again. Errors and empty completions are not cached.
type CachedGenerator struct {
	next   Generator
	store  cache.Cache
	model  string
	ttl    time.Duration
	logger *slog.Logger
}

// NewCachedGenerator wraps next. model is part of every key and should name
// the model next sends requests to.
func NewCachedGenerator(next Generator, store cache.Cache, model string, ttl time.Duration, logger *slog.Logger) *CachedGenerator {
	if logger == nil {
		logger = slog.Default()
	}
	return &CachedGenerator{next: next, store: store, model: model, ttl: ttl, logger: logger}
}

// CachePrefix namespaces generation responses in a shared cache.
const CachePrefix = "llm:"

// CacheKey returns the cache key of a prompt for a model.
func CacheKey(model, prompt string) string {
	sum := sha256.Sum256([]byte(model + "\x00" + prompt))
	return CachePrefix + hex.EncodeToString(sum[:])
}

// Generate implements Generator.
func (g *CachedGenerator) Generate(ctx context.Context, prompt string, opts ...Option) (string, error) {
	key := CacheKey(g.model, prompt)

	if val, err := g.store.Get(key); err == nil {
		return string(val), nil
	} else if !errors.Is(err, cache.ErrKeyNotFound) {
		g.logger.Warn("generation cache read failed", "error", err)
	}

	out, err := g.next.Generate(ctx, prompt, opts...)
	if err != nil {
		return "", err
	}
	if out == "" {
		return "", ErrEmptyResponse
	}

	if err := g.store.Set(key, []byte(out), g.ttl); err != nil {
		g.logger.Warn("generation cache write failed", "error", err)
	}
	return out, nil
}

package reference

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"medassess/internal/domain"
	"medassess/internal/ports"
)

const (
	typesKey    = "medassess:reference:document_types"
	articlesKey = "medassess:reference:articles"
)

// Cached is a read-through redis decorator over a ReferenceProvider. The
// catalogs are read-only, so plain TTL invalidation is enough; every cache
// failure falls back to the wrapped provider, correctness never depends on
// the cache.
type Cached struct {
	next   ports.ReferenceProvider
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

var _ ports.ReferenceProvider = (*Cached)(nil)

// NewCached wraps a provider with a redis cache.
func NewCached(next ports.ReferenceProvider, client *redis.Client, ttl time.Duration, logger *slog.Logger) *Cached {
	return &Cached{next: next, client: client, ttl: ttl, logger: logger}
}

// DocumentTypes reads the type catalog through the cache.
func (c *Cached) DocumentTypes(ctx context.Context) ([]domain.DocumentType, error) {
	var types []domain.DocumentType
	if c.lookup(ctx, typesKey, &types) {
		return types, nil
	}

	types, err := c.next.DocumentTypes(ctx)
	if err != nil {
		return nil, err
	}
	c.store(ctx, typesKey, types)
	return types, nil
}

// Articles reads the statutory article catalog through the cache.
func (c *Cached) Articles(ctx context.Context) ([]domain.Article, error) {
	var articles []domain.Article
	if c.lookup(ctx, articlesKey, &articles) {
		return articles, nil
	}

	articles, err := c.next.Articles(ctx)
	if err != nil {
		return nil, err
	}
	c.store(ctx, articlesKey, articles)
	return articles, nil
}

func (c *Cached) lookup(ctx context.Context, key string, v any) bool {
	if c.client == nil {
		return false
	}
	raw, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.warn("cache read failed", "key", key, "error", err)
		}
		return false
	}
	if err := json.Unmarshal(raw, v); err != nil {
		c.warn("cache entry malformed", "key", key, "error", err)
		return false
	}
	return true
}

func (c *Cached) store(ctx context.Context, key string, v any) {
	if c.client == nil {
		return
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, key, raw, c.ttl).Err(); err != nil {
		c.warn("cache write failed", "key", key, "error", err)
	}
}

func (c *Cached) warn(msg string, args ...any) {
	if c.logger != nil {
		c.logger.Warn(msg, args...)
	}
}

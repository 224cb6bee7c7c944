package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/strikerzone/checkout/internal/domain"
)

// ProductSource is what the cache decorates.
type ProductSource interface {
	GetProduct(ctx context.Context, id string) (*domain.Product, error)
}

// CachedRepository is a read-through redis cache in front of the products
// table. The TTL is short: cached prices feed the order-time snapshot, while
// the authoritative stock check always happens in the transaction.
type CachedRepository struct {
	source ProductSource
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

func NewCachedRepository(source ProductSource, client *redis.Client, ttl time.Duration, logger *slog.Logger) *CachedRepository {
	return &CachedRepository{
		source: source,
		client: client,
		ttl:    ttl,
		logger: logger,
	}
}

func (c *CachedRepository) key(id string) string {
	return fmt.Sprintf("checkout:product:%s", id)
}

func (c *CachedRepository) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	cached, err := c.client.Get(ctx, c.key(id)).Result()
	if err == nil {
		p := &domain.Product{}
		if err := json.Unmarshal([]byte(cached), p); err == nil {
			return p, nil
		}
	} else if !errors.Is(err, redis.Nil) {
		c.logger.Warn("product cache read failed", "error", err, "product_id", id)
	}

	p, err := c.source.GetProduct(ctx, id)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(p); err == nil {
		if err := c.client.Set(ctx, c.key(id), data, c.ttl).Err(); err != nil {
			c.logger.Warn("product cache write failed", "error", err, "product_id", id)
		}
	}

	return p, nil
}

package store

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mrcode/glucocopilot/internal/models"
)

// CachedRepository wraps a Repository with a redis fast-path in front of the idempotency-key
// lookup, which is the one query on the dispatcher's hot path. All other methods pass through
// unchanged to the underlying repository.
type CachedRepository struct {
	Repository
	redis *redis.Client
	ttl   time.Duration
}

// NewCachedRepository wraps repo with a redis client at addr. If addr is empty, caching is a
// no-op and every call falls straight through to repo.
func NewCachedRepository(repo Repository, addr string) *CachedRepository {
	c := &CachedRepository{Repository: repo, ttl: 10 * time.Minute}
	if addr != "" {
		c.redis = redis.NewClient(&redis.Options{Addr: addr})
	}
	return c
}

func (c *CachedRepository) FindActionByIdempotencyKey(ctx context.Context, key string) (models.ActionCommand, bool, error) {
	if c.redis != nil {
		if val, err := c.redis.Get(ctx, "idemp:"+key).Result(); err == nil && val == "sent" {
			return models.ActionCommand{IdempotencyKey: key, Status: models.ActionSent}, true, nil
		}
	}
	return c.Repository.FindActionByIdempotencyKey(ctx, key)
}

func (c *CachedRepository) SaveAction(ctx context.Context, cmd models.ActionCommand) error {
	if err := c.Repository.SaveAction(ctx, cmd); err != nil {
		return err
	}
	if c.redis != nil && cmd.Status == models.ActionSent {
		c.redis.Set(ctx, "idemp:"+cmd.IdempotencyKey, "sent", c.ttl)
	}
	return nil
}

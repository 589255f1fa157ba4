package cache

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	availabilityKeyPrefix = "part:availability:"
	availabilityTTL       = 5 * time.Minute
)

// PartAvailability is an advisory read cache for part stock levels. The
// Postgres ledger stays authoritative; the engine invalidates entries after
// every committed reconciliation and readers fall through on a miss.
type PartAvailability struct {
	client *redis.Client
}

func New(client *redis.Client) *PartAvailability {
	return &PartAvailability{client: client}
}

func availabilityKey(partID int64) string {
	return availabilityKeyPrefix + strconv.FormatInt(partID, 10)
}

func (c *PartAvailability) Get(ctx context.Context, partID int64) (int, bool, error) {
	val, err := c.client.Get(ctx, availabilityKey(partID)).Int()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, false, nil
		}
		return 0, false, err
	}
	return val, true, nil
}

func (c *PartAvailability) Set(ctx context.Context, partID int64, available int) error {
	return c.client.Set(ctx, availabilityKey(partID), available, availabilityTTL).Err()
}

func (c *PartAvailability) Invalidate(ctx context.Context, partIDs ...int64) error {
	if len(partIDs) == 0 {
		return nil
	}
	keys := make([]string, 0, len(partIDs))
	for _, id := range partIDs {
		keys = append(keys, availabilityKey(id))
	}
	return c.client.Del(ctx, keys...).Err()
}

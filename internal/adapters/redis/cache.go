package redis

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/redis/go-redis/v9"

	"github.com/robertarktes/seatcheckout/internal/domain"
)

// Cache holds short-lived seat layout snapshots so a burst of buyers opening
// the same event does not hit the backend once per buyer.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewCache(client *redis.Client, ttl time.Duration) *Cache {
	return &Cache{client: client, ttl: ttl}
}

func (c *Cache) Client() *redis.Client {
	return c.client
}

func layoutKey(eventID int64) string {
	return "layout:" + strconv.FormatInt(eventID, 10)
}

// GetLayout reports false on a miss.
func (c *Cache) GetLayout(ctx context.Context, eventID int64) (domain.SeatLayout, bool, error) {
	var layout domain.SeatLayout
	val, err := c.client.Get(ctx, layoutKey(eventID)).Bytes()
	if err == redis.Nil {
		return layout, false, nil
	}
	if err != nil {
		return layout, false, errors.Wrap(err, "get cached layout")
	}
	if err := json.Unmarshal(val, &layout); err != nil {
		return layout, false, errors.Wrap(err, "decode cached layout")
	}
	return layout, true, nil
}

func (c *Cache) SetLayout(ctx context.Context, eventID int64, layout domain.SeatLayout) error {
	data, err := json.Marshal(layout)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, layoutKey(eventID), data, c.ttl).Err()
}

func (c *Cache) InvalidateLayout(ctx context.Context, eventID int64) error {
	return c.client.Del(ctx, layoutKey(eventID)).Err()
}

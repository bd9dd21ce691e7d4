package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/slotwise/slotwise/services/availability-service/internal/engine"
)

// SlotCache memoizes computed day availability in Redis. Keys embed a per-staff
// version counter, so invalidation after a booking is a single INCR instead of
// a key scan; superseded entries age out via TTL.
type SlotCache struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewSlotCache(rdb *redis.Client, ttl time.Duration) *SlotCache {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &SlotCache{rdb: rdb, ttl: ttl}
}

func (c *SlotCache) key(ctx context.Context, serviceID, staffID, date string) (string, error) {
	ver, err := c.rdb.Get(ctx, "slots:ver:"+staffID).Result()
	if errors.Is(err, redis.Nil) {
		ver = "0"
	} else if err != nil {
		return "", err
	}
	return fmt.Sprintf("slots:%s:%s:%s:v%s", serviceID, staffID, date, ver), nil
}

func (c *SlotCache) Get(ctx context.Context, serviceID, staffID, date string) ([]engine.TimeSlot, bool, error) {
	key, err := c.key(ctx, serviceID, staffID, date)
	if err != nil {
		return nil, false, err
	}
	raw, err := c.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var slots []engine.TimeSlot
	if err := json.Unmarshal(raw, &slots); err != nil {
		// A malformed entry is treated as a miss; it will be overwritten.
		return nil, false, nil
	}
	return slots, true, nil
}

func (c *SlotCache) Set(ctx context.Context, serviceID, staffID, date string, slots []engine.TimeSlot) error {
	key, err := c.key(ctx, serviceID, staffID, date)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(slots)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, key, raw, c.ttl).Err()
}

// Invalidate bumps the staff member's version so every cached day for that
// member misses on the next read.
func (c *SlotCache) Invalidate(ctx context.Context, staffID string) error {
	return c.rdb.Incr(ctx, "slots:ver:"+staffID).Err()
}

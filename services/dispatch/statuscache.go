package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"medilink/models"

	"github.com/go-redis/redis/v8"
)

const statusKeyPrefix = "dispatch:status:"

// StatusCache keeps the public view of a request's progress in Redis so
// polling clients never hit Mongo. Every transition refreshes it; a cache
// miss falls back to the repository.
type StatusCache struct {
	Client *redis.Client
	TTL    time.Duration
}

// Put stores the status snapshot. Safe to call with a nil cache.
func (c *StatusCache) Put(ctx context.Context, status models.DispatchStatus) error {
	if c == nil || c.Client == nil {
		return nil
	}
	data, err := json.Marshal(status)
	if err != nil {
		return fmt.Errorf("failed to marshal dispatch status: %w", err)
	}
	return c.Client.Set(ctx, statusKeyPrefix+status.RequestID, data, c.TTL).Err()
}

// Get returns the cached status, or nil on a miss.
func (c *StatusCache) Get(ctx context.Context, requestID string) (*models.DispatchStatus, error) {
	if c == nil || c.Client == nil {
		return nil, nil
	}
	data, err := c.Client.Get(ctx, statusKeyPrefix+requestID).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var status models.DispatchStatus
	if err := json.Unmarshal([]byte(data), &status); err != nil {
		return nil, fmt.Errorf("failed to unmarshal dispatch status: %w", err)
	}
	return &status, nil
}

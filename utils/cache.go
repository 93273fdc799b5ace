// File: utils/cache.go
package utils

import (
	"context"
	"log"
	"time"

	"medilink/config"

	"github.com/go-redis/redis/v8"
)

var (
	// PresenceClient holds doctor presence keys with TTL.
	PresenceClient *redis.Client
	// StatusClient serves the dispatch status cache for polling clients.
	StatusClient *redis.Client
)

func newRedisClient(db int) *redis.Client {
	client := redis.NewClient(&redis.Options{
		Addr:     config.AppConfig.RedisAddr,
		Password: config.AppConfig.RedisPassword,
		DB:       db,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if _, err := client.Ping(ctx).Result(); err != nil {
		log.Fatalf("Failed to connect to Redis (db %d): %v", db, err)
	}
	return client
}

// InitPresenceCache initializes the Redis client for doctor presence.
func InitPresenceCache() {
	PresenceClient = newRedisClient(config.AppConfig.RedisPresenceDB)
}

// GetPresenceClient returns the presence client.
func GetPresenceClient() *redis.Client {
	if PresenceClient == nil {
		InitPresenceCache()
	}
	return PresenceClient
}

// InitStatusCache initializes the Redis client for the dispatch status cache.
func InitStatusCache() {
	StatusClient = newRedisClient(config.AppConfig.RedisStatusDB)
}

// GetStatusClient returns the status cache client.
func GetStatusClient() *redis.Client {
	if StatusClient == nil {
		InitStatusCache()
	}
	return StatusClient
}

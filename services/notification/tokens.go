package notification

import (
	"context"
	"fmt"

	"github.com/go-redis/redis/v8"
)

const tokenKeyPrefix = "fcm:token:"

// TokenStore maps user ids to FCM device tokens. Patients and doctors
// register a token on login and the push paths look it up per send.
type TokenStore interface {
	Register(ctx context.Context, userID, token string) error
	Lookup(ctx context.Context, userID string) (string, error)
	Remove(ctx context.Context, userID string) error
}

// RedisTokenStore keeps device tokens in Redis without expiry; a token
// stays valid until the device replaces or removes it.
type RedisTokenStore struct {
	Client *redis.Client
}

func (s *RedisTokenStore) Register(ctx context.Context, userID, token string) error {
	if userID == "" || token == "" {
		return fmt.Errorf("both user id and token are required")
	}
	return s.Client.Set(ctx, tokenKeyPrefix+userID, token, 0).Err()
}

func (s *RedisTokenStore) Lookup(ctx context.Context, userID string) (string, error) {
	token, err := s.Client.Get(ctx, tokenKeyPrefix+userID).Result()
	if err == redis.Nil {
		return "", nil
	}
	return token, err
}

func (s *RedisTokenStore) Remove(ctx context.Context, userID string) error {
	return s.Client.Del(ctx, tokenKeyPrefix+userID).Err()
}

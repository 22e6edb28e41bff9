package directory

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"messaging-service/internal/apperrors"
)

// CachedDirectory wraps a Directory with a redis read-through cache. Profiles
// change rarely; a short TTL bounds staleness of the denormalized names.
type CachedDirectory struct {
	inner  Directory
	client *redis.Client
	ttl    time.Duration
}

// NewCachedDirectory constructs the cache wrapper.
func NewCachedDirectory(inner Directory, client *redis.Client, ttl time.Duration) *CachedDirectory {
	return &CachedDirectory{inner: inner, client: client, ttl: ttl}
}

func userKey(userID string) string {
	return fmt.Sprintf("directory:user:%s", userID)
}

// GetUserByID serves from redis when possible, falling back to the inner
// directory and populating the cache on a miss.
func (c *CachedDirectory) GetUserByID(ctx context.Context, userID string) (User, error) {
	// Cache trouble is never a reason to fail the lookup.
	data, err := c.client.Get(ctx, userKey(userID)).Result()
	if err == nil {
		var user User
		if err := json.Unmarshal([]byte(data), &user); err == nil {
			return user, nil
		}
	}

	user, err := c.inner.GetUserByID(ctx, userID)
	if err != nil {
		return User{}, err
	}

	if payload, err := json.Marshal(user); err == nil {
		_ = c.client.Set(ctx, userKey(user.ID), payload, c.ttl).Err()
	}
	return user, nil
}

// BulkUsers resolves each id through the cache.
func (c *CachedDirectory) BulkUsers(ctx context.Context, ids []string) ([]User, error) {
	users := make([]User, 0, len(ids))
	for _, id := range ids {
		user, err := c.GetUserByID(ctx, id)
		if err != nil {
			if apperrors.Is(err, apperrors.CodeNotFound) {
				continue
			}
			return nil, err
		}
		users = append(users, user)
	}
	return users, nil
}

package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/wb-go/wbf/redis"
	"github.com/wb-go/wbf/retry"

	"github.com/newsdesk/notifyd/internal/model"
)

// RedisRepository caches the (article, method) -> status lookup the status
// API hits on every poll. Entries are invalidated on every transition, the
// TTL only bounds staleness after missed invalidations.
type RedisRepository struct {
	redisClient   *redis.Client
	retryStrategy retry.Strategy
	expiration    time.Duration
}

func NewRedisRepository(redisClient *redis.Client, retryStrategy retry.Strategy, expiration time.Duration) *RedisRepository {
	return &RedisRepository{redisClient: redisClient, retryStrategy: retryStrategy, expiration: expiration}
}

type statusEntry struct {
	Status  model.Status `json:"status"`
	Message string       `json:"message"`
}

func statusKey(articleID int64, methodID string) string {
	return fmt.Sprintf("notifyd:status:%d:%s", articleID, methodID)
}

func (r *RedisRepository) SaveStatus(ctx context.Context, articleID int64, methodID string, status model.Status, message string) error {
	data, err := json.Marshal(statusEntry{Status: status, Message: message})
	if err != nil {
		return fmt.Errorf("redis: marshal status entry: %w", err)
	}
	key := statusKey(articleID, methodID)
	err = retry.DoContext(ctx, r.retryStrategy, func() error {
		return r.redisClient.SetWithExpiration(ctx, key, data, r.expiration)
	})
	if err != nil {
		return fmt.Errorf("redis: set key %s: %w", key, err)
	}
	return nil
}

func (r *RedisRepository) GetStatus(ctx context.Context, articleID int64, methodID string) (model.Status, string, error) {
	data, err := r.redisClient.Get(ctx, statusKey(articleID, methodID))
	if err != nil {
		return "", "", err
	}
	var entry statusEntry
	if err = json.Unmarshal([]byte(data), &entry); err != nil {
		return "", "", fmt.Errorf("redis: unmarshal status entry: %w", err)
	}
	return entry.Status, entry.Message, nil
}

func (r *RedisRepository) Invalidate(ctx context.Context, articleID int64, methodID string) error {
	key := statusKey(articleID, methodID)
	if err := r.redisClient.Del(ctx, key); err != nil {
		return fmt.Errorf("redis: delete key %s: %w", key, err)
	}
	return nil
}

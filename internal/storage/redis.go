package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hyperjump/kotae/internal/models"
	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "kotae:session:"

// RedisHistory implements HistoryStore with one Redis list per session. Each
// element is a JSON-encoded turn, appended with RPUSH so the list is chronological.
type RedisHistory struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewRedisHistory connects to url (redis://...) and pings the server. Sessions idle
// longer than ttl are dropped by Redis; ttl <= 0 keeps them forever.
func NewRedisHistory(ctx context.Context, url string, ttl time.Duration) (*RedisHistory, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		opt = &redis.Options{Addr: url}
	}
	rdb := redis.NewClient(opt)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	return &RedisHistory{rdb: rdb, ttl: ttl}, nil
}

func redisKey(sessionID string) string {
	return redisKeyPrefix + sessionID
}

// AppendTurn pushes turn onto the session list and refreshes its expiry.
func (r *RedisHistory) AppendTurn(ctx context.Context, sessionID string, turn models.ConversationTurn) error {
	if turn.CreatedAt.IsZero() {
		turn.CreatedAt = time.Now()
	}
	data, err := json.Marshal(turn)
	if err != nil {
		return fmt.Errorf("failed to marshal turn: %w", err)
	}
	key := redisKey(sessionID)
	pipe := r.rdb.TxPipeline()
	pipe.RPush(ctx, key, data)
	if r.ttl > 0 {
		pipe.Expire(ctx, key, r.ttl)
	}
	_, err = pipe.Exec(ctx)
	return err
}

// ListTurns returns the turns of sessionID oldest first.
func (r *RedisHistory) ListTurns(ctx context.Context, sessionID string, limit int) ([]models.ConversationTurn, error) {
	start := int64(0)
	if limit > 0 {
		start = -int64(limit)
	}
	items, err := r.rdb.LRange(ctx, redisKey(sessionID), start, -1).Result()
	if err != nil {
		return nil, err
	}
	turns := make([]models.ConversationTurn, 0, len(items))
	for _, item := range items {
		var t models.ConversationTurn
		if err := json.Unmarshal([]byte(item), &t); err != nil {
			return nil, fmt.Errorf("failed to unmarshal turn: %w", err)
		}
		turns = append(turns, t)
	}
	return turns, nil
}

// DeleteSession removes the session list.
func (r *RedisHistory) DeleteSession(ctx context.Context, sessionID string) error {
	return r.rdb.Del(ctx, redisKey(sessionID)).Err()
}

// Close closes the client.
func (r *RedisHistory) Close() error {
	return r.rdb.Close()
}

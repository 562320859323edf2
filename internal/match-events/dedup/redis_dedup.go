package dedup

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisDedup marca eventos do feed já vistos com SETNX + TTL
type RedisDedup struct {
	Client *redis.Client
	TTL    time.Duration
}

// NewRedisDedup cria o deduplicador com TTL configurável
func NewRedisDedup(c *redis.Client, ttl time.Duration) *RedisDedup {
	return &RedisDedup{Client: c, TTL: ttl}
}

func key(eventID string) string { return "match_event:seen:" + eventID }

// Claim retorna true se este é o primeiro processamento do evento
func (r *RedisDedup) Claim(ctx context.Context, eventID string) (bool, error) {
	return r.Client.SetNX(ctx, key(eventID), 1, r.TTL).Result()
}

// Release libera o evento para nova tentativa (processamento falhou)
func (r *RedisDedup) Release(ctx context.Context, eventID string) error {
	return r.Client.Del(ctx, key(eventID)).Err()
}

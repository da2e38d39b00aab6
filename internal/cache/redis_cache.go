package cache

import (
	"context"
	"encoding/json"
	"time"

	redis "github.com/redis/go-redis/v9"

	"github.com/floradistro/websitev2-sub022/internal/domain"
)

type RedisSessionCache struct {
	client *redis.Client
}

func NewRedisSessionCache(addr string, password string, db int) *RedisSessionCache {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	return &RedisSessionCache{client: client}
}

func (c *RedisSessionCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisSessionCache) Close() error {
	return c.client.Close()
}

func sessionKey(registerID string) string {
	return "open-session:" + registerID
}

func (c *RedisSessionCache) GetOpenSession(ctx context.Context, registerID string) (*domain.DrawerSession, bool, error) {
	val, err := c.client.Get(ctx, sessionKey(registerID)).Result()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var sess domain.DrawerSession
	if err := json.Unmarshal([]byte(val), &sess); err != nil {
		return nil, false, err
	}
	return &sess, true, nil
}

func (c *RedisSessionCache) SetOpenSession(ctx context.Context, registerID string, session *domain.DrawerSession, ttl time.Duration) error {
	if session == nil {
		return nil
	}
	payload, err := json.Marshal(session)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, sessionKey(registerID), payload, ttl).Err()
}

func (c *RedisSessionCache) InvalidateRegister(ctx context.Context, registerID string) error {
	return c.client.Del(ctx, sessionKey(registerID)).Err()
}

package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/bourracho/chat-registry/internal/config"
	"github.com/bourracho/chat-registry/internal/model"
	registrycache "github.com/bourracho/chat-registry/internal/registry/cache"
	goredis "github.com/redis/go-redis/v9"
)

const defaultTTL = 10 * time.Minute

func init() {
	registrycache.Register(registrycache.Plugin{
		Name:   "redis",
		Loader: load,
	})
}

func load(ctx context.Context) (registrycache.MetadataCache, error) {
	cfg := config.FromContext(ctx)
	if cfg == nil || cfg.RedisURL == "" {
		return nil, fmt.Errorf("redis cache: BOURRACHO_REDIS_URL is required")
	}
	return LoadFromURLWithTTL(ctx, cfg.RedisURL, cfg.CacheTTL)
}

// LoadFromURL creates a MetadataCache from a Redis-compatible URL.
func LoadFromURL(ctx context.Context, redisURL string) (registrycache.MetadataCache, error) {
	return LoadFromURLWithTTL(ctx, redisURL, defaultTTL)
}

// LoadFromURLWithTTL creates a cache with an explicit default entry TTL.
func LoadFromURLWithTTL(ctx context.Context, redisURL string, ttl time.Duration) (registrycache.MetadataCache, error) {
	opts, err := goredis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("redis cache: invalid URL: %w", err)
	}
	client := goredis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis cache: ping failed: %w", err)
	}
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &redisMetadataCache{client: client, ttl: ttl}, nil
}

type redisMetadataCache struct {
	client *goredis.Client
	ttl    time.Duration
}

func (c *redisMetadataCache) Available() bool {
	return true
}

func (c *redisMetadataCache) Get(ctx context.Context, key string) (*model.ConversationMetadata, error) {
	data, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var cached model.ConversationMetadata
	if err := json.Unmarshal(data, &cached); err != nil {
		return nil, err
	}
	return &cached, nil
}

func (c *redisMetadataCache) Set(ctx context.Context, key string, metadata model.ConversationMetadata, ttl time.Duration) error {
	data, err := json.Marshal(metadata)
	if err != nil {
		return err
	}
	if ttl == 0 {
		ttl = c.ttl
	}
	return c.client.Set(ctx, key, data, ttl).Err()
}

func (c *redisMetadataCache) Remove(ctx context.Context, key string) error {
	return c.client.Del(ctx, key).Err()
}

var _ registrycache.MetadataCache = (*redisMetadataCache)(nil)

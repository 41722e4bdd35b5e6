package memory

import (
	"context"
	"fmt"
	"time"

	"github.com/bourracho/chat-registry/internal/config"
	"github.com/bourracho/chat-registry/internal/model"
	registrycache "github.com/bourracho/chat-registry/internal/registry/cache"
	"github.com/dgraph-io/ristretto/v2"
)

const (
	defaultTTL        = 10 * time.Minute
	defaultMaxEntries = 10_000
)

func init() {
	registrycache.Register(registrycache.Plugin{
		Name: "memory",
		Loader: func(ctx context.Context) (registrycache.MetadataCache, error) {
			maxEntries := int64(defaultMaxEntries)
			ttl := defaultTTL
			if cfg := config.FromContext(ctx); cfg != nil {
				if cfg.CacheMaxEntries > 0 {
					maxEntries = cfg.CacheMaxEntries
				}
				if cfg.CacheTTL > 0 {
					ttl = cfg.CacheTTL
				}
			}
			return New(maxEntries, ttl)
		},
	})
}

// New returns an in-process cache holding at most maxEntries metadata records.
func New(maxEntries int64, ttl time.Duration) (registrycache.MetadataCache, error) {
	c, err := ristretto.NewCache(&ristretto.Config[string, model.ConversationMetadata]{
		NumCounters: maxEntries * 10,
		MaxCost:     maxEntries,
		BufferItems: 64,
		// Cost counts entries, not bytes.
		IgnoreInternalCost: true,
	})
	if err != nil {
		return nil, fmt.Errorf("memory cache: %w", err)
	}
	return &memoryMetadataCache{cache: c, ttl: ttl}, nil
}

type memoryMetadataCache struct {
	cache *ristretto.Cache[string, model.ConversationMetadata]
	ttl   time.Duration
}

func (m *memoryMetadataCache) Available() bool { return true }

func (m *memoryMetadataCache) Get(_ context.Context, key string) (*model.ConversationMetadata, error) {
	md, ok := m.cache.Get(key)
	if !ok {
		return nil, nil
	}
	return &md, nil
}

// Set waits for the write buffer to drain so a following Get observes the value.
func (m *memoryMetadataCache) Set(_ context.Context, key string, metadata model.ConversationMetadata, ttl time.Duration) error {
	if ttl == 0 {
		ttl = m.ttl
	}
	m.cache.SetWithTTL(key, metadata, 1, ttl)
	m.cache.Wait()
	return nil
}

func (m *memoryMetadataCache) Remove(_ context.Context, key string) error {
	m.cache.Del(key)
	return nil
}

var _ registrycache.MetadataCache = (*memoryMetadataCache)(nil)

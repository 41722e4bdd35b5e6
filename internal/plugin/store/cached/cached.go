package cached

import (
	"context"

	"github.com/bourracho/chat-registry/internal/model"
	registrycache "github.com/bourracho/chat-registry/internal/registry/cache"
	"github.com/bourracho/chat-registry/internal/registry/store"
	"github.com/bourracho/chat-registry/internal/security"
	"github.com/charmbracelet/log"
)

// Wrap adds a read-through metadata cache in front of inner. When the cache
// is unavailable inner is returned unchanged.
func Wrap(inner store.ConversationStore, cache registrycache.MetadataCache, key string) store.ConversationStore {
	if cache == nil || !cache.Available() {
		return inner
	}
	return &cachedStore{ConversationStore: inner, cache: cache, key: key}
}

// cachedStore embeds the backend so only the metadata operations are intercepted.
type cachedStore struct {
	store.ConversationStore
	cache registrycache.MetadataCache
	key   string
}

func (c *cachedStore) GetMetadata(ctx context.Context) (model.ConversationMetadata, error) {
	cachedMD, err := c.cache.Get(ctx, c.key)
	switch {
	case err != nil:
		security.IncCounter(security.CacheErrorsTotal)
		log.Warn("Metadata cache read failed", "key", c.key, "err", err)
	case cachedMD != nil:
		security.IncCounter(security.CacheHitsTotal)
		return *cachedMD, nil
	default:
		security.IncCounter(security.CacheMissesTotal)
	}

	md, err := c.ConversationStore.GetMetadata(ctx)
	if err != nil {
		return model.ConversationMetadata{}, err
	}
	c.refresh(ctx, md)
	return md, nil
}

func (c *cachedStore) WriteMetadata(ctx context.Context, metadata model.ConversationMetadata) error {
	if err := c.ConversationStore.WriteMetadata(ctx, metadata); err != nil {
		return err
	}
	c.refresh(ctx, metadata)
	return nil
}

func (c *cachedStore) UpdateMetadata(ctx context.Context, patch model.MetadataPatch) (model.ConversationMetadata, error) {
	md, err := c.ConversationStore.UpdateMetadata(ctx, patch)
	if err != nil {
		return model.ConversationMetadata{}, err
	}
	c.refresh(ctx, md)
	return md, nil
}

func (c *cachedStore) Close(ctx context.Context) error {
	if err := c.cache.Remove(ctx, c.key); err != nil {
		log.Warn("Metadata cache eviction failed", "key", c.key, "err", err)
	}
	return c.ConversationStore.Close(ctx)
}

func (c *cachedStore) refresh(ctx context.Context, md model.ConversationMetadata) {
	if err := c.cache.Set(ctx, c.key, md, 0); err != nil {
		security.IncCounter(security.CacheErrorsTotal)
		log.Warn("Metadata cache write failed", "key", c.key, "err", err)
		// A stale entry must not outlive a failed refresh.
		_ = c.cache.Remove(ctx, c.key)
	}
}

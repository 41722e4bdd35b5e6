package noop

import (
	"context"
	"time"

	"github.com/bourracho/chat-registry/internal/model"
	"github.com/bourracho/chat-registry/internal/registry/cache"
)

func init() {
	cache.Register(cache.Plugin{
		Name: "none",
		Loader: func(ctx context.Context) (cache.MetadataCache, error) {
			return New(), nil
		},
	})
}

// New returns a cache that stores nothing.
func New() cache.MetadataCache { return &noopMetadataCache{} }

type noopMetadataCache struct{}

func (n *noopMetadataCache) Available() bool { return false }
func (n *noopMetadataCache) Get(_ context.Context, _ string) (*model.ConversationMetadata, error) {
	return nil, nil
}
func (n *noopMetadataCache) Set(_ context.Context, _ string, _ model.ConversationMetadata, _ time.Duration) error {
	return nil
}
func (n *noopMetadataCache) Remove(_ context.Context, _ string) error { return nil }

var _ cache.MetadataCache = (*noopMetadataCache)(nil)

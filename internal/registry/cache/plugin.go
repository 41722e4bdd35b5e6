package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/bourracho/chat-registry/internal/model"
)

// MetadataCache caches conversation metadata in front of the conversation stores.
// A miss is reported as (nil, nil).
type MetadataCache interface {
	Available() bool
	Get(ctx context.Context, key string) (*model.ConversationMetadata, error)
	Set(ctx context.Context, key string, metadata model.ConversationMetadata, ttl time.Duration) error
	Remove(ctx context.Context, key string) error
}

// MetadataKey names the cache entry of one conversation of one registry.
func MetadataKey(registryID, conversationID string) string {
	return fmt.Sprintf("bourracho:%s:%s:metadata", registryID, conversationID)
}

// Loader creates a cache from config.
type Loader func(ctx context.Context) (MetadataCache, error)

// Plugin represents a cache plugin.
type Plugin struct {
	Name   string
	Loader Loader
}

var plugins []Plugin

// Register adds a cache plugin.
func Register(p Plugin) {
	plugins = append(plugins, p)
}

// Names returns all registered cache plugin names.
func Names() []string {
	names := make([]string, len(plugins))
	for i, p := range plugins {
		names[i] = p.Name
	}
	return names
}

// Select returns the loader for the named cache plugin.
func Select(name string) (Loader, error) {
	for _, p := range plugins {
		if p.Name == name {
			return p.Loader, nil
		}
	}
	return nil, fmt.Errorf("unknown cache %q; valid: %v", name, Names())
}

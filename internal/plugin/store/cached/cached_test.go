package cached_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bourracho/chat-registry/internal/model"
	"github.com/bourracho/chat-registry/internal/plugin/cache/memory"
	"github.com/bourracho/chat-registry/internal/plugin/cache/noop"
	"github.com/bourracho/chat-registry/internal/plugin/store/cached"
	"github.com/bourracho/chat-registry/internal/plugin/store/file"
	registrycache "github.com/bourracho/chat-registry/internal/registry/cache"
	registrystore "github.com/bourracho/chat-registry/internal/registry/store"
	"github.com/bourracho/chat-registry/internal/registry/store/storetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const key = "bourracho:test:ABC123:metadata"

func newMemoryCache(t *testing.T) registrycache.MetadataCache {
	t.Helper()
	c, err := memory.New(100, time.Minute)
	require.NoError(t, err)
	return c
}

func TestContract(t *testing.T) {
	storetest.Run(t, func(t *testing.T, conversationID string) registrystore.ConversationStore {
		inner, err := file.New(t.TempDir(), conversationID)
		require.NoError(t, err)
		return cached.Wrap(inner, newMemoryCache(t), registrycache.MetadataKey("contract", conversationID))
	})
}

func TestUnavailableCacheReturnsInner(t *testing.T) {
	inner, err := file.New(t.TempDir(), "ABC123")
	require.NoError(t, err)
	assert.Same(t, inner, cached.Wrap(inner, noop.New(), key))
	assert.Same(t, inner, cached.Wrap(inner, nil, key))
}

func TestWritesRefreshCache(t *testing.T) {
	ctx := context.Background()
	c := newMemoryCache(t)
	inner, err := file.New(t.TempDir(), "ABC123")
	require.NoError(t, err)
	s := cached.Wrap(inner, c, key)

	id := "ABC123"
	require.NoError(t, s.WriteMetadata(ctx, model.ConversationMetadata{ID: &id, Name: "First"}))
	hit, err := c.Get(ctx, key)
	require.NoError(t, err)
	require.NotNil(t, hit)
	assert.Equal(t, "First", hit.Name)

	name := "Second"
	_, err = s.UpdateMetadata(ctx, model.MetadataPatch{Name: &name})
	require.NoError(t, err)
	hit, err = c.Get(ctx, key)
	require.NoError(t, err)
	require.NotNil(t, hit)
	assert.Equal(t, "Second", hit.Name)
}

func TestReadsAreServedFromCache(t *testing.T) {
	ctx := context.Background()
	c := newMemoryCache(t)
	inner, err := file.New(t.TempDir(), "ABC123")
	require.NoError(t, err)
	s := cached.Wrap(inner, c, key)

	id := "ABC123"
	require.NoError(t, c.Set(ctx, key, model.ConversationMetadata{ID: &id, Name: "Cached"}, 0))

	md, err := s.GetMetadata(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Cached", md.Name)
}

func TestMissPopulatesCache(t *testing.T) {
	ctx := context.Background()
	c := newMemoryCache(t)
	inner, err := file.New(t.TempDir(), "ABC123")
	require.NoError(t, err)
	s := cached.Wrap(inner, c, key)

	md, err := s.GetMetadata(ctx)
	require.NoError(t, err)
	assert.Equal(t, model.DefaultMetadata(), md)

	hit, err := c.Get(ctx, key)
	require.NoError(t, err)
	require.NotNil(t, hit)
	assert.Equal(t, model.DefaultMetadata(), *hit)
}

type failingCache struct{}

func (failingCache) Available() bool { return true }
func (failingCache) Get(context.Context, string) (*model.ConversationMetadata, error) {
	return nil, errors.New("cache down")
}
func (failingCache) Set(context.Context, string, model.ConversationMetadata, time.Duration) error {
	return errors.New("cache down")
}
func (failingCache) Remove(context.Context, string) error { return errors.New("cache down") }

func TestCacheFailuresFallThrough(t *testing.T) {
	ctx := context.Background()
	inner, err := file.New(t.TempDir(), "ABC123")
	require.NoError(t, err)
	s := cached.Wrap(inner, failingCache{}, key)

	id := "ABC123"
	require.NoError(t, s.WriteMetadata(ctx, model.ConversationMetadata{ID: &id, Name: "Durable"}))
	md, err := s.GetMetadata(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Durable", md.Name)
	require.NoError(t, s.Close(ctx))
}

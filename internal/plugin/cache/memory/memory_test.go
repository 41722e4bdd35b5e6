package memory

import (
	"context"
	"testing"
	"time"

	"github.com/bourracho/chat-registry/internal/model"
	registrycache "github.com/bourracho/chat-registry/internal/registry/cache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetGetRemove(t *testing.T) {
	ctx := context.Background()
	c, err := New(100, time.Minute)
	require.NoError(t, err)
	assert.True(t, c.Available())

	key := registrycache.MetadataKey("default", "ABC123")
	got, err := c.Get(ctx, key)
	require.NoError(t, err)
	assert.Nil(t, got)

	id := "ABC123"
	md := model.ConversationMetadata{ID: &id, Name: "Lobby"}
	require.NoError(t, c.Set(ctx, key, md, 0))

	got, err = c.Get(ctx, key)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, md, *got)

	require.NoError(t, c.Remove(ctx, key))
	got, err = c.Get(ctx, key)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestSelectByName(t *testing.T) {
	loader, err := registrycache.Select("memory")
	require.NoError(t, err)
	c, err := loader(context.Background())
	require.NoError(t, err)
	assert.True(t, c.Available())
}

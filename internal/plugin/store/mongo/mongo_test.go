package mongo

import (
	"context"
	"testing"

	"github.com/bourracho/chat-registry/internal/config"
	"github.com/bourracho/chat-registry/internal/model"
	registrystore "github.com/bourracho/chat-registry/internal/registry/store"
	"github.com/bourracho/chat-registry/internal/registry/store/storetest"
	"github.com/bourracho/chat-registry/internal/testutil/testmongo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestStore(t *testing.T, uri, database, conversationID string) *MongoStore {
	t.Helper()
	cfg := config.DefaultConfig()
	ctx := config.WithContext(context.Background(), &cfg)

	d := registrystore.DocumentDBDescriptor(uri, database)
	d.ConversationID = conversationID
	s, err := Open(ctx, d)
	require.NoError(t, err)
	return s
}

func TestContract(t *testing.T) {
	uri := testmongo.StartMongo(t)
	db := 0
	storetest.Run(t, func(t *testing.T, conversationID string) registrystore.ConversationStore {
		db++
		return setupTestStore(t, uri, "contract_"+string(rune('a'+db%26)), conversationID)
	})
}

func TestOpenThroughRegistry(t *testing.T) {
	uri := testmongo.StartMongo(t)
	ctx := context.Background()

	d := registrystore.DocumentDBDescriptor(uri, "bourracho")
	d.ConversationID = "ABC123"
	s, err := registrystore.Open(ctx, d)
	require.NoError(t, err)
	defer s.Close(ctx)

	_, err = s.AddMessage(ctx, model.Message{Content: "hello", IssuerID: "u1"})
	require.NoError(t, err)
}

func TestOpenRequiresConversationID(t *testing.T) {
	_, err := Open(context.Background(), registrystore.DocumentDBDescriptor("mongodb://localhost:1", "bourracho"))
	var inv *registrystore.InvalidArgumentError
	require.ErrorAs(t, err, &inv)
}

func TestConversationsAreIsolated(t *testing.T) {
	uri := testmongo.StartMongo(t)
	ctx := context.Background()

	a := setupTestStore(t, uri, "shared", "AAAAAA")
	b := setupTestStore(t, uri, "shared", "BBBBBB")
	defer a.Close(ctx)
	defer b.Close(ctx)

	_, err := a.AddMessage(ctx, model.Message{ID: "same", Content: "in a", IssuerID: "u1"})
	require.NoError(t, err)
	_, err = b.AddMessage(ctx, model.Message{ID: "same", Content: "in b", IssuerID: "u1"})
	require.NoError(t, err)
	require.NoError(t, a.AddUserID(ctx, "u1"))

	msgs, err := b.GetMessages(ctx)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "in b", msgs[0].Content)

	ids, err := b.GetUsersIDs(ctx)
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestClientPoolSharesConnections(t *testing.T) {
	uri := testmongo.StartMongo(t)
	ctx := context.Background()
	before := pool.size()

	a := setupTestStore(t, uri, "pool", "AAAAAA")
	b := setupTestStore(t, uri, "pool", "BBBBBB")
	assert.Same(t, a.client, b.client)
	assert.Equal(t, before+1, pool.size())

	require.NoError(t, a.Close(ctx))
	require.NoError(t, a.Close(ctx))
	assert.Equal(t, before+1, pool.size())

	require.NoError(t, b.Close(ctx))
	assert.Equal(t, before, pool.size())
}

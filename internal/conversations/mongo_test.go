package conversations_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/bourracho/chat-registry/internal/config"
	"github.com/bourracho/chat-registry/internal/conversations"
	"github.com/bourracho/chat-registry/internal/plugin/store/mongo"
	registrystore "github.com/bourracho/chat-registry/internal/registry/store"
	"github.com/bourracho/chat-registry/internal/testutil/testmongo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var _ = mongo.ForceImport

// withAppName gives the URI its own pooled client.
func withAppName(uri, name string) string {
	if strings.Contains(uri, "?") {
		return uri + "&appName=" + name
	}
	if !strings.Contains(strings.TrimPrefix(uri, "mongodb://"), "/") {
		uri += "/"
	}
	return uri + "?appName=" + name
}

func TestDocumentStoresUseRegistryCredentials(t *testing.T) {
	uri := testmongo.StartMongo(t)

	cfg := config.DefaultConfig()
	cfg.MongoUsername = "nobody"
	cfg.MongoPassword = "wrong"
	cfg.MongoTimeout = 5 * time.Second
	opts := conversations.OptionsFromConfig(&cfg, nil)
	opts.ID = "creds"
	opts.PersistenceDir = t.TempDir()
	opts.StoreKind = registrystore.KindDocumentDB
	opts.MongoURL = withAppName(uri, "bourracho-creds")
	opts.MongoDatabase = "creds"

	r, err := conversations.Open(context.Background(), opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Close(context.Background()) })

	_, err = r.CreateConversation(context.Background(), "u1", named("auth"), nil)
	require.Error(t, err)
	assert.Empty(t, r.ConversationIDs())
}

func TestDocumentStoresWithoutCredentials(t *testing.T) {
	uri := testmongo.StartMongo(t)

	cfg := config.DefaultConfig()
	cfg.MongoTimeout = 5 * time.Second
	opts := conversations.OptionsFromConfig(&cfg, nil)
	opts.ID = "nocreds"
	opts.PersistenceDir = t.TempDir()
	opts.StoreKind = registrystore.KindDocumentDB
	opts.MongoURL = withAppName(uri, "bourracho-nocreds")
	opts.MongoDatabase = "nocreds"

	r, err := conversations.Open(context.Background(), opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Close(context.Background()) })

	cid, err := r.CreateConversation(context.Background(), "u1", named("open"), nil)
	require.NoError(t, err)
	md, err := r.GetMetadata(context.Background(), cid)
	require.NoError(t, err)
	assert.Equal(t, "open", md.Name)
}

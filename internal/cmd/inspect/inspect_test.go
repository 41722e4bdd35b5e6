package inspect

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/bourracho/chat-registry/internal/config"
	"github.com/bourracho/chat-registry/internal/conversations"
	"github.com/bourracho/chat-registry/internal/model"
	registrystore "github.com/bourracho/chat-registry/internal/registry/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunPrintsConversationsAndUsers(t *testing.T) {
	ctx := context.Background()
	cfg := config.DefaultConfig()
	cfg.PersistenceDir = t.TempDir()
	cfg.RegistryID = "inspect"

	reg, err := conversations.Open(ctx, conversations.OptionsFromConfig(&cfg, nil))
	require.NoError(t, err)
	require.NoError(t, reg.RegisterUser(ctx, model.User{ID: "alice", DisplayName: "Alice"}))
	id := "ROOM01"
	_, err = reg.CreateConversation(ctx, "alice", model.ConversationMetadata{ID: &id, Name: "Lobby", IsLocked: true}, nil)
	require.NoError(t, err)
	require.NoError(t, reg.JoinConversation(ctx, "bob", id))
	_, err = reg.AddMessage(ctx, model.Message{Content: "hi", IssuerID: "alice"}, id)
	require.NoError(t, err)
	require.NoError(t, reg.Close(ctx))

	var out bytes.Buffer
	require.NoError(t, Run(config.WithContext(ctx, &cfg), &cfg, &out))

	text := out.String()
	assert.Contains(t, text, "Registry inspect")
	assert.Regexp(t, `ROOM01\s+file\s+Lobby\s+2\s+1`, text)
	assert.Regexp(t, `alice\s+Alice\s+false`, text)
}

func TestRunRequiresIndex(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.PersistenceDir = t.TempDir()

	err := Run(context.Background(), &cfg, &bytes.Buffer{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no registry index")
}

func TestRunLeavesMissingStoresUntouched(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.PersistenceDir = t.TempDir()
	cfg.RegistryID = "sparse"

	gone := filepath.Join(t.TempDir(), "GONE01")
	idx := conversations.NewIndex("sparse")
	d := registrystore.FileDescriptor(gone)
	d.ConversationID = "GONE01"
	idx.Descriptors["GONE01"] = d
	require.NoError(t, os.MkdirAll(cfg.RegistryDir(), 0o755))
	require.NoError(t, conversations.WriteIndex(filepath.Join(cfg.RegistryDir(), conversations.IndexFileName), idx))

	var out bytes.Buffer
	require.NoError(t, Run(context.Background(), &cfg, &out))

	assert.Regexp(t, `GONE01\s+file\s+\?\s+\?\s+\?`, out.String())
	_, err := os.Stat(gone)
	assert.True(t, os.IsNotExist(err))
}

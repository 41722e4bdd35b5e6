package messages_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/bourracho/chat-registry/internal/conversations"
	"github.com/bourracho/chat-registry/internal/model"
	"github.com/bourracho/chat-registry/internal/plugin/route/messages"
	"github.com/bourracho/chat-registry/internal/plugin/store/file"
	"github.com/bourracho/chat-registry/internal/security"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var _ = file.ForceImport

func setupMessagesRouter(t *testing.T) (*gin.Engine, string) {
	t.Helper()
	ctx := context.Background()
	reg, err := conversations.Open(ctx, conversations.Options{ID: "test", PersistenceDir: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = reg.Close(context.Background()) })

	cid, err := reg.CreateConversation(ctx, "alice", model.ConversationMetadata{Name: "chat", IsLocked: true}, nil)
	require.NoError(t, err)
	require.NoError(t, reg.JoinConversation(ctx, "bob", cid))

	gin.SetMode(gin.TestMode)
	router := gin.New()
	messages.MountRoutes(router, reg, security.UserIDMiddleware())
	return router, "/v1/conversations/" + cid + "/messages"
}

func doJSON(t *testing.T, router *gin.Engine, method, path, userID string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if userID != "" {
		req.Header.Set(security.HeaderUserID, userID)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decodeMessage(t *testing.T, w *httptest.ResponseRecorder) model.Message {
	t.Helper()
	var msg model.Message
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &msg))
	return msg
}

func TestAppendAndListMessages(t *testing.T) {
	router, path := setupMessagesRouter(t)

	w := doJSON(t, router, http.MethodPost, path, "alice", map[string]any{"content": "hello"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	first := decodeMessage(t, w)
	assert.NotEmpty(t, first.ID)
	assert.Equal(t, "alice", first.IssuerID)
	assert.False(t, first.Timestamp.IsZero())
	assert.Empty(t, first.Reacts)

	ts := time.Date(2024, 5, 1, 12, 0, 0, 123456789, time.UTC)
	w = doJSON(t, router, http.MethodPost, path, "bob", map[string]any{"id": "m-2", "content": "hey", "timestamp": ts})
	require.Equal(t, http.StatusCreated, w.Code)
	second := decodeMessage(t, w)
	assert.Equal(t, "m-2", second.ID)
	assert.True(t, second.Timestamp.Equal(ts.Truncate(time.Millisecond)))

	w = doJSON(t, router, http.MethodGet, path, "bob", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var page struct {
		Data []model.Message `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &page))
	require.Len(t, page.Data, 2)
	assert.Equal(t, first.ID, page.Data[0].ID)
	assert.Equal(t, "m-2", page.Data[1].ID)
}

func TestAppendMessageErrors(t *testing.T) {
	router, path := setupMessagesRouter(t)

	assert.Equal(t, http.StatusBadRequest, doJSON(t, router, http.MethodPost, path, "alice", map[string]any{}).Code)

	require.Equal(t, http.StatusCreated, doJSON(t, router, http.MethodPost, path, "alice", map[string]any{"id": "dup", "content": "a"}).Code)
	assert.Equal(t, http.StatusConflict, doJSON(t, router, http.MethodPost, path, "alice", map[string]any{"id": "dup", "content": "b"}).Code)
}

func TestMessagesRequireMembership(t *testing.T) {
	router, path := setupMessagesRouter(t)

	assert.Equal(t, http.StatusUnauthorized, doJSON(t, router, http.MethodGet, path, "", nil).Code)
	assert.Equal(t, http.StatusForbidden, doJSON(t, router, http.MethodGet, path, "mallory", nil).Code)
	assert.Equal(t, http.StatusForbidden, doJSON(t, router, http.MethodPost, path, "mallory", map[string]any{"content": "x"}).Code)
	assert.Equal(t, http.StatusNotFound, doJSON(t, router, http.MethodGet, "/v1/conversations/NOPE00/messages", "alice", nil).Code)
}

func TestGetAndEditMessage(t *testing.T) {
	router, path := setupMessagesRouter(t)
	require.Equal(t, http.StatusCreated, doJSON(t, router, http.MethodPost, path, "alice", map[string]any{"id": "m-1", "content": "draft"}).Code)

	w := doJSON(t, router, http.MethodGet, path+"/m-1", "bob", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "draft", decodeMessage(t, w).Content)

	assert.Equal(t, http.StatusNotFound, doJSON(t, router, http.MethodGet, path+"/missing", "bob", nil).Code)

	w = doJSON(t, router, http.MethodPatch, path+"/m-1", "bob", map[string]any{"content": "hijack"})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = doJSON(t, router, http.MethodPatch, path+"/m-1", "alice", map[string]any{"content": "final"})
	require.Equal(t, http.StatusOK, w.Code)
	edited := decodeMessage(t, w)
	assert.Equal(t, "final", edited.Content)
	assert.Equal(t, "alice", edited.IssuerID)

	assert.Equal(t, http.StatusBadRequest, doJSON(t, router, http.MethodPatch, path+"/m-1", "alice", map[string]any{"content": ""}).Code)
	assert.Equal(t, http.StatusNotFound, doJSON(t, router, http.MethodPatch, path+"/missing", "alice", map[string]any{"content": "x"}).Code)
}

func TestReacts(t *testing.T) {
	router, path := setupMessagesRouter(t)
	require.Equal(t, http.StatusCreated, doJSON(t, router, http.MethodPost, path, "alice", map[string]any{"id": "m-1", "content": "party"}).Code)

	w := doJSON(t, router, http.MethodPost, path+"/m-1/reacts", "bob", map[string]any{"emoji": ":thumbsup:"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, []model.React{{Emoji: "👍", IssuerID: "bob"}}, decodeMessage(t, w).Reacts)

	require.Equal(t, http.StatusOK, doJSON(t, router, http.MethodPost, path+"/m-1/reacts", "alice", map[string]any{"emoji": "🔥"}).Code)
	w = doJSON(t, router, http.MethodPost, path+"/m-1/reacts", "bob", map[string]any{"emoji": "🎉"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []model.React{{Emoji: "🔥", IssuerID: "alice"}, {Emoji: "🎉", IssuerID: "bob"}}, decodeMessage(t, w).Reacts)

	assert.Equal(t, http.StatusNotFound, doJSON(t, router, http.MethodPost, path+"/missing/reacts", "bob", map[string]any{"emoji": "🔥"}).Code)
	assert.Equal(t, http.StatusBadRequest, doJSON(t, router, http.MethodPost, path+"/m-1/reacts", "bob", map[string]any{}).Code)
}

package serve

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/bourracho/chat-registry/internal/config"
	"github.com/bourracho/chat-registry/internal/model"
	"github.com/bourracho/chat-registry/internal/security"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMaxBodySizeMiddleware_EnforcesLimit(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(maxBodySizeMiddleware(4))
	router.POST("/v1/users", readBodyLengthHandler)

	req := httptest.NewRequest(http.MethodPost, "/v1/users", strings.NewReader("0123456789"))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestMaxBodySizeMiddleware_AllowsSmallBodies(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(maxBodySizeMiddleware(64))
	router.POST("/v1/users", readBodyLengthHandler)

	req := httptest.NewRequest(http.MethodPost, "/v1/users", strings.NewReader("0123456789"))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "10", rec.Body.String())
}

func readBodyLengthHandler(c *gin.Context) {
	n, err := io.Copy(io.Discard, c.Request.Body)
	if err != nil {
		c.Status(http.StatusRequestEntityTooLarge)
		return
	}
	c.String(http.StatusOK, "%d", n)
}

func TestSetLogLevel(t *testing.T) {
	require.NoError(t, setLogLevel("debug"))
	require.NoError(t, setLogLevel("info"))
	require.Error(t, setLogLevel("chatty"))
}

func startTestServer(t *testing.T, dir string) *Server {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.PersistenceDir = dir
	cfg.RegistryID = "serve-test"
	cfg.Listener.Port = 0
	cfg.Listener.EnableTLS = false
	cfg.AdminUsers = "root"
	cfg.CacheType = "memory"

	srv, err := StartServer(config.WithContext(context.Background(), &cfg), &cfg)
	require.NoError(t, err)
	return srv
}

func call(t *testing.T, srv *Server, method, path, userID string, body any) (*http.Response, []byte) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, fmt.Sprintf("http://127.0.0.1:%d%s", srv.Running.Port, path), &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if userID != "" {
		req.Header.Set(security.HeaderUserID, userID)
	}
	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, data
}

func TestStartServer_ServesAPIAndSurvivesRestart(t *testing.T) {
	dir := t.TempDir()
	srv := startTestServer(t, dir)

	resp, _ := call(t, srv, http.MethodGet, "/ready", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = call(t, srv, http.MethodPost, "/v1/users", "", map[string]any{"id": "alice", "display_name": "Alice"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp, data := call(t, srv, http.MethodPost, "/v1/conversations", "alice", map[string]any{"metadata": map[string]any{"name": "General"}})
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(data))
	var md model.ConversationMetadata
	require.NoError(t, json.Unmarshal(data, &md))
	require.NotNil(t, md.ID)
	cid := *md.ID

	resp, _ = call(t, srv, http.MethodPost, "/v1/conversations/"+cid+"/messages", "alice", map[string]any{"content": "first"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp, _ = call(t, srv, http.MethodPatch, "/v1/users/alice/admin", "alice", map[string]any{"is_admin": true})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	resp, _ = call(t, srv, http.MethodPatch, "/v1/users/alice/admin", "root", map[string]any{"is_admin": true})
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = call(t, srv, http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, srv.Shutdown(ctx))

	restarted := startTestServer(t, dir)
	t.Cleanup(func() { _ = restarted.Shutdown(context.Background()) })

	resp, data = call(t, restarted, http.MethodGet, "/v1/conversations/"+cid+"/messages", "alice", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var page struct {
		Data []model.Message `json:"data"`
	}
	require.NoError(t, json.Unmarshal(data, &page))
	require.Len(t, page.Data, 1)
	assert.Equal(t, "first", page.Data[0].Content)

	resp, data = call(t, restarted, http.MethodGet, "/v1/users/alice", "alice", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(data), `"is_admin":true`)
}

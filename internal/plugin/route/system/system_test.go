package system

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/bourracho/chat-registry/internal/conversations"
	_ "github.com/bourracho/chat-registry/internal/plugin/store/file"
	registryroute "github.com/bourracho/chat-registry/internal/registry/route"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHealthAndReadiness(t *testing.T) {
	reg, err := conversations.Open(context.Background(), conversations.Options{ID: "sys", PersistenceDir: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = reg.Close(context.Background()) })

	gin.SetMode(gin.TestMode)
	router := gin.New()
	for _, loader := range registryroute.ManagementRouteLoaders() {
		require.NoError(t, loader(router, registryroute.Mount{Registry: reg}))
	}

	get := func(path string) *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		return w
	}

	assert.Equal(t, http.StatusOK, get("/health").Code)

	MarkNotReady()
	assert.Equal(t, http.StatusServiceUnavailable, get("/ready").Code)

	MarkReady()
	t.Cleanup(MarkNotReady)
	w := get("/ready")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ready","registry_id":"sys","conversations":0}`, w.Body.String())

	assert.Equal(t, http.StatusOK, get("/metrics").Code)
	assert.Contains(t, registryroute.Names(registryroute.RouteTypeManagement), "system")
}

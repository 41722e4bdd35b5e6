package system

import (
	"net/http"
	"sync/atomic"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	registryroute "github.com/bourracho/chat-registry/internal/registry/route"
)

var ready atomic.Bool

// MarkReady signals that the registry is loaded and the service can take
// traffic. Call this once StartServer has completed successfully.
func MarkReady() {
	ready.Store(true)
}

// MarkNotReady flips readiness off again, e.g. while draining on shutdown.
func MarkNotReady() {
	ready.Store(false)
}

func init() {
	registryroute.Register(registryroute.Plugin{
		Name:   "system",
		Order:  0,
		Type:   registryroute.RouteTypeManagement,
		Loader: MountRoutes,
	})
}

// MountRoutes mounts liveness, readiness and Prometheus endpoints.
func MountRoutes(r *gin.Engine, m registryroute.Mount) error {
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	r.GET("/ready", func(c *gin.Context) {
		if !ready.Load() {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "starting"})
			return
		}
		body := gin.H{"status": "ready"}
		if m.Registry != nil {
			body["registry_id"] = m.Registry.ID()
			body["conversations"] = len(m.Registry.ConversationIDs())
		}
		c.JSON(http.StatusOK, body)
	})

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	return nil
}

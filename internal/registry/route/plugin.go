package route

import (
	"sort"
	"sync"

	"github.com/bourracho/chat-registry/internal/conversations"
	"github.com/gin-gonic/gin"
)

// Mount carries what route plugins need to serve requests.
type Mount struct {
	Registry *conversations.Registry
	// Auth identifies the caller; it runs before every non-public route.
	Auth gin.HandlerFunc
	// Admin guards administrative routes and runs after Auth.
	Admin []gin.HandlerFunc
}

// RouterLoader initializes routes on the gin engine.
type RouterLoader func(r *gin.Engine, m Mount) error

// RouteType distinguishes which server a plugin's routes belong to.
type RouteType int

const (
	// RouteTypeMain registers routes on the main API server.
	RouteTypeMain RouteType = iota
	// RouteTypeManagement registers routes on the management server (health, metrics).
	// When no dedicated management port is configured, these are mounted on the main server.
	RouteTypeManagement
)

// Plugin represents a route plugin with an order for deterministic mount sequence.
type Plugin struct {
	Name   string
	Order  int
	Type   RouteType
	Loader RouterLoader
}

var (
	mu      sync.Mutex
	plugins []Plugin
)

// Register adds a route plugin. Called from init() in plugin packages.
func Register(p Plugin) {
	mu.Lock()
	defer mu.Unlock()
	plugins = append(plugins, p)
}

func sorted(t RouteType) []Plugin {
	mu.Lock()
	defer mu.Unlock()
	var out []Plugin
	for _, p := range plugins {
		if p.Type == t {
			out = append(out, p)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Order < out[j].Order })
	return out
}

// Names returns the names of registered plugins of type t in mount order.
func Names(t RouteType) []string {
	var names []string
	for _, p := range sorted(t) {
		names = append(names, p.Name)
	}
	return names
}

// MainRouteLoaders returns loaders for RouteTypeMain plugins, sorted by order.
func MainRouteLoaders() []RouterLoader {
	return loaders(RouteTypeMain)
}

// ManagementRouteLoaders returns loaders for RouteTypeManagement plugins, sorted by order.
func ManagementRouteLoaders() []RouterLoader {
	return loaders(RouteTypeManagement)
}

func loaders(t RouteType) []RouterLoader {
	var out []RouterLoader
	for _, p := range sorted(t) {
		out = append(out, p.Loader)
	}
	return out
}

package serve

import (
	"context"
	"errors"
	"fmt"

	"github.com/bourracho/chat-registry/internal/config"
	"github.com/bourracho/chat-registry/internal/conversations"
	"github.com/bourracho/chat-registry/internal/plugin/cache/noop"
	routesystem "github.com/bourracho/chat-registry/internal/plugin/route/system"
	registrycache "github.com/bourracho/chat-registry/internal/registry/cache"
	registryroute "github.com/bourracho/chat-registry/internal/registry/route"
	"github.com/bourracho/chat-registry/internal/security"
	"github.com/charmbracelet/log"
	"github.com/gin-gonic/gin"
)

// Server holds the running server and its subsystems.
type Server struct {
	Config          *config.Config
	Registry        *conversations.Registry
	Router          *gin.Engine
	Running         *RunningServers
	closeManagement func(context.Context) error
}

// Shutdown stops accepting requests, drains the listeners and then closes
// every conversation store.
func (s *Server) Shutdown(ctx context.Context) error {
	routesystem.MarkNotReady()
	var errs []error
	if s.closeManagement != nil {
		errs = append(errs, s.closeManagement(ctx))
	}
	errs = append(errs, s.Running.Close(ctx))
	errs = append(errs, s.Registry.Close(ctx))
	return errors.Join(errs...)
}

// StartServer loads the registry and starts the HTTP API on a single port.
// Use cfg.Listener.Port=0 for a random port. Actual port: Server.Running.Port.
func StartServer(ctx context.Context, cfg *config.Config) (*Server, error) {
	log.Info("Starting chat registry",
		"httpPort", cfg.Listener.Port,
		"registryId", cfg.RegistryID,
		"persistenceDir", cfg.PersistenceDir,
		"store", cfg.StoreKind,
		"cache", cfg.CacheType,
	)

	// Initialize Prometheus metrics with configured constant labels.
	metricsLabels, err := security.ParseMetricsLabels(cfg.MetricsLabels)
	if err != nil {
		return nil, fmt.Errorf("invalid --metrics-labels: %w", err)
	}
	security.InitMetrics(metricsLabels)

	// A cache that cannot start degrades to uncached reads.
	metadataCache := noop.New()
	if cacheLoader, err := registrycache.Select(cfg.CacheType); err != nil {
		log.Warn("Cache not available", "cache", cfg.CacheType, "err", err)
	} else if c, err := cacheLoader(ctx); err != nil {
		log.Warn("Failed to initialize cache", "cache", cfg.CacheType, "err", err)
	} else {
		metadataCache = c
	}

	registry, err := conversations.Open(ctx, conversations.OptionsFromConfig(cfg, metadataCache))
	if err != nil {
		return nil, fmt.Errorf("failed to load registry: %w", err)
	}

	router, err := newRouter(cfg, registry)
	if err != nil {
		_ = registry.Close(ctx)
		return nil, err
	}
	mount := mountFor(cfg, registry)

	// Mount management route plugins. If a dedicated management port is configured,
	// run them on a bare gin engine served by the management server. Otherwise,
	// mount them on the main router.
	var closeManagement func(context.Context) error
	if cfg.ManagementListenerEnabled {
		mgmtRouter := gin.New()
		mgmtRouter.Use(gin.Recovery())
		if cfg.ManagementAccessLog {
			mgmtRouter.Use(security.AccessLogMiddleware())
		}
		for _, loader := range registryroute.ManagementRouteLoaders() {
			if err := loader(mgmtRouter, mount); err != nil {
				_ = registry.Close(ctx)
				return nil, fmt.Errorf("failed to load management routes: %w", err)
			}
		}
		// Management listener shares TLS cert/key with the main listener.
		mgmtCfg := cfg.ManagementListener
		mgmtCfg.TLSCertFile = cfg.Listener.TLSCertFile
		mgmtCfg.TLSKeyFile = cfg.Listener.TLSKeyFile
		_, closeManagement, err = startManagementServer(mgmtCfg, mgmtRouter)
		if err != nil {
			_ = registry.Close(ctx)
			return nil, fmt.Errorf("failed to start management server: %w", err)
		}
	} else {
		for _, loader := range registryroute.ManagementRouteLoaders() {
			if err := loader(router, mount); err != nil {
				_ = registry.Close(ctx)
				return nil, fmt.Errorf("failed to load management routes: %w", err)
			}
		}
	}

	running, err := StartSinglePortHTTP(ctx, cfg.Listener, router)
	if err != nil {
		if closeManagement != nil {
			_ = closeManagement(ctx)
		}
		_ = registry.Close(ctx)
		return nil, err
	}

	log.Info("Server listening",
		"port", running.Port,
		"plaintext", cfg.Listener.EnablePlainText,
		"tls", cfg.Listener.EnableTLS,
		"conversations", len(registry.ConversationIDs()),
	)

	routesystem.MarkReady()
	return &Server{
		Config:          cfg,
		Registry:        registry,
		Router:          router,
		Running:         running,
		closeManagement: closeManagement,
	}, nil
}

// newRouter builds the main API engine with its middleware chain and every
// main route plugin mounted.
func newRouter(cfg *config.Config, registry *conversations.Registry) (*gin.Engine, error) {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	if cfg.ManagementAccessLog {
		router.Use(security.AccessLogMiddleware())
	} else {
		router.Use(security.AccessLogMiddleware("/health", "/ready", "/metrics"))
	}
	router.Use(security.MetricsMiddleware())
	router.Use(maxBodySizeMiddleware(cfg.MaxBodySize))
	if cfg.CORSEnabled {
		router.Use(corsMiddleware(cfg.CORSOrigins))
	}

	mount := mountFor(cfg, registry)
	for _, loader := range registryroute.MainRouteLoaders() {
		if err := loader(router, mount); err != nil {
			return nil, fmt.Errorf("failed to load routes: %w", err)
		}
	}
	return router, nil
}

func mountFor(cfg *config.Config, registry *conversations.Registry) registryroute.Mount {
	lookup := func(ctx context.Context, userID string) (bool, error) {
		u, err := registry.GetUser(ctx, userID)
		if err != nil {
			return false, err
		}
		return u.IsAdmin, nil
	}
	return registryroute.Mount{
		Registry: registry,
		Auth:     security.UserIDMiddleware(),
		Admin: []gin.HandlerFunc{
			security.RequireAdminRole(cfg.AdminUsers, lookup),
			security.AdminAuditMiddleware(),
		},
	}
}

package serve

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/bourracho/chat-registry/internal/config"
	registrycache "github.com/bourracho/chat-registry/internal/registry/cache"
	"github.com/charmbracelet/log"
	"github.com/gin-gonic/gin"
	"github.com/urfave/cli/v3"

	// Import all plugins to trigger init() registration
	_ "github.com/bourracho/chat-registry/internal/plugin/cache/memory"
	_ "github.com/bourracho/chat-registry/internal/plugin/cache/noop"
	_ "github.com/bourracho/chat-registry/internal/plugin/cache/redis"
	_ "github.com/bourracho/chat-registry/internal/plugin/route/conversations"
	_ "github.com/bourracho/chat-registry/internal/plugin/route/messages"
	_ "github.com/bourracho/chat-registry/internal/plugin/route/system"
	_ "github.com/bourracho/chat-registry/internal/plugin/route/users"
	_ "github.com/bourracho/chat-registry/internal/plugin/store/file"
	_ "github.com/bourracho/chat-registry/internal/plugin/store/mongo"
)

// Command returns the serve sub-command.
func Command() *cli.Command {
	cfg := config.DefaultConfig()
	var readHeaderTimeoutSecs int = 5
	return &cli.Command{
		Name:  "serve",
		Usage: "Start the chat registry HTTP server",
		Flags: flags(&cfg, &readHeaderTimeoutSecs),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if err := cfg.ApplyEnvCompat(); err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			if err := setLogLevel(cfg.LogLevel); err != nil {
				return err
			}
			cfg.Listener.ReadHeaderTimeout = time.Duration(readHeaderTimeoutSecs) * time.Second
			cfg.ManagementListener.ReadHeaderTimeout = cfg.Listener.ReadHeaderTimeout
			cfg.ManagementListenerEnabled = cmd.IsSet("management-port")
			return run(config.WithContext(ctx, &cfg), cfg)
		},
	}
}

func flags(cfg *config.Config, readHeaderTimeoutSecs *int) []cli.Flag {
	return []cli.Flag{

		// ── Server ────────────────────────────────────────────────
		&cli.StringFlag{
			Name:        "log-level",
			Category:    "Server:",
			Sources:     cli.EnvVars("BOURRACHO_LOG_LEVEL"),
			Destination: &cfg.LogLevel,
			Value:       cfg.LogLevel,
			Usage:       "Log level (debug|info|warn|error)",
		},
		&cli.StringFlag{
			Name:        "tls-cert-file",
			Category:    "Server:",
			Sources:     cli.EnvVars("BOURRACHO_TLS_CERT_FILE"),
			Destination: &cfg.Listener.TLSCertFile,
			Usage:       "TLS certificate file for single-port TLS mode",
		},
		&cli.StringFlag{
			Name:        "tls-key-file",
			Category:    "Server:",
			Sources:     cli.EnvVars("BOURRACHO_TLS_KEY_FILE"),
			Destination: &cfg.Listener.TLSKeyFile,
			Usage:       "TLS private key file for single-port TLS mode",
		},
		&cli.IntFlag{
			Name:        "read-header-timeout-seconds",
			Category:    "Server:",
			Sources:     cli.EnvVars("BOURRACHO_READ_HEADER_TIMEOUT_SECONDS"),
			Destination: readHeaderTimeoutSecs,
			Value:       *readHeaderTimeoutSecs,
			Usage:       "HTTP read header timeout in seconds",
		},
		&cli.IntFlag{
			Name:        "drain-timeout-seconds",
			Category:    "Server:",
			Sources:     cli.EnvVars("BOURRACHO_DRAIN_TIMEOUT_SECONDS"),
			Destination: &cfg.DrainTimeout,
			Value:       cfg.DrainTimeout,
			Usage:       "Graceful shutdown drain timeout in seconds",
		},
		&cli.StringFlag{
			Name:        "temp-dir",
			Category:    "Server:",
			Sources:     cli.EnvVars("BOURRACHO_TEMP_DIR"),
			Destination: &cfg.TempDir,
			Usage:       "Directory for temporary files; defaults to OS temp directory",
		},
		&cli.BoolFlag{
			Name:        "management-access-log",
			Category:    "Server:",
			Sources:     cli.EnvVars("BOURRACHO_MANAGEMENT_ACCESS_LOG"),
			Destination: &cfg.ManagementAccessLog,
			Usage:       "Enable HTTP access logging for management endpoints (/health, /ready, /metrics)",
		},
		&cli.BoolFlag{
			Name:        "cors",
			Category:    "Server:",
			Sources:     cli.EnvVars("BOURRACHO_CORS"),
			Destination: &cfg.CORSEnabled,
			Usage:       "Enable CORS headers",
		},
		&cli.StringFlag{
			Name:        "cors-origins",
			Category:    "Server:",
			Sources:     cli.EnvVars("BOURRACHO_CORS_ALLOWED_ORIGINS"),
			Destination: &cfg.CORSOrigins,
			Usage:       "Comma-separated allowed origins; empty allows any origin",
		},
		&cli.Int64Flag{
			Name:        "max-body-size-bytes",
			Category:    "Server:",
			Sources:     cli.EnvVars("BOURRACHO_MAX_BODY_SIZE_BYTES"),
			Destination: &cfg.MaxBodySize,
			Value:       cfg.MaxBodySize,
			Usage:       "Maximum request body size in bytes",
		},

		// ── Network Listener ──────────────────────────────────────
		&cli.IntFlag{
			Name:        "port",
			Category:    "Network Listener:",
			Sources:     cli.EnvVars("BOURRACHO_PORT"),
			Destination: &cfg.Listener.Port,
			Value:       cfg.Listener.Port,
			Usage:       "HTTP server port",
		},
		&cli.BoolFlag{
			Name:        "plain-text",
			Category:    "Network Listener:",
			Sources:     cli.EnvVars("BOURRACHO_PLAIN_TEXT"),
			Destination: &cfg.Listener.EnablePlainText,
			Value:       cfg.Listener.EnablePlainText,
			Usage:       "Enable plaintext HTTP/1.1 + h2c",
		},
		&cli.BoolFlag{
			Name:        "tls",
			Category:    "Network Listener:",
			Sources:     cli.EnvVars("BOURRACHO_TLS"),
			Destination: &cfg.Listener.EnableTLS,
			Value:       cfg.Listener.EnableTLS,
			Usage:       "Enable TLS HTTP/1.1 + HTTP/2",
		},

		// ── Management Network Listener ───────────────────────────
		&cli.IntFlag{
			Name:        "management-port",
			Category:    "Management Network Listener:",
			Sources:     cli.EnvVars("BOURRACHO_MANAGEMENT_PORT"),
			Destination: &cfg.ManagementListener.Port,
			Value:       cfg.ManagementListener.Port,
			Usage:       "Dedicated port for health and metrics (0 = OS-assigned random port); when unset, served on the main port",
		},
		&cli.BoolFlag{
			Name:        "management-plain-text",
			Category:    "Management Network Listener:",
			Sources:     cli.EnvVars("BOURRACHO_MANAGEMENT_PLAIN_TEXT"),
			Destination: &cfg.ManagementListener.EnablePlainText,
			Value:       cfg.ManagementListener.EnablePlainText,
			Usage:       "Enable plaintext HTTP for management server",
		},
		&cli.BoolFlag{
			Name:        "management-tls",
			Category:    "Management Network Listener:",
			Sources:     cli.EnvVars("BOURRACHO_MANAGEMENT_TLS"),
			Destination: &cfg.ManagementListener.EnableTLS,
			Value:       cfg.ManagementListener.EnableTLS,
			Usage:       "Enable TLS for management server",
		},

		// ── Registry ──────────────────────────────────────────────
		&cli.StringFlag{
			Name:        "persistence-dir",
			Category:    "Registry:",
			Sources:     cli.EnvVars("BOURRACHO_PERSISTENCE_DIR", "PERSISTENCE_DIR"),
			Destination: &cfg.PersistenceDir,
			Value:       cfg.PersistenceDir,
			Usage:       "Root directory of registry indexes and file-backed conversations",
		},
		&cli.StringFlag{
			Name:        "registry-id",
			Category:    "Registry:",
			Sources:     cli.EnvVars("BOURRACHO_REGISTRY_ID"),
			Destination: &cfg.RegistryID,
			Value:       cfg.RegistryID,
			Usage:       "Registry name; selects <persistence-dir>/registry_id=<name>",
		},
		&cli.StringFlag{
			Name:        "store-kind",
			Category:    "Registry:",
			Sources:     cli.EnvVars("BOURRACHO_STORE_KIND"),
			Destination: &cfg.StoreKind,
			Value:       cfg.StoreKind,
			Usage:       "Default backend of new conversations (" + config.StoreKindFile + "|" + config.StoreKindDocumentDB + ")",
		},

		// ── Document Database ─────────────────────────────────────
		&cli.StringFlag{
			Name:        "mongo-url",
			Category:    "Document Database:",
			Sources:     cli.EnvVars("BOURRACHO_MONGO_URL"),
			Destination: &cfg.MongoURL,
			Usage:       "MongoDB connection URL",
		},
		&cli.StringFlag{
			Name:        "mongo-database",
			Category:    "Document Database:",
			Sources:     cli.EnvVars("BOURRACHO_MONGO_DATABASE"),
			Destination: &cfg.MongoDatabase,
			Value:       cfg.MongoDatabase,
			Usage:       "MongoDB database holding conversation collections",
		},
		&cli.StringFlag{
			Name:        "mongo-username",
			Category:    "Document Database:",
			Sources:     cli.EnvVars("BOURRACHO_MONGO_USERNAME"),
			Destination: &cfg.MongoUsername,
			Usage:       "MongoDB username; overrides credentials in the URL",
		},
		&cli.StringFlag{
			Name:        "mongo-password",
			Category:    "Document Database:",
			Sources:     cli.EnvVars("BOURRACHO_MONGO_PASSWORD"),
			Destination: &cfg.MongoPassword,
			Usage:       "MongoDB password",
		},
		&cli.DurationFlag{
			Name:        "mongo-timeout",
			Category:    "Document Database:",
			Sources:     cli.EnvVars("BOURRACHO_MONGO_TIMEOUT"),
			Destination: &cfg.MongoTimeout,
			Value:       cfg.MongoTimeout,
			Usage:       "MongoDB operation and server selection timeout",
		},

		// ── Cache ─────────────────────────────────────────────────
		&cli.StringFlag{
			Name:        "cache-kind",
			Category:    "Cache:",
			Sources:     cli.EnvVars("BOURRACHO_CACHE_KIND"),
			Destination: &cfg.CacheType,
			Value:       cfg.CacheType,
			Usage:       "Metadata cache backend (" + strings.Join(registrycache.Names(), "|") + ")",
		},
		&cli.StringFlag{
			Name:        "redis-url",
			Category:    "Cache:",
			Sources:     cli.EnvVars("BOURRACHO_REDIS_URL"),
			Destination: &cfg.RedisURL,
			Usage:       "Redis connection URL",
		},
		&cli.DurationFlag{
			Name:        "cache-ttl",
			Category:    "Cache:",
			Sources:     cli.EnvVars("BOURRACHO_CACHE_TTL"),
			Destination: &cfg.CacheTTL,
			Value:       cfg.CacheTTL,
			Usage:       "Time-to-live of cached conversation metadata",
		},
		&cli.Int64Flag{
			Name:        "cache-max-entries",
			Category:    "Cache:",
			Sources:     cli.EnvVars("BOURRACHO_CACHE_MAX_ENTRIES"),
			Destination: &cfg.CacheMaxEntries,
			Value:       cfg.CacheMaxEntries,
			Usage:       "Maximum entries held by the memory cache",
		},

		// ── Authorization ─────────────────────────────────────────
		&cli.StringFlag{
			Name:        "admin-users",
			Category:    "Authorization:",
			Sources:     cli.EnvVars("BOURRACHO_ADMIN_USERS"),
			Destination: &cfg.AdminUsers,
			Usage:       "Comma-separated user IDs with admin permissions",
		},

		// ── Monitoring ────────────────────────────────────────────
		&cli.StringFlag{
			Name:        "metrics-labels",
			Category:    "Monitoring:",
			Sources:     cli.EnvVars("BOURRACHO_METRICS_LABELS"),
			Destination: &cfg.MetricsLabels,
			Value:       cfg.MetricsLabels,
			Usage:       "Comma-separated key=value pairs added as constant labels to all Prometheus metrics. Supports ${VAR} expansion.",
		},
	}
}

func run(ctx context.Context, cfg config.Config) error {
	srv, err := StartServer(ctx, &cfg)
	if err != nil {
		return err
	}

	<-ctx.Done()
	log.Info("Shutting down...")

	drainCtx, drainCancel := context.WithTimeout(context.Background(), time.Duration(cfg.DrainTimeout)*time.Second)
	defer drainCancel()
	if err := srv.Shutdown(drainCtx); err != nil {
		log.Error("Shutdown error", "err", err)
	}
	log.Info("Server stopped")
	return nil
}

func setLogLevel(level string) error {
	parsed, err := log.ParseLevel(strings.TrimSpace(level))
	if err != nil {
		return fmt.Errorf("invalid --log-level %q: %w", level, err)
	}
	log.SetLevel(parsed)
	return nil
}

func maxBodySizeMiddleware(maxBodySize int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if maxBodySize > 0 && c.Request.Body != nil {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBodySize)
		}
		c.Next()
	}
}

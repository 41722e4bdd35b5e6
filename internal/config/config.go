package config

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// ListenerConfig holds the network/TLS settings for a single listener (main or management).
type ListenerConfig struct {
	Port              int
	EnablePlainText   bool
	EnableTLS         bool
	TLSCertFile       string
	TLSKeyFile        string
	ReadHeaderTimeout time.Duration
}

type contextKey struct{}

// WithContext returns a new context carrying the given Config.
func WithContext(ctx context.Context, cfg *Config) context.Context {
	return context.WithValue(ctx, contextKey{}, cfg)
}

// FromContext retrieves the Config from the context.
func FromContext(ctx context.Context) *Config {
	cfg, _ := ctx.Value(contextKey{}).(*Config)
	return cfg
}

const (
	StoreKindFile       = "file"
	StoreKindDocumentDB = "document_db"
)

// Config holds all configuration for the chat registry.
type Config struct {
	// Persistence root. The registry index and file-backed conversations
	// live under <PersistenceDir>/registry_id=<RegistryID>.
	PersistenceDir string
	RegistryID     string

	// StoreKind is the backend used for conversations created without an
	// explicit store descriptor: "file" or "document_db".
	StoreKind string

	// Document database
	MongoURL      string
	MongoDatabase string
	MongoUsername string
	MongoPassword string
	MongoTimeout  time.Duration

	// Metadata cache backend type
	CacheType string // "none", "memory" or "redis"
	RedisURL  string
	CacheTTL  time.Duration
	// CacheMaxEntries bounds the in-process cache.
	CacheMaxEntries int64

	// MetricsLabels is a comma-separated list of key=value pairs added as
	// constant labels to all Prometheus metrics. Values support ${VAR} expansion.
	// Defaults to "service=bourracho".
	MetricsLabels string

	// Server
	Listener           ListenerConfig
	ManagementListener ListenerConfig
	// ManagementListenerEnabled is true when --management-port (or BOURRACHO_MANAGEMENT_PORT)
	// was explicitly provided. When false, management endpoints are served on the main port.
	ManagementListenerEnabled bool
	// ManagementAccessLog enables HTTP access logging for management endpoints (/health, /ready, /metrics).
	ManagementAccessLog bool
	CORSEnabled         bool
	CORSOrigins         string

	// AdminUsers is a comma-separated list of user ids allowed to call admin
	// endpoints regardless of their directory flag.
	AdminUsers string

	// Body size limit (bytes)
	MaxBodySize int64

	// Temporary file directory. Empty uses platform default temp directory.
	TempDir string

	// Graceful shutdown drain timeout (seconds)
	DrainTimeout int

	LogLevel string
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		PersistenceDir:  "./persistence",
		RegistryID:      "default",
		StoreKind:       StoreKindFile,
		MongoDatabase:   "bourracho",
		MongoTimeout:    10 * time.Second,
		CacheType:       "none",
		CacheTTL:        10 * time.Minute,
		CacheMaxEntries: 10_000,
		MetricsLabels:   "service=bourracho",
		Listener: ListenerConfig{
			Port:              8080,
			EnablePlainText:   true,
			EnableTLS:         true,
			ReadHeaderTimeout: 5 * time.Second,
		},
		ManagementListener: ListenerConfig{
			EnablePlainText: true,
			EnableTLS:       true,
		},
		MaxBodySize:  1024 * 1024,
		DrainTimeout: 30,
		LogLevel:     "info",
	}
}

// RegistryDir is the directory holding this registry's index and its
// file-backed conversations.
func (c *Config) RegistryDir() string {
	return filepath.Join(c.PersistenceDir, "registry_id="+c.RegistryID)
}

// ResolvedTempDir returns the configured temp directory or the platform default.
func (c *Config) ResolvedTempDir() string {
	if c == nil {
		return os.TempDir()
	}
	if dir := strings.TrimSpace(c.TempDir); dir != "" {
		return dir
	}
	return os.TempDir()
}

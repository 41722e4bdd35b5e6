package serve

import (
	"context"
	"fmt"
	"net"
	"net/http"

	"github.com/bourracho/chat-registry/internal/config"
	"github.com/charmbracelet/log"
)

// startManagementServer serves the management endpoints (health, readiness,
// metrics) on their own port. Returns the bound address and a shutdown function.
func startManagementServer(cfg config.ListenerConfig, handler http.Handler) (net.Addr, func(context.Context) error, error) {
	if !cfg.EnablePlainText && !cfg.EnableTLS {
		cfg.EnablePlainText = true
	}
	running, err := StartSinglePortHTTP(context.Background(), cfg, handler)
	if err != nil {
		return nil, nil, fmt.Errorf("management listener: %w", err)
	}
	log.Info("Management server listening", "addr", running.Addr)
	return running.Addr, running.Close, nil
}

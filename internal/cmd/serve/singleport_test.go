package serve

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/bourracho/chat-registry/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSinglePortServesPlainAndTLS(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, r.Proto)
	})
	running, err := StartSinglePortHTTP(context.Background(), config.ListenerConfig{
		EnablePlainText: true,
		EnableTLS:       true,
	}, handler)
	require.NoError(t, err)
	t.Cleanup(func() { _ = running.Close(context.Background()) })

	get := func(client *http.Client, scheme string) string {
		resp, err := client.Get(fmt.Sprintf("%s://127.0.0.1:%d/", scheme, running.Port))
		require.NoError(t, err)
		defer resp.Body.Close()
		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		return string(body)
	}

	plain := &http.Client{Timeout: 5 * time.Second}
	assert.Equal(t, "HTTP/1.1", get(plain, "http"))

	secure := &http.Client{
		Timeout: 5 * time.Second,
		Transport: &http.Transport{
			TLSClientConfig:   &tls.Config{InsecureSkipVerify: true}, //nolint:gosec // self-signed test certificate
			ForceAttemptHTTP2: true,
		},
	}
	assert.Equal(t, "HTTP/2.0", get(secure, "https"))
}

func TestSinglePortRequiresAMode(t *testing.T) {
	_, err := StartSinglePortHTTP(context.Background(), config.ListenerConfig{}, http.NotFoundHandler())
	require.Error(t, err)
}

func TestLoadServerCertificateRequiresBothFiles(t *testing.T) {
	_, err := loadServerCertificate("cert.pem", "")
	require.Error(t, err)

	cert, err := loadServerCertificate("", "")
	require.NoError(t, err)
	require.NotNil(t, cert.Leaf)
	assert.Contains(t, cert.Leaf.DNSNames, "localhost")
}

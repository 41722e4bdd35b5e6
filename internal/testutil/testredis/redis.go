package testredis

import (
	"context"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// URLEnv points tests at an existing Redis instead of a container.
const URLEnv = "BOURRACHO_TEST_REDIS_URL"

var (
	once   sync.Once
	shared string
	errRun error
)

// StartRedis returns a redis:// URL shared by every test in the package.
// The container is started on first use and removed by the testcontainers
// reaper when the test binary exits. Tests calling it are skipped under -short.
func StartRedis(tb testing.TB) string {
	tb.Helper()
	if url := os.Getenv(URLEnv); url != "" {
		return url
	}
	if testing.Short() {
		tb.Skip("skipping Redis container test in short mode")
	}

	once.Do(func() {
		shared, errRun = run(context.Background())
	})
	if errRun != nil {
		tb.Fatalf("start redis container: %v", errRun)
	}
	return shared
}

func run(ctx context.Context) (string, error) {
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForListeningPort("6379/tcp").WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		return "", err
	}
	host, err := container.Host(ctx)
	if err != nil {
		return "", fmt.Errorf("get redis host: %w", err)
	}
	mappedPort, err := container.MappedPort(ctx, "6379")
	if err != nil {
		return "", fmt.Errorf("get redis mapped port: %w", err)
	}
	return fmt.Sprintf("redis://%s:%s", host, mappedPort.Port()), nil
}

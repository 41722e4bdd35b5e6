package testmongo

import (
	"context"
	"os"
	"sync"
	"testing"

	"github.com/testcontainers/testcontainers-go/modules/mongodb"
)

// URLEnv points tests at an existing MongoDB instead of a container.
const URLEnv = "BOURRACHO_TEST_MONGO_URL"

var (
	once   sync.Once
	shared string
	errRun error
)

// StartMongo returns the URI of a MongoDB shared by every test in the
// package. The container is started on first use and removed by the
// testcontainers reaper when the test binary exits. Tests calling it are
// skipped under -short.
func StartMongo(tb testing.TB) string {
	tb.Helper()
	if uri := os.Getenv(URLEnv); uri != "" {
		return uri
	}
	if testing.Short() {
		tb.Skip("skipping MongoDB container test in short mode")
	}

	once.Do(func() {
		ctx := context.Background()
		container, err := mongodb.Run(ctx, "mongo:7")
		if err != nil {
			errRun = err
			return
		}
		shared, errRun = container.ConnectionString(ctx)
	})
	if errRun != nil {
		tb.Fatalf("start mongodb container: %v", errRun)
	}
	return shared
}

package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestApplyEnvCompat(t *testing.T) {
	t.Setenv("MONGO_DB_URL", "mongodb://db.example:27017")
	t.Setenv("MONGO_DB_USERNAME", "bourracho")
	t.Setenv("MONGO_DB_PASSWORD", "secret")
	t.Setenv("MONGO_DB_NAME", "chat")
	t.Setenv("BOURRACHO_CACHE_TTL_ISO", "PT2H")
	t.Setenv("BOURRACHO_MAX_BODY_SIZE", "2M")
	t.Setenv("BOURRACHO_CORS_ENABLED", "true")

	cfg := DefaultConfig()
	err := cfg.ApplyEnvCompat()
	require.NoError(t, err)

	require.Equal(t, "mongodb://db.example:27017", cfg.MongoURL)
	require.Equal(t, "bourracho", cfg.MongoUsername)
	require.Equal(t, "secret", cfg.MongoPassword)
	require.Equal(t, "chat", cfg.MongoDatabase)
	require.Equal(t, 2*time.Hour, cfg.CacheTTL)
	require.Equal(t, int64(2*1024*1024), cfg.MaxBodySize)
	require.True(t, cfg.CORSEnabled)
}

func TestApplyEnvCompat_FlagValuesWin(t *testing.T) {
	t.Setenv("MONGO_DB_URL", "mongodb://legacy:27017")
	t.Setenv("BOURRACHO_MONGO_DATABASE", "explicit")
	t.Setenv("MONGO_DB_NAME", "legacy")

	cfg := DefaultConfig()
	cfg.MongoURL = "mongodb://flag:27017"
	cfg.MongoDatabase = "explicit"
	require.NoError(t, cfg.ApplyEnvCompat())

	require.Equal(t, "mongodb://flag:27017", cfg.MongoURL)
	require.Equal(t, "explicit", cfg.MongoDatabase)
}

func TestApplyEnvCompat_InvalidSize(t *testing.T) {
	t.Setenv("BOURRACHO_MAX_BODY_SIZE", "lots")
	cfg := DefaultConfig()
	require.Error(t, cfg.ApplyEnvCompat())
}

func TestValidate(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	cfg.StoreKind = StoreKindDocumentDB
	require.Error(t, cfg.Validate())

	cfg.MongoURL = "mongodb://localhost:27017"
	require.NoError(t, cfg.Validate())

	cfg.StoreKind = "sqlite"
	require.Error(t, cfg.Validate())
}

func TestParseDuration(t *testing.T) {
	d, err := parseDuration("PT1H30M")
	require.NoError(t, err)
	require.Equal(t, 90*time.Minute, d)

	d, err = parseDuration("45s")
	require.NoError(t, err)
	require.Equal(t, 45*time.Second, d)

	_, err = parseDuration("P1D")
	require.Error(t, err)
}

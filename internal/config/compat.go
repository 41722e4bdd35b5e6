package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// ApplyEnvCompat reads environment variables that are not represented by
// dedicated CLI flags: the MONGO_DB_* variables of earlier deployments and
// the human-friendly size/duration forms.
func (c *Config) ApplyEnvCompat() error {
	if c == nil {
		return nil
	}

	// BOURRACHO_* flags win; the legacy names only fill what is still unset.
	fillStringEnv("MONGO_DB_URL", &c.MongoURL)
	fillStringEnv("MONGO_DB_USERNAME", &c.MongoUsername)
	fillStringEnv("MONGO_DB_PASSWORD", &c.MongoPassword)
	if os.Getenv("BOURRACHO_MONGO_DATABASE") == "" {
		applyStringEnv("MONGO_DB_NAME", &c.MongoDatabase)
	}

	var err error
	if err = applyDurationEnv("BOURRACHO_CACHE_TTL_ISO", &c.CacheTTL); err != nil {
		return err
	}
	if raw := strings.TrimSpace(os.Getenv("BOURRACHO_MAX_BODY_SIZE")); raw != "" {
		size, parseErr := parseMemorySize(raw)
		if parseErr != nil {
			return fmt.Errorf("invalid BOURRACHO_MAX_BODY_SIZE: %w", parseErr)
		}
		c.MaxBodySize = size
	}
	if err = applyBoolEnv("BOURRACHO_CORS_ENABLED", &c.CORSEnabled); err != nil {
		return err
	}
	applyStringEnv("BOURRACHO_CORS_ORIGINS", &c.CORSOrigins)
	return nil
}

// Validate checks values that flags cannot constrain on their own.
func (c *Config) Validate() error {
	switch c.StoreKind {
	case StoreKindFile:
	case StoreKindDocumentDB:
		if strings.TrimSpace(c.MongoURL) == "" {
			return fmt.Errorf("--mongo-url (or MONGO_DB_URL) is required when --store-kind=%s", StoreKindDocumentDB)
		}
	default:
		return fmt.Errorf("invalid --store-kind %q: must be %s or %s", c.StoreKind, StoreKindFile, StoreKindDocumentDB)
	}
	if strings.TrimSpace(c.RegistryID) == "" {
		return fmt.Errorf("--registry-id must not be empty")
	}
	return nil
}

func fillStringEnv(key string, dest *string) {
	if strings.TrimSpace(*dest) != "" {
		return
	}
	applyStringEnv(key, dest)
}

func applyStringEnv(key string, dest *string) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return
	}
	*dest = raw
}

func applyBoolEnv(key string, dest *bool) error {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dest = v
	return nil
}

func applyDurationEnv(key string, dest *time.Duration) error {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return nil
	}
	v, err := parseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dest = v
	return nil
}

func parseDuration(raw string) (time.Duration, error) {
	v := strings.TrimSpace(strings.ToUpper(raw))
	if v == "" {
		return 0, fmt.Errorf("empty duration")
	}

	// Go duration first (e.g. 30s, 5m).
	if d, err := time.ParseDuration(strings.ToLower(v)); err == nil {
		return d, nil
	}

	// Minimal ISO-8601 support: PT#H#M#S
	if !strings.HasPrefix(v, "PT") {
		return 0, fmt.Errorf("unsupported format %q", raw)
	}
	rest := strings.TrimPrefix(v, "PT")
	if rest == "" {
		return 0, fmt.Errorf("invalid format %q", raw)
	}
	total := time.Duration(0)
	for len(rest) > 0 {
		i := 0
		for i < len(rest) && rest[i] >= '0' && rest[i] <= '9' {
			i++
		}
		if i == 0 || i >= len(rest) {
			return 0, fmt.Errorf("invalid format %q", raw)
		}
		n, err := strconv.Atoi(rest[:i])
		if err != nil {
			return 0, fmt.Errorf("invalid format %q", raw)
		}
		switch rest[i] {
		case 'H':
			total += time.Duration(n) * time.Hour
		case 'M':
			total += time.Duration(n) * time.Minute
		case 'S':
			total += time.Duration(n) * time.Second
		default:
			return 0, fmt.Errorf("invalid format %q", raw)
		}
		rest = rest[i+1:]
	}
	if total <= 0 {
		return 0, fmt.Errorf("duration must be positive")
	}
	return total, nil
}

func parseMemorySize(raw string) (int64, error) {
	v := strings.TrimSpace(strings.ToUpper(raw))
	if v == "" {
		return 0, fmt.Errorf("empty size")
	}
	multiplier := int64(1)
	switch {
	case strings.HasSuffix(v, "KB"), strings.HasSuffix(v, "K"):
		multiplier = 1024
		v = strings.TrimSuffix(strings.TrimSuffix(v, "KB"), "K")
	case strings.HasSuffix(v, "MB"), strings.HasSuffix(v, "M"):
		multiplier = 1024 * 1024
		v = strings.TrimSuffix(strings.TrimSuffix(v, "MB"), "M")
	case strings.HasSuffix(v, "GB"), strings.HasSuffix(v, "G"):
		multiplier = 1024 * 1024 * 1024
		v = strings.TrimSuffix(strings.TrimSuffix(v, "GB"), "G")
	case strings.HasSuffix(v, "B"):
		v = strings.TrimSuffix(v, "B")
	}
	n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid size %q", raw)
	}
	return n * multiplier, nil
}

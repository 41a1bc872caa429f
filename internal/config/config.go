// Package config reads runtime configuration from environment variables and
// the secret resolver, exposing it as one typed struct.
package config

import (
	"context"
	"os"
	"strconv"
	"time"

	"github.com/havenportal/drivesync/internal/secret"
)

// Config is the complete runtime configuration.
type Config struct {
	Addr        string
	DatabaseDSN string

	// DevMode swaps Postgres and Drive for in-memory backends.
	DevMode bool

	JWTSecret          string
	TokenCryptoSecret  string
	GoogleClientID     string
	GoogleClientSecret string
	GoogleRedirectURL  string

	// BaseFolderName is the portal's root folder on the connected Drive.
	BaseFolderName string

	// Ceilings for the zip-export path, which materializes bytes in memory.
	ExportMaxFiles int
	ExportMaxBytes int64

	HTTPReadTimeout  time.Duration
	HTTPWriteTimeout time.Duration
}

const (
	defaultAddr           = ":8080"
	defaultBaseFolder     = "Client Portal"
	defaultExportMaxFiles = 100
	defaultExportMaxBytes = 512 << 20 // 512 MiB
	defaultReadTimeout    = 30 * time.Second
	// Downloads stream through the server; the write timeout must cover a
	// full large-file transfer.
	defaultWriteTimeout = 10 * time.Minute
)

// Load builds a Config. Secrets come through the resolver so deployments can
// decide where they live; everything else is plain environment variables.
func Load(ctx context.Context, resolver secret.Resolver) (*Config, error) {
	cfg := &Config{
		Addr:              readEnv("DRIVESYNC_ADDR", defaultAddr),
		DatabaseDSN:       os.Getenv("DATABASE_DSN"),
		DevMode:           os.Getenv("DEV_MODE") == "true",
		GoogleClientID:    os.Getenv("GOOGLE_CLIENT_ID"),
		GoogleRedirectURL: os.Getenv("GOOGLE_REDIRECT_URL"),
		BaseFolderName:    readEnv("DRIVESYNC_BASE_FOLDER", defaultBaseFolder),
		ExportMaxFiles:    readEnvInt("DRIVESYNC_EXPORT_MAX_FILES", defaultExportMaxFiles),
		ExportMaxBytes:    readEnvInt64("DRIVESYNC_EXPORT_MAX_BYTES", defaultExportMaxBytes),
		HTTPReadTimeout:   readEnvDuration("DRIVESYNC_READ_TIMEOUT", defaultReadTimeout),
		HTTPWriteTimeout:  readEnvDuration("DRIVESYNC_WRITE_TIMEOUT", defaultWriteTimeout),
	}

	var err error
	if cfg.JWTSecret, err = resolver.GetSecret(ctx, "/drivesync/jwt-secret"); err != nil {
		if !cfg.DevMode {
			return nil, err
		}
		cfg.JWTSecret = "dev-secret"
	}
	if cfg.TokenCryptoSecret, err = resolver.GetSecret(ctx, "/drivesync/token-crypto-secret"); err != nil {
		if !cfg.DevMode {
			return nil, err
		}
		cfg.TokenCryptoSecret = "dev-crypto-secret"
	}
	if cfg.GoogleClientSecret, err = resolver.GetSecret(ctx, "/drivesync/google-client-secret"); err != nil && !cfg.DevMode {
		return nil, err
	}

	return cfg, nil
}

func readEnv(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}

func readEnvInt(key string, def int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			return parsed
		}
	}
	return def
}

func readEnvInt64(key string, def int64) int64 {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if parsed, err := strconv.ParseInt(v, 10, 64); err == nil {
			return parsed
		}
	}
	return def
}

func readEnvDuration(key string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if parsed, err := time.ParseDuration(v); err == nil {
			return parsed
		}
	}
	return def
}

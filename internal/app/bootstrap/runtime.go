// Package bootstrap wires optional infrastructure (Redis, Postgres)
// from configuration, degrading to nil when a backing service is absent
// so callers can run with reduced functionality.
package bootstrap

import (
	"context"
	"crypto/tls"
	"database/sql"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/redis/go-redis/v9"

	appconfig "github.com/docsentra/consult-platform/internal/config"
	"github.com/docsentra/consult-platform/pkg/logging"
)

// BuildRedisClient returns a configured Redis client or nil when disabled.
// When verify is true, a ping is issued and failures return nil.
func BuildRedisClient(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger, verify bool) *redis.Client {
	if cfg == nil || strings.TrimSpace(cfg.RedisAddr) == "" {
		return nil
	}
	if logger == nil {
		logger = logging.Default()
	}
	if ctx == nil {
		ctx = context.Background()
	}

	redisOptions := &redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	}
	if cfg.RedisTLS {
		redisOptions.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	client := redis.NewClient(redisOptions)
	if !verify {
		return client
	}
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn("redis not available", "error", err)
		return nil
	}
	return client
}

// BuildSQLDB opens the audit database, or returns nil when no
// DATABASE_URL is configured or the database is unreachable.
func BuildSQLDB(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) *sql.DB {
	if cfg == nil || strings.TrimSpace(cfg.DatabaseURL) == "" {
		return nil
	}
	if logger == nil {
		logger = logging.Default()
	}
	if ctx == nil {
		ctx = context.Background()
	}

	db, err := sql.Open("pgx", cfg.DatabaseURL)
	if err != nil {
		logger.Warn("failed to open database", "error", err)
		return nil
	}
	if err := db.PingContext(ctx); err != nil {
		logger.Warn("database not available", "error", err)
		_ = db.Close()
		return nil
	}
	return db
}

// BuildPgxPool opens the pgx pool used by the stats queries, or returns
// nil when Postgres is not configured or unreachable.
func BuildPgxPool(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) *pgxpool.Pool {
	if cfg == nil || strings.TrimSpace(cfg.DatabaseURL) == "" {
		return nil
	}
	if logger == nil {
		logger = logging.Default()
	}
	if ctx == nil {
		ctx = context.Background()
	}

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Warn("failed to open pgx pool", "error", err)
		return nil
	}
	if err := pool.Ping(ctx); err != nil {
		logger.Warn("pgx pool not available", "error", err)
		pool.Close()
		return nil
	}
	return pool
}

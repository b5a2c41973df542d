package db

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	zerolog "github.com/jackc/pgx-zerolog"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/tracelog"
	"github.com/rs/zerolog/log"

	"github.com/LexiconIndonesia/career-crawler-service/common/config"
	"github.com/LexiconIndonesia/career-crawler-service/common/redis"
)

//go:embed schema.sql
var schema string

// logsTable is never traced; see FilteredTracer.
const logsTable = "crawler_logs"

// DB provides access to the database
type DB struct {
	Pool    *pgxpool.Pool
	Queries *Queries
	Redis   *redis.RedisClient
}

// New creates a new DB instance
func New(pool *pgxpool.Pool, redis *redis.RedisClient) (*DB, error) {
	if pool == nil {
		return nil, errors.New("cannot use nil database pool")
	}
	return &DB{
		Pool:    pool,
		Queries: NewQueries(pool),
		Redis:   redis,
	}, nil
}

// Close closes the database and Redis connections
func (db *DB) Close() {
	if db.Pool != nil {
		db.Pool.Close()
	}
	if db.Redis != nil {
		if err := db.Redis.Close(); err != nil {
			log.Warn().Err(err).Msg("Closing Redis client")
		}
	}
}

// Ping checks if the database connection is alive
func (db *DB) Ping(ctx context.Context) error {
	return db.Pool.Ping(ctx)
}

// Migrate applies the embedded schema. Every statement is idempotent.
func (db *DB) Migrate(ctx context.Context) error {
	if _, err := db.Pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("applying schema: %w", err)
	}
	return nil
}

// SetupDatabase connects Postgres and Redis and applies the schema.
func SetupDatabase(ctx context.Context, cfg config.Config) (*DB, error) {
	config, err := pgxpool.ParseConfig(cfg.PgSql.ConnStr())
	if err != nil {
		return nil, fmt.Errorf("parsing database config: %w", err)
	}

	config.MaxConns = int32(max(cfg.Crawl.SessionConcurrency*2, 4))
	config.MinConns = 1
	config.MaxConnLifetime = 30 * time.Minute
	config.MaxConnIdleTime = 5 * time.Minute
	config.HealthCheckPeriod = 1 * time.Minute

	logger := zerolog.NewLogger(log.Logger)
	config.ConnConfig.Tracer = NewFilteredTracer(&tracelog.TraceLog{
		Logger:   logger,
		LogLevel: tracelog.LogLevelInfo,
	}, logsTable)

	pgsqlClient, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	if err := pgsqlClient.Ping(ctx); err != nil {
		pgsqlClient.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	redisClient, err := redis.NewClient(cfg)
	if err != nil {
		pgsqlClient.Close()
		return nil, fmt.Errorf("creating Redis client: %w", err)
	}

	dbConn, err := New(pgsqlClient, redisClient)
	if err != nil {
		return nil, fmt.Errorf("creating DB handler: %w", err)
	}
	if err := dbConn.Migrate(ctx); err != nil {
		dbConn.Close()
		return nil, err
	}
	return dbConn, nil
}

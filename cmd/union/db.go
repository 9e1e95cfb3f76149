package main

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/goliatone/go-union"
	"github.com/goliatone/go-union/config"
	"github.com/goliatone/go-union/repository"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

// database bundles the handles over one connection pool. pool is only set
// for Postgres.
type database struct {
	pool *pgxpool.Pool
	sql  *sql.DB
	bun  *bun.DB
}

func openDatabase(ctx context.Context, cfg *config.Config, logger union.Logger) (*database, error) {
	db := &database{}

	switch cfg.GetDialect() {
	case repository.DialectPostgres:
		poolConfig, err := pgxpool.ParseConfig(cfg.GetDSN())
		if err != nil {
			return nil, fmt.Errorf("failed to parse database URL: %w", err)
		}

		poolConfig.MaxConns = int32(cfg.Database.MaxOpenConns)
		if poolConfig.MaxConns <= 0 {
			poolConfig.MaxConns = 25
		}
		poolConfig.MaxConnLifetime = cfg.Database.ConnMaxLifetime
		if poolConfig.MaxConnLifetime == 0 {
			poolConfig.MaxConnLifetime = time.Hour
		}

		pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
		if err != nil {
			return nil, fmt.Errorf("failed to create connection pool: %w", err)
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return nil, fmt.Errorf("failed to ping database: %w", err)
		}

		db.pool = pool
		db.sql = stdlib.OpenDBFromPool(pool)
		db.bun = bun.NewDB(db.sql, pgdialect.New())

	case repository.DialectSQLite:
		sqldb, err := sql.Open(sqliteshim.ShimName, cfg.GetDSN())
		if err != nil {
			return nil, fmt.Errorf("failed to open sqlite database: %w", err)
		}
		sqldb.SetMaxOpenConns(cfg.Database.MaxOpenConns)
		sqldb.SetMaxIdleConns(cfg.Database.MaxIdleConns)
		sqldb.SetConnMaxLifetime(cfg.Database.ConnMaxLifetime)

		db.sql = sqldb
		db.bun = bun.NewDB(sqldb, sqlitedialect.New())

	default:
		return nil, fmt.Errorf("unsupported database dialect %q", cfg.GetDialect())
	}

	if cfg.Database.Debug {
		db.bun.AddQueryHook(queryLogger{logger: logger})
	}

	logger.Info("database ready", "dialect", cfg.GetDialect())
	return db, nil
}

// dedicatedConn takes a connection out of the pool for the lifetime of a
// LISTEN session.
func (d *database) dedicatedConn(ctx context.Context) (*pgx.Conn, error) {
	conn, err := d.pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	return conn.Hijack(), nil
}

func (d *database) Close() {
	if d.bun != nil {
		_ = d.bun.Close()
	}
	if d.pool != nil {
		d.pool.Close()
	}
}

// queryLogger logs every statement bun runs.
type queryLogger struct {
	logger union.Logger
}

func (q queryLogger) BeforeQuery(ctx context.Context, _ *bun.QueryEvent) context.Context {
	return ctx
}

func (q queryLogger) AfterQuery(_ context.Context, event *bun.QueryEvent) {
	args := []any{"query", event.Query, "duration", time.Since(event.StartTime)}
	if event.Err != nil && event.Err != sql.ErrNoRows {
		q.logger.Warn("query failed", append(args, "error", event.Err)...)
		return
	}
	q.logger.Debug("query", args...)
}

/*
Package postgres opens the PostgreSQL backend.

DRIVERS:
  postgres: github.com/lib/pq through database/sql
  pgx:      github.com/jackc/pgx/v5 pool, exposed as *sql.DB via pgx/stdlib

Both return the same sqlstore.Store; only connection handling differs.

USAGE:
  st, err := postgres.New(ctx, postgres.Config{Driver: "pgx", DSN: dsn})
*/
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	_ "github.com/lib/pq"
	"github.com/warp/splitledger/store/sqlstore"
)

const (
	DriverPQ  = "postgres"
	DriverPGX = "pgx"
)

// Config holds connection settings.
type Config struct {
	Driver          string
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

func (c Config) withDefaults() Config {
	if c.Driver == "" {
		c.Driver = DriverPQ
	}
	if c.MaxOpenConns == 0 {
		c.MaxOpenConns = 25
	}
	if c.MaxIdleConns == 0 {
		c.MaxIdleConns = 5
	}
	if c.ConnMaxLifetime == 0 {
		c.ConnMaxLifetime = 5 * time.Minute
	}
	return c
}

// New connects, pings and migrates.
func New(ctx context.Context, cfg Config) (*sqlstore.Store, error) {
	db, err := Open(ctx, cfg)
	if err != nil {
		return nil, err
	}

	store := sqlstore.New(db, sqlstore.Postgres)
	if err := store.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

// Open returns a pinged connection pool without migrating.
func Open(ctx context.Context, cfg Config) (*sql.DB, error) {
	cfg = cfg.withDefaults()

	var db *sql.DB
	switch cfg.Driver {
	case DriverPQ:
		var err error
		db, err = sql.Open("postgres", cfg.DSN)
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}
		db.SetMaxOpenConns(cfg.MaxOpenConns)
		db.SetMaxIdleConns(cfg.MaxIdleConns)
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	case DriverPGX:
		poolConf, err := pgxpool.ParseConfig(cfg.DSN)
		if err != nil {
			return nil, fmt.Errorf("unable to parse PostgreSQL config: %w", err)
		}
		poolConf.MaxConns = int32(cfg.MaxOpenConns)
		poolConf.MaxConnLifetime = cfg.ConnMaxLifetime
		poolConf.HealthCheckPeriod = 15 * time.Second
		poolConf.ConnConfig.ConnectTimeout = 5 * time.Second

		pool, err := pgxpool.NewWithConfig(ctx, poolConf)
		if err != nil {
			return nil, fmt.Errorf("unable to create PostgreSQL connection pool: %w", err)
		}
		db = stdlib.OpenDBFromPool(pool)

	default:
		return nil, fmt.Errorf("unknown postgres driver %q", cfg.Driver)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return db, nil
}

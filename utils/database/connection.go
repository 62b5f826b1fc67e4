// Copyright 2026 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package database

import (
	"context"
	"database/sql"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/lib/pq"
)

// ConnectionConfig holds database connection configuration.
type ConnectionConfig struct {
	URL         string
	MaxConns    int
	MaxIdleTime int // seconds
}

// NewConnection creates and configures a new database/sql connection using
// the lib/pq driver.
func NewConnection(ctx context.Context, config ConnectionConfig) (*sql.DB, error) {
	if config.URL == "" {
		return nil, errors.New("database URL is required")
	}

	db, err := sql.Open("postgres", config.URL)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open database connection")
	}

	// Configure connection pool
	if config.MaxConns > 0 {
		db.SetMaxOpenConns(config.MaxConns)
		db.SetMaxIdleConns(config.MaxConns / 2)
	}

	if config.MaxIdleTime > 0 {
		db.SetConnMaxIdleTime(time.Duration(config.MaxIdleTime) * time.Second)
	}

	// Test the connection
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "failed to connect to database")
	}

	return db, nil
}

// NewPool creates a pgx connection pool with the same settings.
func NewPool(ctx context.Context, config ConnectionConfig) (*pgxpool.Pool, error) {
	if config.URL == "" {
		return nil, errors.New("database URL is required")
	}

	poolCfg, err := pgxpool.ParseConfig(config.URL)
	if err != nil {
		return nil, errors.Wrap(err, "failed to parse database URL")
	}
	if config.MaxConns > 0 {
		poolCfg.MaxConns = int32(config.MaxConns)
	}
	if config.MaxIdleTime > 0 {
		poolCfg.MaxConnIdleTime = time.Duration(config.MaxIdleTime) * time.Second
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create connection pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, errors.Wrap(err, "failed to connect to database")
	}
	return pool, nil
}

// LockID derives an advisory lock id from a name, so that every instance
// creating the same table serializes on the same lock.
func LockID(s string) int64 {
	var hash int64 = 5381
	for _, c := range s {
		hash = ((hash << 5) + hash) + int64(c)
	}
	// Ensure positive value
	if hash < 0 {
		hash = -hash
	}
	return hash
}

// Package db opens the shared mysql pool for the repositories.
package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
)

type Config struct {
	DSN          string
	MaxOpenConns int
	MaxIdleConns int
	ConnMaxLife  time.Duration
	ConnMaxIdle  time.Duration
	PingTimeout  time.Duration
}

func (c Config) withDefaults() Config {
	def := func(n *int, v int) {
		if *n <= 0 {
			*n = v
		}
	}
	durDef := func(d *time.Duration, v time.Duration) {
		if *d == 0 {
			*d = v
		}
	}
	def(&c.MaxOpenConns, 50)
	def(&c.MaxIdleConns, 25)
	durDef(&c.ConnMaxLife, 30*time.Minute)
	durDef(&c.ConnMaxIdle, 5*time.Minute)
	durDef(&c.PingTimeout, 2*time.Second)
	return c
}

// Open builds the pool and verifies connectivity before handing it out,
// so a bad DSN fails at boot rather than on the first query.
func Open(cfg Config) (*sql.DB, error) {
	cfg = cfg.withDefaults()

	pool, err := sql.Open("mysql", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("mysql open: %w", err)
	}
	pool.SetMaxOpenConns(cfg.MaxOpenConns)
	pool.SetMaxIdleConns(cfg.MaxIdleConns)
	pool.SetConnMaxLifetime(cfg.ConnMaxLife)
	pool.SetConnMaxIdleTime(cfg.ConnMaxIdle)

	ctx, cancel := context.WithTimeout(context.Background(), cfg.PingTimeout)
	defer cancel()
	if err := pool.PingContext(ctx); err != nil {
		_ = pool.Close()
		return nil, fmt.Errorf("mysql ping: %w", err)
	}
	return pool, nil
}

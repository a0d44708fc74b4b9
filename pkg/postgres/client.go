// Package postgres opens the lib/pq connection pool behind build history and
// applies its schema.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"hash/fnv"
	"log/slog"
	"time"

	_ "github.com/lib/pq"

	"github.com/Adithya-Monish-Kumar-K/invidx/pkg/config"
)

const connectTimeout = 5 * time.Second

type Client struct {
	DB     *sql.DB
	logger *slog.Logger
}

// New opens a pool sized from cfg and verifies it with a ping bounded by
// ctx and a five second limit.
func New(ctx context.Context, cfg config.PostgresConfig) (*Client, error) {
	if cfg.Host == "" {
		return nil, errors.New("postgres host not configured")
	}
	db, err := sql.Open("postgres", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("opening postgres connection: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	ctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging postgres at %s:%d: %w", cfg.Host, cfg.Port, err)
	}
	return &Client{
		DB:     db,
		logger: slog.Default().With("component", "postgres", "database", cfg.Database),
	}, nil
}

func (c *Client) Close() error {
	return c.DB.Close()
}

func (c *Client) Ping(ctx context.Context) error {
	return c.DB.PingContext(ctx)
}

// InTx runs fn in a transaction, committing on nil and rolling back
// otherwise.
func (c *Client) InTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := c.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("rolling back after %v: %w", err, rbErr)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// Migrate applies ddl in one transaction under an advisory lock keyed by
// name, so instances starting together apply it one at a time. ddl must be
// idempotent.
func (c *Client) Migrate(ctx context.Context, name, ddl string) error {
	h := fnv.New64a()
	h.Write([]byte(name))
	key := int64(h.Sum64())

	err := c.InTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, key); err != nil {
			return fmt.Errorf("locking migration %s: %w", name, err)
		}
		if _, err := tx.ExecContext(ctx, ddl); err != nil {
			return fmt.Errorf("applying migration %s: %w", name, err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	c.logger.Info("schema ready", "migration", name)
	return nil
}

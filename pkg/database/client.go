// Package database opens and manages the relational store connection. Both
// PostgreSQL (lib/pq) and the embedded SQLite driver (modernc.org/sqlite)
// are supported; queries are written with ? placeholders and rebound for
// postgres.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/docstream-labs/docsearch/pkg/config"
)

// Client wraps a sql.DB together with the driver it was opened with.
type Client struct {
	DB     *sql.DB
	driver string
}

// New opens a connection for the configured driver and verifies it with a
// ping.
func New(cfg config.DatabaseConfig) (*Client, error) {
	if cfg.Driver == "" {
		cfg.Driver = "sqlite"
	}
	driverName := cfg.Driver

	db, err := sql.Open(driverName, cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("opening %s connection: %w", driverName, err)
	}

	if driverName == "sqlite" {
		// A single connection avoids SQLITE_BUSY under concurrent writers.
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
		db.SetMaxIdleConns(cfg.MaxIdleConns)
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging %s: %w", driverName, err)
	}
	return &Client{DB: db, driver: driverName}, nil
}

// Driver returns the name of the driver this client was opened with.
func (c *Client) Driver() string {
	return c.driver
}

// Rebind converts ? placeholders to the $N form when the underlying driver
// is postgres. SQLite queries pass through unchanged.
func (c *Client) Rebind(query string) string {
	if c.driver != "postgres" {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Ping verifies the connection is still alive.
func (c *Client) Ping(ctx context.Context) error {
	return c.DB.PingContext(ctx)
}

// Close closes the underlying connection pool.
func (c *Client) Close() error {
	return c.DB.Close()
}

// InTx runs fn inside a transaction, rolling back on error.
func (c *Client) InTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := c.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("rolling back transaction after error %v: %w", rbErr, err)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}

	return nil
}

// Package store persists documents and rate counters in the relational
// database. Documents are append-only and deduplicated by title; ids are
// assigned monotonically by the database.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/docstream-labs/docsearch/internal/ratelimit"
	"github.com/docstream-labs/docsearch/pkg/database"
)

// Document is a stored corpus entry. Immutable once inserted.
type Document struct {
	ID    int64  `json:"id"`
	URL   string `json:"url"`
	Title string `json:"title"`
	Text  string `json:"text"`
}

// Store owns all database access for documents and rate counters.
type Store struct {
	db     *database.Client
	logger *slog.Logger
}

// New creates a Store on top of an open database client.
func New(db *database.Client) *Store {
	return &Store{
		db:     db,
		logger: slog.Default().With("component", "store"),
	}
}

// Migrate creates the schema if it does not exist yet. The statements run in
// one transaction so a failed startup never leaves half a schema behind.
func (s *Store) Migrate(ctx context.Context) error {
	idColumn := "INTEGER PRIMARY KEY AUTOINCREMENT"
	if s.db.Driver() == "postgres" {
		idColumn = "BIGSERIAL PRIMARY KEY"
	}
	statements := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS documents (
			id %s,
			url TEXT NOT NULL,
			title TEXT NOT NULL UNIQUE,
			text TEXT NOT NULL
		)`, idColumn),
		`CREATE TABLE IF NOT EXISTS rate_counters (
			caller_id TEXT PRIMARY KEY,
			count INTEGER NOT NULL,
			window_start BIGINT NOT NULL
		)`,
	}
	err := s.db.InTx(ctx, func(tx *sql.Tx) error {
		for _, stmt := range statements {
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("migrating schema: %w", err)
	}
	return nil
}

// Insert stores a new document and returns its assigned id. When a document
// with the same title already exists the call is a no-op: the existing id is
// returned with inserted=false. URL collisions are not checked.
func (s *Store) Insert(ctx context.Context, url, title, text string) (int64, bool, error) {
	var id int64
	err := s.db.DB.QueryRowContext(ctx,
		s.db.Rebind(`INSERT INTO documents (url, title, text) VALUES (?, ?, ?)
			ON CONFLICT (title) DO NOTHING
			RETURNING id`),
		url, title, text,
	).Scan(&id)
	if err == nil {
		return id, true, nil
	}
	if err != sql.ErrNoRows {
		return 0, false, fmt.Errorf("inserting document %q: %w", title, err)
	}

	// Conflict path: the title is already present, look up the original.
	err = s.db.DB.QueryRowContext(ctx,
		s.db.Rebind(`SELECT id FROM documents WHERE title = ?`),
		title,
	).Scan(&id)
	if err != nil {
		return 0, false, fmt.Errorf("resolving duplicate title %q: %w", title, err)
	}
	return id, false, nil
}

// All returns a stable snapshot of every stored document, ordered by id.
func (s *Store) All(ctx context.Context) ([]Document, error) {
	rows, err := s.db.DB.QueryContext(ctx,
		`SELECT id, url, title, text FROM documents ORDER BY id`,
	)
	if err != nil {
		return nil, fmt.Errorf("reading documents: %w", err)
	}
	defer rows.Close()

	var docs []Document
	for rows.Next() {
		var d Document
		if err := rows.Scan(&d.ID, &d.URL, &d.Title, &d.Text); err != nil {
			return nil, fmt.Errorf("scanning document row: %w", err)
		}
		docs = append(docs, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading documents: %w", err)
	}
	return docs, nil
}

// Count returns the number of stored documents.
func (s *Store) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM documents`).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting documents: %w", err)
	}
	return n, nil
}

// Ping verifies the underlying database connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// LoadCounters implements ratelimit.CounterStore.
func (s *Store) LoadCounters(ctx context.Context) (map[string]ratelimit.Counter, error) {
	rows, err := s.db.DB.QueryContext(ctx,
		`SELECT caller_id, count, window_start FROM rate_counters`,
	)
	if err != nil {
		return nil, fmt.Errorf("reading rate counters: %w", err)
	}
	defer rows.Close()

	counters := make(map[string]ratelimit.Counter)
	for rows.Next() {
		var callerID string
		var count int
		var windowStart int64
		if err := rows.Scan(&callerID, &count, &windowStart); err != nil {
			return nil, fmt.Errorf("scanning rate counter row: %w", err)
		}
		counters[callerID] = ratelimit.Counter{
			Count:       count,
			WindowStart: time.Unix(0, windowStart),
		}
	}
	return counters, rows.Err()
}

// SaveCounter implements ratelimit.CounterStore with an upsert.
func (s *Store) SaveCounter(ctx context.Context, callerID string, c ratelimit.Counter) error {
	_, err := s.db.DB.ExecContext(ctx,
		s.db.Rebind(`INSERT INTO rate_counters (caller_id, count, window_start) VALUES (?, ?, ?)
			ON CONFLICT (caller_id) DO UPDATE SET count = excluded.count, window_start = excluded.window_start`),
		callerID, c.Count, c.WindowStart.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("saving rate counter for %q: %w", callerID, err)
	}
	return nil
}

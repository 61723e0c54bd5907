// Package memory implements signet's durable long-term store: a SQLite
// database of memories with full-text and vector search, an entity/relation
// expertise graph, and the export/import format agents migrate with.
package memory

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// Store owns the connection to a signet memory database. All writes go
// through Store's mutex-guarded write path; db is capped at one open
// connection, which reads and writes share.
type Store struct {
	db *sql.DB

	// writeMu serializes every write transaction. SQLite allows only one
	// writer at a time regardless of connection count; a single mutex here
	// avoids relying on SQLITE_BUSY retry alone for ordinary operations.
	writeMu sync.Mutex

	embedding EmbeddingProvider

	// configuredDims is the embedding dimensionality declared in
	// agent.yaml's embedding.dimensions, seeded here so the very first
	// embed of a misconfigured provider is validated against it rather
	// than silently becoming the new declared dimension (spec.md §4.3,
	// testable scenario 5). Zero means unconfigured: declaredDimensions
	// then falls back to whatever vec_embeddings already holds.
	configuredDims int
}

// Open opens (creating if necessary) the SQLite database at path, applies
// WAL mode, and runs every pending migration. embedding may be nil, meaning
// no embedding provider is configured; remember then never populates
// vec_embeddings. configuredDims is the manifest's embedding.dimensions
// (0 if not configured), used to validate the very first embed.
func Open(path string, embedding EmbeddingProvider, configuredDims int) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("memory: database path required")
	}

	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("memory: create database dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("memory: open database: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(0)

	s := &Store{db: db, embedding: embedding, configuredDims: configuredDims}

	if err := s.migrate(context.Background()); err != nil {
		_ = db.Close()

		return nil, fmt.Errorf("memory: migrate: %w", err)
	}

	return s, nil
}

// Close releases the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}

	return s.db.Close()
}

// DB exposes the underlying *sql.DB for callers that need direct SQL (the
// daemon's health check pings it; tests query tables through it).
func (s *Store) DB() *sql.DB {
	return s.db
}

// withWriteTx runs fn inside a transaction, retrying on SQLITE_BUSY with
// exponential backoff up to 5s, per the daemon's stated resource model.
func (s *Store) withWriteTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	backoff := 10 * time.Millisecond
	deadline := time.Now().Add(5 * time.Second)

	for {
		err := s.runTx(ctx, fn)
		if err == nil || !isBusy(err) || time.Now().After(deadline) {
			return err
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}

		backoff *= 2
		if backoff > time.Second {
			backoff = time.Second
		}
	}
}

func (s *Store) runTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	if err := fn(tx); err != nil {
		_ = tx.Rollback()

		return err
	}

	return tx.Commit()
}

func isBusy(err error) bool {
	if err == nil {
		return false
	}

	msg := err.Error()

	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

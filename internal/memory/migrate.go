package memory

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// migration is one numbered, idempotent schema step. apply runs inside the
// transaction that records it in schema_migrations.
type migration struct {
	version int
	name    string
	apply   func(ctx context.Context, tx *sql.Tx) error
}

// migrations is the deterministic ladder applied in order on every Open.
var migrations = []migration{
	{1, "init_schema_migrations", migrateInitSchemaMigrations},
	{2, "create_memories", migrateCreateMemories},
	{3, "create_memories_fts", migrateCreateMemoriesFTS},
	{4, "create_embeddings", migrateCreateEmbeddings},
	{5, "create_entities_relations", migrateCreateEntitiesRelations},
	{6, "create_expertise_graph", migrateCreateExpertiseGraph},
	{7, "create_conversations", migrateCreateConversations},
	{8, "create_perception_state", migrateCreatePerceptionState},
	{9, "create_perception_captures", migrateCreatePerceptionCaptures},
}

func (s *Store) migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `PRAGMA journal_mode=WAL;`); err != nil {
		return fmt.Errorf("set WAL mode: %w", err)
	}

	if err := s.ensureSchemaMigrationsTable(ctx); err != nil {
		return err
	}

	if err := s.unifyLegacySchema(ctx); err != nil {
		return fmt.Errorf("unify legacy schema: %w", err)
	}

	applied, err := s.appliedVersions(ctx)
	if err != nil {
		return err
	}

	for _, m := range migrations {
		if applied[m.version] {
			continue
		}

		if err := s.withWriteTx(ctx, func(tx *sql.Tx) error {
			if err := m.apply(ctx, tx); err != nil {
				return fmt.Errorf("migration %d (%s): %w", m.version, m.name, err)
			}

			_, err := tx.ExecContext(ctx,
				`INSERT INTO schema_migrations (version, applied_at) VALUES (?, ?)`,
				m.version, time.Now().UTC().Format(time.RFC3339))

			return err
		}); err != nil {
			return err
		}
	}

	return nil
}

// ensureSchemaMigrationsTable creates the ledger table itself outside the
// normal ladder, since migration 1 needs it to already exist to be recorded.
func (s *Store) ensureSchemaMigrationsTable(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at TEXT NOT NULL
		);
	`)

	return err
}

func (s *Store) appliedVersions(ctx context.Context) (map[int]bool, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT version FROM schema_migrations`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	applied := make(map[int]bool)

	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}

		applied[v] = true
	}

	return applied, rows.Err()
}

// unifyLegacySchema detects a pre-migration-ladder "memories" table (one
// lacking the is_deleted column the current shape requires) and copies its
// rows into a holding table so migrateCreateMemories can recreate the table
// in its current shape without losing data. A fresh or already-current
// database is a no-op.
func (s *Store) unifyLegacySchema(ctx context.Context) error {
	hasTable, err := s.tableExists(ctx, "memories")
	if err != nil || !hasTable {
		return err
	}

	hasColumn, err := s.columnExists(ctx, "memories", "is_deleted")
	if err != nil || hasColumn {
		return err
	}

	return s.withWriteTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `ALTER TABLE memories RENAME TO memories_legacy`)

		return err
	})
}

func (s *Store) tableExists(ctx context.Context, name string) (bool, error) {
	var n int

	err := s.db.QueryRowContext(ctx,
		`SELECT count(*) FROM sqlite_master WHERE type='table' AND name=?`, name).Scan(&n)

	return n > 0, err
}

func (s *Store) columnExists(ctx context.Context, table, column string) (bool, error) {
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`PRAGMA table_info(%s)`, table))
	if err != nil {
		return false, err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			cid        int
			name       string
			ctype      string
			notnull    int
			dfltValue  sql.NullString
			pk         int
		)

		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dfltValue, &pk); err != nil {
			return false, err
		}

		if name == column {
			return true, nil
		}
	}

	return false, rows.Err()
}

func migrateInitSchemaMigrations(_ context.Context, _ *sql.Tx) error {
	// schema_migrations itself is created before the ladder runs; this
	// migration exists only to occupy version 1 so later versions stay
	// stable even though the table predates the ladder.
	return nil
}

func migrateCreateMemories(ctx context.Context, tx *sql.Tx) error {
	_, err := tx.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS memories (
			id TEXT PRIMARY KEY,
			content TEXT NOT NULL,
			type TEXT NOT NULL,
			importance REAL NOT NULL DEFAULT 0.5,
			confidence REAL NOT NULL DEFAULT 0.5,
			tags TEXT NOT NULL DEFAULT '[]',
			who TEXT,
			pinned INTEGER NOT NULL DEFAULT 0,
			source TEXT,
			is_deleted INTEGER NOT NULL DEFAULT 0,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_memories_type ON memories(type);
		CREATE INDEX IF NOT EXISTS idx_memories_created_at ON memories(created_at);
		CREATE INDEX IF NOT EXISTS idx_memories_deleted_created ON memories(is_deleted, created_at);
	`)

	return err
}

func migrateCreateMemoriesFTS(ctx context.Context, tx *sql.Tx) error {
	stmts := []string{
		`CREATE VIRTUAL TABLE IF NOT EXISTS memories_fts USING fts5(
			content, tags, content='memories', content_rowid='rowid'
		);`,
		`CREATE TRIGGER IF NOT EXISTS memories_ai AFTER INSERT ON memories BEGIN
			INSERT INTO memories_fts(rowid, content, tags) VALUES (new.rowid, new.content, new.tags);
		END;`,
		`CREATE TRIGGER IF NOT EXISTS memories_ad AFTER DELETE ON memories BEGIN
			INSERT INTO memories_fts(memories_fts, rowid, content, tags) VALUES ('delete', old.rowid, old.content, old.tags);
		END;`,
		`CREATE TRIGGER IF NOT EXISTS memories_au AFTER UPDATE ON memories BEGIN
			INSERT INTO memories_fts(memories_fts, rowid, content, tags) VALUES ('delete', old.rowid, old.content, old.tags);
			INSERT INTO memories_fts(rowid, content, tags) VALUES (new.rowid, new.content, new.tags);
		END;`,
	}

	for _, stmt := range stmts {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}

	return nil
}

func migrateCreateEmbeddings(ctx context.Context, tx *sql.Tx) error {
	_, err := tx.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS embeddings (
			memory_id TEXT PRIMARY KEY,
			content_hash TEXT NOT NULL,
			provider TEXT NOT NULL,
			model TEXT NOT NULL,
			dimensions INTEGER NOT NULL,
			created_at TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_embeddings_content_hash ON embeddings(content_hash);
		CREATE TABLE IF NOT EXISTS vec_embeddings (
			memory_id TEXT PRIMARY KEY,
			vector BLOB NOT NULL,
			dimensions INTEGER NOT NULL
		);
	`)

	return err
}

func migrateCreateEntitiesRelations(ctx context.Context, tx *sql.Tx) error {
	_, err := tx.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS entities (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			kind TEXT NOT NULL,
			created_at TEXT NOT NULL,
			UNIQUE(name, kind)
		);
		CREATE TABLE IF NOT EXISTS relations (
			id TEXT PRIMARY KEY,
			source_id TEXT NOT NULL,
			target_id TEXT NOT NULL,
			kind TEXT NOT NULL,
			created_at TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_relations_source ON relations(source_id);
		CREATE INDEX IF NOT EXISTS idx_relations_target ON relations(target_id);
	`)

	return err
}

func migrateCreateExpertiseGraph(ctx context.Context, tx *sql.Tx) error {
	_, err := tx.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS expertise_nodes (
			id TEXT PRIMARY KEY,
			label TEXT NOT NULL,
			kind TEXT NOT NULL,
			memory_count INTEGER NOT NULL DEFAULT 0
		);
		CREATE TABLE IF NOT EXISTS expertise_edges (
			source_id TEXT NOT NULL,
			target_id TEXT NOT NULL,
			weight REAL NOT NULL,
			co_occurrences INTEGER NOT NULL,
			PRIMARY KEY (source_id, target_id)
		);
	`)

	return err
}

func migrateCreateConversations(ctx context.Context, tx *sql.Tx) error {
	_, err := tx.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS conversations (
			id TEXT PRIMARY KEY,
			harness TEXT NOT NULL,
			session_id TEXT,
			started_at TEXT NOT NULL,
			ended_at TEXT
		);
	`)

	return err
}

func migrateCreatePerceptionState(ctx context.Context, tx *sql.Tx) error {
	_, err := tx.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS perception_state (
			key TEXT PRIMARY KEY,
			value TEXT,
			updated_at TEXT NOT NULL
		);
	`)

	return err
}

// migrateCreatePerceptionCaptures creates the append-only capture mirror
// tables distillation's working-style computation reads from. The
// in-memory adapter stores remain authoritative for the running process;
// these are a queryable history, not a second source of truth.
func migrateCreatePerceptionCaptures(ctx context.Context, tx *sql.Tx) error {
	_, err := tx.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS perception_screen (
			id TEXT PRIMARY KEY,
			timestamp TEXT NOT NULL,
			focused_app TEXT,
			focused_window TEXT
		);
		CREATE INDEX IF NOT EXISTS idx_perception_screen_ts ON perception_screen(timestamp);
		CREATE TABLE IF NOT EXISTS perception_terminal (
			id TEXT PRIMARY KEY,
			timestamp TEXT NOT NULL,
			command TEXT
		);
		CREATE INDEX IF NOT EXISTS idx_perception_terminal_ts ON perception_terminal(timestamp);
	`)

	return err
}

package memory

import (
	"context"
	"database/sql"
	"fmt"
)

// EmbeddingGapAudit reports how much of the memory corpus lacks an
// embedding.
type EmbeddingGapAudit struct {
	Total      int
	Unembedded int
	Coverage   float64
}

// AuditEmbeddingGaps implements GET /api/repair/embedding-gaps.
func (s *Store) AuditEmbeddingGaps(ctx context.Context) (EmbeddingGapAudit, error) {
	var total, unembedded int

	if err := s.db.QueryRowContext(ctx, `SELECT count(*) FROM memories WHERE is_deleted = 0`).Scan(&total); err != nil {
		return EmbeddingGapAudit{}, err
	}

	err := s.db.QueryRowContext(ctx, `
		SELECT count(*) FROM memories m WHERE m.is_deleted = 0
		AND NOT EXISTS (SELECT 1 FROM embeddings e WHERE e.memory_id = m.id)
	`).Scan(&unembedded)
	if err != nil {
		return EmbeddingGapAudit{}, err
	}

	audit := EmbeddingGapAudit{Total: total, Unembedded: unembedded}
	if total > 0 {
		audit.Coverage = float64(total-unembedded) / float64(total)
	}

	return audit, nil
}

// BackfillResult reports how many memories a backfill pass embedded.
type BackfillResult struct {
	Affected int
	Message  string
}

const defaultBackfillBatchSize = 50

// Backfill implements POST /api/repair/re-embed: embed up to batchSize
// currently-unembedded memories. dryRun reports what would happen without
// writing anything.
func (s *Store) Backfill(ctx context.Context, batchSize int, dryRun bool) (BackfillResult, error) {
	if s.embedding == nil {
		return BackfillResult{Message: "no embedding provider configured"}, nil
	}

	if batchSize <= 0 {
		batchSize = defaultBackfillBatchSize
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT m.id, m.content FROM memories m WHERE m.is_deleted = 0
		AND NOT EXISTS (SELECT 1 FROM embeddings e WHERE e.memory_id = m.id)
		LIMIT ?
	`, batchSize)
	if err != nil {
		return BackfillResult{}, err
	}
	defer rows.Close()

	type pending struct{ id, content string }

	var batch []pending

	for rows.Next() {
		var p pending
		if err := rows.Scan(&p.id, &p.content); err != nil {
			return BackfillResult{}, err
		}

		batch = append(batch, p)
	}

	if err := rows.Err(); err != nil {
		return BackfillResult{}, err
	}

	if dryRun {
		return BackfillResult{Affected: len(batch), Message: fmt.Sprintf("would embed %d memories", len(batch))}, nil
	}

	affected := 0

	for _, p := range batch {
		if _, err := s.embedIfConfigured(ctx, p.id, p.content); err != nil {
			continue
		}

		affected++
	}

	return BackfillResult{Affected: affected, Message: fmt.Sprintf("embedded %d memories", affected)}, nil
}

// MigrateBlobToVec performs the one-shot conversion of a legacy
// "embeddings.vector BLOB" column into the current vec_embeddings table.
// It is a no-op (nil error) if no such legacy column exists.
func (s *Store) MigrateBlobToVec(ctx context.Context, keepBlobs bool) error {
	hasColumn, err := s.columnExists(ctx, "embeddings", "vector")
	if err != nil || !hasColumn {
		return err
	}

	var dims int

	err = s.db.QueryRowContext(ctx, `SELECT dimensions FROM embeddings WHERE vector IS NOT NULL LIMIT 1`).Scan(&dims)
	if err == sql.ErrNoRows {
		dims = 0
	} else if err != nil {
		return fmt.Errorf("memory: sample legacy dimensions: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `SELECT memory_id, vector FROM embeddings WHERE vector IS NOT NULL`)
	if err != nil {
		return fmt.Errorf("memory: read legacy vectors: %w", err)
	}
	defer rows.Close()

	type legacyRow struct {
		id  string
		vec []byte
	}

	var legacy []legacyRow

	for rows.Next() {
		var r legacyRow
		if err := rows.Scan(&r.id, &r.vec); err != nil {
			return err
		}

		legacy = append(legacy, r)
	}

	if err := rows.Err(); err != nil {
		return err
	}

	if err := s.withWriteTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DROP TABLE IF EXISTS vec_embeddings`); err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx, `
			CREATE TABLE vec_embeddings (
				memory_id TEXT PRIMARY KEY,
				vector BLOB NOT NULL,
				dimensions INTEGER NOT NULL
			)
		`); err != nil {
			return err
		}

		for _, r := range legacy {
			// Legacy blobs are already little-endian float32, the same
			// layout encodeVector produces, so they pass through untouched.
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO vec_embeddings (memory_id, vector, dimensions) VALUES (?, ?, ?)
			`, r.id, r.vec, len(r.vec)/4); err != nil {
				return err
			}
		}

		return nil
	}); err != nil {
		return fmt.Errorf("memory: populate vec_embeddings: %w", err)
	}

	if keepBlobs {
		return nil
	}

	return s.withWriteTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			CREATE TABLE embeddings_new (
				memory_id TEXT PRIMARY KEY,
				content_hash TEXT NOT NULL,
				provider TEXT NOT NULL,
				model TEXT NOT NULL,
				dimensions INTEGER NOT NULL,
				created_at TEXT NOT NULL
			);
			INSERT INTO embeddings_new (memory_id, content_hash, provider, model, dimensions, created_at)
				SELECT memory_id, content_hash, provider, model, dimensions, created_at FROM embeddings;
			DROP TABLE embeddings;
			ALTER TABLE embeddings_new RENAME TO embeddings;
		`)

		return err
	})
}

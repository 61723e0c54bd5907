package memory

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/signet-run/signet/internal/refiner"
)

// Remember implements the refiner.Rememberer interface and the
// POST /api/memory/remember persistence path: insert the memory row, and,
// if an embedding provider is configured and this exact content hasn't been
// embedded before, embed it and insert both the embeddings metadata row and
// the vector.
func (s *Store) Remember(ctx context.Context, in RememberInput) (RememberResult, error) {
	now := time.Now().UTC()
	id := newMemoryID(now)

	if err := s.withWriteTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO memories (id, content, type, importance, confidence, tags, who, pinned, source, is_deleted, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, 0, ?, ?)
		`, id, in.Content, string(in.Type), in.Importance, in.Confidence, marshalTags(in.Tags), in.Who, boolToInt(in.Pinned), in.Source,
			now.Format(time.RFC3339), now.Format(time.RFC3339))

		return err
	}); err != nil {
		return RememberResult{}, fmt.Errorf("memory: insert: %w", err)
	}

	embedded, err := s.embedIfConfigured(ctx, id, in.Content)
	if err != nil {
		// Embedding failures are transient-external per the error taxonomy:
		// the memory row is already durable, so log and report not-embedded
		// rather than failing the whole remember call.
		slog.Default().WarnContext(ctx, "memory: embed failed", "id", id, "error", err)
	}

	return RememberResult{ID: id, Embedded: embedded}, nil
}

// RememberExplicit wraps Remember for paths (e.g. MCP tools, hook endpoints)
// that only have content plus an optional who/source, defaulting type,
// importance, and confidence the way spec.md's explicit-remember path does.
func (s *Store) RememberExplicit(ctx context.Context, content, who, source string, tags []string) (RememberResult, error) {
	return s.Remember(ctx, RememberInput{
		Content:    content,
		Type:       TypeExplicit,
		Importance: 0.5,
		Confidence: 1.0,
		Tags:       tags,
		Who:        who,
		Source:     source,
	})
}

// Remember implements refiner.Rememberer by adapting its ExtractedMemory
// shape to RememberInput, so the scheduler can hold a Store directly as its
// Rememberer without any glue in internal/daemon.
var _ refiner.Rememberer = (*refinerAdapter)(nil)

// refinerAdapter adapts *Store to refiner.Rememberer's (id, embedded, err)
// return shape, distinct from Store.Remember's (RememberResult, error) used
// by the HTTP surface and hook endpoints.
type refinerAdapter struct{ store *Store }

// AsRememberer returns a refiner.Rememberer backed by s.
func (s *Store) AsRememberer() refiner.Rememberer {
	return &refinerAdapter{store: s}
}

func (a *refinerAdapter) Remember(ctx context.Context, mem refiner.ExtractedMemory) (string, bool, error) {
	result, err := a.store.Remember(ctx, RememberInput{
		Content:    mem.Content,
		Type:       Type(mem.Type),
		Importance: mem.Importance,
		Confidence: mem.Confidence,
		Tags:       mem.Tags,
		Who:        mem.Who,
		Source:     mem.Source,
	})
	if err != nil {
		return "", false, err
	}

	return result.ID, result.Embedded, nil
}

func (s *Store) embedIfConfigured(ctx context.Context, memoryID, content string) (bool, error) {
	if s.embedding == nil {
		return false, nil
	}

	hash := stableHash(content)

	var existingDims int

	err := s.db.QueryRowContext(ctx, `SELECT dimensions FROM embeddings WHERE content_hash = ? LIMIT 1`, hash).Scan(&existingDims)
	if err == nil {
		// Content already embedded under this hash; reuse is implicit since
		// the vector lives keyed by memory id, not content hash, so a
		// genuinely new memory row with duplicate content still needs its
		// own vec_embeddings row copied from the existing one.
		return s.copyExistingVector(ctx, memoryID, hash)
	}

	if err != sql.ErrNoRows {
		return false, err
	}

	vec, err := s.embedding.Embed(ctx, content)
	if err != nil {
		return false, err
	}

	return true, s.insertEmbedding(ctx, memoryID, hash, vec)
}

func (s *Store) copyExistingVector(ctx context.Context, memoryID, hash string) (bool, error) {
	var otherID string

	err := s.db.QueryRowContext(ctx, `SELECT memory_id FROM embeddings WHERE content_hash = ? LIMIT 1`, hash).Scan(&otherID)
	if err != nil {
		return false, err
	}

	var vec []byte

	err = s.db.QueryRowContext(ctx, `SELECT vector FROM vec_embeddings WHERE memory_id = ?`, otherID).Scan(&vec)
	if err == sql.ErrNoRows {
		return false, nil
	} else if err != nil {
		return false, err
	}

	return true, s.withWriteTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO embeddings (memory_id, content_hash, provider, model, dimensions, created_at)
			SELECT ?, content_hash, provider, model, dimensions, ? FROM embeddings WHERE memory_id = ?
		`, memoryID, time.Now().UTC().Format(time.RFC3339), otherID)
		if err != nil {
			return err
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO vec_embeddings (memory_id, vector, dimensions)
			SELECT ?, vector, dimensions FROM vec_embeddings WHERE memory_id = ?
		`, memoryID, otherID)

		return err
	})
}

func (s *Store) insertEmbedding(ctx context.Context, memoryID, hash string, vec []float32) error {
	declaredDims, err := s.declaredDimensions(ctx)
	if err != nil {
		return err
	}

	if declaredDims != 0 && declaredDims != len(vec) {
		// Dimension mismatch after initialization is a programmer-class
		// error per the error taxonomy: skip the vector, keep the metadata
		// row so the backfill path can recover once reconfigured.
		slog.Default().WarnContext(ctx, "memory: embedding dimension mismatch",
			"memory_id", memoryID, "declared", declaredDims, "got", len(vec))

		return s.withWriteTx(ctx, func(tx *sql.Tx) error {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO embeddings (memory_id, content_hash, provider, model, dimensions, created_at)
				VALUES (?, ?, ?, ?, ?, ?)
			`, memoryID, hash, s.embedding.Name(), s.embedding.Model(), len(vec), time.Now().UTC().Format(time.RFC3339))

			return err
		})
	}

	return s.withWriteTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO embeddings (memory_id, content_hash, provider, model, dimensions, created_at)
			VALUES (?, ?, ?, ?, ?, ?)
		`, memoryID, hash, s.embedding.Name(), s.embedding.Model(), len(vec), time.Now().UTC().Format(time.RFC3339)); err != nil {
			return err
		}

		_, err := tx.ExecContext(ctx, `
			INSERT INTO vec_embeddings (memory_id, vector, dimensions) VALUES (?, ?, ?)
		`, memoryID, encodeVector(vec), len(vec))

		return err
	})
}

// declaredDimensions returns the dimensionality every embed must match:
// the manifest's configured embedding.dimensions when set, so even the
// first embed of a misconfigured provider is caught, falling back to
// whatever dimension is already recorded in vec_embeddings, or 0 if
// neither is known yet.
func (s *Store) declaredDimensions(ctx context.Context) (int, error) {
	if s.configuredDims > 0 {
		return s.configuredDims, nil
	}

	var dims int

	err := s.db.QueryRowContext(ctx, `SELECT dimensions FROM vec_embeddings LIMIT 1`).Scan(&dims)
	if err == sql.ErrNoRows {
		return 0, nil
	}

	return dims, err
}

// Get fetches one memory by id, or sql.ErrNoRows if absent or deleted.
func (s *Store) Get(ctx context.Context, id string) (Memory, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, content, type, importance, confidence, tags, who, pinned, source, is_deleted, created_at, updated_at
		FROM memories WHERE id = ? AND is_deleted = 0
	`, id)

	return scanMemory(row)
}

// LatestByTag fetches the newest non-deleted memory carrying tag, or
// sql.ErrNoRows if none exists. Tags have no dedicated index; the JSON
// array column is matched with LIKE against its quoted form, same as
// marshalTags encodes it.
func (s *Store) LatestByTag(ctx context.Context, tag string) (Memory, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, content, type, importance, confidence, tags, who, pinned, source, is_deleted, created_at, updated_at
		FROM memories WHERE is_deleted = 0 AND tags LIKE ?
		ORDER BY created_at DESC LIMIT 1
	`, "%\""+tag+"\"%")

	return scanMemory(row)
}

// UpdateContent overwrites an existing memory's content and updated_at in
// place, used by distillation to refresh a singleton memory (the cognitive
// profile) instead of inserting a new row every run.
func (s *Store) UpdateContent(ctx context.Context, id, content string) error {
	now := time.Now().UTC().Format(time.RFC3339)

	return s.withWriteTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			UPDATE memories SET content = ?, updated_at = ? WHERE id = ? AND is_deleted = 0
		`, content, now, id)

		return err
	})
}

func scanMemory(row *sql.Row) (Memory, error) {
	var (
		m         Memory
		typ       string
		tags      string
		pinned    int
		isDeleted int
		who       sql.NullString
		source    sql.NullString
		createdAt string
		updatedAt string
	)

	if err := row.Scan(&m.ID, &m.Content, &typ, &m.Importance, &m.Confidence, &tags, &who, &pinned, &source, &isDeleted, &createdAt, &updatedAt); err != nil {
		return Memory{}, err
	}

	m.Type = Type(typ)
	m.Tags = unmarshalTags(tags)
	m.Who = who.String
	m.Pinned = pinned != 0
	m.Source = source.String
	m.IsDeleted = isDeleted != 0
	m.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	m.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)

	return m, nil
}

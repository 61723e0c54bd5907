package memory

import (
	"bufio"
	"context"
	"database/sql"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/pierrec/lz4/v4"
)

// ConflictStrategy controls how Import resolves a memory id that already
// exists in the destination store.
type ConflictStrategy string

const (
	ConflictSkip      ConflictStrategy = "skip"
	ConflictOverwrite ConflictStrategy = "overwrite"
	ConflictMerge     ConflictStrategy = "merge"
)

// exportedMemory is one memories.jsonl record. Embeddings are inlined as
// base64 only when IncludeEmbeddings is requested, keeping ordinary exports
// small.
type exportedMemory struct {
	ID         string   `json:"id"`
	Content    string   `json:"content"`
	Type       string   `json:"type"`
	Importance float64  `json:"importance"`
	Confidence float64  `json:"confidence"`
	Tags       []string `json:"tags"`
	Who        string   `json:"who,omitempty"`
	Pinned     bool     `json:"pinned"`
	Source     string   `json:"source,omitempty"`
	CreatedAt  string   `json:"createdAt"`
	UpdatedAt  string   `json:"updatedAt"`
	Embedding  string   `json:"embedding,omitempty"`
}

type exportedEntity struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Kind string `json:"kind"`
}

type exportedRelation struct {
	ID       string `json:"id"`
	SourceID string `json:"sourceId"`
	TargetID string `json:"targetId"`
	Kind     string `json:"kind"`
}

// ExportMemoriesJSONL writes every non-deleted memory as one JSON object
// per line to w, lz4-compressed, matching export.memories.jsonl in
// spec.md's file map.
func (s *Store) ExportMemoriesJSONL(ctx context.Context, w io.Writer, includeEmbeddings bool) error {
	zw := lz4.NewWriter(w)
	defer zw.Close()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, content, type, importance, confidence, tags, who, pinned, source, created_at, updated_at
		FROM memories WHERE is_deleted = 0 ORDER BY created_at
	`)
	if err != nil {
		return err
	}
	defer rows.Close()

	enc := json.NewEncoder(zw)

	for rows.Next() {
		m, err := scanMemoryRows(rows)
		if err != nil {
			return err
		}

		rec := exportedMemory{
			ID: m.ID, Content: m.Content, Type: string(m.Type), Importance: m.Importance,
			Confidence: m.Confidence, Tags: m.Tags, Who: m.Who, Pinned: m.Pinned, Source: m.Source,
			CreatedAt: m.CreatedAt.Format(time.RFC3339), UpdatedAt: m.UpdatedAt.Format(time.RFC3339),
		}

		if includeEmbeddings {
			if vec, err := s.lookupVector(ctx, m.ID); err == nil && vec != nil {
				rec.Embedding = base64.StdEncoding.EncodeToString(encodeVector(vec))
			}
		}

		if err := enc.Encode(rec); err != nil {
			return err
		}
	}

	return rows.Err()
}

func (s *Store) lookupVector(ctx context.Context, memoryID string) ([]float32, error) {
	var raw []byte

	err := s.db.QueryRowContext(ctx, `SELECT vector FROM vec_embeddings WHERE memory_id = ?`, memoryID).Scan(&raw)
	if err != nil {
		return nil, err
	}

	return decodeVector(raw), nil
}

// ExportEntitiesJSONL writes entities.jsonl.
func (s *Store) ExportEntitiesJSONL(ctx context.Context, w io.Writer) error {
	zw := lz4.NewWriter(w)
	defer zw.Close()

	rows, err := s.db.QueryContext(ctx, `SELECT id, name, kind FROM entities`)
	if err != nil {
		return err
	}
	defer rows.Close()

	enc := json.NewEncoder(zw)

	for rows.Next() {
		var e exportedEntity
		if err := rows.Scan(&e.ID, &e.Name, &e.Kind); err != nil {
			return err
		}

		if err := enc.Encode(e); err != nil {
			return err
		}
	}

	return rows.Err()
}

// ExportRelationsJSONL writes relations.jsonl.
func (s *Store) ExportRelationsJSONL(ctx context.Context, w io.Writer) error {
	zw := lz4.NewWriter(w)
	defer zw.Close()

	rows, err := s.db.QueryContext(ctx, `SELECT id, source_id, target_id, kind FROM relations`)
	if err != nil {
		return err
	}
	defer rows.Close()

	enc := json.NewEncoder(zw)

	for rows.Next() {
		var r exportedRelation
		if err := rows.Scan(&r.ID, &r.SourceID, &r.TargetID, &r.Kind); err != nil {
			return err
		}

		if err := enc.Encode(r); err != nil {
			return err
		}
	}

	return rows.Err()
}

// ImportResult reports how many memory rows each conflict path touched.
type ImportResult struct {
	Inserted  int
	Skipped   int
	Replaced  int
	Merged    int
}

// ImportMemoriesJSONL reads an lz4-compressed memories.jsonl stream
// produced by ExportMemoriesJSONL and merges it into the store per the
// given conflict strategy.
func (s *Store) ImportMemoriesJSONL(ctx context.Context, r io.Reader, strategy ConflictStrategy) (ImportResult, error) {
	zr := lz4.NewReader(r)
	scanner := bufio.NewScanner(zr)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	var result ImportResult

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var rec exportedMemory
		if err := json.Unmarshal(line, &rec); err != nil {
			return result, fmt.Errorf("memory: decode import record: %w", err)
		}

		outcome, err := s.importOne(ctx, rec, strategy)
		if err != nil {
			return result, err
		}

		switch outcome {
		case "inserted":
			result.Inserted++
		case "skipped":
			result.Skipped++
		case "replaced":
			result.Replaced++
		case "merged":
			result.Merged++
		}
	}

	return result, scanner.Err()
}

func (s *Store) importOne(ctx context.Context, rec exportedMemory, strategy ConflictStrategy) (string, error) {
	existing, err := s.Get(ctx, rec.ID)

	notFound := err != nil

	if notFound {
		return "inserted", s.withWriteTx(ctx, func(tx *sql.Tx) error {
			return insertImportedRow(ctx, tx, rec)
		})
	}

	switch strategy {
	case ConflictSkip:
		return "skipped", nil
	case ConflictOverwrite:
		return "replaced", s.withWriteTx(ctx, func(tx *sql.Tx) error {
			return replaceImportedRow(ctx, tx, rec)
		})
	case ConflictMerge:
		recUpdated, err1 := time.Parse(time.RFC3339, rec.UpdatedAt)
		if err1 != nil || !recUpdated.After(existing.UpdatedAt) {
			return "skipped", nil
		}

		return "merged", s.withWriteTx(ctx, func(tx *sql.Tx) error {
			return replaceImportedRow(ctx, tx, rec)
		})
	default:
		return "skipped", nil
	}
}

func insertImportedRow(ctx context.Context, tx *sql.Tx, rec exportedMemory) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO memories (id, content, type, importance, confidence, tags, who, pinned, source, is_deleted, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, 0, ?, ?)
	`, rec.ID, rec.Content, rec.Type, rec.Importance, rec.Confidence, marshalTags(rec.Tags), rec.Who, boolToInt(rec.Pinned), rec.Source, rec.CreatedAt, rec.UpdatedAt)

	return err
}

func replaceImportedRow(ctx context.Context, tx *sql.Tx, rec exportedMemory) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE memories SET content = ?, type = ?, importance = ?, confidence = ?, tags = ?, who = ?, pinned = ?, source = ?, updated_at = ?
		WHERE id = ?
	`, rec.Content, rec.Type, rec.Importance, rec.Confidence, marshalTags(rec.Tags), rec.Who, boolToInt(rec.Pinned), rec.Source, rec.UpdatedAt, rec.ID)
	if err != nil {
		return err
	}

	var n int
	if err := tx.QueryRowContext(ctx, `SELECT count(*) FROM memories WHERE id = ?`, rec.ID).Scan(&n); err != nil {
		return err
	}

	if n == 0 {
		return insertImportedRow(ctx, tx, rec)
	}

	return nil
}

package memory

import (
	"context"
	"database/sql"
)

// ExpertiseNode is one entity recognized by distillation's co-occurrence
// extraction.
type ExpertiseNode struct {
	ID          string
	Label       string
	Kind        string
	MemoryCount int
}

// ExpertiseEdge is one weighted co-occurrence relation between two nodes.
type ExpertiseEdge struct {
	SourceID      string
	TargetID      string
	Weight        float64
	CoOccurrences int
}

// ReplaceExpertiseGraph atomically clears and reinserts the entire
// expertise graph, per spec.md §4.4's "DELETE FROM expertise_{nodes,edges}
// and reinsert all nodes/edges in a single transaction" step.
func (s *Store) ReplaceExpertiseGraph(ctx context.Context, nodes []ExpertiseNode, edges []ExpertiseEdge) error {
	return s.withWriteTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM expertise_edges`); err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM expertise_nodes`); err != nil {
			return err
		}

		for _, n := range nodes {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO expertise_nodes (id, label, kind, memory_count) VALUES (?, ?, ?, ?)
			`, n.ID, n.Label, n.Kind, n.MemoryCount); err != nil {
				return err
			}
		}

		for _, e := range edges {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO expertise_edges (source_id, target_id, weight, co_occurrences) VALUES (?, ?, ?, ?)
			`, e.SourceID, e.TargetID, e.Weight, e.CoOccurrences); err != nil {
				return err
			}
		}

		return nil
	})
}

// RelatedEntities returns the top limit neighbors of label by edge weight,
// implementing the "related(skill)" query path.
func (s *Store) RelatedEntities(ctx context.Context, label string, limit int) ([]ExpertiseEdge, error) {
	if limit <= 0 {
		limit = 20
	}

	var nodeID string

	err := s.db.QueryRowContext(ctx, `SELECT id FROM expertise_nodes WHERE label = ?`, label).Scan(&nodeID)
	if err == sql.ErrNoRows {
		return nil, nil
	} else if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT source_id, target_id, weight, co_occurrences FROM expertise_edges
		WHERE source_id = ? OR target_id = ?
		ORDER BY weight DESC LIMIT ?
	`, nodeID, nodeID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ExpertiseEdge

	for rows.Next() {
		var e ExpertiseEdge
		if err := rows.Scan(&e.SourceID, &e.TargetID, &e.Weight, &e.CoOccurrences); err != nil {
			return nil, err
		}

		out = append(out, e)
	}

	return out, rows.Err()
}

// ExpertiseDepth classifies how deep a domain's coverage is, per the
// depth(domain) query path's thresholds.
type ExpertiseDepth struct {
	MemoryCount     int
	UniqueSkills    int
	RelatedEntities int
	Depth           string
}

// DepthForDomain computes ExpertiseDepth for a domain label.
func (s *Store) DepthForDomain(ctx context.Context, label string) (ExpertiseDepth, error) {
	var memoryCount int

	err := s.db.QueryRowContext(ctx, `SELECT COALESCE(memory_count, 0) FROM expertise_nodes WHERE label = ?`, label).Scan(&memoryCount)
	if err != nil && err != sql.ErrNoRows {
		return ExpertiseDepth{}, err
	}

	related, err := s.RelatedEntities(ctx, label, 1000)
	if err != nil {
		return ExpertiseDepth{}, err
	}

	uniqueSkills := 0

	for _, e := range related {
		if e.SourceID != label || e.TargetID != label {
			uniqueSkills++
		}
	}

	d := ExpertiseDepth{MemoryCount: memoryCount, UniqueSkills: uniqueSkills, RelatedEntities: len(related)}
	d.Depth = classifyDepth(memoryCount, uniqueSkills)

	return d, nil
}

func classifyDepth(memoryCount, uniqueSkills int) string {
	switch {
	case memoryCount >= 50 && uniqueSkills >= 10:
		return "expert"
	case memoryCount >= 20:
		return "deep"
	case memoryCount >= 5:
		return "moderate"
	default:
		return "surface"
	}
}

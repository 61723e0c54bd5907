package memory

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"
)

// defaultTopK is the per-arm candidate count before blending, per spec.
const defaultTopK = 20

// RecallInput is the POST /api/memory/recall request shape.
type RecallInput struct {
	Query string
	Limit int
	Type  Type
	Tags  []string
	Who   string
	Since time.Time
	Until time.Time

	// Alpha blends the semantic and keyword arms; zero means "use the
	// configured default" (0.7), since the HTTP layer can't distinguish an
	// explicit 0 from an absent field in RecallInput's Go zero value.
	Alpha float64

	// MinScore drops candidates below this post-blend score (default 0.3).
	MinScore float64
}

// RecallSource labels which arm(s) contributed to a result's score.
type RecallSource string

const (
	RecallSourceSemantic RecallSource = "semantic"
	RecallSourceKeyword  RecallSource = "keyword"
	RecallSourceHybrid   RecallSource = "hybrid"
)

// RecallResult is one hit from Recall, matching the POST /api/memory/recall
// response shape.
type RecallResult struct {
	ID        string       `json:"id"`
	Content   string       `json:"content"`
	Score     float64      `json:"score"`
	Source    RecallSource `json:"source"`
	Type      Type         `json:"type"`
	Tags      []string     `json:"tags"`
	Pinned    bool         `json:"pinned"`
	Who       string       `json:"who"`
	CreatedAt time.Time    `json:"createdAt"`
}

type candidate struct {
	id            string
	keywordScore  float64
	semanticScore float64
	hasKeyword    bool
	hasSemantic   bool
}

// Recall runs the hybrid BM25 + cosine-KNN search described in spec.md
// §4.3: each arm contributes independently-normalized scores, blended by
// alpha, then filtered and limited.
func (s *Store) Recall(ctx context.Context, in RecallInput) ([]RecallResult, error) {
	limit := in.Limit
	if limit <= 0 {
		limit = 10
	}

	alpha := in.Alpha
	if alpha <= 0 {
		alpha = 0.7
	}

	minScore := in.MinScore
	if minScore <= 0 {
		minScore = 0.3
	}

	candidates := map[string]*candidate{}

	if err := s.keywordArm(ctx, in.Query, candidates); err != nil {
		return nil, fmt.Errorf("memory: keyword arm: %w", err)
	}

	if s.embedding != nil && in.Query != "" {
		if err := s.semanticArm(ctx, in.Query, candidates); err != nil {
			return nil, fmt.Errorf("memory: semantic arm: %w", err)
		}
	}

	normalizeArm(candidates, func(c *candidate) (float64, bool) { return c.keywordScore, c.hasKeyword },
		func(c *candidate, v float64) { c.keywordScore = v })
	normalizeArm(candidates, func(c *candidate) (float64, bool) { return c.semanticScore, c.hasSemantic },
		func(c *candidate, v float64) { c.semanticScore = v })

	ids := make([]string, 0, len(candidates))
	for id := range candidates {
		ids = append(ids, id)
	}

	rows, err := s.fetchMemoriesByID(ctx, ids, in)
	if err != nil {
		return nil, err
	}

	results := make([]RecallResult, 0, len(rows))

	for _, m := range rows {
		c := candidates[m.ID]

		score := alpha*c.semanticScore + (1-alpha)*c.keywordScore
		if score < minScore {
			continue
		}

		source := RecallSourceHybrid
		switch {
		case c.hasSemantic && !c.hasKeyword:
			source = RecallSourceSemantic
		case c.hasKeyword && !c.hasSemantic:
			source = RecallSourceKeyword
		}

		results = append(results, RecallResult{
			ID:        m.ID,
			Content:   m.Content,
			Score:     score,
			Source:    source,
			Type:      m.Type,
			Tags:      m.Tags,
			Pinned:    m.Pinned,
			Who:       m.Who,
			CreatedAt: m.CreatedAt,
		})
	}

	sortResults(results)

	if len(results) > limit {
		results = results[:limit]
	}

	return results, nil
}

func (s *Store) keywordArm(ctx context.Context, query string, candidates map[string]*candidate) error {
	if strings.TrimSpace(query) == "" {
		return nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT m.id, bm25(memories_fts) AS rank
		FROM memories_fts
		JOIN memories m ON m.rowid = memories_fts.rowid
		WHERE memories_fts MATCH ? AND m.is_deleted = 0
		ORDER BY rank LIMIT ?
	`, query, defaultTopK)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			id   string
			rank float64
		)

		if err := rows.Scan(&id, &rank); err != nil {
			return err
		}

		// bm25() returns lower-is-better; invert so higher is better before
		// normalization, matching the semantic arm's orientation.
		c := getOrCreate(candidates, id)
		c.hasKeyword = true
		c.keywordScore = -rank
	}

	return rows.Err()
}

func (s *Store) semanticArm(ctx context.Context, query string, candidates map[string]*candidate) error {
	queryVec, err := s.embedding.Embed(ctx, query)
	if err != nil {
		return err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT v.memory_id, v.vector FROM vec_embeddings v
		JOIN memories m ON m.id = v.memory_id
		WHERE m.is_deleted = 0
	`)
	if err != nil {
		return err
	}
	defer rows.Close()

	type scored struct {
		id    string
		score float64
	}

	var scores []scored

	for rows.Next() {
		var (
			id  string
			raw []byte
		)

		if err := rows.Scan(&id, &raw); err != nil {
			return err
		}

		scores = append(scores, scored{id: id, score: cosineSimilarity(queryVec, decodeVector(raw))})
	}

	if err := rows.Err(); err != nil {
		return err
	}

	sort.Slice(scores, func(i, j int) bool { return scores[i].score > scores[j].score })

	if len(scores) > defaultTopK {
		scores = scores[:defaultTopK]
	}

	for _, sc := range scores {
		c := getOrCreate(candidates, sc.id)
		c.hasSemantic = true
		c.semanticScore = sc.score
	}

	return nil
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, normA, normB float64

	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

func getOrCreate(m map[string]*candidate, id string) *candidate {
	c, ok := m[id]
	if !ok {
		c = &candidate{id: id}
		m[id] = c
	}

	return c
}

// normalizeArm min-max normalizes one arm's scores to [0,1] over its own
// candidate set. A zero-span arm (a single candidate, or several tied
// scores) has every member already at the top of its own range, so it
// normalizes to 1.0 rather than dividing by a degenerate span of zero.
func normalizeArm(candidates map[string]*candidate, get func(*candidate) (float64, bool), set func(*candidate, float64)) {
	min, max := math.Inf(1), math.Inf(-1)

	for _, c := range candidates {
		v, has := get(c)
		if !has {
			continue
		}

		if v < min {
			min = v
		}

		if v > max {
			max = v
		}
	}

	span := max - min

	for _, c := range candidates {
		v, has := get(c)
		if !has {
			continue
		}

		if span == 0 {
			set(c, 1)

			continue
		}

		set(c, (v-min)/span)
	}
}

func (s *Store) fetchMemoriesByID(ctx context.Context, ids []string, filter RecallInput) ([]Memory, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	placeholders := make([]string, len(ids))
	args := make([]any, 0, len(ids)+4)

	for i, id := range ids {
		placeholders[i] = "?"
		args = append(args, id)
	}

	query := fmt.Sprintf(`
		SELECT id, content, type, importance, confidence, tags, who, pinned, source, is_deleted, created_at, updated_at
		FROM memories WHERE id IN (%s) AND is_deleted = 0
	`, strings.Join(placeholders, ","))

	if filter.Type != "" {
		query += " AND type = ?"
		args = append(args, string(filter.Type))
	}

	if filter.Who != "" {
		query += " AND who = ?"
		args = append(args, filter.Who)
	}

	if !filter.Since.IsZero() {
		query += " AND created_at >= ?"
		args = append(args, filter.Since.UTC().Format(time.RFC3339))
	}

	if !filter.Until.IsZero() {
		query += " AND created_at <= ?"
		args = append(args, filter.Until.UTC().Format(time.RFC3339))
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Memory

	for rows.Next() {
		m, err := scanMemoryRows(rows)
		if err != nil {
			return nil, err
		}

		if len(filter.Tags) > 0 && !hasAnyTag(m.Tags, filter.Tags) {
			continue
		}

		out = append(out, m)
	}

	return out, rows.Err()
}

func scanMemoryRows(rows *sql.Rows) (Memory, error) {
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

	if err := rows.Scan(&m.ID, &m.Content, &typ, &m.Importance, &m.Confidence, &tags, &who, &pinned, &source, &isDeleted, &createdAt, &updatedAt); err != nil {
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

func hasAnyTag(have, want []string) bool {
	set := make(map[string]bool, len(have))
	for _, t := range have {
		set[t] = true
	}

	for _, w := range want {
		if set[w] {
			return true
		}
	}

	return false
}

// sortResults orders by score descending, with pinned rows first within
// tied score bands (spec.md's stated tie-break).
func sortResults(results []RecallResult) {
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}

		return results[i].Pinned && !results[j].Pinned
	})
}

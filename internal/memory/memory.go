package memory

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"
)

// Type enumerates the memory kinds the refiners and distillation produce.
// Mirrors internal/refiner.MemoryType as a type of its own; the adapter in
// remember.go converts between the two when refiners persist through the
// Store.
type Type string

const (
	TypeExplicit   Type = "explicit"
	TypeSkill      Type = "skill"
	TypeFact       Type = "fact"
	TypeDecision   Type = "decision"
	TypeProcedural Type = "procedural"
	TypePreference Type = "preference"
	TypePattern    Type = "pattern"
	TypeSemantic   Type = "semantic"
	TypeSystem     Type = "system"
)

// Memory is one persisted row from the memories table.
type Memory struct {
	ID         string
	Content    string
	Type       Type
	Importance float64
	Confidence float64
	Tags       []string
	Who        string
	Pinned     bool
	Source     string
	IsDeleted  bool
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// RememberInput is the persistence request shape, matching the
// POST /api/memory/remember body and internal/refiner.ExtractedMemory.
type RememberInput struct {
	Content    string
	Type       Type
	Importance float64
	Confidence float64
	Tags       []string
	Who        string
	Pinned     bool
	Source     string
}

// RememberResult reports whether a vector embedding was stored alongside
// the memory row.
type RememberResult struct {
	ID       string
	Embedded bool
}

func newMemoryID(now time.Time) string {
	return fmt.Sprintf("mem_%d_%s", now.UnixMilli(), randomSuffix(7))
}

func randomSuffix(n int) string {
	buf := make([]byte, (n+1)/2)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand failing is effectively unrecoverable on any real
		// platform; fall back to a fixed suffix rather than panic.
		return "0000000"[:n]
	}

	return hex.EncodeToString(buf)[:n]
}

func marshalTags(tags []string) string {
	if tags == nil {
		tags = []string{}
	}

	b, err := json.Marshal(tags)
	if err != nil {
		return "[]"
	}

	return string(b)
}

func unmarshalTags(raw string) []string {
	var tags []string
	if err := json.Unmarshal([]byte(raw), &tags); err != nil {
		return nil
	}

	return tags
}

func boolToInt(b bool) int {
	if b {
		return 1
	}

	return 0
}

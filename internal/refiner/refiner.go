// Package refiner turns accumulated capture bundles into persisted
// memories by running them through a small set of LLM-driven extractors.
// Each extractor (a Refiner) owns its own prompt and parsing; a shared
// base library (base.go) provides the LLM call, JSON cleanup, and
// health-check plumbing they all need — a library of helpers, not a
// superclass.
package refiner

import (
	"context"
	"time"

	"github.com/signet-run/signet/internal/capture"
)

// MemoryType enumerates the kinds of memory a refiner (or the explicit
// API) can produce.
type MemoryType string

const (
	MemoryTypeExplicit   MemoryType = "explicit"
	MemoryTypeSkill      MemoryType = "skill"
	MemoryTypeFact       MemoryType = "fact"
	MemoryTypeDecision   MemoryType = "decision"
	MemoryTypeProcedural MemoryType = "procedural"
	MemoryTypePreference MemoryType = "preference"
	MemoryTypePattern    MemoryType = "pattern"
	MemoryTypeSemantic   MemoryType = "semantic"
	MemoryTypeSystem     MemoryType = "system"
)

// ExtractedMemory is one candidate memory a refiner produced from a
// capture bundle, ready for the memory store's remember path.
type ExtractedMemory struct {
	Content    string
	Type       MemoryType
	Importance float64
	Confidence float64
	Tags       []string
	Who        string
	Source     string
}

// Rememberer persists an ExtractedMemory. Implemented by the memory
// store; declared here so the refiner package doesn't depend on it.
type Rememberer interface {
	Remember(ctx context.Context, mem ExtractedMemory) (id string, embedded bool, err error)
}

// Refiner is one LLM-driven extractor over a capture bundle. Concrete
// refiners hold no shared embedded state; they call into base.go's
// helpers directly.
type Refiner interface {
	// Name identifies the refiner, e.g. "skill-extractor".
	Name() string

	// CooldownMinutes is the minimum interval between successive runs.
	CooldownMinutes() int

	// SystemPrompt is the fixed instruction sent with every LLM call.
	SystemPrompt() string

	// HasEnoughData reports whether bundle carries enough signal to be
	// worth an LLM call.
	HasEnoughData(bundle capture.CaptureBundle) bool

	// FormatContext renders bundle into the user-turn prompt text,
	// already sanitized and wrapped in <user_data> delimiters.
	FormatContext(bundle capture.CaptureBundle) string

	// ParseResponse turns the LLM's raw response text into zero or more
	// extracted memories, applying this refiner's confidence floor.
	ParseResponse(raw string) []ExtractedMemory
}

// shouldRun reports whether enough time has passed since lastRun for a
// refiner with the given cooldown to run again. A zero lastRun means the
// refiner has never run.
func shouldRun(cooldownMinutes int, lastRun time.Time, now time.Time) bool {
	if lastRun.IsZero() {
		return true
	}

	return now.Sub(lastRun) >= time.Duration(cooldownMinutes)*time.Minute
}

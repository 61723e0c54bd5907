// Package distill turns accumulated memories and perception history into
// three derived artifacts: a cognitive profile, an expertise graph, and an
// agent card — all pure aggregations over what the memory store already
// holds, run on a gated daily schedule.
package distill

import (
	"context"
	"time"

	"github.com/signet-run/signet/internal/memory"
)

// profileMemoryTypes are the memory types the cognitive profile step reads,
// per spec.md §4.4 step 1.
var profileMemoryTypes = []memory.Type{
	memory.TypeSkill,
	memory.TypeDecision,
	memory.TypeProcedural,
	memory.TypePreference,
	memory.TypeFact,
	memory.TypePattern,
}

const profileMemoryLimit = 500

// Store is the subset of *memory.Store distillation depends on, declared
// here so tests can fake it without a real SQLite file.
type Store interface {
	RecentMemoriesByTypes(ctx context.Context, types []memory.Type, since time.Time, limit int) ([]memory.Memory, error)
	RecentScreenCaptures(ctx context.Context, since time.Time) ([]memory.ScreenCaptureRow, error)
	RecentTerminalCaptures(ctx context.Context, since time.Time) ([]memory.TerminalCaptureRow, error)
	GetPerceptionState(ctx context.Context, key string) (string, error)
	SetPerceptionState(ctx context.Context, key, value string) error
	ReplaceExpertiseGraph(ctx context.Context, nodes []memory.ExpertiseNode, edges []memory.ExpertiseEdge) error
	RelatedEntities(ctx context.Context, label string, limit int) ([]memory.ExpertiseEdge, error)
	Remember(ctx context.Context, in memory.RememberInput) (memory.RememberResult, error)
	LatestByTag(ctx context.Context, tag string) (memory.Memory, error)
	UpdateContent(ctx context.Context, id, content string) error
}

// LLMGenerator is the subset of *refiner.LLMClient distillation needs for
// the cognitive-profile synthesis step.
type LLMGenerator interface {
	Generate(ctx context.Context, system, prompt string) (string, error)
}

// Distiller runs the profile/graph/card pipeline against a Store.
type Distiller struct {
	store Store
	llm   LLMGenerator
}

// NewDistiller builds a Distiller over store, using llm for the
// cognitive-profile synthesis call.
func NewDistiller(store Store, llm LLMGenerator) *Distiller {
	return &Distiller{store: store, llm: llm}
}

const (
	stateLastRun             = "distillation.lastRun"
	stateLastProfileUpdate   = "distillation.lastProfileUpdate"
	stateLastGraphUpdate     = "distillation.lastGraphUpdate"
	stateLastCardGeneration  = "distillation.lastCardGeneration"
)

// ShouldRun reports whether interval has elapsed since the last run, per
// perception_state["distillation.lastRun"].
func (d *Distiller) ShouldRun(ctx context.Context, now time.Time, interval time.Duration) (bool, error) {
	raw, err := d.store.GetPerceptionState(ctx, stateLastRun)
	if err != nil {
		return false, err
	}

	if raw == "" {
		return true, nil
	}

	last, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return true, nil
	}

	return now.Sub(last) >= interval, nil
}

// Run executes the full profile → graph → card pipeline and writes the
// four run-gating keys, per spec.md §4.4's "Run gating" paragraph.
func (d *Distiller) Run(ctx context.Context, now time.Time) error {
	profile, err := d.RunCognitiveProfile(ctx, now)
	if err != nil {
		return err
	}

	if err := d.store.SetPerceptionState(ctx, stateLastProfileUpdate, now.UTC().Format(time.RFC3339)); err != nil {
		return err
	}

	if err := d.RunExpertiseGraph(ctx); err != nil {
		return err
	}

	if err := d.store.SetPerceptionState(ctx, stateLastGraphUpdate, now.UTC().Format(time.RFC3339)); err != nil {
		return err
	}

	if _, err := d.BuildAgentCard(ctx, profile); err != nil {
		return err
	}

	if err := d.store.SetPerceptionState(ctx, stateLastCardGeneration, now.UTC().Format(time.RFC3339)); err != nil {
		return err
	}

	return d.store.SetPerceptionState(ctx, stateLastRun, now.UTC().Format(time.RFC3339))
}

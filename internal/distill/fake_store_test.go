package distill

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/signet-run/signet/internal/memory"
)

// fakeStore is a minimal in-memory Store fake, enough to exercise the
// profile/graph pipeline without a real SQLite file.
type fakeStore struct {
	memories  []memory.Memory
	screens   []memory.ScreenCaptureRow
	terminals []memory.TerminalCaptureRow
	state     map[string]string

	nodes []memory.ExpertiseNode
	edges []memory.ExpertiseEdge

	remembered []memory.RememberInput
	updated    map[string]string

	nextID int
}

func newFakeStore() *fakeStore {
	return &fakeStore{state: map[string]string{}, updated: map[string]string{}}
}

func (f *fakeStore) RecentMemoriesByTypes(_ context.Context, types []memory.Type, since time.Time, limit int) ([]memory.Memory, error) {
	want := map[memory.Type]bool{}
	for _, t := range types {
		want[t] = true
	}

	var out []memory.Memory

	for _, m := range f.memories {
		if !want[m.Type] {
			continue
		}

		if !since.IsZero() && m.CreatedAt.Before(since) {
			continue
		}

		out = append(out, m)

		if len(out) >= limit {
			break
		}
	}

	return out, nil
}

func (f *fakeStore) RecentScreenCaptures(_ context.Context, since time.Time) ([]memory.ScreenCaptureRow, error) {
	var out []memory.ScreenCaptureRow

	for _, s := range f.screens {
		if !since.IsZero() && s.Timestamp.Before(since) {
			continue
		}

		out = append(out, s)
	}

	return out, nil
}

func (f *fakeStore) RecentTerminalCaptures(_ context.Context, since time.Time) ([]memory.TerminalCaptureRow, error) {
	var out []memory.TerminalCaptureRow

	for _, t := range f.terminals {
		if !since.IsZero() && t.Timestamp.Before(since) {
			continue
		}

		out = append(out, t)
	}

	return out, nil
}

func (f *fakeStore) GetPerceptionState(_ context.Context, key string) (string, error) {
	return f.state[key], nil
}

func (f *fakeStore) SetPerceptionState(_ context.Context, key, value string) error {
	f.state[key] = value
	return nil
}

func (f *fakeStore) ReplaceExpertiseGraph(_ context.Context, nodes []memory.ExpertiseNode, edges []memory.ExpertiseEdge) error {
	f.nodes = nodes
	f.edges = edges

	return nil
}

func (f *fakeStore) RelatedEntities(_ context.Context, label string, limit int) ([]memory.ExpertiseEdge, error) {
	var out []memory.ExpertiseEdge

	for _, e := range f.edges {
		if e.SourceID == label || e.TargetID == label {
			out = append(out, e)
		}

		if len(out) >= limit {
			break
		}
	}

	return out, nil
}

func (f *fakeStore) Remember(_ context.Context, in memory.RememberInput) (memory.RememberResult, error) {
	f.remembered = append(f.remembered, in)

	f.nextID++
	id := fmt.Sprintf("mem_fake_%d", f.nextID)

	f.memories = append(f.memories, memory.Memory{
		ID:        id,
		Content:   in.Content,
		Type:      in.Type,
		Tags:      in.Tags,
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	})

	return memory.RememberResult{ID: id}, nil
}

func (f *fakeStore) LatestByTag(_ context.Context, tag string) (memory.Memory, error) {
	for i := len(f.memories) - 1; i >= 0; i-- {
		for _, t := range f.memories[i].Tags {
			if t == tag {
				return f.memories[i], nil
			}
		}
	}

	return memory.Memory{}, sql.ErrNoRows
}

func (f *fakeStore) UpdateContent(_ context.Context, id, content string) error {
	f.updated[id] = content

	for i := range f.memories {
		if f.memories[i].ID == id {
			f.memories[i].Content = content
		}
	}

	return nil
}

// fakeLLM returns a fixed response string, recording every prompt it saw.
type fakeLLM struct {
	response string
	err      error
	prompts  []string
}

func (f *fakeLLM) Generate(_ context.Context, _ string, prompt string) (string, error) {
	f.prompts = append(f.prompts, prompt)
	return f.response, f.err
}

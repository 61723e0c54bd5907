package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuditEmbeddingGaps_NoProvider_AllUnembedded(t *testing.T) {
	t.Parallel()

	s := openTestStore(t, nil)
	ctx := context.Background()

	_, err := s.Remember(ctx, RememberInput{Content: "a fact", Type: TypeFact})
	require.NoError(t, err)
	_, err = s.Remember(ctx, RememberInput{Content: "another fact", Type: TypeFact})
	require.NoError(t, err)

	audit, err := s.AuditEmbeddingGaps(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, audit.Total)
	assert.Equal(t, 2, audit.Unembedded)
	assert.InDelta(t, 0, audit.Coverage, 0.001)
}

func TestBackfill_DryRun_ReportsWithoutWriting(t *testing.T) {
	t.Parallel()

	embed := &fakeEmbeddingProvider{vectors: map[string][]float32{}}
	s := openTestStore(t, embed)
	ctx := context.Background()

	_, err := s.Remember(ctx, RememberInput{Content: "fact one", Type: TypeFact})
	require.NoError(t, err)

	// The above Remember already embeds since embed is configured; remove
	// the row's embedding to simulate a pre-existing gap.
	_, err = s.DB().ExecContext(ctx, `DELETE FROM embeddings`)
	require.NoError(t, err)
	_, err = s.DB().ExecContext(ctx, `DELETE FROM vec_embeddings`)
	require.NoError(t, err)

	result, err := s.Backfill(ctx, 10, true)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Affected)

	audit, err := s.AuditEmbeddingGaps(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, audit.Unembedded)
}

func TestBackfill_EmbedsUnembeddedMemories(t *testing.T) {
	t.Parallel()

	embed := &fakeEmbeddingProvider{vectors: map[string][]float32{}}
	s := openTestStore(t, nil)
	ctx := context.Background()

	_, err := s.Remember(ctx, RememberInput{Content: "fact one", Type: TypeFact})
	require.NoError(t, err)

	s.embedding = embed

	result, err := s.Backfill(ctx, 10, false)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Affected)

	audit, err := s.AuditEmbeddingGaps(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, audit.Unembedded)
}

func TestBackfill_NoProviderConfigured_NoOp(t *testing.T) {
	t.Parallel()

	s := openTestStore(t, nil)

	result, err := s.Backfill(context.Background(), 10, false)
	require.NoError(t, err)
	assert.Equal(t, 0, result.Affected)
}

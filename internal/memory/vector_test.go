package memory

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEncodeDecodeVector_RoundTrips(t *testing.T) {
	t.Parallel()

	v := []float32{0.1, -2.5, 3.333, 0}
	decoded := decodeVector(encodeVector(v))

	assert.InDeltaSlice(t, v, decoded, 0.0001)
}

func TestCosineSimilarity_IdenticalVectorsIsOne(t *testing.T) {
	t.Parallel()

	assert.InDelta(t, 1.0, cosineSimilarity([]float32{1, 2, 3}, []float32{1, 2, 3}), 0.0001)
}

func TestCosineSimilarity_OrthogonalIsZero(t *testing.T) {
	t.Parallel()

	assert.InDelta(t, 0.0, cosineSimilarity([]float32{1, 0}, []float32{0, 1}), 0.0001)
}

func TestCosineSimilarity_MismatchedLengthIsZero(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 0.0, cosineSimilarity([]float32{1, 2}, []float32{1}))
}

package memory

import (
	"encoding/binary"
	"math"
)

// encodeVector packs a float32 vector into the little-endian blob format
// vec_embeddings stores. modernc.org/sqlite has no native vector type, so
// vectors are held as raw BLOBs and the brute-force KNN in recall.go decodes
// them back for scoring.
func encodeVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))

	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}

	return buf
}

// decodeVector is encodeVector's inverse.
func decodeVector(buf []byte) []float32 {
	n := len(buf) / 4
	out := make([]float32, n)

	for i := 0; i < n; i++ {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
	}

	return out
}

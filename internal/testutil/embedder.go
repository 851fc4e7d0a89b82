// Package testutil provides shared test doubles: a deterministic embedder,
// a scriptable model gateway stub, and an SSE stream parser.
package testutil

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"math"

	"github.com/pointstack/pointstack/internal/embed"
)

// StubEmbedder is a deterministic in-process embedder. The same text always
// yields the same unit vector, distinct texts yield (almost surely) distinct
// vectors, so similarity-sensitive code can be exercised without a network.
type StubEmbedder struct {
	// Fixed maps exact texts to canned vectors, taking precedence over the
	// derived vector.
	Fixed map[string][]float32
	// Err, when set, is returned from every call.
	Err error
	// Empty, when true, simulates a degraded provider returning no vector.
	Empty bool

	// Calls records every embedded text in order.
	Calls []string
}

var _ embed.Embedder = (*StubEmbedder)(nil)

func (s *StubEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	s.Calls = append(s.Calls, text)
	if s.Err != nil {
		return nil, s.Err
	}
	if s.Empty {
		return nil, nil
	}
	if v, ok := s.Fixed[text]; ok {
		return v, nil
	}
	return DeriveVector(text), nil
}

// DeriveVector produces a deterministic unit vector for text by expanding a
// SHA-256 digest across the embedding dimension.
func DeriveVector(text string) []float32 {
	dim := int(embed.VectorDimension)
	vec := make([]float32, dim)

	seed := sha256.Sum256([]byte(text))
	var norm float64
	for i := 0; i < dim; i++ {
		block := sha256.Sum256(append(seed[:], byte(i), byte(i>>8)))
		bits := binary.BigEndian.Uint32(block[:4])
		v := float64(bits)/float64(math.MaxUint32)*2 - 1
		vec[i] = float32(v)
		norm += v * v
	}

	norm = math.Sqrt(norm)
	if norm == 0 {
		return vec
	}
	for i := range vec {
		vec[i] = float32(float64(vec[i]) / norm)
	}
	return vec
}

// Package embed provides text embedding for the semantic cache and the
// retrieval pipeline.
//
// The production implementation wraps a Genkit ai.Embedder (Gemini). All
// consumers treat a nil/empty vector or an error as a degraded provider and
// fall back to non-vector behavior; an embedding outage must never fail a
// user-facing request.
package embed

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/firebase/genkit/go/ai"
	"google.golang.org/genai"
)

// VectorDimension is the embedding dimensionality used across the schema.
// gemini-embedding-001 natively outputs 3072 dimensions but supports
// truncation via OutputDimensionality; every vector column is vector(768).
const VectorDimension int32 = 768

// Embedder converts text into a fixed-length vector.
//
// Implementations may legitimately return an empty vector (nil, nil) when the
// underlying provider is unavailable; callers must tolerate that.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Func adapts an ordinary function to the Embedder interface.
type Func func(ctx context.Context, text string) ([]float32, error)

// Embed implements Embedder.
func (f Func) Embed(ctx context.Context, text string) ([]float32, error) {
	return f(ctx, text)
}

// GenkitEmbedder wraps a Genkit ai.Embedder into the package Embedder
// interface, truncating output to VectorDimension.
type GenkitEmbedder struct {
	embedder ai.Embedder
	logger   *slog.Logger
}

// NewGenkitEmbedder creates a GenkitEmbedder. A nil logger uses slog.Default().
func NewGenkitEmbedder(embedder ai.Embedder, logger *slog.Logger) *GenkitEmbedder {
	if logger == nil {
		logger = slog.Default()
	}
	return &GenkitEmbedder{embedder: embedder, logger: logger}
}

// Embed generates a vector embedding for the given text.
func (g *GenkitEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	dim := VectorDimension
	resp, err := g.embedder.Embed(ctx, &ai.EmbedRequest{
		Input:   []*ai.Document{ai.DocumentFromText(text, nil)},
		Options: &genai.EmbedContentConfig{OutputDimensionality: &dim},
	})
	if err != nil {
		return nil, fmt.Errorf("embedding text: %w", err)
	}
	if len(resp.Embeddings) == 0 || len(resp.Embeddings[0].Embedding) == 0 {
		g.logger.Warn("embedder returned empty vector")
		return nil, nil
	}
	return resp.Embeddings[0].Embedding, nil
}

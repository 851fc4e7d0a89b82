// Package cache implements the semantic response cache.
//
// Lookup is two-phase: an exact match on the SHA-256 hash of the normalized
// query, then an approximate-nearest-neighbor search over query embeddings
// with a cosine-similarity floor. Writes are at-least-once: concurrent
// identical requests may both miss and both insert, which is harmless because
// lookups only need some valid non-expired row.
//
// The cache is shared across users. A cached response produced with one
// user's context can be served to another user asking the same phrasing;
// see DESIGN.md for why this is preserved rather than fixed here.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pgvector/pgvector-go"

	"github.com/pointstack/pointstack/internal/embed"
)

const (
	// SimilarityThreshold is the cosine-similarity floor for a semantic hit.
	// Admits paraphrases ("how many points did I earn" vs "how many points
	// have I gotten") while rejecting topically-adjacent questions.
	SimilarityThreshold float32 = 0.92

	// DefaultTTL is how long a cache entry stays eligible for hits.
	DefaultTTL = 7 * 24 * time.Hour

	// semanticCandidates is how many ANN candidates to fetch; only the top
	// one is considered for a hit.
	semanticCandidates int32 = 1
)

// Entry is a cached query/response pair.
type Entry struct {
	ID           uuid.UUID
	QueryHash    string
	QueryText    string
	Embedding    *pgvector.Vector // nil when the embedder was unavailable at store time
	Response     string
	ModelUsed    string
	TokensInput  int
	TokensOutput int
	HitCount     int
	Similarity   float32 // populated on lookup: 1.0 exact, cosine similarity otherwise
	CreatedAt    time.Time
	ExpiresAt    time.Time
}

// Querier defines the database operations the gateway needs. Interface
// defined by the consumer; implemented by PGQuerier (store.go) in production
// and by fakes in tests.
type Querier interface {
	// GetByHash returns the newest non-expired entry with the given hash,
	// or pgx.ErrNoRows.
	GetByHash(ctx context.Context, queryHash string) (Entry, error)

	// SearchSimilar returns non-expired entries ordered by cosine distance
	// to the query embedding, each carrying its Similarity.
	SearchSimilar(ctx context.Context, embedding pgvector.Vector, limit int32) ([]Entry, error)

	// Insert adds a new entry. Duplicate hashes are tolerated.
	Insert(ctx context.Context, e Entry) error

	// BumpHitCount increments an entry's hit counter.
	BumpHitCount(ctx context.Context, id uuid.UUID) error
}

// Option configures a Gateway.
type Option func(*Gateway)

// WithThreshold overrides the semantic similarity threshold.
func WithThreshold(t float32) Option {
	return func(g *Gateway) { g.threshold = t }
}

// WithTTL overrides the entry lifetime applied on Store.
func WithTTL(ttl time.Duration) Option {
	return func(g *Gateway) { g.ttl = ttl }
}

// Gateway is the semantic cache front. Safe for concurrent use.
type Gateway struct {
	querier   Querier
	embedder  embed.Embedder
	threshold float32
	ttl       time.Duration
	logger    *slog.Logger
}

// New creates a cache Gateway. A nil logger uses slog.Default().
func New(querier Querier, embedder embed.Embedder, logger *slog.Logger, opts ...Option) *Gateway {
	if logger == nil {
		logger = slog.Default()
	}
	g := &Gateway{
		querier:   querier,
		embedder:  embedder,
		threshold: SimilarityThreshold,
		ttl:       DefaultTTL,
		logger:    logger,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// NormalizeQuery canonicalizes query text before hashing: lowercase + trim.
func NormalizeQuery(query string) string {
	return strings.ToLower(strings.TrimSpace(query))
}

// HashQuery returns the hex SHA-256 of the normalized query.
func HashQuery(query string) string {
	sum := sha256.Sum256([]byte(NormalizeQuery(query)))
	return hex.EncodeToString(sum[:])
}

// Lookup resolves a query against the cache. The second return value reports
// whether an entry was found.
//
// Store and embedder failures are logged and treated as a miss: cache
// degradation must never fail the request.
func (g *Gateway) Lookup(ctx context.Context, query string) (*Entry, bool) {
	// Phase 1: exact hash match.
	hash := HashQuery(query)
	entry, err := g.querier.GetByHash(ctx, hash)
	switch {
	case err == nil:
		entry.Similarity = 1.0
		g.recordHit(ctx, &entry)
		return &entry, true
	case errors.Is(err, pgx.ErrNoRows):
		// fall through to semantic phase
	default:
		g.logger.Warn("cache exact lookup failed, treating as miss", "error", err)
		return nil, false
	}

	// Phase 2: approximate match, only when an embedding is obtainable.
	vec, err := g.embedder.Embed(ctx, query)
	if err != nil || len(vec) == 0 {
		if err != nil {
			g.logger.Warn("embedding unavailable for semantic lookup", "error", err)
		}
		return nil, false
	}

	candidates, err := g.querier.SearchSimilar(ctx, pgvector.NewVector(vec), semanticCandidates)
	if err != nil {
		g.logger.Warn("semantic lookup failed, treating as miss", "error", err)
		return nil, false
	}
	if len(candidates) == 0 || candidates[0].Similarity < g.threshold {
		return nil, false
	}

	best := candidates[0]
	g.recordHit(ctx, &best)
	return &best, true
}

// Store inserts a fresh cache entry for a completed generation. All failures
// are logged and swallowed; the user-facing response was already delivered.
func (g *Gateway) Store(ctx context.Context, query, response, model string, tokensIn, tokensOut int) {
	var embedding *pgvector.Vector
	vec, err := g.embedder.Embed(ctx, query)
	if err != nil {
		g.logger.Warn("embedding unavailable, caching without vector", "error", err)
	} else if len(vec) > 0 {
		v := pgvector.NewVector(vec)
		embedding = &v
	}

	now := time.Now()
	entry := Entry{
		ID:           uuid.New(),
		QueryHash:    HashQuery(query),
		QueryText:    query,
		Embedding:    embedding,
		Response:     response,
		ModelUsed:    model,
		TokensInput:  tokensIn,
		TokensOutput: tokensOut,
		CreatedAt:    now,
		ExpiresAt:    now.Add(g.ttl),
	}

	if err := g.querier.Insert(ctx, entry); err != nil {
		g.logger.Warn("cache store failed", "error", err, "query_hash", entry.QueryHash)
		return
	}
	g.logger.Debug("cached response", "query_hash", entry.QueryHash, "model", model)
}

// recordHit bumps the entry's hit counter. Best-effort observability, not
// used for correctness.
func (g *Gateway) recordHit(ctx context.Context, entry *Entry) {
	if err := g.querier.BumpHitCount(ctx, entry.ID); err != nil {
		g.logger.Warn("hit count bump failed", "error", err, "id", entry.ID)
		return
	}
	entry.HitCount++
}

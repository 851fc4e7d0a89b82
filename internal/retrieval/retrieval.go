// Package retrieval assembles grounding context for a chat request from four
// independent sources: the user's document chunks, the shared benefits
// knowledge base, the transaction ledger, and the card registry.
//
// The four retrievals run concurrently and fail independently: a source that
// errors contributes an empty result and the request proceeds. When the
// embedding provider is degraded the vector-backed sources fall back to
// plain relational reads, so the aggregator never returns an empty context
// purely because embeddings are unavailable.
package retrieval

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/pgvector/pgvector-go"

	"github.com/pointstack/pointstack/internal/embed"
)

// NoUserDataNotice is returned by BuildContextSection when every source is
// empty, so the prompt can instruct the model to answer generically instead
// of stalling on an empty context block.
const NoUserDataNotice = "No user data available. Answer from general knowledge."

// topK is how many chunks each semantic source contributes.
const topK int32 = 5

// Context is the request-scoped retrieval result.
type Context struct {
	DocumentChunks     []string
	BenefitsContext    []string
	TransactionSummary string
	UserCards          string
}

// ScoredChunk is a text chunk with its cosine similarity to the query.
type ScoredChunk struct {
	Content    string
	Similarity float32
}

// CategorySummary aggregates a user's transactions within one category.
type CategorySummary struct {
	Category string
	Amount   float64
	Points   int64
	Count    int64
}

// Card is one row of the user's card registry.
type Card struct {
	Name          string
	Issuer        string
	PointsBalance int
	PointValue    float64
}

// DocumentSource reads the user's uploaded document chunks.
type DocumentSource interface {
	SearchDocuments(ctx context.Context, userID string, embedding pgvector.Vector, limit int32) ([]ScoredChunk, error)
	RecentDocuments(ctx context.Context, userID string, limit int32) ([]string, error)
}

// BenefitsSource reads the shared benefits knowledge base.
type BenefitsSource interface {
	SearchBenefits(ctx context.Context, embedding pgvector.Vector, limit int32) ([]ScoredChunk, error)
	ListBenefits(ctx context.Context, limit int32) ([]string, error)
}

// TransactionSource aggregates the user's transaction ledger.
type TransactionSource interface {
	SummarizeByCategory(ctx context.Context, userID string) ([]CategorySummary, error)
}

// CardSource reads the user's card registry. cardID narrows the result to a
// single card when non-empty.
type CardSource interface {
	ListCards(ctx context.Context, userID, cardID string) ([]Card, error)
}

// Sources bundles the four retrieval backends.
type Sources struct {
	Documents    DocumentSource
	Benefits     BenefitsSource
	Transactions TransactionSource
	Cards        CardSource
}

// Aggregator fans out to the retrieval sources and merges their results.
// Safe for concurrent use.
type Aggregator struct {
	sources  Sources
	embedder embed.Embedder
	logger   *slog.Logger
}

// New creates an Aggregator. A nil logger uses slog.Default().
func New(sources Sources, embedder embed.Embedder, logger *slog.Logger) *Aggregator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Aggregator{sources: sources, embedder: embedder, logger: logger}
}

// Retrieve gathers context for the query. selectedCardID optionally scopes
// the card registry to one card.
func (a *Aggregator) Retrieve(ctx context.Context, query, userID, selectedCardID string) *Context {
	// Embed once; all vector sources share the result. A failure here only
	// downgrades the two semantic sources to relational fallbacks.
	var queryVec *pgvector.Vector
	vec, err := a.embedder.Embed(ctx, query)
	if err != nil {
		a.logger.Warn("query embedding failed, using relational fallbacks", "error", err)
	} else if len(vec) > 0 {
		v := pgvector.NewVector(vec)
		queryVec = &v
	}

	result := &Context{}
	var wg sync.WaitGroup
	wg.Add(4)

	go func() {
		defer wg.Done()
		result.DocumentChunks = a.retrieveDocuments(ctx, userID, queryVec)
	}()
	go func() {
		defer wg.Done()
		result.BenefitsContext = a.retrieveBenefits(ctx, queryVec)
	}()
	go func() {
		defer wg.Done()
		result.TransactionSummary = a.retrieveTransactions(ctx, userID)
	}()
	go func() {
		defer wg.Done()
		result.UserCards = a.retrieveCards(ctx, userID, selectedCardID)
	}()

	wg.Wait()
	return result
}

func (a *Aggregator) retrieveDocuments(ctx context.Context, userID string, queryVec *pgvector.Vector) []string {
	if queryVec != nil {
		chunks, err := a.sources.Documents.SearchDocuments(ctx, userID, *queryVec, topK)
		if err == nil {
			return annotateChunks(chunks)
		}
		a.logger.Warn("document search failed, using recency fallback", "error", err)
	}

	recent, err := a.sources.Documents.RecentDocuments(ctx, userID, topK)
	if err != nil {
		a.logger.Warn("document fallback failed", "error", err)
		return nil
	}
	return recent
}

func (a *Aggregator) retrieveBenefits(ctx context.Context, queryVec *pgvector.Vector) []string {
	if queryVec != nil {
		chunks, err := a.sources.Benefits.SearchBenefits(ctx, *queryVec, topK)
		if err == nil {
			return annotateChunks(chunks)
		}
		a.logger.Warn("benefits search failed, using listing fallback", "error", err)
	}

	listed, err := a.sources.Benefits.ListBenefits(ctx, topK)
	if err != nil {
		a.logger.Warn("benefits fallback failed", "error", err)
		return nil
	}
	return listed
}

func (a *Aggregator) retrieveTransactions(ctx context.Context, userID string) string {
	summaries, err := a.sources.Transactions.SummarizeByCategory(ctx, userID)
	if err != nil {
		a.logger.Warn("transaction summary failed", "error", err)
		return ""
	}
	return FormatTransactionSummary(summaries)
}

func (a *Aggregator) retrieveCards(ctx context.Context, userID, selectedCardID string) string {
	cards, err := a.sources.Cards.ListCards(ctx, userID, selectedCardID)
	if err != nil {
		a.logger.Warn("card registry read failed", "error", err)
		return ""
	}
	return FormatCards(cards)
}

// annotateChunks prefixes each chunk with its relevance percentage.
func annotateChunks(chunks []ScoredChunk) []string {
	out := make([]string, 0, len(chunks))
	for _, c := range chunks {
		out = append(out, fmt.Sprintf("[%.0f%% relevant] %s", c.Similarity*100, c.Content))
	}
	return out
}

// FormatTransactionSummary serializes category aggregates compactly.
func FormatTransactionSummary(summaries []CategorySummary) string {
	if len(summaries) == 0 {
		return ""
	}
	parts := make([]string, 0, len(summaries))
	for _, s := range summaries {
		parts = append(parts, fmt.Sprintf("%s: $%.2f (%d txns, %d pts)",
			s.Category, s.Amount, s.Count, s.Points))
	}
	return strings.Join(parts, "; ")
}

// FormatCards renders the card registry as a human-readable list with the
// estimated monetary value of each card's balance.
func FormatCards(cards []Card) string {
	if len(cards) == 0 {
		return ""
	}
	lines := make([]string, 0, len(cards))
	for _, c := range cards {
		name := c.Name
		if c.Issuer != "" {
			name = fmt.Sprintf("%s (%s)", c.Name, c.Issuer)
		}
		value := float64(c.PointsBalance) * c.PointValue
		lines = append(lines, fmt.Sprintf("- %s: %d points, est. value $%.2f", name, c.PointsBalance, value))
	}
	return strings.Join(lines, "\n")
}

// BuildContextSection renders the retrieved context as one deterministic
// prompt block: cards first (most personalization value), then document
// chunks, then the transaction summary, then the benefits knowledge base.
// Fixed ordering keeps the downstream prompt stable and diffable.
func BuildContextSection(c *Context) string {
	var sections []string

	if c.UserCards != "" {
		sections = append(sections, "### Your cards\n"+c.UserCards)
	}
	if len(c.DocumentChunks) > 0 {
		sections = append(sections, "### From your documents\n"+strings.Join(c.DocumentChunks, "\n"))
	}
	if c.TransactionSummary != "" {
		sections = append(sections, "### Transaction summary\n"+c.TransactionSummary)
	}
	if len(c.BenefitsContext) > 0 {
		sections = append(sections, "### Rewards program knowledge\n"+strings.Join(c.BenefitsContext, "\n"))
	}

	if len(sections) == 0 {
		return NoUserDataNotice
	}
	return strings.Join(sections, "\n---\n")
}

// Snippets flattens the context into individual snippets for evaluation
// logging and follow-up generation.
func (c *Context) Snippets() []string {
	var out []string
	if c.UserCards != "" {
		out = append(out, c.UserCards)
	}
	out = append(out, c.DocumentChunks...)
	if c.TransactionSummary != "" {
		out = append(out, c.TransactionSummary)
	}
	out = append(out, c.BenefitsContext...)
	return out
}

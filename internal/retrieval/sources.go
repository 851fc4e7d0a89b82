package retrieval

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

// PGSources implements all four source interfaces against PostgreSQL.
type PGSources struct {
	pool *pgxpool.Pool
}

// NewPGSources creates a PGSources backed by the given pool.
func NewPGSources(pool *pgxpool.Pool) *PGSources {
	return &PGSources{pool: pool}
}

// Bundle returns the Sources wiring for the aggregator.
func (s *PGSources) Bundle() Sources {
	return Sources{
		Documents:    s,
		Benefits:     s,
		Transactions: s,
		Cards:        s,
	}
}

// SearchDocuments performs semantic search over the user's document chunks.
func (s *PGSources) SearchDocuments(ctx context.Context, userID string, embedding pgvector.Vector, limit int32) ([]ScoredChunk, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT content, 1 - (embedding <=> $2) AS similarity
		 FROM document_chunks
		 WHERE user_id = $1 AND embedding IS NOT NULL
		 ORDER BY embedding <=> $2
		 LIMIT $3`,
		userID, embedding, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("searching document chunks: %w", err)
	}
	defer rows.Close()
	return scanScoredChunks(rows)
}

// RecentDocuments lists the user's newest chunks without similarity ranking.
func (s *PGSources) RecentDocuments(ctx context.Context, userID string, limit int32) ([]string, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT content FROM document_chunks
		 WHERE user_id = $1
		 ORDER BY created_at DESC
		 LIMIT $2`,
		userID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("listing document chunks: %w", err)
	}
	defer rows.Close()
	return scanStrings(rows)
}

// SearchBenefits performs semantic search over the shared benefits knowledge base.
func (s *PGSources) SearchBenefits(ctx context.Context, embedding pgvector.Vector, limit int32) ([]ScoredChunk, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT content, 1 - (embedding <=> $1) AS similarity
		 FROM benefit_snippets
		 WHERE embedding IS NOT NULL
		 ORDER BY embedding <=> $1
		 LIMIT $2`,
		embedding, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("searching benefits: %w", err)
	}
	defer rows.Close()
	return scanScoredChunks(rows)
}

// ListBenefits lists benefit snippets without similarity ranking.
func (s *PGSources) ListBenefits(ctx context.Context, limit int32) ([]string, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT content FROM benefit_snippets
		 ORDER BY created_at DESC
		 LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("listing benefits: %w", err)
	}
	defer rows.Close()
	return scanStrings(rows)
}

// SummarizeByCategory aggregates the user's transactions per category,
// largest spend first.
func (s *PGSources) SummarizeByCategory(ctx context.Context, userID string) ([]CategorySummary, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT category,
		        COALESCE(SUM(amount), 0)::float8,
		        COALESCE(SUM(points), 0)::bigint,
		        COUNT(*)::bigint
		 FROM transactions
		 WHERE user_id = $1
		 GROUP BY category
		 ORDER BY SUM(amount) DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("summarizing transactions: %w", err)
	}
	defer rows.Close()

	var summaries []CategorySummary
	for rows.Next() {
		var cs CategorySummary
		if err := rows.Scan(&cs.Category, &cs.Amount, &cs.Points, &cs.Count); err != nil {
			return nil, fmt.Errorf("scanning transaction summary: %w", err)
		}
		summaries = append(summaries, cs)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading transaction summaries: %w", err)
	}
	return summaries, nil
}

// ListCards reads the user's card registry, optionally scoped to one card.
func (s *PGSources) ListCards(ctx context.Context, userID, cardID string) ([]Card, error) {
	var rows pgx.Rows
	var err error

	if cardID != "" {
		rows, err = s.pool.Query(ctx,
			`SELECT card_name, COALESCE(issuer, ''), points_balance, point_value::float8
			 FROM cards
			 WHERE user_id = $1 AND id::text = $2`,
			userID, cardID,
		)
	} else {
		rows, err = s.pool.Query(ctx,
			`SELECT card_name, COALESCE(issuer, ''), points_balance, point_value::float8
			 FROM cards
			 WHERE user_id = $1
			 ORDER BY created_at`,
			userID,
		)
	}
	if err != nil {
		return nil, fmt.Errorf("listing cards: %w", err)
	}
	defer rows.Close()

	var cards []Card
	for rows.Next() {
		var c Card
		if err := rows.Scan(&c.Name, &c.Issuer, &c.PointsBalance, &c.PointValue); err != nil {
			return nil, fmt.Errorf("scanning card: %w", err)
		}
		cards = append(cards, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading cards: %w", err)
	}
	return cards, nil
}

func scanScoredChunks(rows pgx.Rows) ([]ScoredChunk, error) {
	var chunks []ScoredChunk
	for rows.Next() {
		var c ScoredChunk
		if err := rows.Scan(&c.Content, &c.Similarity); err != nil {
			return nil, fmt.Errorf("scanning chunk: %w", err)
		}
		chunks = append(chunks, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading chunks: %w", err)
	}
	return chunks, nil
}

func scanStrings(rows pgx.Rows) ([]string, error) {
	var out []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading rows: %w", err)
	}
	return out, nil
}

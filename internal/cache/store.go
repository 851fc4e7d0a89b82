package cache

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

// entryCols is the standard SELECT column list for scanEntry.
const entryCols = `id, query_hash, query_text, query_embedding, response,
	model_used, tokens_input, tokens_output, hit_count, created_at, expires_at`

// PGQuerier implements Querier against PostgreSQL + pgvector.
type PGQuerier struct {
	pool *pgxpool.Pool
}

// NewPGQuerier creates a PGQuerier backed by the given pool.
func NewPGQuerier(pool *pgxpool.Pool) *PGQuerier {
	return &PGQuerier{pool: pool}
}

// GetByHash returns the newest non-expired entry with the given hash.
// Duplicate hashes can exist under at-least-once caching; newest wins.
func (q *PGQuerier) GetByHash(ctx context.Context, queryHash string) (Entry, error) {
	row := q.pool.QueryRow(ctx,
		`SELECT `+entryCols+`
		 FROM response_cache
		 WHERE query_hash = $1 AND expires_at > now()
		 ORDER BY created_at DESC
		 LIMIT 1`,
		queryHash,
	)
	return scanEntry(row)
}

// SearchSimilar returns non-expired entries ordered by cosine distance to the
// query embedding. Similarity is 1 - cosine distance.
func (q *PGQuerier) SearchSimilar(ctx context.Context, embedding pgvector.Vector, limit int32) ([]Entry, error) {
	rows, err := q.pool.Query(ctx,
		`SELECT `+entryCols+`, 1 - (query_embedding <=> $1) AS similarity
		 FROM response_cache
		 WHERE expires_at > now() AND query_embedding IS NOT NULL
		 ORDER BY query_embedding <=> $1
		 LIMIT $2`,
		embedding, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("searching cache: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(
			&e.ID, &e.QueryHash, &e.QueryText, &e.Embedding, &e.Response,
			&e.ModelUsed, &e.TokensInput, &e.TokensOutput, &e.HitCount,
			&e.CreatedAt, &e.ExpiresAt, &e.Similarity,
		); err != nil {
			return nil, fmt.Errorf("scanning cache row: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading cache rows: %w", err)
	}
	return entries, nil
}

// Insert adds a new cache entry.
func (q *PGQuerier) Insert(ctx context.Context, e Entry) error {
	_, err := q.pool.Exec(ctx,
		`INSERT INTO response_cache
		 (id, query_hash, query_text, query_embedding, response, model_used,
		  tokens_input, tokens_output, created_at, expires_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		e.ID, e.QueryHash, e.QueryText, e.Embedding, e.Response, e.ModelUsed,
		e.TokensInput, e.TokensOutput, e.CreatedAt, e.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("inserting cache entry: %w", err)
	}
	return nil
}

// BumpHitCount increments the hit counter.
func (q *PGQuerier) BumpHitCount(ctx context.Context, id uuid.UUID) error {
	_, err := q.pool.Exec(ctx,
		`UPDATE response_cache SET hit_count = hit_count + 1 WHERE id = $1`,
		id,
	)
	if err != nil {
		return fmt.Errorf("bumping hit count: %w", err)
	}
	return nil
}

func scanEntry(row pgx.Row) (Entry, error) {
	var e Entry
	err := row.Scan(
		&e.ID, &e.QueryHash, &e.QueryText, &e.Embedding, &e.Response,
		&e.ModelUsed, &e.TokensInput, &e.TokensOutput, &e.HitCount,
		&e.CreatedAt, &e.ExpiresAt,
	)
	if err != nil {
		return Entry{}, err
	}
	return e, nil
}

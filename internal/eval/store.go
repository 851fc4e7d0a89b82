package eval

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

const insertUsageSQL = `
INSERT INTO usage_log (user_id, model, tokens_input, tokens_output, estimated_cost, query_type, cache_hit)
VALUES ($1, $2, $3, $4, $5, $6, $7)`

const insertEvaluationSQL = `
INSERT INTO eval_log (user_id, query, response, context_used, faithfulness_score, relevance_score, model_used, latency_ms)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

// PGQuerier implements Querier over a pgx connection pool.
type PGQuerier struct {
	pool *pgxpool.Pool
}

// NewPGQuerier builds a Postgres-backed evaluation store.
func NewPGQuerier(pool *pgxpool.Pool) *PGQuerier {
	return &PGQuerier{pool: pool}
}

func (q *PGQuerier) InsertUsage(ctx context.Context, rec UsageRecord) error {
	_, err := q.pool.Exec(ctx, insertUsageSQL,
		rec.UserID,
		rec.Model,
		rec.TokensInput,
		rec.TokensOutput,
		rec.EstimatedCost,
		rec.QueryType,
		rec.CacheHit,
	)
	if err != nil {
		return fmt.Errorf("insert usage row: %w", err)
	}
	return nil
}

func (q *PGQuerier) InsertEvaluation(ctx context.Context, rec EvalRecord, scores Scores) error {
	snippets := rec.ContextUsed
	if snippets == nil {
		snippets = []string{}
	}
	contextJSON, err := json.Marshal(snippets)
	if err != nil {
		return fmt.Errorf("marshal context snippets: %w", err)
	}

	_, err = q.pool.Exec(ctx, insertEvaluationSQL,
		rec.UserID,
		rec.Query,
		rec.Response,
		contextJSON,
		scores.Faithfulness,
		scores.Relevance,
		rec.ModelUsed,
		rec.LatencyMS,
	)
	if err != nil {
		return fmt.Errorf("insert evaluation row: %w", err)
	}
	return nil
}

// Package eval records token usage and heuristic quality scores for chat
// requests. Writes are append-only and best-effort: a failed log must never
// fail the response that triggered it.
package eval

import (
	"context"

	"github.com/pointstack/pointstack/internal/log"
)

// maxContextSnippets caps how many retrieval snippets are persisted with an
// evaluation record.
const maxContextSnippets = 5

// UsageRecord is one append-only usage row, written for every request. Cache
// hits log with zero tokens and zero cost.
type UsageRecord struct {
	UserID        string
	Model         string
	TokensInput   int
	TokensOutput  int
	EstimatedCost float64
	QueryType     string
	CacheHit      bool
}

// EvalRecord is one append-only quality row, written only for fresh
// generations. A cache hit repeats an already evaluated response.
type EvalRecord struct {
	UserID      string
	Query       string
	Response    string
	ContextUsed []string
	ModelUsed   string
	LatencyMS   int
}

// Querier is the storage surface the logger needs.
type Querier interface {
	InsertUsage(ctx context.Context, rec UsageRecord) error
	InsertEvaluation(ctx context.Context, rec EvalRecord, scores Scores) error
}

// Logger persists usage and evaluation records.
type Logger struct {
	querier Querier
	logger  log.Logger
}

// NewLogger builds an evaluation logger over the given storage.
func NewLogger(querier Querier, logger log.Logger) *Logger {
	return &Logger{querier: querier, logger: logger}
}

// LogUsage appends a usage row. Failures are logged and swallowed.
func (l *Logger) LogUsage(ctx context.Context, rec UsageRecord) {
	if err := l.querier.InsertUsage(ctx, rec); err != nil {
		l.logger.Warn("usage log write failed",
			"user_id", rec.UserID,
			"model", rec.Model,
			"error", err)
	}
}

// LogEvaluation scores the response and appends an evaluation row, keeping at
// most five context snippets. Failures are logged and swallowed.
func (l *Logger) LogEvaluation(ctx context.Context, rec EvalRecord) {
	if len(rec.ContextUsed) > maxContextSnippets {
		rec.ContextUsed = rec.ContextUsed[:maxContextSnippets]
	}

	scores := Score(rec.Query, rec.Response, rec.ContextUsed)
	if err := l.querier.InsertEvaluation(ctx, rec, scores); err != nil {
		l.logger.Warn("evaluation log write failed",
			"user_id", rec.UserID,
			"model", rec.ModelUsed,
			"error", err)
	}
}

package eval

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pointstack/pointstack/internal/log"
)

func TestScoreFullyGrounded(t *testing.T) {
	snippets := []string{"Travel Plus earns 3 points per dollar on dining purchases"}
	s := Score(
		"how many points on dining",
		"Travel Plus earns 3 points per dollar on dining",
		snippets,
	)

	assert.InDelta(t, 1.0, s.Faithfulness, 0.001)
	assert.Greater(t, s.Relevance, 0.0)
}

func TestScoreUngroundedResponse(t *testing.T) {
	s := Score(
		"grocery rewards",
		"quantum entanglement governs subatomic particle behavior",
		[]string{"cash back on groceries"},
	)

	assert.Zero(t, s.Faithfulness)
	assert.Zero(t, s.Relevance)
}

func TestScoreRelevanceEcho(t *testing.T) {
	// Both query tokens reappear, so the 2x-scaled echo saturates at 1.0.
	s := Score(
		"points balance",
		"Your points balance across all cards",
		nil,
	)
	assert.InDelta(t, 1.0, s.Relevance, 0.001)

	// One of two query tokens echoed: 2 * 1/2 = 1.0.
	s = Score("dining cashback", "dining earns extra", nil)
	assert.InDelta(t, 1.0, s.Relevance, 0.001)

	// Neither echoed.
	s = Score("dining cashback", "travel insurance coverage", nil)
	assert.Zero(t, s.Relevance)
}

func TestScorePartialGrounding(t *testing.T) {
	// Response tokens: alpha beta gamma delta epsilon (5); context covers one
	// of them: ratio 0.2 / 0.3 = 0.67 after rounding.
	s := Score("q", "alpha beta gamma delta epsilon", []string{"alpha"})
	assert.InDelta(t, 0.67, s.Faithfulness, 0.001)
}

func TestScoreEmptyInputs(t *testing.T) {
	s := Score("", "", nil)
	assert.Zero(t, s.Faithfulness)
	assert.Zero(t, s.Relevance)

	s = Score("the a an", "of to in", nil)
	assert.Zero(t, s.Faithfulness)
	assert.Zero(t, s.Relevance)
}

func TestScoreIgnoresCaseAndPunctuation(t *testing.T) {
	s := Score("DINING rewards?", "Dining, rewards!", []string{"dining rewards"})
	assert.InDelta(t, 1.0, s.Faithfulness, 0.001)
	assert.InDelta(t, 1.0, s.Relevance, 0.001)
}

type fakeQuerier struct {
	usage      []UsageRecord
	evals      []EvalRecord
	evalScores []Scores
	usageErr   error
	evalErr    error
}

func (f *fakeQuerier) InsertUsage(_ context.Context, rec UsageRecord) error {
	if f.usageErr != nil {
		return f.usageErr
	}
	f.usage = append(f.usage, rec)
	return nil
}

func (f *fakeQuerier) InsertEvaluation(_ context.Context, rec EvalRecord, scores Scores) error {
	if f.evalErr != nil {
		return f.evalErr
	}
	f.evals = append(f.evals, rec)
	f.evalScores = append(f.evalScores, scores)
	return nil
}

func TestLogUsage(t *testing.T) {
	q := &fakeQuerier{}
	l := NewLogger(q, log.NewNop())

	l.LogUsage(context.Background(), UsageRecord{
		UserID:       "user-1",
		Model:        "google/gemini-2.5-flash",
		TokensInput:  120,
		TokensOutput: 80,
		QueryType:    "chat",
		CacheHit:     true,
	})

	require.Len(t, q.usage, 1)
	assert.True(t, q.usage[0].CacheHit)
	assert.Equal(t, "chat", q.usage[0].QueryType)
}

func TestLogUsageSwallowsFailure(t *testing.T) {
	q := &fakeQuerier{usageErr: errors.New("connection refused")}
	l := NewLogger(q, log.NewNop())

	l.LogUsage(context.Background(), UsageRecord{UserID: "user-1"})
	assert.Empty(t, q.usage)
}

func TestLogEvaluationCapsSnippets(t *testing.T) {
	q := &fakeQuerier{}
	l := NewLogger(q, log.NewNop())

	snippets := []string{"one", "two", "three", "four", "five", "six", "seven"}
	l.LogEvaluation(context.Background(), EvalRecord{
		UserID:      "user-1",
		Query:       "points balance",
		Response:    "your points balance is 12000",
		ContextUsed: snippets,
		ModelUsed:   "google/gemini-2.5-pro",
		LatencyMS:   840,
	})

	require.Len(t, q.evals, 1)
	assert.Len(t, q.evals[0].ContextUsed, 5)
	require.Len(t, q.evalScores, 1)
	assert.GreaterOrEqual(t, q.evalScores[0].Relevance, 0.0)
}

func TestLogEvaluationSwallowsFailure(t *testing.T) {
	q := &fakeQuerier{evalErr: errors.New("relation missing")}
	l := NewLogger(q, log.NewNop())

	l.LogEvaluation(context.Background(), EvalRecord{UserID: "user-1", Query: "q", Response: "r"})
	assert.Empty(t, q.evals)
}

package followup

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pointstack/pointstack/internal/gateway"
	"github.com/pointstack/pointstack/internal/log"
	"github.com/pointstack/pointstack/internal/router"
)

type fakeCompleter struct {
	content string
	err     error
	lastReq gateway.Request
}

func (f *fakeCompleter) Complete(_ context.Context, req gateway.Request) (*gateway.Completion, error) {
	f.lastReq = req
	if f.err != nil {
		return nil, f.err
	}
	return &gateway.Completion{Content: f.content, Model: req.Model}, nil
}

func TestGenerateParsesCleanArray(t *testing.T) {
	fc := &fakeCompleter{content: `["How do points expire?", "Which card earns more on travel?", "Can I transfer points?", "What is my redemption rate?"]`}
	g := NewGenerator(fc, log.NewNop())

	questions := g.Generate(context.Background(), "points balance", "You have 12000 points.", nil)
	require.Len(t, questions, 4)
	assert.Equal(t, "How do points expire?", questions[0])
	assert.Equal(t, router.ModelEconomy, fc.lastReq.Model)
}

func TestGenerateExtractsArrayFromProse(t *testing.T) {
	fc := &fakeCompleter{content: "Here are some ideas:\n```json\n[\"One?\", \"Two?\"]\n```\nHope that helps."}
	g := NewGenerator(fc, log.NewNop())

	questions := g.Generate(context.Background(), "q", "r", nil)
	assert.Equal(t, []string{"One?", "Two?"}, questions)
}

func TestGenerateTruncatesToSix(t *testing.T) {
	fc := &fakeCompleter{content: `["a?","b?","c?","d?","e?","f?","g?","h?"]`}
	g := NewGenerator(fc, log.NewNop())

	questions := g.Generate(context.Background(), "q", "r", nil)
	assert.Len(t, questions, 6)
}

func TestGenerateGatewayFailure(t *testing.T) {
	fc := &fakeCompleter{err: errors.New("rate limited")}
	g := NewGenerator(fc, log.NewNop())

	assert.Nil(t, g.Generate(context.Background(), "q", "r", nil))
}

func TestGenerateMalformedOutput(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"no array", "I cannot produce questions right now."},
		{"invalid json", `["unterminated`},
		{"array of objects", `[{"q": "nope"}]`},
		{"empty array", `[]`},
		{"blank entries", `["", "  "]`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fc := &fakeCompleter{content: tt.content}
			g := NewGenerator(fc, log.NewNop())
			assert.Nil(t, g.Generate(context.Background(), "q", "r", nil))
		})
	}
}

func TestGeneratePromptTruncation(t *testing.T) {
	fc := &fakeCompleter{content: `["a?","b?","c?","d?"]`}
	g := NewGenerator(fc, log.NewNop())

	longResponse := strings.Repeat("x", 5000)
	snippets := []string{"s1", "s2", "s3", "s4", "s5"}
	g.Generate(context.Background(), "query", longResponse, snippets)

	require.Len(t, fc.lastReq.Messages, 2)
	userPrompt := fc.lastReq.Messages[1].Content
	assert.Less(t, len(userPrompt), 2000)
	assert.Contains(t, userPrompt, "s3")
	assert.NotContains(t, userPrompt, "s4")
}

func TestGenerateIncludesQueryAndResponse(t *testing.T) {
	fc := &fakeCompleter{content: `["a?","b?","c?","d?"]`}
	g := NewGenerator(fc, log.NewNop())

	g.Generate(context.Background(), "best dining card", "Use Travel Plus.", []string{"3x dining"})

	userPrompt := fc.lastReq.Messages[1].Content
	assert.Contains(t, userPrompt, "best dining card")
	assert.Contains(t, userPrompt, "Use Travel Plus.")
	assert.Contains(t, userPrompt, "3x dining")
}

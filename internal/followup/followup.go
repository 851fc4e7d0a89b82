// Package followup produces suggested follow-up questions for a finished
// chat turn. It is strictly best-effort: any failure yields no suggestions,
// never an error.
package followup

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/pointstack/pointstack/internal/gateway"
	"github.com/pointstack/pointstack/internal/log"
	"github.com/pointstack/pointstack/internal/router"
)

const (
	// maxQuestions caps the returned list regardless of what the model emits.
	maxQuestions = 6
	// maxResponseChars truncates the assistant response fed into the prompt.
	maxResponseChars = 1000
	// maxSnippets limits how much retrieval context the prompt carries.
	maxSnippets = 3
)

// jsonArrayPattern extracts the first bracketed array from the model output,
// tolerating surrounding prose or markdown fences.
var jsonArrayPattern = regexp.MustCompile(`\[[\s\S]*?\]`)

const systemPrompt = `You suggest follow-up questions for a credit card rewards assistant.
Given the user's question and the assistant's answer, return a JSON array of 4 to 6 short
follow-up questions the user is likely to ask next. Return ONLY the JSON array, no other text.`

// Completer is the slice of the model gateway the generator needs.
type Completer interface {
	Complete(ctx context.Context, req gateway.Request) (*gateway.Completion, error)
}

// Generator asks an economy-tier model for follow-up questions.
type Generator struct {
	completer Completer
	model     string
	logger    log.Logger
}

// NewGenerator builds a follow-up generator. The economy model tier is used
// since the task is short and formulaic.
func NewGenerator(completer Completer, logger log.Logger) *Generator {
	return &Generator{
		completer: completer,
		model:     router.ModelEconomy,
		logger:    logger,
	}
}

// Generate returns up to six follow-up questions, or nil when anything goes
// wrong. It never returns an error.
func (g *Generator) Generate(ctx context.Context, query, response string, snippets []string) []string {
	completion, err := g.completer.Complete(ctx, gateway.Request{
		Model: g.model,
		Messages: []gateway.Message{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: g.buildPrompt(query, response, snippets)},
		},
	})
	if err != nil {
		g.logger.Warn("follow-up generation failed", "error", err)
		return nil
	}

	questions := parseQuestions(completion.Content)
	if questions == nil {
		g.logger.Warn("follow-up response had no parseable question array")
	}
	return questions
}

func (g *Generator) buildPrompt(query, response string, snippets []string) string {
	if len(response) > maxResponseChars {
		response = response[:maxResponseChars]
	}
	if len(snippets) > maxSnippets {
		snippets = snippets[:maxSnippets]
	}

	var b strings.Builder
	fmt.Fprintf(&b, "User question: %s\n\nAssistant answer: %s\n", query, response)
	if len(snippets) > 0 {
		b.WriteString("\nContext used:\n")
		for _, s := range snippets {
			fmt.Fprintf(&b, "- %s\n", s)
		}
	}
	return b.String()
}

// parseQuestions pulls the first JSON array out of raw model output. Blank
// entries are dropped; nil means nothing usable was found.
func parseQuestions(raw string) []string {
	match := jsonArrayPattern.FindString(raw)
	if match == "" {
		return nil
	}

	var parsed []string
	if err := json.Unmarshal([]byte(match), &parsed); err != nil {
		return nil
	}

	questions := make([]string, 0, len(parsed))
	for _, q := range parsed {
		q = strings.TrimSpace(q)
		if q == "" {
			continue
		}
		questions = append(questions, q)
		if len(questions) == maxQuestions {
			break
		}
	}
	if len(questions) == 0 {
		return nil
	}
	return questions
}

package eval

import (
	"math"
	"strings"
	"unicode"
)

// groundedFraction is the share of response tokens that must appear in the
// context for faithfulness to saturate at 1.0.
const groundedFraction = 0.3

// Scores holds the heuristic quality metrics for a generated response. Both
// values are in [0, 1] and rounded to two decimals. They are crude proxies,
// kept behind this function signature so an LLM judge can replace them later.
type Scores struct {
	Faithfulness float64
	Relevance    float64
}

// Score rates a response against its query and the context snippets it was
// grounded on. Faithfulness measures how much of the response reappears in
// the context; relevance measures how much of the query the response echoes.
func Score(query, response string, snippets []string) Scores {
	responseTokens := tokenize(response)
	queryTokens := tokenize(query)
	contextTokens := tokenSet(tokenize(strings.Join(snippets, " ")))
	responseSet := tokenSet(responseTokens)

	var s Scores
	if len(responseTokens) > 0 {
		grounded := 0
		for _, tok := range responseTokens {
			if contextTokens[tok] {
				grounded++
			}
		}
		ratio := float64(grounded) / float64(len(responseTokens))
		s.Faithfulness = math.Min(1, ratio/groundedFraction)
	}
	if len(queryTokens) > 0 {
		echoed := 0
		for _, tok := range queryTokens {
			if responseSet[tok] {
				echoed++
			}
		}
		s.Relevance = math.Min(1, 2*float64(echoed)/float64(len(queryTokens)))
	}

	s.Faithfulness = round2(s.Faithfulness)
	s.Relevance = round2(s.Relevance)
	return s
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

var stopwords = map[string]bool{
	"a": true, "an": true, "and": true, "are": true, "as": true, "at": true,
	"be": true, "but": true, "by": true, "can": true, "do": true, "for": true,
	"from": true, "has": true, "have": true, "how": true, "i": true, "if": true,
	"in": true, "is": true, "it": true, "my": true, "of": true, "on": true,
	"or": true, "that": true, "the": true, "this": true, "to": true, "was": true,
	"what": true, "which": true, "will": true, "with": true, "you": true,
	"your": true,
}

// tokenize lowercases text, splits on non-alphanumeric runs, and drops
// stopwords and single-character fragments.
func tokenize(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	tokens := make([]string, 0, len(fields))
	for _, f := range fields {
		if len(f) < 2 || stopwords[f] {
			continue
		}
		tokens = append(tokens, f)
	}
	return tokens
}

func tokenSet(tokens []string) map[string]bool {
	set := make(map[string]bool, len(tokens))
	for _, tok := range tokens {
		set[tok] = true
	}
	return set
}

// ABOUTME: Token-overlap relevance scorer, the default Scorer implementation.
// ABOUTME: Cheap vector-similarity stand-in; model-judged scorers plug in the same way.

package filter

import (
	"math"
	"strings"
	"unicode"
)

// TokenScorer scores relevance by cosine similarity over the token sets of
// the capability's name plus description and the task context. It is the
// zero-dependency default; richer scorers (embedding lookups, model calls)
// implement Scorer the same way.
type TokenScorer struct{}

// NewTokenScorer creates a TokenScorer.
func NewTokenScorer() *TokenScorer {
	return &TokenScorer{}
}

// Score implements Scorer.
func (s *TokenScorer) Score(c Candidate, taskContext string) float64 {
	capTokens := tokenize(c.Name + " " + c.Description)
	ctxTokens := tokenize(taskContext)
	if len(capTokens) == 0 || len(ctxTokens) == 0 {
		return 0
	}

	overlap := 0
	for token := range ctxTokens {
		if _, ok := capTokens[token]; ok {
			overlap++
		}
	}

	return float64(overlap) / math.Sqrt(float64(len(capTokens))*float64(len(ctxTokens)))
}

// tokenize splits text into a lowercase token set. Underscores and hyphens
// count as separators so "get_forecast" matches "forecast".
func tokenize(text string) map[string]struct{} {
	tokens := make(map[string]struct{})
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
	for _, f := range fields {
		tokens[f] = struct{}{}
	}
	return tokens
}

var _ Scorer = (*TokenScorer)(nil)

// ABOUTME: Tests for static exclusion and dynamic relevance filtering.
// ABOUTME: Covers the weight-1.0 bypass, threshold boundaries, and scorer plugability.

package filter

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

// fixedScorer returns a canned score per capability name.
type fixedScorer struct {
	scores map[string]float64
}

func (s *fixedScorer) Score(c Candidate, _ string) float64 {
	return s.scores[c.Name]
}

func TestApplyExclusions(t *testing.T) {
	exclude := map[string]struct{}{"save_plan": {}}
	got := ApplyExclusions([]string{"get_forecast", "save_plan"}, exclude)
	assert.Equal(t, []string{"get_forecast"}, got)
}

func TestApplyExclusions_EmptySet(t *testing.T) {
	names := []string{"a", "b"}
	got := ApplyExclusions(names, nil)
	assert.Equal(t, names, got)
}

func TestKeep_EmptyContextKeepsAll(t *testing.T) {
	f := New(&fixedScorer{scores: map[string]float64{}}, 0.5, slog.Default())
	candidates := []Candidate{
		{Name: "a", Weight: 0.5},
		{Name: "b", Weight: 1.0},
	}

	mask := f.Keep("", candidates)
	assert.Equal(t, []bool{true, true}, mask)
}

func TestKeep_NilScorerKeepsAll(t *testing.T) {
	f := New(nil, 0.5, slog.Default())
	mask := f.Keep("some task", []Candidate{{Name: "a", Weight: 0.2}})
	assert.Equal(t, []bool{true}, mask)
}

func TestKeep_PrimaryBypassesScoring(t *testing.T) {
	// The scorer would reject everything, but weight 1.0 never gets scored.
	f := New(&fixedScorer{scores: map[string]float64{}}, 0.5, slog.Default())
	mask := f.Keep("task", []Candidate{{Name: "always", Weight: 1.0}})
	assert.Equal(t, []bool{true}, mask)
}

func TestKeep_WeightedFilteredByThreshold(t *testing.T) {
	f := New(&fixedScorer{scores: map[string]float64{
		"relevant":   0.9,
		"borderline": 0.5,
		"irrelevant": 0.1,
	}}, 0.5, slog.Default())

	candidates := []Candidate{
		{Name: "relevant", Weight: 0.5},
		{Name: "borderline", Weight: 0.5},
		{Name: "irrelevant", Weight: 0.5},
	}

	mask := f.Keep("task", candidates)
	// Threshold is inclusive.
	assert.Equal(t, []bool{true, true, false}, mask)
}

func TestNew_ZeroThresholdUsesDefault(t *testing.T) {
	f := New(&fixedScorer{scores: map[string]float64{"x": DefaultThreshold}}, 0, slog.Default())
	mask := f.Keep("task", []Candidate{{Name: "x", Weight: 0.5}})
	assert.Equal(t, []bool{true}, mask)
}

func TestTokenScorer(t *testing.T) {
	s := NewTokenScorer()

	forecast := Candidate{Name: "get_forecast", Description: "Get the weather forecast for a city"}
	database := Candidate{Name: "run_query", Description: "Execute a SQL query against the analytics database"}

	weatherScore := s.Score(forecast, "what is the weather forecast for tomorrow")
	dbScore := s.Score(database, "what is the weather forecast for tomorrow")

	assert.Greater(t, weatherScore, dbScore)
	assert.Greater(t, weatherScore, DefaultThreshold)
}

func TestTokenScorer_EmptyInputs(t *testing.T) {
	s := NewTokenScorer()
	assert.Zero(t, s.Score(Candidate{}, "anything"))
	assert.Zero(t, s.Score(Candidate{Name: "tool"}, ""))
}

func TestTokenScorer_SeparatorInsensitive(t *testing.T) {
	s := NewTokenScorer()
	score := s.Score(Candidate{Name: "get_forecast"}, "forecast")
	assert.Greater(t, score, 0.0)
}

// ABOUTME: Component visibility filtering: static exclusion and dynamic relevance.
// ABOUTME: Scoring strategy is pluggable; weight-1.0 connections bypass scoring.

package filter

import "log/slog"

// DefaultThreshold is the inclusion threshold used when none is configured.
const DefaultThreshold = 0.2

// Candidate is the scorer-facing view of one capability descriptor.
type Candidate struct {
	Name        string
	Description string
	Connection  string
	// Weight is the owning connection's routing weight.
	Weight float64
}

// Scorer judges how relevant a capability is to a task context.
// Implementations return a score in [0, 1]; higher means more relevant.
type Scorer interface {
	Score(c Candidate, taskContext string) float64
}

// Filter applies dynamic relevance weighting over capability candidates.
type Filter struct {
	scorer    Scorer
	threshold float64
	logger    *slog.Logger
}

// New creates a Filter with the given scorer and inclusion threshold.
// A nil scorer disables dynamic filtering entirely; a zero threshold uses
// DefaultThreshold.
func New(scorer Scorer, threshold float64, logger *slog.Logger) *Filter {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return &Filter{
		scorer:    scorer,
		threshold: threshold,
		logger:    logger,
	}
}

// ApplyExclusions drops the names present in the exclude set.
// This is the registration-time static mechanism; the returned slice
// preserves input order.
func ApplyExclusions(names []string, exclude map[string]struct{}) []string {
	if len(exclude) == 0 {
		return names
	}
	kept := make([]string, 0, len(names))
	for _, name := range names {
		if _, drop := exclude[name]; !drop {
			kept = append(kept, name)
		}
	}
	return kept
}

// Keep returns a mask over candidates marking which ones remain visible for
// the task context. Candidates from primary connections (weight 1.0) are
// always kept. An empty task context or a nil scorer keeps everything:
// dynamic filtering is strictly opt-in per request.
func (f *Filter) Keep(taskContext string, candidates []Candidate) []bool {
	mask := make([]bool, len(candidates))

	if f == nil || f.scorer == nil || taskContext == "" {
		for i := range mask {
			mask[i] = true
		}
		return mask
	}

	for i, c := range candidates {
		if c.Weight >= 1.0 {
			mask[i] = true
			continue
		}
		score := f.scorer.Score(c, taskContext)
		mask[i] = score >= f.threshold
		if !mask[i] {
			f.logger.Debug("capability filtered out",
				"name", c.Name,
				"connection", c.Connection,
				"score", score,
				"threshold", f.threshold,
			)
		}
	}
	return mask
}

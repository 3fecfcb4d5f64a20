// Package voting reconciles the parser ensemble's outputs into a single
// canonical intent by weighted pairwise similarity.
package voting

import (
	"github.com/sentryforge/gateway/pkg/schema"
)

// Config tunes the voting engine's agreement thresholds.
type Config struct {
	HighThreshold   float64
	LowThreshold    float64
	RequireQuorum   bool
	RequireReviewOnLow bool // Open Question (a), resolved in §9: configured, default false
}

// DefaultConfig matches §4.5's defaults and the §9 resolution of Open
// Question (a).
func DefaultConfig() Config {
	return Config{
		HighThreshold:      0.95,
		LowThreshold:       0.75,
		RequireQuorum:      false,
		RequireReviewOnLow: false,
	}
}

// Vote computes a VotingResult over the successful parser results. results
// must be non-empty; the caller (orchestrator) is responsible for treating
// zero results as ErrParseFailure before calling Vote.
func Vote(results []schema.ParsedIntent, config Config) schema.VotingResult {
	canonical := selectCanonical(results)

	if len(results) == 1 {
		class := schema.ConfidenceLow
		requiresReview := config.RequireReviewOnLow
		if config.RequireQuorum {
			requiresReview = true
		}
		return schema.VotingResult{
			CanonicalIntent:  canonical.Intent,
			ConfidenceClass:  class,
			AvgSimilarity:    1.0,
			MinSimilarity:    1.0,
			RequiresReview:   requiresReview,
			PerParserResults: results,
		}
	}

	min, avg := pairwiseStats(results)
	class := classify(min, avg, config)

	requiresReview := class == schema.ConfidenceConflict ||
		(class == schema.ConfidenceLow && config.RequireReviewOnLow)

	return schema.VotingResult{
		CanonicalIntent:  canonical.Intent,
		ConfidenceClass:  class,
		AvgSimilarity:    avg,
		MinSimilarity:    min,
		RequiresReview:   requiresReview,
		PerParserResults: results,
	}
}

func pairwiseStats(results []schema.ParsedIntent) (min, avg float64) {
	min = 1.0
	sum := 0.0
	count := 0
	for i := 0; i < len(results); i++ {
		for j := i + 1; j < len(results); j++ {
			sim := schema.Similarity(results[i].Intent, results[j].Intent)
			if sim < min {
				min = sim
			}
			sum += sim
			count++
		}
	}
	if count == 0 {
		return 1.0, 1.0
	}
	return min, sum / float64(count)
}

func classify(min, avg float64, config Config) schema.ConfidenceClass {
	switch {
	case min >= config.HighThreshold:
		return schema.ConfidenceHigh
	case avg >= config.LowThreshold:
		return schema.ConfidenceLow
	default:
		return schema.ConfidenceConflict
	}
}

// selectCanonical picks the result with the highest trust_level, breaking
// ties by highest confidence, then by lowest parsing_time_ms, then by
// ascending parser_id for full determinism (§9 Open Question (b)).
func selectCanonical(results []schema.ParsedIntent) schema.ParsedIntent {
	best := results[0]
	for _, r := range results[1:] {
		if better(r, best) {
			best = r
		}
	}
	return best
}

func better(a, b schema.ParsedIntent) bool {
	if a.TrustLevel != b.TrustLevel {
		return a.TrustLevel > b.TrustLevel
	}
	if a.Confidence != b.Confidence {
		return a.Confidence > b.Confidence
	}
	if a.ParsingTimeMs != b.ParsingTimeMs {
		return a.ParsingTimeMs < b.ParsingTimeMs
	}
	return a.ParserID < b.ParserID
}

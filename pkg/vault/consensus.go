package vault

import "github.com/sentryforge/gateway/pkg/schema"

// ConsensusMode selects how per-sentry verdicts are reconciled into a
// single suspect/not-suspect decision.
type ConsensusMode string

const (
	ConsensusAnySuspicious ConsensusMode = "any-suspicious"
	ConsensusMajority      ConsensusMode = "majority"
)

// evaluateConsensus applies mode over verdicts from healthy/degraded
// sentries only (quarantined sentries must already be excluded by the
// caller). weight is consulted only to tell a Degraded sentry's
// deweighted verdict apart from a full-weight Healthy one for majority
// counting; any weight > 0 counts as a full vote in any-suspicious mode
// since that mode only needs one suspicious report to trip.
func evaluateConsensus(mode ConsensusMode, verdicts []schema.SentryVerdict, threshold float64, weight func(sentryID string) float64) bool {
	if len(verdicts) == 0 {
		return true // no healthy sentry to vouch for the input: fail closed
	}

	switch mode {
	case ConsensusMajority:
		var suspiciousWeight, totalWeight float64
		for _, v := range verdicts {
			w := weight(v.SentryID)
			totalWeight += w
			if v.Score >= threshold {
				suspiciousWeight += w
			}
		}
		if totalWeight == 0 {
			return true
		}
		return suspiciousWeight >= totalWeight/2
	default: // ConsensusAnySuspicious
		for _, v := range verdicts {
			if v.Score >= threshold {
				return true
			}
		}
		return false
	}
}

func avgScore(verdicts []schema.SentryVerdict) float64 {
	if len(verdicts) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range verdicts {
		sum += v.Score
	}
	return sum / float64(len(verdicts))
}

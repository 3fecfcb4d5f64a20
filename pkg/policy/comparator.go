package policy

import (
	"fmt"
	"strings"

	"github.com/sentryforge/gateway/pkg/schema"
)

// Comparator checks a canonical intent against the active policy and
// produces a ComparisonResult. It is a pure function of (intent, policy).
// It holds a CEL rule evaluator (cel.go), but Compare runs only the
// structural checks below and does not evaluate custom CEL rules.
type Comparator struct {
	cel *celEvaluator
}

// NewComparator builds a Comparator with its CEL rule cache ready.
func NewComparator() (*Comparator, error) {
	cel, err := newCELEvaluator()
	if err != nil {
		return nil, fmt.Errorf("policy: comparator: %w", err)
	}
	return &Comparator{cel: cel}, nil
}

// Compare evaluates intent against p and returns the decision and every
// violation found, per §4.6's check list and decision rule.
func (c *Comparator) Compare(intent schema.Intent, p Policy) schema.ComparisonResult {
	var violations []schema.Violation

	if !p.AllowedActions[intent.Action] {
		violations = append(violations, schema.Violation{
			Field:    "action",
			Severity: schema.SeverityCritical,
			Reason:   fmt.Sprintf("action %q is not in allowed_actions", intent.Action),
		})
	}

	if len(p.AllowedExpertise) > 0 {
		for _, e := range intent.DedupeExpertise() {
			if !p.AllowedExpertise[e] {
				violations = append(violations, schema.Violation{
					Field:    "expertise",
					Severity: schema.SeverityCritical,
					Reason:   fmt.Sprintf("expertise tag %q is not in allowed_expertise", e),
				})
			}
		}
	}

	for key, ceiling := range p.ConstraintCeilings {
		value, ok := intent.Constraints.Values[key]
		if !ok || value <= ceiling {
			continue
		}
		severity := schema.SeverityMedium
		if p.CriticalConstraintKeys[key] {
			severity = schema.SeverityCritical
		}
		violations = append(violations, schema.Violation{
			Field:    "constraints." + key,
			Severity: severity,
			Reason:   fmt.Sprintf("%s=%v exceeds ceiling %v", key, value, ceiling),
		})
	}

	if len(p.TopicWhitelist) > 0 && !topicMatches(intent.Topic, p.TopicWhitelist, p.TopicOverlapThreshold) {
		violations = append(violations, schema.Violation{
			Field:    "topic",
			Severity: schema.SeverityMedium,
			Reason:   "sanitized topic does not match topic_whitelist",
		})
	}

	return schema.ComparisonResult{
		Decision:   decide(violations, p.StrictMode),
		Violations: violations,
	}
}

// decide applies §4.6's decision rule: no violations => Approved; only
// Low/Medium and not strict => SoftMismatch; any High/Critical, or any
// Medium under strict mode, => HardMismatch.
func decide(violations []schema.Violation, strict bool) schema.ComparisonDecision {
	if len(violations) == 0 {
		return schema.DecisionApproved
	}
	for _, v := range violations {
		if v.Severity == schema.SeverityHigh || v.Severity == schema.SeverityCritical {
			return schema.DecisionHardMismatch
		}
		if strict && v.Severity == schema.SeverityMedium {
			return schema.DecisionHardMismatch
		}
	}
	return schema.DecisionSoftMismatch
}

// topicMatches reports whether topic's token set overlaps whitelist tokens
// at or above threshold, a token-set overlap ratio (intersection over the
// whitelist's own token count, since the whitelist is the gate being
// satisfied rather than a peer set being compared for similarity).
func topicMatches(topic string, whitelist []string, threshold float64) bool {
	topicTokens := make(map[string]bool)
	for _, t := range strings.Fields(strings.ToLower(topic)) {
		topicTokens[t] = true
	}
	if len(whitelist) == 0 {
		return true
	}
	hits := 0
	for _, w := range whitelist {
		if topicTokens[strings.ToLower(w)] {
			hits++
		}
	}
	return float64(hits)/float64(len(whitelist)) >= threshold
}

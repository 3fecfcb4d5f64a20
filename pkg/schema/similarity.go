package schema

import "strings"

// field weights per §4.1.
const (
	weightAction      = 3.0
	weightTopic       = 2.0
	weightExpertise   = 2.0
	weightConstraints = 1.5
)

// Similarity returns the composite similarity between two intents in
// [0, 1]: a weighted mean of action equality, topic token-set overlap,
// expertise Jaccard similarity, and tolerant constraint comparison.
func Similarity(a, b Intent) float64 {
	total := weightAction + weightTopic + weightExpertise + weightConstraints

	score := weightAction*actionSimilarity(a.Action, b.Action) +
		weightTopic*topicSimilarity(a.Topic, b.Topic) +
		weightExpertise*expertiseSimilarity(a.Expertise, b.Expertise) +
		weightConstraints*constraintsSimilarity(a.Constraints, b.Constraints)

	return score / total
}

func actionSimilarity(a, b Action) float64 {
	if a == b {
		return 1.0
	}
	return 0.0
}

// topicSimilarity is a case-insensitive token-set (Jaccard) similarity over
// whitespace-split tokens, matching the "token-set similarity" wording in
// §4.1. Two empty topics are treated as a perfect match.
func topicSimilarity(a, b string) float64 {
	ta := tokenSet(a)
	tb := tokenSet(b)
	if len(ta) == 0 && len(tb) == 0 {
		return 1.0
	}
	return jaccard(ta, tb)
}

func tokenSet(s string) map[string]bool {
	fields := strings.Fields(strings.ToLower(s))
	set := make(map[string]bool, len(fields))
	for _, f := range fields {
		set[f] = true
	}
	return set
}

func expertiseSimilarity(a, b []Expertise) float64 {
	sa := make(map[string]bool, len(a))
	for _, e := range a {
		sa[string(e)] = true
	}
	sb := make(map[string]bool, len(b))
	for _, e := range b {
		sb[string(e)] = true
	}
	if len(sa) == 0 && len(sb) == 0 {
		return 1.0
	}
	return jaccardStrings(sa, sb)
}

func jaccard(a, b map[string]bool) float64 {
	return jaccardStrings(a, b)
}

func jaccardStrings(a, b map[string]bool) float64 {
	union := make(map[string]bool, len(a)+len(b))
	intersection := 0
	for k := range a {
		union[k] = true
		if b[k] {
			intersection++
		}
	}
	for k := range b {
		union[k] = true
	}
	if len(union) == 0 {
		return 1.0
	}
	return float64(intersection) / float64(len(union))
}

// constraintsSimilarity compares two Constraints value sets per-known-key:
// for numerics, 1 - min(1, |a-b|/max(|a|,|b|,1)); a key present on only one
// side contributes 0; the aggregate is the mean over the union of known
// keys present on either side. Two constraint sets with no known keys at
// all are a perfect match (nothing to disagree about).
func constraintsSimilarity(a, b Constraints) float64 {
	keys := make(map[string]bool)
	for k := range a.Values {
		if KnownConstraintKeys[k] {
			keys[k] = true
		}
	}
	for k := range b.Values {
		if KnownConstraintKeys[k] {
			keys[k] = true
		}
	}
	if len(keys) == 0 {
		return 1.0
	}

	sum := 0.0
	for k := range keys {
		av, aok := a.Values[k]
		bv, bok := b.Values[k]
		if !aok || !bok {
			continue // contributes 0
		}
		diff := av - bv
		if diff < 0 {
			diff = -diff
		}
		denom := maxAbs(av, bv, 1)
		contribution := 1 - minFloat(1, diff/denom)
		sum += contribution
	}
	return sum / float64(len(keys))
}

func maxAbs(a, b, floor float64) float64 {
	if a < 0 {
		a = -a
	}
	if b < 0 {
		b = -b
	}
	m := a
	if b > m {
		m = b
	}
	if floor > m {
		m = floor
	}
	return m
}

func minFloat(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

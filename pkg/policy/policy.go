// Package policy implements the provider-supplied configuration surface
// (§6) and the Comparator that checks a canonical intent against it.
package policy

import (
	"time"

	"github.com/sentryforge/gateway/pkg/schema"
)

// Policy is the active, hot-reloadable configuration the Comparator checks
// canonical intents against. See §6's policy surface table.
type Policy struct {
	AllowedActions       map[schema.Action]bool
	AllowedExpertise      map[schema.Expertise]bool // empty => any
	ConstraintCeilings    map[string]float64
	RequireHumanApproval  bool
	TopicWhitelist        []string // tokens; empty means no topic gate
	TopicOverlapThreshold float64
	VaultConsensusMode    string
	VotingHighThreshold   float64
	VotingLowThreshold    float64
	ParserTrustLevels     map[string]float64
	ApprovalTimeout       time.Duration
	StrictMode            bool

	// CriticalConstraintKeys names ceilings whose overage is always
	// Critical regardless of how far over the requested value is
	// (§4.6: "monetary/count overages are Critical").
	CriticalConstraintKeys map[string]bool
}

// Default returns the policy implied by §8's scenario defaults:
// allowed_actions = {MathQuestion}, allowed_expertise = {}, any-suspicious
// consensus, voting thresholds 0.95/0.75, strict_mode = false.
func Default() Policy {
	return Policy{
		AllowedActions:        map[schema.Action]bool{schema.ActionMathQuestion: true},
		AllowedExpertise:       map[schema.Expertise]bool{},
		ConstraintCeilings:    map[string]float64{"max_budget": 1000, "max_results": 100},
		CriticalConstraintKeys: map[string]bool{"max_budget": true, "max_results": true},
		TopicOverlapThreshold: 0.3,
		VaultConsensusMode:    "any-suspicious",
		VotingHighThreshold:   0.95,
		VotingLowThreshold:    0.75,
		ApprovalTimeout:       60 * time.Minute,
		StrictMode:            false,
	}
}

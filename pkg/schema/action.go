// Package schema defines the typed data contracts that flow through the
// gateway pipeline: actions, intents, constraints, and the closed set of
// values the voting, comparator, and dispatcher stages operate on.
package schema

// Action is a member of the closed, enumerated set of privileged operations
// the dispatcher may invoke. The set is extended by adding a new constant
// and registering it in every lookup table below; unknown values must
// always be rejected rather than silently accepted.
type Action string

const (
	// ActionMathQuestion is the only action implemented by this revision.
	ActionMathQuestion Action = "MathQuestion"

	// ActionUnknown marks an action value that did not match any known
	// constant; it is never emitted by a well-formed parser and exists so
	// callers have a distinguishable zero value.
	ActionUnknown Action = ""
)

// KnownActions is the closed set of actions the system can ever produce or
// execute. It is a map rather than a slice so membership checks are O(1)
// throughout the pipeline.
var KnownActions = map[Action]bool{
	ActionMathQuestion: true,
}

// IsKnownAction reports whether a is a member of the closed action set.
func IsKnownAction(a Action) bool {
	return KnownActions[a]
}

// Expertise is a closed tag naming a domain of specialist knowledge a
// request may declare it needs.
type Expertise string

const (
	ExpertiseMath       Expertise = "math"
	ExpertiseFinance    Expertise = "finance"
	ExpertiseEngineering Expertise = "engineering"
	ExpertiseGeneral    Expertise = "general"
)

// KnownExpertise mirrors KnownActions for the Expertise set.
var KnownExpertise = map[Expertise]bool{
	ExpertiseMath:        true,
	ExpertiseFinance:     true,
	ExpertiseEngineering: true,
	ExpertiseGeneral:     true,
}

// IsKnownExpertise reports whether e is a member of the closed expertise set.
func IsKnownExpertise(e Expertise) bool {
	return KnownExpertise[e]
}

package schema

import "time"

// VaultVerdict is the Vault's published consensus over the sentry ensemble.
type VaultVerdict struct {
	PerSentryVerdicts []SentryVerdict `json:"per_sentry_verdicts"`
	ConsensusSuspect  bool            `json:"consensus_suspect"`
	AvgScore          float64         `json:"avg_score"`
}

// SentryVerdict is a single penitent sentry's judgment of one input.
type SentryVerdict struct {
	SentryID string  `json:"sentry_id"`
	Score    float64 `json:"score"`
	Category string  `json:"category,omitempty"`
	Error    string  `json:"error,omitempty"`
}

// ApprovalStatus is the lifecycle state of a PendingApproval.
type ApprovalStatus string

const (
	ApprovalPending  ApprovalStatus = "Pending"
	ApprovalApproved ApprovalStatus = "Approved"
	ApprovalDenied   ApprovalStatus = "Denied"
	ApprovalExpired  ApprovalStatus = "Expired"
)

// ApprovalDecision is an operator's resolution of a PendingApproval.
type ApprovalDecision struct {
	Approved   bool      `json:"approved"`
	ApproverID string    `json:"approver_id"`
	Reason     string    `json:"reason,omitempty"`
	DecidedAt  time.Time `json:"decided_at"`
}

// PendingApproval represents a request elevated for human review.
type PendingApproval struct {
	ID             string            `json:"id"`
	CreatedAt      time.Time         `json:"created_at"`
	Reason         string            `json:"reason"`
	IntentSnapshot Intent            `json:"intent_snapshot"`
	Status         ApprovalStatus    `json:"status"`
	Decision       *ApprovalDecision `json:"decision,omitempty"`
	ExpiresAt      time.Time         `json:"expires_at"`

	// Pipeline resume context: everything step 6 onward needs to continue
	// without re-running the parser ensemble and voting.
	UserID    string `json:"user_id"`
	SessionID string `json:"session_id"`
	RequestID string `json:"request_id"`
}

// ElevationEvent is the ledger's record of an approval-gate decision,
// embedded in a LedgerEntry rather than duplicating PendingApproval wholesale.
type ElevationEvent struct {
	ApprovalID string         `json:"approval_id"`
	Status     ApprovalStatus `json:"status"`
	Reason     string         `json:"reason"`
	ApproverID string         `json:"approver_id,omitempty"`
}

// ProcessingResult is the execution dispatcher's structured output,
// regardless of which handler produced it.
type ProcessingResult struct {
	ID          string         `json:"id"`
	Action      Action         `json:"action"`
	Success     bool           `json:"success"`
	Data        map[string]any `json:"data,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	Error       string         `json:"error,omitempty"`
	CompletedAt time.Time      `json:"completed_at"`
}

// LedgerEntry is the one append-only record written per request,
// regardless of whether the request completed, short-circuited, or errored.
type LedgerEntry struct {
	ID              string             `json:"id"`
	SessionID       string             `json:"session_id"`
	UserID          string             `json:"user_id"`
	Timestamp       time.Time          `json:"timestamp"`
	UserInput       string             `json:"user_input"`
	UserInputHash   string             `json:"user_input_hash"`
	VaultVerdict    *VaultVerdict      `json:"vault_verdict,omitempty"`
	ParserResults   []ParsedIntent     `json:"parser_results,omitempty"`
	VotingResult    *VotingResult      `json:"voting_result,omitempty"`
	ComparisonResult *ComparisonResult `json:"comparison_result,omitempty"`
	ElevationEvent  *ElevationEvent    `json:"elevation_event,omitempty"`
	TrustedIntent   *TrustedIntent     `json:"trusted_intent,omitempty"`
	ProcessingOutput *ProcessingResult `json:"processing_output,omitempty"`
	WasExecuted     bool               `json:"was_executed"`

	// PreviousHash/EntryHash give the ledger store a tamper-evident chain on
	// top of the structural append-only guarantee; set by the store on
	// Append, not by callers.
	PreviousHash string `json:"previous_hash,omitempty"`
	EntryHash    string `json:"entry_hash,omitempty"`
}

// Package orchestrator drives the nine-stage privileged-request pipeline
// (C11): Vault, Parser Ensemble, Voting, Comparator, the optional Approval
// Gate, Trusted Intent Generator, Execution Dispatcher, and the Ledger —
// one context flowing through every stage, one ledger entry per request.
package orchestrator

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/sentryforge/gateway/pkg/approval"
	"github.com/sentryforge/gateway/pkg/dispatcher"
	"github.com/sentryforge/gateway/pkg/ledgerstore"
	"github.com/sentryforge/gateway/pkg/observability"
	"github.com/sentryforge/gateway/pkg/parser"
	"github.com/sentryforge/gateway/pkg/policy"
	"github.com/sentryforge/gateway/pkg/schema"
	"github.com/sentryforge/gateway/pkg/trustedintent"
	"github.com/sentryforge/gateway/pkg/vault"
	"github.com/sentryforge/gateway/pkg/voting"
)

// Outcome is the terminal status of a ProcessRequest call.
type Outcome string

const (
	OutcomeCompleted       Outcome = "Completed"
	OutcomeBlocked         Outcome = "Blocked"
	OutcomeDenied          Outcome = "Denied"
	OutcomeError           Outcome = "Error"
	OutcomePendingApproval Outcome = "PendingApproval"
)

// Result is returned by ProcessRequest and Resume.
type Result struct {
	Outcome    Outcome
	LedgerID   string
	ApprovalID string // set only when Outcome == PendingApproval
	Processing *schema.ProcessingResult
	Err        error
}

// Orchestrator wires every pipeline component. Construct one as a struct
// literal (Approval and Telemetry may be nil) and reuse it across requests; all fields are safe for concurrent use.
type Orchestrator struct {
	Vault       *vault.Vault
	Parsers     *parser.Ensemble
	Comparator  *policy.Comparator
	Approval    *approval.Gate
	Generator   *trustedintent.Generator
	Dispatcher  *dispatcher.Dispatcher
	Ledger      ledgerstore.Store
	Policy      func() policy.Policy
	VotingConf  voting.Config
	Logger      *slog.Logger
	Telemetry   *observability.Provider
}

// ProcessRequest runs the §4.10 eight-step flow for one incoming request.
func (o *Orchestrator) ProcessRequest(ctx context.Context, userInput, userID, sessionID string) Result {
	requestID := uuid.NewString()
	entry := schema.LedgerEntry{
		ID:            requestID,
		SessionID:     sessionID,
		UserID:        userID,
		UserInput:     userInput,
		UserInputHash: hashInput(userInput),
		Timestamp:     time.Now().UTC(),
	}

	ctx, end := o.trace(ctx, "vault.verify")
	verdict := o.Vault.Verify(ctx, userInput)
	end(nil)
	entry.VaultVerdict = &verdict
	if verdict.ConsensusSuspect {
		return o.finish(ctx, entry, OutcomeBlocked, nil, nil)
	}

	ctx, end = o.trace(ctx, "parser.run")
	parsed := o.Parsers.Run(ctx, userInput)
	end(nil)
	entry.ParserResults = parsed
	if len(parsed) == 0 {
		return o.finish(ctx, entry, OutcomeError, schema.ErrParseFailure, nil)
	}

	voteResult := voting.Vote(parsed, o.VotingConf)
	entry.VotingResult = &voteResult

	activePolicy := o.Policy()
	ctx, end = o.trace(ctx, "comparator.compare")
	comparison := o.Comparator.Compare(voteResult.CanonicalIntent, activePolicy)
	end(nil)
	entry.ComparisonResult = &comparison

	if comparison.Decision == schema.DecisionHardMismatch {
		return o.finish(ctx, entry, OutcomeDenied, schema.ErrPolicyViolation, nil)
	}

	needsApproval := comparison.NeedsApproval() || voteResult.RequiresReview || activePolicy.RequireHumanApproval
	if needsApproval {
		if o.Approval == nil {
			return o.finish(ctx, entry, OutcomeDenied, schema.ErrPolicyViolation, nil)
		}
		reason := approvalReason(comparison, voteResult)
		pending := o.Approval.Elevate(ctx, reason, voteResult.CanonicalIntent, userID, sessionID, requestID)
		entry.ElevationEvent = &schema.ElevationEvent{
			ApprovalID: pending.ID,
			Status:     schema.ApprovalPending,
			Reason:     reason,
		}
		id, err := o.Ledger.Append(ctx, entry)
		if err != nil {
			o.Logger.ErrorContext(ctx, "ledger append failed while pending approval", "error", err)
			return Result{Outcome: OutcomeError, LedgerID: id, Err: err}
		}
		return Result{Outcome: OutcomePendingApproval, LedgerID: id, ApprovalID: pending.ID}
	}

	return o.continueAfterApproval(ctx, entry, voteResult.CanonicalIntent, activePolicy, nil)
}

// Resume continues a pipeline suspended at the approval gate. It loads the
// pending approval, requires it to be Approved, and continues from §4.10
// step 6 onward.
func (o *Orchestrator) Resume(ctx context.Context, approvalID string) Result {
	if o.Approval == nil {
		return Result{Outcome: OutcomeError, Err: fmt.Errorf("resume approval %q: %w", approvalID, ErrNotConfigured)}
	}
	pending, ok := o.Approval.Get(approvalID)
	if !ok {
		return Result{Outcome: OutcomeError, Err: fmt.Errorf("orchestrator: approval %q not found", approvalID)}
	}

	entry := schema.LedgerEntry{
		SessionID:     pending.SessionID,
		UserID:        pending.UserID,
		Timestamp:     time.Now().UTC(),
		ElevationEvent: &schema.ElevationEvent{ApprovalID: pending.ID, Status: pending.Status},
	}

	switch pending.Status {
	case schema.ApprovalDenied:
		if pending.Decision != nil {
			entry.ElevationEvent.ApproverID = pending.Decision.ApproverID
			entry.ElevationEvent.Reason = pending.Decision.Reason
		}
		return o.finish(ctx, entry, OutcomeDenied, schema.ErrElevationDenied, nil)
	case schema.ApprovalExpired:
		return o.finish(ctx, entry, OutcomeDenied, schema.ErrElevationExpired, nil)
	case schema.ApprovalPending:
		return Result{Outcome: OutcomePendingApproval, ApprovalID: approvalID}
	case schema.ApprovalApproved:
		if pending.Decision != nil {
			entry.ElevationEvent.ApproverID = pending.Decision.ApproverID
		}
		return o.continueAfterApproval(ctx, entry, pending.IntentSnapshot, o.Policy(), pending.Decision)
	default:
		return Result{Outcome: OutcomeError, Err: fmt.Errorf("orchestrator: unknown approval status %q", pending.Status)}
	}
}

// continueAfterApproval implements §4.10 steps 6-8: generate the trusted
// intent, dispatch it, and write the final ledger entry.
func (o *Orchestrator) continueAfterApproval(ctx context.Context, entry schema.LedgerEntry, intent schema.Intent, p policy.Policy, decision *schema.ApprovalDecision) Result {
	if decision != nil {
		entry.ElevationEvent.ApproverID = decision.ApproverID
		entry.ElevationEvent.Reason = decision.Reason
	}

	ctx, end := o.trace(ctx, "trustedintent.generate")
	trusted, err := o.Generator.Generate(intent, entry.UserID, entry.SessionID, p.ConstraintCeilings)
	end(err)
	if err != nil {
		return o.finish(ctx, entry, OutcomeError, err, nil)
	}
	entry.TrustedIntent = &trusted

	ctx, end = o.trace(ctx, "dispatcher.dispatch")
	result, err := o.Dispatcher.Dispatch(ctx, trusted)
	end(err)
	if err != nil {
		return o.finish(ctx, entry, OutcomeError, err, nil)
	}
	entry.ProcessingOutput = &result
	entry.WasExecuted = result.Success

	outcome := OutcomeCompleted
	if !result.Success {
		outcome = OutcomeError
	}
	return o.finish(ctx, entry, outcome, nil, &result)
}

func (o *Orchestrator) finish(ctx context.Context, entry schema.LedgerEntry, outcome Outcome, err error, result *schema.ProcessingResult) Result {
	id, appendErr := o.Ledger.Append(ctx, entry)
	if appendErr != nil {
		o.Logger.ErrorContext(ctx, "ledger append failed", "error", appendErr, "outcome", outcome)
		return Result{Outcome: OutcomeError, LedgerID: id, Processing: result, Err: appendErr}
	}
	return Result{Outcome: outcome, LedgerID: id, Processing: result, Err: err}
}

func (o *Orchestrator) trace(ctx context.Context, name string) (context.Context, func(error)) {
	if o.Telemetry == nil {
		return ctx, func(error) {}
	}
	return o.Telemetry.TrackOperation(ctx, name)
}

func approvalReason(c schema.ComparisonResult, v schema.VotingResult) string {
	if c.Decision == schema.DecisionSoftMismatch {
		return "policy soft mismatch: " + violationSummary(c.Violations)
	}
	if v.RequiresReview {
		return fmt.Sprintf("voting requires review: confidence=%s avg_similarity=%.2f", v.ConfidenceClass, v.AvgSimilarity)
	}
	return "elevation required"
}

func violationSummary(violations []schema.Violation) string {
	if len(violations) == 0 {
		return "unspecified"
	}
	return violations[0].Field + ": " + violations[0].Reason
}

func hashInput(input string) string {
	sum := sha256.Sum256([]byte(input))
	return "sha256:" + hex.EncodeToString(sum[:])
}

// ErrNotConfigured is returned by operations that require an optional
// component (e.g. the approval gate) that was not wired in.
var ErrNotConfigured = errors.New("orchestrator: required component not configured")

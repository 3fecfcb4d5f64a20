package schema

import "errors"

// Error kinds the orchestrator surfaces to callers. These are sentinel
// values, never class hierarchies: wrap with fmt.Errorf("...: %w", ErrX)
// and recover with errors.Is.
var (
	// ErrVaultReject means consensus marked the input suspect. No recovery
	// for this request; an operator may appeal out of band.
	ErrVaultReject = errors.New("vault: consensus marked input suspect")

	// ErrParseFailure means every parser failed or returned unparseable
	// output. The client may retry; this is not logged as an attack.
	ErrParseFailure = errors.New("parser ensemble: no parser produced a usable intent")

	// ErrPolicyViolation means the comparator's decision was HardMismatch.
	ErrPolicyViolation = errors.New("comparator: policy violation")

	// ErrElevationPending is not a failure; it marks a lifecycle state
	// where the caller must poll or wait for an operator decision.
	ErrElevationPending = errors.New("approval: pending operator decision")

	// ErrElevationDenied means an operator denied the elevation.
	ErrElevationDenied = errors.New("approval: denied")

	// ErrElevationExpired means the approval timed out before resolution.
	ErrElevationExpired = errors.New("approval: expired")

	// ErrSanitization means topic or content_refs became invalid during
	// trusted-intent generation (e.g. the sanitized topic is empty).
	ErrSanitization = errors.New("trusted intent: sanitization rejected input")

	// ErrStorageError means a ledger append failed. Fatal to the request;
	// never silently swallowed.
	ErrStorageError = errors.New("ledger: storage error")

	// ErrSignatureError means the dispatcher's verification of its own
	// freshly produced trusted intent failed, indicating internal
	// corruption.
	ErrSignatureError = errors.New("dispatcher: trusted intent failed self-verification")
)

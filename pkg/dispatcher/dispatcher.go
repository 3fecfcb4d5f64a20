// Package dispatcher implements the execution dispatcher (C10): the only
// component allowed to produce side effects, gated by a closed allowlist
// of actions and a signature check against the trusted intent that
// authorized the call.
package dispatcher

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sentryforge/gateway/pkg/canonicalize"
	"github.com/sentryforge/gateway/pkg/crypto"
	"github.com/sentryforge/gateway/pkg/schema"
)

// Handler executes one action's business logic. It receives the already
// signature-verified TrustedIntent and returns the data payload for the
// resulting ProcessingResult.
type Handler interface {
	Handle(ctx context.Context, intent schema.TrustedIntent) (map[string]any, error)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, intent schema.TrustedIntent) (map[string]any, error)

func (f HandlerFunc) Handle(ctx context.Context, intent schema.TrustedIntent) (map[string]any, error) {
	return f(ctx, intent)
}

// Dispatcher routes a TrustedIntent to its registered Handler, after
// verifying the intent's signature still matches its content hash. An
// action with no registered handler is rejected, even if it is a known
// schema.Action constant: the allowlist here is the set of registered
// handlers, not the set of known action names.
type Dispatcher struct {
	signer   *crypto.SigningRing
	handlers map[schema.Action]Handler
	now      func() time.Time
	newID    func() string
}

// New builds a Dispatcher that verifies signatures with ring.
func New(ring *crypto.SigningRing) *Dispatcher {
	return &Dispatcher{
		signer:   ring,
		handlers: make(map[schema.Action]Handler),
		now:      time.Now,
		newID:    uuid.NewString,
	}
}

// WithClock overrides the time source, for deterministic tests.
func (d *Dispatcher) WithClock(now func() time.Time) *Dispatcher {
	d.now = now
	return d
}

// Register binds action to handler. Calling Register twice for the same
// action replaces the previous handler.
func (d *Dispatcher) Register(action schema.Action, handler Handler) {
	d.handlers[action] = handler
}

// Dispatch verifies intent, looks up its handler, executes it, and wraps
// the outcome as a ProcessingResult. It never returns a raw handler
// error: failures are captured in the result's Error field so the
// orchestrator can ledger them uniformly with successes.
func (d *Dispatcher) Dispatch(ctx context.Context, intent schema.TrustedIntent) (schema.ProcessingResult, error) {
	if err := d.verify(intent); err != nil {
		return schema.ProcessingResult{}, fmt.Errorf("%w: %v", schema.ErrSignatureError, err)
	}

	result := schema.ProcessingResult{
		ID:          d.newID(),
		Action:      intent.Action,
		CompletedAt: d.now(),
	}

	handler, ok := d.handlers[intent.Action]
	if !ok {
		result.Success = false
		result.Error = fmt.Sprintf("Unsupported: no handler registered for action %q", intent.Action)
		return result, nil
	}

	data, err := handler.Handle(ctx, intent)
	if err != nil {
		result.Success = false
		result.Error = err.Error()
		return result, nil
	}

	result.Success = true
	result.Data = data
	return result, nil
}

// verify recomputes the canonical content hash from the intent's own
// fields and checks both that it matches ContentHash and that Signature
// verifies against it, catching any intent mutated after generation.
func (d *Dispatcher) verify(intent schema.TrustedIntent) error {
	hash, err := canonicalize.CanonicalHash(intent.CanonicalFields())
	if err != nil {
		return fmt.Errorf("recompute content hash: %w", err)
	}
	if hash != intent.ContentHash {
		return fmt.Errorf("content hash mismatch: intent may have been tampered with")
	}
	ok, err := d.signer.Verify([]byte(intent.ContentHash), intent.Signature)
	if err != nil {
		return fmt.Errorf("verify signature: %w", err)
	}
	if !ok {
		return fmt.Errorf("signature does not verify")
	}
	return nil
}

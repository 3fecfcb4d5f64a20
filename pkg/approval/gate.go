// Package approval implements the optional human-in-the-loop elevation
// gate (C8): requests flagged SoftMismatch or low-confidence-with-review
// pause here until an operator approves, denies, or the request expires.
package approval

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/sentryforge/gateway/pkg/schema"
)

// Gate tracks pending approvals in process memory only: nothing persists
// them, so a restart loses every in-flight elevation. The lifecycle state
// machine itself is independent of persistence and is what this type owns.
type Gate struct {
	mu       sync.Mutex
	pending  map[string]*schema.PendingApproval
	now      func() time.Time
	newID    func() string
	timeout  time.Duration
	verifier *jwt.Parser
	jwtKey   []byte
	notifier Notifier
}

// Config configures a Gate.
type Config struct {
	// DefaultTimeout is used when the caller does not specify one.
	DefaultTimeout time.Duration
	// JWTKey verifies the HS256 signature on SubmitDecision tokens, when
	// non-nil. A nil key disables JWT verification (decisions are trusted
	// as-is) which is acceptable for local/operator-CLI deployments but
	// not for a network-exposed approval endpoint.
	JWTKey []byte
}

// New builds a Gate. notifier may be nil, in which case elevation events
// are silently dropped (no operator notification channel configured).
func New(cfg Config, notifier Notifier) *Gate {
	if cfg.DefaultTimeout <= 0 {
		cfg.DefaultTimeout = 60 * time.Minute
	}
	if notifier == nil {
		notifier = NoopNotifier{}
	}
	return &Gate{
		pending:  make(map[string]*schema.PendingApproval),
		now:      time.Now,
		newID:    uuid.NewString,
		timeout:  cfg.DefaultTimeout,
		verifier: jwt.NewParser(jwt.WithValidMethods([]string{"HS256"})),
		jwtKey:   cfg.JWTKey,
		notifier: notifier,
	}
}

// WithClock overrides the time source, for deterministic tests.
func (g *Gate) WithClock(now func() time.Time) *Gate {
	g.now = now
	return g
}

// WithIDGenerator overrides id generation, for deterministic tests.
func (g *Gate) WithIDGenerator(newID func() string) *Gate {
	g.newID = newID
	return g
}

// Elevate opens a new PendingApproval and returns it. The caller (the
// orchestrator) is responsible for suspending the request until a
// decision is reached, typically by returning the approval id to the
// client for later polling or webhook delivery.
func (g *Gate) Elevate(ctx context.Context, reason string, intent schema.Intent, userID, sessionID, requestID string) *schema.PendingApproval {
	now := g.now()
	approval := &schema.PendingApproval{
		ID:             g.newID(),
		CreatedAt:      now,
		Reason:         reason,
		IntentSnapshot: intent,
		Status:         schema.ApprovalPending,
		ExpiresAt:      now.Add(g.timeout),
		UserID:         userID,
		SessionID:      sessionID,
		RequestID:      requestID,
	}

	g.mu.Lock()
	g.pending[approval.ID] = approval
	g.mu.Unlock()

	g.notifier.Notify(ctx, *approval)
	return approval
}

// Get returns a pending approval by id, expiring it in place if its
// timeout has passed.
func (g *Gate) Get(id string) (*schema.PendingApproval, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	a, ok := g.pending[id]
	if !ok {
		return nil, false
	}
	g.expireLocked(a)
	return a, true
}

func (g *Gate) expireLocked(a *schema.PendingApproval) {
	if a.Status == schema.ApprovalPending && g.now().After(a.ExpiresAt) {
		a.Status = schema.ApprovalExpired
	}
}

// SubmitDecision records an operator's resolution. token, when the gate
// was built with a JWTKey, must be an HS256 token whose claims include
// "approved" (bool), "approver_id" (string), and "reason" (string); the
// token's subject binds it to approval id so a token for one approval
// cannot be replayed against another.
func (g *Gate) SubmitDecision(ctx context.Context, id string, decision schema.ApprovalDecision, token string) (*schema.PendingApproval, error) {
	if g.jwtKey != nil {
		verified, err := g.verifyToken(token, id)
		if err != nil {
			return nil, fmt.Errorf("approval: verify decision token: %w", err)
		}
		decision = verified
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	a, ok := g.pending[id]
	if !ok {
		return nil, fmt.Errorf("approval: %q not found", id)
	}
	g.expireLocked(a)
	if a.Status != schema.ApprovalPending {
		return nil, fmt.Errorf("%w: approval %q is %s", schema.ErrElevationExpired, id, a.Status)
	}

	decision.DecidedAt = g.now()
	a.Decision = &decision
	if decision.Approved {
		a.Status = schema.ApprovalApproved
	} else {
		a.Status = schema.ApprovalDenied
	}
	return a, nil
}

type decisionClaims struct {
	jwt.RegisteredClaims
	Approved   bool   `json:"approved"`
	ApproverID string `json:"approver_id"`
	Reason     string `json:"reason"`
}

func (g *Gate) verifyToken(token, approvalID string) (schema.ApprovalDecision, error) {
	var claims decisionClaims
	_, err := g.verifier.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		return g.jwtKey, nil
	})
	if err != nil {
		return schema.ApprovalDecision{}, err
	}
	if claims.Subject != approvalID {
		return schema.ApprovalDecision{}, fmt.Errorf("token subject %q does not match approval %q", claims.Subject, approvalID)
	}
	return schema.ApprovalDecision{
		Approved:   claims.Approved,
		ApproverID: claims.ApproverID,
		Reason:     claims.Reason,
	}, nil
}

// ExpirePending scans all pending approvals and expires overdue ones,
// returning the ids that transitioned. Intended to run on a ticker.
func (g *Gate) ExpirePending() []string {
	g.mu.Lock()
	defer g.mu.Unlock()

	var expired []string
	for id, a := range g.pending {
		if a.Status == schema.ApprovalPending && g.now().After(a.ExpiresAt) {
			a.Status = schema.ApprovalExpired
			expired = append(expired, id)
		}
	}
	return expired
}

// PendingCount returns the number of approvals still awaiting a decision.
func (g *Gate) PendingCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	n := 0
	for _, a := range g.pending {
		if a.Status == schema.ApprovalPending {
			n++
		}
	}
	return n
}

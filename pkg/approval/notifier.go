package approval

import (
	"context"
	"log/slog"

	"github.com/sentryforge/gateway/pkg/schema"
)

// Notifier delivers an elevation event to whatever channel operators
// watch. Implementations must not block the gate on delivery failure;
// Notify is best-effort and fire-and-forget by contract.
type Notifier interface {
	Notify(ctx context.Context, approval schema.PendingApproval)
}

// NoopNotifier discards every event. Used when no operator channel is
// configured, rather than making Notifier nilable everywhere.
type NoopNotifier struct{}

func (NoopNotifier) Notify(context.Context, schema.PendingApproval) {}

// LogNotifier writes elevation events to a structured logger. This is
// the default for local and single-operator deployments; anything
// webhook- or chat-based wraps this with an outbound HTTP call and
// falls back to logging on failure.
type LogNotifier struct {
	Logger *slog.Logger
}

func (n LogNotifier) Notify(ctx context.Context, approval schema.PendingApproval) {
	n.Logger.InfoContext(ctx, "approval elevation opened",
		"approval_id", approval.ID,
		"reason", approval.Reason,
		"user_id", approval.UserID,
		"session_id", approval.SessionID,
		"expires_at", approval.ExpiresAt,
	)
}

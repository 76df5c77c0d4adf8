// Package sending defines the mail transport contract used by the weekly
// send orchestrator.
//
// Each transport (Microsoft Graph, SES, SMTP, log) implements Sender. The
// orchestrator delivers one message per contact and records the outcome, so
// a Sender must not retry a delivery it cannot prove was rejected.
package sending

import (
	"context"

	"github.com/ignite/weekly-campaign/internal/domain"
)

// Sender delivers a single email. Implementations must be safe for
// concurrent use. A non-nil error is recorded on the recipient row as-is, so
// it should read well to an operator.
type Sender interface {
	Send(ctx context.Context, msg *domain.EmailMessage) (*domain.SendResult, error)
}

// SenderFunc adapts a function to Sender.
type SenderFunc func(ctx context.Context, msg *domain.EmailMessage) (*domain.SendResult, error)

// Send calls f.
func (f SenderFunc) Send(ctx context.Context, msg *domain.EmailMessage) (*domain.SendResult, error) {
	return f(ctx, msg)
}

package mailer

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ignite/weekly-campaign/internal/domain"
	"github.com/ignite/weekly-campaign/internal/pkg/logger"
)

// LogTransport accepts every message and only logs it. It keeps the last
// messages in memory so dev tooling can inspect what would have gone out.
type LogTransport struct {
	mu   sync.Mutex
	sent []domain.EmailMessage
}

// NewLogTransport creates a LogTransport.
func NewLogTransport() *LogTransport { return &LogTransport{} }

const logTransportKeep = 200

// Send records msg and returns a synthetic message id.
func (t *LogTransport) Send(ctx context.Context, msg *domain.EmailMessage) (*domain.SendResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	id := "log-" + uuid.New().String()
	logger.Info("mail not delivered (log transport)",
		"to_email", msg.To,
		"subject", msg.Subject,
		"message_id", id,
		"funnel_stage", msg.Tags["funnel_stage"],
	)

	t.mu.Lock()
	t.sent = append(t.sent, *msg)
	if len(t.sent) > logTransportKeep {
		t.sent = t.sent[len(t.sent)-logTransportKeep:]
	}
	t.mu.Unlock()

	return &domain.SendResult{MessageID: id, Transport: domain.TransportLog, SentAt: time.Now().UTC()}, nil
}

// Sent returns a copy of the recorded messages, oldest first.
func (t *LogTransport) Sent() []domain.EmailMessage {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]domain.EmailMessage, len(t.sent))
	copy(out, t.sent)
	return out
}

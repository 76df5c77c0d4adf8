package mailer

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"gopkg.in/gomail.v2"

	"github.com/ignite/weekly-campaign/internal/domain"
	"github.com/ignite/weekly-campaign/internal/pkg/logger"
)

// SMTPOptions configures an SMTPTransport.
type SMTPOptions struct {
	Host     string
	Port     int
	Username string
	Password string
}

// dialer is satisfied by *gomail.Dialer.
type dialer interface {
	DialAndSend(m ...*gomail.Message) error
}

// SMTPTransport delivers through a plain SMTP relay.
type SMTPTransport struct {
	dialer dialer
	host   string
}

// NewSMTPTransport builds a transport for the relay at Host:Port.
func NewSMTPTransport(opts SMTPOptions) (*SMTPTransport, error) {
	if opts.Host == "" {
		return nil, fmt.Errorf("smtp: missing SMTP_HOST")
	}
	if opts.Port == 0 {
		opts.Port = 587
	}
	return &SMTPTransport{
		dialer: gomail.NewDialer(opts.Host, opts.Port, opts.Username, opts.Password),
		host:   opts.Host,
	}, nil
}

// Send builds a multipart message and hands it to the relay. The relay does
// not return an id, so a Message-ID header is generated and returned.
func (s *SMTPTransport) Send(ctx context.Context, msg *domain.EmailMessage) (*domain.SendResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	messageID := fmt.Sprintf("<%s@%s>", uuid.New().String(), s.messageDomain(msg.From))
	m := buildMessage(msg, messageID)

	if err := s.dialer.DialAndSend(m); err != nil {
		return nil, fmt.Errorf("smtp: send: %w", err)
	}
	log.Printf("[SMTP] Sent to %s (id: %s)", logger.RedactEmail(msg.To), messageID)

	return &domain.SendResult{
		MessageID: messageID,
		Transport: domain.TransportSMTP,
		SentAt:    time.Now().UTC(),
	}, nil
}

func (s *SMTPTransport) messageDomain(from string) string {
	if i := strings.LastIndex(from, "@"); i >= 0 && i < len(from)-1 {
		return strings.TrimSuffix(from[i+1:], ">")
	}
	return s.host
}

func buildMessage(msg *domain.EmailMessage, messageID string) *gomail.Message {
	m := gomail.NewMessage()
	m.SetHeader("From", msg.From)
	m.SetHeader("To", msg.To)
	if msg.ReplyTo != "" {
		m.SetHeader("Reply-To", msg.ReplyTo)
	}
	m.SetHeader("Subject", msg.Subject)
	m.SetHeader("Message-ID", messageID)
	for k, v := range msg.Tags {
		m.SetHeader("X-Weekly-"+headerName(k), v)
	}

	switch {
	case msg.Text != "" && msg.HTML != "":
		m.SetBody("text/plain", msg.Text)
		m.AddAlternative("text/html", msg.HTML)
	case msg.HTML != "":
		m.SetBody("text/html", msg.HTML)
	default:
		m.SetBody("text/plain", msg.Text)
	}
	return m
}

// headerName turns weekly_run_id into Weekly-Run-Id style.
func headerName(k string) string {
	parts := strings.FieldsFunc(k, func(r rune) bool { return r == '_' || r == '-' })
	for i, p := range parts {
		parts[i] = strings.ToUpper(p[:1]) + strings.ToLower(p[1:])
	}
	return strings.Join(parts, "-")
}

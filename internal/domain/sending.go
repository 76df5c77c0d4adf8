package domain

import "time"

// TransportType identifies the outbound mail transport.
type TransportType string

const (
	TransportLog   TransportType = "log"
	TransportGraph TransportType = "graph"
	TransportSES   TransportType = "ses"
	TransportSMTP  TransportType = "smtp"
)

// EmailMessage is the fully-resolved message handed to a mail transport.
// By the time a message reaches this struct, layout rendering is complete.
type EmailMessage struct {
	From    string `json:"from"`
	To      string `json:"to"`
	ReplyTo string `json:"reply_to,omitempty"`
	Subject string `json:"subject"`
	HTML    string `json:"html"`
	Text    string `json:"text"`

	// Tags are passed to transports that support message metadata.
	Tags map[string]string `json:"tags,omitempty"`
}

// SendResult is returned by a transport after an accepted delivery.
type SendResult struct {
	MessageID string        `json:"message_id"`
	Transport TransportType `json:"transport"`
	SentAt    time.Time     `json:"sent_at"`
}

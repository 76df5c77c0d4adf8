// Package mailer holds the outbound mail transports: Microsoft Graph, AWS
// SES v2, SMTP and a log-only stub for dev. None of them retry a delivery;
// failed recipients are retried by the next send pass.
package mailer

import (
	"context"
	"fmt"

	"github.com/ignite/weekly-campaign/internal/config"
	"github.com/ignite/weekly-campaign/internal/domain"
	"github.com/ignite/weekly-campaign/internal/service/sending"
)

// New builds the transport named by cfg.Mail.Transport.
func New(ctx context.Context, cfg *config.Config) (sending.Sender, error) {
	switch domain.TransportType(cfg.Mail.Transport) {
	case "", domain.TransportLog:
		return NewLogTransport(), nil
	case domain.TransportGraph:
		t, err := NewGraphTransport(GraphOptions{
			TenantID:        cfg.Graph.TenantID,
			ClientID:        cfg.Graph.ClientID,
			ClientSecret:    cfg.Graph.ClientSecret,
			BaseURL:         cfg.Graph.BaseURL,
			AuthorityURL:    cfg.Graph.AuthorityURL,
			SaveToSentItems: cfg.Graph.SaveToSentItems,
		})
		if err != nil {
			return nil, err
		}
		return t, nil
	case domain.TransportSES:
		t, err := NewSESTransport(ctx, SESOptions{
			Region:           cfg.SES.Region,
			AccessKey:        cfg.SES.AccessKey,
			SecretKey:        cfg.SES.SecretKey,
			ConfigurationSet: cfg.SES.ConfigurationSet,
		})
		if err != nil {
			return nil, err
		}
		return t, nil
	case domain.TransportSMTP:
		t, err := NewSMTPTransport(SMTPOptions{
			Host:     cfg.SMTP.Host,
			Port:     cfg.SMTP.Port,
			Username: cfg.SMTP.Username,
			Password: cfg.SMTP.Password,
		})
		if err != nil {
			return nil, err
		}
		return t, nil
	default:
		return nil, fmt.Errorf("mailer: unknown transport %q", cfg.Mail.Transport)
	}
}

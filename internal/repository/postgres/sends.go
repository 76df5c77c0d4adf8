package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/ignite/weekly-campaign/internal/domain"
	"github.com/ignite/weekly-campaign/internal/service/weekly"
)

const sendColumns = `id, weekly_run_id, candidate_id, subject, preview_text, body_html,
	body_text, sender_mailbox, reply_to, tracking_salt, created_at`

func scanSend(s scanner) (*domain.Send, error) {
	var snap domain.Send
	if err := s.Scan(&snap.ID, &snap.WeeklyRunID, &snap.CandidateID, &snap.Subject, &snap.PreviewText,
		&snap.BodyHTML, &snap.BodyText, &snap.SenderMailbox, &snap.ReplyTo, &snap.TrackingSalt,
		&snap.CreatedAt); err != nil {
		return nil, err
	}
	return &snap, nil
}

func (r *WeeklyRepo) InsertSendIfAbsent(ctx context.Context, s *domain.Send) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO sends
			(id, weekly_run_id, candidate_id, subject, preview_text, body_html, body_text,
			 sender_mailbox, reply_to, tracking_salt, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NOW())
		ON CONFLICT (weekly_run_id, candidate_id) DO NOTHING
	`, s.ID, s.WeeklyRunID, s.CandidateID, s.Subject, s.PreviewText, s.BodyHTML, s.BodyText,
		s.SenderMailbox, s.ReplyTo, s.TrackingSalt)
	if err != nil {
		return false, fmt.Errorf("insert send: %w", err)
	}
	n, _ := res.RowsAffected()
	return n == 1, nil
}

func (r *WeeklyRepo) GetSendByCandidate(ctx context.Context, runID, candidateID string) (*domain.Send, error) {
	snap, err := scanSend(r.db.QueryRowContext(ctx,
		`SELECT `+sendColumns+` FROM sends WHERE weekly_run_id = $1 AND candidate_id = $2`, runID, candidateID))
	if err == sql.ErrNoRows {
		return nil, weekly.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get send by candidate: %w", err)
	}
	return snap, nil
}

func (r *WeeklyRepo) GetSend(ctx context.Context, id string) (*domain.Send, error) {
	snap, err := scanSend(r.db.QueryRowContext(ctx,
		`SELECT `+sendColumns+` FROM sends WHERE id = $1`, id))
	if err == sql.ErrNoRows {
		return nil, weekly.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get send: %w", err)
	}
	return snap, nil
}

func (r *WeeklyRepo) ListSends(ctx context.Context, runID string) ([]domain.Send, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+sendColumns+` FROM sends WHERE weekly_run_id = $1 ORDER BY created_at ASC`, runID)
	if err != nil {
		return nil, fmt.Errorf("list sends: %w", err)
	}
	defer rows.Close()

	var out []domain.Send
	for rows.Next() {
		snap, err := scanSend(rows)
		if err != nil {
			return nil, fmt.Errorf("scan send: %w", err)
		}
		out = append(out, *snap)
	}
	return out, rows.Err()
}

const recipientColumns = `id, send_id, contact_id, email, status, provider_message_id,
	error, attempts, sent_at, created_at, updated_at`

func scanRecipient(s scanner) (*domain.SendRecipient, error) {
	var (
		rec    domain.SendRecipient
		sentAt sql.NullTime
	)
	if err := s.Scan(&rec.ID, &rec.SendID, &rec.ContactID, &rec.Email, &rec.Status,
		&rec.ProviderMessageID, &rec.Error, &rec.Attempts, &sentAt, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
		return nil, err
	}
	rec.SentAt = timePtr(sentAt)
	return &rec, nil
}

func (r *WeeklyRepo) GetRecipient(ctx context.Context, sendID, contactID string) (*domain.SendRecipient, error) {
	rec, err := scanRecipient(r.db.QueryRowContext(ctx,
		`SELECT `+recipientColumns+` FROM send_recipients WHERE send_id = $1 AND contact_id = $2`, sendID, contactID))
	if err == sql.ErrNoRows {
		return nil, weekly.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get recipient: %w", err)
	}
	return rec, nil
}

// ClaimRecipient inserts a pending row, or takes over a failed row or a
// pending row whose lease has lapsed. No returned row means another pass owns
// the recipient.
func (r *WeeklyRepo) ClaimRecipient(ctx context.Context, rec *domain.SendRecipient, lease time.Duration) (*domain.SendRecipient, bool, error) {
	claimed, err := scanRecipient(r.db.QueryRowContext(ctx, `
		INSERT INTO send_recipients
			(id, send_id, contact_id, email, status, attempts, created_at, updated_at)
		VALUES ($1, $2, $3, $4, 'pending', 1, NOW(), NOW())
		ON CONFLICT (send_id, contact_id) DO UPDATE SET
			email = EXCLUDED.email,
			status = 'pending',
			error = '',
			attempts = send_recipients.attempts + 1,
			updated_at = NOW()
		WHERE send_recipients.status = 'failed'
		   OR (send_recipients.status = 'pending'
		       AND send_recipients.updated_at < NOW() - make_interval(secs => $5))
		RETURNING `+recipientColumns,
		rec.ID, rec.SendID, rec.ContactID, rec.Email, lease.Seconds()))
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("claim recipient: %w", err)
	}
	return claimed, true, nil
}

// UpsertRecipient never touches a row that is already sent.
func (r *WeeklyRepo) UpsertRecipient(ctx context.Context, rec *domain.SendRecipient) error {
	var sentAt sql.NullTime
	if rec.SentAt != nil {
		sentAt = sql.NullTime{Time: *rec.SentAt, Valid: true}
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO send_recipients
			(id, send_id, contact_id, email, status, provider_message_id, error, attempts,
			 sent_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW(), NOW())
		ON CONFLICT (send_id, contact_id) DO UPDATE SET
			email = EXCLUDED.email,
			status = EXCLUDED.status,
			provider_message_id = EXCLUDED.provider_message_id,
			error = EXCLUDED.error,
			attempts = EXCLUDED.attempts,
			sent_at = EXCLUDED.sent_at,
			updated_at = NOW()
		WHERE send_recipients.status <> 'sent'
	`, rec.ID, rec.SendID, rec.ContactID, rec.Email, rec.Status, rec.ProviderMessageID,
		rec.Error, rec.Attempts, sentAt)
	if err != nil {
		return fmt.Errorf("upsert recipient: %w", err)
	}
	return nil
}

func (r *WeeklyRepo) ListRecipients(ctx context.Context, sendID string) ([]domain.SendRecipient, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+recipientColumns+` FROM send_recipients WHERE send_id = $1 ORDER BY contact_id ASC`, sendID)
	if err != nil {
		return nil, fmt.Errorf("list recipients: %w", err)
	}
	defer rows.Close()

	var out []domain.SendRecipient
	for rows.Next() {
		rec, err := scanRecipient(rows)
		if err != nil {
			return nil, fmt.Errorf("scan recipient: %w", err)
		}
		out = append(out, *rec)
	}
	return out, rows.Err()
}

func (r *WeeklyRepo) ListActiveContacts(ctx context.Context) ([]domain.Contact, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, email, firstname, lastname, status, order_count
		FROM contacts
		WHERE status = 'active'
		ORDER BY lastname ASC, firstname ASC, email ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("list active contacts: %w", err)
	}
	defer rows.Close()

	var out []domain.Contact
	for rows.Next() {
		var (
			c      domain.Contact
			orders sql.NullInt64
		)
		if err := rows.Scan(&c.ID, &c.Email, &c.FirstName, &c.LastName, &c.Status, &orders); err != nil {
			return nil, fmt.Errorf("scan contact: %w", err)
		}
		if orders.Valid {
			n := int(orders.Int64)
			c.OrderCount = &n
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

package weekly

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ignite/weekly-campaign/internal/domain"
	"github.com/ignite/weekly-campaign/internal/pkg/logger"
	"github.com/ignite/weekly-campaign/internal/segmentation"
)

// SendResult summarizes one send pass.
type SendResult struct {
	Advanced  bool   `json:"advanced"`
	SendID    string `json:"send_id,omitempty"`
	Delivered int    `json:"delivered"`
	Failed    int    `json:"failed"`
	Skipped   int    `json:"skipped"`

	// Segments counts the per-contact segmentation picks. Delivered content
	// is the run's locked candidate regardless of the pick.
	Segments map[domain.FunnelStage]int `json:"segments,omitempty"`
}

// Send delivers the run's locked content to every active contact that has
// not yet received it. It locks the run first if needed and returns
// Advanced=false without error when there is nothing to send. Each
// recipient is claimed before delivery so overlapping passes never mail the
// same contact twice. Recipient failures are recorded and retried on the next
// pass.
func (s *Service) Send(ctx context.Context, run *domain.WeeklyRun, now time.Time) (*SendResult, error) {
	if !run.IsLocked() {
		if _, err := s.Lock(ctx, run, now); err != nil {
			return nil, fmt.Errorf("auto-lock: %w", err)
		}
		fresh, err := s.repo.GetRun(ctx, run.ID)
		if err != nil {
			return nil, fmt.Errorf("reload run: %w", err)
		}
		run = fresh
	}
	if run.SelectedCandidateID == nil || *run.SelectedCandidateID == "" {
		log.Printf("[weekly.Send] week %s has no selected candidate, nothing to send", run.WeekOf)
		return &SendResult{}, nil
	}

	id := s.opts.Identity
	if strings.TrimSpace(id.Sender) == "" || strings.TrimSpace(id.ReplyTo) == "" {
		return nil, fmt.Errorf("%w: MAIL_SENDER_UPN and REPLY_TO must be set", ErrMissingSender)
	}

	snap, err := s.ensureSend(ctx, run, *run.SelectedCandidateID)
	if err != nil {
		return nil, err
	}

	contacts, err := s.repo.ListActiveContacts(ctx)
	if err != nil {
		return nil, fmt.Errorf("list contacts: %w", err)
	}
	candidates, err := s.repo.ListCandidates(ctx, run.ID)
	if err != nil {
		return nil, fmt.Errorf("list candidates: %w", err)
	}

	// Plan every pick before delivering so a broken candidate set fails the
	// stage without a partial pass.
	picks := make([]segmentation.Assignment, len(contacts))
	for i, c := range contacts {
		if _, err := segmentation.SelectForContact(c, candidates, run.WeekOf); err != nil {
			return nil, err
		}
		picks[i] = segmentation.Assign(c, run.WeekOf)
	}

	res := &SendResult{SendID: snap.ID, Segments: make(map[domain.FunnelStage]int)}
	wlog := logger.With("week_of", run.WeekOf, "send_id", snap.ID)
	for i, c := range contacts {
		res.Segments[picks[i].Stage]++

		rec, claimed, err := s.repo.ClaimRecipient(ctx, &domain.SendRecipient{
			ID:        uuid.New().String(),
			SendID:    snap.ID,
			ContactID: c.ID,
			Email:     c.Email,
		}, s.opts.ClaimLease)
		if err != nil {
			log.Printf("[weekly.Send] week %s: claim recipient %s: %v", run.WeekOf, c.ID, err)
			res.Failed++
			continue
		}
		if !claimed {
			res.Skipped++
			continue
		}

		result, derr := s.deliver(ctx, snap, c, picks[i])
		if derr != nil {
			rec.Status = domain.RecipientFailed
			rec.Error = derr.Error()
			res.Failed++
			wlog.Warn("weekly send failed", "contact_id", c.ID, "email", c.Email,
				"funnel_stage", picks[i].Stage, "bucket", picks[i].Bucket, "error", derr)
		} else {
			sentAt := now.UTC()
			rec.Status = domain.RecipientSent
			rec.ProviderMessageID = result.MessageID
			rec.SentAt = &sentAt
			res.Delivered++
			wlog.Info("weekly send delivered", "contact_id", c.ID, "email", c.Email,
				"funnel_stage", picks[i].Stage, "bucket", picks[i].Bucket, "message_id", result.MessageID)
		}

		if err := s.repo.UpsertRecipient(ctx, rec); err != nil {
			log.Printf("[weekly.Send] week %s: record recipient %s: %v", run.WeekOf, c.ID, err)
		}
	}

	if res.Delivered > 0 {
		res.Advanced = true
	}
	if res.Delivered > 0 || (run.SentAt == nil && res.Skipped > 0) {
		s.markSent(ctx, run, snap.ID, res.Delivered > 0, now)
	}

	log.Printf("[weekly.Send] week %s: delivered=%d failed=%d skipped=%d", run.WeekOf, res.Delivered, res.Failed, res.Skipped)
	return res, nil
}

// markSent stamps sent_at once any recipient has been delivered. A failure is
// logged rather than returned: deliveries already happened and the next pass
// repairs the stamp from the recipient rows.
func (s *Service) markSent(ctx context.Context, run *domain.WeeklyRun, sendID string, delivered bool, now time.Time) {
	if !delivered {
		recs, err := s.repo.ListRecipients(ctx, sendID)
		if err != nil {
			log.Printf("[weekly.Send] week %s: list recipients: %v", run.WeekOf, err)
			return
		}
		for _, r := range recs {
			if r.Status == domain.RecipientSent {
				delivered = true
				break
			}
		}
		if !delivered {
			return
		}
	}
	ok, err := s.repo.MarkSent(ctx, run.ID, now.UTC())
	if err != nil {
		logger.With("week_of", run.WeekOf, "send_id", sendID).Error("mark sent failed", "error", err)
		return
	}
	if ok {
		log.Printf("[weekly.Send] week %s: marked sent", run.WeekOf)
	}
}

// ensureSend returns the frozen snapshot for (run, candidate), rendering and
// inserting it if it doesn't exist yet. A concurrent insert wins; the stored
// row is authoritative.
func (s *Service) ensureSend(ctx context.Context, run *domain.WeeklyRun, candidateID string) (*domain.Send, error) {
	snap, err := s.repo.GetSendByCandidate(ctx, run.ID, candidateID)
	if err == nil {
		return snap, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("get send: %w", err)
	}

	cand, err := s.repo.GetCandidate(ctx, candidateID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrCandidateNotFound, candidateID)
		}
		return nil, fmt.Errorf("get candidate: %w", err)
	}

	rendered, err := s.renderer.Render(cand)
	if err != nil {
		return nil, fmt.Errorf("render candidate: %w", err)
	}

	created, err := s.repo.InsertSendIfAbsent(ctx, &domain.Send{
		ID:            uuid.New().String(),
		WeeklyRunID:   run.ID,
		CandidateID:   cand.ID,
		Subject:       rendered.Subject,
		PreviewText:   rendered.PreviewText,
		BodyHTML:      rendered.HTML,
		BodyText:      rendered.Text,
		SenderMailbox: s.opts.Identity.Sender,
		ReplyTo:       s.opts.Identity.ReplyTo,
		TrackingSalt:  uuid.New().String(),
	})
	if err != nil {
		return nil, fmt.Errorf("insert send: %w", err)
	}
	if created {
		log.Printf("[weekly.Send] week %s: created send for candidate %s", run.WeekOf, cand.ID)
	}

	snap, err = s.repo.GetSendByCandidate(ctx, run.ID, candidateID)
	if err != nil {
		return nil, fmt.Errorf("reload send: %w", err)
	}
	return snap, nil
}

func (s *Service) deliver(ctx context.Context, snap *domain.Send, c domain.Contact, pick segmentation.Assignment) (*domain.SendResult, error) {
	if strings.TrimSpace(c.Email) == "" {
		return nil, fmt.Errorf("contact has no email address")
	}

	msg := &domain.EmailMessage{
		From:    snap.SenderMailbox,
		To:      c.Email,
		ReplyTo: snap.ReplyTo,
		Subject: snap.Subject,
		HTML:    snap.BodyHTML,
		Text:    snap.BodyText,
		Tags: map[string]string{
			"weekly_run_id": snap.WeeklyRunID,
			"send_id":       snap.ID,
			"contact_id":    c.ID,
			"funnel_stage":  string(pick.Stage),
		},
	}

	mctx, cancel := withTimeout(ctx, s.opts.MailTimeout)
	defer cancel()
	result, err := s.sender.Send(mctx, msg)
	if err != nil {
		return nil, err
	}
	if result == nil {
		result = &domain.SendResult{}
	}
	return result, nil
}

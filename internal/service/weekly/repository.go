package weekly

import (
	"context"
	"time"

	"github.com/ignite/weekly-campaign/internal/domain"
)

// RunStore persists the weekly run ledger.
type RunStore interface {
	// InsertRunIfAbsent inserts run unless a run for run.WeekOf already
	// exists. A uniqueness conflict is not an error.
	InsertRunIfAbsent(ctx context.Context, run *domain.WeeklyRun) error

	// GetRunByWeek returns ErrNotFound if no run exists for weekOf.
	GetRunByWeek(ctx context.Context, weekOf string) (*domain.WeeklyRun, error)

	// GetRun returns ErrNotFound if the run doesn't exist.
	GetRun(ctx context.Context, id string) (*domain.WeeklyRun, error)

	// ListRuns returns the most recent runs, newest week first.
	ListRuns(ctx context.Context, limit int) ([]domain.WeeklyRun, error)

	// MarkGenerated sets generated_at (unless already set) and moves a
	// pending run to generated.
	MarkGenerated(ctx context.Context, runID string, at time.Time) error

	// MarkLocked sets locked_at, the selected candidate and status=locked in
	// one statement, only if locked_at is still null. It reports whether
	// this call performed the transition.
	MarkLocked(ctx context.Context, runID, candidateID string, at time.Time) (bool, error)

	// MarkSent sets sent_at and status=sent only if sent_at is still null.
	MarkSent(ctx context.Context, runID string, at time.Time) (bool, error)

	// SetSelection records a manual choice while the run is unlocked. It
	// reports false if the run was already locked.
	SetSelection(ctx context.Context, runID, candidateID, focusNotes string) (bool, error)

	// ResetRun deletes the run's recipients, sends and candidates, then
	// clears its timestamps and selection and sets status=pending, all in one
	// transaction.
	ResetRun(ctx context.Context, runID string) error
}

// CandidateStore persists generated content variants.
type CandidateStore interface {
	// ListCandidates returns a run's candidates ordered by rank.
	ListCandidates(ctx context.Context, runID string) ([]domain.Candidate, error)

	// GetCandidate returns ErrNotFound if the candidate doesn't exist.
	GetCandidate(ctx context.Context, id string) (*domain.Candidate, error)

	// InsertCandidates inserts the full set atomically. If any row conflicts
	// on (weekly_run_id, funnel_stage) or (weekly_run_id, rank) nothing is
	// inserted and false is returned.
	InsertCandidates(ctx context.Context, runID string, candidates []domain.Candidate) (bool, error)
}

// SendStore persists send snapshots and per-recipient outcomes.
type SendStore interface {
	// InsertSendIfAbsent inserts s unless a send already exists for
	// (weekly_run_id, candidate_id). It reports whether a row was created.
	InsertSendIfAbsent(ctx context.Context, s *domain.Send) (bool, error)

	// GetSendByCandidate returns ErrNotFound if no send exists for the pair.
	GetSendByCandidate(ctx context.Context, runID, candidateID string) (*domain.Send, error)

	// GetSend returns ErrNotFound if the send doesn't exist.
	GetSend(ctx context.Context, id string) (*domain.Send, error)

	// ListSends returns a run's sends, oldest first.
	ListSends(ctx context.Context, runID string) ([]domain.Send, error)

	// GetRecipient returns ErrNotFound if no row exists for (sendID, contactID).
	GetRecipient(ctx context.Context, sendID, contactID string) (*domain.SendRecipient, error)

	// ClaimRecipient reserves (r.SendID, r.ContactID) for one delivery
	// attempt by writing a pending row. It succeeds when no row exists, when
	// the row failed, or when a pending row is older than lease. It returns
	// the claimed row and false when another pass holds or finished it.
	ClaimRecipient(ctx context.Context, r *domain.SendRecipient, lease time.Duration) (*domain.SendRecipient, bool, error)

	// UpsertRecipient writes r keyed by (send_id, contact_id). A row that is
	// already sent is left untouched.
	UpsertRecipient(ctx context.Context, r *domain.SendRecipient) error

	// ListRecipients returns every recipient row of a send.
	ListRecipients(ctx context.Context, sendID string) ([]domain.SendRecipient, error)
}

// ContactSource reads the contact list. The engine never writes contacts.
type ContactSource interface {
	// ListActiveContacts returns active contacts ordered by last name, first
	// name, then email.
	ListActiveContacts(ctx context.Context) ([]domain.Contact, error)
}

// Repository is everything the service needs from storage.
// Implementations must be safe for concurrent use.
type Repository interface {
	RunStore
	CandidateStore
	SendStore
	ContactSource

	// Ping checks that the store is reachable.
	Ping(ctx context.Context) error
}

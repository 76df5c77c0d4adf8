package domain

import "time"

// RunStatus enumerates the lifecycle states of a weekly run. A run only
// moves forward: pending -> generated -> locked -> sent.
type RunStatus string

const (
	RunPending   RunStatus = "pending"
	RunGenerated RunStatus = "generated"
	RunLocked    RunStatus = "locked"
	RunSent      RunStatus = "sent"
)

var runStatusOrder = map[RunStatus]int{
	RunPending:   0,
	RunGenerated: 1,
	RunLocked:    2,
	RunSent:      3,
}

// Valid reports whether s is a known run status.
func (s RunStatus) Valid() bool {
	_, ok := runStatusOrder[s]
	return ok
}

// Before reports whether s comes strictly earlier in the lifecycle than o.
func (s RunStatus) Before(o RunStatus) bool {
	return runStatusOrder[s] < runStatusOrder[o]
}

// WeeklyRun is the ledger row for one calendar week, keyed by the Monday
// date in the configured timezone.
type WeeklyRun struct {
	ID                  string     `json:"id" db:"id"`
	WeekOf              string     `json:"week_of" db:"week_of"`
	Status              RunStatus  `json:"status" db:"status"`
	GeneratedAt         *time.Time `json:"generated_at" db:"generated_at"`
	LockedAt            *time.Time `json:"locked_at" db:"locked_at"`
	SentAt              *time.Time `json:"sent_at" db:"sent_at"`
	SelectedCandidateID *string    `json:"selected_candidate_id" db:"selected_candidate_id"`
	FocusNotes          string     `json:"focus_notes" db:"focus_notes"`
	CreatedAt           time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at" db:"updated_at"`
}

// IsLocked returns true once the lock stage has completed.
func (r *WeeklyRun) IsLocked() bool { return r.LockedAt != nil }

// IsSent returns true once at least one recipient has been delivered.
func (r *WeeklyRun) IsSent() bool { return r.SentAt != nil }

// FunnelStage is a content variant's position in the sales funnel.
type FunnelStage string

const (
	StageTop    FunnelStage = "top"
	StageMid    FunnelStage = "mid"
	StageBottom FunnelStage = "bottom"
)

// FunnelStages lists every stage in rank order.
var FunnelStages = []FunnelStage{StageTop, StageMid, StageBottom}

// Valid reports whether f is one of top, mid or bottom.
func (f FunnelStage) Valid() bool {
	return f == StageTop || f == StageMid || f == StageBottom
}

// Rank returns the candidate rank that belongs to the stage (top=1).
func (f FunnelStage) Rank() int {
	for i, s := range FunnelStages {
		if s == f {
			return i + 1
		}
	}
	return 0
}

// Candidate is one generated content variant. It belongs to exactly one run.
type Candidate struct {
	ID           string      `json:"id" db:"id"`
	WeeklyRunID  string      `json:"weekly_run_id" db:"weekly_run_id"`
	Rank         int         `json:"rank" db:"rank"`
	FunnelStage  FunnelStage `json:"funnel_stage" db:"funnel_stage"`
	Subject      string      `json:"subject" db:"subject"`
	PreviewText  string      `json:"preview_text" db:"preview_text"`
	BodyHTML     string      `json:"body_html" db:"body_html"`
	BodyText     string      `json:"body_text" db:"body_text"`
	BodyMarkdown string      `json:"body_markdown" db:"body_markdown"`
	CTA          string      `json:"cta" db:"cta"`
	ImageURL     *string     `json:"image_url" db:"image_url"`
	CreatedAt    time.Time   `json:"created_at" db:"created_at"`
}

// CandidateDraft is what a content provider returns before it is persisted.
type CandidateDraft struct {
	FunnelStage  FunnelStage `json:"funnel_stage"`
	Subject      string      `json:"subject"`
	Preview      string      `json:"preview"`
	BodyHTML     string      `json:"body_html"`
	BodyText     string      `json:"body_text"`
	BodyMarkdown string      `json:"body_markdown,omitempty"`
	CTA          string      `json:"cta"`
	ImageURL     *string     `json:"image_url,omitempty"`
}

// ContentConstraints are the editorial rules passed to every provider.
type ContentConstraints struct {
	NoEmojis            bool `json:"no_emojis"`
	NoEmdash            bool `json:"no_emdash"`
	NeverDiscussPricing bool `json:"never_discuss_pricing"`
}

// GenerationContext is the input handed to a content provider.
type GenerationContext struct {
	WeekOf      string             `json:"week_of"`
	FocusNotes  string             `json:"focus_notes,omitempty"`
	Constraints ContentConstraints `json:"constraints"`
}

// Send is the frozen snapshot of the content dispatched for a run.
// At most one exists per (weekly_run_id, candidate_id).
type Send struct {
	ID            string    `json:"id" db:"id"`
	WeeklyRunID   string    `json:"weekly_run_id" db:"weekly_run_id"`
	CandidateID   string    `json:"candidate_id" db:"candidate_id"`
	Subject       string    `json:"subject" db:"subject"`
	PreviewText   string    `json:"preview_text" db:"preview_text"`
	BodyHTML      string    `json:"body_html" db:"body_html"`
	BodyText      string    `json:"body_text" db:"body_text"`
	SenderMailbox string    `json:"sender_mailbox" db:"sender_mailbox"`
	ReplyTo       string    `json:"reply_to" db:"reply_to"`
	TrackingSalt  string    `json:"tracking_salt" db:"tracking_salt"`
	CreatedAt     time.Time `json:"created_at" db:"created_at"`
}

// RecipientStatus enumerates per-contact delivery outcomes.
type RecipientStatus string

const (
	RecipientPending RecipientStatus = "pending"
	RecipientSent    RecipientStatus = "sent"
	RecipientFailed  RecipientStatus = "failed"
)

// SendRecipient tracks delivery of one Send to one contact. Once sent it is
// never downgraded.
type SendRecipient struct {
	ID                string          `json:"id" db:"id"`
	SendID            string          `json:"send_id" db:"send_id"`
	ContactID         string          `json:"contact_id" db:"contact_id"`
	Email             string          `json:"email" db:"email"`
	Status            RecipientStatus `json:"status" db:"status"`
	ProviderMessageID string          `json:"provider_message_id,omitempty" db:"provider_message_id"`
	Error             string          `json:"error,omitempty" db:"error"`
	Attempts          int             `json:"attempts" db:"attempts"`
	SentAt            *time.Time      `json:"sent_at" db:"sent_at"`
	CreatedAt         time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at" db:"updated_at"`
}

// RenderedEmail is the output of merging a candidate into the email layout.
type RenderedEmail struct {
	Subject     string `json:"subject"`
	PreviewText string `json:"preview_text"`
	HTML        string `json:"html"`
	Text        string `json:"text"`
}

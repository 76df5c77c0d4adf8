package weekly

import (
	"context"
	"fmt"
	"time"

	"github.com/ignite/weekly-campaign/internal/domain"
	"github.com/ignite/weekly-campaign/internal/schedule"
	"github.com/ignite/weekly-campaign/internal/service/sending"
)

// ContentProvider writes the copy for a week's three candidates. It must
// return an error rather than a set that isn't exactly one per funnel stage.
type ContentProvider interface {
	GenerateCandidates(ctx context.Context, gc domain.GenerationContext) ([]domain.CandidateDraft, error)
}

// Renderer merges a candidate into the email layout.
type Renderer interface {
	Render(c *domain.Candidate) (*domain.RenderedEmail, error)
}

// Schedule holds the three weekly triggers.
type Schedule struct {
	Generate schedule.Trigger `json:"generate"`
	Lock     schedule.Trigger `json:"lock"`
	Send     schedule.Trigger `json:"send"`
}

// MailIdentity is the sender mailbox and reply-to address stamped on every
// send. Both are required at send time.
type MailIdentity struct {
	Sender  string `json:"sender_mailbox"`
	ReplyTo string `json:"reply_to"`
}

// Options configures a Service.
type Options struct {
	Location    *time.Location
	Schedule    Schedule
	Identity    MailIdentity
	Constraints domain.ContentConstraints

	// ContentTimeout bounds one provider call; MailTimeout bounds one
	// delivery attempt. Zero means no extra deadline.
	ContentTimeout time.Duration
	MailTimeout    time.Duration

	// ClaimLease is how long a pending recipient row blocks other passes
	// before it can be reclaimed. Zero means DefaultClaimLease.
	ClaimLease time.Duration
}

// DefaultClaimLease covers a crashed pass that left recipients pending.
const DefaultClaimLease = 15 * time.Minute

// Service implements the ledger, candidate generator, send orchestrator and
// tick coordinator. All public methods are safe for concurrent use if the
// underlying repository is concurrency-safe.
type Service struct {
	repo     Repository
	provider ContentProvider
	sender   sending.Sender
	renderer Renderer
	opts     Options
}

// NewService creates a weekly campaign service.
func NewService(repo Repository, provider ContentProvider, sender sending.Sender, renderer Renderer, opts Options) (*Service, error) {
	if repo == nil || provider == nil || sender == nil || renderer == nil {
		return nil, fmt.Errorf("weekly: repository, provider, sender and renderer are required")
	}
	if opts.Location == nil {
		return nil, fmt.Errorf("weekly: location is required")
	}
	for name, t := range map[string]schedule.Trigger{
		"generate": opts.Schedule.Generate,
		"lock":     opts.Schedule.Lock,
		"send":     opts.Schedule.Send,
	} {
		if err := t.Normalize().Validate(); err != nil {
			return nil, fmt.Errorf("weekly: %s schedule: %w", name, err)
		}
	}
	if opts.ClaimLease <= 0 {
		opts.ClaimLease = DefaultClaimLease
	}
	return &Service{repo: repo, provider: provider, sender: sender, renderer: renderer, opts: opts}, nil
}

// Location returns the configured timezone.
func (s *Service) Location() *time.Location { return s.opts.Location }

// Schedule returns the configured triggers.
func (s *Service) Schedule() Schedule { return s.opts.Schedule }

// WeekOf returns the week key for an instant in the configured timezone.
func (s *Service) WeekOf(now time.Time) string {
	return schedule.WeekOf(now, s.opts.Location)
}

// Ping checks the repository.
func (s *Service) Ping(ctx context.Context) error { return s.repo.Ping(ctx) }

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

func validWeekOf(weekOf string) (string, error) {
	w, err := schedule.NormalizeWeekOf(weekOf)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidWeekOf, err)
	}
	return w, nil
}

package weekly

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/ignite/weekly-campaign/internal/domain"
)

// Snapshot is a run with its candidates. Run is nil when the week has no
// ledger row yet.
type Snapshot struct {
	WeekOf     string             `json:"week_of"`
	Run        *domain.WeeklyRun  `json:"weekly_run"`
	Candidates []domain.Candidate `json:"candidates"`
	Selected   *domain.Candidate  `json:"selected"`
}

// RecipientReport is a send with its recipient rows and per-status counts.
type RecipientReport struct {
	Send       *domain.Send                   `json:"send"`
	Counts     map[domain.RecipientStatus]int `json:"counts"`
	Recipients []domain.SendRecipient         `json:"recipients"`
}

// Weekly returns the snapshot for weekOf without creating a run.
func (s *Service) Weekly(ctx context.Context, weekOf string) (*Snapshot, error) {
	weekOf, err := validWeekOf(weekOf)
	if err != nil {
		return nil, err
	}
	snap := &Snapshot{WeekOf: weekOf, Candidates: []domain.Candidate{}}

	run, err := s.repo.GetRunByWeek(ctx, weekOf)
	if errors.Is(err, ErrNotFound) {
		return snap, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get run: %w", err)
	}
	snap.Run = run

	cands, err := s.repo.ListCandidates(ctx, run.ID)
	if err != nil {
		return nil, fmt.Errorf("list candidates: %w", err)
	}
	if cands != nil {
		snap.Candidates = cands
	}
	if run.SelectedCandidateID != nil {
		for i := range cands {
			if cands[i].ID == *run.SelectedCandidateID {
				c := cands[i]
				snap.Selected = &c
				break
			}
		}
	}
	return snap, nil
}

// Candidates returns the candidates for weekOf, empty if the week has none.
func (s *Service) Candidates(ctx context.Context, weekOf string) ([]domain.Candidate, error) {
	snap, err := s.Weekly(ctx, weekOf)
	if err != nil {
		return nil, err
	}
	return snap.Candidates, nil
}

// Runs lists recent runs, newest week first.
func (s *Service) Runs(ctx context.Context, limit int) ([]domain.WeeklyRun, error) {
	if limit <= 0 || limit > 200 {
		limit = 20
	}
	return s.repo.ListRuns(ctx, limit)
}

// Sends lists the sends of a run.
func (s *Service) Sends(ctx context.Context, runID string) ([]domain.Send, error) {
	if strings.TrimSpace(runID) == "" {
		return nil, fmt.Errorf("weekly_run_id is required")
	}
	sends, err := s.repo.ListSends(ctx, runID)
	if err != nil {
		return nil, err
	}
	if sends == nil {
		sends = []domain.Send{}
	}
	return sends, nil
}

// Recipients returns the recipient rows of a send with status counts.
func (s *Service) Recipients(ctx context.Context, sendID string) (*RecipientReport, error) {
	snap, err := s.repo.GetSend(ctx, sendID)
	if err != nil {
		return nil, err
	}
	rows, err := s.repo.ListRecipients(ctx, sendID)
	if err != nil {
		return nil, fmt.Errorf("list recipients: %w", err)
	}
	rep := &RecipientReport{
		Send:       snap,
		Counts:     map[domain.RecipientStatus]int{domain.RecipientPending: 0, domain.RecipientSent: 0, domain.RecipientFailed: 0},
		Recipients: rows,
	}
	if rep.Recipients == nil {
		rep.Recipients = []domain.SendRecipient{}
	}
	for _, r := range rows {
		rep.Counts[r.Status]++
	}
	return rep, nil
}

// SelectCandidate records a manual choice of rank for weekOf. Empty notes
// keep the run's existing focus notes. Once locked the selection is frozen.
func (s *Service) SelectCandidate(ctx context.Context, weekOf string, rank int, notes string) (*Snapshot, error) {
	if rank < 1 || rank > len(domain.FunnelStages) {
		return nil, ErrInvalidRank
	}
	run, err := s.Ensure(ctx, weekOf)
	if err != nil {
		return nil, err
	}
	if run.IsLocked() {
		return nil, ErrAlreadyLocked
	}

	cands, err := s.repo.ListCandidates(ctx, run.ID)
	if err != nil {
		return nil, fmt.Errorf("list candidates: %w", err)
	}
	var chosen *domain.Candidate
	for i := range cands {
		if cands[i].Rank == rank {
			chosen = &cands[i]
			break
		}
	}
	if chosen == nil {
		return nil, fmt.Errorf("%w: rank %d for week %s", ErrCandidateNotFound, rank, run.WeekOf)
	}

	if strings.TrimSpace(notes) == "" {
		notes = run.FocusNotes
	}
	ok, err := s.repo.SetSelection(ctx, run.ID, chosen.ID, notes)
	if err != nil {
		return nil, fmt.Errorf("set selection: %w", err)
	}
	if !ok {
		return nil, ErrAlreadyLocked
	}

	log.Printf("[weekly.Select] week %s: selected rank %d (%s)", run.WeekOf, rank, chosen.ID)
	return s.Weekly(ctx, run.WeekOf)
}

// Reset wipes a week back to pending, deleting its recipients, sends and
// candidates.
func (s *Service) Reset(ctx context.Context, weekOf string) (*domain.WeeklyRun, error) {
	run, err := s.Ensure(ctx, weekOf)
	if err != nil {
		return nil, err
	}
	if err := s.repo.ResetRun(ctx, run.ID); err != nil {
		return nil, fmt.Errorf("reset run: %w", err)
	}
	log.Printf("[weekly.Reset] week %s reset to pending", run.WeekOf)
	return s.repo.GetRun(ctx, run.ID)
}

// PipelineOptions controls RunPipeline.
type PipelineOptions struct {
	Force bool
	Reset bool
}

// PipelineResult reports each step of RunPipeline.
type PipelineResult struct {
	WeekOf      string          `json:"week_of"`
	Reset       bool            `json:"reset"`
	Generate    *GenerateResult `json:"generate,omitempty"`
	Locked      bool            `json:"locked"`
	Send        *SendResult     `json:"send,omitempty"`
	Snapshot    *Snapshot       `json:"snapshot"`
	SendsForRun int             `json:"sends_for_run"`
}

// RunPipeline runs generate, lock and send back to back for weekOf,
// ignoring the schedule. Without Reset, a run that is already sent is
// reported as-is and not touched.
func (s *Service) RunPipeline(ctx context.Context, weekOf string, now time.Time, opts PipelineOptions) (*PipelineResult, error) {
	run, err := s.Ensure(ctx, weekOf)
	if err != nil {
		return nil, err
	}
	res := &PipelineResult{WeekOf: run.WeekOf}

	switch {
	case opts.Reset:
		if run, err = s.Reset(ctx, run.WeekOf); err != nil {
			return nil, err
		}
		res.Reset = true
	case run.IsSent():
		return s.finishPipeline(ctx, res, run)
	}

	if res.Generate, err = s.Generate(ctx, run, now, GenerateOptions{Force: opts.Force}); err != nil {
		return nil, fmt.Errorf("generate: %w", err)
	}

	if run, err = s.repo.GetRun(ctx, run.ID); err != nil {
		return nil, fmt.Errorf("reload run: %w", err)
	}
	if res.Locked, err = s.Lock(ctx, run, now); err != nil {
		return nil, fmt.Errorf("lock: %w", err)
	}

	if run, err = s.repo.GetRun(ctx, run.ID); err != nil {
		return nil, fmt.Errorf("reload run: %w", err)
	}
	if res.Send, err = s.Send(ctx, run, now); err != nil {
		return nil, fmt.Errorf("send: %w", err)
	}

	return s.finishPipeline(ctx, res, run)
}

func (s *Service) finishPipeline(ctx context.Context, res *PipelineResult, run *domain.WeeklyRun) (*PipelineResult, error) {
	snap, err := s.Weekly(ctx, run.WeekOf)
	if err != nil {
		return nil, err
	}
	res.Snapshot = snap
	sends, err := s.repo.ListSends(ctx, run.ID)
	if err != nil {
		return nil, fmt.Errorf("list sends: %w", err)
	}
	res.SendsForRun = len(sends)
	return res, nil
}

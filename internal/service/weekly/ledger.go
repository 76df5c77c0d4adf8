package weekly

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/ignite/weekly-campaign/internal/domain"
)

// Ensure returns the run for weekOf, creating a pending one if needed. Two
// concurrent callers get the same row: the insert tolerates the unique
// conflict and the winner is re-read.
func (s *Service) Ensure(ctx context.Context, weekOf string) (*domain.WeeklyRun, error) {
	weekOf, err := validWeekOf(weekOf)
	if err != nil {
		return nil, err
	}

	run, err := s.repo.GetRunByWeek(ctx, weekOf)
	if err == nil {
		return run, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("get run %s: %w", weekOf, err)
	}

	if err := s.repo.InsertRunIfAbsent(ctx, &domain.WeeklyRun{
		ID:     uuid.New().String(),
		WeekOf: weekOf,
		Status: domain.RunPending,
	}); err != nil {
		return nil, fmt.Errorf("insert run %s: %w", weekOf, err)
	}

	run, err = s.repo.GetRunByWeek(ctx, weekOf)
	if err != nil {
		return nil, fmt.Errorf("reload run %s: %w", weekOf, err)
	}
	return run, nil
}

// Lock freezes the run's selection. With no manual selection it picks the
// rank-1 candidate. It returns false without mutating anything if the run is
// already locked or has nothing to select.
func (s *Service) Lock(ctx context.Context, run *domain.WeeklyRun, now time.Time) (bool, error) {
	if run.IsLocked() {
		return false, nil
	}

	var candidateID string
	if run.SelectedCandidateID != nil && *run.SelectedCandidateID != "" {
		candidateID = *run.SelectedCandidateID
	} else {
		cands, err := s.repo.ListCandidates(ctx, run.ID)
		if err != nil {
			return false, fmt.Errorf("list candidates: %w", err)
		}
		for _, c := range cands {
			if c.Rank == 1 {
				candidateID = c.ID
				break
			}
		}
	}
	if candidateID == "" {
		log.Printf("[weekly.Lock] week %s has no candidates, nothing to lock", run.WeekOf)
		return false, nil
	}

	locked, err := s.repo.MarkLocked(ctx, run.ID, candidateID, now.UTC())
	if err != nil {
		return false, fmt.Errorf("mark locked: %w", err)
	}
	if locked {
		log.Printf("[weekly.Lock] week %s locked on candidate %s", run.WeekOf, candidateID)
	}
	return locked, nil
}

package weekly

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/ignite/weekly-campaign/internal/pkg/logger"
	"github.com/ignite/weekly-campaign/internal/schedule"
)

// Stage names as reported in TickResult.Actions.
const (
	StageGenerate = "generate"
	StageLock     = "lock"
	StageSend     = "send"
)

// StageError records a stage that failed during a tick.
type StageError struct {
	Stage string `json:"stage"`
	Error string `json:"error"`
}

// TickResult reports which stages advanced in one tick.
type TickResult struct {
	WeekOf  string       `json:"week_of"`
	Now     time.Time    `json:"now"`
	Actions []string     `json:"actions"`
	Errors  []StageError `json:"errors,omitempty"`
}

// Advanced reports whether stage is in Actions.
func (r *TickResult) Advanced(stage string) bool {
	for _, a := range r.Actions {
		if a == stage {
			return true
		}
	}
	return false
}

// Tick runs generate, lock and send in that order, each only if due at now.
// A failing stage is recorded in Errors and does not stop later stages. The
// returned error is set only when the run itself could not be loaded.
func (s *Service) Tick(ctx context.Context, now time.Time) (*TickResult, error) {
	loc := s.opts.Location
	weekOf := schedule.WeekOf(now, loc)
	res := &TickResult{WeekOf: weekOf, Now: now.UTC(), Actions: []string{}}

	run, err := s.Ensure(ctx, weekOf)
	if err != nil {
		return nil, fmt.Errorf("ensure run %s: %w", weekOf, err)
	}

	if schedule.IsDue(now, loc, s.opts.Schedule.Generate) {
		s.runStage(res, StageGenerate, func() (bool, error) {
			gr, err := s.Generate(ctx, run, now, GenerateOptions{})
			if err != nil {
				return false, err
			}
			return gr.Generated > 0, nil
		})
	}

	if schedule.IsDue(now, loc, s.opts.Schedule.Lock) {
		s.runStage(res, StageLock, func() (bool, error) {
			fresh, err := s.repo.GetRun(ctx, run.ID)
			if err != nil {
				return false, fmt.Errorf("reload run: %w", err)
			}
			return s.Lock(ctx, fresh, now)
		})
	}

	if schedule.IsDue(now, loc, s.opts.Schedule.Send) {
		s.runStage(res, StageSend, func() (bool, error) {
			fresh, err := s.repo.GetRun(ctx, run.ID)
			if err != nil {
				return false, fmt.Errorf("reload run: %w", err)
			}
			sr, err := s.Send(ctx, fresh, now)
			if err != nil {
				return false, err
			}
			return sr.Advanced, nil
		})
	}

	log.Printf("[weekly.Tick] week %s at %s: actions=%v errors=%d",
		weekOf, schedule.LocalISO(now, loc), res.Actions, len(res.Errors))
	return res, nil
}

// runStage executes one stage, turning errors and panics into StageErrors.
func (s *Service) runStage(res *TickResult, stage string, fn func() (bool, error)) {
	advanced, err := func() (ok bool, err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("panic: %v", r)
			}
		}()
		return fn()
	}()
	if err != nil {
		logger.With("week_of", res.WeekOf).Error("tick stage failed", "stage", stage, "error", err)
		res.Errors = append(res.Errors, StageError{Stage: stage, Error: err.Error()})
		return
	}
	if advanced {
		res.Actions = append(res.Actions, stage)
	}
}

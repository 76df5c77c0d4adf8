package weekly

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ignite/weekly-campaign/internal/domain"
)

// GenerateOptions controls a generation call.
type GenerateOptions struct {
	// Force wipes the run's candidates, sends and recipients and clears its
	// stage timestamps before regenerating.
	Force bool
}

// GenerateResult reports what a generation call did.
type GenerateResult struct {
	Generated int  `json:"generated"`
	Skipped   bool `json:"skipped"`
}

// Generate asks the content provider for the run's three candidates and
// persists them in one batch. Without Force, a run that already has
// candidates is left alone. A provider set that fails validation persists
// nothing.
func (s *Service) Generate(ctx context.Context, run *domain.WeeklyRun, now time.Time, opts GenerateOptions) (*GenerateResult, error) {
	existing, err := s.repo.ListCandidates(ctx, run.ID)
	if err != nil {
		return nil, fmt.Errorf("list candidates: %w", err)
	}
	if len(existing) > 0 && !opts.Force {
		return &GenerateResult{Skipped: true}, nil
	}

	if opts.Force {
		if err := s.repo.ResetRun(ctx, run.ID); err != nil {
			return nil, fmt.Errorf("reset run: %w", err)
		}
		log.Printf("[weekly.Generate] week %s reset for forced regeneration", run.WeekOf)
		if run, err = s.repo.GetRun(ctx, run.ID); err != nil {
			return nil, fmt.Errorf("reload run: %w", err)
		}
	}

	gc := domain.GenerationContext{
		WeekOf:      run.WeekOf,
		FocusNotes:  run.FocusNotes,
		Constraints: s.opts.Constraints,
	}

	pctx, cancel := withTimeout(ctx, s.opts.ContentTimeout)
	drafts, err := s.provider.GenerateCandidates(pctx, gc)
	cancel()
	if err != nil {
		return nil, fmt.Errorf("content provider: %w", err)
	}

	if err := ValidateDrafts(drafts); err != nil {
		return nil, err
	}

	candidates := make([]domain.Candidate, 0, len(drafts))
	for _, d := range drafts {
		candidates = append(candidates, domain.Candidate{
			ID:           uuid.New().String(),
			WeeklyRunID:  run.ID,
			Rank:         d.FunnelStage.Rank(),
			FunnelStage:  d.FunnelStage,
			Subject:      strings.TrimSpace(d.Subject),
			PreviewText:  strings.TrimSpace(d.Preview),
			BodyHTML:     d.BodyHTML,
			BodyText:     d.BodyText,
			BodyMarkdown: firstNonEmpty(d.BodyMarkdown, d.BodyText),
			CTA:          strings.TrimSpace(d.CTA),
			ImageURL:     d.ImageURL,
		})
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].Rank < candidates[j].Rank })

	inserted, err := s.repo.InsertCandidates(ctx, run.ID, candidates)
	if err != nil {
		return nil, fmt.Errorf("insert candidates: %w", err)
	}
	if !inserted {
		// A concurrent generation got there first; its set stands.
		log.Printf("[weekly.Generate] week %s already has candidates, skipping", run.WeekOf)
		return &GenerateResult{Skipped: true}, nil
	}

	if err := s.repo.MarkGenerated(ctx, run.ID, now.UTC()); err != nil {
		return nil, fmt.Errorf("mark generated: %w", err)
	}

	log.Printf("[weekly.Generate] week %s: generated %d candidates", run.WeekOf, len(candidates))
	return &GenerateResult{Generated: len(candidates)}, nil
}

// ValidateDrafts requires exactly three drafts, one per funnel stage, each
// with a subject and a body.
func ValidateDrafts(drafts []domain.CandidateDraft) error {
	if len(drafts) != len(domain.FunnelStages) {
		return fmt.Errorf("%w: expected %d candidates, got %d", ErrInvalidCandidates, len(domain.FunnelStages), len(drafts))
	}
	seen := make(map[domain.FunnelStage]bool, len(drafts))
	for i, d := range drafts {
		if !d.FunnelStage.Valid() {
			return fmt.Errorf("%w: candidate %d has funnel_stage %q", ErrInvalidCandidates, i+1, d.FunnelStage)
		}
		if seen[d.FunnelStage] {
			return fmt.Errorf("%w: duplicate funnel_stage %q", ErrInvalidCandidates, d.FunnelStage)
		}
		seen[d.FunnelStage] = true
		if strings.TrimSpace(d.Subject) == "" {
			return fmt.Errorf("%w: candidate %d subject is required", ErrInvalidCandidates, i+1)
		}
		if strings.TrimSpace(d.BodyHTML) == "" && strings.TrimSpace(d.BodyText) == "" {
			return fmt.Errorf("%w: candidate %d body is required", ErrInvalidCandidates, i+1)
		}
	}
	return nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

// Package postgres implements weekly.Repository on PostgreSQL. Idempotency
// comes from the schema's unique constraints: inserts use ON CONFLICT DO
// NOTHING and stage transitions are conditional updates whose affected row
// count says who won.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/ignite/weekly-campaign/internal/domain"
	"github.com/ignite/weekly-campaign/internal/service/weekly"
)

// WeeklyRepo implements weekly.Repository against PostgreSQL.
type WeeklyRepo struct{ db *sql.DB }

var _ weekly.Repository = (*WeeklyRepo)(nil)

// NewWeeklyRepo creates a Postgres-backed weekly repository.
func NewWeeklyRepo(db *sql.DB) *WeeklyRepo { return &WeeklyRepo{db: db} }

// Ping checks the connection.
func (r *WeeklyRepo) Ping(ctx context.Context) error { return r.db.PingContext(ctx) }

const runColumns = `id, week_of, status, generated_at, locked_at, sent_at,
	selected_candidate_id, focus_notes, created_at, updated_at`

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanRun(s scanner) (*domain.WeeklyRun, error) {
	var (
		run                     domain.WeeklyRun
		generated, locked, sent sql.NullTime
		selected                sql.NullString
	)
	if err := s.Scan(&run.ID, &run.WeekOf, &run.Status, &generated, &locked, &sent,
		&selected, &run.FocusNotes, &run.CreatedAt, &run.UpdatedAt); err != nil {
		return nil, err
	}
	run.GeneratedAt = timePtr(generated)
	run.LockedAt = timePtr(locked)
	run.SentAt = timePtr(sent)
	run.SelectedCandidateID = stringPtr(selected)
	return &run, nil
}

func (r *WeeklyRepo) InsertRunIfAbsent(ctx context.Context, run *domain.WeeklyRun) error {
	status := run.Status
	if status == "" {
		status = domain.RunPending
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO weekly_runs (id, week_of, status, focus_notes, created_at, updated_at)
		VALUES ($1, $2, $3, $4, NOW(), NOW())
		ON CONFLICT (week_of) DO NOTHING
	`, run.ID, run.WeekOf, status, run.FocusNotes)
	if err != nil {
		return fmt.Errorf("insert weekly run: %w", err)
	}
	return nil
}

func (r *WeeklyRepo) GetRunByWeek(ctx context.Context, weekOf string) (*domain.WeeklyRun, error) {
	run, err := scanRun(r.db.QueryRowContext(ctx,
		`SELECT `+runColumns+` FROM weekly_runs WHERE week_of = $1`, weekOf))
	if err == sql.ErrNoRows {
		return nil, weekly.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get weekly run by week: %w", err)
	}
	return run, nil
}

func (r *WeeklyRepo) GetRun(ctx context.Context, id string) (*domain.WeeklyRun, error) {
	run, err := scanRun(r.db.QueryRowContext(ctx,
		`SELECT `+runColumns+` FROM weekly_runs WHERE id = $1`, id))
	if err == sql.ErrNoRows {
		return nil, weekly.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get weekly run: %w", err)
	}
	return run, nil
}

func (r *WeeklyRepo) ListRuns(ctx context.Context, limit int) ([]domain.WeeklyRun, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+runColumns+` FROM weekly_runs ORDER BY week_of DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list weekly runs: %w", err)
	}
	defer rows.Close()

	var out []domain.WeeklyRun
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan weekly run: %w", err)
		}
		out = append(out, *run)
	}
	return out, rows.Err()
}

func (r *WeeklyRepo) MarkGenerated(ctx context.Context, runID string, at time.Time) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE weekly_runs
		SET generated_at = COALESCE(generated_at, $2),
		    status = CASE WHEN status = 'pending' THEN 'generated' ELSE status END,
		    updated_at = NOW()
		WHERE id = $1
	`, runID, at)
	if err != nil {
		return fmt.Errorf("mark generated: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return weekly.ErrNotFound
	}
	return nil
}

func (r *WeeklyRepo) MarkLocked(ctx context.Context, runID, candidateID string, at time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE weekly_runs
		SET locked_at = $3,
		    selected_candidate_id = $2,
		    status = CASE WHEN status IN ('pending', 'generated') THEN 'locked' ELSE status END,
		    updated_at = NOW()
		WHERE id = $1 AND locked_at IS NULL
	`, runID, candidateID, at)
	if err != nil {
		return false, fmt.Errorf("mark locked: %w", err)
	}
	n, _ := res.RowsAffected()
	return n == 1, nil
}

func (r *WeeklyRepo) MarkSent(ctx context.Context, runID string, at time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE weekly_runs
		SET sent_at = $2, status = 'sent', updated_at = NOW()
		WHERE id = $1 AND sent_at IS NULL
	`, runID, at)
	if err != nil {
		return false, fmt.Errorf("mark sent: %w", err)
	}
	n, _ := res.RowsAffected()
	return n == 1, nil
}

func (r *WeeklyRepo) SetSelection(ctx context.Context, runID, candidateID, focusNotes string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE weekly_runs
		SET selected_candidate_id = $2, focus_notes = $3, updated_at = NOW()
		WHERE id = $1 AND locked_at IS NULL
	`, runID, candidateID, focusNotes)
	if err != nil {
		return false, fmt.Errorf("set selection: %w", err)
	}
	n, _ := res.RowsAffected()
	return n == 1, nil
}

func (r *WeeklyRepo) ResetRun(ctx context.Context, runID string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("reset run: begin: %w", err)
	}
	defer tx.Rollback()

	steps := []struct {
		name string
		q    string
	}{
		{"delete recipients", `DELETE FROM send_recipients WHERE send_id IN (SELECT id FROM sends WHERE weekly_run_id = $1)`},
		{"delete sends", `DELETE FROM sends WHERE weekly_run_id = $1`},
		{"delete candidates", `DELETE FROM candidates WHERE weekly_run_id = $1`},
	}
	for _, s := range steps {
		if _, err := tx.ExecContext(ctx, s.q, runID); err != nil {
			return fmt.Errorf("reset run: %s: %w", s.name, err)
		}
	}

	res, err := tx.ExecContext(ctx, `
		UPDATE weekly_runs
		SET status = 'pending', generated_at = NULL, locked_at = NULL, sent_at = NULL,
		    selected_candidate_id = NULL, updated_at = NOW()
		WHERE id = $1
	`, runID)
	if err != nil {
		return fmt.Errorf("reset run: clear run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return weekly.ErrNotFound
	}
	return tx.Commit()
}

const candidateColumns = `id, weekly_run_id, rank, funnel_stage, subject, preview_text,
	body_html, body_text, body_markdown, cta, image_url, created_at`

func scanCandidate(s scanner) (*domain.Candidate, error) {
	var (
		c     domain.Candidate
		image sql.NullString
	)
	if err := s.Scan(&c.ID, &c.WeeklyRunID, &c.Rank, &c.FunnelStage, &c.Subject, &c.PreviewText,
		&c.BodyHTML, &c.BodyText, &c.BodyMarkdown, &c.CTA, &image, &c.CreatedAt); err != nil {
		return nil, err
	}
	c.ImageURL = stringPtr(image)
	return &c, nil
}

func (r *WeeklyRepo) ListCandidates(ctx context.Context, runID string) ([]domain.Candidate, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+candidateColumns+` FROM candidates WHERE weekly_run_id = $1 ORDER BY rank ASC`, runID)
	if err != nil {
		return nil, fmt.Errorf("list candidates: %w", err)
	}
	defer rows.Close()

	var out []domain.Candidate
	for rows.Next() {
		c, err := scanCandidate(rows)
		if err != nil {
			return nil, fmt.Errorf("scan candidate: %w", err)
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

func (r *WeeklyRepo) GetCandidate(ctx context.Context, id string) (*domain.Candidate, error) {
	c, err := scanCandidate(r.db.QueryRowContext(ctx,
		`SELECT `+candidateColumns+` FROM candidates WHERE id = $1`, id))
	if err == sql.ErrNoRows {
		return nil, weekly.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get candidate: %w", err)
	}
	return c, nil
}

// InsertCandidates writes the set in one transaction. The first conflicting
// row rolls the whole batch back.
func (r *WeeklyRepo) InsertCandidates(ctx context.Context, runID string, candidates []domain.Candidate) (bool, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("insert candidates: begin: %w", err)
	}
	defer tx.Rollback()

	for _, c := range candidates {
		res, err := tx.ExecContext(ctx, `
			INSERT INTO candidates
				(id, weekly_run_id, rank, funnel_stage, subject, preview_text,
				 body_html, body_text, body_markdown, cta, image_url, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, NOW())
			ON CONFLICT DO NOTHING
		`, c.ID, runID, c.Rank, c.FunnelStage, c.Subject, c.PreviewText,
			c.BodyHTML, c.BodyText, c.BodyMarkdown, c.CTA, nullString(c.ImageURL))
		if err != nil {
			if isForeignKeyViolation(err) {
				return false, weekly.ErrNotFound
			}
			return false, fmt.Errorf("insert candidate: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return false, nil
		}
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("insert candidates: commit: %w", err)
	}
	return true, nil
}

func isForeignKeyViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23503"
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

func stringPtr(s sql.NullString) *string {
	if !s.Valid {
		return nil
	}
	v := s.String
	return &v
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

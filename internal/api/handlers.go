package api

import (
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ignite/weekly-campaign/internal/pkg/httputil"
	"github.com/ignite/weekly-campaign/internal/schedule"
	"github.com/ignite/weekly-campaign/internal/service/weekly"
)

// TickResponse is the body of POST /jobs/tick.
type TickResponse struct {
	Status   string              `json:"status"`
	Now      string              `json:"now"`
	NowLocal string              `json:"now_local"`
	TZ       string              `json:"tz"`
	WeekOf   string              `json:"week_of"`
	Actions  []string            `json:"actions"`
	Errors   []weekly.StageError `json:"errors,omitempty"`
	Config   ScheduleView        `json:"config"`
}

// ScheduleView is the timezone plus the three triggers.
type ScheduleView struct {
	Timezone string           `json:"timezone"`
	Generate schedule.Trigger `json:"generate"`
	Lock     schedule.Trigger `json:"lock"`
	Send     schedule.Trigger `json:"send"`
}

func (s *Server) scheduleView() ScheduleView {
	sched := s.svc.Schedule()
	return ScheduleView{
		Timezone: s.svc.Location().String(),
		Generate: sched.Generate,
		Lock:     sched.Lock,
		Send:     sched.Send,
	}
}

// handleJobs lists the job endpoints and recent runs.
//
//	GET /jobs
func (s *Server) handleJobs(w http.ResponseWriter, r *http.Request) {
	runs, err := s.svc.Runs(r.Context(), 10)
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, map[string]interface{}{
		"status":    "ok",
		"endpoints": []string{"POST /jobs/tick"},
		"config":    s.scheduleView(),
		"runs":      runs,
	})
}

// handleTick advances whatever stages are due now. In dev, ?now= overrides
// the clock; elsewhere the parameter is ignored.
//
//	POST /jobs/tick
func (s *Server) handleTick(w http.ResponseWriter, r *http.Request) {
	now, err := s.requestNow(r)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}

	res, err := s.svc.Tick(r.Context(), now)
	if err != nil {
		httputil.InternalError(w, err)
		return
	}

	loc := s.svc.Location()
	httputil.OK(w, TickResponse{
		Status:   "ok",
		Now:      now.UTC().Format(time.RFC3339),
		NowLocal: schedule.LocalISO(now, loc),
		TZ:       loc.String(),
		WeekOf:   res.WeekOf,
		Actions:  res.Actions,
		Errors:   res.Errors,
		Config:   s.scheduleView(),
	})
}

// requestNow returns the clock time, or the dev-only ?now= override. The
// override accepts RFC 3339 or a local "YYYY-MM-DDTHH:MM[:SS]" read in the
// configured timezone.
func (s *Server) requestNow(r *http.Request) (time.Time, error) {
	raw := strings.TrimSpace(r.URL.Query().Get("now"))
	if raw == "" {
		return s.now(), nil
	}
	if !s.cfg.IsDev() {
		log.Printf("[api] ignoring now override outside dev")
		return s.now(), nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	for _, layout := range []string{"2006-01-02T15:04:05", "2006-01-02T15:04"} {
		if t, err := time.ParseInLocation(layout, raw, s.svc.Location()); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid now override %q; expected ISO date-time", raw)
}

// weekParam returns ?week_of=, defaulting to the current week.
func (s *Server) weekParam(r *http.Request) string {
	if w := strings.TrimSpace(r.URL.Query().Get("week_of")); w != "" {
		return w
	}
	return s.svc.WeekOf(s.now())
}

// handleConfig returns the active schedule.
//
//	GET /admin/config
func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	httputil.OK(w, map[string]interface{}{
		"status":   "ok",
		"settings": s.scheduleView(),
	})
}

// handleWeekly returns the run, its candidates and the selection.
//
//	GET /admin/weekly?week_of=YYYY-MM-DD
func (s *Server) handleWeekly(w http.ResponseWriter, r *http.Request) {
	snap, err := s.svc.Weekly(r.Context(), s.weekParam(r))
	if err != nil {
		s.writeError(w, err)
		return
	}
	httputil.OK(w, map[string]interface{}{
		"status":     "ok",
		"week_of":    snap.WeekOf,
		"weekly_run": snap.Run,
		"candidates": snap.Candidates,
		"selected":   snap.Selected,
	})
}

//	GET /admin/candidates?week_of=YYYY-MM-DD
func (s *Server) handleCandidates(w http.ResponseWriter, r *http.Request) {
	weekOf := s.weekParam(r)
	cands, err := s.svc.Candidates(r.Context(), weekOf)
	if err != nil {
		s.writeError(w, err)
		return
	}
	httputil.OK(w, map[string]interface{}{
		"status":     "ok",
		"week_of":    weekOf,
		"candidates": cands,
	})
}

// handleGenerate generates candidates for a week outside the schedule.
//
//	POST /admin/candidates/generate?week_of=YYYY-MM-DD&force=1
func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	run, err := s.svc.Ensure(ctx, s.weekParam(r))
	if err != nil {
		s.writeError(w, err)
		return
	}
	res, err := s.svc.Generate(ctx, run, s.now(), weekly.GenerateOptions{Force: httputil.QueryBool(r, "force")})
	if err != nil {
		s.writeError(w, err)
		return
	}
	cands, err := s.svc.Candidates(ctx, run.WeekOf)
	if err != nil {
		s.writeError(w, err)
		return
	}
	httputil.OK(w, map[string]interface{}{
		"status":     "ok",
		"week_of":    run.WeekOf,
		"generated":  res.Generated,
		"skipped":    res.Skipped,
		"candidates": cands,
	})
}

type selectRequest struct {
	WeekOf string `json:"week_of"`
	Rank   int    `json:"rank"`
	Notes  string `json:"notes"`
}

// handleSelect records a manual candidate choice before the lock.
//
//	POST /admin/candidates/select {"week_of":"YYYY-MM-DD","rank":2,"notes":"..."}
func (s *Server) handleSelect(w http.ResponseWriter, r *http.Request) {
	var req selectRequest
	if !httputil.Decode(w, r, &req) {
		return
	}
	if req.WeekOf == "" {
		req.WeekOf = s.svc.WeekOf(s.now())
	}
	snap, err := s.svc.SelectCandidate(r.Context(), req.WeekOf, req.Rank, req.Notes)
	if err != nil {
		s.writeError(w, err)
		return
	}
	httputil.OK(w, map[string]interface{}{
		"status":     "ok",
		"week_of":    snap.WeekOf,
		"weekly_run": snap.Run,
		"selected":   snap.Selected,
	})
}

//	GET /admin/sends?weekly_run_id=...
func (s *Server) handleSends(w http.ResponseWriter, r *http.Request) {
	runID := strings.TrimSpace(r.URL.Query().Get("weekly_run_id"))
	if runID == "" {
		httputil.BadRequest(w, "weekly_run_id is required")
		return
	}
	sends, err := s.svc.Sends(r.Context(), runID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	httputil.OK(w, map[string]interface{}{
		"status": "ok",
		"sends":  sends,
	})
}

//	GET /admin/sends/{sendID}/recipients
func (s *Server) handleRecipients(w http.ResponseWriter, r *http.Request) {
	rep, err := s.svc.Recipients(r.Context(), chi.URLParam(r, "sendID"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	httputil.OK(w, map[string]interface{}{
		"status":     "ok",
		"send":       rep.Send,
		"counts":     rep.Counts,
		"recipients": rep.Recipients,
	})
}

// handleDevPing reports the local clock and week key.
//
//	GET /dev/ping
func (s *Server) handleDevPing(w http.ResponseWriter, r *http.Request) {
	now, err := s.requestNow(r)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	loc := s.svc.Location()
	dow, hhmm := schedule.LocalParts(now, loc)
	httputil.OK(w, map[string]interface{}{
		"status":    "ok",
		"now":       now.UTC().Format(time.RFC3339),
		"now_local": schedule.LocalISO(now, loc),
		"dow":       dow,
		"time":      hhmm,
		"week_of":   schedule.WeekOf(now, loc),
	})
}

// handleDevRun runs generate, lock and send back to back.
//
//	POST /dev/run?week_of=YYYY-MM-DD&force=1&reset=1
func (s *Server) handleDevRun(w http.ResponseWriter, r *http.Request) {
	now, err := s.requestNow(r)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	weekOf := strings.TrimSpace(r.URL.Query().Get("week_of"))
	if weekOf == "" {
		weekOf = s.svc.WeekOf(now)
	}
	res, err := s.svc.RunPipeline(r.Context(), weekOf, now, weekly.PipelineOptions{
		Force: httputil.QueryBool(r, "force"),
		Reset: httputil.QueryBool(r, "reset"),
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	httputil.OK(w, map[string]interface{}{
		"status": "ok",
		"result": res,
	})
}

// writeError maps service errors to HTTP status codes.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, weekly.ErrInvalidWeekOf),
		errors.Is(err, weekly.ErrInvalidRank),
		errors.Is(err, weekly.ErrInvalidCandidates):
		httputil.BadRequest(w, err.Error())
	case errors.Is(err, weekly.ErrNotFound),
		errors.Is(err, weekly.ErrCandidateNotFound):
		httputil.NotFound(w, err.Error())
	case errors.Is(err, weekly.ErrAlreadyLocked):
		httputil.Conflict(w, err.Error())
	default:
		httputil.InternalError(w, err)
	}
}

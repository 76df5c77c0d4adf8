// Package memory is an in-process weekly.Repository. It enforces the same
// uniqueness rules as the Postgres schema and is used by tests and by dev
// mode when no DATABASE_URL is configured.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/ignite/weekly-campaign/internal/domain"
	"github.com/ignite/weekly-campaign/internal/service/weekly"
)

// Store is safe for concurrent use. Values are copied on the way in and out.
type Store struct {
	mu         sync.Mutex
	now        func() time.Time
	runs       map[string]*domain.WeeklyRun // keyed by id
	runByWeek  map[string]string            // week_of -> run id
	candidates map[string]*domain.Candidate // keyed by id
	sends      map[string]*domain.Send      // keyed by id
	recipients map[string]*domain.SendRecipient
	contacts   map[string]domain.Contact
}

var _ weekly.Repository = (*Store)(nil)

// New returns an empty store.
func New() *Store {
	return &Store{
		now:        time.Now,
		runs:       make(map[string]*domain.WeeklyRun),
		runByWeek:  make(map[string]string),
		candidates: make(map[string]*domain.Candidate),
		sends:      make(map[string]*domain.Send),
		recipients: make(map[string]*domain.SendRecipient),
		contacts:   make(map[string]domain.Contact),
	}
}

// PutContact inserts or replaces a contact.
func (s *Store) PutContact(c domain.Contact) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c.Status == "" {
		c.Status = domain.ContactActive
	}
	s.contacts[c.ID] = c
}

// Ping always succeeds.
func (s *Store) Ping(context.Context) error { return nil }

func (s *Store) InsertRunIfAbsent(_ context.Context, run *domain.WeeklyRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.runByWeek[run.WeekOf]; ok {
		return nil
	}
	cp := *run
	ts := s.now().UTC()
	cp.CreatedAt, cp.UpdatedAt = ts, ts
	if cp.Status == "" {
		cp.Status = domain.RunPending
	}
	s.runs[cp.ID] = &cp
	s.runByWeek[cp.WeekOf] = cp.ID
	return nil
}

func (s *Store) GetRunByWeek(_ context.Context, weekOf string) (*domain.WeeklyRun, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.runByWeek[weekOf]
	if !ok {
		return nil, weekly.ErrNotFound
	}
	cp := *s.runs[id]
	return &cp, nil
}

func (s *Store) GetRun(_ context.Context, id string) (*domain.WeeklyRun, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.runs[id]
	if !ok {
		return nil, weekly.ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (s *Store) ListRuns(_ context.Context, limit int) ([]domain.WeeklyRun, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.WeeklyRun, 0, len(s.runs))
	for _, r := range s.runs {
		out = append(out, *r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].WeekOf > out[j].WeekOf })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) MarkGenerated(_ context.Context, runID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.runs[runID]
	if !ok {
		return weekly.ErrNotFound
	}
	if r.GeneratedAt == nil {
		t := at
		r.GeneratedAt = &t
	}
	if r.Status == domain.RunPending {
		r.Status = domain.RunGenerated
	}
	r.UpdatedAt = s.now().UTC()
	return nil
}

func (s *Store) MarkLocked(_ context.Context, runID, candidateID string, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.runs[runID]
	if !ok {
		return false, weekly.ErrNotFound
	}
	if r.LockedAt != nil {
		return false, nil
	}
	t := at
	id := candidateID
	r.LockedAt = &t
	r.SelectedCandidateID = &id
	if r.Status.Before(domain.RunLocked) {
		r.Status = domain.RunLocked
	}
	r.UpdatedAt = s.now().UTC()
	return true, nil
}

func (s *Store) MarkSent(_ context.Context, runID string, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.runs[runID]
	if !ok {
		return false, weekly.ErrNotFound
	}
	if r.SentAt != nil {
		return false, nil
	}
	t := at
	r.SentAt = &t
	r.Status = domain.RunSent
	r.UpdatedAt = s.now().UTC()
	return true, nil
}

func (s *Store) SetSelection(_ context.Context, runID, candidateID, focusNotes string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.runs[runID]
	if !ok {
		return false, weekly.ErrNotFound
	}
	if r.LockedAt != nil {
		return false, nil
	}
	id := candidateID
	r.SelectedCandidateID = &id
	r.FocusNotes = focusNotes
	r.UpdatedAt = s.now().UTC()
	return true, nil
}

func (s *Store) ResetRun(_ context.Context, runID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.runs[runID]
	if !ok {
		return weekly.ErrNotFound
	}
	for sid, snap := range s.sends {
		if snap.WeeklyRunID != runID {
			continue
		}
		for key, rec := range s.recipients {
			if rec.SendID == sid {
				delete(s.recipients, key)
			}
		}
		delete(s.sends, sid)
	}
	for cid, c := range s.candidates {
		if c.WeeklyRunID == runID {
			delete(s.candidates, cid)
		}
	}
	r.Status = domain.RunPending
	r.GeneratedAt, r.LockedAt, r.SentAt = nil, nil, nil
	r.SelectedCandidateID = nil
	r.UpdatedAt = s.now().UTC()
	return nil
}

func (s *Store) ListCandidates(_ context.Context, runID string) ([]domain.Candidate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Candidate
	for _, c := range s.candidates {
		if c.WeeklyRunID == runID {
			out = append(out, *c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Rank < out[j].Rank })
	return out, nil
}

func (s *Store) GetCandidate(_ context.Context, id string) (*domain.Candidate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.candidates[id]
	if !ok {
		return nil, weekly.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (s *Store) InsertCandidates(_ context.Context, runID string, candidates []domain.Candidate) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.runs[runID]; !ok {
		return false, weekly.ErrNotFound
	}
	stages := make(map[domain.FunnelStage]bool)
	ranks := make(map[int]bool)
	for _, c := range s.candidates {
		if c.WeeklyRunID == runID {
			stages[c.FunnelStage] = true
			ranks[c.Rank] = true
		}
	}
	for _, c := range candidates {
		if stages[c.FunnelStage] || ranks[c.Rank] {
			return false, nil
		}
		stages[c.FunnelStage] = true
		ranks[c.Rank] = true
	}
	ts := s.now().UTC()
	for _, c := range candidates {
		cp := c
		cp.WeeklyRunID = runID
		cp.CreatedAt = ts
		s.candidates[cp.ID] = &cp
	}
	return true, nil
}

func (s *Store) InsertSendIfAbsent(_ context.Context, snap *domain.Send) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.sends {
		if existing.WeeklyRunID == snap.WeeklyRunID && existing.CandidateID == snap.CandidateID {
			return false, nil
		}
	}
	cp := *snap
	cp.CreatedAt = s.now().UTC()
	s.sends[cp.ID] = &cp
	return true, nil
}

func (s *Store) GetSendByCandidate(_ context.Context, runID, candidateID string) (*domain.Send, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, snap := range s.sends {
		if snap.WeeklyRunID == runID && snap.CandidateID == candidateID {
			cp := *snap
			return &cp, nil
		}
	}
	return nil, weekly.ErrNotFound
}

func (s *Store) GetSend(_ context.Context, id string) (*domain.Send, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap, ok := s.sends[id]
	if !ok {
		return nil, weekly.ErrNotFound
	}
	cp := *snap
	return &cp, nil
}

func (s *Store) ListSends(_ context.Context, runID string) ([]domain.Send, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Send
	for _, snap := range s.sends {
		if snap.WeeklyRunID == runID {
			out = append(out, *snap)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func recipientKey(sendID, contactID string) string { return sendID + "\x00" + contactID }

func (s *Store) GetRecipient(_ context.Context, sendID, contactID string) (*domain.SendRecipient, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.recipients[recipientKey(sendID, contactID)]
	if !ok {
		return nil, weekly.ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (s *Store) ClaimRecipient(_ context.Context, r *domain.SendRecipient, lease time.Duration) (*domain.SendRecipient, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := recipientKey(r.SendID, r.ContactID)
	ts := s.now().UTC()
	existing, ok := s.recipients[key]
	if !ok {
		cp := domain.SendRecipient{
			ID:        r.ID,
			SendID:    r.SendID,
			ContactID: r.ContactID,
			Email:     r.Email,
			Status:    domain.RecipientPending,
			Attempts:  1,
			CreatedAt: ts,
			UpdatedAt: ts,
		}
		s.recipients[key] = &cp
		out := cp
		return &out, true, nil
	}
	switch {
	case existing.Status == domain.RecipientFailed:
	case existing.Status == domain.RecipientPending && existing.UpdatedAt.Before(ts.Add(-lease)):
	default:
		return nil, false, nil
	}
	existing.Email = r.Email
	existing.Status = domain.RecipientPending
	existing.Error = ""
	existing.Attempts++
	existing.UpdatedAt = ts
	out := *existing
	return &out, true, nil
}

func (s *Store) UpsertRecipient(_ context.Context, r *domain.SendRecipient) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := recipientKey(r.SendID, r.ContactID)
	ts := s.now().UTC()
	existing, ok := s.recipients[key]
	if !ok {
		cp := *r
		cp.CreatedAt, cp.UpdatedAt = ts, ts
		s.recipients[key] = &cp
		return nil
	}
	if existing.Status == domain.RecipientSent {
		return nil
	}
	id, created := existing.ID, existing.CreatedAt
	*existing = *r
	existing.ID, existing.CreatedAt, existing.UpdatedAt = id, created, ts
	return nil
}

func (s *Store) ListRecipients(_ context.Context, sendID string) ([]domain.SendRecipient, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.SendRecipient
	for _, r := range s.recipients {
		if r.SendID == sendID {
			out = append(out, *r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ContactID < out[j].ContactID })
	return out, nil
}

func (s *Store) ListActiveContacts(_ context.Context) ([]domain.Contact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Contact
	for _, c := range s.contacts {
		if c.Status == domain.ContactActive {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.LastName != b.LastName {
			return a.LastName < b.LastName
		}
		if a.FirstName != b.FirstName {
			return a.FirstName < b.FirstName
		}
		return a.Email < b.Email
	})
	return out, nil
}

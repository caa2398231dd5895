package store

import (
	"sort"
	"sync"
	"time"

	"github.com/jmorrell2146/applyflow/internal/model"
)

// Ensure MemoryStore implements model.RecordStore.
var _ model.RecordStore = (*MemoryStore)(nil)

// MemoryStore is a map-backed RecordStore with the same transition
// semantics as the SQLite store. Used in dry-run mode and as a test
// double; nothing survives process exit.
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]*model.JobRecord
	audit   []model.TransitionEntry
	notices map[noticeKey]bool
}

type noticeKey struct {
	kind  string
	ident string
	at    int64 // unix nanos
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[string]*model.JobRecord),
		notices: make(map[noticeKey]bool),
	}
}

func (s *MemoryStore) Insert(rec *model.JobRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[rec.IdentityKey]; ok {
		return &model.IntegrityError{IdentityKey: rec.IdentityKey, Reason: "duplicate identity key insert"}
	}
	cp := *rec
	s.records[rec.IdentityKey] = &cp
	s.audit = append(s.audit, model.TransitionEntry{
		IdentityKey: rec.IdentityKey, To: rec.State, At: time.Now().UTC(), Cause: "ingested",
	})
	return nil
}

func (s *MemoryStore) Get(identityKey string) (*model.JobRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[identityKey]
	if !ok {
		return nil, model.ErrNotFound
	}
	cp := *rec
	return &cp, nil
}

func (s *MemoryStore) List(state model.State) ([]*model.JobRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var recs []*model.JobRecord
	for _, rec := range s.records {
		if rec.State == state {
			cp := *rec
			recs = append(recs, &cp)
		}
	}
	sort.Slice(recs, func(i, j int) bool {
		return recs[i].DiscoveredAt.After(recs[j].DiscoveredAt)
	})
	return recs, nil
}

func (s *MemoryStore) Counts() (map[model.State]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	counts := make(map[model.State]int)
	for _, rec := range s.records {
		counts[rec.State]++
	}
	return counts, nil
}

func (s *MemoryStore) UpdateAttributes(rec *model.JobRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.records[rec.IdentityKey]
	if !ok || !model.PreTerminal(cur.State) {
		return &model.IntegrityError{IdentityKey: rec.IdentityKey, Reason: "attribute refresh on missing or post-review record"}
	}
	cur.Company = rec.Company
	cur.Title = rec.Title
	cur.Location = rec.Location
	cur.Remote = rec.Remote
	cur.SalaryMin = rec.SalaryMin
	cur.SalaryMax = rec.SalaryMax
	cur.URL = rec.URL
	cur.Description = rec.Description
	cur.RelevanceScore = rec.RelevanceScore
	if rec.RecipientEmail != "" {
		if rec.RecipientEmail != cur.RecipientEmail {
			cur.EmailVerified = false
		}
		cur.RecipientEmail = rec.RecipientEmail
	}
	return nil
}

func (s *MemoryStore) SetRecipient(identityKey, email string, verified bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[identityKey]
	if !ok {
		return &model.IntegrityError{IdentityKey: identityKey, Reason: "recipient update on unknown key"}
	}
	rec.RecipientEmail = email
	rec.EmailVerified = verified
	return nil
}

// transitionLocked performs the CAS; the caller must hold mu.
func (s *MemoryStore) transitionLocked(identityKey string, from, to model.State, cause string) (*model.JobRecord, error) {
	rec, ok := s.records[identityKey]
	if !ok {
		return nil, &model.IntegrityError{IdentityKey: identityKey, Reason: "transition on unknown key"}
	}
	if rec.State != from || !model.CanTransition(from, to) {
		return nil, &model.InvalidTransitionError{IdentityKey: identityKey, From: rec.State, To: to}
	}
	rec.State = to
	s.audit = append(s.audit, model.TransitionEntry{
		IdentityKey: identityKey, From: from, To: to, At: time.Now().UTC(), Cause: cause,
	})
	return rec, nil
}

func (s *MemoryStore) Transition(identityKey string, from, to model.State, cause string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.transitionLocked(identityKey, from, to, cause)
	return err
}

func (s *MemoryStore) MarkSent(identityKey string, at time.Time, method, variant string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, err := s.transitionLocked(identityKey, model.StateApproved, model.StateSent, "dispatch succeeded")
	if err != nil {
		return err
	}
	t := at
	rec.SentAt = &t
	rec.Method = method
	rec.ResumeVariant = variant
	rec.SendError = ""
	return nil
}

func (s *MemoryStore) MarkSendFailed(identityKey, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, err := s.transitionLocked(identityKey, model.StateApproved, model.StateSendFailed, "dispatch failed")
	if err != nil {
		return err
	}
	rec.SendError = reason
	return nil
}

func (s *MemoryStore) MarkBounced(identityKey string, reason model.BounceReason, cause string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.records[identityKey]
	if !ok {
		return false, &model.IntegrityError{IdentityKey: identityKey, Reason: "bounce on unknown key"}
	}
	cleared := cur.ResponseType != model.ResponseNone
	rec, err := s.transitionLocked(identityKey, cur.State, model.StateBounced, cause)
	if err != nil {
		return false, err
	}
	rec.BounceReason = reason
	rec.ResponseType = model.ResponseNone
	rec.ResponseAt = nil
	return cleared, nil
}

func (s *MemoryStore) AttachResponse(identityKey string, rt model.ResponseType, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, err := s.transitionLocked(identityKey, model.StateSent, model.StateResponded, "reply classified "+string(rt))
	if err != nil {
		return err
	}
	t := at
	rec.ResponseType = rt
	rec.ResponseAt = &t
	return nil
}

func (s *MemoryStore) PromoteResponse(identityKey string, to model.State, rt model.ResponseType, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, err := s.transitionLocked(identityKey, model.StateResponded, to, "response escalated to "+string(rt))
	if err != nil {
		return err
	}
	t := at
	rec.ResponseType = rt
	rec.ResponseAt = &t
	return nil
}

func (s *MemoryStore) RecordFollowUp(identityKey string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[identityKey]
	if !ok || rec.State != model.StateSent {
		return &model.IntegrityError{IdentityKey: identityKey, Reason: "follow-up on record not in sent state"}
	}
	t := at
	rec.FollowUpCount++
	rec.LastFollowUpAt = &t
	return nil
}

func (s *MemoryStore) DueFollowUps(minAge time.Duration, maxFollowUps int) ([]*model.JobRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cutoff := time.Now().Add(-minAge)
	var due []*model.JobRecord
	for _, rec := range s.records {
		if rec.State != model.StateSent || rec.ResponseType != model.ResponseNone {
			continue
		}
		if rec.SentAt == nil || rec.SentAt.After(cutoff) {
			continue
		}
		if rec.FollowUpCount >= maxFollowUps {
			continue
		}
		cp := *rec
		due = append(due, &cp)
	}
	sort.Slice(due, func(i, j int) bool {
		return due[i].SentAt.Before(*due[j].SentAt)
	})
	return due, nil
}

func (s *MemoryStore) FindSentByRecipient(email string) (*model.JobRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var best *model.JobRecord
	for _, rec := range s.records {
		switch rec.State {
		case model.StateSent, model.StateResponded, model.StateInterview:
		default:
			continue
		}
		if rec.RecipientEmail != email || rec.SentAt == nil {
			continue
		}
		if best == nil || rec.SentAt.After(*best.SentAt) {
			best = rec
		}
	}
	if best == nil {
		return nil, nil
	}
	cp := *best
	return &cp, nil
}

func (s *MemoryStore) SeenNotice(kind, ident string, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.notices[noticeKey{kind, ident, at.UTC().UnixNano()}], nil
}

func (s *MemoryStore) MarkNotice(kind, ident string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notices[noticeKey{kind, ident, at.UTC().UnixNano()}] = true
	return nil
}

func (s *MemoryStore) AuditTrail(identityKey string, limit int) ([]model.TransitionEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var entries []model.TransitionEntry
	for i := len(s.audit) - 1; i >= 0 && len(entries) < limit; i-- {
		if identityKey == "" || s.audit[i].IdentityKey == identityKey {
			entries = append(entries, s.audit[i])
		}
	}
	return entries, nil
}

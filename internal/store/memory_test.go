package store

import (
	"errors"
	"testing"
	"time"

	"github.com/jmorrell2146/applyflow/internal/model"
)

// The memory store backs dry-run mode; these checks pin its transition
// semantics to the SQLite store's.

func TestMemoryInsertDuplicate(t *testing.T) {
	s := NewMemoryStore()
	if err := s.Insert(testRecord("k", model.StateDiscovered)); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	err := s.Insert(testRecord("k", model.StateDiscovered))
	var ie *model.IntegrityError
	if !errors.As(err, &ie) {
		t.Errorf("expected IntegrityError, got %v", err)
	}
}

func TestMemoryTransitionCAS(t *testing.T) {
	s := NewMemoryStore()
	if err := s.Insert(testRecord("k", model.StateDiscovered)); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	err := s.Transition("k", model.StatePendingReview, model.StateApproved, "")
	var ite *model.InvalidTransitionError
	if !errors.As(err, &ite) {
		t.Errorf("expected InvalidTransitionError on state mismatch, got %v", err)
	}

	if err := s.Transition("k", model.StateDiscovered, model.StatePendingReview, ""); err != nil {
		t.Errorf("valid transition failed: %v", err)
	}
}

func TestMemoryMarkBouncedClearsResponse(t *testing.T) {
	s := NewMemoryStore()
	rec := testRecord("k", model.StateApproved)
	rec.RecipientEmail = "jobs@acme.com"
	if err := s.Insert(rec); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if err := s.MarkSent("k", time.Now(), "email", "general"); err != nil {
		t.Fatalf("MarkSent: %v", err)
	}
	if err := s.AttachResponse("k", model.ResponseNextSteps, time.Now()); err != nil {
		t.Fatalf("AttachResponse: %v", err)
	}

	cleared, err := s.MarkBounced("k", model.BounceInvalidAddress, "bounce")
	if err != nil {
		t.Fatalf("MarkBounced: %v", err)
	}
	if !cleared {
		t.Error("cleared = false, want true")
	}
	got, _ := s.Get("k")
	if got.State != model.StateBounced || got.ResponseType != model.ResponseNone || got.ResponseAt != nil {
		t.Errorf("record = state=%q type=%q at=%v", got.State, got.ResponseType, got.ResponseAt)
	}
}

func TestMemoryGetReturnsCopy(t *testing.T) {
	s := NewMemoryStore()
	if err := s.Insert(testRecord("k", model.StateDiscovered)); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	rec, _ := s.Get("k")
	rec.State = model.StateClosed

	again, _ := s.Get("k")
	if again.State != model.StateDiscovered {
		t.Error("mutating a returned record leaked into the store")
	}
}

func TestMemoryNoticeDedup(t *testing.T) {
	s := NewMemoryStore()
	at := time.Now()

	seen, _ := s.SeenNotice("bounce", "x", at)
	if seen {
		t.Error("notice seen before marking")
	}
	if err := s.MarkNotice("bounce", "x", at); err != nil {
		t.Fatalf("MarkNotice: %v", err)
	}
	seen, _ = s.SeenNotice("bounce", "x", at)
	if !seen {
		t.Error("notice not seen after marking")
	}
}

func TestMemoryAddressChangeDropsVerification(t *testing.T) {
	s := NewMemoryStore()
	if err := s.Insert(testRecord("k", model.StatePendingReview)); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if err := s.SetRecipient("k", "recruiter@acme.com", true); err != nil {
		t.Fatalf("SetRecipient: %v", err)
	}

	upd := testRecord("k", model.StatePendingReview)
	upd.RecipientEmail = "talent@acme.com"
	if err := s.UpdateAttributes(upd); err != nil {
		t.Fatalf("UpdateAttributes: %v", err)
	}

	rec, _ := s.Get("k")
	if rec.RecipientEmail != "talent@acme.com" || rec.EmailVerified {
		t.Errorf("got %q verified=%v, want new address unverified", rec.RecipientEmail, rec.EmailVerified)
	}
}

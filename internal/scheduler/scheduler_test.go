package scheduler

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/jmorrell2146/applyflow/internal/config"
	"github.com/jmorrell2146/applyflow/internal/dispatch"
	"github.com/jmorrell2146/applyflow/internal/followup"
	"github.com/jmorrell2146/applyflow/internal/gate"
	"github.com/jmorrell2146/applyflow/internal/inbox"
	"github.com/jmorrell2146/applyflow/internal/intake"
	"github.com/jmorrell2146/applyflow/internal/model"
	"github.com/jmorrell2146/applyflow/internal/store"
)

// staticFeed serves a fixed batch.
type staticFeed struct {
	jobs []model.RawJob
}

func (f *staticFeed) Name() string { return "static" }

func (f *staticFeed) Fetch(_ context.Context) ([]model.RawJob, error) {
	return f.jobs, nil
}

// pipeMailer accepts every send and serves canned bounces.
type pipeMailer struct {
	sent    int
	bounces []model.BounceNotice
}

func (m *pipeMailer) Send(_ context.Context, _, _, _ string, _ []model.Attachment) (string, error) {
	m.sent++
	return "msg-1", nil
}

func (m *pipeMailer) PollBounces(_ context.Context, _ time.Time) ([]model.BounceNotice, error) {
	return m.bounces, nil
}

func (m *pipeMailer) PollMessages(_ context.Context, _ time.Time) ([]model.InboundMessage, error) {
	return nil, nil
}

type staticRenderer struct{}

func (staticRenderer) Render(_ *model.JobRecord) (model.RenderedContent, error) {
	return model.RenderedContent{Subject: "s", Body: "b", ResumeVariant: "general"}, nil
}

func (staticRenderer) RenderFollowUp(_ *model.JobRecord) (model.RenderedContent, error) {
	return model.RenderedContent{Subject: "fu", Body: "b"}, nil
}

func newTestPipeline(st *store.MemoryStore, feed model.Feed, m model.Mailer) *Pipeline {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	scoring := config.ScoringConfig{
		TierCompanies: []string{"acme"},
		TierWeight:    0.5,
		PreferRemote:  true,
		RemoteWeight:  0.5,
	}
	return &Pipeline{
		Feeds:      []model.Feed{feed},
		Intake:     intake.New(st, intake.NewScorer(scoring), 0.5, logger),
		Gate:       gate.New(st, logger),
		Dispatcher: dispatch.New(st, staticRenderer{}, m, time.Second, logger),
		Bounces:    inbox.NewBounceMonitor(st, m, logger),
		Responses:  inbox.NewClassifier(st, m, logger),
		FollowUps:  followup.New(st, logger),

		Store: st,

		Lookback:       24 * time.Hour,
		AutoReview:     true,
		AutoThreshold:  0.75,
		AutoDispatch:   true,
		FollowUpMinAge: 72 * time.Hour,
		FollowUpMax:    2,

		Logger: logger,
	}
}

func TestRunOnceFeedToSent(t *testing.T) {
	st := store.NewMemoryStore()
	feed := &staticFeed{jobs: []model.RawJob{{
		Company:        "Acme",
		Title:          "Backend Engineer",
		Source:         "static",
		Remote:         true,
		RecipientEmail: "jobs@acme.com",
	}}}
	m := &pipeMailer{}

	p := newTestPipeline(st, feed, m)
	p.RunOnce(context.Background())

	key := intake.IdentityKey("Acme", "Backend Engineer", "static")
	rec, err := st.Get(key)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	// Tier + remote = 1.0, but the contact is unverified, so the auto
	// policy holds the record for review.
	if rec.State != model.StatePendingReview {
		t.Fatalf("state = %q, want pending_review after first cycle", rec.State)
	}

	// Operator verifies the contact; the next cycle approves and sends.
	if err := st.SetRecipient(key, "jobs@acme.com", true); err != nil {
		t.Fatalf("SetRecipient: %v", err)
	}
	p.RunOnce(context.Background())

	rec, _ = st.Get(key)
	if rec.State != model.StateSent {
		t.Fatalf("state = %q, want sent after second cycle", rec.State)
	}
	if m.sent != 1 {
		t.Errorf("mailer saw %d sends, want 1", m.sent)
	}

	// Another cycle over the same feed must be a no-op.
	p.RunOnce(context.Background())
	if m.sent != 1 {
		t.Errorf("third cycle re-sent: %d sends", m.sent)
	}
}

func TestRunOnceHoldsUnverifiedContacts(t *testing.T) {
	st := store.NewMemoryStore()
	feed := &staticFeed{jobs: []model.RawJob{{
		Company: "Acme",
		Title:   "Backend Engineer",
		Source:  "static",
		Remote:  true,
	}}}
	m := &pipeMailer{}

	p := newTestPipeline(st, feed, m)
	p.RunOnce(context.Background())

	rec, err := st.Get(intake.IdentityKey("Acme", "Backend Engineer", "static"))
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	// No verified contact: the auto policy must leave it for a human.
	if rec.State != model.StatePendingReview {
		t.Errorf("state = %q, want pending_review", rec.State)
	}
	if m.sent != 0 {
		t.Errorf("mailer saw %d sends, want 0", m.sent)
	}
}

func TestRunOnceReconcilesBounce(t *testing.T) {
	st := store.NewMemoryStore()
	feed := &staticFeed{jobs: []model.RawJob{{
		Company:        "Acme",
		Title:          "Backend Engineer",
		Source:         "static",
		Remote:         true,
		RecipientEmail: "jobs@acme.com",
	}}}
	m := &pipeMailer{}

	p := newTestPipeline(st, feed, m)
	key := intake.IdentityKey("Acme", "Backend Engineer", "static")
	p.RunOnce(context.Background())
	if err := st.SetRecipient(key, "jobs@acme.com", true); err != nil {
		t.Fatalf("SetRecipient: %v", err)
	}
	p.RunOnce(context.Background())

	m.bounces = []model.BounceNotice{{
		Recipient:  "jobs@acme.com",
		ReasonText: "user unknown",
		OccurredAt: time.Now(),
	}}
	p.RunOnce(context.Background())

	rec, err := st.Get(key)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if rec.State != model.StateBounced || rec.BounceReason != model.BounceInvalidAddress {
		t.Errorf("state=%q reason=%q", rec.State, rec.BounceReason)
	}
}

func TestRunOnceAutoReviewAloneDoesNotDispatch(t *testing.T) {
	st := store.NewMemoryStore()
	feed := &staticFeed{jobs: []model.RawJob{{
		Company:        "Acme",
		Title:          "Backend Engineer",
		Source:         "static",
		Remote:         true,
		RecipientEmail: "jobs@acme.com",
	}}}
	m := &pipeMailer{}

	p := newTestPipeline(st, feed, m)
	p.AutoDispatch = false
	p.RunOnce(context.Background())

	key := intake.IdentityKey("Acme", "Backend Engineer", "static")
	if err := st.SetRecipient(key, "jobs@acme.com", true); err != nil {
		t.Fatalf("SetRecipient: %v", err)
	}
	p.RunOnce(context.Background())

	rec, err := st.Get(key)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if rec.State != model.StateApproved {
		t.Fatalf("state = %q, want approved to wait for an operator dispatch", rec.State)
	}
	if m.sent != 0 {
		t.Errorf("sent %d messages, want 0 without the dispatch opt-in", m.sent)
	}
}

package dispatch

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/jmorrell2146/applyflow/internal/model"
	"github.com/jmorrell2146/applyflow/internal/store"
)

// fakeMailer records sends and returns a canned message ID or error.
type fakeMailer struct {
	sent []sentMessage
	err  error
}

type sentMessage struct {
	to      string
	subject string
}

func (m *fakeMailer) Send(_ context.Context, to, subject, _ string, _ []model.Attachment) (string, error) {
	if m.err != nil {
		return "", m.err
	}
	m.sent = append(m.sent, sentMessage{to: to, subject: subject})
	return "msg-1", nil
}

func (m *fakeMailer) PollBounces(_ context.Context, _ time.Time) ([]model.BounceNotice, error) {
	return nil, nil
}

func (m *fakeMailer) PollMessages(_ context.Context, _ time.Time) ([]model.InboundMessage, error) {
	return nil, nil
}

// fakeRenderer returns fixed content tagged by render kind.
type fakeRenderer struct{}

func (fakeRenderer) Render(rec *model.JobRecord) (model.RenderedContent, error) {
	return model.RenderedContent{
		Subject:       "Application: " + rec.Title,
		Body:          "body",
		ResumeVariant: "general",
	}, nil
}

func (fakeRenderer) RenderFollowUp(rec *model.JobRecord) (model.RenderedContent, error) {
	return model.RenderedContent{Subject: "Following up: " + rec.Title, Body: "body"}, nil
}

func newTestDispatcher(t *testing.T) (*Dispatcher, *store.MemoryStore, *fakeMailer) {
	t.Helper()
	st := store.NewMemoryStore()
	m := &fakeMailer{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(st, fakeRenderer{}, m, time.Second, logger), st, m
}

func addRecord(t *testing.T, st *store.MemoryStore, key string, state model.State, email string) {
	t.Helper()
	err := st.Insert(&model.JobRecord{
		IdentityKey:    key,
		Source:         "test",
		Company:        "Acme",
		Title:          "Engineer",
		DiscoveredAt:   time.Now(),
		State:          state,
		RecipientEmail: email,
		EmailVerified:  email != "",
	})
	if err != nil {
		t.Fatalf("Insert(%s): %v", key, err)
	}
}

func TestDispatchSuccess(t *testing.T) {
	d, st, m := newTestDispatcher(t)
	addRecord(t, st, "k", model.StateApproved, "jobs@acme.com")

	res, err := d.Dispatch(context.Background(), "k")
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if !res.Sent || res.MessageID != "msg-1" || res.ResumeVariant != "general" {
		t.Errorf("result = %+v", res)
	}
	if len(m.sent) != 1 || m.sent[0].to != "jobs@acme.com" {
		t.Errorf("mailer saw %+v", m.sent)
	}

	rec, _ := st.Get("k")
	if rec.State != model.StateSent || rec.SentAt == nil {
		t.Errorf("record after dispatch: state=%q sent_at=%v", rec.State, rec.SentAt)
	}
}

func TestDispatchRequiresApproval(t *testing.T) {
	d, st, m := newTestDispatcher(t)

	for _, state := range []model.State{
		model.StateDiscovered,
		model.StatePendingReview,
		model.StateRejectedByReviewer,
		model.StateSent,
		model.StateSendFailed,
		model.StateBounced,
		model.StateClosed,
	} {
		key := "k-" + string(state)
		addRecord(t, st, key, state, "jobs@acme.com")

		_, err := d.Dispatch(context.Background(), key)
		var nre *model.NotReadyError
		if !errors.As(err, &nre) {
			t.Errorf("Dispatch from %s: got %v, want NotReadyError", state, err)
		}
		rec, _ := st.Get(key)
		if rec.State != state {
			t.Errorf("Dispatch from %s mutated state to %s", state, rec.State)
		}
	}
	if len(m.sent) != 0 {
		t.Errorf("mailer was invoked %d times", len(m.sent))
	}
}

func TestDispatchRequiresRecipient(t *testing.T) {
	d, st, m := newTestDispatcher(t)
	addRecord(t, st, "k", model.StateApproved, "")

	_, err := d.Dispatch(context.Background(), "k")
	var nre *model.NotReadyError
	if !errors.As(err, &nre) {
		t.Fatalf("got %v, want NotReadyError", err)
	}
	if len(m.sent) != 0 {
		t.Error("mailer invoked without a recipient")
	}
	rec, _ := st.Get("k")
	if rec.State != model.StateApproved {
		t.Errorf("state = %q, want approved", rec.State)
	}
}

func TestDispatchUnknownKey(t *testing.T) {
	d, _, _ := newTestDispatcher(t)

	_, err := d.Dispatch(context.Background(), "ghost")
	if !errors.Is(err, model.ErrNotFound) {
		t.Errorf("got %v, want ErrNotFound", err)
	}
}

func TestDispatchTransportFailure(t *testing.T) {
	d, st, m := newTestDispatcher(t)
	m.err = errors.New("smtp timeout")
	addRecord(t, st, "k", model.StateApproved, "jobs@acme.com")

	res, err := d.Dispatch(context.Background(), "k")
	if err != nil {
		t.Fatalf("Dispatch returned error for transport failure: %v", err)
	}
	if res.Sent || res.FailureReason == "" {
		t.Errorf("result = %+v", res)
	}

	rec, _ := st.Get("k")
	if rec.State != model.StateSendFailed {
		t.Fatalf("state = %q, want send_failed", rec.State)
	}
	if rec.SendError != "smtp timeout" {
		t.Errorf("send_error = %q", rec.SendError)
	}
}

func TestRetryThenDispatch(t *testing.T) {
	d, st, m := newTestDispatcher(t)
	m.err = errors.New("smtp timeout")
	addRecord(t, st, "k", model.StateApproved, "jobs@acme.com")

	if _, err := d.Dispatch(context.Background(), "k"); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if err := d.Retry("k"); err != nil {
		t.Fatalf("Retry: %v", err)
	}

	m.err = nil
	res, err := d.Dispatch(context.Background(), "k")
	if err != nil {
		t.Fatalf("second Dispatch: %v", err)
	}
	if !res.Sent {
		t.Errorf("result = %+v", res)
	}
	rec, _ := st.Get("k")
	if rec.State != model.StateSent || rec.SendError != "" {
		t.Errorf("after retry: state=%q send_error=%q", rec.State, rec.SendError)
	}
}

func TestRetryOnlyFromSendFailed(t *testing.T) {
	d, st, _ := newTestDispatcher(t)
	addRecord(t, st, "k", model.StateApproved, "jobs@acme.com")

	err := d.Retry("k")
	var ite *model.InvalidTransitionError
	if !errors.As(err, &ite) {
		t.Errorf("got %v, want InvalidTransitionError", err)
	}
}

func TestSendFollowUpKeepsSentState(t *testing.T) {
	d, st, m := newTestDispatcher(t)
	addRecord(t, st, "k", model.StateApproved, "jobs@acme.com")
	if _, err := d.Dispatch(context.Background(), "k"); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}

	if err := d.SendFollowUp(context.Background(), "k"); err != nil {
		t.Fatalf("SendFollowUp: %v", err)
	}
	if len(m.sent) != 2 {
		t.Fatalf("mailer saw %d sends, want 2", len(m.sent))
	}
	if m.sent[1].subject != "Following up: Engineer" {
		t.Errorf("follow-up subject = %q", m.sent[1].subject)
	}
	rec, _ := st.Get("k")
	if rec.State != model.StateSent {
		t.Errorf("state = %q, want sent", rec.State)
	}
}

func TestSendFollowUpRequiresSent(t *testing.T) {
	d, st, _ := newTestDispatcher(t)
	addRecord(t, st, "k", model.StateApproved, "jobs@acme.com")

	err := d.SendFollowUp(context.Background(), "k")
	var nre *model.NotReadyError
	if !errors.As(err, &nre) {
		t.Errorf("got %v, want NotReadyError", err)
	}
}

func TestSendFollowUpTransportFailure(t *testing.T) {
	d, st, m := newTestDispatcher(t)
	addRecord(t, st, "k", model.StateApproved, "jobs@acme.com")
	if _, err := d.Dispatch(context.Background(), "k"); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}

	m.err = errors.New("smtp timeout")
	err := d.SendFollowUp(context.Background(), "k")
	var te *model.TransportError
	if !errors.As(err, &te) {
		t.Fatalf("got %v, want TransportError", err)
	}

	// The original application did go out; the record must stay sent.
	rec, _ := st.Get("k")
	if rec.State != model.StateSent {
		t.Errorf("state = %q, want sent", rec.State)
	}
}

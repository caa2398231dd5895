package inbox

import (
	"context"
	"testing"
	"time"

	"github.com/jmorrell2146/applyflow/internal/model"
	"github.com/jmorrell2146/applyflow/internal/store"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name    string
		subject string
		body    string
		want    model.ResponseType
	}{
		{
			name:    "scheduling language",
			subject: "Next steps for your application",
			body:    "Please share your availability for a 30 minute chat.",
			want:    model.ResponseInterviewRequest,
		},
		{
			name:    "calendly link",
			subject: "Acme Engineering",
			body:    "Book a slot here: calendly.com/acme-recruiting",
			want:    model.ResponseInterviewRequest,
		},
		{
			name:    "interview word with context",
			subject: "Interview for the Backend Engineer role",
			body:    "We would like to invite you.",
			want:    model.ResponseInterviewRequest,
		},
		{
			name:    "rejection",
			subject: "Your application to Acme",
			body:    "Unfortunately we have decided to move forward with other candidates.",
			want:    model.ResponseRejection,
		},
		{
			// "application" is a context word and "call" a weak interview
			// word; the explicit rejection must still win.
			name:    "rejection mentioning a call",
			subject: "Update on your application",
			body:    "After your call with the team, we are not moving forward.",
			want:    model.ResponseRejection,
		},
		{
			name:    "assessment",
			subject: "Acme coding exercise",
			body:    "Complete the take-home within 5 days.",
			want:    model.ResponseNextSteps,
		},
		{
			name:    "auto acknowledgment",
			subject: "Thank you for applying to Acme",
			body:    "This confirms we received your application.",
			want:    model.ResponseAutoAck,
		},
		{
			name:    "unclassifiable",
			subject: "Hello",
			body:    "Just checking in.",
			want:    model.ResponseOther,
		},
		{
			// Weak interview word with no context word stays unclassified.
			name:    "bare call mention",
			subject: "Quick call?",
			body:    "Got a minute?",
			want:    model.ResponseOther,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.subject, tt.body); got != tt.want {
				t.Errorf("Classify = %q, want %q", got, tt.want)
			}
		})
	}
}

func scanOne(t *testing.T, st *store.MemoryStore, msg model.InboundMessage) []model.ClassifiedResponse {
	t.Helper()
	m := &pollMailer{messages: []model.InboundMessage{msg}}
	resp, err := NewClassifier(st, m, discardLogger()).ScanResponses(context.Background(), 24*time.Hour)
	if err != nil {
		t.Fatalf("ScanResponses: %v", err)
	}
	return resp
}

func TestScanResponsesAttachesToSent(t *testing.T) {
	st := store.NewMemoryStore()
	addSent(t, st, "k", "Acme", "recruiter@acme.com", model.StateSent)

	resp := scanOne(t, st, model.InboundMessage{
		From:       "recruiter@acme.com",
		Subject:    "Interview for the Backend Engineer position",
		Body:       "Please share your availability.",
		OccurredAt: time.Now(),
		MessageID:  "m1",
	})

	if len(resp) != 1 || resp[0].Type != model.ResponseInterviewRequest || resp[0].Escalated {
		t.Fatalf("resp = %+v", resp)
	}
	rec, _ := st.Get("k")
	if rec.State != model.StateResponded || rec.ResponseType != model.ResponseInterviewRequest {
		t.Errorf("record: state=%q type=%q", rec.State, rec.ResponseType)
	}
}

func TestScanResponsesMatchesByCompany(t *testing.T) {
	st := store.NewMemoryStore()
	addSent(t, st, "k", "Acme Systems", "jobs@acme.com", model.StateSent)

	// Reply arrives from a different address at the same company.
	resp := scanOne(t, st, model.InboundMessage{
		From:       "no-reply@acmesystems.greenhouse.io",
		Subject:    "Thank you for applying",
		Body:       "We received your application.",
		OccurredAt: time.Now(),
		MessageID:  "m2",
	})

	if len(resp) != 1 || resp[0].IdentityKey != "k" || resp[0].Type != model.ResponseAutoAck {
		t.Fatalf("resp = %+v", resp)
	}
}

func TestScanResponsesEscalates(t *testing.T) {
	st := store.NewMemoryStore()
	addSent(t, st, "k", "Acme", "recruiter@acme.com", model.StateSent)
	if err := st.AttachResponse("k", model.ResponseAutoAck, time.Now()); err != nil {
		t.Fatalf("AttachResponse: %v", err)
	}

	resp := scanOne(t, st, model.InboundMessage{
		From:       "recruiter@acme.com",
		Subject:    "Schedule your interview",
		Body:       "Here is a calendar link.",
		OccurredAt: time.Now(),
		MessageID:  "m3",
	})

	if len(resp) != 1 || !resp[0].Escalated {
		t.Fatalf("resp = %+v, want an escalation", resp)
	}
	rec, _ := st.Get("k")
	if rec.State != model.StateInterview || rec.ResponseType != model.ResponseInterviewRequest {
		t.Errorf("record: state=%q type=%q", rec.State, rec.ResponseType)
	}
}

func TestScanResponsesRejectionCloses(t *testing.T) {
	st := store.NewMemoryStore()
	addSent(t, st, "k", "Acme", "recruiter@acme.com", model.StateSent)
	if err := st.AttachResponse("k", model.ResponseNextSteps, time.Now()); err != nil {
		t.Fatalf("AttachResponse: %v", err)
	}

	resp := scanOne(t, st, model.InboundMessage{
		From:       "recruiter@acme.com",
		Subject:    "Your application",
		Body:       "Unfortunately we went with other candidates.",
		OccurredAt: time.Now(),
		MessageID:  "m4",
	})

	if len(resp) != 1 || !resp[0].Escalated {
		t.Fatalf("resp = %+v", resp)
	}
	rec, _ := st.Get("k")
	if rec.State != model.StateClosed || rec.ResponseType != model.ResponseRejection {
		t.Errorf("record: state=%q type=%q", rec.State, rec.ResponseType)
	}
}

func TestScanResponsesNeverDowngrades(t *testing.T) {
	st := store.NewMemoryStore()
	addSent(t, st, "k", "Acme", "recruiter@acme.com", model.StateSent)
	if err := st.AttachResponse("k", model.ResponseInterviewRequest, time.Now()); err != nil {
		t.Fatalf("AttachResponse: %v", err)
	}

	// A later auto-ack must not weaken the recorded classification.
	resp := scanOne(t, st, model.InboundMessage{
		From:       "recruiter@acme.com",
		Subject:    "Application received",
		Body:       "Thank you for applying.",
		OccurredAt: time.Now(),
		MessageID:  "m5",
	})

	if len(resp) != 0 {
		t.Fatalf("resp = %+v, want none", resp)
	}
	rec, _ := st.Get("k")
	if rec.State != model.StateResponded || rec.ResponseType != model.ResponseInterviewRequest {
		t.Errorf("record downgraded: state=%q type=%q", rec.State, rec.ResponseType)
	}
}

func TestScanResponsesDedup(t *testing.T) {
	st := store.NewMemoryStore()
	addSent(t, st, "k", "Acme", "recruiter@acme.com", model.StateSent)

	msg := model.InboundMessage{
		From:       "recruiter@acme.com",
		Subject:    "Schedule a chat",
		Body:       "Availability?",
		OccurredAt: time.Now().Truncate(time.Second),
		MessageID:  "m6",
	}
	m := &pollMailer{messages: []model.InboundMessage{msg}}
	c := NewClassifier(st, m, discardLogger())

	first, err := c.ScanResponses(context.Background(), 24*time.Hour)
	if err != nil {
		t.Fatalf("first scan: %v", err)
	}
	second, err := c.ScanResponses(context.Background(), 24*time.Hour)
	if err != nil {
		t.Fatalf("second scan: %v", err)
	}
	if len(first) != 1 || len(second) != 0 {
		t.Errorf("classified first=%d second=%d, want 1/0", len(first), len(second))
	}
}

func TestScanResponsesIgnoresUnmatched(t *testing.T) {
	st := store.NewMemoryStore()

	resp := scanOne(t, st, model.InboundMessage{
		From:       "newsletter@random.com",
		Subject:    "Weekly digest",
		Body:       "News.",
		OccurredAt: time.Now(),
		MessageID:  "m7",
	})
	if len(resp) != 0 {
		t.Errorf("resp = %+v, want none", resp)
	}
}

package inbox

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/jmorrell2146/applyflow/internal/model"
)

const messageNoticeKind = "message"

// Classifier attaches inbound replies to dispatched records by
// heuristic category.
type Classifier struct {
	store  model.RecordStore
	mailer model.Mailer
	logger *slog.Logger

	now func() time.Time
}

// NewClassifier creates a response classifier over the store and mailer.
func NewClassifier(store model.RecordStore, mailer model.Mailer, logger *slog.Logger) *Classifier {
	return &Classifier{store: store, mailer: mailer, logger: logger, now: time.Now}
}

// ScanResponses polls the inbox for the lookback window, classifies
// each message, and attaches the result to the matching record. A
// response can only attach to a record that was dispatched; a stronger
// second classification escalates (responded → interview or closed),
// a weaker one never downgrades.
func (c *Classifier) ScanResponses(ctx context.Context, since time.Duration) ([]model.ClassifiedResponse, error) {
	msgs, err := c.mailer.PollMessages(ctx, c.now().Add(-since))
	if err != nil {
		return nil, &model.TransportError{Op: "poll_messages", Err: err}
	}

	var classified []model.ClassifiedResponse
	for _, msg := range msgs {
		if ctx.Err() != nil {
			return classified, ctx.Err()
		}

		ident := msg.MessageID
		if ident == "" {
			ident = msg.From + "|" + msg.Subject
		}
		seen, err := c.store.SeenNotice(messageNoticeKind, ident, msg.OccurredAt)
		if err != nil {
			return classified, err
		}
		if seen {
			continue
		}

		resp, err := c.applyMessage(msg)
		if err != nil {
			return classified, err
		}

		if err := c.store.MarkNotice(messageNoticeKind, ident, msg.OccurredAt); err != nil {
			return classified, err
		}
		if resp != nil {
			classified = append(classified, *resp)
		}
	}

	c.logger.Info("response scan complete",
		"messages", len(msgs),
		"classified", len(classified),
	)
	return classified, nil
}

func (c *Classifier) applyMessage(msg model.InboundMessage) (*model.ClassifiedResponse, error) {
	rec, err := c.matchRecord(msg)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		c.logger.Debug("inbound message with no dispatched record",
			"from", msg.From,
			"subject", msg.Subject,
		)
		return nil, nil
	}

	rt := Classify(msg.Subject, msg.Body)
	resp := &model.ClassifiedResponse{
		IdentityKey: rec.IdentityKey,
		Type:        rt,
		From:        msg.From,
		Subject:     msg.Subject,
		OccurredAt:  msg.OccurredAt,
	}

	switch rec.State {
	case model.StateSent:
		if err := c.store.AttachResponse(rec.IdentityKey, rt, msg.OccurredAt); err != nil {
			var invalid *model.InvalidTransitionError
			if errors.As(err, &invalid) {
				return nil, nil
			}
			return nil, err
		}

	case model.StateResponded:
		// Escalation only; weaker classifications never downgrade.
		var to model.State
		switch rt {
		case model.ResponseInterviewRequest:
			to = model.StateInterview
		case model.ResponseRejection:
			to = model.StateClosed
		default:
			return nil, nil
		}
		if err := c.store.PromoteResponse(rec.IdentityKey, to, rt, msg.OccurredAt); err != nil {
			var invalid *model.InvalidTransitionError
			if errors.As(err, &invalid) {
				return nil, nil
			}
			return nil, err
		}
		resp.Escalated = true

	default:
		// interview and closed are already as strong as replies get.
		return nil, nil
	}

	c.logger.Info("response classified",
		"key", rec.IdentityKey,
		"type", rt,
		"escalated", resp.Escalated,
	)
	return resp, nil
}

// matchRecord joins a message to a record by the exact sender address
// first (the address we dispatched to), then by normalized company name
// appearing in the sender domain or subject.
func (c *Classifier) matchRecord(msg model.InboundMessage) (*model.JobRecord, error) {
	if rec, err := c.store.FindSentByRecipient(msg.From); err != nil || rec != nil {
		return rec, err
	}

	subject := strings.ToLower(msg.Subject)
	from := strings.ToLower(msg.From)
	for _, state := range []model.State{model.StateSent, model.StateResponded} {
		recs, err := c.store.List(state)
		if err != nil {
			return nil, err
		}
		for _, rec := range recs {
			company := strings.ToLower(rec.Company)
			if company == "" {
				continue
			}
			needle := strings.ReplaceAll(company, " ", "")
			if strings.Contains(strings.ReplaceAll(from, " ", ""), needle) ||
				strings.Contains(subject, company) {
				return rec, nil
			}
		}
	}
	return nil, nil
}

// Signal vocabularies. Strong interview signals are scheduling words;
// weak ones ("interview", "call") additionally require a contextual
// word so unrelated calendar mail does not classify as an interview.
var (
	strongInterviewPhrases = []string{
		"schedule",
		"availability",
		"calendar link",
		"calendly",
		"book a time",
	}
	weakInterviewPhrases = []string{
		"interview",
		"call",
	}
	contextPhrases = []string{
		"position",
		"role",
		"application",
	}
	rejectionPhrases = []string{
		"unfortunately",
		"not moving forward",
		"other candidates",
		"decided not to proceed",
		"no longer under consideration",
		"position has been filled",
	}
	nextStepsPhrases = []string{
		"assessment",
		"coding exercise",
		"take-home",
		"take home",
		"coding challenge",
		"online test",
	}
	ackPhrases = []string{
		"received your application",
		"we've received your application",
		"thank you for applying",
		"application received",
		"confirmation of your application",
	}
)

// Classify maps a message's subject + body to a response category.
// First match wins: strong interview signals, then explicit rejection,
// then weak interview signals with context, then assessment language,
// then receipt confirmations, else other. Rejection phrases outrank
// weak interview words so "not moving forward ... after your call"
// never reads as an interview request.
func Classify(subject, body string) model.ResponseType {
	text := strings.ToLower(subject + " " + body)

	switch {
	case containsAny(text, strongInterviewPhrases):
		return model.ResponseInterviewRequest
	case containsAny(text, rejectionPhrases):
		return model.ResponseRejection
	case containsAny(text, weakInterviewPhrases) && containsAny(text, contextPhrases):
		return model.ResponseInterviewRequest
	case containsAny(text, nextStepsPhrases):
		return model.ResponseNextSteps
	case containsAny(text, ackPhrases):
		return model.ResponseAutoAck
	default:
		return model.ResponseOther
	}
}

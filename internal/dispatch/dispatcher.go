// Package dispatch sends approved applications through the mailer and
// records the outcome. A record is dispatched at most once: only the
// explicit retry transition re-enters approved, and an already-sent
// record is never re-sent under the same identity.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmorrell2146/applyflow/internal/model"
)

// Result reports one dispatch attempt.
type Result struct {
	IdentityKey   string
	Sent          bool
	MessageID     string
	SentAt        time.Time
	ResumeVariant string
	FailureReason string // set when Sent is false
}

// Dispatcher renders materials and sends approved applications.
type Dispatcher struct {
	store    model.RecordStore
	renderer model.Renderer
	mailer   model.Mailer
	timeout  time.Duration
	logger   *slog.Logger

	now func() time.Time
}

// New creates a dispatcher. timeout bounds each mailer send; a timed-out
// send is recorded as send_failed, never left pending.
func New(store model.RecordStore, renderer model.Renderer, mailer model.Mailer, timeout time.Duration, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		store:    store,
		renderer: renderer,
		mailer:   mailer,
		timeout:  timeout,
		logger:   logger,
		now:      time.Now,
	}
}

// Dispatch sends the application for an approved record. Preconditions:
// state approved and a known recipient address; violating either fails
// with NotReadyError and no side effects. A transport failure is the
// expected failure mode here: it transitions the record to send_failed
// and is reported in the Result, not returned as an error.
func (d *Dispatcher) Dispatch(ctx context.Context, identityKey string) (*Result, error) {
	rec, err := d.store.Get(identityKey)
	if err != nil {
		return nil, err
	}
	if rec.State != model.StateApproved {
		return nil, &model.NotReadyError{
			IdentityKey: identityKey,
			Reason:      fmt.Sprintf("state is %s, want %s", rec.State, model.StateApproved),
		}
	}
	if rec.RecipientEmail == "" {
		return nil, &model.NotReadyError{IdentityKey: identityKey, Reason: "no recipient address"}
	}

	content, err := d.renderer.Render(rec)
	if err != nil {
		return nil, fmt.Errorf("rendering materials for %s: %w", identityKey, err)
	}

	msgID, sendErr := d.send(ctx, rec.RecipientEmail, content)
	if sendErr != nil {
		// Operator cancellation is not a transport failure; leave the
		// record approved for a later attempt.
		if errors.Is(sendErr, context.Canceled) {
			return nil, sendErr
		}
		if err := d.store.MarkSendFailed(identityKey, sendErr.Error()); err != nil {
			return nil, err
		}
		d.logger.Warn("dispatch failed",
			"key", identityKey,
			"recipient", rec.RecipientEmail,
			"error", sendErr,
		)
		return &Result{
			IdentityKey:   identityKey,
			FailureReason: sendErr.Error(),
		}, nil
	}

	sentAt := d.now()
	if err := d.store.MarkSent(identityKey, sentAt, "email", content.ResumeVariant); err != nil {
		return nil, err
	}

	d.logger.Info("application dispatched",
		"key", identityKey,
		"recipient", rec.RecipientEmail,
		"message_id", msgID,
		"variant", content.ResumeVariant,
	)
	return &Result{
		IdentityKey:   identityKey,
		Sent:          true,
		MessageID:     msgID,
		SentAt:        sentAt,
		ResumeVariant: content.ResumeVariant,
	}, nil
}

func (d *Dispatcher) send(ctx context.Context, to string, content model.RenderedContent) (string, error) {
	sendCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()
	return d.mailer.Send(sendCtx, to, content.Subject, content.Body, content.Attachments)
}

// Retry re-enters approved from send_failed. This is the only automatic
// path back to dispatch eligibility.
func (d *Dispatcher) Retry(identityKey string) error {
	return d.store.Transition(identityKey, model.StateSendFailed, model.StateApproved, "operator retry")
}

// SendFollowUp sends the follow-up variant for a record emitted by the
// follow-up scheduler. The record stays in sent; a transport failure
// here is logged and reported, never recorded as send_failed (the
// original application did go out).
func (d *Dispatcher) SendFollowUp(ctx context.Context, identityKey string) error {
	rec, err := d.store.Get(identityKey)
	if err != nil {
		return err
	}
	if rec.State != model.StateSent {
		return &model.NotReadyError{
			IdentityKey: identityKey,
			Reason:      fmt.Sprintf("state is %s, want %s", rec.State, model.StateSent),
		}
	}

	content, err := d.renderer.RenderFollowUp(rec)
	if err != nil {
		return fmt.Errorf("rendering follow-up for %s: %w", identityKey, err)
	}

	msgID, err := d.send(ctx, rec.RecipientEmail, content)
	if err != nil {
		return &model.TransportError{Op: "send", Err: err}
	}

	d.logger.Info("follow-up dispatched",
		"key", identityKey,
		"recipient", rec.RecipientEmail,
		"message_id", msgID,
		"follow_up_count", rec.FollowUpCount,
	)
	return nil
}

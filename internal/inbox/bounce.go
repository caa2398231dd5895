// Package inbox polls the mailer for delivery-failure notifications and
// replies and feeds both back into the record store. Scans are
// idempotent: every notification is deduplicated by identifier and
// timestamp, so re-running a scan never double-counts.
package inbox

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jmorrell2146/applyflow/internal/model"
)

const bounceNoticeKind = "bounce"

// BounceMonitor matches delivery-failure notifications back to
// dispatched records and reconciles their state.
type BounceMonitor struct {
	store  model.RecordStore
	mailer model.Mailer
	logger *slog.Logger

	now func() time.Time
}

// NewBounceMonitor creates a bounce monitor over the store and mailer.
func NewBounceMonitor(store model.RecordStore, mailer model.Mailer, logger *slog.Logger) *BounceMonitor {
	return &BounceMonitor{store: store, mailer: mailer, logger: logger, now: time.Now}
}

// ScanBounces polls for bounce notifications in the lookback window and
// flips matching records to bounced. Matching is strictly by the
// recipient address used at dispatch time; a bounced record's response
// state is cleared, since a bounced message cannot have been read.
// Transport failures are returned for the caller to retry next scan.
func (m *BounceMonitor) ScanBounces(ctx context.Context, since time.Duration) ([]model.BounceEvent, error) {
	notices, err := m.mailer.PollBounces(ctx, m.now().Add(-since))
	if err != nil {
		return nil, &model.TransportError{Op: "poll_bounces", Err: err}
	}

	var events []model.BounceEvent
	for _, notice := range notices {
		if ctx.Err() != nil {
			return events, ctx.Err()
		}

		seen, err := m.store.SeenNotice(bounceNoticeKind, notice.Recipient, notice.OccurredAt)
		if err != nil {
			return events, err
		}
		if seen {
			continue
		}

		event, err := m.applyBounce(notice)
		if err != nil {
			return events, err
		}

		if err := m.store.MarkNotice(bounceNoticeKind, notice.Recipient, notice.OccurredAt); err != nil {
			return events, err
		}
		if event != nil {
			events = append(events, *event)
		}
	}

	m.logger.Info("bounce scan complete",
		"notices", len(notices),
		"matched", len(events),
	)
	return events, nil
}

func (m *BounceMonitor) applyBounce(notice model.BounceNotice) (*model.BounceEvent, error) {
	rec, err := m.store.FindSentByRecipient(notice.Recipient)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		// Not ours, or the record already reached a terminal state.
		m.logger.Debug("bounce notice with no matching dispatch",
			"recipient", notice.Recipient,
		)
		return nil, nil
	}

	reason := ClassifyBounceReason(notice.ReasonText)
	cleared, err := m.store.MarkBounced(rec.IdentityKey, reason, fmt.Sprintf("bounce: %s", reason))
	if err != nil {
		// A concurrent scan may have bounced it between lookup and CAS.
		var invalid *model.InvalidTransitionError
		if errors.As(err, &invalid) {
			return nil, nil
		}
		return nil, err
	}

	if cleared {
		m.logger.Warn("bounce invalidated a recorded response",
			"key", rec.IdentityKey,
			"recipient", notice.Recipient,
		)
	}
	m.logger.Info("record bounced",
		"key", rec.IdentityKey,
		"recipient", notice.Recipient,
		"reason", reason,
	)
	return &model.BounceEvent{
		IdentityKey:     rec.IdentityKey,
		Recipient:       notice.Recipient,
		Reason:          reason,
		OccurredAt:      notice.OccurredAt,
		ClearedResponse: cleared,
	}, nil
}

// Reason-text fragments per category. Domain phrases are checked before
// address phrases so "domain couldn't be found" lands on the domain
// category despite containing an address fragment.
var (
	domainNotFoundPhrases = []string{
		"domain not found",
		"domain couldn't be found",
		"domain could not be found",
		"host not found",
		"dns error",
		"no mx record",
	}
	invalidAddressPhrases = []string{
		"couldn't be found",
		"could not be found",
		"address not found",
		"user unknown",
		"no such user",
		"does not exist",
		"recipient rejected",
		"invalid recipient",
	}
	mailboxFullPhrases = []string{
		"mailbox full",
		"mailbox is full",
		"over quota",
		"quota exceeded",
	}
	messageTooLargePhrases = []string{
		"message too large",
		"size limit",
		"exceeds maximum message size",
	}
)

// ClassifyBounceReason maps a transport's reason text to a bounce
// category.
func ClassifyBounceReason(reasonText string) model.BounceReason {
	text := strings.ToLower(reasonText)
	switch {
	case containsAny(text, domainNotFoundPhrases):
		return model.BounceDomainNotFound
	case containsAny(text, invalidAddressPhrases):
		return model.BounceInvalidAddress
	case containsAny(text, mailboxFullPhrases):
		return model.BounceMailboxFull
	case containsAny(text, messageTooLargePhrases):
		return model.BounceMessageTooLarge
	default:
		return model.BounceUnknown
	}
}

func containsAny(text string, phrases []string) bool {
	for _, p := range phrases {
		if strings.Contains(text, p) {
			return true
		}
	}
	return false
}

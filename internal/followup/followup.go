// Package followup selects dispatched applications that have gone
// unanswered long enough to warrant a nudge. It emits work items only;
// sending is the dispatcher's job, so this package has no transport
// side effects.
package followup

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/jmorrell2146/applyflow/internal/model"
)

// Scheduler emits follow-up work items for stale sent records.
type Scheduler struct {
	store  model.RecordStore
	logger *slog.Logger

	now func() time.Time
}

// New creates a follow-up scheduler over the store.
func New(store model.RecordStore, logger *slog.Logger) *Scheduler {
	return &Scheduler{store: store, logger: logger, now: time.Now}
}

// DueFollowUps returns the identity keys of records in sent state with
// no response, dispatched at least minAge ago, with fewer than
// maxFollowUps emissions so far. Each emission increments the record's
// follow-up counter, so a key is returned at most maxFollowUps times
// over its life. Any response, even one later cleared by a bounce,
// permanently removes a record from eligibility, because a bounced
// dispatch leaves the sent state for good.
func (s *Scheduler) DueFollowUps(minAge time.Duration, maxFollowUps int) ([]string, error) {
	due, err := s.store.DueFollowUps(minAge, maxFollowUps)
	if err != nil {
		return nil, fmt.Errorf("selecting due follow-ups: %w", err)
	}

	keys := make([]string, 0, len(due))
	for _, rec := range due {
		if err := s.store.RecordFollowUp(rec.IdentityKey, s.now()); err != nil {
			return keys, err
		}
		keys = append(keys, rec.IdentityKey)
		s.logger.Info("follow-up due",
			"key", rec.IdentityKey,
			"sent_at", rec.SentAt,
			"follow_up_count", rec.FollowUpCount+1,
		)
	}
	return keys, nil
}

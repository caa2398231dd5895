// Package gate holds the approval gate: every record must pass a
// review transition before it can be dispatched. The auto policy is a
// deterministic substitute for a human reviewer and uses the same
// transition path; there is no bypass.
package gate

import (
	"fmt"
	"log/slog"

	"github.com/jmorrell2146/applyflow/internal/model"
)

// Decision is a reviewer's verdict on a pending record.
type Decision string

const (
	Approve Decision = "approve"
	Reject  Decision = "reject"
)

// Gate applies review decisions to pending records.
type Gate struct {
	store  model.RecordStore
	logger *slog.Logger
}

// New creates a gate over the given store.
func New(store model.RecordStore, logger *slog.Logger) *Gate {
	return &Gate{store: store, logger: logger}
}

// Review applies a decision to a record in pending_review. Any other
// state fails with InvalidTransitionError and mutates nothing. The
// reviewer note is kept in the audit log.
func (g *Gate) Review(identityKey string, decision Decision, note string) error {
	var to model.State
	switch decision {
	case Approve:
		to = model.StateApproved
	case Reject:
		to = model.StateRejectedByReviewer
	default:
		return fmt.Errorf("unknown review decision %q", decision)
	}

	cause := "reviewer " + string(decision)
	if note != "" {
		cause += ": " + note
	}

	if err := g.store.Transition(identityKey, model.StatePendingReview, to, cause); err != nil {
		return err
	}

	g.logger.Info("review decision applied",
		"key", identityKey,
		"decision", decision,
	)
	return nil
}

// AutoReview applies the deterministic policy to every pending record:
// approve when the relevance score clears the threshold and the contact
// address is verified. Records failing the rule stay pending for a
// human. Returns the number approved.
func (g *Gate) AutoReview(threshold float64) (int, error) {
	pending, err := g.store.List(model.StatePendingReview)
	if err != nil {
		return 0, fmt.Errorf("listing pending records: %w", err)
	}

	approved := 0
	for _, rec := range pending {
		if rec.RelevanceScore < threshold || !rec.EmailVerified {
			continue
		}
		err := g.Review(rec.IdentityKey, Approve, fmt.Sprintf("auto policy: score %.2f, email verified", rec.RelevanceScore))
		if err != nil {
			return approved, err
		}
		approved++
	}

	g.logger.Info("auto review pass complete",
		"pending", len(pending),
		"approved", approved,
	)
	return approved, nil
}

// Package intake ingests raw job postings: identity derivation, dedup
// against the record store, relevance scoring, and initial state
// placement.
package intake

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmorrell2146/applyflow/internal/model"
)

// Intake owns the ingest pipeline for raw jobs.
type Intake struct {
	store           model.RecordStore
	scorer          *Scorer
	reviewThreshold float64
	logger          *slog.Logger

	now func() time.Time
}

// New creates an intake wired with its dependencies. Records scoring at
// or above reviewThreshold enter pending_review directly; everything
// else starts in discovered.
func New(store model.RecordStore, scorer *Scorer, reviewThreshold float64, logger *slog.Logger) *Intake {
	return &Intake{
		store:           store,
		scorer:          scorer,
		reviewThreshold: reviewThreshold,
		logger:          logger,
		now:             time.Now,
	}
}

// Ingest processes one batch of raw jobs. Malformed items are counted
// as failed and logged; they never abort the batch. Integrity errors
// from the store do abort: they mean the dedup discipline was violated.
func (i *Intake) Ingest(ctx context.Context, raws []model.RawJob) (model.IngestResult, error) {
	var result model.IngestResult

	for _, raw := range raws {
		if ctx.Err() != nil {
			return result, ctx.Err()
		}

		if err := i.ingestOne(raw, &result); err != nil {
			var invalid *model.InvalidRecordError
			if errors.As(err, &invalid) {
				i.logger.Warn("skipping malformed raw job",
					"company", raw.Company,
					"title", raw.Title,
					"source", raw.Source,
					"error", err,
				)
				result.Failed++
				continue
			}
			return result, err
		}
	}

	i.logger.Info("ingest batch complete",
		"total", len(raws),
		"inserted", result.Inserted,
		"updated", result.Updated,
		"skipped", result.Skipped,
		"failed", result.Failed,
	)
	return result, nil
}

func (i *Intake) ingestOne(raw model.RawJob, result *model.IngestResult) error {
	if raw.Company == "" {
		return &model.InvalidRecordError{Reason: "missing company"}
	}
	if raw.Title == "" {
		return &model.InvalidRecordError{Reason: "missing title"}
	}
	if raw.Source == "" {
		return &model.InvalidRecordError{Reason: "missing source"}
	}

	key := IdentityKey(raw.Company, raw.Title, raw.Source)
	score := i.scorer.Score(raw)

	existing, err := i.store.Get(key)
	if errors.Is(err, model.ErrNotFound) {
		return i.insert(key, raw, score, result)
	}
	if err != nil {
		return fmt.Errorf("ingest lookup for %s: %w", key, err)
	}

	// Records already reviewed out or dispatched are never clobbered by
	// re-ingestion.
	if !model.PreTerminal(existing.State) {
		result.Skipped++
		return nil
	}

	return i.refresh(existing, raw, score, result)
}

func (i *Intake) insert(key string, raw model.RawJob, score float64, result *model.IngestResult) error {
	state := model.StateDiscovered
	if score >= i.reviewThreshold {
		state = model.StatePendingReview
	}

	rec := &model.JobRecord{
		IdentityKey:    key,
		Source:         raw.Source,
		Company:        raw.Company,
		Title:          raw.Title,
		Location:       raw.Location,
		Remote:         raw.Remote,
		SalaryMin:      raw.SalaryMin,
		SalaryMax:      raw.SalaryMax,
		URL:            raw.URL,
		Description:    raw.Description,
		DiscoveredAt:   i.now(),
		RelevanceScore: score,
		RecipientEmail: raw.RecipientEmail,
		State:          state,
	}
	if err := i.store.Insert(rec); err != nil {
		return fmt.Errorf("inserting %s: %w", key, err)
	}
	result.Inserted++

	i.logger.Debug("ingested new posting",
		"key", key,
		"score", score,
		"state", state,
	)
	return nil
}

func (i *Intake) refresh(existing *model.JobRecord, raw model.RawJob, score float64, result *model.IngestResult) error {
	updated := *existing
	updated.Company = raw.Company
	updated.Title = raw.Title
	updated.Location = raw.Location
	updated.Remote = raw.Remote
	updated.SalaryMin = raw.SalaryMin
	updated.SalaryMax = raw.SalaryMax
	updated.URL = raw.URL
	updated.Description = raw.Description
	updated.RelevanceScore = score
	updated.RecipientEmail = raw.RecipientEmail

	if err := i.store.UpdateAttributes(&updated); err != nil {
		return fmt.Errorf("refreshing %s: %w", existing.IdentityKey, err)
	}
	result.Updated++

	// A rescored discovered record may now clear the review bar.
	if existing.State == model.StateDiscovered && score >= i.reviewThreshold {
		if err := i.store.Transition(
			existing.IdentityKey, model.StateDiscovered, model.StatePendingReview,
			fmt.Sprintf("rescored to %.2f", score),
		); err != nil {
			return fmt.Errorf("promoting %s to review: %w", existing.IdentityKey, err)
		}
	}
	return nil
}

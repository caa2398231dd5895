package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/jmorrell2146/applyflow/internal/dispatch"
	"github.com/jmorrell2146/applyflow/internal/followup"
	"github.com/jmorrell2146/applyflow/internal/gate"
	"github.com/jmorrell2146/applyflow/internal/inbox"
	"github.com/jmorrell2146/applyflow/internal/intake"
	"github.com/jmorrell2146/applyflow/internal/model"
)

// Pipeline bundles the components one daemon cycle runs, in order:
// feed intake, optional auto review, optional dispatch of approved
// records, bounce scan, response scan, follow-up emission. Every step
// is idempotent, so an interrupted cycle loses nothing.
type Pipeline struct {
	Feeds      []model.Feed
	Intake     *intake.Intake
	Gate       *gate.Gate
	Dispatcher *dispatch.Dispatcher
	Bounces    *inbox.BounceMonitor
	Responses  *inbox.Classifier
	FollowUps  *followup.Scheduler

	Store model.RecordStore

	Lookback       time.Duration
	AutoReview     bool
	AutoThreshold  float64
	AutoDispatch   bool
	FollowUpMinAge time.Duration
	FollowUpMax    int

	Logger *slog.Logger
}

// RunOnce executes one full cycle. Individual step failures are logged
// and do not stop the rest of the cycle; scans retry on the next tick.
func (p *Pipeline) RunOnce(ctx context.Context) {
	for _, f := range p.Feeds {
		if ctx.Err() != nil {
			return
		}
		raws, err := f.Fetch(ctx)
		if err != nil {
			p.Logger.Error("feed fetch failed", "feed", f.Name(), "error", err)
			continue
		}
		if _, err := p.Intake.Ingest(ctx, raws); err != nil {
			p.Logger.Error("ingest failed", "feed", f.Name(), "error", err)
		}
	}

	if p.AutoReview {
		if _, err := p.Gate.AutoReview(p.AutoThreshold); err != nil {
			p.Logger.Error("auto review failed", "error", err)
		}
	}

	if p.AutoDispatch {
		p.dispatchApproved(ctx)
	}

	if _, err := p.Bounces.ScanBounces(ctx, p.Lookback); err != nil {
		p.Logger.Error("bounce scan failed", "error", err)
	}
	if _, err := p.Responses.ScanResponses(ctx, p.Lookback); err != nil {
		p.Logger.Error("response scan failed", "error", err)
	}

	keys, err := p.FollowUps.DueFollowUps(p.FollowUpMinAge, p.FollowUpMax)
	if err != nil {
		p.Logger.Error("follow-up selection failed", "error", err)
		return
	}
	for _, key := range keys {
		if ctx.Err() != nil {
			return
		}
		if err := p.Dispatcher.SendFollowUp(ctx, key); err != nil {
			p.Logger.Error("follow-up send failed", "key", key, "error", err)
		}
	}
}

// dispatchApproved sends every approved record with a known recipient.
// Records that are not ready stay approved for the operator.
func (p *Pipeline) dispatchApproved(ctx context.Context) {
	approved, err := p.Store.List(model.StateApproved)
	if err != nil {
		p.Logger.Error("listing approved records failed", "error", err)
		return
	}
	for _, rec := range approved {
		if ctx.Err() != nil {
			return
		}
		if rec.RecipientEmail == "" {
			continue
		}
		if _, err := p.Dispatcher.Dispatch(ctx, rec.IdentityKey); err != nil {
			p.Logger.Error("dispatch failed", "key", rec.IdentityKey, "error", err)
		}
	}
}

// Scheduler owns the main loop: ticks on an interval and runs the
// pipeline once per tick.
type Scheduler struct {
	pipeline *Pipeline
	interval time.Duration
	logger   *slog.Logger
}

// NewScheduler creates a scheduler that runs the pipeline at the given interval.
func NewScheduler(pipeline *Pipeline, interval time.Duration, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		pipeline: pipeline,
		interval: interval,
		logger:   logger,
	}
}

// Run starts the loop. It runs one immediate cycle, then ticks on the
// configured interval. It returns nil when ctx is cancelled (graceful shutdown).
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.Info("starting scheduler",
		"interval", s.interval.String(),
		"feeds", len(s.pipeline.Feeds),
	)

	// Run one immediate cycle.
	s.pipeline.RunOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("shutting down scheduler")
			return nil
		case <-time.After(s.interval):
			s.pipeline.RunOnce(ctx)
		}
	}
}

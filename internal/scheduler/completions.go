package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"dialer-platform/internal/calls"
	"dialer-platform/internal/capacity"
	"dialer-platform/internal/dialer"
	"dialer-platform/internal/pricing"
)

// Completions finalizes jobs from provider status events.
//
// Delivery is at-least-once and can arrive out of order, so every step is
// idempotent: the slot release is a delete that reports whether it
// removed anything, and finalize never rewrites a terminal call. A replay
// therefore changes nothing and answers success.
type Completions struct {
	ledger  capacity.Ledger
	calls   calls.Store
	pricing *pricing.Service

	wake  func()
	clock func() time.Time
	log   *slog.Logger
}

// CompletionsConfig wires the completion handler; Pricing may be nil when
// no rates are configured.
type CompletionsConfig struct {
	Ledger  capacity.Ledger
	Calls   calls.Store
	Pricing *pricing.Service
	Wake    func()
	Log     *slog.Logger
}

func NewCompletions(cfg CompletionsConfig) *Completions {
	wake := cfg.Wake
	if wake == nil {
		wake = func() {}
	}
	log := cfg.Log
	if log == nil {
		log = slog.Default()
	}
	return &Completions{
		ledger:  cfg.Ledger,
		calls:   cfg.Calls,
		pricing: cfg.Pricing,
		wake:    wake,
		clock:   time.Now,
		log:     log,
	}
}

// HandleOutcome records a terminal outcome, frees the job's slot exactly
// once, and wakes the processor when a slot actually freed. An error asks
// the provider to redeliver.
func (c *Completions) HandleOutcome(ctx context.Context, o dialer.Outcome) error {
	if o.JobID == "" {
		return fmt.Errorf("%w: job id required", ErrInvalidJob)
	}
	if !o.Status.Terminal() {
		return fmt.Errorf("%w: non-terminal status %q", ErrInvalidJob, o.Status)
	}

	released, err := c.ledger.Release(ctx, o.JobID)
	if err != nil {
		return fmt.Errorf("release slot: %w", err)
	}

	call, err := c.calls.Get(ctx, o.JobID)
	if err != nil {
		if errors.Is(err, calls.ErrNotFound) {
			// Nothing here knows this job: a forged callback or a replay
			// from before retention cleanup. The release above was a no-op
			// too, so acknowledging is safe.
			c.log.Warn("completion for unknown job", "job_id", o.JobID, "provider_call_id", o.ProviderCallID)
			return nil
		}
		return err
	}

	costMinor, currency := c.annotateCost(ctx, call.To, o)

	if err := c.calls.Finalize(ctx, o.JobID, o.Status, o.Reason, o.DurationSeconds, costMinor, currency); err != nil {
		return fmt.Errorf("finalize call: %w", err)
	}

	if released == nil {
		c.log.Info("completion with no held slot ignored", "job_id", o.JobID, "status", o.Status)
		return nil
	}

	c.log.Info("call finished",
		"job_id", o.JobID, "user_id", released.UserID, "status", o.Status,
		"duration_s", o.DurationSeconds, "cost_minor", costMinor)
	c.wake()
	return nil
}

// annotateCost prices completed talk time. Best-effort: a missing rate
// must never block the finalize.
func (c *Completions) annotateCost(ctx context.Context, destination string, o dialer.Outcome) (int64, string) {
	if c.pricing == nil || o.Status != calls.CallStatusCompleted || o.DurationSeconds <= 0 {
		return 0, ""
	}
	cost, err := c.pricing.CalculateCallCost(ctx, pricing.CallCostRequest{
		Destination:     destination,
		DurationSeconds: o.DurationSeconds,
		At:              c.clock().UTC(),
	})
	if err != nil {
		if !errors.Is(err, pricing.ErrPricingNotFound) {
			c.log.Warn("cost annotation failed", "job_id", o.JobID, "err", err)
		}
		return 0, ""
	}
	return cost.TotalMinor, cost.Currency
}

package capacity

import (
	"context"
	"log/slog"
	"time"

	"dialer-platform/pkg/utils"

	"github.com/redis/go-redis/v9"
)

// sweepGuardKey is the cross-replica single-flight lock for the sweep.
const sweepGuardKey = "capacity:sweep:guard"

// AuditSink records reclaimed slots for later review. Implemented by the
// audit service; nil disables auditing.
type AuditSink interface {
	StaleReleased(ctx context.Context, r Reservation, cutoff time.Time)
}

type SweeperConfig struct {
	// Interval between sweep attempts.
	Interval time.Duration

	// StaleAfter is how old a reservation must be before it is presumed
	// leaked. Must exceed the longest legitimate call.
	StaleAfter time.Duration

	// GuardTTL bounds how long a crashed replica can hold the sweep guard.
	GuardTTL time.Duration
}

func (c SweeperConfig) withDefaults() SweeperConfig {
	out := c
	if out.Interval <= 0 {
		out.Interval = 5 * time.Minute
	}
	if out.StaleAfter <= 0 {
		out.StaleAfter = 2 * time.Hour
	}
	if out.GuardTTL <= 0 {
		out.GuardTTL = 30 * time.Second
	}
	return out
}

// Sweeper reclaims reservations whose completion notification never
// arrived (provider outage, lost webhook). Without it a leaked slot would
// hold capacity forever and starve the queue.
type Sweeper struct {
	ledger Ledger
	rdb    *redis.Client // optional; guards against concurrent replica sweeps
	audit  AuditSink     // optional
	wake   func()        // optional processor nudge after reclaiming
	log    *slog.Logger
	cfg    SweeperConfig
	clock  func() time.Time
}

func NewSweeper(ledger Ledger, rdb *redis.Client, audit AuditSink, wake func(), log *slog.Logger, cfg SweeperConfig) *Sweeper {
	return &Sweeper{
		ledger: ledger,
		rdb:    rdb,
		audit:  audit,
		wake:   wake,
		log:    log,
		cfg:    cfg.withDefaults(),
		clock:  time.Now,
	}
}

// Run sweeps on an interval until ctx is canceled.
func (s *Sweeper) Run(ctx context.Context) {
	t := time.NewTicker(s.cfg.Interval)
	defer t.Stop()

	s.log.Info("capacity sweeper started",
		"interval", s.cfg.Interval.String(),
		"stale_after", s.cfg.StaleAfter.String(),
	)
	for {
		select {
		case <-ctx.Done():
			s.log.Info("capacity sweeper stopped")
			return
		case <-t.C:
			s.sweep(ctx)
		}
	}
}

func (s *Sweeper) sweep(ctx context.Context) {
	release := func() {}
	if s.rdb != nil {
		ok, err := utils.AcquireConcurrencyCap(ctx, s.rdb, sweepGuardKey, 1, s.cfg.GuardTTL)
		switch {
		case err != nil:
			// Double sweeps are harmless (the delete is atomic), so a
			// broken guard degrades to unguarded rather than no sweeps.
			s.log.Warn("sweep guard unavailable, sweeping unguarded", "error", err)
		case !ok:
			return
		default:
			release = func() { _ = utils.ReleaseConcurrencyCap(ctx, s.rdb, sweepGuardKey) }
		}
	}
	defer release()

	cutoff := s.clock().UTC().Add(-s.cfg.StaleAfter)
	reclaimed, err := s.ledger.ReleaseStale(ctx, cutoff)
	if err != nil {
		s.log.Error("stale reservation sweep failed", "error", err)
		return
	}
	if len(reclaimed) == 0 {
		return
	}

	for _, r := range reclaimed {
		s.log.Warn("released stale reservation",
			"job_id", r.JobID,
			"user_id", r.UserID,
			"job_kind", r.Kind,
			"reserved_at", r.ReservedAt,
		)
		if s.audit != nil {
			s.audit.StaleReleased(ctx, r, cutoff)
		}
	}
	if s.wake != nil {
		s.wake()
	}
}

package scheduler

import (
	"context"
	"log/slog"
	"time"

	"dialer-platform/internal/capacity"
	"dialer-platform/internal/queue"
)

// staleDispatchAfter bounds how long a queue row may sit in dispatching.
// A promotion takes milliseconds; a row older than this belonged to a
// processor that died mid-promotion and goes back to queued.
const staleDispatchAfter = time.Minute

// Processor drains the queue into free capacity. It runs on an interval
// and wakes early when a completion, a failed dispatch, or a stale sweep
// frees a slot.
//
// One tick pops eligible jobs oldest-first (direct before campaign) and
// promotes each atomically. A job that loses the promotion race to a
// direct submit or another replica keeps its queue place; its user sits
// out the rest of the tick so the backlog behind other users still moves.
type Processor struct {
	queue      queue.Store
	ledger     capacity.Ledger
	limits     capacity.LimitStore
	promoter   Promoter
	dispatcher JobDispatcher

	userDefault int
	interval    time.Duration
	wakeC       <-chan struct{}
	clock       func() time.Time
	log         *slog.Logger
}

// ProcessorConfig wires the processor.
type ProcessorConfig struct {
	Queue      queue.Store
	Ledger     capacity.Ledger
	Limits     capacity.LimitStore
	Promoter   Promoter
	Dispatcher JobDispatcher

	// UserDefault is the per-user cap fallback passed into the pop
	// statement's headroom check.
	UserDefault int

	// Interval is the polling fallback; wakes usually arrive sooner.
	Interval time.Duration

	// Wake delivers early nudges; nil means interval-only.
	Wake <-chan struct{}

	Log *slog.Logger
}

func NewProcessor(cfg ProcessorConfig) *Processor {
	interval := cfg.Interval
	if interval <= 0 {
		interval = 3 * time.Second
	}
	log := cfg.Log
	if log == nil {
		log = slog.Default()
	}
	return &Processor{
		queue:       cfg.Queue,
		ledger:      cfg.Ledger,
		limits:      cfg.Limits,
		promoter:    cfg.Promoter,
		dispatcher:  cfg.Dispatcher,
		userDefault: cfg.UserDefault,
		interval:    interval,
		wakeC:       cfg.Wake,
		clock:       time.Now,
		log:         log,
	}
}

// Run ticks until ctx is canceled. Errors inside a tick are logged and
// retried next tick; the loop itself never stops early.
func (p *Processor) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.log.Info("queue processor started", "interval", p.interval)
	for {
		select {
		case <-ctx.Done():
			p.log.Info("queue processor stopped")
			return
		case <-ticker.C:
		case <-p.wakeC:
		}
		p.runTick(ctx)
	}
}

func (p *Processor) runTick(ctx context.Context) {
	// Recover rows a dead processor left mid-promotion before popping, so
	// they compete in this tick at their original place.
	if n, err := p.queue.RequeueStale(ctx, p.clock().UTC().Add(-staleDispatchAfter)); err != nil {
		p.log.Error("requeue stale rows failed", "err", err)
	} else if n > 0 {
		p.log.Warn("requeued rows stuck mid-promotion", "count", n)
	}

	var excluded []string
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		systemLimit, err := p.limits.SystemLimit(ctx)
		if err != nil {
			p.log.Error("read system limit failed", "err", err)
			return
		}
		systemActive, _, err := p.ledger.ActiveCounts(ctx, "")
		if err != nil {
			p.log.Error("read active counts failed", "err", err)
			return
		}
		if systemActive >= systemLimit {
			return
		}

		item, err := p.queue.PopNextEligible(ctx, queue.PopRequest{
			PerUserDefault: p.userDefault,
			ExcludeUsers:   excluded,
		})
		if err != nil {
			p.log.Error("pop next eligible failed", "err", err)
			return
		}
		if item == nil {
			return
		}

		decision, err := p.promoter.Promote(ctx, *item)
		if err != nil {
			p.log.Error("promote failed", "job_id", item.ID, "err", err)
			p.requeue(ctx, item.ID)
			return
		}
		if !decision.Granted {
			// Lost the slot to a direct submit or another replica between
			// pop and reserve. The job keeps its place; its user sits out
			// the rest of this tick.
			p.requeue(ctx, item.ID)
			if decision.Reason == capacity.DenySystemFull {
				return
			}
			excluded = append(excluded, item.UserID)
			continue
		}

		p.log.Info("queued job promoted",
			"job_id", item.ID, "user_id", item.UserID, "kind", item.Kind,
			"system_active", decision.SystemActive, "system_limit", decision.SystemLimit)
		p.dispatcher.Dispatch(DispatchJob{
			JobID:       item.ID,
			UserID:      item.UserID,
			Kind:        item.Kind,
			AgentID:     item.AgentID,
			Destination: item.Destination,
		})
	}
}

func (p *Processor) requeue(ctx context.Context, id string) {
	if err := p.queue.Requeue(ctx, id); err != nil {
		// The stale-dispatch recovery picks the row up next tick.
		p.log.Error("requeue failed", "job_id", id, "err", err)
	}
}

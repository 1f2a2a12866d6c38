package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"dialer-platform/internal/calls"
	"dialer-platform/internal/capacity"
	"dialer-platform/internal/dialer"

	"golang.org/x/time/rate"
)

// Dispatcher hands admitted jobs to the provider, one goroutine per job,
// so admission never waits on a provider round trip.
//
// Failure contract: a dispatch that never reached the provider releases
// its slot and finalizes the call as failed. There is no automatic retry;
// the caller sees the failure on the call record and may resubmit.
type Dispatcher struct {
	provider dialer.Provider
	ledger   capacity.Ledger
	calls    calls.Store

	// limiter paces provider requests so a burst of freed capacity does
	// not stampede its API. Nil means unpaced.
	limiter *rate.Limiter
	timeout time.Duration

	wake func()
	log  *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// DispatcherConfig wires the dispatcher.
type DispatcherConfig struct {
	Provider dialer.Provider
	Ledger   capacity.Ledger
	Calls    calls.Store

	// Rate and Burst pace dispatches; zero Rate disables pacing.
	Rate  float64
	Burst int

	// Timeout bounds one provider call-initiate request.
	Timeout time.Duration

	Wake func()
	Log  *slog.Logger
}

func NewDispatcher(cfg DispatcherConfig) *Dispatcher {
	var limiter *rate.Limiter
	if cfg.Rate > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.Rate), burst)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	wake := cfg.Wake
	if wake == nil {
		wake = func() {}
	}
	log := cfg.Log
	if log == nil {
		log = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Dispatcher{
		provider: cfg.Provider,
		ledger:   cfg.Ledger,
		calls:    cfg.Calls,
		limiter:  limiter,
		timeout:  timeout,
		wake:     wake,
		log:      log,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Dispatch never blocks; the provider call runs on its own goroutine.
func (d *Dispatcher) Dispatch(job DispatchJob) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.run(job)
	}()
}

func (d *Dispatcher) run(job DispatchJob) {
	if d.limiter != nil {
		if err := d.limiter.Wait(d.ctx); err != nil {
			d.fail(job, fmt.Errorf("dispatch canceled while pacing: %w", err))
			return
		}
	}

	ctx, cancel := context.WithTimeout(d.ctx, d.timeout)
	defer cancel()

	res, err := d.provider.Dispatch(ctx, dialer.DispatchRequest{
		JobID:       job.JobID,
		AgentID:     job.AgentID,
		Destination: job.Destination,
	})
	if err != nil {
		d.fail(job, err)
		return
	}

	if err := d.calls.MarkRinging(ctx, job.JobID, res.ProviderCallID); err != nil {
		// The call is live either way; the webhook finalize works from any
		// non-terminal status, so a missed ringing mark self-heals.
		d.log.Warn("mark ringing failed", "job_id", job.JobID, "err", err)
	}
	d.log.Info("call dispatched",
		"job_id", job.JobID, "user_id", job.UserID, "provider", d.provider.Name(),
		"provider_call_id", res.ProviderCallID)
}

// fail cleans up after a dispatch that never reached the provider.
// Cleanup runs on a fresh context: a canceled dispatch must still release
// its slot.
func (d *Dispatcher) fail(job DispatchJob, dispatchErr error) {
	d.log.Error("dispatch failed", "job_id", job.JobID, "user_id", job.UserID, "err", dispatchErr)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := d.ledger.Release(ctx, job.JobID); err != nil {
		// The slot stays held until the stale sweep reclaims it.
		d.log.Error("release after failed dispatch failed", "job_id", job.JobID, "err", err)
	}
	if err := d.calls.Finalize(ctx, job.JobID, calls.CallStatusFailed, dispatchErr.Error(), 0, 0, ""); err != nil {
		d.log.Error("finalize after failed dispatch failed", "job_id", job.JobID, "err", err)
	}
	d.wake()
}

// Drain waits up to timeout for in-flight dispatches to finish and
// reports whether they all did.
func (d *Dispatcher) Drain(timeout time.Duration) bool {
	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return true
	case <-time.After(timeout):
		return false
	}
}

// Shutdown cancels in-flight dispatches and waits up to timeout for their
// goroutines to exit.
func (d *Dispatcher) Shutdown(timeout time.Duration) {
	d.cancel()
	if !d.Drain(timeout) {
		d.log.Error("dispatcher shutdown timed out", "timeout", timeout)
	}
}

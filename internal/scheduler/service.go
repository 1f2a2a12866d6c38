package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"dialer-platform/internal/billing"
	"dialer-platform/internal/calls"
	"dialer-platform/internal/capacity"
	"dialer-platform/internal/dialer"
	"dialer-platform/internal/queue"

	"github.com/google/uuid"
)

// JobDispatcher hands admitted jobs to the provider without blocking the
// caller. The concrete Dispatcher runs a goroutine per job; tests plug in
// a synchronous fake.
type JobDispatcher interface {
	Dispatch(job DispatchJob)
}

// Service is the admission front door: every call request passes through
// Submit exactly once, and the answer is always admitted or queued.
//
// Admission order:
//  1. validate (malformed jobs are rejected, never queued)
//  2. credit gate
//  3. reserve a slot; granted jobs dispatch, denied jobs join the queue
type Service struct {
	ledger     capacity.Ledger
	limits     capacity.LimitStore
	queue      queue.Store
	calls      calls.Store
	gate       billing.Gate
	provider   dialer.Provider
	dispatcher JobDispatcher

	// fromNumber is the caller id stamped on every call row.
	fromNumber string

	wake  func()
	clock func() time.Time
	newID func() string
	log   *slog.Logger
}

// ServiceConfig wires the service's collaborators.
type ServiceConfig struct {
	Ledger     capacity.Ledger
	Limits     capacity.LimitStore
	Queue      queue.Store
	Calls      calls.Store
	Gate       billing.Gate
	Provider   dialer.Provider
	Dispatcher JobDispatcher
	FromNumber string
	Wake       func()
	Log        *slog.Logger
}

func NewService(cfg ServiceConfig) *Service {
	wake := cfg.Wake
	if wake == nil {
		wake = func() {}
	}
	log := cfg.Log
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		ledger:     cfg.Ledger,
		limits:     cfg.Limits,
		queue:      cfg.Queue,
		calls:      cfg.Calls,
		gate:       cfg.Gate,
		provider:   cfg.Provider,
		dispatcher: cfg.Dispatcher,
		fromNumber: cfg.FromNumber,
		wake:       wake,
		clock:      time.Now,
		newID:      uuid.NewString,
		log:        log,
	}
}

// Submit accepts one job. A granted slot dispatches immediately; a full
// user or system answers queued with a position, never an error.
func (s *Service) Submit(ctx context.Context, req SubmitRequest) (Submission, error) {
	if err := validateSubmit(req); err != nil {
		return Submission{}, err
	}
	if err := s.gate.Approve(ctx, req.UserID, req.Destination); err != nil {
		return Submission{}, err
	}

	jobID := s.newID()
	now := s.clock().UTC()

	decision, err := s.ledger.TryReserve(ctx, capacity.Reservation{
		JobID:      jobID,
		UserID:     req.UserID,
		Kind:       string(req.Kind),
		ReservedAt: now,
	})
	if err != nil {
		return Submission{}, fmt.Errorf("reserve slot: %w", err)
	}

	if decision.Granted {
		if err := s.calls.Create(ctx, s.newCall(jobID, req, now)); err != nil {
			// A slot with no durable record would leak; free it before failing.
			if _, rerr := s.ledger.Release(ctx, jobID); rerr != nil {
				s.log.Error("release after failed call create failed", "job_id", jobID, "err", rerr)
			}
			return Submission{}, fmt.Errorf("create call record: %w", err)
		}
		s.dispatcher.Dispatch(DispatchJob{
			JobID:       jobID,
			UserID:      req.UserID,
			Kind:        req.Kind,
			AgentID:     req.AgentID,
			Destination: req.Destination,
		})
		s.log.Info("job admitted",
			"job_id", jobID, "user_id", req.UserID, "kind", req.Kind,
			"system_active", decision.SystemActive, "user_active", decision.UserActive)
		return Submission{JobID: jobID, Disposition: DispositionAdmitted}, nil
	}

	item, err := s.queue.Enqueue(ctx, queue.Item{
		ID:          jobID,
		UserID:      req.UserID,
		Kind:        req.Kind,
		AgentID:     req.AgentID,
		Destination: req.Destination,
		CampaignID:  req.CampaignID,
		EnqueuedAt:  now,
	})
	if err != nil {
		return Submission{}, fmt.Errorf("enqueue job: %w", err)
	}
	if err := s.calls.Create(ctx, s.newCall(jobID, req, now)); err != nil {
		if _, rerr := s.queue.CancelQueued(ctx, jobID, req.UserID); rerr != nil {
			s.log.Error("remove queue row after failed call create failed", "job_id", jobID, "err", rerr)
		}
		return Submission{}, fmt.Errorf("create call record: %w", err)
	}

	pos, err := s.queue.Position(ctx, item.ID)
	if err != nil {
		// Position is advisory; the job is safely queued regardless.
		s.log.Warn("queue position lookup failed", "job_id", jobID, "err", err)
		pos = 0
	}
	s.log.Info("job queued",
		"job_id", jobID, "user_id", req.UserID, "kind", req.Kind,
		"reason", decision.Reason, "position", pos)
	return Submission{
		JobID:         jobID,
		Disposition:   DispositionQueued,
		Reason:        string(decision.Reason),
		Position:      pos,
		EstimatedWait: estimateWait(pos, decision.SystemLimit),
	}, nil
}

// Status reports the user's running calls and backlog.
func (s *Service) Status(ctx context.Context, userID string) (UserStatus, error) {
	if userID == "" {
		return UserStatus{}, fmt.Errorf("%w: user id required", ErrInvalidJob)
	}

	_, active, err := s.ledger.ActiveCounts(ctx, userID)
	if err != nil {
		return UserStatus{}, err
	}
	limit, err := s.limits.ResolveUserLimit(ctx, userID)
	if err != nil {
		return UserStatus{}, err
	}
	counts, err := s.queue.CountsForUser(ctx, userID)
	if err != nil {
		return UserStatus{}, err
	}

	st := UserStatus{
		UserID:         userID,
		ActiveCalls:    active,
		ActiveLimit:    limit,
		QueuedDirect:   counts.QueuedDirect,
		QueuedCampaign: counts.QueuedCampaign,
	}
	first, err := s.queue.FirstQueuedForUser(ctx, userID)
	if err != nil {
		return UserStatus{}, err
	}
	if first != nil {
		pos, err := s.queue.Position(ctx, first.ID)
		if err == nil {
			st.NextPosition = pos
		}
	}
	return st, nil
}

// Cancel withdraws a job. Queued jobs leave the queue; active calls get a
// provider hangup and keep their slot until the webhook confirms; a job
// mid-promotion answers ErrNotCancelable.
func (s *Service) Cancel(ctx context.Context, userID, jobID string) (CancelResult, error) {
	if userID == "" || jobID == "" {
		return CancelResult{}, fmt.Errorf("%w: user id and job id required", ErrInvalidJob)
	}

	removed, err := s.queue.CancelQueued(ctx, jobID, userID)
	if err != nil {
		return CancelResult{}, err
	}
	if removed {
		if err := s.calls.MarkCanceled(ctx, jobID, "canceled by user"); err != nil {
			// The queue row is gone, which is the binding part; the call row
			// catches up on the next attempt or stays queued as a tombstone.
			s.log.Warn("mark canceled failed", "job_id", jobID, "err", err)
		}
		s.log.Info("queued job canceled", "job_id", jobID, "user_id", userID)
		return CancelResult{JobID: jobID, Removed: true}, nil
	}

	call, err := s.calls.Get(ctx, jobID)
	if err != nil {
		return CancelResult{}, err
	}
	if call.UserID != userID {
		// Not the owner; indistinguishable from absent on purpose.
		return CancelResult{}, calls.ErrNotFound
	}

	switch {
	case call.Status.Terminal():
		return CancelResult{}, ErrAlreadyFinished
	case call.ProviderCallID == "":
		// Between pop and provider accept there is nothing to hang up yet.
		return CancelResult{}, ErrNotCancelable
	default:
		if err := s.provider.Hangup(ctx, call.ProviderCallID); err != nil {
			return CancelResult{}, fmt.Errorf("provider hangup: %w", err)
		}
		s.log.Info("hangup requested", "job_id", jobID, "user_id", userID, "provider_call_id", call.ProviderCallID)
		return CancelResult{JobID: jobID, HangupRequested: true}, nil
	}
}

func (s *Service) newCall(jobID string, req SubmitRequest, now time.Time) calls.Call {
	return calls.Call{
		ID:         jobID,
		UserID:     req.UserID,
		CampaignID: req.CampaignID,
		AgentID:    req.AgentID,
		Kind:       string(req.Kind),
		From:       s.fromNumber,
		To:         req.Destination,
		Status:     calls.CallStatusQueued,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

func validateSubmit(req SubmitRequest) error {
	if req.UserID == "" {
		return fmt.Errorf("%w: user id required", ErrInvalidJob)
	}
	if !req.Kind.Valid() {
		return fmt.Errorf("%w: kind must be direct or campaign", ErrInvalidJob)
	}
	if req.AgentID == "" {
		return fmt.Errorf("%w: agent id required", ErrInvalidJob)
	}
	if !dialer.ValidDestination(req.Destination) {
		return fmt.Errorf("%w: destination must be E.164", ErrInvalidJob)
	}
	if req.Kind == queue.KindCampaign && req.CampaignID == "" {
		return fmt.Errorf("%w: campaign id required for campaign jobs", ErrInvalidJob)
	}
	return nil
}

// nominalSlotTurnover is the assumed time for one active call to finish.
// Wait estimates are a progress hint, not a promise.
const nominalSlotTurnover = time.Minute

func estimateWait(position, systemLimit int) time.Duration {
	if position <= 0 {
		return 0
	}
	if systemLimit <= 0 {
		systemLimit = 1
	}
	rounds := (position + systemLimit - 1) / systemLimit
	return time.Duration(rounds) * nominalSlotTurnover
}

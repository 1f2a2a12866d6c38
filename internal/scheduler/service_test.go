package scheduler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"dialer-platform/internal/billing"
	"dialer-platform/internal/calls"
	"dialer-platform/internal/capacity"
	"dialer-platform/internal/dialer"
	"dialer-platform/internal/pricing"
	"dialer-platform/internal/queue"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeProvider struct {
	mu          sync.Mutex
	dispatched  []dialer.DispatchRequest
	hangups     []string
	dispatchErr error
	nextSid     int
}

func (f *fakeProvider) Name() string                          { return "fake" }
func (f *fakeProvider) HealthCheck(ctx context.Context) error { return nil }

func (f *fakeProvider) Dispatch(ctx context.Context, req dialer.DispatchRequest) (dialer.DispatchResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.dispatchErr != nil {
		return dialer.DispatchResult{}, f.dispatchErr
	}
	f.nextSid++
	f.dispatched = append(f.dispatched, req)
	return dialer.DispatchResult{ProviderCallID: fmt.Sprintf("CA%03d", f.nextSid)}, nil
}

func (f *fakeProvider) Hangup(ctx context.Context, providerCallID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.hangups = append(f.hangups, providerCallID)
	return nil
}

func (f *fakeProvider) dispatchCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.dispatched)
}

type env struct {
	ledger      *capacity.MemoryLedger
	limits      *capacity.MemoryLimits
	backlog     *queue.MemoryStore
	calls       *calls.MemoryStore
	provider    *fakeProvider
	dispatcher  *Dispatcher
	svc         *Service
	completions *Completions
	processor   *Processor
	waker       *Waker
	wakes       *atomic.Int32
}

func newEnv(t *testing.T, systemLimit, userDefault int) *env {
	t.Helper()

	ledger := capacity.NewMemoryLedger(systemLimit, userDefault)
	limits := capacity.NewMemoryLimits(systemLimit, userDefault)
	if err := limits.EnsureSystemRow(context.Background()); err != nil {
		t.Fatalf("seed system limit: %v", err)
	}
	backlog := queue.NewMemoryStore(ledger.HasUserHeadroom)
	callStore := calls.NewMemoryStore()
	provider := &fakeProvider{}
	waker := NewWaker(nil, discardLogger())

	var wakes atomic.Int32
	wake := func() {
		wakes.Add(1)
		waker.Wake()
	}

	dispatcher := NewDispatcher(DispatcherConfig{
		Provider: provider,
		Ledger:   ledger,
		Calls:    callStore,
		Timeout:  time.Second,
		Wake:     wake,
		Log:      discardLogger(),
	})
	svc := NewService(ServiceConfig{
		Ledger:     ledger,
		Limits:     limits,
		Queue:      backlog,
		Calls:      callStore,
		Gate:       billing.AllowAllGate{},
		Provider:   provider,
		Dispatcher: dispatcher,
		FromNumber: "+15550001111",
		Wake:       wake,
		Log:        discardLogger(),
	})
	completions := NewCompletions(CompletionsConfig{
		Ledger: ledger,
		Calls:  callStore,
		Wake:   wake,
		Log:    discardLogger(),
	})
	processor := NewProcessor(ProcessorConfig{
		Queue:       backlog,
		Ledger:      ledger,
		Limits:      limits,
		Promoter:    &MemoryPromoter{Ledger: ledger, Store: backlog},
		Dispatcher:  dispatcher,
		UserDefault: userDefault,
		Interval:    time.Hour,
		Wake:        waker.C(),
		Log:         discardLogger(),
	})

	return &env{
		ledger:      ledger,
		limits:      limits,
		backlog:     backlog,
		calls:       callStore,
		provider:    provider,
		dispatcher:  dispatcher,
		svc:         svc,
		completions: completions,
		processor:   processor,
		waker:       waker,
		wakes:       &wakes,
	}
}

func (e *env) drain(t *testing.T) {
	t.Helper()
	if !e.dispatcher.Drain(2 * time.Second) {
		t.Fatalf("dispatches did not finish in time")
	}
}

func directReq(userID, destination string) SubmitRequest {
	return SubmitRequest{UserID: userID, Kind: queue.KindDirect, AgentID: "agent-1", Destination: destination}
}

func campaignReq(userID, destination, campaignID string) SubmitRequest {
	return SubmitRequest{UserID: userID, Kind: queue.KindCampaign, AgentID: "agent-1", Destination: destination, CampaignID: campaignID}
}

func mustSubmit(t *testing.T, e *env, req SubmitRequest) Submission {
	t.Helper()
	sub, err := e.svc.Submit(context.Background(), req)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	return sub
}

func completedOutcome(jobID string, duration int) dialer.Outcome {
	return dialer.Outcome{JobID: jobID, ProviderCallID: "CA000", Status: calls.CallStatusCompleted, DurationSeconds: duration}
}

func TestSubmit_UserCapAdmitsTwoQueuesThird(t *testing.T) {
	e := newEnv(t, 10, 2)
	ctx := context.Background()

	subs := make([]Submission, 3)
	for i := range subs {
		subs[i] = mustSubmit(t, e, directReq("u1", fmt.Sprintf("+1555000%04d", i+1)))
	}
	e.drain(t)

	if subs[0].Disposition != DispositionAdmitted || subs[1].Disposition != DispositionAdmitted {
		t.Fatalf("expected first two admitted, got %v %v", subs[0].Disposition, subs[1].Disposition)
	}
	if subs[2].Disposition != DispositionQueued {
		t.Fatalf("expected third queued, got %v", subs[2].Disposition)
	}
	if subs[2].Reason != string(capacity.DenyUserFull) {
		t.Fatalf("expected user_full, got %q", subs[2].Reason)
	}
	if subs[2].Position != 1 {
		t.Fatalf("expected position 1, got %d", subs[2].Position)
	}
	if e.provider.dispatchCount() != 2 {
		t.Fatalf("expected 2 dispatches, got %d", e.provider.dispatchCount())
	}

	// Completing one call frees the slot and wakes the processor; the next
	// tick admits the queued job.
	if err := e.completions.HandleOutcome(ctx, completedOutcome(subs[0].JobID, 30)); err != nil {
		t.Fatalf("handle outcome: %v", err)
	}
	select {
	case <-e.waker.C():
	default:
		t.Fatalf("expected a wake after completion")
	}
	e.processor.runTick(ctx)
	e.drain(t)

	st, err := e.svc.Status(ctx, "u1")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if st.ActiveCalls != 2 || st.QueuedDirect != 0 {
		t.Fatalf("expected queued job admitted, got %+v", st)
	}
	promoted, err := e.calls.Get(ctx, subs[2].JobID)
	if err != nil {
		t.Fatalf("get call: %v", err)
	}
	if promoted.Status != calls.CallStatusRinging {
		t.Fatalf("expected promoted call ringing, got %q", promoted.Status)
	}
}

func TestSubmit_InvalidJobsRejected(t *testing.T) {
	e := newEnv(t, 5, 2)
	ctx := context.Background()

	cases := []SubmitRequest{
		{UserID: "", Kind: queue.KindDirect, AgentID: "a", Destination: "+15550001111"},
		{UserID: "u1", Kind: "bulk", AgentID: "a", Destination: "+15550001111"},
		{UserID: "u1", Kind: queue.KindDirect, AgentID: "", Destination: "+15550001111"},
		{UserID: "u1", Kind: queue.KindDirect, AgentID: "a", Destination: "555-1234"},
		{UserID: "u1", Kind: queue.KindCampaign, AgentID: "a", Destination: "+15550001111"},
	}
	for i, req := range cases {
		if _, err := e.svc.Submit(ctx, req); !errors.Is(err, ErrInvalidJob) {
			t.Fatalf("case %d: expected ErrInvalidJob, got %v", i, err)
		}
	}

	// Rejected jobs must not hold capacity or queue space.
	system, _, err := e.ledger.ActiveCounts(ctx, "")
	if err != nil {
		t.Fatalf("active counts: %v", err)
	}
	if system != 0 {
		t.Fatalf("expected no reservations, got %d", system)
	}
}

func TestSubmit_InsufficientCreditBlocksBeforeCapacity(t *testing.T) {
	e := newEnv(t, 5, 2)
	ctx := context.Background()

	rate := pricing.MinutePricing{
		DestinationPrefix:       "+1",
		Currency:                "USD",
		RatePerMinuteMinor:      100,
		BillingIncrementSeconds: 60,
		Status:                  pricing.PricingStatusActive,
		EffectiveFrom:           time.Now().UTC().Add(-time.Hour),
	}
	gate := billing.NewWalletGate(billing.NewMemoryBalances(), pricing.NewService(&pricing.MemoryRepo{Minute: []pricing.MinutePricing{rate}}))
	e.svc.gate = gate

	_, err := e.svc.Submit(ctx, directReq("u1", "+15550001111"))
	if !errors.Is(err, billing.ErrInsufficientCredit) {
		t.Fatalf("expected ErrInsufficientCredit, got %v", err)
	}

	system, _, err := e.ledger.ActiveCounts(ctx, "")
	if err != nil {
		t.Fatalf("active counts: %v", err)
	}
	if system != 0 {
		t.Fatalf("expected no reservation for denied job, got %d", system)
	}
}

func TestStatus_ReportsBacklogAndNextPosition(t *testing.T) {
	e := newEnv(t, 1, 1)
	ctx := context.Background()

	blocker := mustSubmit(t, e, directReq("u0", "+15550000001"))
	if blocker.Disposition != DispositionAdmitted {
		t.Fatalf("expected blocker admitted")
	}
	e.drain(t)

	queued := mustSubmit(t, e, directReq("u1", "+15550000002"))
	if queued.Disposition != DispositionQueued {
		t.Fatalf("expected queued, got %v", queued.Disposition)
	}

	st, err := e.svc.Status(ctx, "u1")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if st.ActiveCalls != 0 || st.ActiveLimit != 1 {
		t.Fatalf("unexpected active view: %+v", st)
	}
	if st.QueuedDirect != 1 || st.NextPosition != 1 {
		t.Fatalf("unexpected backlog view: %+v", st)
	}
}

func TestCancel_QueuedJobRemoved(t *testing.T) {
	e := newEnv(t, 1, 1)
	ctx := context.Background()

	mustSubmit(t, e, directReq("u1", "+15550000001"))
	queued := mustSubmit(t, e, directReq("u1", "+15550000002"))
	e.drain(t)
	if queued.Disposition != DispositionQueued {
		t.Fatalf("expected second job queued")
	}

	res, err := e.svc.Cancel(ctx, "u1", queued.JobID)
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if !res.Removed || res.HangupRequested {
		t.Fatalf("expected queue removal, got %+v", res)
	}

	if _, err := e.backlog.Get(ctx, queued.JobID); !errors.Is(err, queue.ErrNotFound) {
		t.Fatalf("expected queue row gone, got %v", err)
	}
	call, err := e.calls.Get(ctx, queued.JobID)
	if err != nil {
		t.Fatalf("get call: %v", err)
	}
	if call.Status != calls.CallStatusCanceled {
		t.Fatalf("expected canceled, got %q", call.Status)
	}

	// Canceling a queued job frees no slot.
	system, _, err := e.ledger.ActiveCounts(ctx, "")
	if err != nil {
		t.Fatalf("active counts: %v", err)
	}
	if system != 1 {
		t.Fatalf("expected blocker still active, got %d", system)
	}
}

func TestCancel_ActiveCallHangsUpSlotFreesOnWebhook(t *testing.T) {
	e := newEnv(t, 5, 5)
	ctx := context.Background()

	sub := mustSubmit(t, e, directReq("u1", "+15550000001"))
	e.drain(t)

	call, err := e.calls.Get(ctx, sub.JobID)
	if err != nil {
		t.Fatalf("get call: %v", err)
	}
	if call.Status != calls.CallStatusRinging || call.ProviderCallID == "" {
		t.Fatalf("expected ringing call with provider id, got %+v", call)
	}

	res, err := e.svc.Cancel(ctx, "u1", sub.JobID)
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if !res.HangupRequested || res.Removed {
		t.Fatalf("expected hangup, got %+v", res)
	}
	if len(e.provider.hangups) != 1 || e.provider.hangups[0] != call.ProviderCallID {
		t.Fatalf("expected hangup for %q, got %v", call.ProviderCallID, e.provider.hangups)
	}

	// The slot stays held until the provider confirms on the webhook.
	system, _, err := e.ledger.ActiveCounts(ctx, "")
	if err != nil {
		t.Fatalf("active counts: %v", err)
	}
	if system != 1 {
		t.Fatalf("expected slot still held, got %d", system)
	}

	if err := e.completions.HandleOutcome(ctx, completedOutcome(sub.JobID, 5)); err != nil {
		t.Fatalf("handle outcome: %v", err)
	}
	system, _, err = e.ledger.ActiveCounts(ctx, "")
	if err != nil {
		t.Fatalf("active counts: %v", err)
	}
	if system != 0 {
		t.Fatalf("expected slot freed after webhook, got %d", system)
	}
}

func TestCancel_DispatchingWindowNotCancelable(t *testing.T) {
	e := newEnv(t, 5, 5)
	ctx := context.Background()

	// A call row with no queue row and no provider id is a job caught
	// mid-promotion.
	if err := e.calls.Create(ctx, calls.Call{ID: "j1", UserID: "u1", AgentID: "a", Kind: "direct", To: "+15550000001", Status: calls.CallStatusQueued}); err != nil {
		t.Fatalf("create call: %v", err)
	}

	if _, err := e.svc.Cancel(ctx, "u1", "j1"); !errors.Is(err, ErrNotCancelable) {
		t.Fatalf("expected ErrNotCancelable, got %v", err)
	}
}

func TestCancel_FinishedJobRejected(t *testing.T) {
	e := newEnv(t, 5, 5)
	ctx := context.Background()

	sub := mustSubmit(t, e, directReq("u1", "+15550000001"))
	e.drain(t)
	if err := e.completions.HandleOutcome(ctx, completedOutcome(sub.JobID, 10)); err != nil {
		t.Fatalf("handle outcome: %v", err)
	}

	if _, err := e.svc.Cancel(ctx, "u1", sub.JobID); !errors.Is(err, ErrAlreadyFinished) {
		t.Fatalf("expected ErrAlreadyFinished, got %v", err)
	}
}

func TestCancel_OtherUsersJobHidden(t *testing.T) {
	e := newEnv(t, 5, 5)
	ctx := context.Background()

	sub := mustSubmit(t, e, directReq("u1", "+15550000001"))
	e.drain(t)

	if _, err := e.svc.Cancel(ctx, "u2", sub.JobID); !errors.Is(err, calls.ErrNotFound) {
		t.Fatalf("expected not found for foreign job, got %v", err)
	}
}

func TestEstimateWait(t *testing.T) {
	if got := estimateWait(0, 10); got != 0 {
		t.Fatalf("expected 0 for empty queue, got %v", got)
	}
	if got := estimateWait(1, 10); got != nominalSlotTurnover {
		t.Fatalf("expected one turnover, got %v", got)
	}
	if got := estimateWait(25, 10); got != 3*nominalSlotTurnover {
		t.Fatalf("expected three rounds, got %v", got)
	}
}

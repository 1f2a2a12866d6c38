package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"dialer-platform/internal/calls"
	"dialer-platform/internal/capacity"
	"dialer-platform/internal/queue"
)

type recordingDispatcher struct {
	mu   sync.Mutex
	jobs []DispatchJob
}

func (r *recordingDispatcher) Dispatch(job DispatchJob) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.jobs = append(r.jobs, job)
}

func (r *recordingDispatcher) snapshot() []DispatchJob {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]DispatchJob, len(r.jobs))
	copy(out, r.jobs)
	return out
}

func mustEnqueue(t *testing.T, s *queue.MemoryStore, item queue.Item) queue.Item {
	t.Helper()
	out, err := s.Enqueue(context.Background(), item)
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	return out
}

func TestProcessor_DirectBeforeEarlierCampaign(t *testing.T) {
	e := newEnv(t, 1, 1)
	ctx := context.Background()

	blocker := mustSubmit(t, e, directReq("u0", "+15550000001"))
	if blocker.Disposition != DispositionAdmitted {
		t.Fatalf("expected blocker admitted")
	}
	e.drain(t)

	camp := mustSubmit(t, e, campaignReq("u1", "+15550000002", "camp-1"))
	direct := mustSubmit(t, e, directReq("u2", "+15550000003"))
	if camp.Disposition != DispositionQueued || direct.Disposition != DispositionQueued {
		t.Fatalf("expected both queued while system is full")
	}
	if direct.Position != 1 {
		t.Fatalf("expected the later direct job ahead of the campaign job, got position %d", direct.Position)
	}

	// Free the only slot; the direct job must win it despite arriving later.
	if err := e.completions.HandleOutcome(ctx, completedOutcome(blocker.JobID, 10)); err != nil {
		t.Fatalf("handle outcome: %v", err)
	}
	e.processor.runTick(ctx)
	e.drain(t)

	directCall, err := e.calls.Get(ctx, direct.JobID)
	if err != nil {
		t.Fatalf("get call: %v", err)
	}
	if directCall.Status != calls.CallStatusRinging {
		t.Fatalf("expected direct call dispatched, got %q", directCall.Status)
	}
	campItem, err := e.backlog.Get(ctx, camp.JobID)
	if err != nil {
		t.Fatalf("expected campaign job still queued: %v", err)
	}
	if campItem.Status != queue.StatusQueued {
		t.Fatalf("expected campaign job queued, got %q", campItem.Status)
	}
}

func TestProcessor_RaceLoserKeepsPlaceAndTickMovesOn(t *testing.T) {
	ctx := context.Background()

	// Headroom passes for everyone at pop time, but u1's reserve denies,
	// which is exactly what losing the race between pop and promote looks
	// like from the processor's side.
	ledger := capacity.NewMemoryLedger(10, 2)
	ledger.SetUserLimit("u1", 0)
	limits := capacity.NewMemoryLimits(10, 2)
	if err := limits.EnsureSystemRow(ctx); err != nil {
		t.Fatalf("seed limits: %v", err)
	}
	backlog := queue.NewMemoryStore(nil)
	rec := &recordingDispatcher{}

	u1Item := mustEnqueue(t, backlog, queue.Item{ID: "j1", UserID: "u1", Kind: queue.KindDirect, AgentID: "a", Destination: "+15550000001"})
	mustEnqueue(t, backlog, queue.Item{ID: "j2", UserID: "u2", Kind: queue.KindDirect, AgentID: "a", Destination: "+15550000002"})

	p := NewProcessor(ProcessorConfig{
		Queue:       backlog,
		Ledger:      ledger,
		Limits:      limits,
		Promoter:    &MemoryPromoter{Ledger: ledger, Store: backlog},
		Dispatcher:  rec,
		UserDefault: 2,
		Interval:    time.Hour,
		Log:         discardLogger(),
	})
	p.runTick(ctx)

	jobs := rec.snapshot()
	if len(jobs) != 1 || jobs[0].JobID != "j2" {
		t.Fatalf("expected only u2's job dispatched, got %+v", jobs)
	}

	// The loser kept its place: still queued, same sequence.
	got, err := backlog.Get(ctx, "j1")
	if err != nil {
		t.Fatalf("get j1: %v", err)
	}
	if got.Status != queue.StatusQueued {
		t.Fatalf("expected j1 back to queued, got %q", got.Status)
	}
	if got.Sequence != u1Item.Sequence {
		t.Fatalf("expected sequence kept, got %d want %d", got.Sequence, u1Item.Sequence)
	}
}

func TestProcessor_SystemFullSkipsTick(t *testing.T) {
	ctx := context.Background()

	ledger := capacity.NewMemoryLedger(1, 1)
	if _, err := ledger.TryReserve(ctx, capacity.Reservation{JobID: "busy", UserID: "u0"}); err != nil {
		t.Fatalf("seed reservation: %v", err)
	}
	limits := capacity.NewMemoryLimits(1, 1)
	if err := limits.EnsureSystemRow(ctx); err != nil {
		t.Fatalf("seed limits: %v", err)
	}
	backlog := queue.NewMemoryStore(nil)
	rec := &recordingDispatcher{}

	mustEnqueue(t, backlog, queue.Item{ID: "j1", UserID: "u1", Kind: queue.KindDirect, AgentID: "a", Destination: "+15550000001"})

	p := NewProcessor(ProcessorConfig{
		Queue:       backlog,
		Ledger:      ledger,
		Limits:      limits,
		Promoter:    &MemoryPromoter{Ledger: ledger, Store: backlog},
		Dispatcher:  rec,
		UserDefault: 1,
		Interval:    time.Hour,
		Log:         discardLogger(),
	})
	p.runTick(ctx)

	if n := len(rec.snapshot()); n != 0 {
		t.Fatalf("expected nothing dispatched while system is full, got %d", n)
	}
	got, err := backlog.Get(ctx, "j1")
	if err != nil || got.Status != queue.StatusQueued {
		t.Fatalf("expected job untouched, got %+v err %v", got, err)
	}
}

func TestProcessor_RecoversRowsStuckDispatching(t *testing.T) {
	e := newEnv(t, 5, 5)
	ctx := context.Background()

	mustEnqueue(t, e.backlog, queue.Item{ID: "j1", UserID: "u1", Kind: queue.KindDirect, AgentID: "a", Destination: "+15550000001"})
	if err := e.calls.Create(ctx, calls.Call{ID: "j1", UserID: "u1", AgentID: "a", Kind: "direct", To: "+15550000001", Status: calls.CallStatusQueued}); err != nil {
		t.Fatalf("create call: %v", err)
	}

	// A pop with no promote afterwards is a processor death mid-promotion.
	item, err := e.backlog.PopNextEligible(ctx, queue.PopRequest{})
	if err != nil || item == nil {
		t.Fatalf("pop: %v %v", item, err)
	}

	e.processor.clock = func() time.Time { return time.Now().Add(2 * staleDispatchAfter) }
	e.processor.runTick(ctx)
	e.drain(t)

	call, err := e.calls.Get(ctx, "j1")
	if err != nil {
		t.Fatalf("get call: %v", err)
	}
	if call.Status != calls.CallStatusRinging {
		t.Fatalf("expected recovered job dispatched, got %q", call.Status)
	}
}

func TestProcessor_RunStopsOnContextCancel(t *testing.T) {
	e := newEnv(t, 1, 1)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		e.processor.Run(ctx)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("processor did not stop on cancel")
	}
}

func TestWaker_CoalescesLocalNudges(t *testing.T) {
	w := NewWaker(nil, discardLogger())
	w.Wake()
	w.Wake()

	select {
	case <-w.C():
	default:
		t.Fatalf("expected a pending nudge")
	}
	select {
	case <-w.C():
		t.Fatalf("expected nudges to coalesce into one")
	default:
	}
}

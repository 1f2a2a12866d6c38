package reporting

import (
	"context"
	"errors"
	"testing"
	"time"

	"dialer-platform/internal/calls"
	"dialer-platform/internal/capacity"
	"dialer-platform/internal/queue"
)

func testSources(t *testing.T) (StoreSources, *calls.MemoryStore, *queue.MemoryStore, *capacity.MemoryLedger, *capacity.MemoryLimits) {
	t.Helper()
	callStore := calls.NewMemoryStore()
	backlog := queue.NewMemoryStore(nil)
	ledger := capacity.NewMemoryLedger(10, 2)
	limits := capacity.NewMemoryLimits(10, 2)
	if err := limits.EnsureSystemRow(context.Background()); err != nil {
		t.Fatalf("seed limits: %v", err)
	}
	src := StoreSources{Calls: callStore, Queue: backlog, Ledger: ledger, Limits: limits}
	return src, callStore, backlog, ledger, limits
}

func TestCallsSummary_AggregatesOutcomes(t *testing.T) {
	ctx := context.Background()
	src, callStore, _, _, _ := testSources(t)
	svc := NewService(src)

	seed := []struct {
		id     string
		user   string
		status calls.CallStatus
		dur    int
		cost   int64
	}{
		{"c1", "u1", calls.CallStatusCompleted, 60, 120},
		{"c2", "u1", calls.CallStatusCompleted, 30, 60},
		{"c3", "u1", calls.CallStatusBusy, 0, 0},
		{"c4", "u2", calls.CallStatusCompleted, 90, 180},
	}
	for _, sc := range seed {
		if err := callStore.Create(ctx, calls.Call{ID: sc.id, UserID: sc.user, To: "+15550001111"}); err != nil {
			t.Fatalf("create: %v", err)
		}
		if err := callStore.Finalize(ctx, sc.id, sc.status, "", sc.dur, sc.cost, "USD"); err != nil {
			t.Fatalf("finalize: %v", err)
		}
	}
	// One still in flight.
	if err := callStore.Create(ctx, calls.Call{ID: "c5", UserID: "u1", To: "+15550001111"}); err != nil {
		t.Fatalf("create: %v", err)
	}

	now := time.Now().UTC()
	out, err := svc.CallsSummary(ctx, CallsSummaryRequest{
		UserID: "u1",
		Range:  TimeRange{From: now.Add(-time.Hour), To: now.Add(time.Hour)},
	})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if out.TotalCalls != 4 {
		t.Fatalf("expected u1's 4 calls only, got %d", out.TotalCalls)
	}
	if out.CompletedCalls != 2 || out.BusyCalls != 1 || out.InFlightCalls != 1 {
		t.Fatalf("unexpected status breakdown: %+v", out)
	}
	if out.TotalDurationSeconds != 90 || out.TotalCostMinor != 180 {
		t.Fatalf("expected 90s and 180 minor units, got %+v", out)
	}
	if out.AverageDurationSeconds != 90/4 {
		t.Fatalf("expected average %d, got %d", 90/4, out.AverageDurationSeconds)
	}
}

func TestCallsSummary_ValidatesRequest(t *testing.T) {
	src, _, _, _, _ := testSources(t)
	svc := NewService(src)
	now := time.Now().UTC()

	cases := []CallsSummaryRequest{
		{UserID: "", Range: TimeRange{From: now.Add(-time.Hour), To: now}},
		{UserID: "u1"},
		{UserID: "u1", Range: TimeRange{From: now, To: now.Add(-time.Hour)}},
	}
	for i, req := range cases {
		if _, err := svc.CallsSummary(context.Background(), req); !errors.Is(err, ErrInvalidRequest) {
			t.Fatalf("case %d: expected ErrInvalidRequest, got %v", i, err)
		}
	}
}

func TestQueueHealth_SnapshotsBacklogAndCapacity(t *testing.T) {
	ctx := context.Background()
	src, _, backlog, ledger, _ := testSources(t)
	svc := NewService(src)

	for i, jobID := range []string{"a1", "a2", "a3"} {
		user := "u1"
		if i == 2 {
			user = "u2"
		}
		if _, err := ledger.TryReserve(ctx, capacity.Reservation{JobID: jobID, UserID: user}); err != nil {
			t.Fatalf("reserve: %v", err)
		}
	}

	oldest := time.Now().UTC().Add(-90 * time.Second)
	queuedSeed := []queue.Item{
		{ID: "q1", UserID: "u2", Kind: queue.KindCampaign, EnqueuedAt: oldest},
		{ID: "q2", UserID: "u2", Kind: queue.KindCampaign},
		{ID: "q3", UserID: "u3", Kind: queue.KindDirect},
	}
	for _, it := range queuedSeed {
		if _, err := backlog.Enqueue(ctx, it); err != nil {
			t.Fatalf("enqueue: %v", err)
		}
	}

	out, err := svc.QueueHealth(ctx)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if out.SystemActive != 3 || out.SystemLimit != 10 || out.TotalQueued != 3 {
		t.Fatalf("unexpected totals: %+v", out)
	}
	if out.OldestQueuedAt == nil || !out.OldestQueuedAt.Equal(oldest) {
		t.Fatalf("expected oldest %v, got %v", oldest, out.OldestQueuedAt)
	}
	if out.OldestWait < 89 {
		t.Fatalf("expected oldest wait around 90s, got %d", out.OldestWait)
	}

	if len(out.Users) != 3 {
		t.Fatalf("expected 3 users, got %d", len(out.Users))
	}
	// u2 has the deepest backlog, then u3, then u1 with active calls only.
	if out.Users[0].UserID != "u2" || out.Users[0].Queued != 2 || out.Users[0].Active != 1 {
		t.Fatalf("unexpected first row: %+v", out.Users[0])
	}
	if out.Users[1].UserID != "u3" || out.Users[1].Queued != 1 {
		t.Fatalf("unexpected second row: %+v", out.Users[1])
	}
	if out.Users[2].UserID != "u1" || out.Users[2].Active != 2 || out.Users[2].Queued != 0 {
		t.Fatalf("unexpected third row: %+v", out.Users[2])
	}
}

func TestQueueHealth_EmptySystem(t *testing.T) {
	src, _, _, _, _ := testSources(t)
	svc := NewService(src)

	out, err := svc.QueueHealth(context.Background())
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if out.SystemActive != 0 || out.TotalQueued != 0 || out.OldestQueuedAt != nil || len(out.Users) != 0 {
		t.Fatalf("expected empty snapshot, got %+v", out)
	}
}

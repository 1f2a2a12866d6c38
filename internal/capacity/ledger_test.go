package capacity

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"
)

func TestTryReserve_EnforcesUserCap(t *testing.T) {
	ctx := context.Background()
	led := NewMemoryLedger(10, 2)

	for i := 0; i < 2; i++ {
		d, err := led.TryReserve(ctx, Reservation{JobID: fmt.Sprintf("job-%d", i), UserID: "u1", Kind: "direct"})
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if !d.Granted {
			t.Fatalf("expected grant %d, got denial %q", i, d.Reason)
		}
	}

	d, err := led.TryReserve(ctx, Reservation{JobID: "job-2", UserID: "u1", Kind: "direct"})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if d.Granted {
		t.Fatalf("expected denial at user cap")
	}
	if d.Reason != DenyUserFull {
		t.Fatalf("expected reason %q, got %q", DenyUserFull, d.Reason)
	}
	if d.UserActive != 2 || d.UserLimit != 2 {
		t.Fatalf("expected counts 2/2, got %d/%d", d.UserActive, d.UserLimit)
	}
}

func TestTryReserve_EnforcesSystemCap(t *testing.T) {
	ctx := context.Background()
	led := NewMemoryLedger(2, 5)

	if d, err := led.TryReserve(ctx, Reservation{JobID: "a", UserID: "u1"}); err != nil || !d.Granted {
		t.Fatalf("expected grant, got %+v err %v", d, err)
	}
	if d, err := led.TryReserve(ctx, Reservation{JobID: "b", UserID: "u2"}); err != nil || !d.Granted {
		t.Fatalf("expected grant, got %+v err %v", d, err)
	}

	d, err := led.TryReserve(ctx, Reservation{JobID: "c", UserID: "u3"})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if d.Granted || d.Reason != DenySystemFull {
		t.Fatalf("expected system_full denial, got %+v", d)
	}
}

func TestTryReserve_UserOverrideBeatsDefault(t *testing.T) {
	ctx := context.Background()
	led := NewMemoryLedger(10, 1)
	led.SetUserLimit("vip", 3)

	for i := 0; i < 3; i++ {
		d, err := led.TryReserve(ctx, Reservation{JobID: fmt.Sprintf("vip-%d", i), UserID: "vip"})
		if err != nil || !d.Granted {
			t.Fatalf("expected grant %d under override, got %+v err %v", i, d, err)
		}
	}
	if d, _ := led.TryReserve(ctx, Reservation{JobID: "vip-3", UserID: "vip"}); d.Granted {
		t.Fatalf("expected denial past override")
	}
}

func TestTryReserve_ConcurrentAttemptsNeverExceedCap(t *testing.T) {
	ctx := context.Background()
	led := NewMemoryLedger(100, 3)

	var wg sync.WaitGroup
	var mu sync.Mutex
	granted := 0

	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			d, err := led.TryReserve(ctx, Reservation{JobID: fmt.Sprintf("job-%d", n), UserID: "u1"})
			if err != nil {
				t.Errorf("unexpected error: %v", err)
				return
			}
			if d.Granted {
				mu.Lock()
				granted++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	if granted != 3 {
		t.Fatalf("expected exactly 3 grants under cap 3, got %d", granted)
	}
	system, user, err := led.ActiveCounts(ctx, "u1")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if system != 3 || user != 3 {
		t.Fatalf("expected 3 active, got system=%d user=%d", system, user)
	}
}

func TestTryReserve_DuplicateJobIDFails(t *testing.T) {
	ctx := context.Background()
	led := NewMemoryLedger(5, 5)

	if _, err := led.TryReserve(ctx, Reservation{JobID: "dup", UserID: "u1"}); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if _, err := led.TryReserve(ctx, Reservation{JobID: "dup", UserID: "u1"}); err == nil {
		t.Fatalf("expected error for duplicate job id")
	}
}

func TestRelease_IsIdempotent(t *testing.T) {
	ctx := context.Background()
	led := NewMemoryLedger(5, 5)

	if _, err := led.TryReserve(ctx, Reservation{JobID: "j1", UserID: "u1", Kind: "campaign"}); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	first, err := led.Release(ctx, "j1")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if first == nil || first.JobID != "j1" || first.Kind != "campaign" {
		t.Fatalf("expected released record for j1, got %+v", first)
	}

	second, err := led.Release(ctx, "j1")
	if err != nil {
		t.Fatalf("expected no error on duplicate release, got %v", err)
	}
	if second != nil {
		t.Fatalf("expected nil record on duplicate release, got %+v", second)
	}
}

func TestRelease_FreesSlotForNextReserve(t *testing.T) {
	ctx := context.Background()
	led := NewMemoryLedger(1, 1)

	if d, _ := led.TryReserve(ctx, Reservation{JobID: "a", UserID: "u1"}); !d.Granted {
		t.Fatalf("expected first grant")
	}
	if d, _ := led.TryReserve(ctx, Reservation{JobID: "b", UserID: "u2"}); d.Granted {
		t.Fatalf("expected denial while slot held")
	}
	if _, err := led.Release(ctx, "a"); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if d, _ := led.TryReserve(ctx, Reservation{JobID: "b", UserID: "u2"}); !d.Granted {
		t.Fatalf("expected grant after release")
	}
}

func TestReleaseStale_RemovesOnlyOldReservations(t *testing.T) {
	ctx := context.Background()
	led := NewMemoryLedger(10, 10)
	now := time.Now().UTC()

	if _, err := led.TryReserve(ctx, Reservation{JobID: "old", UserID: "u1", ReservedAt: now.Add(-3 * time.Hour)}); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if _, err := led.TryReserve(ctx, Reservation{JobID: "fresh", UserID: "u1", ReservedAt: now}); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	reclaimed, err := led.ReleaseStale(ctx, now.Add(-2*time.Hour))
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(reclaimed) != 1 || reclaimed[0].JobID != "old" {
		t.Fatalf("expected only the old reservation reclaimed, got %+v", reclaimed)
	}

	system, _, err := led.ActiveCounts(ctx, "")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if system != 1 {
		t.Fatalf("expected 1 remaining reservation, got %d", system)
	}
}

func TestMemoryLimits_ResolveAndClear(t *testing.T) {
	ctx := context.Background()
	limits := NewMemoryLimits(10, 2)

	if err := limits.EnsureSystemRow(ctx); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if got, err := limits.SystemLimit(ctx); err != nil || got != 10 {
		t.Fatalf("expected system limit 10, got %d err %v", got, err)
	}

	if got, err := limits.ResolveUserLimit(ctx, "u1"); err != nil || got != 2 {
		t.Fatalf("expected default 2, got %d err %v", got, err)
	}
	if err := limits.SetUserLimit(ctx, "u1", 7); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if got, _ := limits.ResolveUserLimit(ctx, "u1"); got != 7 {
		t.Fatalf("expected override 7, got %d", got)
	}
	if err := limits.ClearUserLimit(ctx, "u1"); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if got, _ := limits.ResolveUserLimit(ctx, "u1"); got != 2 {
		t.Fatalf("expected default restored, got %d", got)
	}
}

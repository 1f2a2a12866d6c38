package capacity

import (
	"context"
	"time"
)

// Ledger is the authority on in-flight call slots.
//
// Slot invariants:
// - A grant never pushes the per-user count over the user's cap, nor the
//   total over the system cap, even under concurrent callers.
// - Check-and-insert is a single atomic unit per attempt.
// - Release is idempotent: releasing an absent job id is a no-op.
//
// Limits are read on every attempt, so admin changes apply to the next
// decision without a restart.
type Ledger interface {
	// TryReserve attempts to claim a slot. A denial is a Decision with a
	// Reason, not an error; errors mean the attempt itself failed.
	TryReserve(ctx context.Context, r Reservation) (Decision, error)

	// Release frees the slot held by jobID and returns the removed
	// reservation, or (nil, nil) when no such reservation exists.
	Release(ctx context.Context, jobID string) (*Reservation, error)

	// ActiveCounts reports the current system-wide and per-user counts.
	ActiveCounts(ctx context.Context, userID string) (systemActive, userActive int, err error)

	// ActiveByUser reports active slot counts grouped by user.
	ActiveByUser(ctx context.Context) (map[string]int, error)

	// ReleaseStale removes every reservation made before the cutoff and
	// returns them so callers can log and audit each reclaimed slot.
	ReleaseStale(ctx context.Context, before time.Time) ([]Reservation, error)
}

// LimitStore manages the admission caps consulted by the ledger.
// The system cap lives in a single guard row that reservation attempts
// lock, which is what serializes concurrent admission across processes.
type LimitStore interface {
	// EnsureSystemRow seeds the system guard row with the configured
	// default when it does not exist yet. Must run before the ledger
	// takes traffic.
	EnsureSystemRow(ctx context.Context) error

	SystemLimit(ctx context.Context) (int, error)
	SetSystemLimit(ctx context.Context, limit int) error

	// ResolveUserLimit returns the user's explicit cap, or the configured
	// per-user default when no override exists.
	ResolveUserLimit(ctx context.Context, userID string) (int, error)
	SetUserLimit(ctx context.Context, userID string, limit int) error
	ClearUserLimit(ctx context.Context, userID string) error
	ListUserLimits(ctx context.Context) ([]UserLimit, error)
}

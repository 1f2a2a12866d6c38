package queue

import (
	"context"
	"time"
)

// PopRequest narrows what PopNextEligible may return.
type PopRequest struct {
	// PerUserDefault is the fallback per-user cap used when a user has no
	// explicit limit row. The Postgres store evaluates headroom inside the
	// pop statement; the memory store uses its injected headroom func and
	// ignores this field.
	PerUserDefault int

	// ExcludeUsers are skipped entirely. The processor adds a user here
	// after a lost reservation race so the rest of the tick moves on to
	// other users' work.
	ExcludeUsers []string
}

// Store is the durable backlog of jobs waiting for a concurrency slot.
//
// Ordering invariants:
// - Any queued direct job is returned before any campaign job.
// - Within direct jobs: strict FIFO by sequence.
// - Within campaign jobs: the least-recently-granted user's oldest job
//   first (round-robin across users, FIFO within a user).
//
// A popped item flips to dispatching atomically with its selection, so
// two concurrent processors can never pop the same row.
type Store interface {
	// Enqueue stores the item and returns it with Sequence (and
	// EnqueuedAt, when unset) filled in.
	Enqueue(ctx context.Context, item Item) (Item, error)

	// PopNextEligible returns the highest-precedence queued item whose
	// user still has reservation headroom, flipped to dispatching, or
	// (nil, nil) when nothing is eligible.
	PopNextEligible(ctx context.Context, req PopRequest) (*Item, error)

	// Requeue returns a dispatching item to queued after a lost
	// reservation race. Its original sequence is kept, so it does not
	// lose its place.
	Requeue(ctx context.Context, id string) error

	// RequeueStale returns items stuck in dispatching (a processor died
	// mid-promotion) to queued. Returns how many rows were recovered.
	RequeueStale(ctx context.Context, before time.Time) (int, error)

	// Remove deletes the row regardless of status.
	Remove(ctx context.Context, id string) error

	// CancelQueued deletes the row only when it is still queued and owned
	// by userID. Reports whether a row was removed; a dispatching row is
	// left alone (the promotion in flight will decide its fate).
	CancelQueued(ctx context.Context, id, userID string) (bool, error)

	Get(ctx context.Context, id string) (Item, error)

	// FirstQueuedForUser returns the user's highest-precedence queued
	// item, or (nil, nil) when the user has no backlog.
	FirstQueuedForUser(ctx context.Context, userID string) (*Item, error)

	// Position reports the 1-based place of a queued item: the number of
	// queued items at higher priority plus older same-priority items,
	// including itself. Campaign rotation makes this an upper bound for
	// campaign items.
	Position(ctx context.Context, id string) (int, error)

	CountsForUser(ctx context.Context, userID string) (UserCounts, error)

	// QueuedByUser and OldestQueuedAt feed the operator queue-health view.
	QueuedByUser(ctx context.Context) (map[string]int, error)
	OldestQueuedAt(ctx context.Context) (*time.Time, error)
}

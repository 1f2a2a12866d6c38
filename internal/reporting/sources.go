package reporting

import (
	"context"
	"time"

	"dialer-platform/internal/calls"
	"dialer-platform/internal/capacity"
	"dialer-platform/internal/queue"
)

// StoreSources adapts the live stores to the Sources interface. It works
// with the Postgres stores in production and the memory stores in tests.
type StoreSources struct {
	Calls  calls.Store
	Queue  queue.Store
	Ledger capacity.Ledger
	Limits capacity.LimitStore
}

func (s StoreSources) CallsSummary(ctx context.Context, userID string, from, to time.Time) (calls.Summary, error) {
	return s.Calls.SummaryForUser(ctx, userID, from, to)
}

func (s StoreSources) QueuedByUser(ctx context.Context) (map[string]int, error) {
	return s.Queue.QueuedByUser(ctx)
}

func (s StoreSources) OldestQueuedAt(ctx context.Context) (*time.Time, error) {
	return s.Queue.OldestQueuedAt(ctx)
}

func (s StoreSources) ActiveByUser(ctx context.Context) (map[string]int, error) {
	return s.Ledger.ActiveByUser(ctx)
}

func (s StoreSources) SystemLimit(ctx context.Context) (int, error) {
	return s.Limits.SystemLimit(ctx)
}

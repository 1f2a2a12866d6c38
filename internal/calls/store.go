package calls

import (
	"context"
	"time"
)

// Store persists call records across the job lifecycle.
type Store interface {
	Create(ctx context.Context, c Call) error

	// MarkRinging transitions a call out of queued once the provider
	// accepted the dispatch, recording the provider's call id.
	MarkRinging(ctx context.Context, id, providerCallID string) error

	// Finalize records the terminal outcome. Calls already in a terminal
	// status are left untouched, so replayed completion events are no-ops.
	Finalize(ctx context.Context, id string, status CallStatus, reason string, durationSeconds int, costMinor int64, currency string) error

	// MarkCanceled finalizes a still-queued call as canceled.
	MarkCanceled(ctx context.Context, id, reason string) error

	Get(ctx context.Context, id string) (Call, error)
	ListByUser(ctx context.Context, userID string, limit int) ([]Call, error)

	// SummaryForUser aggregates outcomes for calls created in [from, to).
	SummaryForUser(ctx context.Context, userID string, from, to time.Time) (Summary, error)
}

package campaigns

import (
	"context"
	"time"
)

// Repository persists the campaign registry.
type Repository interface {
	Insert(ctx context.Context, c Campaign) error
	Get(ctx context.Context, id string) (Campaign, error)
	ListByUser(ctx context.Context, userID string) ([]Campaign, error)
	SetStatus(ctx context.Context, id string, status Status, now time.Time) error
}

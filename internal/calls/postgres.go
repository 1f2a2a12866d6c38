package calls

import (
	"context"
	"database/sql"
	"time"
)

// PostgresStore persists calls in the calls table.
type PostgresStore struct {
	db *sql.DB
	// clock is injectable for deterministic tests.
	clock func() time.Time
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db, clock: time.Now}
}

func (s *PostgresStore) Create(ctx context.Context, c Call) error {
	if c.ID == "" || c.UserID == "" || c.To == "" {
		return ErrInvalidArgument
	}
	now := s.clock().UTC()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	if c.UpdatedAt.IsZero() {
		c.UpdatedAt = now
	}
	if c.Status == "" {
		c.Status = CallStatusQueued
	}
	return insertCall(ctx, s.db, c)
}

func (s *PostgresStore) MarkRinging(ctx context.Context, id, providerCallID string) error {
	if id == "" {
		return ErrInvalidArgument
	}
	return markRinging(ctx, s.db, id, providerCallID, s.clock().UTC())
}

func (s *PostgresStore) Finalize(ctx context.Context, id string, status CallStatus, reason string, durationSeconds int, costMinor int64, currency string) error {
	if id == "" || !status.Terminal() {
		return ErrInvalidArgument
	}
	return finalizeCall(ctx, s.db, id, status, reason, durationSeconds, costMinor, currency, s.clock().UTC())
}

func (s *PostgresStore) MarkCanceled(ctx context.Context, id, reason string) error {
	if id == "" {
		return ErrInvalidArgument
	}
	return markCanceled(ctx, s.db, id, reason, s.clock().UTC())
}

func (s *PostgresStore) Get(ctx context.Context, id string) (Call, error) {
	if id == "" {
		return Call{}, ErrInvalidArgument
	}
	return getCall(ctx, s.db, id)
}

func (s *PostgresStore) ListByUser(ctx context.Context, userID string, limit int) ([]Call, error) {
	if userID == "" {
		return nil, ErrInvalidArgument
	}
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return listCallsByUser(ctx, s.db, userID, limit)
}

func (s *PostgresStore) SummaryForUser(ctx context.Context, userID string, from, to time.Time) (Summary, error) {
	if userID == "" {
		return Summary{}, ErrInvalidArgument
	}
	return summaryForUser(ctx, s.db, userID, from, to)
}

package queue

import (
	"context"
	"database/sql"
	"time"
)

// PostgresStore keeps the backlog in the call_queue table.
type PostgresStore struct {
	db *sql.DB
	// clock is injectable for deterministic tests.
	clock func() time.Time
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db, clock: time.Now}
}

func (s *PostgresStore) Enqueue(ctx context.Context, item Item) (Item, error) {
	if item.ID == "" || item.UserID == "" || !item.Kind.Valid() {
		return Item{}, ErrInvalidArgument
	}
	if item.Priority == 0 {
		item.Priority = PriorityFor(item.Kind)
	}
	if item.EnqueuedAt.IsZero() {
		item.EnqueuedAt = s.clock().UTC()
	}
	item.Status = StatusQueued
	return insertItem(ctx, s.db, item)
}

func (s *PostgresStore) PopNextEligible(ctx context.Context, req PopRequest) (*Item, error) {
	exclude := req.ExcludeUsers
	if exclude == nil {
		// A NULL array would exclude everything; an empty one excludes nothing.
		exclude = []string{}
	}
	now := s.clock().UTC()

	it, err := popDirect(ctx, s.db, exclude, req.PerUserDefault, now)
	if err != nil {
		return nil, err
	}
	if it != nil {
		return it, nil
	}
	return popCampaign(ctx, s.db, exclude, req.PerUserDefault, now)
}

func (s *PostgresStore) Requeue(ctx context.Context, id string) error {
	if id == "" {
		return ErrInvalidArgument
	}
	return requeueItem(ctx, s.db, id)
}

func (s *PostgresStore) RequeueStale(ctx context.Context, before time.Time) (int, error) {
	return requeueStaleItems(ctx, s.db, before)
}

func (s *PostgresStore) Remove(ctx context.Context, id string) error {
	if id == "" {
		return ErrInvalidArgument
	}
	return deleteItem(ctx, s.db, id)
}

func (s *PostgresStore) CancelQueued(ctx context.Context, id, userID string) (bool, error) {
	if id == "" || userID == "" {
		return false, ErrInvalidArgument
	}
	return deleteQueuedOwned(ctx, s.db, id, userID)
}

func (s *PostgresStore) Get(ctx context.Context, id string) (Item, error) {
	if id == "" {
		return Item{}, ErrInvalidArgument
	}
	return getItem(ctx, s.db, id)
}

func (s *PostgresStore) FirstQueuedForUser(ctx context.Context, userID string) (*Item, error) {
	if userID == "" {
		return nil, ErrInvalidArgument
	}
	return firstQueuedForUser(ctx, s.db, userID)
}

func (s *PostgresStore) Position(ctx context.Context, id string) (int, error) {
	it, err := getItem(ctx, s.db, id)
	if err != nil {
		return 0, err
	}
	if it.Status != StatusQueued {
		return 0, ErrNotFound
	}
	return countAhead(ctx, s.db, it.Priority, it.Sequence)
}

func (s *PostgresStore) CountsForUser(ctx context.Context, userID string) (UserCounts, error) {
	if userID == "" {
		return UserCounts{}, ErrInvalidArgument
	}
	return countsForUser(ctx, s.db, userID)
}

func (s *PostgresStore) QueuedByUser(ctx context.Context) (map[string]int, error) {
	return queuedByUser(ctx, s.db)
}

func (s *PostgresStore) OldestQueuedAt(ctx context.Context) (*time.Time, error) {
	return oldestQueuedAt(ctx, s.db)
}

package queue

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// NOTE: This repository assumes the following tables exist:
// - call_queue     (id unique; sequence BIGSERIAL; ephemeral rows)
// - dial_rotation  (user_id primary key; campaign fairness watermark)
// and reads the capacity tables (call_reservations, capacity_limits) to
// evaluate per-user headroom inside the pop statement.

const itemColumns = `q.id, q.user_id, q.job_kind, q.priority, q.sequence, q.status, q.agent_id, q.destination, q.campaign_id, q.enqueued_at, q.dispatching_at`

func scanItem(row interface{ Scan(...any) error }) (Item, error) {
	var it Item
	var kind, status string
	err := row.Scan(
		&it.ID,
		&it.UserID,
		&kind,
		&it.Priority,
		&it.Sequence,
		&status,
		&it.AgentID,
		&it.Destination,
		&it.CampaignID,
		&it.EnqueuedAt,
		&it.DispatchingAt,
	)
	if err != nil {
		return Item{}, err
	}
	it.Kind = Kind(kind)
	it.Status = Status(status)
	return it, nil
}

func insertItem(ctx context.Context, db *sql.DB, it Item) (Item, error) {
	const q = `
INSERT INTO call_queue (id, user_id, job_kind, priority, status, agent_id, destination, campaign_id, enqueued_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
RETURNING sequence
`
	err := db.QueryRowContext(ctx, q,
		it.ID,
		it.UserID,
		string(it.Kind),
		it.Priority,
		string(it.Status),
		it.AgentID,
		it.Destination,
		it.CampaignID,
		it.EnqueuedAt,
	).Scan(&it.Sequence)
	if err != nil {
		return Item{}, err
	}
	return it, nil
}

// popDirect claims the oldest queued direct job whose user has headroom.
// Selection, the headroom check, and the status flip happen in one
// statement; SKIP LOCKED keeps concurrent processors off the same row.
func popDirect(ctx context.Context, db *sql.DB, exclude []string, perUserDefault int, now time.Time) (*Item, error) {
	const q = `
WITH candidate AS (
  SELECT q.id
  FROM call_queue q
  WHERE q.status = 'queued'
    AND q.job_kind = 'direct'
    AND NOT (q.user_id = ANY($1))
    AND (SELECT count(*) FROM call_reservations r WHERE r.user_id = q.user_id)
        < coalesce((SELECT l.max_concurrent FROM capacity_limits l WHERE l.scope = 'user' AND l.user_id = q.user_id), $2)
  ORDER BY q.priority DESC, q.sequence ASC
  FOR UPDATE OF q SKIP LOCKED
  LIMIT 1
)
UPDATE call_queue q
SET status = 'dispatching', dispatching_at = $3
FROM candidate c
WHERE q.id = c.id
RETURNING ` + itemColumns

	it, err := scanItem(db.QueryRowContext(ctx, q, exclude, perUserDefault, now))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &it, nil
}

// popCampaign claims a queued campaign job for the least-recently-granted
// user with headroom; within that user, oldest first. Users without a
// rotation row sort before everyone (never served).
func popCampaign(ctx context.Context, db *sql.DB, exclude []string, perUserDefault int, now time.Time) (*Item, error) {
	const q = `
WITH candidate AS (
  SELECT q.id
  FROM call_queue q
  LEFT JOIN dial_rotation w ON w.user_id = q.user_id
  WHERE q.status = 'queued'
    AND q.job_kind = 'campaign'
    AND NOT (q.user_id = ANY($1))
    AND (SELECT count(*) FROM call_reservations r WHERE r.user_id = q.user_id)
        < coalesce((SELECT l.max_concurrent FROM capacity_limits l WHERE l.scope = 'user' AND l.user_id = q.user_id), $2)
  ORDER BY coalesce(w.last_granted_at, 'epoch'::timestamptz) ASC, q.sequence ASC
  FOR UPDATE OF q SKIP LOCKED
  LIMIT 1
)
UPDATE call_queue q
SET status = 'dispatching', dispatching_at = $3
FROM candidate c
WHERE q.id = c.id
RETURNING ` + itemColumns

	it, err := scanItem(db.QueryRowContext(ctx, q, exclude, perUserDefault, now))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &it, nil
}

func requeueItem(ctx context.Context, db *sql.DB, id string) error {
	const q = `
UPDATE call_queue
SET status = 'queued', dispatching_at = NULL
WHERE id = $1 AND status = 'dispatching'
`
	res, err := db.ExecContext(ctx, q, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func requeueStaleItems(ctx context.Context, db *sql.DB, before time.Time) (int, error) {
	const q = `
UPDATE call_queue
SET status = 'queued', dispatching_at = NULL
WHERE status = 'dispatching' AND dispatching_at < $1
`
	res, err := db.ExecContext(ctx, q, before)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

func deleteItem(ctx context.Context, db *sql.DB, id string) error {
	const q = `DELETE FROM call_queue WHERE id = $1`
	res, err := db.ExecContext(ctx, q, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func deleteQueuedOwned(ctx context.Context, db *sql.DB, id, userID string) (bool, error) {
	const q = `
DELETE FROM call_queue
WHERE id = $1 AND user_id = $2 AND status = 'queued'
`
	res, err := db.ExecContext(ctx, q, id, userID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func getItem(ctx context.Context, db *sql.DB, id string) (Item, error) {
	const q = `
SELECT ` + itemColumns + `
FROM call_queue q
WHERE q.id = $1
`
	it, err := scanItem(db.QueryRowContext(ctx, q, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Item{}, ErrNotFound
		}
		return Item{}, err
	}
	return it, nil
}

func firstQueuedForUser(ctx context.Context, db *sql.DB, userID string) (*Item, error) {
	const q = `
SELECT ` + itemColumns + `
FROM call_queue q
WHERE q.user_id = $1 AND q.status = 'queued'
ORDER BY q.priority DESC, q.sequence ASC
LIMIT 1
`
	it, err := scanItem(db.QueryRowContext(ctx, q, userID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &it, nil
}

func countAhead(ctx context.Context, db *sql.DB, priority int, sequence int64) (int, error) {
	const q = `
SELECT count(*)
FROM call_queue
WHERE status = 'queued'
  AND (priority > $1 OR (priority = $1 AND sequence <= $2))
`
	var n int
	if err := db.QueryRowContext(ctx, q, priority, sequence).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

func countsForUser(ctx context.Context, db *sql.DB, userID string) (UserCounts, error) {
	const q = `
SELECT
  count(*) FILTER (WHERE job_kind = 'direct')   AS direct,
  count(*) FILTER (WHERE job_kind = 'campaign') AS campaign
FROM call_queue
WHERE user_id = $1 AND status = 'queued'
`
	var c UserCounts
	if err := db.QueryRowContext(ctx, q, userID).Scan(&c.QueuedDirect, &c.QueuedCampaign); err != nil {
		return UserCounts{}, err
	}
	return c, nil
}

func queuedByUser(ctx context.Context, db *sql.DB) (map[string]int, error) {
	const q = `
SELECT user_id, count(*)
FROM call_queue
WHERE status = 'queued'
GROUP BY user_id
`
	rows, err := db.QueryContext(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := map[string]int{}
	for rows.Next() {
		var userID string
		var n int
		if err := rows.Scan(&userID, &n); err != nil {
			return nil, err
		}
		out[userID] = n
	}
	return out, rows.Err()
}

func oldestQueuedAt(ctx context.Context, db *sql.DB) (*time.Time, error) {
	const q = `
SELECT min(enqueued_at)
FROM call_queue
WHERE status = 'queued'
`
	var at sql.NullTime
	if err := db.QueryRowContext(ctx, q).Scan(&at); err != nil {
		return nil, err
	}
	if !at.Valid {
		return nil, nil
	}
	t := at.Time
	return &t, nil
}

// DeleteItemTx removes the queue row inside a caller-owned transaction.
// The processor composes it with the capacity reserve so a promoted job
// never has both a queue row and a reservation.
func DeleteItemTx(ctx context.Context, tx *sql.Tx, id string) error {
	const q = `DELETE FROM call_queue WHERE id = $1`
	res, err := tx.ExecContext(ctx, q, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// MarkGrantedTx moves the user's fairness watermark inside a caller-owned
// transaction. Called on campaign grants only; direct grants do not count
// against a user's campaign rotation.
func MarkGrantedTx(ctx context.Context, tx *sql.Tx, userID string, now time.Time) error {
	const q = `
INSERT INTO dial_rotation (user_id, last_granted_at)
VALUES ($1,$2)
ON CONFLICT (user_id)
DO UPDATE SET last_granted_at = EXCLUDED.last_granted_at
`
	_, err := tx.ExecContext(ctx, q, userID, now)
	return err
}

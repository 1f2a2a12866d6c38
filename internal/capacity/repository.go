package capacity

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// NOTE: This repository assumes the following tables exist:
// - call_reservations (job_id unique; one row per in-flight call)
// - capacity_limits   (primary key (scope, user_id); the system row is
//   (scope='system', user_id='') and must exist before admission runs)

const (
	scopeSystem = "system"
	scopeUser   = "user"
)

func lockSystemLimitTx(ctx context.Context, tx *sql.Tx) (int, error) {
	// Lock the system guard row to serialize concurrent reservation
	// attempts; every count read after this lock is exact.
	const q = `
SELECT max_concurrent
FROM capacity_limits
WHERE scope = 'system' AND user_id = ''
FOR UPDATE
`
	var limit int
	if err := tx.QueryRowContext(ctx, q).Scan(&limit); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, ErrNotFound
		}
		return 0, err
	}
	return limit, nil
}

func getUserLimitTx(ctx context.Context, tx *sql.Tx, userID string) (int, bool, error) {
	const q = `
SELECT max_concurrent
FROM capacity_limits
WHERE scope = 'user' AND user_id = $1
`
	var limit int
	err := tx.QueryRowContext(ctx, q, userID).Scan(&limit)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, err
	}
	return limit, true, nil
}

func countActiveTx(ctx context.Context, tx *sql.Tx) (int, error) {
	const q = `SELECT count(*) FROM call_reservations`
	var n int
	if err := tx.QueryRowContext(ctx, q).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

func countActiveForUserTx(ctx context.Context, tx *sql.Tx, userID string) (int, error) {
	const q = `SELECT count(*) FROM call_reservations WHERE user_id = $1`
	var n int
	if err := tx.QueryRowContext(ctx, q, userID).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

func insertReservationTx(ctx context.Context, tx *sql.Tx, r Reservation) error {
	const q = `
INSERT INTO call_reservations (job_id, user_id, job_kind, reserved_at)
VALUES ($1,$2,$3,$4)
`
	_, err := tx.ExecContext(ctx, q,
		r.JobID,
		r.UserID,
		r.Kind,
		r.ReservedAt,
	)
	return err
}

func deleteReservation(ctx context.Context, db *sql.DB, jobID string) (*Reservation, error) {
	const q = `
DELETE FROM call_reservations
WHERE job_id = $1
RETURNING job_id, user_id, job_kind, reserved_at
`
	var r Reservation
	if err := db.QueryRowContext(ctx, q, jobID).Scan(
		&r.JobID,
		&r.UserID,
		&r.Kind,
		&r.ReservedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &r, nil
}

func deleteStaleReservations(ctx context.Context, db *sql.DB, before time.Time) ([]Reservation, error) {
	const q = `
DELETE FROM call_reservations
WHERE reserved_at < $1
RETURNING job_id, user_id, job_kind, reserved_at
`
	rows, err := db.QueryContext(ctx, q, before)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Reservation
	for rows.Next() {
		var r Reservation
		if err := rows.Scan(
			&r.JobID,
			&r.UserID,
			&r.Kind,
			&r.ReservedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func countActive(ctx context.Context, db *sql.DB) (int, error) {
	const q = `SELECT count(*) FROM call_reservations`
	var n int
	if err := db.QueryRowContext(ctx, q).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

func countActiveForUser(ctx context.Context, db *sql.DB, userID string) (int, error) {
	const q = `SELECT count(*) FROM call_reservations WHERE user_id = $1`
	var n int
	if err := db.QueryRowContext(ctx, q, userID).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

func listActiveByUser(ctx context.Context, db *sql.DB) (map[string]int, error) {
	const q = `
SELECT user_id, count(*)
FROM call_reservations
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

func upsertLimit(ctx context.Context, db *sql.DB, scope, userID string, limit int, now time.Time) error {
	const q = `
INSERT INTO capacity_limits (scope, user_id, max_concurrent, updated_at)
VALUES ($1,$2,$3,$4)
ON CONFLICT (scope, user_id)
DO UPDATE SET max_concurrent = EXCLUDED.max_concurrent,
              updated_at = EXCLUDED.updated_at
`
	_, err := db.ExecContext(ctx, q, scope, userID, limit, now)
	return err
}

func insertSystemLimitIfAbsent(ctx context.Context, db *sql.DB, limit int, now time.Time) error {
	const q = `
INSERT INTO capacity_limits (scope, user_id, max_concurrent, updated_at)
VALUES ('system', '', $1, $2)
ON CONFLICT (scope, user_id) DO NOTHING
`
	_, err := db.ExecContext(ctx, q, limit, now)
	return err
}

func getLimit(ctx context.Context, db *sql.DB, scope, userID string) (int, bool, error) {
	const q = `
SELECT max_concurrent
FROM capacity_limits
WHERE scope = $1 AND user_id = $2
`
	var limit int
	err := db.QueryRowContext(ctx, q, scope, userID).Scan(&limit)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, err
	}
	return limit, true, nil
}

func deleteUserLimit(ctx context.Context, db *sql.DB, userID string) error {
	const q = `
DELETE FROM capacity_limits
WHERE scope = 'user' AND user_id = $1
`
	_, err := db.ExecContext(ctx, q, userID)
	return err
}

func listUserLimitRows(ctx context.Context, db *sql.DB) ([]UserLimit, error) {
	const q = `
SELECT user_id, max_concurrent, updated_at
FROM capacity_limits
WHERE scope = 'user'
ORDER BY user_id
`
	rows, err := db.QueryContext(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []UserLimit
	for rows.Next() {
		var l UserLimit
		if err := rows.Scan(
			&l.UserID,
			&l.MaxConcurrent,
			&l.UpdatedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

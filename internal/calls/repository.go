package calls

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// NOTE: This repository assumes a calls table with id unique and the
// columns scanned below. from/to are stored as from_number/to_number to
// avoid keyword quoting.

const callColumns = `id, user_id, campaign_id, agent_id, kind, from_number, to_number, status, reason, duration, cost_minor, currency, provider_call_id, created_at, updated_at`

func scanCall(row interface{ Scan(...any) error }) (Call, error) {
	var c Call
	var status string
	err := row.Scan(
		&c.ID,
		&c.UserID,
		&c.CampaignID,
		&c.AgentID,
		&c.Kind,
		&c.From,
		&c.To,
		&status,
		&c.Reason,
		&c.DurationSeconds,
		&c.CostMinor,
		&c.Currency,
		&c.ProviderCallID,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	if err != nil {
		return Call{}, err
	}
	c.Status = CallStatus(status)
	return c, nil
}

func insertCall(ctx context.Context, db *sql.DB, c Call) error {
	const q = `
INSERT INTO calls (
  id, user_id, campaign_id, agent_id, kind, from_number, to_number, status,
  reason, duration, cost_minor, currency, provider_call_id, created_at, updated_at
) VALUES (
  $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15
)
`
	_, err := db.ExecContext(ctx, q,
		c.ID,
		c.UserID,
		c.CampaignID,
		c.AgentID,
		c.Kind,
		c.From,
		c.To,
		string(c.Status),
		c.Reason,
		c.DurationSeconds,
		c.CostMinor,
		c.Currency,
		c.ProviderCallID,
		c.CreatedAt,
		c.UpdatedAt,
	)
	return err
}

func markRinging(ctx context.Context, db *sql.DB, id, providerCallID string, now time.Time) error {
	const q = `
UPDATE calls
SET status = 'ringing', provider_call_id = $2, updated_at = $3
WHERE id = $1 AND status = 'queued'
`
	res, err := db.ExecContext(ctx, q, id, providerCallID, now)
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

func finalizeCall(ctx context.Context, db *sql.DB, id string, status CallStatus, reason string, durationSeconds int, costMinor int64, currency string, now time.Time) error {
	// Terminal statuses never change again; replays fall through silently.
	const q = `
UPDATE calls
SET status = $2, reason = $3, duration = $4, cost_minor = $5,
    currency = CASE WHEN $6 = '' THEN currency ELSE $6 END,
    updated_at = $7
WHERE id = $1
  AND status NOT IN ('completed','failed','no_answer','busy','canceled')
`
	_, err := db.ExecContext(ctx, q, id, string(status), reason, durationSeconds, costMinor, currency, now)
	return err
}

func markCanceled(ctx context.Context, db *sql.DB, id, reason string, now time.Time) error {
	const q = `
UPDATE calls
SET status = 'canceled', reason = $2, updated_at = $3
WHERE id = $1 AND status = 'queued'
`
	res, err := db.ExecContext(ctx, q, id, reason, now)
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

func getCall(ctx context.Context, db *sql.DB, id string) (Call, error) {
	const q = `
SELECT ` + callColumns + `
FROM calls
WHERE id = $1
`
	c, err := scanCall(db.QueryRowContext(ctx, q, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Call{}, ErrNotFound
		}
		return Call{}, err
	}
	return c, nil
}

func listCallsByUser(ctx context.Context, db *sql.DB, userID string, limit int) ([]Call, error) {
	const q = `
SELECT ` + callColumns + `
FROM calls
WHERE user_id = $1
ORDER BY created_at DESC
LIMIT $2
`
	rows, err := db.QueryContext(ctx, q, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Call
	for rows.Next() {
		c, err := scanCall(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func summaryForUser(ctx context.Context, db *sql.DB, userID string, from, to time.Time) (Summary, error) {
	const q = `
SELECT status, count(*), coalesce(sum(duration),0), coalesce(sum(cost_minor),0)
FROM calls
WHERE user_id = $1 AND created_at >= $2 AND created_at < $3
GROUP BY status
`
	rows, err := db.QueryContext(ctx, q, userID, from, to)
	if err != nil {
		return Summary{}, err
	}
	defer rows.Close()

	s := Summary{ByStatus: map[CallStatus]int{}}
	for rows.Next() {
		var status string
		var count, duration int
		var cost int64
		if err := rows.Scan(&status, &count, &duration, &cost); err != nil {
			return Summary{}, err
		}
		s.ByStatus[CallStatus(status)] = count
		s.Total += count
		s.TotalDurationSeconds += duration
		s.TotalCostMinor += cost
	}
	return s, rows.Err()
}

package pricing

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// PostgresRepo reads rates from the minute_pricing table.
//
// NOTE: assumes minute_pricing with the columns scanned below and an index
// on destination_prefix.
type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo {
	return &PostgresRepo{db: db}
}

func (r *PostgresRepo) FindMinutePricing(ctx context.Context, destination string, at time.Time) (MinutePricing, bool, error) {
	const q = `
SELECT id, provider, destination_prefix, currency, rate_per_minute_minor,
       billing_increment_seconds, minimum_billable_seconds,
       effective_from, effective_to, status, created_at, updated_at
FROM minute_pricing
WHERE $1 LIKE destination_prefix || '%'
  AND status = 'active'
  AND effective_from <= $2
  AND (effective_to IS NULL OR effective_to > $2)
ORDER BY length(destination_prefix) DESC, effective_from DESC
LIMIT 1
`
	var p MinutePricing
	var status string
	err := r.db.QueryRowContext(ctx, q, destination, at).Scan(
		&p.ID,
		&p.Provider,
		&p.DestinationPrefix,
		&p.Currency,
		&p.RatePerMinuteMinor,
		&p.BillingIncrementSeconds,
		&p.MinimumBillableSeconds,
		&p.EffectiveFrom,
		&p.EffectiveTo,
		&status,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return MinutePricing{}, false, nil
		}
		return MinutePricing{}, false, err
	}
	p.Status = PricingStatus(status)
	return p, true, nil
}

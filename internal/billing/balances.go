package billing

import (
	"context"
	"database/sql"
	"errors"
	"sync"
)

var ErrNotFound = errors.New("not found")

// PostgresBalances reads the user_balances projection.
//
// NOTE: assumes user_balances(user_id unique, balance_minor, currency,
// updated_at). Top-ups maintain the row elsewhere.
type PostgresBalances struct {
	db *sql.DB
}

func NewPostgresBalances(db *sql.DB) *PostgresBalances {
	return &PostgresBalances{db: db}
}

func (r *PostgresBalances) BalanceMinor(ctx context.Context, userID string) (int64, string, error) {
	const q = `
SELECT balance_minor, currency
FROM user_balances
WHERE user_id = $1
`
	var balance int64
	var currency string
	if err := r.db.QueryRowContext(ctx, q, userID).Scan(&balance, &currency); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, "", ErrNotFound
		}
		return 0, "", err
	}
	return balance, currency, nil
}

// MemoryBalances is an in-memory BalanceSource for tests.
type MemoryBalances struct {
	mu       sync.Mutex
	balances map[string]memBalance
}

type memBalance struct {
	minor    int64
	currency string
}

func NewMemoryBalances() *MemoryBalances {
	return &MemoryBalances{balances: map[string]memBalance{}}
}

func (m *MemoryBalances) Set(userID string, minor int64, currency string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.balances[userID] = memBalance{minor: minor, currency: currency}
}

func (m *MemoryBalances) BalanceMinor(ctx context.Context, userID string) (int64, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.balances[userID]
	if !ok {
		return 0, "", ErrNotFound
	}
	return b.minor, b.currency, nil
}

package billing

import (
	"context"
	"errors"
	"fmt"

	"dialer-platform/internal/pricing"
)

// Gate answers one question before a job is admitted or enqueued: can this
// user afford a minimal call to this destination. It never mutates money;
// charging is a separate concern entirely.
type Gate interface {
	Approve(ctx context.Context, userID, destination string) error
}

var (
	ErrInsufficientCredit = errors.New("insufficient credit")
	ErrNoRate             = errors.New("no rate for destination")
)

// Estimator is the slice of the pricing service the gate needs.
type Estimator interface {
	EstimateMinimumCharge(ctx context.Context, destination string) (pricing.CallCost, error)
}

// BalanceSource reads a user's current balance.
type BalanceSource interface {
	BalanceMinor(ctx context.Context, userID string) (int64, string, error)
}

// WalletGate approves a job when the user's balance covers the minimum
// billable charge for the destination. A user without a balance row has a
// zero balance.
type WalletGate struct {
	balances BalanceSource
	rates    Estimator
}

func NewWalletGate(balances BalanceSource, rates Estimator) *WalletGate {
	return &WalletGate{balances: balances, rates: rates}
}

func (g *WalletGate) Approve(ctx context.Context, userID, destination string) error {
	est, err := g.rates.EstimateMinimumCharge(ctx, destination)
	if err != nil {
		if errors.Is(err, pricing.ErrPricingNotFound) {
			return ErrNoRate
		}
		return fmt.Errorf("estimate minimum charge: %w", err)
	}

	balance, currency, err := g.balances.BalanceMinor(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return ErrInsufficientCredit
		}
		return fmt.Errorf("read balance: %w", err)
	}
	if currency != "" && est.Currency != "" && currency != est.Currency {
		return fmt.Errorf("balance currency %s does not match rate currency %s", currency, est.Currency)
	}
	if balance < est.TotalMinor {
		return ErrInsufficientCredit
	}
	return nil
}

// AllowAllGate admits everything. For environments without billing.
type AllowAllGate struct{}

func (AllowAllGate) Approve(ctx context.Context, userID, destination string) error { return nil }

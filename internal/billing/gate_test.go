package billing

import (
	"context"
	"errors"
	"testing"
	"time"

	"dialer-platform/internal/pricing"
)

func usRate() pricing.MinutePricing {
	return pricing.MinutePricing{
		ID:                      "us",
		DestinationPrefix:       "+1",
		Currency:                "USD",
		RatePerMinuteMinor:      100,
		BillingIncrementSeconds: 60,
		Status:                  pricing.PricingStatusActive,
		EffectiveFrom:           time.Now().UTC().Add(-time.Hour),
	}
}

func TestWalletGate_ApprovesWhenBalanceCoversMinimum(t *testing.T) {
	balances := NewMemoryBalances()
	balances.Set("u1", 500, "USD")
	gate := NewWalletGate(balances, pricing.NewService(&pricing.MemoryRepo{Minute: []pricing.MinutePricing{usRate()}}))

	if err := gate.Approve(context.Background(), "u1", "+15550001111"); err != nil {
		t.Fatalf("expected approval, got %v", err)
	}
}

func TestWalletGate_DeniesOnLowBalance(t *testing.T) {
	balances := NewMemoryBalances()
	balances.Set("u1", 50, "USD")
	gate := NewWalletGate(balances, pricing.NewService(&pricing.MemoryRepo{Minute: []pricing.MinutePricing{usRate()}}))

	err := gate.Approve(context.Background(), "u1", "+15550001111")
	if !errors.Is(err, ErrInsufficientCredit) {
		t.Fatalf("expected ErrInsufficientCredit, got %v", err)
	}
}

func TestWalletGate_MissingBalanceRowIsZero(t *testing.T) {
	gate := NewWalletGate(NewMemoryBalances(), pricing.NewService(&pricing.MemoryRepo{Minute: []pricing.MinutePricing{usRate()}}))

	err := gate.Approve(context.Background(), "ghost", "+15550001111")
	if !errors.Is(err, ErrInsufficientCredit) {
		t.Fatalf("expected ErrInsufficientCredit, got %v", err)
	}
}

func TestWalletGate_NoRateForDestination(t *testing.T) {
	balances := NewMemoryBalances()
	balances.Set("u1", 10000, "USD")
	gate := NewWalletGate(balances, pricing.NewService(&pricing.MemoryRepo{}))

	err := gate.Approve(context.Background(), "u1", "+4915112345678")
	if !errors.Is(err, ErrNoRate) {
		t.Fatalf("expected ErrNoRate, got %v", err)
	}
}

func TestAllowAllGate(t *testing.T) {
	if err := (AllowAllGate{}).Approve(context.Background(), "anyone", "+10000000000"); err != nil {
		t.Fatalf("expected approval, got %v", err)
	}
}

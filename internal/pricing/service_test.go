package pricing

import (
	"context"
	"testing"
	"time"
)

func TestBillableSeconds(t *testing.T) {
	// 60s increment, 0 min
	if got := billableSeconds(1, 0, 60); got != 60 {
		t.Fatalf("expected 60, got %d", got)
	}
	if got := billableSeconds(60, 0, 60); got != 60 {
		t.Fatalf("expected 60, got %d", got)
	}
	if got := billableSeconds(61, 0, 60); got != 120 {
		t.Fatalf("expected 120, got %d", got)
	}

	// min billable seconds
	if got := billableSeconds(5, 30, 60); got != 60 {
		t.Fatalf("expected 60, got %d", got)
	}
}

func TestBillableMinutesFromSeconds(t *testing.T) {
	if got := billableMinutesFromSeconds(1); got != 1 {
		t.Fatalf("expected 1, got %d", got)
	}
	if got := billableMinutesFromSeconds(60); got != 1 {
		t.Fatalf("expected 1, got %d", got)
	}
	if got := billableMinutesFromSeconds(61); got != 2 {
		t.Fatalf("expected 2, got %d", got)
	}
}

func activeRate(prefix string, rateMinor int64) MinutePricing {
	return MinutePricing{
		ID:                      "rate-" + prefix,
		DestinationPrefix:       prefix,
		Currency:                "USD",
		RatePerMinuteMinor:      rateMinor,
		BillingIncrementSeconds: 60,
		Status:                  PricingStatusActive,
		EffectiveFrom:           time.Now().UTC().Add(-24 * time.Hour),
	}
}

func TestCalculateCallCost_LongestPrefixWins(t *testing.T) {
	repo := &MemoryRepo{Minute: []MinutePricing{
		activeRate("+1", 100),
		activeRate("+1415", 250),
	}}
	svc := NewService(repo)

	cost, err := svc.CalculateCallCost(context.Background(), CallCostRequest{
		Destination:     "+14155551212",
		DurationSeconds: 90,
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if cost.RatePerMinuteMinor != 250 {
		t.Fatalf("expected the +1415 rate, got %d", cost.RatePerMinuteMinor)
	}
	if cost.BillableMinutes != 2 || cost.TotalMinor != 500 {
		t.Fatalf("expected 2 minutes at 250, got %+v", cost)
	}
}

func TestCalculateCallCost_NoRate(t *testing.T) {
	svc := NewService(&MemoryRepo{})
	_, err := svc.CalculateCallCost(context.Background(), CallCostRequest{
		Destination:     "+4915112345678",
		DurationSeconds: 30,
	})
	if err != ErrPricingNotFound {
		t.Fatalf("expected ErrPricingNotFound, got %v", err)
	}
}

func TestEstimateMinimumCharge(t *testing.T) {
	rate := activeRate("+1", 100)
	rate.MinimumBillableSeconds = 120
	svc := NewService(&MemoryRepo{Minute: []MinutePricing{rate}})

	cost, err := svc.EstimateMinimumCharge(context.Background(), "+15550001111")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if cost.BillableMinutes != 2 || cost.TotalMinor != 200 {
		t.Fatalf("expected 2-minute floor at 100, got %+v", cost)
	}
}

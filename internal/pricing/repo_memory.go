package pricing

import (
	"context"
	"strings"
	"time"
)

// MemoryRepo is a simple in-memory repository useful for tests and early development.
//
// NOTE: This is not intended for production; replace with the Postgres implementation.
type MemoryRepo struct {
	Minute []MinutePricing
}

func (r *MemoryRepo) FindMinutePricing(ctx context.Context, destination string, at time.Time) (MinutePricing, bool, error) {
	_ = ctx

	// Longest matching prefix wins; ties go to the most recent effective row.
	var best MinutePricing
	found := false

	for _, p := range r.Minute {
		if !strings.HasPrefix(destination, p.DestinationPrefix) {
			continue
		}
		if p.Status != PricingStatusActive {
			continue
		}
		if at.Before(p.EffectiveFrom) {
			continue
		}
		if p.EffectiveTo != nil && !at.Before(*p.EffectiveTo) {
			continue
		}

		longer := len(p.DestinationPrefix) > len(best.DestinationPrefix)
		sameLenNewer := len(p.DestinationPrefix) == len(best.DestinationPrefix) && p.EffectiveFrom.After(best.EffectiveFrom)
		if !found || longer || sameLenNewer {
			best = p
			found = true
		}
	}

	return best, found, nil
}

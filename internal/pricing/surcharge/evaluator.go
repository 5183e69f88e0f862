// Package surcharge evaluates which conditional fare modifiers apply to a
// quote at a given booking time. Every surcharge that passes its condition
// applies; they stack additively on the pre-surcharge subtotal, and priority
// only orders the returned list for display.
package surcharge

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/transferhub/farequote/internal/pricing"
	"github.com/transferhub/farequote/internal/store"
)

type Evaluator struct {
	prices store.PriceStore
}

func New(prices store.PriceStore) *Evaluator {
	return &Evaluator{prices: prices}
}

// Applicable returns the surcharges triggering for the region at the booking
// time, ordered by priority descending. minutesUntilPickup is nil when the
// booking lead time is unknown; lead-time surcharges then never trigger.
// An empty result is a valid "no modifier applies" outcome, not an error.
func (e *Evaluator) Applicable(ctx context.Context, regionID string, at time.Time, minutesUntilPickup *float64) ([]pricing.Surcharge, error) {
	records, err := e.prices.Surcharges(ctx, regionID)
	if err != nil {
		return nil, fmt.Errorf("load surcharges for %s: %w", regionID, err)
	}

	var out []pricing.Surcharge
	for _, s := range records {
		if !s.Active || !pricing.WithinWindow(at, s.ValidFrom, s.ValidUntil) {
			continue
		}
		if s.Condition == nil {
			// defensive: invalid records are rejected at write time
			continue
		}
		if s.Condition.Matches(at, minutesUntilPickup) {
			out = append(out, s)
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Priority > out[j].Priority
	})
	return out, nil
}

// Reason renders a human-readable explanation of why a surcharge applied,
// used in the quote breakdown.
func Reason(s pricing.Surcharge, at time.Time) string {
	switch c := s.Condition.(type) {
	case pricing.CutoffTime:
		return fmt.Sprintf("booked within %.0f minutes of pickup", c.CutoffMinutes)
	case pricing.TimeLeft:
		return fmt.Sprintf("less than %.0f minutes until pickup", c.TimeLeftMinutes)
	case pricing.DateTimeWindow:
		if c.DateTimeRange != nil {
			return fmt.Sprintf("pickup between %s and %s",
				c.DateTimeRange.Start.Format("2006-01-02 15:04"),
				c.DateTimeRange.End.Format("2006-01-02 15:04"))
		}
		if c.TimeRange != nil {
			return fmt.Sprintf("pickup in the %s-%s window", c.TimeRange.Start, c.TimeRange.End)
		}
	}
	return s.Name
}

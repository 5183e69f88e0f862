// Package lookup selects the authoritative base and fixed price records for
// a quote. The store hands over raw per-region record sets; validity-window
// filtering and priority ordering happen here so cached snapshots stay
// independent of the quote time.
package lookup

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/transferhub/farequote/internal/pricing"
	"github.com/transferhub/farequote/internal/store"
)

type Lookup struct {
	prices store.PriceStore
}

func New(prices store.PriceStore) *Lookup {
	return &Lookup{prices: prices}
}

// FindFixedPrice returns the authoritative fixed price for the route and
// vehicle at the given time, or nil when no record matches. Among matches
// the highest Priority wins; ties break by most recent CreatedAt.
func (l *Lookup) FindFixedPrice(ctx context.Context, originRegionID, destinationRegionID, vehicleID string, at time.Time) (*pricing.FixedPrice, error) {
	records, err := l.prices.FixedPrices(ctx, originRegionID, destinationRegionID)
	if err != nil {
		return nil, fmt.Errorf("load fixed prices %s->%s: %w", originRegionID, destinationRegionID, err)
	}

	var matches []pricing.FixedPrice
	for _, f := range records {
		if !f.Active || !pricing.WithinWindow(at, f.ValidFrom, f.ValidUntil) {
			continue
		}
		if _, ok := f.VehicleFor(vehicleID); !ok {
			continue
		}
		matches = append(matches, f)
	}
	if len(matches) == 0 {
		return nil, nil
	}

	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].Priority != matches[j].Priority {
			return matches[i].Priority > matches[j].Priority
		}
		return matches[i].CreatedAt.After(matches[j].CreatedAt)
	})
	top := matches[0]
	return &top, nil
}

// FindBasePrice returns the active, currently-valid base price covering the
// vehicle in the region, or nil. At most one such record should exist; when
// configuration drifts and several match, the first found wins and records
// are never merged.
func (l *Lookup) FindBasePrice(ctx context.Context, regionID, vehicleID string, at time.Time) (*pricing.BasePrice, error) {
	records, err := l.prices.BasePrices(ctx, regionID)
	if err != nil {
		return nil, fmt.Errorf("load base prices for %s: %w", regionID, err)
	}

	for _, b := range records {
		if !b.Active || !pricing.WithinWindow(at, b.ValidFrom, b.ValidUntil) {
			continue
		}
		if _, ok := b.VehicleFor(vehicleID); !ok {
			continue
		}
		match := b
		return &match, nil
	}
	return nil, nil
}

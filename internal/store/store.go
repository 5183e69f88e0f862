// Package store defines the read contracts the pricing engine depends on.
// Implementations live in pgstore (Postgres) and memstore (in-memory); the
// redis-backed configcache decorates a PriceStore. Mutation of the underlying
// records happens out-of-band through administration tooling, so every
// contract here is read-only.
package store

import (
	"context"
	"errors"

	"github.com/transferhub/farequote/internal/pricing"
)

var ErrNotFound = errors.New("not found")

// RegionStore serves pricing regions. ActiveRegions returns every active
// region; containment testing is the resolver's job, not the store's.
type RegionStore interface {
	ActiveRegions(ctx context.Context) ([]pricing.PriceRegion, error)
	Region(ctx context.Context, id string) (pricing.PriceRegion, error)
}

// PriceStore serves raw fare configuration record sets. Validity-window and
// priority filtering happen in the lookup layer so cached snapshots stay
// time-independent.
type PriceStore interface {
	BasePrices(ctx context.Context, regionID string) ([]pricing.BasePrice, error)
	FixedPrices(ctx context.Context, originRegionID, destinationRegionID string) ([]pricing.FixedPrice, error)
	Surcharges(ctx context.Context, regionID string) ([]pricing.Surcharge, error)
}

// VehicleStore serves vehicle catalog metadata.
type VehicleStore interface {
	Vehicle(ctx context.Context, id string) (pricing.Vehicle, error)
}

// Package pricing defines the fare configuration model: geographic pricing
// regions, per-vehicle base rates, fixed route prices and surcharge rules.
// Records are administrator-authored and read-only on the quote path; every
// validation here runs at configuration-write time, never during a quote.
package pricing

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/transferhub/farequote/internal/geo"
)

var (
	ErrInvalidShape     = errors.New("invalid shape definition")
	ErrInvalidSurcharge = errors.New("invalid surcharge definition")
)

// PriceRegion is a named geographic zone keying all fare configuration.
type PriceRegion struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Tags        []string `json:"tags,omitempty"`
	Shape       Shape    `json:"-"`
	Active      bool     `json:"active"`
	Description string   `json:"description,omitempty"`
}

// NewPriceRegion validates the shape and assigns an id when missing.
func NewPriceRegion(name string, shape Shape) (PriceRegion, error) {
	if shape == nil {
		return PriceRegion{}, fmt.Errorf("%w: shape is required", ErrInvalidShape)
	}
	if err := shape.Validate(); err != nil {
		return PriceRegion{}, err
	}
	return PriceRegion{
		ID:     uuid.NewString(),
		Name:   name,
		Shape:  shape,
		Active: true,
	}, nil
}

// Contains reports whether the point falls inside the region's shape.
// Regions without a usable shape never contain anything; the resolver skips
// them rather than erroring.
func (r PriceRegion) Contains(p geo.Point) bool {
	if r.Shape == nil || r.Shape.Validate() != nil {
		return false
	}
	return r.Shape.Contains(p)
}

// VehiclePricing is one vehicle's distance/time rate inside a BasePrice.
type VehiclePricing struct {
	VehicleID      string          `json:"vehicle_id"`
	BaseFare       decimal.Decimal `json:"base_fare"`
	PricePerKm     decimal.Decimal `json:"price_per_km"`
	PricePerMinute decimal.Decimal `json:"price_per_minute"`
	MinimumFare    decimal.Decimal `json:"minimum_fare"`
}

// BasePrice is the distance/time fare table for one region. At most one
// active, currently-valid record is expected per region; lookups use the
// first match and never merge records.
type BasePrice struct {
	ID         string           `json:"id"`
	RegionID   string           `json:"region_id"`
	Currency   string           `json:"currency"`
	Vehicles   []VehiclePricing `json:"vehicles"`
	Active     bool             `json:"active"`
	ValidFrom  *time.Time       `json:"valid_from,omitempty"`
	ValidUntil *time.Time       `json:"valid_until,omitempty"`
}

// VehicleFor returns the rate row for a vehicle, if configured.
func (b BasePrice) VehicleFor(vehicleID string) (VehiclePricing, bool) {
	for _, v := range b.Vehicles {
		if v.VehicleID == vehicleID {
			return v, true
		}
	}
	return VehiclePricing{}, false
}

const DefaultIncludedWaitingMinutes = 15

// VehicleFixedPricing is one vehicle's flat fare inside a FixedPrice.
type VehicleFixedPricing struct {
	VehicleID              string          `json:"vehicle_id"`
	FixedPrice             decimal.Decimal `json:"fixed_price"`
	IncludedWaitingMinutes int             `json:"included_waiting_minutes"`
	AdditionalWaitingPrice decimal.Decimal `json:"additional_waiting_price"`
}

// FixedPrice is a flat fare for one origin-region to destination-region
// route. When several records match the same route and vehicle, the highest
// Priority wins; ties break by most recent CreatedAt.
type FixedPrice struct {
	ID                  string                `json:"id"`
	OriginRegionID      string                `json:"origin_region_id"`
	DestinationRegionID string                `json:"destination_region_id"`
	Name                string                `json:"name"`
	Currency            string                `json:"currency"`
	Vehicles            []VehicleFixedPricing `json:"vehicles"`
	Priority            int                   `json:"priority"`
	Active              bool                  `json:"active"`
	ValidFrom           *time.Time            `json:"valid_from,omitempty"`
	ValidUntil          *time.Time            `json:"valid_until,omitempty"`
	Tags                []string              `json:"tags,omitempty"`
	CreatedAt           time.Time             `json:"created_at"`
}

// VehicleFor returns the flat fare row for a vehicle, if configured.
// A zero IncludedWaitingMinutes falls back to the default of 15.
func (f FixedPrice) VehicleFor(vehicleID string) (VehicleFixedPricing, bool) {
	for _, v := range f.Vehicles {
		if v.VehicleID == vehicleID {
			if v.IncludedWaitingMinutes == 0 {
				v.IncludedWaitingMinutes = DefaultIncludedWaitingMinutes
			}
			return v, true
		}
	}
	return VehicleFixedPricing{}, false
}

// WithinWindow reports whether at falls inside an optional validity window.
// Nil bounds are open-ended.
func WithinWindow(at time.Time, from, until *time.Time) bool {
	if from != nil && at.Before(*from) {
		return false
	}
	if until != nil && at.After(*until) {
		return false
	}
	return true
}

// Vehicle is catalog metadata used for capacity filtering and display
// enrichment. It is not priced itself.
type Vehicle struct {
	ID            string `json:"id"`
	DisplayName   string `json:"display_name"`
	MaxPassengers int    `json:"max_passengers"`
	MaxLuggage    int    `json:"max_luggage"`
	ImageURL      string `json:"image_url,omitempty"`
}

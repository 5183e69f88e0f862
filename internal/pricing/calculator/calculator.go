// Package calculator assembles fare quotes. A calculation is a pure function
// of the request and the configuration snapshot: resolve regions, prefer a
// fixed route price, fall back to distance/time pricing, then layer
// applicable surcharges on the subtotal.
package calculator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/transferhub/farequote/internal/geo"
	"github.com/transferhub/farequote/internal/pricing"
	"github.com/transferhub/farequote/internal/pricing/lookup"
	"github.com/transferhub/farequote/internal/pricing/resolve"
	"github.com/transferhub/farequote/internal/pricing/surcharge"
	"github.com/transferhub/farequote/internal/store"
)

// Client-correctable failures: the caller should re-specify a covered origin
// or have pricing configured. Never retried, never fatal.
var (
	ErrNoRegionCoverage  = errors.New("no region covers the origin point")
	ErrNoPriceConfigured = errors.New("no price configured for region and vehicle")
)

type Method string

const (
	MethodFixed         Method = "fixed"
	MethodDistanceBased Method = "distance_based"
)

// VehicleCatalog enriches the breakdown with vehicle display metadata.
type VehicleCatalog interface {
	Vehicle(ctx context.Context, id string) (pricing.Vehicle, error)
}

type Request struct {
	OriginPoint         *geo.Point
	OriginRegionID      string
	DestinationPoint    *geo.Point
	DestinationRegionID string
	VehicleID           string
	DistanceKm          float64
	DurationMinutes     float64
	BookingTime         time.Time
	MinutesUntilPickup  *float64
	Extras              []string
}

type AppliedSurcharge struct {
	ID          string                       `json:"id"`
	Name        string                       `json:"name"`
	Application pricing.SurchargeApplication `json:"application"`
	Value       decimal.Decimal              `json:"value"`
	Amount      decimal.Decimal              `json:"amount"`
	Reason      string                       `json:"reason"`
	Priority    int                          `json:"priority"`
}

// Breakdown is the fully itemized quote. All monetary fields are rounded to
// two decimals at assembly; intermediate math is never rounded.
type Breakdown struct {
	Method          Method             `json:"method"`
	Currency        string             `json:"currency"`
	OriginRegion    string             `json:"origin_region_id"`
	DestRegion      string             `json:"destination_region_id,omitempty"`
	Vehicle         *pricing.Vehicle   `json:"vehicle,omitempty"`
	FixedPrice      *decimal.Decimal   `json:"fixed_price,omitempty"`
	BaseFare        *decimal.Decimal   `json:"base_fare,omitempty"`
	DistanceCharge  *decimal.Decimal   `json:"distance_charge,omitempty"`
	TimeCharge      *decimal.Decimal   `json:"time_charge,omitempty"`
	MinimumApplied  bool               `json:"minimum_fare_applied,omitempty"`
	Extras          []Extra            `json:"extras,omitempty"`
	ExtrasTotal     decimal.Decimal    `json:"extras_total"`
	Subtotal        decimal.Decimal    `json:"subtotal"`
	Surcharges      []AppliedSurcharge `json:"surcharges,omitempty"`
	SurchargesTotal decimal.Decimal    `json:"surcharges_total"`
	Total           decimal.Decimal    `json:"total"`
}

type Calculator struct {
	resolver   *resolve.Resolver
	lookup     *lookup.Lookup
	surcharges *surcharge.Evaluator
	vehicles   VehicleCatalog
	extras     ExtrasTable
	log        zerolog.Logger
}

func New(resolver *resolve.Resolver, lk *lookup.Lookup, ev *surcharge.Evaluator, vehicles VehicleCatalog, extras ExtrasTable, log zerolog.Logger) *Calculator {
	if extras == nil {
		extras = DefaultExtras()
	}
	return &Calculator{
		resolver:   resolver,
		lookup:     lk,
		surcharges: ev,
		vehicles:   vehicles,
		extras:     extras,
		log:        log,
	}
}

// Calculate produces a quote breakdown for the request. Origin and
// destination regions are resolved concurrently when both come as points;
// the rest of the calculation is sequential arithmetic on the snapshot.
func (c *Calculator) Calculate(ctx context.Context, req Request) (Breakdown, error) {
	origins, dests, err := c.resolveRegions(ctx, req)
	if err != nil {
		return Breakdown{}, err
	}
	if len(origins) == 0 {
		return Breakdown{}, ErrNoRegionCoverage
	}

	extras, extrasTotal := c.extras.Price(req.Extras)

	// fixed routes take precedence over distance pricing
	for _, o := range origins {
		for _, d := range dests {
			fp, err := c.lookup.FindFixedPrice(ctx, o.ID, d.ID, req.VehicleID, req.BookingTime)
			if err != nil {
				return Breakdown{}, err
			}
			if fp == nil {
				continue
			}
			vf, _ := fp.VehicleFor(req.VehicleID)
			subtotal := vf.FixedPrice.Add(extrasTotal)
			bd := Breakdown{
				Method:       MethodFixed,
				Currency:     fp.Currency,
				OriginRegion: o.ID,
				DestRegion:   d.ID,
				FixedPrice:   roundPtr(vf.FixedPrice),
				Extras:       extras,
				ExtrasTotal:  extrasTotal.Round(2),
				Subtotal:     subtotal.Round(2),
			}
			return c.finish(ctx, req, o.ID, subtotal, bd)
		}
	}

	// fall back to distance/time pricing on the first origin region
	origin := origins[0]
	bp, err := c.lookup.FindBasePrice(ctx, origin.ID, req.VehicleID, req.BookingTime)
	if err != nil {
		return Breakdown{}, err
	}
	if bp == nil {
		return Breakdown{}, fmt.Errorf("region %s, vehicle %s: %w", origin.ID, req.VehicleID, ErrNoPriceConfigured)
	}
	rate, _ := bp.VehicleFor(req.VehicleID)

	distanceCharge := decimal.NewFromFloat(req.DistanceKm).Mul(rate.PricePerKm)
	timeCharge := decimal.NewFromFloat(req.DurationMinutes).Mul(rate.PricePerMinute)
	fare := rate.BaseFare.Add(distanceCharge).Add(timeCharge).Add(extrasTotal)

	// the minimum fare floors base+distance+time but extras always add on top
	floor := rate.MinimumFare.Add(extrasTotal)
	subtotal := fare
	minimumApplied := false
	if floor.GreaterThan(fare) {
		subtotal = floor
		minimumApplied = true
	}

	bd := Breakdown{
		Method:         MethodDistanceBased,
		Currency:       bp.Currency,
		OriginRegion:   origin.ID,
		BaseFare:       roundPtr(rate.BaseFare),
		DistanceCharge: roundPtr(distanceCharge),
		TimeCharge:     roundPtr(timeCharge),
		MinimumApplied: minimumApplied,
		Extras:         extras,
		ExtrasTotal:    extrasTotal.Round(2),
		Subtotal:       subtotal.Round(2),
	}
	if len(dests) > 0 {
		bd.DestRegion = dests[0].ID
	}
	return c.finish(ctx, req, origin.ID, subtotal, bd)
}

// finish applies surcharges and vehicle enrichment to a priced breakdown.
func (c *Calculator) finish(ctx context.Context, req Request, regionID string, subtotal decimal.Decimal, bd Breakdown) (Breakdown, error) {
	applicable, err := c.surcharges.Applicable(ctx, regionID, req.BookingTime, req.MinutesUntilPickup)
	if err != nil {
		return Breakdown{}, err
	}

	hundred := decimal.NewFromInt(100)
	surchargesTotal := decimal.Zero
	for _, s := range applicable {
		var amount decimal.Decimal
		switch s.Application {
		case pricing.ApplyPercentage:
			// always against the original subtotal, never compounding
			amount = subtotal.Mul(s.Value).Div(hundred).Round(2)
		case pricing.ApplyFixedAmount:
			amount = s.Value.Round(2)
		default:
			continue
		}
		surchargesTotal = surchargesTotal.Add(amount)
		bd.Surcharges = append(bd.Surcharges, AppliedSurcharge{
			ID:          s.ID,
			Name:        s.Name,
			Application: s.Application,
			Value:       s.Value,
			Amount:      amount,
			Reason:      surcharge.Reason(s, req.BookingTime),
			Priority:    s.Priority,
		})
	}

	bd.SurchargesTotal = surchargesTotal.Round(2)
	bd.Total = subtotal.Add(surchargesTotal).Round(2)

	if c.vehicles != nil && req.VehicleID != "" {
		if v, err := c.vehicles.Vehicle(ctx, req.VehicleID); err == nil {
			bd.Vehicle = &v
		} else {
			c.log.Debug().Err(err).Str("vehicle_id", req.VehicleID).Msg("vehicle enrichment skipped")
		}
	}

	c.log.Debug().
		Str("method", string(bd.Method)).
		Str("origin_region", bd.OriginRegion).
		Str("subtotal", bd.Subtotal.String()).
		Str("total", bd.Total.String()).
		Int("surcharges", len(bd.Surcharges)).
		Msg("quote calculated")
	return bd, nil
}

type regionsResult struct {
	regions []pricing.PriceRegion
	err     error
}

// resolveRegions resolves origin and destination zones, concurrently when
// both sides need geometric resolution. A missing destination is fine (no
// fixed route lookup); a failing origin is not.
func (c *Calculator) resolveRegions(ctx context.Context, req Request) (origins, dests []pricing.PriceRegion, err error) {
	destCh := make(chan regionsResult, 1)
	go func() {
		r, err := c.destinationRegions(ctx, req)
		destCh <- regionsResult{regions: r, err: err}
	}()

	switch {
	case req.OriginRegionID != "":
		region, rerr := c.resolver.Region(ctx, req.OriginRegionID)
		if rerr != nil {
			<-destCh
			if errors.Is(rerr, store.ErrNotFound) {
				return nil, nil, fmt.Errorf("origin: %w", ErrNoRegionCoverage)
			}
			return nil, nil, fmt.Errorf("resolve origin region: %w", rerr)
		}
		if region.Active {
			origins = []pricing.PriceRegion{region}
		}
	case req.OriginPoint != nil:
		origins, err = c.resolver.RegionsContaining(ctx, *req.OriginPoint)
		if err != nil {
			<-destCh
			return nil, nil, err
		}
	}

	dr := <-destCh
	if dr.err != nil {
		return nil, nil, dr.err
	}
	return origins, dr.regions, nil
}

func (c *Calculator) destinationRegions(ctx context.Context, req Request) ([]pricing.PriceRegion, error) {
	switch {
	case req.DestinationRegionID != "":
		region, err := c.resolver.Region(ctx, req.DestinationRegionID)
		if err != nil {
			// an unknown destination only disables fixed route pricing
			if errors.Is(err, store.ErrNotFound) {
				return nil, nil
			}
			return nil, fmt.Errorf("resolve destination region: %w", err)
		}
		if !region.Active {
			return nil, nil
		}
		return []pricing.PriceRegion{region}, nil
	case req.DestinationPoint != nil:
		return c.resolver.RegionsContaining(ctx, *req.DestinationPoint)
	default:
		return nil, nil
	}
}

func roundPtr(d decimal.Decimal) *decimal.Decimal {
	r := d.Round(2)
	return &r
}

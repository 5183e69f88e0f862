package calculator

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/transferhub/farequote/internal/geo"
	"github.com/transferhub/farequote/internal/pricing"
	"github.com/transferhub/farequote/internal/pricing/lookup"
	"github.com/transferhub/farequote/internal/pricing/resolve"
	"github.com/transferhub/farequote/internal/pricing/surcharge"
	"github.com/transferhub/farequote/internal/store/memstore"
)

var bookingAt = time.Date(2026, 8, 26, 12, 0, 0, 0, time.UTC)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

// seed builds a store with the airport circle region, a sedan base price
// (20 + 2.5/km + 0.8/min, minimum 25) and a marina polygon region.
func seed(t *testing.T) *memstore.Store {
	t.Helper()
	ms := memstore.New()
	ms.AddRegion(pricing.PriceRegion{
		ID: "dxb", Name: "Dubai Airport", Active: true,
		Shape: pricing.Circle{Center: geo.Point{Lon: 55.3644, Lat: 25.2532}, RadiusMeters: 3000},
	})
	ms.AddRegion(pricing.PriceRegion{
		ID: "marina", Name: "Dubai Marina", Active: true,
		Shape: pricing.Polygon{Rings: [][]geo.Point{{
			{Lon: 55.12, Lat: 25.06}, {Lon: 55.16, Lat: 25.06},
			{Lon: 55.16, Lat: 25.10}, {Lon: 55.12, Lat: 25.10}, {Lon: 55.12, Lat: 25.06},
		}}},
	})
	ms.AddBasePrice(pricing.BasePrice{
		ID: "bp", RegionID: "dxb", Currency: "AED", Active: true,
		Vehicles: []pricing.VehiclePricing{{
			VehicleID:      "sedan",
			BaseFare:       dec("20"),
			PricePerKm:     dec("2.5"),
			PricePerMinute: dec("0.8"),
			MinimumFare:    dec("25"),
		}},
	})
	ms.AddVehicle(pricing.Vehicle{ID: "sedan", DisplayName: "Sedan", MaxPassengers: 3, MaxLuggage: 2})
	return ms
}

func newCalc(ms *memstore.Store) *Calculator {
	return New(
		resolve.New(ms),
		lookup.New(ms),
		surcharge.New(ms),
		ms,
		DefaultExtras(),
		zerolog.Nop(),
	)
}

func originReq(distanceKm, durationMin float64) Request {
	return Request{
		OriginPoint:     &geo.Point{Lon: 55.3644, Lat: 25.2532},
		VehicleID:       "sedan",
		DistanceKm:      distanceKm,
		DurationMinutes: durationMin,
		BookingTime:     bookingAt,
	}
}

func TestCalculate_DistanceBasedNormalCase(t *testing.T) {
	c := newCalc(seed(t))

	bd, err := c.Calculate(context.Background(), originReq(10, 20))
	if err != nil {
		t.Fatalf("Calculate: %v", err)
	}
	if bd.Method != MethodDistanceBased {
		t.Fatalf("method=%s want distance_based", bd.Method)
	}
	// 20 + 10*2.5 + 20*0.8 = 61
	if !bd.Subtotal.Equal(dec("61")) {
		t.Fatalf("subtotal=%s want 61", bd.Subtotal)
	}
	if !bd.Total.Equal(dec("61")) {
		t.Fatalf("total=%s want 61", bd.Total)
	}
	if bd.MinimumApplied {
		t.Fatalf("minimum fare should not apply at 61")
	}
	if bd.Currency != "AED" {
		t.Fatalf("currency=%s want AED", bd.Currency)
	}
	if bd.Vehicle == nil || bd.Vehicle.DisplayName != "Sedan" {
		t.Fatalf("vehicle enrichment missing: %+v", bd.Vehicle)
	}
}

func TestCalculate_MinimumFareFloor(t *testing.T) {
	c := newCalc(seed(t))

	// 20 + 1*2.5 + 2*0.8 = 24.1 -> floored to 25
	bd, err := c.Calculate(context.Background(), originReq(1, 2))
	if err != nil {
		t.Fatalf("Calculate: %v", err)
	}
	if !bd.Subtotal.Equal(dec("25")) {
		t.Fatalf("subtotal=%s want 25", bd.Subtotal)
	}
	if !bd.MinimumApplied {
		t.Fatalf("minimum fare flag not set")
	}
}

func TestCalculate_MinimumFareFloorIncludesExtras(t *testing.T) {
	c := newCalc(seed(t))

	req := originReq(1, 2)
	req.Extras = []string{"child_seat"} // 15
	bd, err := c.Calculate(context.Background(), req)
	if err != nil {
		t.Fatalf("Calculate: %v", err)
	}
	// fare 24.1+15=39.1 vs floor 25+15=40 -> floor wins
	if !bd.Subtotal.Equal(dec("40")) {
		t.Fatalf("subtotal=%s want 40 (floor 25 + extras 15)", bd.Subtotal)
	}
	if !bd.MinimumApplied {
		t.Fatalf("minimum fare flag not set")
	}
}

func TestCalculate_UnknownExtrasContributeZero(t *testing.T) {
	c := newCalc(seed(t))

	req := originReq(10, 20)
	req.Extras = []string{"jacuzzi", "child_seat"}
	bd, err := c.Calculate(context.Background(), req)
	if err != nil {
		t.Fatalf("Calculate: %v", err)
	}
	if !bd.ExtrasTotal.Equal(dec("15")) {
		t.Fatalf("extras_total=%s want 15 (unknown code ignored)", bd.ExtrasTotal)
	}
	if len(bd.Extras) != 1 || bd.Extras[0].Code != "child_seat" {
		t.Fatalf("extras=%v want [child_seat]", bd.Extras)
	}
}

func TestCalculate_PercentageSurchargeRounding(t *testing.T) {
	ms := seed(t)
	ms.AddSurcharge(pricing.Surcharge{
		ID: "peak", RegionID: "dxb", Name: "Peak", Active: true,
		Condition: pricing.DateTimeWindow{TimeRange: &pricing.ClockRange{
			Start: pricing.ClockTime(11 * 60), End: pricing.ClockTime(14 * 60),
		}},
		Application: pricing.ApplyPercentage,
		Value:       dec("25"),
	})
	c := newCalc(ms)

	bd, err := c.Calculate(context.Background(), originReq(10, 20))
	if err != nil {
		t.Fatalf("Calculate: %v", err)
	}
	if len(bd.Surcharges) != 1 {
		t.Fatalf("surcharges=%d want 1", len(bd.Surcharges))
	}
	// 61 * 25% = 15.25
	if !bd.Surcharges[0].Amount.Equal(dec("15.25")) {
		t.Fatalf("amount=%s want 15.25", bd.Surcharges[0].Amount)
	}
	if !bd.Total.Equal(dec("76.25")) {
		t.Fatalf("total=%s want 76.25", bd.Total)
	}
}

func TestCalculate_SurchargesStackAdditively(t *testing.T) {
	ms := seed(t)
	window := pricing.DateTimeWindow{TimeRange: &pricing.ClockRange{
		Start: pricing.ClockTime(11 * 60), End: pricing.ClockTime(14 * 60),
	}}
	ms.AddSurcharge(pricing.Surcharge{
		ID: "a", RegionID: "dxb", Name: "A", Active: true, Priority: 10,
		Condition: window, Application: pricing.ApplyPercentage, Value: dec("10"),
	})
	ms.AddSurcharge(pricing.Surcharge{
		ID: "b", RegionID: "dxb", Name: "B", Active: true, Priority: 1,
		Condition: window, Application: pricing.ApplyPercentage, Value: dec("20"),
	})
	c := newCalc(ms)

	bd, err := c.Calculate(context.Background(), originReq(10, 20))
	if err != nil {
		t.Fatalf("Calculate: %v", err)
	}
	if len(bd.Surcharges) != 2 {
		t.Fatalf("surcharges=%d want 2 (no highest-priority exclusivity)", len(bd.Surcharges))
	}
	// both percentages apply to the original subtotal 61: 6.10 + 12.20
	if !bd.Surcharges[0].Amount.Equal(dec("6.1")) || !bd.Surcharges[1].Amount.Equal(dec("12.2")) {
		t.Fatalf("amounts=%s,%s want 6.1,12.2 (no compounding)",
			bd.Surcharges[0].Amount, bd.Surcharges[1].Amount)
	}
	if !bd.Total.Equal(dec("79.3")) {
		t.Fatalf("total=%s want 79.3", bd.Total)
	}
}

func TestCalculate_FixedRouteTakesPrecedence(t *testing.T) {
	ms := seed(t)
	ms.AddFixedPrice(pricing.FixedPrice{
		ID: "route", OriginRegionID: "dxb", DestinationRegionID: "marina",
		Name: "DXB to Marina", Currency: "AED", Active: true, Priority: 1,
		CreatedAt: bookingAt.Add(-time.Hour),
		Vehicles: []pricing.VehicleFixedPricing{
			{VehicleID: "sedan", FixedPrice: dec("90")},
		},
	})
	c := newCalc(ms)

	req := originReq(30, 40) // distance fare would be 127
	req.DestinationPoint = &geo.Point{Lon: 55.14, Lat: 25.08}
	bd, err := c.Calculate(context.Background(), req)
	if err != nil {
		t.Fatalf("Calculate: %v", err)
	}
	if bd.Method != MethodFixed {
		t.Fatalf("method=%s want fixed", bd.Method)
	}
	if !bd.Subtotal.Equal(dec("90")) {
		t.Fatalf("subtotal=%s want 90", bd.Subtotal)
	}
	if bd.DestRegion != "marina" {
		t.Fatalf("dest region=%s want marina", bd.DestRegion)
	}
}

func TestCalculate_FixedFallsBackWithoutDestination(t *testing.T) {
	ms := seed(t)
	ms.AddFixedPrice(pricing.FixedPrice{
		ID: "route", OriginRegionID: "dxb", DestinationRegionID: "marina",
		Currency: "AED", Active: true,
		Vehicles: []pricing.VehicleFixedPricing{{VehicleID: "sedan", FixedPrice: dec("90")}},
	})
	c := newCalc(ms)

	bd, err := c.Calculate(context.Background(), originReq(10, 20))
	if err != nil {
		t.Fatalf("Calculate: %v", err)
	}
	if bd.Method != MethodDistanceBased {
		t.Fatalf("method=%s want distance_based without a destination", bd.Method)
	}
}

func TestCalculate_NoRegionCoverage(t *testing.T) {
	c := newCalc(seed(t))

	req := originReq(10, 20)
	req.OriginPoint = &geo.Point{Lon: 18.0686, Lat: 59.3293} // Stockholm
	_, err := c.Calculate(context.Background(), req)
	if !errors.Is(err, ErrNoRegionCoverage) {
		t.Fatalf("err=%v want ErrNoRegionCoverage", err)
	}
}

func TestCalculate_NoPriceConfigured(t *testing.T) {
	c := newCalc(seed(t))

	req := originReq(10, 20)
	req.VehicleID = "limo" // no base price row
	_, err := c.Calculate(context.Background(), req)
	if !errors.Is(err, ErrNoPriceConfigured) {
		t.Fatalf("err=%v want ErrNoPriceConfigured", err)
	}
}

func TestCalculate_OriginByRegionID(t *testing.T) {
	c := newCalc(seed(t))

	req := Request{
		OriginRegionID:  "dxb",
		VehicleID:       "sedan",
		DistanceKm:      10,
		DurationMinutes: 20,
		BookingTime:     bookingAt,
	}
	bd, err := c.Calculate(context.Background(), req)
	if err != nil {
		t.Fatalf("Calculate: %v", err)
	}
	if !bd.Subtotal.Equal(dec("61")) {
		t.Fatalf("subtotal=%s want 61", bd.Subtotal)
	}
}

func TestCalculate_IdempotentForSameInputs(t *testing.T) {
	ms := seed(t)
	ms.AddSurcharge(pricing.Surcharge{
		ID: "peak", RegionID: "dxb", Name: "Peak", Active: true,
		Condition: pricing.DateTimeWindow{TimeRange: &pricing.ClockRange{
			Start: pricing.ClockTime(11 * 60), End: pricing.ClockTime(14 * 60),
		}},
		Application: pricing.ApplyPercentage, Value: dec("25"),
	})
	c := newCalc(ms)
	req := originReq(10, 20)

	first, err := c.Calculate(context.Background(), req)
	if err != nil {
		t.Fatalf("Calculate: %v", err)
	}
	second, err := c.Calculate(context.Background(), req)
	if err != nil {
		t.Fatalf("Calculate: %v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("breakdowns differ for identical inputs:\n%+v\n%+v", first, second)
	}
}

// outageRegionStore fails every call the way a dead backend would.
type outageRegionStore struct {
	err error
}

func (s outageRegionStore) ActiveRegions(context.Context) ([]pricing.PriceRegion, error) {
	return nil, s.err
}

func (s outageRegionStore) Region(context.Context, string) (pricing.PriceRegion, error) {
	return pricing.PriceRegion{}, s.err
}

func TestCalculate_UnknownOriginRegionIDIsCoverageFailure(t *testing.T) {
	c := newCalc(seed(t))

	req := originReq(10, 20)
	req.OriginPoint = nil
	req.OriginRegionID = "nowhere"
	_, err := c.Calculate(context.Background(), req)
	if !errors.Is(err, ErrNoRegionCoverage) {
		t.Fatalf("err=%v want ErrNoRegionCoverage", err)
	}
}

func TestCalculate_RegionStoreOutageIsNotCoverageFailure(t *testing.T) {
	ms := seed(t)
	outage := errors.New("dial tcp 10.0.0.5:5432: connection refused")
	c := New(
		resolve.New(outageRegionStore{err: outage}),
		lookup.New(ms),
		surcharge.New(ms),
		ms,
		DefaultExtras(),
		zerolog.Nop(),
	)

	req := originReq(10, 20)
	req.OriginPoint = nil
	req.OriginRegionID = "dxb"
	_, err := c.Calculate(context.Background(), req)
	if err == nil {
		t.Fatal("expected error from failing region store")
	}
	if errors.Is(err, ErrNoRegionCoverage) {
		t.Fatalf("store outage reported as coverage failure: %v", err)
	}
	if !errors.Is(err, outage) {
		t.Fatalf("store error not surfaced: %v", err)
	}
}

// partialRegionStore serves one region and fails everything else.
type partialRegionStore struct {
	ok  pricing.PriceRegion
	err error
}

func (s partialRegionStore) ActiveRegions(context.Context) ([]pricing.PriceRegion, error) {
	return []pricing.PriceRegion{s.ok}, nil
}

func (s partialRegionStore) Region(_ context.Context, id string) (pricing.PriceRegion, error) {
	if id == s.ok.ID {
		return s.ok, nil
	}
	return pricing.PriceRegion{}, s.err
}

func TestCalculate_DestinationStoreOutagePropagates(t *testing.T) {
	ms := seed(t)
	outage := errors.New("dial tcp 10.0.0.5:5432: connection refused")
	dxb := pricing.PriceRegion{
		ID: "dxb", Name: "Dubai Airport", Active: true,
		Shape: pricing.Circle{Center: geo.Point{Lon: 55.3644, Lat: 25.2532}, RadiusMeters: 3000},
	}
	c := New(
		resolve.New(partialRegionStore{ok: dxb, err: outage}),
		lookup.New(ms),
		surcharge.New(ms),
		ms,
		DefaultExtras(),
		zerolog.Nop(),
	)

	req := originReq(10, 20)
	req.OriginPoint = nil
	req.OriginRegionID = "dxb"
	req.DestinationRegionID = "marina"
	_, err := c.Calculate(context.Background(), req)
	if !errors.Is(err, outage) {
		t.Fatalf("err=%v want the store error surfaced", err)
	}
}

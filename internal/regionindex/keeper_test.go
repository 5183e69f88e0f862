package regionindex

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"

	"github.com/transferhub/farequote/internal/geo"
	"github.com/transferhub/farequote/internal/pricing"
	"github.com/transferhub/farequote/internal/store/memstore"
)

func dubaiAirport() pricing.PriceRegion {
	return pricing.PriceRegion{
		ID:     "airport",
		Active: true,
		Shape:  pricing.Circle{Center: geo.Point{Lon: 55.3644, Lat: 25.2532}, RadiusMeters: 3000},
	}
}

func TestKeeper_RebuildPicksUpNewRegion(t *testing.T) {
	ms := memstore.New()
	ms.AddRegion(dubaiAirport())

	k, err := NewKeeper(context.Background(), ms, DefaultResolution, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewKeeper: %v", err)
	}

	marina := geo.Point{Lon: 55.14, Lat: 25.08}
	if got := k.Candidates(marina); len(got) != 0 {
		t.Fatalf("candidates=%v want none before the region exists", got)
	}

	ms.AddRegion(pricing.PriceRegion{
		ID:     "marina",
		Active: true,
		Shape: pricing.Polygon{Rings: [][]geo.Point{{
			{Lon: 55.12, Lat: 25.06}, {Lon: 55.16, Lat: 25.06},
			{Lon: 55.16, Lat: 25.10}, {Lon: 55.12, Lat: 25.10}, {Lon: 55.12, Lat: 25.06},
		}}},
	})
	if err := k.Rebuild(context.Background()); err != nil {
		t.Fatalf("Rebuild: %v", err)
	}

	got := k.Candidates(marina)
	if len(got) != 1 || got[0] != "marina" {
		t.Fatalf("candidates=%v want [marina] after rebuild", got)
	}
}

type failingRegionStore struct {
	err error
}

func (s failingRegionStore) ActiveRegions(context.Context) ([]pricing.PriceRegion, error) {
	return nil, s.err
}

func (s failingRegionStore) Region(context.Context, string) (pricing.PriceRegion, error) {
	return pricing.PriceRegion{}, s.err
}

func TestKeeper_FailedRebuildKeepsPreviousIndex(t *testing.T) {
	ms := memstore.New()
	ms.AddRegion(dubaiAirport())

	k, err := NewKeeper(context.Background(), ms, DefaultResolution, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewKeeper: %v", err)
	}

	k.regions = failingRegionStore{err: errors.New("store down")}
	if err := k.Rebuild(context.Background()); err == nil {
		t.Fatal("expected rebuild error")
	}

	got := k.Candidates(geo.Point{Lon: 55.3644, Lat: 25.2532})
	if len(got) != 1 || got[0] != "airport" {
		t.Fatalf("candidates=%v want [airport] from the retained index", got)
	}
}

func TestNewKeeper_FailsWhenStoreUnavailable(t *testing.T) {
	_, err := NewKeeper(context.Background(), failingRegionStore{err: errors.New("store down")}, DefaultResolution, zerolog.Nop())
	if err == nil {
		t.Fatal("expected error")
	}
}

// Package memstore is an in-memory store implementation used by tests and
// the load generator, and as the quote-server backend when no database is
// configured.
package memstore

import (
	"context"
	"fmt"
	"sync"

	"github.com/transferhub/farequote/internal/pricing"
	"github.com/transferhub/farequote/internal/store"
)

type Store struct {
	mu         sync.RWMutex
	regions    []pricing.PriceRegion
	basePrices []pricing.BasePrice
	fixed      []pricing.FixedPrice
	surcharges []pricing.Surcharge
	vehicles   map[string]pricing.Vehicle
}

var (
	_ store.RegionStore  = (*Store)(nil)
	_ store.PriceStore   = (*Store)(nil)
	_ store.VehicleStore = (*Store)(nil)
)

func New() *Store {
	return &Store{vehicles: make(map[string]pricing.Vehicle)}
}

func (s *Store) AddRegion(r pricing.PriceRegion) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.regions = append(s.regions, r)
}

func (s *Store) AddBasePrice(b pricing.BasePrice) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.basePrices = append(s.basePrices, b)
}

func (s *Store) AddFixedPrice(f pricing.FixedPrice) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fixed = append(s.fixed, f)
}

func (s *Store) AddSurcharge(sc pricing.Surcharge) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.surcharges = append(s.surcharges, sc)
}

func (s *Store) AddVehicle(v pricing.Vehicle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.vehicles[v.ID] = v
}

func (s *Store) ActiveRegions(_ context.Context) ([]pricing.PriceRegion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]pricing.PriceRegion, 0, len(s.regions))
	for _, r := range s.regions {
		if r.Active {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *Store) Region(_ context.Context, id string) (pricing.PriceRegion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, r := range s.regions {
		if r.ID == id {
			return r, nil
		}
	}
	return pricing.PriceRegion{}, fmt.Errorf("region %q: %w", id, store.ErrNotFound)
}

func (s *Store) BasePrices(_ context.Context, regionID string) ([]pricing.BasePrice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []pricing.BasePrice
	for _, b := range s.basePrices {
		if b.RegionID == regionID {
			out = append(out, b)
		}
	}
	return out, nil
}

func (s *Store) FixedPrices(_ context.Context, originRegionID, destinationRegionID string) ([]pricing.FixedPrice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []pricing.FixedPrice
	for _, f := range s.fixed {
		if f.OriginRegionID == originRegionID && f.DestinationRegionID == destinationRegionID {
			out = append(out, f)
		}
	}
	return out, nil
}

func (s *Store) Surcharges(_ context.Context, regionID string) ([]pricing.Surcharge, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []pricing.Surcharge
	for _, sc := range s.surcharges {
		if sc.RegionID == regionID {
			out = append(out, sc)
		}
	}
	return out, nil
}

func (s *Store) Vehicle(_ context.Context, id string) (pricing.Vehicle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if v, ok := s.vehicles[id]; ok {
		return v, nil
	}
	return pricing.Vehicle{}, fmt.Errorf("vehicle %q: %w", id, store.ErrNotFound)
}

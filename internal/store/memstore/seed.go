package memstore

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/transferhub/farequote/internal/pricing"
)

// seedFile is the on-disk configuration format. Shapes and surcharge
// conditions use the same envelope encoding as the wire and database
// forms.
type seedFile struct {
	Regions []struct {
		pricing.PriceRegion
		Shape json.RawMessage `json:"shape"`
	} `json:"regions"`
	BasePrices  []pricing.BasePrice  `json:"base_prices"`
	FixedPrices []pricing.FixedPrice `json:"fixed_prices"`
	Surcharges  []struct {
		pricing.Surcharge
		Condition json.RawMessage `json:"condition"`
	} `json:"surcharges"`
	Vehicles []pricing.Vehicle `json:"vehicles"`
}

// LoadSeed populates the store from a JSON configuration file.
func (s *Store) LoadSeed(path string) error {
	buf, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read seed: %w", err)
	}
	return s.LoadSeedBytes(buf)
}

func (s *Store) LoadSeedBytes(buf []byte) error {
	var seed seedFile
	if err := json.Unmarshal(buf, &seed); err != nil {
		return fmt.Errorf("decode seed: %w", err)
	}

	for _, r := range seed.Regions {
		region := r.PriceRegion
		shape, err := pricing.UnmarshalShape(r.Shape)
		if err != nil {
			return fmt.Errorf("region %s: %w", region.ID, err)
		}
		if shape != nil {
			if err := shape.Validate(); err != nil {
				return fmt.Errorf("region %s: %w", region.ID, err)
			}
		}
		region.Shape = shape
		s.AddRegion(region)
	}
	for _, b := range seed.BasePrices {
		s.AddBasePrice(b)
	}
	for _, f := range seed.FixedPrices {
		s.AddFixedPrice(f)
	}
	for _, sc := range seed.Surcharges {
		record := sc.Surcharge
		cond, err := pricing.UnmarshalCondition(sc.Condition)
		if err != nil {
			return fmt.Errorf("surcharge %s: %w", record.ID, err)
		}
		record.Condition = cond
		if err := record.Validate(); err != nil {
			return fmt.Errorf("surcharge %s: %w", record.ID, err)
		}
		s.AddSurcharge(record)
	}
	for _, v := range seed.Vehicles {
		s.AddVehicle(v)
	}
	return nil
}

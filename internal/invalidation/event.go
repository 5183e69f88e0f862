// Package invalidation defines the pricing configuration change events
// published by the administration tooling. Consumers evict cached
// configuration snapshots so quotes pick up edits without waiting for
// TTL expiry.
package invalidation

import (
	"fmt"
	"strings"
	"time"
)

const (
	EntityRegion     = "region"
	EntityBasePrice  = "base_price"
	EntityFixedPrice = "fixed_price"
	EntitySurcharge  = "surcharge"
)

type Event struct {
	Version             int       `json:"version"`
	Op                  string    `json:"op"`
	Entity              string    `json:"entity"`
	RegionID            string    `json:"region_id,omitempty"`
	OriginRegionID      string    `json:"origin_region_id,omitempty"`
	DestinationRegionID string    `json:"destination_region_id,omitempty"`
	TS                  time.Time `json:"ts"`
	Source              string    `json:"source,omitempty"`
}

func (e Event) Validate() error {
	if e.Version != 1 {
		return fmt.Errorf("version must be 1")
	}
	switch e.Op {
	case "create", "update", "delete":
	default:
		return fmt.Errorf("op must be create|update|delete")
	}
	if e.TS.IsZero() {
		return fmt.Errorf("ts is required")
	}
	switch e.Entity {
	case EntityRegion, EntityBasePrice, EntitySurcharge:
		if strings.TrimSpace(e.RegionID) == "" {
			return fmt.Errorf("region_id is required for entity %s", e.Entity)
		}
	case EntityFixedPrice:
		if strings.TrimSpace(e.OriginRegionID) == "" || strings.TrimSpace(e.DestinationRegionID) == "" {
			return fmt.Errorf("origin_region_id and destination_region_id are required for entity %s", e.Entity)
		}
	default:
		return fmt.Errorf("entity must be region|base_price|fixed_price|surcharge")
	}
	return nil
}

// Regions lists every region whose cached snapshots the event touches.
func (e Event) Regions() []string {
	switch e.Entity {
	case EntityFixedPrice:
		if e.OriginRegionID == e.DestinationRegionID {
			return []string{e.OriginRegionID}
		}
		return []string{e.OriginRegionID, e.DestinationRegionID}
	default:
		return []string{e.RegionID}
	}
}

// Scope is a stable identity for the configuration slice the event
// touches. Replays and duplicate deliveries share a scope.
func (e Event) Scope() string {
	if e.Entity == EntityFixedPrice {
		return e.Entity + ":" + e.OriginRegionID + ">" + e.DestinationRegionID
	}
	return e.Entity + ":" + e.RegionID
}

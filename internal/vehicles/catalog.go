// Package vehicles serves vehicle catalog metadata for quote
// enrichment. The catalog changes rarely, so lookups go through a
// small in-process LRU in front of the backing store.
package vehicles

import (
	"context"
	"errors"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/transferhub/farequote/internal/pricing"
	"github.com/transferhub/farequote/internal/store"
)

const DefaultCacheSize = 256

type Catalog struct {
	source store.VehicleStore
	cache  *lru.Cache[string, pricing.Vehicle]
}

func NewCatalog(source store.VehicleStore, cacheSize int) (*Catalog, error) {
	if cacheSize <= 0 {
		cacheSize = DefaultCacheSize
	}
	cache, err := lru.New[string, pricing.Vehicle](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("vehicle cache: %w", err)
	}
	return &Catalog{source: source, cache: cache}, nil
}

// Vehicle returns the catalog entry for id. Unknown vehicles return
// store.ErrNotFound; misses are not negatively cached.
func (c *Catalog) Vehicle(ctx context.Context, id string) (pricing.Vehicle, error) {
	if v, ok := c.cache.Get(id); ok {
		return v, nil
	}
	v, err := c.source.Vehicle(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return pricing.Vehicle{}, err
		}
		return pricing.Vehicle{}, fmt.Errorf("load vehicle %s: %w", id, err)
	}
	c.cache.Add(id, v)
	return v, nil
}

// Invalidate drops a cached entry after an out-of-band catalog edit.
func (c *Catalog) Invalidate(id string) {
	c.cache.Remove(id)
}

package regionindex

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/transferhub/farequote/internal/geo"
	"github.com/transferhub/farequote/internal/store"
)

// Keeper holds the current index and rebuilds it from the region store,
// either on a timer or when an invalidation event reports a region change.
// Readers always see a complete index; swaps are atomic.
type Keeper struct {
	regions store.RegionStore
	res     int
	log     zerolog.Logger

	idx atomic.Pointer[Index]
}

// NewKeeper builds the initial index from the store's active regions.
func NewKeeper(ctx context.Context, regions store.RegionStore, res int, log zerolog.Logger) (*Keeper, error) {
	k := &Keeper{
		regions: regions,
		res:     res,
		log:     log.With().Str("component", "region_index").Logger(),
	}
	if err := k.Rebuild(ctx); err != nil {
		return nil, err
	}
	return k, nil
}

// Candidates delegates to the current index snapshot.
func (k *Keeper) Candidates(p geo.Point) []string {
	return k.idx.Load().Candidates(p)
}

// Rebuild reloads the active regions and swaps in a fresh index. On error
// the previous index stays in place.
func (k *Keeper) Rebuild(ctx context.Context) error {
	regions, err := k.regions.ActiveRegions(ctx)
	if err != nil {
		return fmt.Errorf("rebuild region index: %w", err)
	}
	k.idx.Store(Build(regions, k.res))
	k.log.Debug().Int("regions", len(regions)).Int("resolution", k.res).Msg("region index rebuilt")
	return nil
}

// Run rebuilds the index periodically until the context is cancelled, so
// region edits reach the prefilter even when no invalidation event arrives.
func (k *Keeper) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := k.Rebuild(ctx); err != nil {
				k.log.Error().Err(err).Msg("periodic region index rebuild failed")
			}
		}
	}
}

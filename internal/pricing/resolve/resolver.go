// Package resolve implements geographic region resolution: which active
// pricing regions contain a given point. Containment runs entirely in
// application code (haversine for circles, ray casting for polygons);
// the store only supplies the candidate records.
package resolve

import (
	"context"
	"fmt"

	"github.com/transferhub/farequote/internal/geo"
	"github.com/transferhub/farequote/internal/pricing"
	"github.com/transferhub/farequote/internal/store"
)

// CandidateIndex narrows the regions worth exact-testing for a point.
// Implemented by regionindex.Index and regionindex.Keeper; nil means
// test every active region.
type CandidateIndex interface {
	Candidates(p geo.Point) []string
}

type Resolver struct {
	regions store.RegionStore
	index   CandidateIndex
}

type Option func(*Resolver)

// WithIndex installs a candidate prefilter. The exact containment test still
// runs on every candidate, so a conservative index only costs speed, never
// correctness.
func WithIndex(ix CandidateIndex) Option {
	return func(r *Resolver) { r.index = ix }
}

func New(regions store.RegionStore, opts ...Option) *Resolver {
	r := &Resolver{regions: regions}
	for _, o := range opts {
		o(r)
	}
	return r
}

// RegionsContaining returns every active region whose shape contains the
// point. Zero, one or many results are all valid outcomes; there is no
// tie-break between overlapping regions. Regions with malformed shapes are
// skipped, not errored.
func (r *Resolver) RegionsContaining(ctx context.Context, p geo.Point) ([]pricing.PriceRegion, error) {
	regions, err := r.regions.ActiveRegions(ctx)
	if err != nil {
		return nil, fmt.Errorf("load active regions: %w", err)
	}

	var candidates map[string]struct{}
	if r.index != nil {
		ids := r.index.Candidates(p)
		candidates = make(map[string]struct{}, len(ids))
		for _, id := range ids {
			candidates[id] = struct{}{}
		}
	}

	var out []pricing.PriceRegion
	for _, region := range regions {
		if candidates != nil {
			if _, ok := candidates[region.ID]; !ok {
				continue
			}
		}
		if region.Contains(p) {
			out = append(out, region)
		}
	}
	return out, nil
}

// Region fetches a single region by id, for callers that already know the
// zone and skip geometric resolution.
func (r *Resolver) Region(ctx context.Context, id string) (pricing.PriceRegion, error) {
	region, err := r.regions.Region(ctx, id)
	if err != nil {
		return pricing.PriceRegion{}, fmt.Errorf("load region %q: %w", id, err)
	}
	return region, nil
}

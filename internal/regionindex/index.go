// Package regionindex builds a coarse H3 cell index over region footprints.
// The resolver uses it to prefilter candidate regions before running the
// exact haversine/ray-cast containment test; the index is conservative
// (one-ring dilation, unindexable regions are always candidates) and never
// the final word on containment.
package regionindex

import (
	"math"
	"sort"

	h3 "github.com/uber/h3-go/v4"

	"github.com/transferhub/farequote/internal/geo"
	"github.com/transferhub/farequote/internal/pricing"
)

const DefaultResolution = 6

// rough meters per degree of latitude at the equator
const metersPerDegreeLat = 111320.0

type Index struct {
	res     int
	byCell  map[string][]string
	always  []string // regions whose footprint could not be indexed
	regions int
}

// Build indexes the footprints of the given regions at the H3 resolution.
// Regions with malformed or unindexable shapes are kept as permanent
// candidates so the exact test still sees them.
func Build(regions []pricing.PriceRegion, res int) *Index {
	if res < 0 || res > 15 {
		res = DefaultResolution
	}
	ix := &Index{res: res, byCell: make(map[string][]string), regions: len(regions)}
	for _, r := range regions {
		cells, ok := footprintCells(r.Shape, res)
		if !ok || len(cells) == 0 {
			ix.always = append(ix.always, r.ID)
			continue
		}
		for _, c := range cells {
			ix.byCell[c] = append(ix.byCell[c], r.ID)
		}
	}
	return ix
}

// Candidates returns ids of regions whose footprint may contain the point.
func (ix *Index) Candidates(p geo.Point) []string {
	cell, err := h3.LatLngToCell(h3.LatLng{Lat: p.Lat, Lng: p.Lon}, ix.res)
	if err != nil {
		// fall back to every indexed region
		seen := make(map[string]struct{})
		var all []string
		for _, ids := range ix.byCell {
			for _, id := range ids {
				if _, ok := seen[id]; !ok {
					seen[id] = struct{}{}
					all = append(all, id)
				}
			}
		}
		all = append(all, ix.always...)
		sort.Strings(all)
		return all
	}

	out := make([]string, 0, len(ix.always)+4)
	out = append(out, ix.always...)
	out = append(out, ix.byCell[cell.String()]...)
	sort.Strings(out)
	return dedupe(out)
}

// Resolution returns the H3 resolution the index was built at.
func (ix *Index) Resolution() int { return ix.res }

func footprintCells(s pricing.Shape, res int) ([]string, bool) {
	if s == nil || s.Validate() != nil {
		return nil, false
	}
	switch sh := s.(type) {
	case pricing.Circle:
		return circleCells(sh, res)
	case pricing.Polygon:
		return polygonCells(sh.Rings, res)
	case pricing.MultiPolygon:
		seen := make(map[string]struct{})
		var out []string
		for _, pg := range sh.Polygons {
			cells, ok := polygonCells(pg.Rings, res)
			if !ok {
				return nil, false
			}
			for _, c := range cells {
				if _, dup := seen[c]; !dup {
					seen[c] = struct{}{}
					out = append(out, c)
				}
			}
		}
		sort.Strings(out)
		return out, true
	default:
		return nil, false
	}
}

// circleCells approximates the circle with a buffered 32-gon and polyfills it.
func circleCells(c pricing.Circle, res int) ([]string, bool) {
	const vertices = 32
	buffered := c.RadiusMeters * 1.5

	dLat := buffered / metersPerDegreeLat
	cosLat := math.Cos(c.Center.Lat * math.Pi / 180)
	if math.Abs(cosLat) < 1e-6 {
		return nil, false
	}
	dLon := buffered / (metersPerDegreeLat * cosLat)

	loop := make(h3.GeoLoop, 0, vertices)
	for i := 0; i < vertices; i++ {
		a := 2 * math.Pi * float64(i) / vertices
		loop = append(loop, h3.LatLng{
			Lat: c.Center.Lat + dLat*math.Sin(a),
			Lng: c.Center.Lon + dLon*math.Cos(a),
		})
	}
	cells, ok := polyfill(loop, nil, res)
	if !ok {
		return nil, false
	}
	// guarantee at least the center's neighborhood for tiny circles
	center, err := h3.LatLngToCell(h3.LatLng{Lat: c.Center.Lat, Lng: c.Center.Lon}, res)
	if err != nil {
		return nil, false
	}
	disk, err := h3.GridDisk(center, 1)
	if err != nil {
		return nil, false
	}
	return mergeCells(cells, cellStrings(disk)), true
}

func polygonCells(rings [][]geo.Point, res int) ([]string, bool) {
	if len(rings) == 0 {
		return nil, false
	}
	outer := toLoop(rings[0])
	if len(outer) < 3 {
		return nil, false
	}
	// holes are ignored on purpose: the index must not miss points that the
	// exact test would also reject
	cells, ok := polyfill(outer, nil, res)
	if !ok {
		return nil, false
	}
	return cells, true
}

// polyfill returns the one-ring dilation of the polygon's cell cover so that
// boundary points whose cell center falls outside the polygon still hit.
func polyfill(outer h3.GeoLoop, holes []h3.GeoLoop, res int) ([]string, bool) {
	cells, err := h3.PolygonToCells(h3.GeoPolygon{GeoLoop: outer, Holes: holes}, res)
	if err != nil {
		return nil, false
	}
	seen := make(map[string]struct{}, len(cells)*7)
	var out []string
	add := func(c h3.Cell) {
		s := c.String()
		if _, dup := seen[s]; !dup {
			seen[s] = struct{}{}
			out = append(out, s)
		}
	}
	for _, c := range cells {
		disk, err := h3.GridDisk(c, 1)
		if err != nil {
			add(c)
			continue
		}
		for _, d := range disk {
			add(d)
		}
	}
	if len(out) == 0 {
		// footprint smaller than one cell: fall back to the first vertex's cell
		c, err := h3.LatLngToCell(outer[0], res)
		if err != nil {
			return nil, false
		}
		disk, err := h3.GridDisk(c, 1)
		if err != nil {
			return nil, false
		}
		out = cellStrings(disk)
	}
	sort.Strings(out)
	return out, true
}

func toLoop(ring []geo.Point) h3.GeoLoop {
	loop := make(h3.GeoLoop, 0, len(ring))
	for _, p := range ring {
		loop = append(loop, h3.LatLng{Lat: p.Lat, Lng: p.Lon})
	}
	// drop duplicated closing vertex if present
	if len(loop) >= 2 && loop[0] == loop[len(loop)-1] {
		loop = loop[:len(loop)-1]
	}
	return loop
}

func cellStrings(cells []h3.Cell) []string {
	out := make([]string, 0, len(cells))
	for _, c := range cells {
		out = append(out, c.String())
	}
	sort.Strings(out)
	return out
}

func mergeCells(a, b []string) []string {
	out := append(append([]string{}, a...), b...)
	sort.Strings(out)
	return dedupe(out)
}

// dedupe removes adjacent duplicates from a sorted slice.
func dedupe(sorted []string) []string {
	out := sorted[:0]
	for i, s := range sorted {
		if i == 0 || s != sorted[i-1] {
			out = append(out, s)
		}
	}
	return out
}

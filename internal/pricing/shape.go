package pricing

import (
	"encoding/json"
	"fmt"

	"github.com/transferhub/farequote/internal/geo"
)

type ShapeKind string

const (
	ShapeCircle       ShapeKind = "circle"
	ShapePolygon      ShapeKind = "polygon"
	ShapeMultiPolygon ShapeKind = "multipolygon"
)

// Shape is the region geometry variant: exactly one of circle, polygon or
// multipolygon. Modeled as a closed interface so a circle without a radius
// or a polygon without rings cannot be constructed past Validate.
type Shape interface {
	Kind() ShapeKind
	Validate() error
	Contains(p geo.Point) bool
}

// Circle is a center point plus a radius in meters.
type Circle struct {
	Center       geo.Point `json:"center"`
	RadiusMeters float64   `json:"radius_m"`
}

func (c Circle) Kind() ShapeKind { return ShapeCircle }

func (c Circle) Validate() error {
	if !c.Center.Valid() {
		return fmt.Errorf("%w: circle center out of range", ErrInvalidShape)
	}
	if c.RadiusMeters <= 0 {
		return fmt.Errorf("%w: circle radius must be positive", ErrInvalidShape)
	}
	return nil
}

func (c Circle) Contains(p geo.Point) bool {
	return geo.HaversineMeters(p, c.Center) <= c.RadiusMeters
}

// Polygon is one outer ring plus optional hole rings.
type Polygon struct {
	Rings [][]geo.Point `json:"rings"`
}

func (pg Polygon) Kind() ShapeKind { return ShapePolygon }

func (pg Polygon) Validate() error {
	if len(pg.Rings) == 0 || len(pg.Rings[0]) < 3 {
		return fmt.Errorf("%w: polygon needs a non-empty outer ring", ErrInvalidShape)
	}
	return nil
}

func (pg Polygon) Contains(p geo.Point) bool {
	return geo.PointInPolygon(p, pg.Rings)
}

// MultiPolygon is a set of polygons; containment in any one counts.
type MultiPolygon struct {
	Polygons []Polygon `json:"polygons"`
}

func (m MultiPolygon) Kind() ShapeKind { return ShapeMultiPolygon }

func (m MultiPolygon) Validate() error {
	if len(m.Polygons) == 0 {
		return fmt.Errorf("%w: multipolygon needs at least one polygon", ErrInvalidShape)
	}
	for i, pg := range m.Polygons {
		if err := pg.Validate(); err != nil {
			return fmt.Errorf("polygon %d: %w", i, err)
		}
	}
	return nil
}

func (m MultiPolygon) Contains(p geo.Point) bool {
	for _, pg := range m.Polygons {
		if pg.Contains(p) {
			return true
		}
	}
	return false
}

// shapeEnvelope is the JSON wire form with a kind discriminator.
type shapeEnvelope struct {
	Kind     ShapeKind       `json:"kind"`
	Circle   json.RawMessage `json:"circle,omitempty"`
	Polygon  json.RawMessage `json:"polygon,omitempty"`
	Polygons json.RawMessage `json:"multipolygon,omitempty"`
}

// MarshalShape encodes a shape with its kind tag.
func MarshalShape(s Shape) ([]byte, error) {
	if s == nil {
		return []byte("null"), nil
	}
	env := shapeEnvelope{Kind: s.Kind()}
	body, err := json.Marshal(s)
	if err != nil {
		return nil, err
	}
	switch s.Kind() {
	case ShapeCircle:
		env.Circle = body
	case ShapePolygon:
		env.Polygon = body
	case ShapeMultiPolygon:
		env.Polygons = body
	default:
		return nil, fmt.Errorf("%w: unknown shape kind %q", ErrInvalidShape, s.Kind())
	}
	return json.Marshal(env)
}

// UnmarshalShape decodes an envelope produced by MarshalShape. The decoded
// shape is returned unvalidated; callers decide whether to reject or skip.
func UnmarshalShape(data []byte) (Shape, error) {
	if len(data) == 0 || string(data) == "null" {
		return nil, nil
	}
	var env shapeEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decode shape envelope: %w", err)
	}
	switch env.Kind {
	case ShapeCircle:
		var c Circle
		if err := json.Unmarshal(env.Circle, &c); err != nil {
			return nil, fmt.Errorf("decode circle: %w", err)
		}
		return c, nil
	case ShapePolygon:
		var pg Polygon
		if err := json.Unmarshal(env.Polygon, &pg); err != nil {
			return nil, fmt.Errorf("decode polygon: %w", err)
		}
		return pg, nil
	case ShapeMultiPolygon:
		var m MultiPolygon
		if err := json.Unmarshal(env.Polygons, &m); err != nil {
			return nil, fmt.Errorf("decode multipolygon: %w", err)
		}
		return m, nil
	default:
		return nil, fmt.Errorf("%w: unknown shape kind %q", ErrInvalidShape, env.Kind)
	}
}

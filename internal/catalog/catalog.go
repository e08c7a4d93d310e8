// Package catalog holds the protected-zone reference data: polygon geometry
// plus the law metadata attached to each zone. The catalog is loaded once at
// process start and is read-only afterward.
package catalog

import (
	_ "embed"
	"encoding/json"
	"math"
	"os"
	"sort"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"
	"github.com/twpayne/go-geom/xy"
	"go.uber.org/zap"

	"github.com/terralens/audit-cli/internal/model"
)

//go:embed default_zones.geojson
var defaultZones []byte

// Zone is one protected polygon with its legal metadata.
type Zone struct {
	Name     string         `json:"name"`
	ZoneType string         `json:"zone_type"`
	Law      string         `json:"law"`
	Article  string         `json:"article"`
	Section  string         `json:"section"`
	Severity model.Severity `json:"severity"`

	Polygon *geom.Polygon `json:"-"`
}

// Contains reports direct point-in-polygon containment: inside the outer ring
// and outside every hole.
func (z *Zone) Contains(lat, lng float64) bool {
	if z.Polygon == nil || z.Polygon.NumLinearRings() == 0 {
		return false
	}
	p := geom.Coord{lng, lat}
	if !xy.IsPointInRing(z.Polygon.Layout(), p, z.Polygon.LinearRing(0).FlatCoords()) {
		return false
	}
	for i := 1; i < z.Polygon.NumLinearRings(); i++ {
		if xy.IsPointInRing(z.Polygon.Layout(), p, z.Polygon.LinearRing(i).FlatCoords()) {
			return false
		}
	}
	return true
}

// DistanceMeters returns the distance from the point to the nearest polygon
// edge. Uses a local equirectangular approximation, which is accurate to well
// under a meter at buffer-ring scale.
func (z *Zone) DistanceMeters(lat, lng float64) float64 {
	if z.Polygon == nil {
		return math.Inf(1)
	}
	min := math.Inf(1)
	for i := 0; i < z.Polygon.NumLinearRings(); i++ {
		ring := z.Polygon.LinearRing(i)
		coords := ring.FlatCoords()
		stride := ring.Stride()
		for j := 0; j+stride < len(coords); j += stride {
			d := pointSegmentMeters(lat, lng,
				coords[j+1], coords[j],
				coords[j+stride+1], coords[j+stride])
			if d < min {
				min = d
			}
		}
	}
	return min
}

// Catalog is the ordered set of protected zones. Iteration order is polygon
// area ascending, so the smallest (most specific) zone wins a tie.
type Catalog struct {
	zones []Zone
}

// New builds a catalog from zones, establishing the priority order.
func New(zones []Zone) *Catalog {
	sorted := make([]Zone, len(zones))
	copy(sorted, zones)
	sort.SliceStable(sorted, func(i, j int) bool {
		return polygonArea(sorted[i].Polygon) < polygonArea(sorted[j].Polygon)
	})
	return &Catalog{zones: sorted}
}

// Zones returns the zones in priority order. Callers must not mutate.
func (c *Catalog) Zones() []Zone {
	return c.zones
}

// Len returns the number of zones.
func (c *Catalog) Len() int {
	return len(c.zones)
}

// LoadDefault parses the embedded zone catalog.
func LoadDefault() (*Catalog, error) {
	return Parse(defaultZones)
}

// LoadFile reads a GeoJSON FeatureCollection of protected zones from disk.
func LoadFile(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "catalog: read %s", path)
	}
	return Parse(data)
}

// Parse decodes a GeoJSON FeatureCollection into a catalog. Non-polygon
// features and features without a name are skipped with a warning.
func Parse(data []byte) (*Catalog, error) {
	var fc geojson.FeatureCollection
	if err := json.Unmarshal(data, &fc); err != nil {
		return nil, eris.Wrap(err, "catalog: parse geojson")
	}

	var zones []Zone
	for _, f := range fc.Features {
		poly, ok := f.Geometry.(*geom.Polygon)
		if !ok {
			zap.L().Warn("catalog: skipping non-polygon feature", zap.String("name", propString(f.Properties, "name")))
			continue
		}
		name := propString(f.Properties, "name")
		if name == "" {
			zap.L().Warn("catalog: skipping unnamed feature")
			continue
		}
		zones = append(zones, Zone{
			Name:     name,
			ZoneType: propString(f.Properties, "zone_type"),
			Law:      propString(f.Properties, "law"),
			Article:  propStringDefault(f.Properties, "article", "N/A"),
			Section:  propString(f.Properties, "section"),
			Severity: parseSeverity(propString(f.Properties, "severity")),
			Polygon:  poly,
		})
	}

	if len(zones) == 0 {
		return nil, eris.New("catalog: no polygon zones found")
	}
	return New(zones), nil
}

func propString(props map[string]any, key string) string {
	if v, ok := props[key].(string); ok {
		return v
	}
	return ""
}

func propStringDefault(props map[string]any, key, def string) string {
	if v := propString(props, key); v != "" {
		return v
	}
	return def
}

func parseSeverity(s string) model.Severity {
	switch model.Severity(s) {
	case model.SeverityCritical, model.SeverityHigh, model.SeverityWarning, model.SeverityInfo:
		return model.Severity(s)
	default:
		return model.SeverityHigh
	}
}

// polygonArea returns the planar ring area in square degrees, used only for
// relative ordering.
func polygonArea(p *geom.Polygon) float64 {
	if p == nil {
		return math.Inf(1)
	}
	return math.Abs(p.Area())
}

const earthRadiusMeters = 6371000

// pointSegmentMeters computes the distance in meters from point p to the
// segment (a, b), all given as (lat, lng) degrees.
func pointSegmentMeters(pLat, pLng, aLat, aLng, bLat, bLng float64) float64 {
	// Project to a local tangent plane centered on the point.
	cosLat := math.Cos(pLat * math.Pi / 180)
	toXY := func(lat, lng float64) (float64, float64) {
		x := (lng - pLng) * cosLat * math.Pi / 180 * earthRadiusMeters
		y := (lat - pLat) * math.Pi / 180 * earthRadiusMeters
		return x, y
	}

	ax, ay := toXY(aLat, aLng)
	bx, by := toXY(bLat, bLng)

	dx, dy := bx-ax, by-ay
	lenSq := dx*dx + dy*dy
	if lenSq == 0 {
		return math.Hypot(ax, ay)
	}

	// Projection of the origin (the point) onto the segment, clamped.
	t := -(ax*dx + ay*dy) / lenSq
	t = math.Max(0, math.Min(1, t))
	return math.Hypot(ax+t*dx, ay+t*dy)
}

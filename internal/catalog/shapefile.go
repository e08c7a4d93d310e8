package catalog

import (
	"strings"

	"github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"go.uber.org/zap"
)

// Shapefile attribute fields read during import. Missing severity defaults to
// HIGH via parseSeverity.
var shapefileFields = []string{"NAME", "ZONETYPE", "LAW", "ARTICLE", "SECTION", "SEVERITY"}

// ImportShapefile reads protected zones from an ESRI shapefile. Each polygon
// part becomes its own zone ring; non-polygon shapes are skipped.
func ImportShapefile(path string) (*Catalog, error) {
	reader, err := shp.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "catalog: open shapefile %s", path)
	}
	defer func() { _ = reader.Close() }()

	idx := make(map[string]int, len(shapefileFields))
	for _, name := range shapefileFields {
		idx[name] = fieldIndex(reader, name)
	}
	if idx["NAME"] < 0 {
		return nil, eris.New("catalog: shapefile has no NAME field")
	}

	attr := func(field string) string {
		j := idx[field]
		if j < 0 {
			return ""
		}
		return strings.TrimSpace(reader.Attribute(j))
	}

	var zones []Zone
	var skipped int
	for reader.Next() {
		_, shape := reader.Shape()
		poly, ok := shape.(*shp.Polygon)
		if !ok {
			skipped++
			continue
		}

		name := attr("NAME")
		if name == "" {
			skipped++
			continue
		}

		g := shapePolygon(poly)
		if g == nil {
			skipped++
			continue
		}

		article := attr("ARTICLE")
		if article == "" {
			article = "N/A"
		}

		zones = append(zones, Zone{
			Name:     name,
			ZoneType: attr("ZONETYPE"),
			Law:      attr("LAW"),
			Article:  article,
			Section:  attr("SECTION"),
			Severity: parseSeverity(attr("SEVERITY")),
			Polygon:  g,
		})
	}

	if skipped > 0 {
		zap.L().Warn("catalog: skipped shapefile records", zap.Int("skipped", skipped))
	}
	if len(zones) == 0 {
		return nil, eris.New("catalog: shapefile contained no usable polygons")
	}

	zap.L().Info("catalog: shapefile imported", zap.String("path", path), zap.Int("zones", len(zones)))
	return New(zones), nil
}

// shapePolygon converts a shapefile polygon to a geom.Polygon, one linear
// ring per part.
func shapePolygon(p *shp.Polygon) *geom.Polygon {
	if p == nil || p.NumParts == 0 || len(p.Points) == 0 {
		return nil
	}

	poly := geom.NewPolygon(geom.XY).SetSRID(4326)

	for i := int32(0); i < p.NumParts; i++ {
		start := p.Parts[i]
		end := int32(len(p.Points))
		if i+1 < p.NumParts {
			end = p.Parts[i+1]
		}

		flat := make([]float64, 0, (end-start)*2)
		for j := start; j < end; j++ {
			flat = append(flat, p.Points[j].X, p.Points[j].Y)
		}

		ring := geom.NewLinearRingFlat(geom.XY, flat)
		if err := poly.Push(ring); err != nil {
			zap.L().Debug("catalog: skipping malformed ring", zap.Int32("part", i), zap.Error(err))
		}
	}

	if poly.NumLinearRings() == 0 {
		return nil
	}
	return poly
}

// fieldIndex returns the index of a named field in the shapefile, or -1.
func fieldIndex(r *shp.Reader, name string) int {
	for i, f := range r.Fields() {
		if strings.EqualFold(strings.TrimRight(f.String(), "\x00"), name) {
			return i
		}
	}
	return -1
}

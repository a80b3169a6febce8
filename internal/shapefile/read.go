// Package shapefile reads and writes ESRI shapefiles as orb geometry and
// encodes geometry as EWKB for storage.
package shapefile

import (
	"path/filepath"
	"strconv"
	"strings"

	"github.com/jonas-p/go-shp"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/spectral-cli/internal/model"
)

// Fields names the attribute columns mapped onto FeatureRecord fields.
// Matching is case-insensitive; empty names are not mapped.
type Fields struct {
	ID     string
	Name   string
	Region string
}

// Read loads every record of a shapefile. All attributes are kept in
// Attributes under their upper-cased column names. Records with an empty or
// unsupported shape are skipped.
func Read(path string, fields Fields) ([]model.FeatureRecord, error) {
	if !strings.EqualFold(filepath.Ext(path), ".shp") {
		return nil, eris.Errorf("shapefile: %s is not a .shp file", path)
	}

	reader, err := shp.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "shapefile: open %s", path)
	}
	defer func() { _ = reader.Close() }()

	columns := reader.Fields()
	names := make([]string, len(columns))
	for i, f := range columns {
		names[i] = strings.ToUpper(strings.TrimRight(f.String(), "\x00"))
	}

	var records []model.FeatureRecord
	var skipped int

	for reader.Next() {
		idx, shape := reader.Shape()

		g := ToOrb(shape)
		if g == nil {
			skipped++
			continue
		}

		attrs := make(map[string]string, len(names))
		for i, name := range names {
			val := strings.TrimSpace(strings.TrimRight(reader.Attribute(i), "\x00"))
			if val != "" {
				attrs[name] = val
			}
		}

		rec := model.FeatureRecord{
			ID:         pick(attrs, fields.ID),
			Name:       pick(attrs, fields.Name),
			Region:     pick(attrs, fields.Region),
			Geometry:   g,
			Attributes: attrs,
		}
		if rec.ID == "" {
			rec.ID = strconv.Itoa(idx)
		}
		records = append(records, rec)
	}

	if err := reader.Err(); err != nil {
		return records, eris.Wrapf(err, "shapefile: read %s", path)
	}

	if skipped > 0 {
		zap.L().Debug("shapefile: skipped records",
			zap.String("path", path),
			zap.Int("skipped", skipped),
		)
	}

	return records, nil
}

func pick(attrs map[string]string, column string) string {
	if column == "" {
		return ""
	}
	return attrs[strings.ToUpper(column)]
}

// ToOrb converts a go-shp shape to orb geometry. Points stay points,
// polylines become MultiLineStrings, and polygons become MultiPolygons.
// Returns nil for nil, empty, or unsupported shapes.
func ToOrb(shape shp.Shape) orb.Geometry {
	switch s := shape.(type) {
	case *shp.Point:
		return orb.Point{s.X, s.Y}

	case *shp.MultiPoint:
		if len(s.Points) == 0 {
			return nil
		}
		mp := make(orb.MultiPoint, len(s.Points))
		for i, p := range s.Points {
			mp[i] = orb.Point{p.X, p.Y}
		}
		return mp

	case *shp.PolyLine:
		return polyLineToMultiLineString(s.Parts, s.Points)

	case *shp.Polygon:
		return polygonToMultiPolygon(s.Parts, s.Points)
	}
	return nil
}

// splitParts slices points into the parts the shapefile indexes describe.
func splitParts(parts []int32, points []shp.Point) [][]orb.Point {
	var out [][]orb.Point
	for i, start := range parts {
		end := int32(len(points))
		if i+1 < len(parts) {
			end = parts[i+1]
		}
		if start < 0 || start >= end || int(end) > len(points) {
			continue
		}
		seg := make([]orb.Point, 0, end-start)
		for _, p := range points[start:end] {
			seg = append(seg, orb.Point{p.X, p.Y})
		}
		out = append(out, seg)
	}
	return out
}

func polyLineToMultiLineString(parts []int32, points []shp.Point) orb.Geometry {
	var mls orb.MultiLineString
	for _, seg := range splitParts(parts, points) {
		if len(seg) < 2 {
			continue
		}
		mls = append(mls, orb.LineString(seg))
	}
	if len(mls) == 0 {
		return nil
	}
	return mls
}

// polygonToMultiPolygon groups rings into polygons. Clockwise rings are
// outer rings; counter-clockwise rings are holes of the outer ring that
// contains them. A hole with no containing outer ring becomes its own polygon.
func polygonToMultiPolygon(parts []int32, points []shp.Point) orb.Geometry {
	var mp orb.MultiPolygon
	var holes []orb.Ring

	for _, seg := range splitParts(parts, points) {
		ring := orb.Ring(seg)
		if !ring.Closed() {
			ring = append(ring, ring[0])
		}
		if len(ring) < 4 {
			continue
		}
		switch ring.Orientation() {
		case orb.CW:
			mp = append(mp, orb.Polygon{ring})
		case orb.CCW:
			holes = append(holes, ring)
		}
	}

	for _, h := range holes {
		placed := false
		for i := range mp {
			if planar.RingContains(mp[i][0], h[0]) {
				mp[i] = append(mp[i], h)
				placed = true
				break
			}
		}
		if !placed {
			mp = append(mp, orb.Polygon{h})
		}
	}

	if len(mp) == 0 {
		return nil
	}
	return mp
}

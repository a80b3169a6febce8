package shapefile

import (
	"github.com/paulmach/orb"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/ewkb"
	"go.uber.org/zap"
)

// SRID is the spatial reference of every encoded geometry (WGS-84).
const SRID = 4326

// EncodeEWKB converts orb geometry to little-endian EWKB with SRID 4326.
// Returns nil, nil for nil or unsupported geometry.
func EncodeEWKB(g orb.Geometry) ([]byte, error) {
	t := toGeom(g)
	if t == nil {
		return nil, nil
	}

	data, err := ewkb.Marshal(t, ewkb.NDR)
	if err != nil {
		return nil, eris.Wrap(err, "shapefile: encode EWKB")
	}
	return data, nil
}

// DecodePointEWKB parses an EWKB point.
func DecodePointEWKB(data []byte) (orb.Point, error) {
	t, err := ewkb.Unmarshal(data)
	if err != nil {
		return orb.Point{}, eris.Wrap(err, "shapefile: decode EWKB")
	}
	p, ok := t.(*geom.Point)
	if !ok {
		return orb.Point{}, eris.Errorf("shapefile: expected EWKB point, got %T", t)
	}
	return orb.Point{p.X(), p.Y()}, nil
}

func toGeom(g orb.Geometry) geom.T {
	switch v := g.(type) {
	case orb.Point:
		return geom.NewPointFlat(geom.XY, []float64{v[0], v[1]}).SetSRID(SRID)

	case orb.MultiPoint:
		if len(v) == 0 {
			return nil
		}
		return geom.NewMultiPointFlat(geom.XY, flatCoords(v)).SetSRID(SRID)

	case orb.LineString:
		return lineStringsToMultiLineString(orb.MultiLineString{v})

	case orb.MultiLineString:
		return lineStringsToMultiLineString(v)

	case orb.Polygon:
		return polygonsToMultiPolygon(orb.MultiPolygon{v})

	case orb.MultiPolygon:
		return polygonsToMultiPolygon(v)
	}
	return nil
}

func lineStringsToMultiLineString(lines orb.MultiLineString) geom.T {
	mls := geom.NewMultiLineString(geom.XY).SetSRID(SRID)
	for i, ls := range lines {
		if err := mls.Push(geom.NewLineStringFlat(geom.XY, flatCoords(ls))); err != nil {
			zap.L().Debug("shapefile: skipping malformed linestring part", zap.Int("part", i), zap.Error(err))
		}
	}
	if mls.NumLineStrings() == 0 {
		return nil
	}
	return mls
}

func polygonsToMultiPolygon(polys orb.MultiPolygon) geom.T {
	mp := geom.NewMultiPolygon(geom.XY).SetSRID(SRID)
	for i, poly := range polys {
		gp := geom.NewPolygon(geom.XY)
		for _, ring := range poly {
			if err := gp.Push(geom.NewLinearRingFlat(geom.XY, flatCoords(ring))); err != nil {
				zap.L().Debug("shapefile: skipping malformed ring", zap.Int("part", i), zap.Error(err))
			}
		}
		if gp.NumLinearRings() == 0 {
			continue
		}
		if err := mp.Push(gp); err != nil {
			zap.L().Debug("shapefile: skipping malformed polygon part", zap.Int("part", i), zap.Error(err))
		}
	}
	if mp.NumPolygons() == 0 {
		return nil
	}
	return mp
}

// flatCoords converts points to flat coordinate pairs for go-geom.
func flatCoords[T ~[]orb.Point](pts T) []float64 {
	flat := make([]float64, 0, len(pts)*2)
	for _, p := range pts {
		flat = append(flat, p[0], p[1])
	}
	return flat
}

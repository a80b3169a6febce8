package shapefile

import (
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/jonas-p/go-shp"
	"github.com/paulmach/orb"
	"github.com/rotisserie/eris"

	"github.com/sells-group/spectral-cli/internal/model"
)

const attrWidth = 254

// ShapeTypeFor returns the shapefile type that can hold g.
func ShapeTypeFor(g orb.Geometry) (shp.ShapeType, error) {
	switch g.(type) {
	case orb.Point:
		return shp.POINT, nil
	case orb.MultiPoint:
		return shp.MULTIPOINT, nil
	case orb.LineString, orb.MultiLineString:
		return shp.POLYLINE, nil
	case orb.Polygon, orb.MultiPolygon:
		return shp.POLYGON, nil
	}
	return shp.NULL, eris.Errorf("shapefile: unsupported geometry %T", g)
}

// Write creates a shapefile at path holding every record as shapeType
// geometry, with ID, NAME, and REGION attributes. Any existing
// .shp/.shx/.dbf at path is replaced. On error no partial output is left.
func Write(path string, shapeType shp.ShapeType, records []model.FeatureRecord) (err error) {
	if !strings.EqualFold(filepath.Ext(path), ".shp") {
		return eris.Errorf("shapefile: %s is not a .shp file", path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return eris.Wrap(err, "shapefile: create directory")
	}

	base := strings.TrimSuffix(path, filepath.Ext(path))
	w, err := shp.Create(path, shapeType)
	if err != nil {
		return eris.Wrapf(err, "shapefile: create %s", path)
	}

	closed := false
	defer func() {
		if !closed {
			w.Close()
		}
		if err != nil {
			removeOutputs(base)
		}
	}()

	if err := w.SetFields([]shp.Field{
		shp.StringField("ID", 64),
		shp.StringField("NAME", attrWidth),
		shp.StringField("REGION", attrWidth),
	}); err != nil {
		return eris.Wrap(err, "shapefile: set fields")
	}

	for i, rec := range records {
		shape, err := FromOrb(rec.Geometry, shapeType)
		if err != nil {
			return eris.Wrapf(err, "shapefile: record %d", i)
		}
		row := int(w.Write(shape))
		for field, val := range []string{truncate(rec.ID, 64), truncate(rec.Name, attrWidth), truncate(rec.Region, attrWidth)} {
			if err := w.WriteAttribute(row, field, val); err != nil {
				return eris.Wrapf(err, "shapefile: write attribute %d of record %d", field, i)
			}
		}
	}

	w.Close()
	closed = true

	// go-shp names the table base+"dbf"; readers expect base+".dbf".
	if err := os.Rename(base+"dbf", base+".dbf"); err != nil {
		return eris.Wrap(err, "shapefile: rename dbf")
	}
	return nil
}

func removeOutputs(base string) {
	for _, ext := range []string{".shp", ".shx", ".dbf", "dbf"} {
		_ = os.Remove(base + ext)
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	s = s[:n]
	for len(s) > 0 && !utf8.ValidString(s) {
		s = s[:len(s)-1]
	}
	return s
}

// FromOrb converts orb geometry to a go-shp shape of type t. Polygon rings
// are rewound so outer rings run clockwise and holes counter-clockwise.
func FromOrb(g orb.Geometry, t shp.ShapeType) (shp.Shape, error) {
	switch t {
	case shp.POINT:
		if p, ok := g.(orb.Point); ok {
			return &shp.Point{X: p[0], Y: p[1]}, nil
		}

	case shp.MULTIPOINT:
		if mp, ok := g.(orb.MultiPoint); ok {
			pts := toShpPoints(mp)
			return &shp.MultiPoint{Box: shp.BBoxFromPoints(pts), NumPoints: int32(len(pts)), Points: pts}, nil
		}

	case shp.POLYLINE:
		var parts [][]shp.Point
		switch v := g.(type) {
		case orb.LineString:
			parts = append(parts, toShpPoints(v))
		case orb.MultiLineString:
			for _, ls := range v {
				parts = append(parts, toShpPoints(ls))
			}
		}
		if len(parts) > 0 {
			return shp.NewPolyLine(parts), nil
		}

	case shp.POLYGON:
		var polys []orb.Polygon
		switch v := g.(type) {
		case orb.Polygon:
			polys = []orb.Polygon{v}
		case orb.MultiPolygon:
			polys = v
		}
		var parts [][]shp.Point
		for _, poly := range polys {
			for i, ring := range poly {
				parts = append(parts, toShpPoints(wind(ring, i == 0)))
			}
		}
		if len(parts) > 0 {
			return (*shp.Polygon)(shp.NewPolyLine(parts)), nil
		}
	}

	return nil, eris.Errorf("shapefile: cannot store %T as shape type %d", g, t)
}

// wind returns a closed copy of r running clockwise for outer rings and
// counter-clockwise for holes.
func wind(r orb.Ring, outer bool) orb.Ring {
	out := r.Clone()
	if len(out) > 0 && !out.Closed() {
		out = append(out, out[0])
	}
	o := out.Orientation()
	if (outer && o == orb.CCW) || (!outer && o == orb.CW) {
		out.Reverse()
	}
	return out
}

func toShpPoints[T ~[]orb.Point](pts T) []shp.Point {
	out := make([]shp.Point, len(pts))
	for i, p := range pts {
		out[i] = shp.Point{X: p[0], Y: p[1]}
	}
	return out
}

package convert

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/jonas-p/go-shp"
	"github.com/paulmach/orb"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/spectral-cli/internal/fetcher"
	"github.com/sells-group/spectral-cli/internal/model"
	"github.com/sells-group/spectral-cli/internal/shapefile"
)

// NativeRunner converts KML and KMZ to ESRI Shapefile without GDAL. The
// shape type is taken from the first placemark with geometry; placemarks of
// a different type are skipped.
type NativeRunner struct{}

// NewNativeRunner creates a NativeRunner.
func NewNativeRunner() *NativeRunner {
	return &NativeRunner{}
}

type kmlPlacemark struct {
	ID         string         `xml:"id,attr"`
	Name       string         `xml:"name"`
	Point      *kmlCoords     `xml:"Point"`
	LineString *kmlCoords     `xml:"LineString"`
	Polygon    *kmlPolygon    `xml:"Polygon"`
	Multi      *kmlMultiGeom  `xml:"MultiGeometry"`
	Data       []kmlDataValue `xml:"ExtendedData>Data"`
}

type kmlCoords struct {
	Coordinates string `xml:"coordinates"`
}

type kmlPolygon struct {
	Outer string   `xml:"outerBoundaryIs>LinearRing>coordinates"`
	Inner []string `xml:"innerBoundaryIs>LinearRing>coordinates"`
}

type kmlMultiGeom struct {
	Points      []kmlCoords    `xml:"Point"`
	LineStrings []kmlCoords    `xml:"LineString"`
	Polygons    []kmlPolygon   `xml:"Polygon"`
	Multi       []kmlMultiGeom `xml:"MultiGeometry"`
}

type kmlDataValue struct {
	Name  string `xml:"name,attr"`
	Value string `xml:"value"`
}

// Convert implements Runner.
func (n *NativeRunner) Convert(ctx context.Context, task model.ConversionTask) error {
	if task.Format != "" && task.Format != DefaultFormat {
		return eris.Errorf("convert: native driver cannot write %q", task.Format)
	}

	src, err := openKML(task.Source)
	if err != nil {
		return err
	}

	records, shapeType, err := readPlacemarks(ctx, src, task.Source)
	if err != nil {
		return err
	}
	return shapefile.Write(task.Destination, shapeType, records)
}

func openKML(path string) (io.Reader, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".kmz":
		data, err := fetcher.ReadKMZ(path)
		if err != nil {
			return nil, eris.Wrapf(err, "convert: open kmz %s", path)
		}
		return bytes.NewReader(data), nil
	default:
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, eris.Wrapf(err, "convert: read %s", path)
		}
		return bytes.NewReader(data), nil
	}
}

func readPlacemarks(ctx context.Context, r io.Reader, source string) ([]model.FeatureRecord, shp.ShapeType, error) {
	log := zap.L().With(zap.String("component", "convert"), zap.String("source", source))

	var (
		records   []model.FeatureRecord
		shapeType shp.ShapeType
		skipped   int
	)
	err := fetcher.EachXML(ctx, r, "Placemark", func(pm kmlPlacemark) error {
		g, err := pm.geometry()
		if err != nil {
			return eris.Wrapf(err, "convert: placemark %q", pm.Name)
		}
		if g == nil {
			skipped++
			return nil
		}
		t, err := shapefile.ShapeTypeFor(g)
		if err != nil {
			return err
		}
		if len(records) == 0 {
			shapeType = t
		} else if t != shapeType {
			skipped++
			return nil
		}
		records = append(records, model.FeatureRecord{
			ID:         pm.ID,
			Name:       strings.TrimSpace(pm.Name),
			Geometry:   g,
			Attributes: pm.attributes(),
		})
		return nil
	})
	if err != nil {
		return nil, shp.NULL, eris.Wrapf(err, "convert: parse %s", source)
	}
	if len(records) == 0 {
		return nil, shp.NULL, eris.Errorf("convert: no placemarks with geometry in %s", source)
	}
	if skipped > 0 {
		log.Warn("skipped placemarks", zap.Int("skipped", skipped))
	}
	return records, shapeType, nil
}

func (pm kmlPlacemark) attributes() map[string]string {
	if len(pm.Data) == 0 {
		return nil
	}
	attrs := make(map[string]string, len(pm.Data))
	for _, d := range pm.Data {
		attrs[d.Name] = strings.TrimSpace(d.Value)
	}
	return attrs
}

// geometry flattens the placemark into one orb geometry: polygons win over
// lines, lines over points. A placemark without geometry yields nil.
func (pm kmlPlacemark) geometry() (orb.Geometry, error) {
	var c collected
	if pm.Point != nil {
		if err := c.addPoint(*pm.Point); err != nil {
			return nil, err
		}
	}
	if pm.LineString != nil {
		if err := c.addLine(*pm.LineString); err != nil {
			return nil, err
		}
	}
	if pm.Polygon != nil {
		if err := c.addPolygon(*pm.Polygon); err != nil {
			return nil, err
		}
	}
	if pm.Multi != nil {
		if err := c.addMulti(*pm.Multi); err != nil {
			return nil, err
		}
	}
	return c.geometry(), nil
}

type collected struct {
	points   orb.MultiPoint
	lines    orb.MultiLineString
	polygons orb.MultiPolygon
}

func (c *collected) addPoint(k kmlCoords) error {
	pts, err := parseCoordinates(k.Coordinates)
	if err != nil {
		return err
	}
	if len(pts) != 1 {
		return eris.Errorf("point has %d coordinates", len(pts))
	}
	c.points = append(c.points, pts[0])
	return nil
}

func (c *collected) addLine(k kmlCoords) error {
	pts, err := parseCoordinates(k.Coordinates)
	if err != nil {
		return err
	}
	if len(pts) < 2 {
		return eris.Errorf("line string has %d coordinates", len(pts))
	}
	c.lines = append(c.lines, orb.LineString(pts))
	return nil
}

func (c *collected) addPolygon(k kmlPolygon) error {
	outer, err := parseRing(k.Outer)
	if err != nil {
		return err
	}
	poly := orb.Polygon{outer}
	for _, inner := range k.Inner {
		hole, err := parseRing(inner)
		if err != nil {
			return err
		}
		poly = append(poly, hole)
	}
	c.polygons = append(c.polygons, poly)
	return nil
}

func (c *collected) addMulti(m kmlMultiGeom) error {
	for _, p := range m.Points {
		if err := c.addPoint(p); err != nil {
			return err
		}
	}
	for _, l := range m.LineStrings {
		if err := c.addLine(l); err != nil {
			return err
		}
	}
	for _, p := range m.Polygons {
		if err := c.addPolygon(p); err != nil {
			return err
		}
	}
	for _, nested := range m.Multi {
		if err := c.addMulti(nested); err != nil {
			return err
		}
	}
	return nil
}

func (c *collected) geometry() orb.Geometry {
	switch {
	case len(c.polygons) == 1:
		return c.polygons[0]
	case len(c.polygons) > 1:
		return c.polygons
	case len(c.lines) == 1:
		return c.lines[0]
	case len(c.lines) > 1:
		return c.lines
	case len(c.points) == 1:
		return c.points[0]
	case len(c.points) > 1:
		return c.points
	}
	return nil
}

func parseRing(s string) (orb.Ring, error) {
	pts, err := parseCoordinates(s)
	if err != nil {
		return nil, err
	}
	if len(pts) < 3 {
		return nil, eris.Errorf("ring has %d coordinates", len(pts))
	}
	ring := orb.Ring(pts)
	if !ring.Closed() {
		ring = append(ring, ring[0])
	}
	return ring, nil
}

// parseCoordinates reads whitespace separated lon,lat[,alt] tuples.
func parseCoordinates(s string) ([]orb.Point, error) {
	fields := strings.Fields(s)
	pts := make([]orb.Point, 0, len(fields))
	for _, f := range fields {
		parts := strings.Split(f, ",")
		if len(parts) < 2 {
			return nil, eris.Errorf("bad coordinate %q", f)
		}
		lon, err := strconv.ParseFloat(parts[0], 64)
		if err != nil {
			return nil, eris.Wrapf(err, "bad longitude %q", parts[0])
		}
		lat, err := strconv.ParseFloat(parts[1], 64)
		if err != nil {
			return nil, eris.Wrapf(err, "bad latitude %q", parts[1])
		}
		pts = append(pts, orb.Point{lon, lat})
	}
	return pts, nil
}

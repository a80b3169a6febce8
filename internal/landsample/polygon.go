package landsample

import (
	"context"

	"github.com/dhconnelly/rtreego"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/spectral-cli/internal/model"
	"github.com/sells-group/spectral-cli/internal/shapefile"
)

type landPolygon struct {
	geom orb.MultiPolygon
	rect rtreego.Rect
}

func (l *landPolygon) Bounds() rtreego.Rect { return l.rect }

// PolygonClassifier reports land for points inside any of its polygons, such
// as country boundaries. Candidates come from an R-tree over polygon bounds.
type PolygonClassifier struct {
	tree *rtreego.Rtree
	size int
}

// NewPolygonClassifier indexes the polygonal records. Other geometry is ignored.
func NewPolygonClassifier(records []model.FeatureRecord) (*PolygonClassifier, error) {
	var objs []rtreego.Spatial
	for _, rec := range records {
		var mp orb.MultiPolygon
		switch g := rec.Geometry.(type) {
		case orb.Polygon:
			mp = orb.MultiPolygon{g}
		case orb.MultiPolygon:
			mp = g
		default:
			continue
		}
		b := mp.Bound()
		rect, err := rtreego.NewRectFromPoints(
			rtreego.Point{b.Min[0], b.Min[1]},
			rtreego.Point{b.Max[0], b.Max[1]},
		)
		if err != nil {
			return nil, eris.Wrapf(err, "landsample: bounds of %s", rec.Name)
		}
		objs = append(objs, &landPolygon{geom: mp, rect: rect})
	}
	return &PolygonClassifier{tree: rtreego.NewTree(2, 25, 50, objs...), size: len(objs)}, nil
}

// LoadPolygonClassifier reads land polygons from a shapefile.
func LoadPolygonClassifier(path string) (*PolygonClassifier, error) {
	records, err := shapefile.Read(path, shapefile.Fields{Name: "COUNTRY_NA"})
	if err != nil {
		return nil, eris.Wrap(err, "landsample: load land polygons")
	}
	c, err := NewPolygonClassifier(records)
	if err != nil {
		return nil, err
	}
	zap.L().Info("landsample: land polygons loaded", zap.String("path", path), zap.Int("polygons", c.Len()))
	return c, nil
}

// Len is the number of indexed polygons.
func (c *PolygonClassifier) Len() int {
	return c.size
}

// IsLand implements Classifier.
func (c *PolygonClassifier) IsLand(_ context.Context, p model.GeoPoint) (bool, error) {
	pt := p.Orb()
	for _, s := range c.tree.SearchIntersect(rtreego.Point{p.Lon, p.Lat}.ToRect(1e-9)) {
		if planar.MultiPolygonContains(s.(*landPolygon).geom, pt) {
			return true, nil
		}
	}
	return false, nil
}

// Package placeindex answers nearest-feature queries over a static set of
// named places through an R-tree.
package placeindex

import (
	"math"
	"sort"

	"github.com/dhconnelly/rtreego"
	"github.com/paulmach/orb/geo"
	"github.com/rotisserie/eris"

	"github.com/sells-group/spectral-cli/internal/model"
)

// ErrNotFound is returned by queries against an empty index.
var ErrNotFound = eris.New("placeindex: no features")

// pointTolerance gives indexed points a non-degenerate rectangle.
const pointTolerance = 1e-9

// Match is a nearest-neighbour result.
type Match struct {
	Feature model.FeatureRecord `json:"feature"`
	Point   model.GeoPoint      `json:"point"`
	// Degrees is the planar lon/lat distance used for ranking.
	Degrees float64 `json:"degrees"`
	// Meters is the great-circle distance to the query.
	Meters float64 `json:"meters"`
}

type entry struct {
	seq    int
	record model.FeatureRecord
	point  rtreego.Point
	rect   rtreego.Rect
}

func (e *entry) Bounds() rtreego.Rect { return e.rect }

// Index is immutable after New and safe for concurrent readers.
type Index struct {
	tree    *rtreego.Rtree
	entries []*entry
}

// New indexes each record at its representative point. Records without
// geometry are dropped.
func New(records []model.FeatureRecord) *Index {
	idx := &Index{}
	objs := make([]rtreego.Spatial, 0, len(records))
	for _, rec := range records {
		if rec.Geometry == nil {
			continue
		}
		p := rec.Point()
		pt := rtreego.Point{p.Lon, p.Lat}
		e := &entry{seq: len(idx.entries), record: rec, point: pt, rect: pt.ToRect(pointTolerance)}
		idx.entries = append(idx.entries, e)
		objs = append(objs, e)
	}
	idx.tree = rtreego.NewTree(2, 25, 50, objs...)
	return idx
}

// Len is the number of indexed features.
func (idx *Index) Len() int {
	return len(idx.entries)
}

// Nearest returns the feature closest to p by planar distance in degrees.
// Ties go to the feature indexed first.
func (idx *Index) Nearest(p model.GeoPoint) (Match, error) {
	matches, err := idx.NearestK(p, 1)
	if err != nil {
		return Match{}, err
	}
	return matches[0], nil
}

// NearestK returns up to k features ordered by distance from p.
func (idx *Index) NearestK(p model.GeoPoint, k int) ([]Match, error) {
	if len(idx.entries) == 0 {
		return nil, ErrNotFound
	}
	if k <= 0 {
		return nil, eris.Errorf("placeindex: k must be positive, got %d", k)
	}
	k = min(k, len(idx.entries))

	q := rtreego.Point{p.Lon, p.Lat}
	candidates := idx.tree.NearestNeighbors(k, q)

	// Anything within the k-th candidate's distance may tie or beat it.
	radius := 0.0
	for _, c := range candidates {
		if c == nil {
			continue
		}
		radius = math.Max(radius, planar(q, c.(*entry).point))
	}
	window, err := rtreego.NewRectFromPoints(
		rtreego.Point{q[0] - radius - pointTolerance, q[1] - radius - pointTolerance},
		rtreego.Point{q[0] + radius + pointTolerance, q[1] + radius + pointTolerance},
	)
	if err != nil {
		return nil, eris.Wrap(err, "placeindex: search window")
	}

	var hits []*entry
	for _, s := range idx.tree.SearchIntersect(window) {
		hits = append(hits, s.(*entry))
	}
	sort.Slice(hits, func(i, j int) bool {
		di, dj := planar(q, hits[i].point), planar(q, hits[j].point)
		if di != dj {
			return di < dj
		}
		return hits[i].seq < hits[j].seq
	})
	if len(hits) > k {
		hits = hits[:k]
	}

	out := make([]Match, len(hits))
	for i, e := range hits {
		at := model.GeoPoint{Lon: e.point[0], Lat: e.point[1]}
		out[i] = Match{
			Feature: e.record,
			Point:   at,
			Degrees: planar(q, e.point),
			Meters:  geo.Distance(p.Orb(), at.Orb()),
		}
	}
	return out, nil
}

func planar(a, b rtreego.Point) float64 {
	return math.Hypot(a[0]-b[0], a[1]-b[1])
}

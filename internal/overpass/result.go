package overpass

import (
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/planar"
)

// Result is the decoded [out:json] answer.
type Result struct {
	Version   float64   `json:"version"`
	Generator string    `json:"generator"`
	Remark    string    `json:"remark,omitempty"`
	Elements  []Element `json:"elements"`
}

// Element is a node, way, or relation.
type Element struct {
	Type     string            `json:"type"`
	ID       int64             `json:"id"`
	Lat      float64           `json:"lat,omitempty"`
	Lon      float64           `json:"lon,omitempty"`
	Center   *LatLon           `json:"center,omitempty"`
	Nodes    []int64           `json:"nodes,omitempty"`
	Geometry []LatLon          `json:"geometry,omitempty"`
	Members  []Member          `json:"members,omitempty"`
	Tags     map[string]string `json:"tags,omitempty"`
}

// Member is a relation member. Geometry is present with out geom.
type Member struct {
	Type     string   `json:"type"`
	Ref      int64    `json:"ref"`
	Role     string   `json:"role"`
	Geometry []LatLon `json:"geometry,omitempty"`
}

// LatLon is an Overpass coordinate.
type LatLon struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

func (ll LatLon) point() orb.Point {
	return orb.Point{ll.Lon, ll.Lat}
}

func lineOf(geom []LatLon) orb.LineString {
	ls := make(orb.LineString, len(geom))
	for i, ll := range geom {
		ls[i] = ll.point()
	}
	return ls
}

func closed(ls orb.LineString) bool {
	return len(ls) >= 4 && ls[0].Equal(ls[len(ls)-1])
}

// Row is one tabular node or way.
type Row struct {
	ID    int64             `json:"id"`
	Lat   float64           `json:"lat"`
	Lon   float64           `json:"lon"`
	Nodes int               `json:"nodes,omitempty"`
	Tags  map[string]string `json:"tags,omitempty"`
}

// Nodes returns one row per node element.
func (r *Result) Nodes() []Row {
	var rows []Row
	for _, e := range r.Elements {
		if e.Type != "node" {
			continue
		}
		rows = append(rows, Row{ID: e.ID, Lat: e.Lat, Lon: e.Lon, Tags: e.Tags})
	}
	return rows
}

// Ways returns one row per way, located at its centre. The centre comes
// from the geometry when present, else from the center element. Ways with
// neither are skipped.
func (r *Result) Ways() []Row {
	var rows []Row
	for _, e := range r.Elements {
		if e.Type != "way" {
			continue
		}
		c, ok := e.centre()
		if !ok {
			continue
		}
		n := len(e.Nodes)
		if n == 0 {
			n = len(e.Geometry)
		}
		rows = append(rows, Row{ID: e.ID, Lat: c.Lat(), Lon: c.Lon(), Nodes: n, Tags: e.Tags})
	}
	return rows
}

func (e Element) centre() (orb.Point, bool) {
	if len(e.Geometry) > 0 {
		ls := lineOf(e.Geometry)
		if closed(ls) {
			if c, area := planar.CentroidArea(orb.Polygon{orb.Ring(ls)}); area != 0 {
				return c, true
			}
		}
		return ls.Bound().Center(), true
	}
	if e.Center != nil {
		return e.Center.point(), true
	}
	return orb.Point{}, false
}

// FeatureCollection converts the result to GeoJSON. Nodes become points,
// closed ways polygons, and open ways line strings. Relations become
// multipolygons built from their closed outer and inner members. Elements
// without geometry fall back to their center when one was requested.
func (r *Result) FeatureCollection() *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for _, e := range r.Elements {
		g := e.geometry()
		if g == nil {
			continue
		}
		f := geojson.NewFeature(g)
		f.ID = e.ID
		f.Properties["osm_type"] = e.Type
		f.Properties["osm_id"] = e.ID
		for k, v := range e.Tags {
			f.Properties[k] = v
		}
		fc.Append(f)
	}
	return fc
}

func (e Element) geometry() orb.Geometry {
	switch e.Type {
	case "node":
		return orb.Point{e.Lon, e.Lat}
	case "way":
		if len(e.Geometry) >= 2 {
			ls := lineOf(e.Geometry)
			if closed(ls) {
				return orb.Polygon{orb.Ring(ls)}
			}
			return ls
		}
	case "relation":
		if mp := e.multiPolygon(); len(mp) > 0 {
			return mp
		}
	}
	if e.Center != nil {
		return e.Center.point()
	}
	return nil
}

func (e Element) multiPolygon() orb.MultiPolygon {
	var mp orb.MultiPolygon
	var holes []orb.Ring
	for _, m := range e.Members {
		if m.Type != "way" {
			continue
		}
		ls := lineOf(m.Geometry)
		if !closed(ls) {
			continue
		}
		switch m.Role {
		case "inner":
			holes = append(holes, orb.Ring(ls))
		default:
			mp = append(mp, orb.Polygon{orb.Ring(ls)})
		}
	}
	for _, h := range holes {
		for i := range mp {
			if planar.RingContains(mp[i][0], h[0]) {
				mp[i] = append(mp[i], h)
				break
			}
		}
	}
	return mp
}

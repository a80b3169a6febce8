package model

import (
	"math"
	"time"

	"github.com/paulmach/orb"
	"github.com/rotisserie/eris"
)

// metersPerDegree is the length of one degree of latitude on the WGS-84 mean sphere.
const metersPerDegree = 111320.0

// dateLayout is the calendar-day layout accepted on the command line and API.
const dateLayout = "2006-01-02"

// GeoPoint is a WGS-84 coordinate in decimal degrees.
type GeoPoint struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Validate checks the point lies on the globe.
func (p GeoPoint) Validate() error {
	if math.IsNaN(p.Lat) || p.Lat < -90 || p.Lat > 90 {
		return eris.Errorf("model: latitude %v out of range [-90, 90]", p.Lat)
	}
	if math.IsNaN(p.Lon) || p.Lon < -180 || p.Lon > 180 {
		return eris.Errorf("model: longitude %v out of range [-180, 180]", p.Lon)
	}
	return nil
}

// Orb returns the point as an orb.Point (X = lon, Y = lat).
func (p GeoPoint) Orb() orb.Point {
	return orb.Point{p.Lon, p.Lat}
}

// PointFromOrb converts an orb.Point to a GeoPoint.
func PointFromOrb(pt orb.Point) GeoPoint {
	return GeoPoint{Lat: pt.Lat(), Lon: pt.Lon()}
}

// BoundingBox is an axis-aligned lon/lat rectangle.
type BoundingBox struct {
	MinLon float64 `json:"min_lon" yaml:"min_lon"`
	MinLat float64 `json:"min_lat" yaml:"min_lat"`
	MaxLon float64 `json:"max_lon" yaml:"max_lon"`
	MaxLat float64 `json:"max_lat" yaml:"max_lat"`
}

// Validate checks min <= max on both axes and that the corners are valid points.
func (b BoundingBox) Validate() error {
	if b.MinLon > b.MaxLon {
		return eris.Errorf("model: bbox min_lon %v > max_lon %v", b.MinLon, b.MaxLon)
	}
	if b.MinLat > b.MaxLat {
		return eris.Errorf("model: bbox min_lat %v > max_lat %v", b.MinLat, b.MaxLat)
	}
	if err := (GeoPoint{Lat: b.MinLat, Lon: b.MinLon}).Validate(); err != nil {
		return eris.Wrap(err, "model: bbox lower corner")
	}
	if err := (GeoPoint{Lat: b.MaxLat, Lon: b.MaxLon}).Validate(); err != nil {
		return eris.Wrap(err, "model: bbox upper corner")
	}
	return nil
}

// Contains reports whether p lies inside or on the edge of the box.
func (b BoundingBox) Contains(p GeoPoint) bool {
	return p.Lon >= b.MinLon && p.Lon <= b.MaxLon && p.Lat >= b.MinLat && p.Lat <= b.MaxLat
}

// Intersects reports whether the two boxes share any area or edge.
func (b BoundingBox) Intersects(o BoundingBox) bool {
	return b.Bound().Intersects(o.Bound())
}

// Bound returns the box as an orb.Bound.
func (b BoundingBox) Bound() orb.Bound {
	return orb.Bound{Min: orb.Point{b.MinLon, b.MinLat}, Max: orb.Point{b.MaxLon, b.MaxLat}}
}

// BoxFromBound converts an orb.Bound to a BoundingBox.
func BoxFromBound(b orb.Bound) BoundingBox {
	return BoundingBox{MinLon: b.Min.Lon(), MinLat: b.Min.Lat(), MaxLon: b.Max.Lon(), MaxLat: b.Max.Lat()}
}

// BufferPoint returns the square box extending meters in every direction
// from p, clamped to the globe.
func BufferPoint(p GeoPoint, meters float64) BoundingBox {
	dLon, dLat := MetersToDegrees(p.Lat, meters)
	return BoundingBox{
		MinLon: math.Max(-180, p.Lon-dLon),
		MinLat: math.Max(-90, p.Lat-dLat),
		MaxLon: math.Min(180, p.Lon+dLon),
		MaxLat: math.Min(90, p.Lat+dLat),
	}
}

// MetersToDegrees converts a ground distance at latitude lat to degree
// offsets along longitude and latitude.
func MetersToDegrees(lat, meters float64) (dLon, dLat float64) {
	dLat = meters / metersPerDegree
	dLon = dLat
	if c := math.Cos(lat * math.Pi / 180); c > 1e-9 {
		dLon = meters / (metersPerDegree * c)
	}
	return dLon, dLat
}

// DateRange is an inclusive calendar-day interval.
type DateRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// ParseDateRange parses two YYYY-MM-DD dates into a DateRange.
func ParseDateRange(start, end string) (DateRange, error) {
	s, err := time.Parse(dateLayout, start)
	if err != nil {
		return DateRange{}, eris.Wrapf(err, "model: parse start date %q", start)
	}
	e, err := time.Parse(dateLayout, end)
	if err != nil {
		return DateRange{}, eris.Wrapf(err, "model: parse end date %q", end)
	}
	r := DateRange{Start: s, End: e}
	if err := r.Validate(); err != nil {
		return DateRange{}, err
	}
	return r, nil
}

// Validate rejects ranges whose end precedes the start.
func (r DateRange) Validate() error {
	if day(r.End).Before(day(r.Start)) {
		return eris.Errorf("model: date range end %s before start %s",
			r.End.Format(dateLayout), r.Start.Format(dateLayout))
	}
	return nil
}

// Contains reports whether t falls on or between the start and end days.
func (r DateRange) Contains(t time.Time) bool {
	d := day(t)
	return !d.Before(day(r.Start)) && !d.After(day(r.End))
}

// String formats the range as start/end.
func (r DateRange) String() string {
	return r.Start.Format(dateLayout) + "/" + r.End.Format(dateLayout)
}

func day(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

package raster

import (
	"math"
	"slices"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/spectral-cli/internal/model"
	"github.com/sells-group/spectral-cli/internal/spectral"
)

// Reducer collapses the valid values of one pixel or region to a single number.
// Implementations return NaN for an empty input.
type Reducer interface {
	Name() string
	Reduce(vals []float64) float64
}

type reducerFunc struct {
	name string
	fn   func([]float64) float64
}

func (r reducerFunc) Name() string { return r.name }

func (r reducerFunc) Reduce(vals []float64) float64 {
	if len(vals) == 0 {
		return math.NaN()
	}
	return r.fn(vals)
}

// Built-in reducers.
var (
	Median Reducer = reducerFunc{"median", median}
	Mean   Reducer = reducerFunc{"mean", mean}
	Min    Reducer = reducerFunc{"min", func(v []float64) float64 { return slices.Min(v) }}
	Max    Reducer = reducerFunc{"max", func(v []float64) float64 { return slices.Max(v) }}
	First  Reducer = reducerFunc{"first", func(v []float64) float64 { return v[0] }}
)

// ReducerByName resolves a reducer from its name.
func ReducerByName(name string) (Reducer, error) {
	for _, r := range []Reducer{Median, Mean, Min, Max, First} {
		if strings.EqualFold(r.Name(), name) {
			return r, nil
		}
	}
	return nil, eris.Errorf("raster: unknown reducer %q", name)
}

func median(v []float64) float64 {
	s := slices.Clone(v)
	slices.Sort(s)
	n := len(s)
	if n%2 == 1 {
		return s[n/2]
	}
	return (s[n/2-1] + s[n/2]) / 2
}

func mean(v []float64) float64 {
	var sum float64
	for _, x := range v {
		sum += x
	}
	return sum / float64(len(v))
}

// Composite reduces a collection pixel-wise onto the grid of its first
// image. Other images are sampled at each pixel center; masked and NaN
// pixels never contribute. Pixels with no contribution are NaN.
func Composite(c *Collection, r Reducer) (*Image, error) {
	first, err := c.First()
	if err != nil {
		return nil, err
	}

	ref := first.Grid
	out := NewImage("composite:"+r.Name(), first.Time, ref)

	names := unionBands(c.images)
	vals := make([]float64, 0, c.Size())
	for _, name := range names {
		data := make([]float64, ref.Len())
		for row := range ref.Height {
			for col := range ref.Width {
				i := ref.Index(col, row)
				center := ref.Center(col, row)
				vals = vals[:0]
				for _, im := range c.images {
					v := pixelOnGrid(im, name, ref, i, center)
					if !math.IsNaN(v) {
						vals = append(vals, v)
					}
				}
				data[i] = r.Reduce(vals)
			}
		}
		if err := out.AddBand(name, data); err != nil {
			return nil, err
		}
	}

	zap.L().Debug("raster: composite built",
		zap.String("reducer", r.Name()),
		zap.Int("images", c.Size()),
		zap.Int("bands", len(names)),
	)
	return out, nil
}

func pixelOnGrid(im *Image, band string, ref Grid, i int, center model.GeoPoint) float64 {
	if im.Grid == ref {
		return im.Pixel(band, i)
	}
	v, _ := im.ValueAt(band, center)
	return v
}

func unionBands(images []*Image) []string {
	seen := make(map[string]bool)
	var names []string
	for _, im := range images {
		for _, n := range im.BandNames() {
			if !seen[n] {
				seen[n] = true
				names = append(names, n)
			}
		}
	}
	return names
}

// Sample reduces one image to a value per band around p using the mean.
func Sample(im *Image, p model.GeoPoint, scale float64) spectral.Sample {
	return SampleWith(im, p, scale, Mean)
}

// SampleWith reduces one image to a value per band around p. When scale is
// at or below the pixel size the containing pixel is used; otherwise every
// pixel whose center lies inside the scale-meter square around p
// contributes. Bands without a valid contributing pixel are NaN.
func SampleWith(im *Image, p model.GeoPoint, scale float64, r Reducer) spectral.Sample {
	cells := windowCells(im.Grid, p, scale)
	out := make(spectral.Sample, len(im.order))
	vals := make([]float64, 0, len(cells))
	for _, name := range im.order {
		vals = vals[:0]
		for _, i := range cells {
			if v := im.Pixel(name, i); !math.IsNaN(v) {
				vals = append(vals, v)
			}
		}
		out[name] = r.Reduce(vals)
	}
	return out
}

func windowCells(g Grid, p model.GeoPoint, scale float64) []int {
	col, row, ok := g.Cell(p)
	if !ok {
		return nil
	}
	if scale <= g.PixelMeters(p.Lat) {
		return []int{g.Index(col, row)}
	}

	dLon, dLat := model.MetersToDegrees(p.Lat, scale/2)
	win := model.BoundingBox{MinLon: p.Lon - dLon, MinLat: p.Lat - dLat, MaxLon: p.Lon + dLon, MaxLat: p.Lat + dLat}

	c0, r0 := clampCell(g, model.GeoPoint{Lon: win.MinLon, Lat: win.MaxLat})
	c1, r1 := clampCell(g, model.GeoPoint{Lon: win.MaxLon, Lat: win.MinLat})

	var cells []int
	for rr := r0; rr <= r1; rr++ {
		for cc := c0; cc <= c1; cc++ {
			if win.Contains(g.Center(cc, rr)) {
				cells = append(cells, g.Index(cc, rr))
			}
		}
	}
	if len(cells) == 0 {
		cells = []int{g.Index(col, row)}
	}
	return cells
}

func clampCell(g Grid, p model.GeoPoint) (col, row int) {
	fc := math.Floor((p.Lon - g.OriginLon) / g.ResX)
	fr := math.Floor((g.OriginLat - p.Lat) / g.ResY)
	col = int(math.Max(0, math.Min(float64(g.Width-1), fc)))
	row = int(math.Max(0, math.Min(float64(g.Height-1), fr)))
	return col, row
}

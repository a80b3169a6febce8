// Package raster holds a small in-process raster engine: north-up band
// grids, image collections with metadata filters, pixel-wise reducers, and
// point sampling.
package raster

import (
	"math"

	"github.com/rotisserie/eris"

	"github.com/sells-group/spectral-cli/internal/model"
)

// Grid is a north-up geotransform in lon/lat degrees. The origin is the
// top-left corner of the top-left pixel.
type Grid struct {
	OriginLon float64 `json:"origin_lon" yaml:"origin_lon"`
	OriginLat float64 `json:"origin_lat" yaml:"origin_lat"`
	ResX      float64 `json:"res_x" yaml:"res_x"`
	ResY      float64 `json:"res_y" yaml:"res_y"`
	Width     int     `json:"width" yaml:"width"`
	Height    int     `json:"height" yaml:"height"`
}

// GridFromBounds builds a grid covering b with the given pixel size.
func GridFromBounds(b model.BoundingBox, resX, resY float64) Grid {
	return Grid{
		OriginLon: b.MinLon,
		OriginLat: b.MaxLat,
		ResX:      resX,
		ResY:      resY,
		Width:     int(math.Max(1, math.Ceil((b.MaxLon-b.MinLon)/resX))),
		Height:    int(math.Max(1, math.Ceil((b.MaxLat-b.MinLat)/resY))),
	}
}

// Validate checks the grid has a positive size and resolution.
func (g Grid) Validate() error {
	if g.Width <= 0 || g.Height <= 0 {
		return eris.Errorf("raster: grid size %dx%d must be positive", g.Width, g.Height)
	}
	if g.ResX <= 0 || g.ResY <= 0 {
		return eris.Errorf("raster: grid resolution %vx%v must be positive", g.ResX, g.ResY)
	}
	return nil
}

// Len is the number of pixels.
func (g Grid) Len() int {
	return g.Width * g.Height
}

// Index returns the flat offset of a cell.
func (g Grid) Index(col, row int) int {
	return row*g.Width + col
}

// Cell returns the column and row containing p.
func (g Grid) Cell(p model.GeoPoint) (col, row int, ok bool) {
	fc := (p.Lon - g.OriginLon) / g.ResX
	fr := (g.OriginLat - p.Lat) / g.ResY
	if fc < 0 || fr < 0 {
		return 0, 0, false
	}
	col, row = int(fc), int(fr)
	// Points on the far edge belong to the last cell.
	if col == g.Width && fc == float64(g.Width) {
		col--
	}
	if row == g.Height && fr == float64(g.Height) {
		row--
	}
	if col >= g.Width || row >= g.Height {
		return 0, 0, false
	}
	return col, row, true
}

// Center returns the coordinate of a cell center.
func (g Grid) Center(col, row int) model.GeoPoint {
	return model.GeoPoint{
		Lon: g.OriginLon + (float64(col)+0.5)*g.ResX,
		Lat: g.OriginLat - (float64(row)+0.5)*g.ResY,
	}
}

// Bound returns the grid footprint.
func (g Grid) Bound() model.BoundingBox {
	return model.BoundingBox{
		MinLon: g.OriginLon,
		MinLat: g.OriginLat - float64(g.Height)*g.ResY,
		MaxLon: g.OriginLon + float64(g.Width)*g.ResX,
		MaxLat: g.OriginLat,
	}
}

// PixelMeters is the approximate ground size of the larger pixel side at lat.
func (g Grid) PixelMeters(lat float64) float64 {
	dLon, dLat := model.MetersToDegrees(lat, 1)
	return math.Max(g.ResX/dLon, g.ResY/dLat)
}

// Resample maps data laid out on src onto dst by nearest neighbour: each
// dst pixel takes the src pixel containing its center, or NaN outside src.
func Resample(src Grid, data []float64, dst Grid) []float64 {
	if src == dst {
		return data
	}
	out := make([]float64, dst.Len())
	for row := range dst.Height {
		for col := range dst.Width {
			i := dst.Index(col, row)
			sc, sr, ok := src.Cell(dst.Center(col, row))
			if !ok {
				out[i] = math.NaN()
				continue
			}
			out[i] = data[src.Index(sc, sr)]
		}
	}
	return out
}

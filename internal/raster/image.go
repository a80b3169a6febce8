package raster

import (
	"math"
	"slices"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/spectral-cli/internal/model"
)

// Image is a multi-band raster on a single grid. Band values are NaN where
// there is no data; an optional mask further marks pixels invalid.
// Band slices are never mutated once added.
type Image struct {
	ID         string
	Time       time.Time
	CloudCover float64
	Grid       Grid

	bands map[string][]float64
	order []string
	mask  []bool
}

// NewImage creates an image with no bands.
func NewImage(id string, t time.Time, g Grid) *Image {
	return &Image{ID: id, Time: t, Grid: g, bands: make(map[string][]float64)}
}

// Clone returns a copy that shares band data but not band bookkeeping.
func (im *Image) Clone() *Image {
	out := *im
	out.bands = make(map[string][]float64, len(im.bands))
	for k, v := range im.bands {
		out.bands[k] = v
	}
	out.order = slices.Clone(im.order)
	return &out
}

// AddBand stores data under name, replacing any band of the same name.
func (im *Image) AddBand(name string, data []float64) error {
	if len(data) != im.Grid.Len() {
		return eris.Errorf("raster: band %s has %d pixels, grid has %d", name, len(data), im.Grid.Len())
	}
	if _, exists := im.bands[name]; !exists {
		im.order = append(im.order, name)
	}
	im.bands[name] = data
	return nil
}

// Band returns the raw data of a band.
func (im *Image) Band(name string) ([]float64, bool) {
	b, ok := im.bands[name]
	return b, ok
}

// HasBand reports whether the image carries name.
func (im *Image) HasBand(name string) bool {
	_, ok := im.bands[name]
	return ok
}

// BandNames returns band names in insertion order.
func (im *Image) BandNames() []string {
	return slices.Clone(im.order)
}

// Footprint is the image extent.
func (im *Image) Footprint() model.BoundingBox {
	return im.Grid.Bound()
}

// Valid reports whether pixel i is unmasked.
func (im *Image) Valid(i int) bool {
	return im.mask == nil || im.mask[i]
}

// Pixel returns the value of band at offset i, or NaN when masked or absent.
func (im *Image) Pixel(band string, i int) float64 {
	b, ok := im.bands[band]
	if !ok || !im.Valid(i) {
		return math.NaN()
	}
	return b[i]
}

// ValueAt returns the value of band at the pixel containing p.
func (im *Image) ValueAt(band string, p model.GeoPoint) (float64, bool) {
	col, row, ok := im.Grid.Cell(p)
	if !ok {
		return math.NaN(), false
	}
	v := im.Pixel(band, im.Grid.Index(col, row))
	return v, !math.IsNaN(v)
}

// UpdateMask returns a copy whose mask is the AND of the current mask and m.
func (im *Image) UpdateMask(m []bool) (*Image, error) {
	if len(m) != im.Grid.Len() {
		return nil, eris.Errorf("raster: mask has %d pixels, grid has %d", len(m), im.Grid.Len())
	}
	out := im.Clone()
	combined := make([]bool, len(m))
	for i := range m {
		combined[i] = m[i] && im.Valid(i)
	}
	out.mask = combined
	return out, nil
}

// Scale returns a copy with every band divided by factor.
func (im *Image) Scale(factor float64) *Image {
	out := im.Clone()
	for name, data := range im.bands {
		scaled := make([]float64, len(data))
		for i, v := range data {
			scaled[i] = v / factor
		}
		out.bands[name] = scaled
	}
	return out
}

// Select returns a copy containing only the named bands.
func (im *Image) Select(names ...string) (*Image, error) {
	out := im.Clone()
	out.bands = make(map[string][]float64, len(names))
	out.order = nil
	for _, n := range names {
		b, ok := im.bands[n]
		if !ok {
			return nil, eris.Errorf("raster: image %s has no band %s", im.ID, n)
		}
		out.bands[n] = b
		out.order = append(out.order, n)
	}
	return out, nil
}

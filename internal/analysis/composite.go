package analysis

import (
	"context"
	"math"

	"github.com/sells-group/spectral-cli/internal/model"
	"github.com/sells-group/spectral-cli/internal/raster"
	"github.com/sells-group/spectral-cli/internal/spectral"
)

// BandStats summarises the valid pixels of one composite band. Min, Max and
// Mean are nil when no pixel is valid.
type BandStats struct {
	Band   string   `json:"band"`
	Valid  int      `json:"valid"`
	Pixels int      `json:"pixels"`
	Min    *float64 `json:"min,omitempty"`
	Max    *float64 `json:"max,omitempty"`
	Mean   *float64 `json:"mean,omitempty"`
}

// CompositeResult describes a reduced collection around a point.
type CompositeResult struct {
	Region  model.BoundingBox    `json:"region"`
	Reducer string               `json:"reducer"`
	Images  int                  `json:"images"`
	Width   int                  `json:"width"`
	Height  int                  `json:"height"`
	Bands   []BandStats          `json:"bands"`
	AtPoint []spectral.BandValue `json:"at_point"`

	image *raster.Image
}

// Image returns the composite raster.
func (r *CompositeResult) Image() *raster.Image {
	return r.image
}

// Composite reduces the collection around the point pixel-wise with the
// configured reducer and summarises every band.
func (s *Service) Composite(ctx context.Context, req Request) (*CompositeResult, error) {
	c, q, err := s.Collection(ctx, req)
	if err != nil {
		return nil, err
	}
	r := s.reducer()
	im, err := raster.Composite(c, r)
	if err != nil {
		return nil, err
	}

	return &CompositeResult{
		Region:  q.Region,
		Reducer: r.Name(),
		Images:  c.Size(),
		Width:   im.Grid.Width,
		Height:  im.Grid.Height,
		Bands:   Stats(im),
		AtPoint: raster.Sample(im, req.Point, s.scale()).Valid(),
		image:   im,
	}, nil
}

// Stats computes per-band statistics over valid pixels, in canonical band
// order.
func Stats(im *raster.Image) []BandStats {
	names := im.BandNames()
	spectral.SortBands(names)

	n := im.Grid.Len()
	out := make([]BandStats, 0, len(names))
	for _, name := range names {
		st := BandStats{Band: name, Pixels: n}
		lo, hi, sum := math.Inf(1), math.Inf(-1), 0.0
		for i := range n {
			v := im.Pixel(name, i)
			if math.IsNaN(v) || math.IsInf(v, 0) {
				continue
			}
			st.Valid++
			lo, hi, sum = math.Min(lo, v), math.Max(hi, v), sum+v
		}
		if st.Valid > 0 {
			mean := sum / float64(st.Valid)
			st.Min, st.Max, st.Mean = &lo, &hi, &mean
		}
		out = append(out, st)
	}
	return out
}

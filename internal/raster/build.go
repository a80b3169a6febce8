package raster

import (
	"context"
	"math"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/spectral-cli/internal/model"
	"github.com/sells-group/spectral-cli/internal/spectral"
)

// Query selects images by region, acquisition day, and scene cloud cover.
type Query struct {
	Region        model.BoundingBox `json:"region"`
	Dates         model.DateRange   `json:"dates"`
	MaxCloudCover float64           `json:"max_cloud_cover"`
}

// Validate checks the query before it is sent to a source.
func (q Query) Validate() error {
	if err := q.Region.Validate(); err != nil {
		return eris.Wrap(err, "raster: query region")
	}
	if err := q.Dates.Validate(); err != nil {
		return eris.Wrap(err, "raster: query dates")
	}
	if math.IsNaN(q.MaxCloudCover) || q.MaxCloudCover < 0 || q.MaxCloudCover > 100 {
		return eris.Errorf("raster: max cloud cover %v out of range [0, 100]", q.MaxCloudCover)
	}
	return nil
}

// Source supplies candidate images for a query. Sources may prefilter, but
// Builder applies every filter again.
type Source interface {
	Images(ctx context.Context, q Query) ([]*Image, error)
}

// StaticSource serves a fixed set of in-memory images.
type StaticSource []*Image

// Images returns every image; filtering happens in Builder.
func (s StaticSource) Images(_ context.Context, _ Query) ([]*Image, error) {
	return s, nil
}

// Builder assembles a filtered, cloud-masked, index-annotated collection.
type Builder struct {
	source  Source
	indices []spectral.IndexDefinition
}

// NewBuilder creates a Builder. With no definitions the full index catalog is used.
func NewBuilder(src Source, indices ...spectral.IndexDefinition) *Builder {
	if len(indices) == 0 {
		indices = spectral.Indices
	}
	return &Builder{source: src, indices: indices}
}

// Build filters by date, region, and cloud cover, then masks clouds and
// appends the index bands to every surviving image.
func (b *Builder) Build(ctx context.Context, q Query) (*Collection, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}

	log := zap.L().With(zap.String("component", "raster.build"), zap.String("dates", q.Dates.String()))

	images, err := b.source.Images(ctx, q)
	if err != nil {
		return nil, eris.Wrap(err, "raster: fetch images")
	}

	c := NewCollection(images...).
		FilterDate(q.Dates).
		FilterBounds(q.Region).
		FilterCloudCover(q.MaxCloudCover).
		SortByTime()

	log.Debug("collection filtered",
		zap.Int("candidates", len(images)),
		zap.Int("kept", c.Size()),
	)

	c, err = c.Map(MaskClouds)
	if err != nil {
		return nil, err
	}
	return c.Map(AddIndices(b.indices...))
}

// MaskClouds drops pixels flagged in the QA60 band and rescales digital
// numbers to reflectance. Images without QA60 are only rescaled.
func MaskClouds(im *Image) (*Image, error) {
	qa, ok := im.Band(spectral.QA60)
	if !ok {
		zap.L().Debug("raster: image has no QA60 band, skipping cloud mask", zap.String("image", im.ID))
		return im.Scale(spectral.ReflectanceScale), nil
	}

	mask := make([]bool, len(qa))
	for i, v := range qa {
		mask[i] = spectral.CloudFree(v)
	}
	masked, err := im.UpdateMask(mask)
	if err != nil {
		return nil, err
	}
	return masked.Scale(spectral.ReflectanceScale), nil
}

// AddIndices returns a mapper that appends each index band. Masked pixels
// and pixels with missing inputs are NaN.
func AddIndices(defs ...spectral.IndexDefinition) func(*Image) (*Image, error) {
	return func(im *Image) (*Image, error) {
		out := im.Clone()
		for _, d := range defs {
			inputs := make([][]float64, len(d.Bands))
			missing := false
			for j, name := range d.Bands {
				band, ok := im.Band(name)
				if !ok {
					missing = true
					break
				}
				inputs[j] = band
			}

			data := make([]float64, im.Grid.Len())
			vals := make([]float64, len(d.Bands))
			for i := range data {
				if missing || !im.Valid(i) {
					data[i] = math.NaN()
					continue
				}
				for j := range inputs {
					vals[j] = inputs[j][i]
				}
				data[i] = d.Evaluate(vals)
			}
			if err := out.AddBand(d.Name, data); err != nil {
				return nil, err
			}
		}
		return out, nil
	}
}

package scene

import (
	"context"
	"slices"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/spectral-cli/internal/model"
	"github.com/sells-group/spectral-cli/internal/raster"
	"github.com/sells-group/spectral-cli/internal/spectral"
)

// DefaultResolution is about 10 m at the equator, in degrees.
const DefaultResolution = 0.0001

// DefaultBands are the bands read when Source.Bands is empty: those needed
// by the index catalog plus the cloud mask.
var DefaultBands = []string{
	spectral.B2, spectral.B3, spectral.B4, spectral.B5, spectral.B8,
	spectral.B11, spectral.B12, spectral.QA60,
}

// Source implements raster.Source over indexed scenes.
type Source struct {
	Scenes     []Scene
	Reader     BandReader
	Bands      []string
	Resolution float64
}

// NewSource creates a Source with the default bands and resolution.
func NewSource(scenes []Scene, r BandReader) *Source {
	return &Source{Scenes: scenes, Reader: r, Bands: DefaultBands, Resolution: DefaultResolution}
}

// Match returns the scenes passing the query's date, region, and cloud
// filters, oldest first.
func (s *Source) Match(q raster.Query) []Scene {
	var out []Scene
	for _, sc := range s.Scenes {
		if q.Dates.Contains(sc.Datetime) && sc.BBox.Intersects(q.Region) && sc.CloudCover < q.MaxCloudCover {
			out = append(out, sc)
		}
	}
	slices.SortStableFunc(out, func(a, b Scene) int { return a.Datetime.Compare(b.Datetime) })
	return out
}

// Images reads every matching scene clipped to the query region. Bands are
// resampled onto the grid of the first band read. A scene that fails to
// read is logged and skipped.
func (s *Source) Images(ctx context.Context, q raster.Query) ([]*raster.Image, error) {
	log := zap.L().With(zap.String("component", "scene"))

	var images []*raster.Image
	for _, sc := range s.Match(q) {
		if err := ctx.Err(); err != nil {
			return nil, eris.Wrap(err, "scene: cancelled")
		}
		im, err := s.read(ctx, sc, q.Region)
		if err != nil {
			log.Warn("skipping scene", zap.String("scene", sc.ID), zap.Error(err))
			continue
		}
		images = append(images, im)
	}

	log.Debug("scenes read", zap.Int("images", len(images)))
	return images, nil
}

func (s *Source) read(ctx context.Context, sc Scene, region model.BoundingBox) (*raster.Image, error) {
	window, ok := intersect(sc.BBox, region)
	if !ok {
		return nil, eris.New("scene: no overlap with region")
	}

	names := s.Bands
	if len(names) == 0 {
		names = DefaultBands
	}
	res := s.Resolution
	if res <= 0 {
		res = DefaultResolution
	}

	var im *raster.Image
	for _, name := range names {
		href, ok := sc.Bands[name]
		if !ok {
			continue
		}
		g, data, err := s.Reader.ReadBand(ctx, href, window, res)
		if err != nil {
			return nil, eris.Wrapf(err, "scene: band %s", name)
		}
		if im == nil {
			im = raster.NewImage(sc.ID, sc.Datetime, g)
			im.CloudCover = sc.CloudCover
		}
		if err := im.AddBand(name, raster.Resample(g, data, im.Grid)); err != nil {
			return nil, err
		}
	}
	if im == nil {
		return nil, eris.Errorf("scene: %s has none of the requested bands", sc.ID)
	}
	return im, nil
}

func intersect(a, b model.BoundingBox) (model.BoundingBox, bool) {
	out := model.BoundingBox{
		MinLon: max(a.MinLon, b.MinLon),
		MinLat: max(a.MinLat, b.MinLat),
		MaxLon: min(a.MaxLon, b.MaxLon),
		MaxLat: min(a.MaxLat, b.MaxLat),
	}
	if out.MinLon > out.MaxLon || out.MinLat > out.MaxLat {
		return model.BoundingBox{}, false
	}
	return out, true
}

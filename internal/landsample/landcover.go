package landsample

import (
	"context"
	"math"
	"slices"

	"github.com/rotisserie/eris"

	"github.com/sells-group/spectral-cli/internal/model"
	"github.com/sells-group/spectral-cli/internal/raster"
)

// LandCoverClassifier reads a categorical land-cover band. A point is land
// when its code is present and not one of WaterCodes.
type LandCoverClassifier struct {
	Image      *raster.Image
	Band       string
	WaterCodes []float64
}

// NewLandCoverClassifier validates that the image carries band. Water codes
// default to 0.
func NewLandCoverClassifier(im *raster.Image, band string, waterCodes ...float64) (*LandCoverClassifier, error) {
	if im == nil || !im.HasBand(band) {
		return nil, eris.Errorf("landsample: land cover image has no band %q", band)
	}
	if len(waterCodes) == 0 {
		waterCodes = []float64{0}
	}
	return &LandCoverClassifier{Image: im, Band: band, WaterCodes: waterCodes}, nil
}

// IsLand implements Classifier. Points off the raster are not land.
func (c *LandCoverClassifier) IsLand(_ context.Context, p model.GeoPoint) (bool, error) {
	code, ok := c.Image.ValueAt(c.Band, p)
	if !ok || math.IsNaN(code) {
		return false, nil
	}
	return !slices.Contains(c.WaterCodes, math.Round(code)), nil
}

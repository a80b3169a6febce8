//go:build !gdal

package scene

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/spectral-cli/internal/model"
	"github.com/sells-group/spectral-cli/internal/raster"
)

// GDALAvailable reports whether the binary was built with GDAL support.
const GDALAvailable = false

// ErrNoGDAL is returned for formats that need GDAL in a build without it.
var ErrNoGDAL = eris.New("scene: GDAL support not compiled in (rebuild with -tags gdal)")

type noGDALReader struct{}

// NewGDALReader returns a reader that always fails with ErrNoGDAL.
func NewGDALReader() BandReader {
	return noGDALReader{}
}

func (noGDALReader) ReadBand(context.Context, string, model.BoundingBox, float64) (raster.Grid, []float64, error) {
	return raster.Grid{}, nil, ErrNoGDAL
}

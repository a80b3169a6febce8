//go:build !gdal

package scene

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sells-group/spectral-cli/internal/model"
)

func TestGeoTIFFNeedsGDAL(t *testing.T) {
	assert.False(t, GDALAvailable)
	_, _, err := NewReader().ReadBand(context.Background(), "https://example.com/B04.tif", model.BoundingBox{}, 0)
	assert.ErrorIs(t, err, ErrNoGDAL)
}
